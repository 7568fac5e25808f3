package schema

import (
	"context"
	"database/sql"
	"fmt"
)

// SyncResult reports the changes Sync made
type SyncResult struct {
	Created    bool
	Added      []string
	Dropped    []string
	Statements []string
}

// Changed reports whether Sync changed the table
func (r *SyncResult) Changed() bool {
	return r.Created || len(r.Added) > 0 || len(r.Dropped) > 0
}

const columnsQuery = `SELECT COLUMN_NAME FROM information_schema.COLUMNS
WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
ORDER BY ORDINAL_POSITION`

// ExistingColumns returns the columns of the summary table, or nil when
// the table does not exist
func ExistingColumns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, columnsQuery, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	return cols, nil
}

// Plan returns the statements that bring a table with the existing columns
// in line with t. A nil existing list means the table is missing.
func (g *DDLGenerator) Plan(t *Table, existing []string) (*SyncResult, error) {
	result := &SyncResult{}

	if len(existing) == 0 {
		stmt, err := g.GenerateCreateTable(t)
		if err != nil {
			return nil, err
		}
		result.Created = true
		result.Added = t.Columns()
		result.Statements = []string{stmt}
		return result, nil
	}

	have := make(map[string]bool, len(existing))
	for _, col := range existing {
		have[col] = true
	}
	want := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		want[f.Name] = true
		if have[f.Name] {
			continue
		}
		stmt, err := g.GenerateAddColumn(t, f)
		if err != nil {
			return nil, err
		}
		result.Added = append(result.Added, f.Name)
		result.Statements = append(result.Statements, stmt)
	}

	for _, col := range existing {
		if col == IDColumn || col == EntityColumn || want[col] {
			continue
		}
		result.Dropped = append(result.Dropped, col)
		result.Statements = append(result.Statements, g.GenerateDropColumn(t, col))
	}

	return result, nil
}

// Sync creates the summary table or adds and drops field columns so it
// matches t. DDL commits implicitly in MySQL, so statements run one by one
// outside a transaction.
func (g *DDLGenerator) Sync(ctx context.Context, db *sql.DB, t *Table) (*SyncResult, error) {
	existing, err := ExistingColumns(ctx, db, t.Name)
	if err != nil {
		return nil, err
	}

	result, err := g.Plan(t, existing)
	if err != nil {
		return nil, err
	}

	for _, stmt := range result.Statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to sync %s: %w", t.Name, err)
		}
	}
	return result, nil
}

// Drop removes the summary table
func (g *DDLGenerator) Drop(ctx context.Context, db *sql.DB, t *Table) error {
	if _, err := db.ExecContext(ctx, g.GenerateDropTable(t)); err != nil {
		return fmt.Errorf("failed to drop %s: %w", t.Name, err)
	}
	return nil
}
