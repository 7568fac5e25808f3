package trigger

import (
	"fmt"
	"strings"

	"github.com/sumfields/sumfields/internal/database"
	"github.com/sumfields/sumfields/internal/params"
	"github.com/sumfields/sumfields/internal/registry"
	"github.com/sumfields/sumfields/internal/schema"
)

// Compiler builds triggers for the active fields of a registry
type Compiler struct {
	reg          *registry.Registry
	summaryTable string
	values       map[string]string
}

// NewCompiler creates a compiler writing to summaryTable with the given
// placeholder values
func NewCompiler(reg *registry.Registry, summaryTable string, values map[string]string) *Compiler {
	if summaryTable == "" {
		summaryTable = schema.DefaultTableName
	}
	return &Compiler{
		reg:          reg,
		summaryTable: summaryTable,
		values:       values,
	}
}

// Compile returns every trigger, grouped by source table in order of first
// use and ordered INSERT, UPDATE, DELETE within a table
func (c *Compiler) Compile() ([]*Trigger, error) {
	var triggers []*Trigger
	for _, table := range c.reg.TriggerTables() {
		t, err := c.CompileTable(table)
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, t...)
	}
	return triggers, nil
}

// CompileTable returns the three triggers for one source table
func (c *Compiler) CompileTable(table string) ([]*Trigger, error) {
	fields := c.reg.FieldsByTable(table)
	if len(fields) == 0 {
		return nil, fmt.Errorf("no active fields use %s", table)
	}

	exprs := make([]string, len(fields))
	for i, f := range fields {
		sql, err := params.Substitute(f.TriggerSQL, c.values)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		exprs[i] = sql
	}

	triggers := make([]*Trigger, 0, len(Events))
	for _, event := range Events {
		var blocks []string
		switch event {
		case Insert:
			blocks = []string{c.refresh(table, fields, exprs, NewRow, "")}
		case Update:
			newEntity := EntityExpr(c.reg, table, NewRow)
			oldEntity := EntityExpr(c.reg, table, OldRow)
			blocks = []string{
				c.refresh(table, fields, exprs, NewRow, ""),
				// the row moved to another subject
				c.refresh(table, fields, exprs, OldRow,
					fmt.Sprintf("NOT ((%s) <=> (%s))", oldEntity, newEntity)),
			}
		case Delete:
			blocks = []string{c.refresh(table, fields, exprs, OldRow, "")}
		}

		triggers = append(triggers, &Trigger{
			Name:  Name(table, event),
			Table: table,
			Event: event,
			Body:  "BEGIN\n" + strings.Join(blocks, "") + "END",
		})
	}
	return triggers, nil
}

// refresh recomputes every field for the subject of the given row
func (c *Compiler) refresh(table string, fields []*registry.Field, exprs []string, row, extra string) string {
	entity := EntityExpr(c.reg, table, row)

	cond := fmt.Sprintf("(%s) IS NOT NULL", entity)
	if extra != "" {
		cond += " AND " + extra
	}

	cols := make([]string, len(fields))
	vals := make([]string, len(fields))
	updates := make([]string, len(fields))
	for i, f := range fields {
		col := database.QuoteIdentifier(f.Name)
		cols[i] = col
		vals[i] = RewriteRow(exprs[i], row)
		updates[i] = fmt.Sprintf("%s = VALUES(%s)", col, col)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "  IF %s THEN\n", cond)
	fmt.Fprintf(&b, "    INSERT INTO %s (%s, %s)\n",
		database.QuoteIdentifier(c.summaryTable), database.QuoteIdentifier(schema.EntityColumn), strings.Join(cols, ", "))
	fmt.Fprintf(&b, "    VALUES ((%s), %s)\n", entity, strings.Join(vals, ",\n      "))
	fmt.Fprintf(&b, "    ON DUPLICATE KEY UPDATE %s;\n", strings.Join(updates, ", "))
	b.WriteString("  END IF;\n")
	return b.String()
}

// EntityExpr returns the SQL expression yielding the subject id for a row
// of table. Tables that carry the subject key use it directly; others go
// through their override.
func EntityExpr(reg *registry.Registry, table, row string) string {
	if o, ok := reg.Table(table); ok {
		return RewriteRow(o.CalculatedContactID, row)
	}
	return row + "." + reg.Subject().Key
}
