// Package schema generates and maintains the summary table: one row per
// subject entity, one nullable column per active summary field.
package schema

import (
	"fmt"
	"strings"

	"github.com/sumfields/sumfields/internal/database"
	"github.com/sumfields/sumfields/internal/registry"
)

const (
	// DefaultTableName is the summary table used when none is configured
	DefaultTableName = "civicrm_value_summary_fields"

	// IDColumn is the summary table's own primary key
	IDColumn = "id"
	// EntityColumn references the subject entity's primary key
	EntityColumn = "entity_id"

	// maxIdentifierLength is MySQL's limit for table, column and
	// constraint names
	maxIdentifierLength = 64
)

// SubjectPrimaryKey is the primary key column of the subject table
const SubjectPrimaryKey = "id"

// Table describes the summary table for a set of active fields
type Table struct {
	Name    string
	Subject registry.Subject
	Fields  []*registry.Field
}

// NewTable builds the table description for reg's fields. An empty name
// selects DefaultTableName.
func NewTable(name string, reg *registry.Registry) *Table {
	if name == "" {
		name = DefaultTableName
	}
	return &Table{
		Name:    name,
		Subject: reg.Subject(),
		Fields:  reg.Fields(),
	}
}

// Columns returns the field column names in table order
func (t *Table) Columns() []string {
	cols := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		cols[i] = f.Name
	}
	return cols
}

// ForeignKeyName returns the name of the entity_id constraint
func (t *Table) ForeignKeyName() string {
	return truncateIdentifier("FK_" + t.Name + "_" + EntityColumn)
}

// UniqueKeyName returns the name of the entity_id unique index
func (t *Table) UniqueKeyName() string {
	return truncateIdentifier("UI_" + EntityColumn)
}

// DDLGenerator generates MySQL DDL statements for the summary table
type DDLGenerator struct {
	typeMapper *TypeMapper
}

// NewDDLGenerator creates a new DDL generator
func NewDDLGenerator() *DDLGenerator {
	return &DDLGenerator{
		typeMapper: NewTypeMapper(),
	}
}

// GenerateCreateTable generates the CREATE TABLE statement
func (g *DDLGenerator) GenerateCreateTable(t *Table) (string, error) {
	if t == nil {
		return "", fmt.Errorf("table cannot be nil")
	}
	if t.Subject.Table == "" {
		return "", fmt.Errorf("table %s: subject table is required", t.Name)
	}

	var b strings.Builder

	b.WriteString(fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n", database.QuoteIdentifier(t.Name)))

	defs := []string{
		fmt.Sprintf("%s INT UNSIGNED NOT NULL AUTO_INCREMENT", database.QuoteIdentifier(IDColumn)),
		fmt.Sprintf("%s INT UNSIGNED NOT NULL", database.QuoteIdentifier(EntityColumn)),
	}
	for _, f := range t.Fields {
		def, err := g.generateColumnDefinition(f)
		if err != nil {
			return "", fmt.Errorf("field %s: %w", f.Name, err)
		}
		defs = append(defs, def)
	}
	defs = append(defs,
		fmt.Sprintf("PRIMARY KEY (%s)", database.QuoteIdentifier(IDColumn)),
		fmt.Sprintf("UNIQUE KEY %s (%s)", database.QuoteIdentifier(t.UniqueKeyName()), database.QuoteIdentifier(EntityColumn)),
		fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE CASCADE",
			database.QuoteIdentifier(t.ForeignKeyName()),
			database.QuoteIdentifier(EntityColumn),
			database.QuoteIdentifier(t.Subject.Table),
			database.QuoteIdentifier(SubjectPrimaryKey)),
	)

	for i, def := range defs {
		b.WriteString("  ")
		b.WriteString(def)
		if i < len(defs)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}

	b.WriteString(") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci")

	return b.String(), nil
}

// generateColumnDefinition generates a nullable column for a field.
// Rows exist for every subject with data in any source table, so a field
// with nothing to aggregate stays NULL.
func (g *DDLGenerator) generateColumnDefinition(f *registry.Field) (string, error) {
	colType, err := g.typeMapper.MapType(f)
	if err != nil {
		return "", err
	}

	def := fmt.Sprintf("%s %s DEFAULT NULL", database.QuoteIdentifier(f.Name), colType)
	if f.Label != "" {
		def += " COMMENT " + quoteString(f.Label)
	}
	return def, nil
}

// GenerateAddColumn generates an ALTER TABLE adding a field column
func (g *DDLGenerator) GenerateAddColumn(t *Table, f *registry.Field) (string, error) {
	def, err := g.generateColumnDefinition(f)
	if err != nil {
		return "", fmt.Errorf("field %s: %w", f.Name, err)
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", database.QuoteIdentifier(t.Name), def), nil
}

// GenerateDropColumn generates an ALTER TABLE dropping a column
func (g *DDLGenerator) GenerateDropColumn(t *Table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", database.QuoteIdentifier(t.Name), database.QuoteIdentifier(column))
}

// GenerateDropTable generates a DROP TABLE statement
func (g *DDLGenerator) GenerateDropTable(t *Table) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", database.QuoteIdentifier(t.Name))
}

func quoteString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func truncateIdentifier(name string) string {
	if len(name) > maxIdentifierLength {
		return name[:maxIdentifierLength]
	}
	return name
}
