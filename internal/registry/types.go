// Package registry holds the summary field definitions: the derived
// per-contact metrics, the tables whose row changes feed them, and the
// categories they are grouped into.
//
// A Registry is read-only once built. Extension definitions are layered on
// top with Merge, which returns a new Registry.
package registry

import (
	"fmt"
	"strings"
)

// DataType is the value type of a summary field
type DataType string

const (
	// Money is a currency amount
	Money DataType = "Money"
	// Int is a whole number (counts, percentages)
	Int DataType = "Int"
	// Date is a date or datetime
	Date DataType = "Date"
	// String is free text
	String DataType = "String"
)

// Valid reports whether d is one of the supported data types
func (d DataType) Valid() bool {
	switch d {
	case Money, Int, Date, String:
		return true
	}
	return false
}

// Field is a single summary field definition
type Field struct {
	// Name is the unique key and the summary table column name
	Name string `yaml:"-"`

	Label    string   `yaml:"label"`
	DataType DataType `yaml:"data_type"`
	HTMLType string   `yaml:"html_type"`

	// Weight orders fields for display
	Weight     int `yaml:"weight"`
	TextLength int `yaml:"text_length"`

	IsSearchRange *bool `yaml:"is_search_range,omitempty"`

	// TriggerSQL computes the value for the contact whose row changed.
	// NEW.<column> refers to the changed row of TriggerTable.
	TriggerSQL string `yaml:"trigger_sql"`

	// Multilingual marks templates that read translated columns
	Multilingual bool `yaml:"multilingual"`

	// Ratio, when set, derives TriggerSQL from two other fields
	Ratio *RatioSpec `yaml:"ratio,omitempty"`

	TriggerTable string `yaml:"trigger_table"`
	OptGroup     string `yaml:"optgroup"`
}

// IsSimplified reports whether f is the header-level variant of a
// line-item field
func (f *Field) IsSimplified() bool {
	return strings.HasSuffix(f.Name, SimplifiedSuffix)
}

// PreciseName returns the name of the line-item variant of a simplified
// field, or the field's own name when it is not simplified
func (f *Field) PreciseName() string {
	return strings.TrimSuffix(f.Name, SimplifiedSuffix)
}

// SimplifiedSuffix marks header-level variants of line-item fields
const SimplifiedSuffix = "_simplified"

// RatioSpec names the numerator and denominator fields of a percentage
type RatioSpec struct {
	Numerator   string `yaml:"numerator"`
	Denominator string `yaml:"denominator"`
}

// TableOverride tells how to find the contact for a source table that has
// no contact_id column
type TableOverride struct {
	// CalculatedContactID derives the contact id from NEW.<TriggerField>
	CalculatedContactID string `yaml:"calculated_contact_id"`
	TriggerField        string `yaml:"trigger_field"`
	// InitializeJoin is appended to the FROM clause when backfilling
	InitializeJoin string `yaml:"initialize_join"`
}

// OptGroup is a named category of fields
type OptGroup struct {
	Name      string `yaml:"-"`
	Title     string `yaml:"title"`
	Component string `yaml:"component"`
	Fieldset  string `yaml:"fieldset"`
}

// Subject describes the entity summary fields are stored against
type Subject struct {
	Entity string `yaml:"entity"`
	Table  string `yaml:"table"`
	// Key is the foreign key column source tables use to reference the
	// subject
	Key          string   `yaml:"key"`
	DirectTables []string `yaml:"direct_tables"`
}

// References reports whether table carries Key directly
func (s Subject) References(table string) bool {
	if table == s.Table {
		return true
	}
	for _, t := range s.DirectTables {
		if t == table {
			return true
		}
	}
	return false
}

// Ratio builds the percentage expression for two aggregate
// sub-expressions. NULLs count as zero, the quotient is kept to two decimal
// places and scaled by 100, so .8000 becomes 80.
func Ratio(numerator, denominator string) string {
	return fmt.Sprintf("(SELECT FORMAT(IFNULL(%s, 0) / IFNULL(%s, 0), 2) * 100 AS summary_value)",
		numerator, denominator)
}
