package registry

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sumfields/sumfields/internal/params"
)

// identifierRE matches names usable as unquoted MySQL column names
var identifierRE = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// ValidationError collects every problem found in a registry
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid definitions: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid definitions (%d problems):\n  - %s",
		len(e.Problems), strings.Join(e.Problems, "\n  - "))
}

// Validate checks the registry invariants:
//   - every trigger table references the subject directly or has an override
//   - every template placeholder is resolvable
//   - every field has a valid name, data type and category
//   - every simplified field has its line-item counterpart
func (r *Registry) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if r.subject.Table == "" || r.subject.Key == "" {
		add("subject table and key are required")
	}

	for name, t := range r.tables {
		if t.CalculatedContactID == "" {
			add("table %s: calculated_contact_id is required", name)
		}
		if t.TriggerField == "" {
			add("table %s: trigger_field is required", name)
		} else if !strings.Contains(t.CalculatedContactID, "NEW."+t.TriggerField) {
			add("table %s: calculated_contact_id does not use NEW.%s", name, t.TriggerField)
		}
	}

	for _, f := range r.fields {
		if !identifierRE.MatchString(f.Name) {
			add("field %s: name is not a valid column name", f.Name)
		}
		if f.Label == "" {
			add("field %s: label is required", f.Name)
		}
		if !f.DataType.Valid() {
			add("field %s: unsupported data_type %q", f.Name, f.DataType)
		}
		if f.DataType == String && f.TextLength <= 0 {
			add("field %s: String fields need a text_length", f.Name)
		}
		if strings.TrimSpace(f.TriggerSQL) == "" {
			add("field %s: trigger_sql is required", f.Name)
		}

		if f.TriggerTable == "" {
			add("field %s: trigger_table is required", f.Name)
		} else if _, ok := r.tables[f.TriggerTable]; !ok && !r.subject.References(f.TriggerTable) {
			add("field %s: trigger table %s has no %s and no table override",
				f.Name, f.TriggerTable, r.subject.Key)
		}

		if _, ok := r.optIndex[f.OptGroup]; !ok {
			add("field %s: unknown optgroup %q", f.Name, f.OptGroup)
		}

		for _, name := range params.Placeholders(f.TriggerSQL) {
			if !params.IsKnown(name) {
				add("field %s: unknown placeholder %%%s", f.Name, name)
			}
		}

		if f.IsSimplified() {
			precise, ok := r.index[f.PreciseName()]
			switch {
			case !ok:
				add("field %s: no precise variant %s", f.Name, f.PreciseName())
			case precise.DataType != f.DataType:
				add("field %s: data type %s differs from %s (%s)",
					f.Name, f.DataType, precise.Name, precise.DataType)
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
