// Package trigger compiles summary field templates into MySQL triggers on
// the source tables and installs them.
package trigger

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/sumfields/sumfields/internal/database"
)

// Prefix starts the name of every trigger this package manages
const Prefix = "sumfields_"

// maxNameLength is MySQL's trigger name limit
const maxNameLength = 64

// Event is the row operation a trigger fires on
type Event string

const (
	// Insert fires after a row is inserted
	Insert Event = "INSERT"
	// Update fires after a row is updated
	Update Event = "UPDATE"
	// Delete fires after a row is deleted
	Delete Event = "DELETE"
)

// Events lists the events a source table gets triggers for
var Events = []Event{Insert, Update, Delete}

// Row aliases available inside a trigger body
const (
	NewRow = "NEW"
	OldRow = "OLD"
)

// Trigger is a compiled AFTER trigger on a source table
type Trigger struct {
	Name  string
	Table string
	Event Event
	// Body is the compound BEGIN ... END statement
	Body string
}

// CreateSQL returns the CREATE TRIGGER statement
func (t *Trigger) CreateSQL() string {
	return fmt.Sprintf("CREATE TRIGGER %s AFTER %s ON %s FOR EACH ROW %s",
		database.QuoteIdentifier(t.Name), t.Event, database.QuoteIdentifier(t.Table), t.Body)
}

// DropSQL returns the DROP TRIGGER statement
func (t *Trigger) DropSQL() string {
	return DropSQL(t.Name)
}

// DropSQL returns the DROP TRIGGER statement for a trigger name
func DropSQL(name string) string {
	return fmt.Sprintf("DROP TRIGGER IF EXISTS %s", database.QuoteIdentifier(name))
}

// Name returns the trigger name for a table and event. Names that would
// exceed MySQL's limit keep the prefix and event and replace the tail of
// the table name with a hash.
func Name(table string, event Event) string {
	suffix := "_" + strings.ToLower(string(event))
	name := Prefix + table + suffix
	if len(name) <= maxNameLength {
		return name
	}

	h := fnv.New32a()
	h.Write([]byte(table))
	hash := fmt.Sprintf("_%08x", h.Sum32())

	keep := maxNameLength - len(Prefix) - len(hash) - len(suffix)
	return Prefix + table[:keep] + hash + suffix
}

var newRowRE = regexp.MustCompile(`\bNEW\.`)

// RewriteRow points NEW.<column> references in a template at another row
// alias: OLD inside a delete trigger, or a table alias when backfilling.
func RewriteRow(sql, alias string) string {
	if alias == NewRow {
		return sql
	}
	return newRowRE.ReplaceAllString(sql, alias+".")
}
