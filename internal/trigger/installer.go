package trigger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Info describes a trigger found in the database
type Info struct {
	Name   string
	Table  string
	Event  string
	Timing string
	// Statement is the trigger body as stored by the server
	Statement string
}

const installedQuery = `SELECT TRIGGER_NAME, EVENT_OBJECT_TABLE, EVENT_MANIPULATION, ACTION_TIMING, ACTION_STATEMENT
FROM information_schema.TRIGGERS
WHERE TRIGGER_SCHEMA = DATABASE() AND TRIGGER_NAME LIKE ?
ORDER BY EVENT_OBJECT_TABLE, TRIGGER_NAME`

// likePrefix matches Prefix literally in a LIKE pattern
const likePrefix = `sumfields\_%`

// Installer manages the triggers in a database
type Installer struct {
	db *sql.DB
}

// NewInstaller creates an installer for db
func NewInstaller(db *sql.DB) *Installer {
	return &Installer{db: db}
}

// Install replaces every managed trigger with the given set. Existing
// triggers are dropped first so fields that were deactivated stop being
// maintained. Trigger DDL commits implicitly, so a failure part way leaves
// the triggers created so far in place.
func (i *Installer) Install(ctx context.Context, triggers []*Trigger) error {
	if _, err := i.Drop(ctx); err != nil {
		return err
	}

	for _, t := range triggers {
		if _, err := i.db.ExecContext(ctx, t.CreateSQL()); err != nil {
			return fmt.Errorf("failed to create trigger %s: %w", t.Name, err)
		}
	}
	return nil
}

// Drop removes every managed trigger and returns their names
func (i *Installer) Drop(ctx context.Context) ([]string, error) {
	installed, err := i.Installed(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(installed))
	for _, t := range installed {
		if _, err := i.db.ExecContext(ctx, DropSQL(t.Name)); err != nil {
			return names, fmt.Errorf("failed to drop trigger %s: %w", t.Name, err)
		}
		names = append(names, t.Name)
	}
	return names, nil
}

// Installed lists the managed triggers present in the current schema
func (i *Installer) Installed(ctx context.Context) ([]Info, error) {
	rows, err := i.db.QueryContext(ctx, installedQuery, likePrefix)
	if err != nil {
		return nil, fmt.Errorf("error querying triggers: %w", err)
	}
	defer rows.Close()

	var out []Info
	for rows.Next() {
		var info Info
		if err := rows.Scan(&info.Name, &info.Table, &info.Event, &info.Timing, &info.Statement); err != nil {
			return nil, fmt.Errorf("error scanning trigger: %w", err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error querying triggers: %w", err)
	}
	return out, nil
}

// Missing returns the triggers in want that are not installed
func Missing(want []*Trigger, installed []Info) []*Trigger {
	have := make(map[string]bool, len(installed))
	for _, info := range installed {
		have[info.Name] = true
	}
	var missing []*Trigger
	for _, t := range want {
		if !have[t.Name] {
			missing = append(missing, t)
		}
	}
	return missing
}

// Outdated returns the triggers in want that are installed with a different
// body. Bodies embed fiscal year dates, so triggers compiled in an earlier
// fiscal year show up here.
func Outdated(want []*Trigger, installed []Info) []*Trigger {
	bodies := make(map[string]string, len(installed))
	for _, info := range installed {
		bodies[info.Name] = strings.TrimSpace(info.Statement)
	}
	var outdated []*Trigger
	for _, t := range want {
		body, ok := bodies[t.Name]
		if ok && body != strings.TrimSpace(t.Body) {
			outdated = append(outdated, t)
		}
	}
	return outdated
}
