// Package generator recomputes every summary field for every contact from
// the source tables. It is the backfill behind SumFields.gendata.
package generator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sumfields/sumfields/internal/database"
	"github.com/sumfields/sumfields/internal/logger"
	"github.com/sumfields/sumfields/internal/params"
	"github.com/sumfields/sumfields/internal/registry"
	"github.com/sumfields/sumfields/internal/schema"
	"github.com/sumfields/sumfields/internal/status"
	"github.com/sumfields/sumfields/internal/trigger"
)

// rowAlias names the representative source row in backfill statements
const rowAlias = "trigger_table"

// Config holds generator settings
type Config struct {
	SummaryTable string
	Params       params.Set
	// LockTTL bounds how long a run may hold the generation lock
	LockTTL time.Duration
	Retry   *database.RetryConfig
}

// Statement is one backfill statement
type Statement struct {
	Table string
	SQL   string
}

// Result describes a finished run
type Result struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Tables     map[string]int64 `json:"tables"`
	Contacts   int64            `json:"contacts"`
}

// Values returns the result as API values
func (r *Result) Values() map[string]interface{} {
	tables := make(map[string]interface{}, len(r.Tables))
	for name, rows := range r.Tables {
		tables[name] = rows
	}
	return map[string]interface{}{
		"run_id":      r.RunID,
		"started_at":  r.StartedAt.Format(time.RFC3339),
		"finished_at": r.FinishedAt.Format(time.RFC3339),
		"tables":      tables,
		"contacts":    r.Contacts,
	}
}

// Generator runs backfills
type Generator struct {
	reg    *registry.Registry
	tx     *database.Manager
	store  status.Store
	config Config
	log    *logger.Logger
	now    func() time.Time
}

// New creates a generator for the active fields in reg
func New(reg *registry.Registry, tx *database.Manager, store status.Store, config Config, log *logger.Logger) *Generator {
	if config.SummaryTable == "" {
		config.SummaryTable = schema.DefaultTableName
	}
	if config.Retry == nil {
		config.Retry = database.DefaultRetryConfig()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Generator{
		reg:    reg,
		tx:     tx,
		store:  store,
		config: config,
		log:    log,
		now:    time.Now,
	}
}

// Statements returns the backfill statements as of now, one per source
// table in order of first use
func (g *Generator) Statements(now time.Time) ([]Statement, error) {
	values := g.config.Params.Values(now)

	var stmts []Statement
	for _, table := range g.reg.TriggerTables() {
		sql, err := g.backfillSQL(table, values)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, Statement{Table: table, SQL: sql})
	}
	return stmts, nil
}

// backfillSQL builds one INSERT ... SELECT for a source table. The derived
// table keeps one representative row per contact, so every template is
// evaluated once per contact with NEW.<column> bound to that row.
func (g *Generator) backfillSQL(table string, values map[string]string) (string, error) {
	fields := g.reg.FieldsByTable(table)

	key := g.reg.Subject().Key
	join := ""
	if o, ok := g.reg.Table(table); ok {
		key = o.TriggerField
		join = " " + o.InitializeJoin
	}

	cols := make([]string, len(fields))
	exprs := make([]string, len(fields))
	updates := make([]string, len(fields))
	for i, f := range fields {
		sql, err := params.Substitute(f.TriggerSQL, values)
		if err != nil {
			return "", fmt.Errorf("field %s: %w", f.Name, err)
		}
		col := database.QuoteIdentifier(f.Name)
		cols[i] = col
		exprs[i] = trigger.RewriteRow(sql, rowAlias)
		updates[i] = fmt.Sprintf("%s = VALUES(%s)", col, col)
	}

	entity := trigger.EntityExpr(g.reg, table, rowAlias)
	entityCol := database.QuoteIdentifier(schema.EntityColumn)

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s, %s)\n",
		database.QuoteIdentifier(g.config.SummaryTable), entityCol, strings.Join(cols, ", "))
	fmt.Fprintf(&b, "SELECT %s.%s,\n  %s\n", rowAlias, entityCol, strings.Join(exprs, ",\n  "))
	fmt.Fprintf(&b, "FROM (SELECT %s AS %s, MIN(%s.%s) AS %s\n", entity, entityCol, rowAlias, key, key)
	fmt.Fprintf(&b, "  FROM %s AS %s%s\n", database.QuoteIdentifier(table), rowAlias, join)
	fmt.Fprintf(&b, "  GROUP BY 1 HAVING %s IS NOT NULL) AS %s\n", entityCol, rowAlias)
	fmt.Fprintf(&b, "ON DUPLICATE KEY UPDATE %s", strings.Join(updates, ", "))
	return b.String(), nil
}

// Generate clears the summary table and refills it from every source
// table in one transaction. Only one run may be in progress across all
// processes sharing the status store; others fail with status.ErrBusy.
func (g *Generator) Generate(ctx context.Context) (*Result, error) {
	runID := uuid.New().String()
	log := g.log.With("run_id", runID)

	if err := g.store.Acquire(ctx, runID, g.config.LockTTL); err != nil {
		return nil, err
	}
	defer func() {
		// the lock must be released even when ctx was cancelled
		if err := g.store.Release(context.WithoutCancel(ctx), runID); err != nil {
			log.Warn("failed to release generation lock", "error", err)
		}
	}()

	started := g.now()
	if err := status.MarkRunning(ctx, g.store, runID, started); err != nil {
		log.Warn("failed to record generation status", "error", err)
	}
	log.Info("generating summary data", "fields", g.reg.Len(), "tables", len(g.reg.TriggerTables()))

	result, err := g.run(ctx, runID, started)

	finished := g.now()
	var contacts int64
	if result != nil {
		contacts = result.Contacts
	}
	if serr := status.MarkFinished(context.WithoutCancel(ctx), g.store, runID, started, finished, contacts, err); serr != nil {
		log.Warn("failed to record generation status", "error", serr)
	}

	if err != nil {
		log.Error("summary data generation failed", "error", err, "duration", finished.Sub(started))
		return nil, err
	}

	result.FinishedAt = finished
	log.Info("summary data generated", "contacts", result.Contacts, "duration", finished.Sub(started))
	return result, nil
}

func (g *Generator) run(ctx context.Context, runID string, started time.Time) (*Result, error) {
	stmts, err := g.Statements(started)
	if err != nil {
		return nil, fmt.Errorf("failed to build backfill statements: %w", err)
	}

	var result *Result
	err = g.tx.WithRetryConfig(ctx, g.config.Retry, func(tx *sql.Tx) error {
		// reset on every attempt
		result = &Result{
			RunID:     runID,
			StartedAt: started,
			Tables:    make(map[string]int64, len(stmts)),
		}

		summary := database.QuoteIdentifier(g.config.SummaryTable)
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+summary); err != nil {
			return fmt.Errorf("failed to clear %s: %w", g.config.SummaryTable, err)
		}

		for _, stmt := range stmts {
			res, err := tx.ExecContext(ctx, stmt.SQL)
			if err != nil {
				return fmt.Errorf("failed to backfill from %s: %w", stmt.Table, err)
			}
			rows, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to backfill from %s: %w", stmt.Table, err)
			}
			result.Tables[stmt.Table] = rows
			g.log.Debug("backfilled source table", "run_id", runID, "table", stmt.Table, "rows", rows)
		}

		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+summary).Scan(&result.Contacts); err != nil {
			return fmt.Errorf("failed to count summary rows: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, database.ErrDeadlock) {
			return nil, fmt.Errorf("summary tables stayed locked: %w", err)
		}
		return nil, err
	}
	return result, nil
}

// Status returns the last recorded generation status
func (g *Generator) Status(ctx context.Context) (status.Status, error) {
	return g.store.Get(ctx)
}

// Schedule records that a run was requested. The scheduler or a later
// gendata call performs it.
func (g *Generator) Schedule(ctx context.Context) error {
	return status.MarkScheduled(ctx, g.store, g.now())
}
