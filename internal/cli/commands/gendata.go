package commands

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/sumfields/sumfields/internal/cli/ui"
	"github.com/sumfields/sumfields/internal/status"
)

var (
	gendataDryRun bool
)

// NewGendataCommand creates the gendata command
func NewGendataCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gendata",
		Short: "Recompute every summary field",
		Long: `Clear the summary table and recompute every active field for every
contact from the source tables, in one transaction.

Only one run may be in progress at a time. With redis.addr configured the
lock is shared with serve and other gendata runs.`,
		RunE: runGendata,
	}

	cmd.Flags().BoolVar(&gendataDryRun, "dry-run", false, "Print the backfill statements without running them")

	return cmd
}

func runGendata(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	reg, err := loadRegistry(cmd, cfg)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	if gendataDryRun {
		gen, err := newGenerator(cfg, reg, nil, nil, log)
		if err != nil {
			return err
		}
		stmts, err := gen.Statements(now())
		if err != nil {
			return err
		}
		for _, stmt := range stmts {
			fmt.Fprintf(out, "-- %s\n%s;\n\n", stmt.Table, stmt.SQL)
		}
		return nil
	}

	db, err := openDatabase(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	store, closeStore, err := openStatusStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	gen, err := newGenerator(cfg, reg, db, store, log)
	if err != nil {
		return err
	}

	spinner := ui.NewSpinner(cmd.ErrOrStderr(), fmt.Sprintf("Generating %d fields...", reg.Len()), flags.noColor)
	spinner.Start()
	result, err := gen.Generate(cmd.Context())
	if err != nil {
		spinner.Fail("Generating data returned an error.")
		if errors.Is(err, status.ErrBusy) {
			return fmt.Errorf("another data generation is running; try again later")
		}
		return dbFailure(cmd.ErrOrStderr(), "gendata", err, "The summary table was left as it was before the run.")
	}
	spinner.Success(fmt.Sprintf("Generated summary data for %d contact(s)", result.Contacts))

	tables := make([]string, 0, len(result.Tables))
	for name := range result.Tables {
		tables = append(tables, name)
	}
	sort.Strings(tables)

	table := ui.NewTable(out, flags.noColor, "SOURCE TABLE", "ROWS")
	for _, name := range tables {
		table.AddRow(name, fmt.Sprintf("%d", result.Tables[name]))
	}
	table.Render()

	kv := ui.NewKeyValueTable(out, flags.noColor)
	kv.AddRow("Run", result.RunID)
	kv.AddRow("Duration", result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond).String())
	kv.Render()
	return nil
}
