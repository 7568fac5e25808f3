package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sumfields/sumfields/internal/cli/ui"
	"github.com/sumfields/sumfields/internal/schema"
)

var (
	schemaDryRun bool
	schemaYes    bool
)

// NewSchemaCommand creates the schema command
func NewSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage the summary table",
		Long: `Create and update the table the summary fields are stored in.

Available subcommands:
  show   - Print the CREATE TABLE statement
  apply  - Create the table or add and drop field columns
  drop   - Drop the table`,
	}

	cmd.AddCommand(newSchemaShowCommand())
	cmd.AddCommand(newSchemaApplyCommand())
	cmd.AddCommand(newSchemaDropCommand())

	return cmd
}

func newSchemaShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the CREATE TABLE statement",
		RunE:  runSchemaShow,
	}
}

func runSchemaShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	reg, err := loadRegistry(cmd, cfg)
	if err != nil {
		return err
	}

	stmt, err := schema.NewDDLGenerator().GenerateCreateTable(schema.NewTable(cfg.Sumfields.SummaryTable, reg))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), stmt+";")
	return nil
}

func newSchemaApplyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create or update the summary table",
		Long: `Create the summary table, or bring an existing one in line with the
active fields: missing columns are added and columns of fields that are
no longer active are dropped.`,
		RunE: runSchemaApply,
	}

	cmd.Flags().BoolVar(&schemaDryRun, "dry-run", false, "Print the statements without running them")

	return cmd
}

func runSchemaApply(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	infoColor := color.New(color.FgCyan)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	reg, err := loadRegistry(cmd, cfg)
	if err != nil {
		return err
	}

	db, err := openDatabase(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	gen := schema.NewDDLGenerator()
	table := schema.NewTable(cfg.Sumfields.SummaryTable, reg)

	var result *schema.SyncResult
	if schemaDryRun {
		existing, err := schema.ExistingColumns(cmd.Context(), db, table.Name)
		if err != nil {
			return dbFailure(cmd.ErrOrStderr(), "schema read", err, "")
		}
		if result, err = gen.Plan(table, existing); err != nil {
			return err
		}
		for _, stmt := range result.Statements {
			fmt.Fprintln(out, stmt+";")
		}
		if !result.Changed() {
			infoColor.Fprintln(out, "Summary table is up to date")
		}
		return nil
	}

	result, err = gen.Sync(cmd.Context(), db, table)
	if err != nil {
		return dbFailure(cmd.ErrOrStderr(), "schema apply", err, "The summary table may be partly updated; rerun schema apply.")
	}

	switch {
	case result.Created:
		ui.WriteSuccess(out, fmt.Sprintf("Created %s with %d field columns", table.Name, len(result.Added)), flags.noColor)
	case result.Changed():
		for _, col := range result.Added {
			fmt.Fprintf(out, "  + %s\n", col)
		}
		for _, col := range result.Dropped {
			fmt.Fprintf(out, "  - %s\n", col)
		}
		ui.WriteSuccess(out, fmt.Sprintf("Updated %s", table.Name), flags.noColor)
	default:
		infoColor.Fprintln(out, "Summary table is up to date")
	}
	return nil
}

func newSchemaDropCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop the summary table",
		Long:  "Drop the summary table and every value stored in it. Triggers should be dropped first.",
		RunE:  runSchemaDrop,
	}

	cmd.Flags().BoolVarP(&schemaYes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}

func runSchemaDrop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ok, err := confirm(schemaYes, fmt.Sprintf("Drop %s and all summary data?", cfg.Sumfields.SummaryTable))
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
		return nil
	}

	db, err := openDatabase(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	table := &schema.Table{Name: cfg.Sumfields.SummaryTable}
	if err := schema.NewDDLGenerator().Drop(cmd.Context(), db, table); err != nil {
		return dbFailure(cmd.ErrOrStderr(), "schema drop", err, "")
	}

	ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("Dropped %s", table.Name), flags.noColor)
	return nil
}
