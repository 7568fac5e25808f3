package commands

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sumfields/sumfields/internal/cli/config"
	"github.com/sumfields/sumfields/internal/cli/ui"
	"github.com/sumfields/sumfields/internal/trigger"
)

var (
	triggersYes bool
)

// NewTriggersCommand creates the triggers command
func NewTriggersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "triggers",
		Short: "Manage the triggers that keep fields current",
		Long: `Compile, install and inspect the AFTER INSERT, UPDATE and DELETE
triggers that refresh a contact's summary fields when a source row changes.

Available subcommands:
  show     - Print the CREATE TRIGGER statements
  install  - Replace the installed triggers with the compiled set
  drop     - Remove every sumfields trigger
  status   - Compare installed triggers with the compiled set`,
	}

	cmd.AddCommand(newTriggersShowCommand())
	cmd.AddCommand(newTriggersInstallCommand())
	cmd.AddCommand(newTriggersDropCommand())
	cmd.AddCommand(newTriggersStatusCommand())

	return cmd
}

func compileTriggers(cmd *cobra.Command, cfg *config.Config) ([]*trigger.Trigger, error) {
	reg, err := loadRegistry(cmd, cfg)
	if err != nil {
		return nil, err
	}
	set, err := cfg.Sumfields.ParamSet()
	if err != nil {
		return nil, err
	}
	return trigger.NewCompiler(reg, cfg.Sumfields.SummaryTable, set.Values(now())).Compile()
}

func newTriggersShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the CREATE TRIGGER statements",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			triggers, err := compileTriggers(cmd, cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "DELIMITER //")
			for _, t := range triggers {
				fmt.Fprintf(out, "%s;\n%s//\n", t.DropSQL(), t.CreateSQL())
			}
			fmt.Fprintln(out, "DELIMITER ;")
			return nil
		},
	}
}

func newTriggersInstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the triggers",
		Long: `Drop every sumfields trigger and create the compiled set.

Creating triggers needs the TRIGGER privilege, and SUPER or
log_bin_trust_function_creators=1 when binary logging is on.
Fields computed from fiscal year dates are only correct until the fiscal
year turns; reinstall then, or use data_update_method: via_cron.`,
		RunE: runTriggersInstall,
	}
}

func runTriggersInstall(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !cfg.Sumfields.UsesTriggers() {
		ui.Warning(fmt.Sprintf("data_update_method is %s; fields are refreshed by serve, not by triggers.", config.ViaCron), flags.noColor).Write(cmd.ErrOrStderr())
		return fmt.Errorf("triggers are disabled by configuration")
	}

	triggers, err := compileTriggers(cmd, cfg)
	if err != nil {
		return err
	}

	db, err := openDatabase(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := trigger.NewInstaller(db).Install(cmd.Context(), triggers); err != nil {
		return dbFailure(cmd.ErrOrStderr(), "trigger install", err,
			"Some triggers may be missing; summary fields will not update on their own until install succeeds.")
	}

	for _, t := range triggers {
		fmt.Fprintf(out, "  ✓ %s\n", t.Name)
	}
	ui.WriteSuccess(out, fmt.Sprintf("Installed %d trigger(s)", len(triggers)), flags.noColor)
	return nil
}

func newTriggersDropCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Remove every sumfields trigger",
		RunE:  runTriggersDrop,
	}

	cmd.Flags().BoolVarP(&triggersYes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}

func runTriggersDrop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ok, err := confirm(triggersYes, "Drop every sumfields trigger? Summary fields will stop updating.")
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

	names, err := trigger.NewInstaller(db).Drop(cmd.Context())
	if err != nil {
		return dbFailure(cmd.ErrOrStderr(), "trigger drop", err, "")
	}

	if len(names) == 0 {
		color.New(color.FgCyan).Fprintln(cmd.OutOrStdout(), "No triggers installed")
		return nil
	}
	ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("Dropped %d trigger(s)", len(names)), flags.noColor)
	return nil
}

func newTriggersStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Compare installed triggers with the compiled set",
		RunE:  runTriggersStatus,
	}
}

func runTriggersStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	warningColor := color.New(color.FgYellow)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	want, err := compileTriggers(cmd, cfg)
	if err != nil {
		return err
	}

	db, err := openDatabase(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	installed, err := trigger.NewInstaller(db).Installed(cmd.Context())
	if err != nil {
		return dbFailure(cmd.ErrOrStderr(), "trigger status", err, "")
	}

	wanted := make(map[string]bool, len(want))
	for _, t := range want {
		wanted[t.Name] = true
	}
	outdated := trigger.Outdated(want, installed)
	changed := make(map[string]bool, len(outdated))
	for _, t := range outdated {
		changed[t.Name] = true
	}

	table := ui.NewTable(out, flags.noColor, "TRIGGER", "TABLE", "EVENT", "STATE")
	for _, info := range installed {
		state := "installed"
		switch {
		case !wanted[info.Name]:
			state = "stale"
		case changed[info.Name]:
			state = "outdated"
		}
		table.AddRow(info.Name, info.Table, strings.ToUpper(info.Event), state)
	}
	missing := trigger.Missing(want, installed)
	for _, t := range missing {
		table.AddRow(t.Name, t.Table, string(t.Event), "missing")
	}
	table.Render()

	if !cfg.Sumfields.UsesTriggers() {
		if len(installed) > 0 {
			warningColor.Fprintln(out, "\nTriggers are installed but data_update_method is via_cron; run triggers drop")
		}
		return nil
	}
	if len(missing) > 0 || len(outdated) > 0 || len(installed) != len(want) {
		warningColor.Fprintln(out, "\nTriggers are out of date; run triggers install")
		return nil
	}
	ui.WriteSuccess(out, "Triggers are up to date", flags.noColor)
	return nil
}
