package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sumfields/sumfields/internal/cli/ui"
	"github.com/sumfields/sumfields/internal/trigger"
)

// NewValidateCommand creates the validate command
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check configuration and field definitions",
		Long: `Load the configuration and every field definition, including any
definitions_file, and check them:

  - every field's table is reachable from the contact
  - every placeholder is a known parameter
  - every active field exists and its category is known
  - the triggers compile`,
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	reg, err := loadRegistry(cmd, cfg)
	if err != nil {
		return err
	}

	set, err := cfg.Sumfields.ParamSet()
	if err != nil {
		return err
	}

	triggers, err := trigger.NewCompiler(reg, cfg.Sumfields.SummaryTable, set.Values(now())).Compile()
	if err != nil {
		return fmt.Errorf("failed to compile triggers: %w", err)
	}

	kv := ui.NewKeyValueTable(out, flags.noColor)
	kv.AddRow("Active fields", fmt.Sprintf("%d", reg.Len()))
	kv.AddRow("Source tables", fmt.Sprintf("%d", len(reg.TriggerTables())))
	kv.AddRow("Triggers", fmt.Sprintf("%d", len(triggers)))
	kv.AddRow("Update method", cfg.Sumfields.DataUpdateMethod)
	kv.Render()

	if reg.Len() == 0 {
		ui.Warning("No fields are active; enable a component or list active_fields.", flags.noColor).Write(out)
		return nil
	}

	ui.WriteSuccess(out, "Configuration and definitions are valid", flags.noColor)
	return nil
}
