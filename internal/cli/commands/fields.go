package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sumfields/sumfields/internal/cli/ui"
	"github.com/sumfields/sumfields/internal/registry"
)

var (
	fieldsAll  bool
	fieldsJSON bool
)

// NewFieldsCommand creates the fields command
func NewFieldsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fields",
		Short: "List summary fields",
		Long: `List the active summary fields in declaration order.

With --all every known definition is listed along with whether it is
active. With --json the definitions are printed in the nested layout
returned by SumFields.getfields.`,
		RunE: runFields,
	}

	cmd.Flags().BoolVar(&fieldsAll, "all", false, "List every definition, not only active ones")
	cmd.Flags().BoolVar(&fieldsJSON, "json", false, "Print definitions as JSON")

	return cmd
}

func runFields(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	active, err := loadRegistry(cmd, cfg)
	if err != nil {
		return err
	}

	shown := active
	if fieldsAll {
		if shown, err = cfg.Sumfields.AllDefinitions(); err != nil {
			return err
		}
	}

	if fieldsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(shown.Export())
	}

	table := ui.NewTable(out, flags.noColor, "NAME", "LABEL", "TYPE", "TABLE", "CATEGORY", "ACTIVE")
	for _, f := range shown.Fields() {
		table.AddRow(f.Name, f.Label, string(f.DataType), f.TriggerTable, categoryTitle(shown, f), yesNo(isActive(active, f.Name)))
	}
	table.Render()

	fmt.Fprintf(out, "\n%d of %d fields active\n", active.Len(), shown.Len())
	return nil
}

func categoryTitle(reg *registry.Registry, f *registry.Field) string {
	if g, ok := reg.OptGroup(f.OptGroup); ok && g.Title != "" {
		return g.Title
	}
	return f.OptGroup
}

func isActive(reg *registry.Registry, name string) bool {
	_, ok := reg.Field(name)
	return ok
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
