package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/larktools/bitrunner/packages/bitable"
	"github.com/larktools/bitrunner/packages/writeback"
)

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Create the result columns in the table if they are missing",
	Long: `Fields makes sure the table carries the four columns the runner
writes results into: actual status, response body, pass/fail verdict
and failure reason. Existing columns are left untouched.`,
	RunE:          fieldsCommand,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func fieldsCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	table, err := newTableClient(cfg)
	if err != nil {
		return err
	}

	wanted := []struct {
		name      string
		fieldType int
		property  map[string]any
	}{
		{writeback.FieldActualStatus, bitable.FieldTypeText, nil},
		{writeback.FieldActualBody, bitable.FieldTypeText, nil},
		{writeback.FieldPassed, bitable.FieldTypeSingleSelect, map[string]any{
			"options": []map[string]any{
				{"name": writeback.PassValue},
				{"name": writeback.FailValue},
			},
		}},
		{writeback.FieldFailReason, bitable.FieldTypeText, nil},
	}

	ctx := cmd.Context()
	for _, w := range wanted {
		field, err := table.EnsureField(ctx, cfg.Lark.TableID, w.name, w.fieldType, w.property)
		if err != nil {
			return fmt.Errorf("ensuring field %q: %w", w.name, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", field.Name, field.ID)
	}
	return nil
}
