package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/larktools/bitrunner/packages/testcase"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate every row without executing anything",
	Long: `Validate fetches all rows from the configured table and reports
which ones parse into runnable test cases. No HTTP requests are sent
to the system under test and nothing is written back.`,
	RunE:          validateCommand,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func validateCommand(cmd *cobra.Command, args []string) error {
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

	records, err := table.AllRecords(cmd.Context(), cfg.Lark.TableID)
	if err != nil {
		return err
	}

	cases, verrs := testcase.LoadAll(records)

	out := cmd.OutOrStdout()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	for _, tc := range cases {
		fmt.Fprintf(out, "%s %s  %s %s\n", green("✓"), tc.Name, tc.Method, tc.Path)
	}
	for _, ve := range verrs {
		fmt.Fprintf(out, "%s %s\n", red("✗"), ve)
	}

	fmt.Fprintf(out, "\n%d row(s): %d valid, %d invalid\n", len(cases)+len(verrs), len(cases), len(verrs))
	if len(verrs) > 0 {
		return fmt.Errorf("%d row(s) failed validation", len(verrs))
	}
	return nil
}
