package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/larktools/bitrunner/packages/http"
	"github.com/larktools/bitrunner/packages/output"
	"github.com/larktools/bitrunner/packages/runner"
	"github.com/larktools/bitrunner/packages/writeback"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute every test case in the table and write results back",
	Long: `Run loads all rows from the configured table, executes the valid
test cases against the system under test, and writes each outcome back
into its row.

Examples:
  bitrunner run --config config.yaml
  bitrunner run --concurrency 4
  bitrunner run --base-url https://staging.example.com`,
	RunE:          runCommand,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	baseURLFlag     string
	concurrencyFlag int
	timeoutFlag     time.Duration
	delayFlag       time.Duration
	verboseFlag     bool
	noColorFlag     bool
	reportFlag      string
)

func init() {
	runCmd.Flags().StringVar(&baseURLFlag, "base-url", "", "base URL of the system under test (overrides config)")
	runCmd.Flags().IntVar(&concurrencyFlag, "concurrency", 0, "worker pool size (default 1, sequential)")
	runCmd.Flags().DurationVar(&timeoutFlag, "timeout", 0, "per-request timeout (overrides config)")
	runCmd.Flags().DurationVar(&delayFlag, "delay", 0, "pause between requests per worker")
	runCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "show every assertion outcome")
	runCmd.Flags().BoolVar(&noColorFlag, "no-color", false, "disable colored output")
	runCmd.Flags().StringVar(&reportFlag, "report", "", "write a JSON run report to this path")
}

func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if baseURLFlag != "" {
		cfg.API.BaseURL = baseURLFlag
	}
	if concurrencyFlag > 0 {
		cfg.Runner.Concurrency = concurrencyFlag
	}
	if timeoutFlag > 0 {
		cfg.API.Timeout = timeoutFlag
	}
	if delayFlag > 0 {
		cfg.Runner.RequestDelay = delayFlag
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	table, err := newTableClient(cfg)
	if err != nil {
		return err
	}

	client := http.NewClient(
		http.WithTimeout(cfg.API.Timeout),
		http.WithNetworkRetries(cfg.API.NetworkRetries),
	)
	builder := http.NewBuilder(cfg.API.BaseURL, cfg.API.DefaultHeaders)
	writer := writeback.NewWriter(table, cfg.Lark.TableID, log)

	r := runner.New(table, builder, client, writer, runner.Config{
		TableID:        cfg.Lark.TableID,
		Concurrency:    cfg.Runner.Concurrency,
		RequestTimeout: cfg.API.Timeout,
		RequestDelay:   cfg.Runner.RequestDelay,
	}, log)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := r.Run(ctx)
	if err != nil {
		return err
	}

	formatter := output.NewConsoleFormatter(
		output.WithWriter(cmd.OutOrStdout()),
		output.WithVerbose(verboseFlag),
		output.WithNoColor(noColorFlag),
	)
	formatter.FormatSummary(summary)

	if reportFlag != "" {
		if err := output.WriteReport(reportFlag, summary); err != nil {
			return err
		}
	}

	if notPassing := summary.Failed + summary.Errored; notPassing > 0 {
		return fmt.Errorf("%d case(s) did not pass", notPassing)
	}
	return nil
}
