package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/larktools/bitrunner/packages/runner"
)

// ConsoleFormatter renders a run summary for humans.
type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) FormatSummary(s *runner.Summary) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(f.writer, "\n%s\n\n", bold("Run "+s.RunID))

	for _, res := range s.Results {
		switch {
		case res.Err != nil:
			fmt.Fprintf(f.writer, "  %s %s %s\n", red("!"), res.Name, red(fmt.Sprintf("(%v)", res.Err)))
		case res.OverallPass:
			fmt.Fprintf(f.writer, "  %s %s %s\n", green("✓"), res.Name, cyan(fmt.Sprintf("(%dms)", res.Duration.Milliseconds())))
		default:
			fmt.Fprintf(f.writer, "  %s %s %s\n", red("✗"), res.Name, cyan(fmt.Sprintf("(%dms)", res.Duration.Milliseconds())))
			fmt.Fprintf(f.writer, "      %s\n", res.FailureDetail())
		}

		if f.verbose {
			for _, o := range res.Outcomes {
				mark := green("pass")
				if !o.Passed {
					mark = red("fail")
				}
				fmt.Fprintf(f.writer, "      [%s] %s %s %s\n", mark, o.Rule.Facet, o.Rule.Op, o.Rule.Operand)
			}
		}

		if res.WriteErr != nil {
			fmt.Fprintf(f.writer, "      %s\n", yellow("write-back failed: "+res.WriteErr.Error()))
		}
	}

	for _, verr := range s.ValidationErrors {
		fmt.Fprintf(f.writer, "  %s %s\n", yellow("-"), verr.Error())
	}

	fmt.Fprintf(f.writer, "\n%s\n", bold("Summary"))
	fmt.Fprintf(f.writer, "  total:   %d\n", s.Total())
	fmt.Fprintf(f.writer, "  passed:  %s\n", green(fmt.Sprintf("%d", s.Passed)))
	fmt.Fprintf(f.writer, "  failed:  %s\n", red(fmt.Sprintf("%d", s.Failed)))
	fmt.Fprintf(f.writer, "  errors:  %s\n", red(fmt.Sprintf("%d", s.Errored)))
	if s.Invalid > 0 {
		fmt.Fprintf(f.writer, "  invalid: %s\n", yellow(fmt.Sprintf("%d", s.Invalid)))
	}
	fmt.Fprintf(f.writer, "  rate:    %.1f%%\n", s.PassRate())
	fmt.Fprintf(f.writer, "  time:    %s\n", s.Duration.Round(time.Millisecond))

	if s.Latency.Max > 0 {
		fmt.Fprintf(f.writer, "  latency: p50=%dms p95=%dms p99=%dms max=%dms\n",
			s.Latency.P50, s.Latency.P95, s.Latency.P99, s.Latency.Max)
	}

	if s.WriteBackErr != nil {
		fmt.Fprintf(f.writer, "\n%s %v\n", yellow("write-back:"), s.WriteBackErr)
	}
}
