package runner

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/google/uuid"

	"github.com/larktools/bitrunner/packages/testcase"
)

// LatencyStats holds request-latency percentiles in milliseconds,
// computed over the cases that actually reached the system under test.
type LatencyStats struct {
	P50 int64
	P95 int64
	P99 int64
	Max int64
}

// Summary is what callers (CLI, dashboard) read back after a run.
type Summary struct {
	RunID    string
	Passed   int
	Failed   int
	Errored  int
	Invalid  int
	Duration time.Duration
	Latency  LatencyStats

	Results          []*ExecutionResult
	ValidationErrors []*testcase.ValidationError
	// WriteBackErr reports rows whose results could not be persisted;
	// those cases are not re-run.
	WriteBackErr error
}

func NewSummary() *Summary {
	return &Summary{RunID: uuid.NewString()}
}

// Total is every row considered by the run, including invalid ones.
func (s *Summary) Total() int {
	return len(s.Results) + s.Invalid
}

// PassRate is the fraction of executed cases that passed, in percent.
func (s *Summary) PassRate() float64 {
	executed := len(s.Results)
	if executed == 0 {
		return 0
	}
	return float64(s.Passed) / float64(executed) * 100
}

// Finish tallies counts and latency percentiles from the results.
func (s *Summary) Finish(elapsed time.Duration) {
	s.Duration = elapsed
	s.Invalid = len(s.ValidationErrors)

	hist := hdrhistogram.New(1, time.Minute.Milliseconds(), 3)
	for _, res := range s.Results {
		switch {
		case res.Err != nil:
			s.Errored++
		case res.OverallPass:
			s.Passed++
		default:
			s.Failed++
		}
		if res.Err == nil && res.Duration > 0 {
			_ = hist.RecordValue(res.Duration.Milliseconds())
		}
	}

	if hist.TotalCount() > 0 {
		s.Latency = LatencyStats{
			P50: hist.ValueAtQuantile(50),
			P95: hist.ValueAtQuantile(95),
			P99: hist.ValueAtQuantile(99),
			Max: hist.Max(),
		}
	}
}

// Failures returns the non-passing results, execution errors included.
func (s *Summary) Failures() []*ExecutionResult {
	var out []*ExecutionResult
	for _, res := range s.Results {
		if !res.OverallPass {
			out = append(out, res)
		}
	}
	return out
}
