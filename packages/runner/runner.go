package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/larktools/bitrunner/packages/assertions"
	"github.com/larktools/bitrunner/packages/bitable"
	"github.com/larktools/bitrunner/packages/http"
	"github.com/larktools/bitrunner/packages/testcase"
	"github.com/larktools/bitrunner/packages/writeback"
)

// Stage tracks a case through its pipeline. Every case ends Written or
// Failed; a case that fails mid-pipeline still gets a best-effort
// write-back carrying the error detail.
type Stage int

const (
	StagePending Stage = iota
	StageLoaded
	StageRequested
	StageEvaluated
	StageWritten
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StagePending:
		return "pending"
	case StageLoaded:
		return "loaded"
	case StageRequested:
		return "requested"
	case StageEvaluated:
		return "evaluated"
	case StageWritten:
		return "written"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	// DefaultConcurrency keeps execution sequential unless configured.
	DefaultConcurrency = 1
)

// Config is the per-run policy knob set.
type Config struct {
	TableID        string
	Concurrency    int
	RequestTimeout time.Duration
	// RequestDelay spaces out calls to the system under test; useful
	// when the target itself is rate sensitive.
	RequestDelay time.Duration
}

// ExecutionResult is the full record of one case's execution attempt.
// It is created fresh per attempt and owned by the runner until the
// write-back consumes it.
type ExecutionResult struct {
	TestCaseID   string
	Name         string
	Stage        Stage
	ActualStatus int
	ActualBody   string
	Outcomes     []assertions.Outcome
	OverallPass  bool
	Duration     time.Duration
	// Err is set only when execution itself failed (build, network,
	// timeout). A completed run with failing assertions leaves it nil.
	Err error
	// WriteErr records a failed write-back; the case is not re-run.
	WriteErr error
}

// FailureDetail is the human-readable reason a case did not pass.
func (r *ExecutionResult) FailureDetail() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	if r.OverallPass {
		return ""
	}
	var parts []string
	for _, o := range r.Outcomes {
		if !o.Passed {
			parts = append(parts, fmt.Sprintf("%s %s: %s", o.Rule.Facet, o.Rule.Op, o.Detail))
		}
	}
	if len(parts) == 0 {
		return "status code mismatch"
	}
	return joinDetails(parts)
}

func joinDetails(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += "; " + p
	}
	return out
}

// Runner drives one full execution cycle over a table of test cases:
// load, execute against the system under test, evaluate, write back.
type Runner struct {
	table   *bitable.Client
	builder *http.Builder
	client  *http.Client
	writer  *writeback.Writer
	cfg     Config
	log     *logrus.Entry
}

func New(table *bitable.Client, builder *http.Builder, client *http.Client, writer *writeback.Writer, cfg Config, log *logrus.Logger) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if log == nil {
		log = logrus.New()
	}
	return &Runner{
		table:   table,
		builder: builder,
		client:  client,
		writer:  writer,
		cfg:     cfg,
		log:     log.WithField("component", "runner"),
	}
}

// Run executes every valid test case in the table. Only an
// authentication failure against the table backend aborts the run;
// anything else degrades to a per-case recorded outcome.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := NewSummary()

	r.log.WithField("run_id", summary.RunID).Info("starting run")

	records, err := r.table.AllRecords(ctx, r.cfg.TableID)
	if err != nil {
		return nil, fmt.Errorf("loading test cases: %w", err)
	}

	cases, verrs := testcase.LoadAll(records)
	summary.ValidationErrors = verrs
	for _, verr := range verrs {
		r.log.WithField("record", verr.RecordID).Warn(verr.Error())
	}

	results := r.executePool(ctx, cases)
	summary.Results = results

	// Write-back proceeds even when the run context was cancelled:
	// completed cases would otherwise leave stale rows behind.
	writeCtx := context.WithoutCancel(ctx)
	if err := r.writeBack(writeCtx, results, verrs); err != nil {
		if bitable.IsAuthError(err) {
			return nil, err
		}
		summary.WriteBackErr = err
		r.log.WithError(err).Error("write-back incomplete")
	}

	summary.Finish(time.Since(start))
	r.log.WithFields(logrus.Fields{
		"total":  summary.Total(),
		"passed": summary.Passed,
		"failed": summary.Failed,
		"errors": summary.Errored,
	}).Info("run complete")

	return summary, nil
}

// executePool fans the cases out over a bounded worker pool. With
// concurrency 1 execution is strictly sequential. Stage order within a
// case is always load -> build -> call -> evaluate; no ordering is
// promised across cases.
func (r *Runner) executePool(ctx context.Context, cases []*testcase.TestCase) []*ExecutionResult {
	results := make([]*ExecutionResult, len(cases))
	sem := make(chan struct{}, r.cfg.Concurrency)
	var wg sync.WaitGroup

	for i, tc := range cases {
		// Stop dequeuing on cancellation; in-flight calls run to their
		// own timeout rather than being killed mid-read.
		if ctx.Err() != nil {
			results[i] = &ExecutionResult{
				TestCaseID: tc.RecordID,
				Name:       tc.Name,
				Stage:      StageFailed,
				Err:        ctx.Err(),
			}
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, tc *testcase.TestCase) {
			defer wg.Done()
			defer func() { <-sem }()

			results[idx] = r.executeCase(ctx, tc)

			if r.cfg.RequestDelay > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(r.cfg.RequestDelay):
				}
			}
		}(i, tc)
	}

	wg.Wait()
	return results
}

// executeCase runs one case through build -> request -> evaluate.
func (r *Runner) executeCase(ctx context.Context, tc *testcase.TestCase) *ExecutionResult {
	result := &ExecutionResult{
		TestCaseID: tc.RecordID,
		Name:       tc.Name,
		Stage:      StageLoaded,
	}
	log := r.log.WithField("case", tc.Name)

	req, err := r.builder.Build(tc)
	if err != nil {
		result.Stage = StageFailed
		result.Err = err
		log.WithError(err).Warn("building request failed")
		return result
	}
	if r.cfg.RequestTimeout > 0 {
		req.Timeout = r.cfg.RequestTimeout
	}

	resp, err := r.client.Do(ctx, req)
	if err != nil {
		result.Stage = StageFailed
		result.Err = err
		log.WithError(err).Warn("request failed")
		return result
	}
	result.Stage = StageRequested
	result.Duration = resp.Duration
	result.ActualStatus = resp.StatusCode
	result.ActualBody = resp.BodyString()

	result.Outcomes = assertions.Evaluate(tc.Rules, resp)
	result.OverallPass = assertions.Verdict(tc.ExpectedStatus, resp, result.Outcomes)
	result.Stage = StageEvaluated

	if result.OverallPass {
		log.WithField("status", resp.StatusCode).Debug("case passed")
	} else {
		log.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"detail": result.FailureDetail(),
		}).Info("case failed")
	}
	return result
}

// writeBack persists execution outcomes and validation failures in one
// best-effort batch. Rows that fail to write are reported but never
// re-executed.
func (r *Runner) writeBack(ctx context.Context, results []*ExecutionResult, verrs []*testcase.ValidationError) error {
	wbResults := make([]writeback.Result, 0, len(results)+len(verrs))

	for _, res := range results {
		wb := writeback.Result{
			RecordID:     res.TestCaseID,
			ActualStatus: res.ActualStatus,
			ActualBody:   res.ActualBody,
			Passed:       res.OverallPass,
		}
		if res.Err != nil {
			wb.ExecError = res.Err.Error()
		} else if !res.OverallPass {
			wb.Detail = res.FailureDetail()
		}
		wbResults = append(wbResults, wb)
	}

	// Invalid rows get written too, so the table shows why they never ran.
	for _, verr := range verrs {
		wbResults = append(wbResults, writeback.Result{
			RecordID:  verr.RecordID,
			Passed:    false,
			ExecError: verr.Error(),
		})
	}

	err := r.writer.WriteBatch(ctx, wbResults)
	if err == nil {
		for _, res := range results {
			if res.Stage != StageFailed {
				res.Stage = StageWritten
			}
		}
		return nil
	}

	// Attach row-level write errors to their results for the summary.
	var batchErr *writeback.BatchError
	if errors.As(err, &batchErr) {
		for _, res := range results {
			if rowErr, ok := batchErr.Failed[res.TestCaseID]; ok {
				res.WriteErr = rowErr
			} else if res.Stage != StageFailed {
				res.Stage = StageWritten
			}
		}
	}
	return err
}
