package output

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/larktools/bitrunner/packages/runner"
)

// Report is the machine-readable run artifact, suitable for CI archival
// or diffing between runs.
type Report struct {
	RunID       string         `json:"run_id"`
	GeneratedAt string         `json:"generated_at"`
	Duration    string         `json:"duration"`
	Total       int            `json:"total"`
	Passed      int            `json:"passed"`
	Failed      int            `json:"failed"`
	Errors      int            `json:"errors"`
	Invalid     int            `json:"invalid"`
	PassRate    float64        `json:"pass_rate"`
	Latency     ReportLatency  `json:"latency_ms"`
	Cases       []ReportCase   `json:"cases"`
	InvalidRows []ReportRow    `json:"invalid_rows,omitempty"`
	WriteBack   string         `json:"write_back_error,omitempty"`
}

type ReportLatency struct {
	P50 int64 `json:"p50"`
	P95 int64 `json:"p95"`
	P99 int64 `json:"p99"`
	Max int64 `json:"max"`
}

// ReportCase is one executed case's outcome.
type ReportCase struct {
	RecordID     string `json:"record_id"`
	Name         string `json:"name"`
	Stage        string `json:"stage"`
	Passed       bool   `json:"passed"`
	ActualStatus int    `json:"actual_status,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
	Detail       string `json:"detail,omitempty"`
	WriteError   string `json:"write_error,omitempty"`
}

// ReportRow is a row that never executed.
type ReportRow struct {
	RecordID string `json:"record_id"`
	Field    string `json:"field,omitempty"`
	Reason   string `json:"reason"`
}

// BuildReport flattens a run summary into the report shape.
func BuildReport(s *runner.Summary) *Report {
	r := &Report{
		RunID:       s.RunID,
		GeneratedAt: time.Now().Format(time.RFC3339),
		Duration:    s.Duration.String(),
		Total:       s.Total(),
		Passed:      s.Passed,
		Failed:      s.Failed,
		Errors:      s.Errored,
		Invalid:     s.Invalid,
		PassRate:    s.PassRate(),
		Latency: ReportLatency{
			P50: s.Latency.P50,
			P95: s.Latency.P95,
			P99: s.Latency.P99,
			Max: s.Latency.Max,
		},
	}

	for _, res := range s.Results {
		rc := ReportCase{
			RecordID:     res.TestCaseID,
			Name:         res.Name,
			Stage:        res.Stage.String(),
			Passed:       res.OverallPass,
			ActualStatus: res.ActualStatus,
			DurationMs:   res.Duration.Milliseconds(),
			Detail:       res.FailureDetail(),
		}
		if res.WriteErr != nil {
			rc.WriteError = res.WriteErr.Error()
		}
		r.Cases = append(r.Cases, rc)
	}

	for _, verr := range s.ValidationErrors {
		r.InvalidRows = append(r.InvalidRows, ReportRow{
			RecordID: verr.RecordID,
			Field:    verr.Field,
			Reason:   verr.Reason,
		})
	}

	if s.WriteBackErr != nil {
		r.WriteBack = s.WriteBackErr.Error()
	}
	return r
}

// WriteReport persists the report as pretty-printed JSON.
func WriteReport(path string, s *runner.Summary) error {
	data, err := json.MarshalIndent(BuildReport(s), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
