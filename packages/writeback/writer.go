package writeback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/larktools/bitrunner/packages/bitable"
)

// Write-back column names in the authoring table.
const (
	FieldActualStatus = "响应状态码"
	FieldActualBody   = "响应体"
	FieldPassed       = "是否通过"
	FieldFailReason   = "失败原因"
)

const (
	// PassValue and FailValue are the single-select options of 是否通过.
	PassValue = "PASS"
	FailValue = "FAIL"

	// DefaultBodyLimit caps the stored response body; Bitable text cells
	// degrade badly past a few thousand characters.
	DefaultBodyLimit = 2000

	// maxBatchSize is the backend's ceiling for one batch_update call.
	maxBatchSize = 500

	truncationMark = "...(内容被截断)"
)

// Result is the write-back view of one executed case: exactly the
// values that land in the row, keyed by the backend record id.
type Result struct {
	RecordID     string
	ActualStatus int
	ActualBody   string
	Passed       bool
	// Detail explains a non-passing verdict (failing rules, status
	// mismatch). ExecError is set instead when the request never
	// completed; the two are kept apart so the table distinguishes
	// "execution error" from "assertion failure".
	Detail    string
	ExecError string
}

// BatchError reports the rows of a batch that could not be written.
// Rows absent from Failed were persisted successfully.
type BatchError struct {
	Failed map[string]error
}

func (e *BatchError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return fmt.Sprintf("write-back failed for %d record(s): %v", len(ids), ids)
}

// Writer persists execution results into their originating rows.
// Writes overwrite prior values, so re-running a case is idempotent.
type Writer struct {
	table     *bitable.Client
	tableID   string
	bodyLimit int
	log       *logrus.Entry
}

func NewWriter(table *bitable.Client, tableID string, log *logrus.Logger) *Writer {
	if log == nil {
		log = logrus.New()
	}
	return &Writer{
		table:     table,
		tableID:   tableID,
		bodyLimit: DefaultBodyLimit,
		log:       log.WithField("component", "writeback"),
	}
}

// Fields maps a result onto the write-back column set.
func (w *Writer) Fields(r Result) map[string]any {
	passed := PassValue
	if !r.Passed {
		passed = FailValue
	}

	body := formatBody(r.ActualBody, w.bodyLimit)
	reason := r.Detail
	if r.ExecError != "" {
		reason = "执行错误: " + r.ExecError
		if body == "" {
			// No response was captured; the error stands in for the body.
			body = "错误: " + r.ExecError
		}
	}

	return map[string]any{
		FieldActualStatus: strconv.Itoa(r.ActualStatus),
		FieldActualBody:   body,
		FieldPassed:       passed,
		FieldFailReason:   reason,
	}
}

// Write persists a single result.
func (w *Writer) Write(ctx context.Context, r Result) error {
	if r.RecordID == "" {
		return fmt.Errorf("writeback: result has no record id")
	}
	if err := w.table.UpdateRecord(ctx, w.tableID, r.RecordID, w.Fields(r)); err != nil {
		return fmt.Errorf("writeback: record %s: %w", r.RecordID, err)
	}
	return nil
}

// WriteBatch persists a group of results with as few backend calls as
// possible. Rows are independent: when a batch call fails, every row in
// it is retried individually and only the rows that still fail are
// reported, as a *BatchError.
func (w *Writer) WriteBatch(ctx context.Context, results []Result) error {
	failed := map[string]error{}

	for start := 0; start < len(results); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(results) {
			end = len(results)
		}
		chunk := results[start:end]

		updates := make([]bitable.RecordUpdate, 0, len(chunk))
		for _, r := range chunk {
			if r.RecordID == "" {
				continue
			}
			updates = append(updates, bitable.RecordUpdate{
				RecordID: r.RecordID,
				Fields:   w.Fields(r),
			})
		}
		if len(updates) == 0 {
			continue
		}

		err := w.table.BatchUpdateRecords(ctx, w.tableID, updates)
		if err == nil {
			continue
		}
		if bitable.IsAuthError(err) {
			return err
		}

		w.log.WithError(err).Warn("batch update failed, retrying rows individually")
		for _, r := range chunk {
			if r.RecordID == "" {
				continue
			}
			if rowErr := w.Write(ctx, r); rowErr != nil {
				if bitable.IsAuthError(rowErr) {
					return rowErr
				}
				failed[r.RecordID] = rowErr
			}
		}
	}

	if len(failed) > 0 {
		return &BatchError{Failed: failed}
	}
	return nil
}

// formatBody pretty-prints JSON bodies for readability in the table and
// truncates anything beyond the storage limit.
func formatBody(body string, limit int) string {
	if body == "" {
		return ""
	}

	if json.Valid([]byte(body)) {
		var buf bytes.Buffer
		if err := json.Indent(&buf, []byte(body), "", "  "); err == nil {
			body = buf.String()
		}
	}

	if len(body) > limit {
		// Back off to a rune boundary so multi-byte text is never cut
		// mid-character.
		cut := limit
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		return body[:cut] + truncationMark
	}
	return body
}
