package testcase

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/larktools/bitrunner/packages/bitable"
)

// ValidationError marks one row as unexecutable, tagged with the row id
// and the offending column. It is a value the orchestrator records and
// skips, never a reason to abort the batch.
type ValidationError struct {
	RecordID string
	Field    string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("record %s: field %q: %s", e.RecordID, e.Field, e.Reason)
}

// Load converts one raw row into a typed TestCase. All coercion from
// loose cell values happens here; the returned case carries only
// strongly typed fields.
func Load(rec bitable.Record) (*TestCase, error) {
	cells := make(map[string]Cell, len(rec.Fields))
	for name, raw := range rec.Fields {
		cells[name] = cellOf(raw)
	}

	invalid := func(field, reason string) error {
		return &ValidationError{RecordID: rec.ID, Field: field, Reason: reason}
	}

	name, _ := cells[FieldName].AsString()
	if name == "" {
		return nil, invalid(FieldName, "required field is missing")
	}

	path, _ := cells[FieldPath].AsString()
	switch {
	case path == "":
		return nil, invalid(FieldPath, "required field is missing")
	case !strings.HasPrefix(path, "/") && !strings.HasPrefix(path, "http"):
		return nil, invalid(FieldPath, fmt.Sprintf("must start with / (got %q)", path))
	}

	methodText, _ := cells[FieldMethod].AsString()
	if methodText == "" {
		return nil, invalid(FieldMethod, "required field is missing")
	}
	method, ok := ParseMethod(methodText)
	if !ok {
		return nil, invalid(FieldMethod, fmt.Sprintf("unsupported method %q", methodText))
	}

	if !cells[FieldExpectedStatus].Present() {
		return nil, invalid(FieldExpectedStatus, "required field is missing")
	}
	status, ok := cells[FieldExpectedStatus].AsInt()
	if !ok {
		text, _ := cells[FieldExpectedStatus].AsString()
		return nil, invalid(FieldExpectedStatus, fmt.Sprintf("not a number: %q", text))
	}
	if status < 100 || status > 599 {
		return nil, invalid(FieldExpectedStatus, fmt.Sprintf("not a valid HTTP status: %d", status))
	}

	headers, err := parseHeaders(cells[FieldHeaders])
	if err != nil {
		return nil, invalid(FieldHeaders, err.Error())
	}

	body, err := parseBody(cells[FieldBody])
	if err != nil {
		return nil, invalid(FieldBody, err.Error())
	}

	rulesText, _ := cells[FieldRules].AsString()

	return &TestCase{
		RecordID:       rec.ID,
		Name:           name,
		Path:           path,
		Method:         method,
		Headers:        headers,
		Body:           body,
		ExpectedStatus: status,
		Rules:          ParseRules(rulesText),
	}, nil
}

// LoadAll converts a batch of rows, partitioning into executable cases
// and per-row validation errors.
func LoadAll(records []bitable.Record) ([]*TestCase, []*ValidationError) {
	var (
		cases []*TestCase
		verrs []*ValidationError
	)
	for _, rec := range records {
		tc, err := Load(rec)
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				verrs = append(verrs, verr)
			} else {
				verrs = append(verrs, &ValidationError{RecordID: rec.ID, Reason: err.Error()})
			}
			continue
		}
		cases = append(cases, tc)
	}
	return cases, verrs
}

func parseHeaders(cell Cell) (map[string]string, error) {
	text, ok := cell.AsString()
	if !ok || text == "" {
		return map[string]string{}, nil
	}

	if fixed, ok := coerceJSON(text); ok {
		var loose map[string]any
		if err := json.Unmarshal([]byte(fixed), &loose); err == nil {
			headers := make(map[string]string, len(loose))
			for k, v := range loose {
				headers[k] = fmt.Sprintf("%v", v)
			}
			return headers, nil
		}
	}

	// "Key: Value" lines are a tolerated authoring shorthand.
	headers := map[string]string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		k, v, found := strings.Cut(line, ":")
		if !found {
			return nil, fmt.Errorf("not valid JSON or key:value lines: %q", line)
		}
		headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return headers, nil
}

func parseBody(cell Cell) (string, error) {
	text, ok := cell.AsString()
	if !ok || text == "" {
		return "", nil
	}
	fixed, ok := coerceJSON(text)
	if !ok {
		return "", fmt.Errorf("not valid JSON")
	}
	return fixed, nil
}

var (
	trailingCommaObj = regexp.MustCompile(`,\s*}`)
	trailingCommaArr = regexp.MustCompile(`,\s*]`)
)

// coerceJSON accepts the text as-is when valid, otherwise applies the
// common spreadsheet-authoring fixes (single quotes, trailing commas)
// before giving up. Returns the usable form and whether it parses.
func coerceJSON(text string) (string, bool) {
	if json.Valid([]byte(text)) {
		return text, true
	}
	fixed := strings.ReplaceAll(strings.TrimSpace(text), "'", `"`)
	fixed = trailingCommaObj.ReplaceAllString(fixed, "}")
	fixed = trailingCommaArr.ReplaceAllString(fixed, "]")
	if json.Valid([]byte(fixed)) {
		return fixed, true
	}
	return "", false
}
