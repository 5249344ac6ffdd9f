package testcase

import (
	"fmt"
	"strconv"
	"strings"
)

// Source table column names. The authoring table is maintained in
// Chinese by the QA team; these are the canonical field labels.
const (
	FieldName           = "接口编号"
	FieldPath           = "接口路径"
	FieldMethod         = "请求方法"
	FieldHeaders        = "请求头"
	FieldBody           = "请求体"
	FieldExpectedStatus = "预期状态码"
	FieldRules          = "断言规则"
)

// Method is the fixed set of HTTP methods a test case may declare.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodPatch  Method = "PATCH"
	MethodDelete Method = "DELETE"
)

// ParseMethod normalizes and validates a method cell.
func ParseMethod(s string) (Method, bool) {
	switch m := Method(strings.ToUpper(strings.TrimSpace(s))); m {
	case MethodGet, MethodPost, MethodPut, MethodPatch, MethodDelete:
		return m, true
	default:
		return "", false
	}
}

// TestCase is one row's contract for a single API call, fully typed.
// Nothing loosely typed from the table survives past the loader.
type TestCase struct {
	RecordID       string
	Name           string
	Path           string
	Method         Method
	Headers        map[string]string
	Body           string
	ExpectedStatus int
	Rules          []Rule
}

// CellKind tags the loosely typed value variants a Bitable cell can hold.
type CellKind int

const (
	CellMissing CellKind = iota
	CellText
	CellNumber
	CellBool
)

// Cell is the tagged union modeling one raw cell value at the loader
// boundary.
type Cell struct {
	Kind   CellKind
	Text   string
	Number float64
	Bool   bool
}

// cellOf converts the raw JSON-decoded cell value into a Cell. Text
// fields may arrive as rich-text segment lists; those are flattened.
func cellOf(v any) Cell {
	switch val := v.(type) {
	case nil:
		return Cell{Kind: CellMissing}
	case string:
		return Cell{Kind: CellText, Text: val}
	case float64:
		return Cell{Kind: CellNumber, Number: val}
	case bool:
		return Cell{Kind: CellBool, Bool: val}
	case map[string]any:
		if t, ok := val["text"].(string); ok {
			return Cell{Kind: CellText, Text: t}
		}
		return Cell{Kind: CellText, Text: fmt.Sprintf("%v", val)}
	case []any:
		var sb strings.Builder
		for _, seg := range val {
			c := cellOf(seg)
			if c.Kind == CellText {
				sb.WriteString(c.Text)
			}
		}
		return Cell{Kind: CellText, Text: sb.String()}
	default:
		return Cell{Kind: CellText, Text: fmt.Sprintf("%v", val)}
	}
}

// AsString returns the textual value, coercing numbers.
func (c Cell) AsString() (string, bool) {
	switch c.Kind {
	case CellText:
		return strings.TrimSpace(c.Text), true
	case CellNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64), true
	default:
		return "", false
	}
}

// AsInt returns the numeric value, coercing numeric text.
func (c Cell) AsInt() (int, bool) {
	switch c.Kind {
	case CellNumber:
		return int(c.Number), true
	case CellText:
		n, err := strconv.Atoi(strings.TrimSpace(c.Text))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func (c Cell) Present() bool {
	if c.Kind == CellMissing {
		return false
	}
	if c.Kind == CellText {
		return strings.TrimSpace(c.Text) != ""
	}
	return true
}
