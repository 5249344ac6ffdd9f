package assertions

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"

	"github.com/larktools/bitrunner/packages/http"
	"github.com/larktools/bitrunner/packages/testcase"
)

// Outcome is the result of one rule against one response.
type Outcome struct {
	Rule   testcase.Rule
	Passed bool
	Detail string
}

// Evaluator checks parsed rules against a single response. It touches
// nothing but its inputs, so identical (rules, response) pairs always
// produce identical outcomes.
type Evaluator struct {
	resp     *http.Response
	bodyJSON gjson.Result
	hasJSON  bool
}

func NewEvaluator(resp *http.Response) *Evaluator {
	e := &Evaluator{resp: resp}
	if len(resp.Body) > 0 && json.Valid(resp.Body) {
		e.bodyJSON = gjson.ParseBytes(resp.Body)
		e.hasJSON = true
	}
	return e
}

// Evaluate runs every rule in order. A malformed or failing rule yields
// one failing outcome and never disturbs the evaluation of the others.
func Evaluate(rules []testcase.Rule, resp *http.Response) []Outcome {
	e := NewEvaluator(resp)
	outcomes := make([]Outcome, len(rules))
	for i, rule := range rules {
		outcomes[i] = e.Eval(rule)
	}
	return outcomes
}

// Verdict combines the status-code check with the rule outcomes. With no
// rules it reduces to the status comparison alone.
func Verdict(expectedStatus int, resp *http.Response, outcomes []Outcome) bool {
	if resp.StatusCode != expectedStatus {
		return false
	}
	for _, o := range outcomes {
		if !o.Passed {
			return false
		}
	}
	return true
}

func (e *Evaluator) Eval(rule testcase.Rule) Outcome {
	out := Outcome{Rule: rule}

	if rule.ParseErr != "" {
		out.Detail = "malformed rule: " + rule.ParseErr
		return out
	}

	actual, found, detail := e.actualValue(rule.Facet)

	switch rule.Op {
	case testcase.OpExists:
		out.Passed = found
		if !found {
			out.Detail = "path not found"
		}
		return out
	case testcase.OpNotExists:
		out.Passed = !found
		if found {
			out.Detail = "expected path to be absent"
		}
		return out
	}

	if !found {
		if detail == "" {
			detail = "path not found"
		}
		out.Detail = detail
		return out
	}

	out.Passed, out.Detail = compare(actual, rule.Op, rule.Operand)
	return out
}

// actualValue resolves a facet to its concrete response value. The
// detail return carries the reason when the facet cannot be resolved.
func (e *Evaluator) actualValue(facet string) (any, bool, string) {
	switch {
	case facet == testcase.FacetStatusCode:
		return e.resp.StatusCode, true, ""
	case strings.HasPrefix(facet, testcase.FacetHeaderPrefix):
		name := strings.TrimSpace(strings.TrimPrefix(facet, testcase.FacetHeaderPrefix))
		value := e.resp.Header(name)
		if value == "" {
			return nil, false, fmt.Sprintf("header %q not present", name)
		}
		return value, true, ""
	case facet == testcase.FacetBody:
		if len(e.resp.Body) == 0 {
			return nil, false, "response body is empty"
		}
		return e.resp.BodyString(), true, ""
	default:
		if !e.hasJSON {
			return nil, false, "response body is not JSON"
		}
		result := e.bodyJSON.Get(toGJSONPath(facet))
		if !result.Exists() {
			return nil, false, "path not found"
		}
		return result.Value(), true, ""
	}
}

// toGJSONPath converts bracket indexing to gjson dot notation,
// e.g. "items[0].id" -> "items.0.id".
var bracketIndex = regexp.MustCompile(`\[(\d+)\]`)

func toGJSONPath(path string) string {
	return strings.TrimPrefix(bracketIndex.ReplaceAllString(path, ".$1"), ".")
}

func compare(actual any, op testcase.Op, operand string) (bool, string) {
	switch op {
	case testcase.OpEquals:
		return equals(actual, operand)
	case testcase.OpNotEquals:
		if passed, _ := equals(actual, operand); passed {
			return false, fmt.Sprintf("expected not to equal %v", operand)
		}
		return true, ""
	case testcase.OpGreaterThan, testcase.OpGreaterOrEqual, testcase.OpLessThan, testcase.OpLessOrEqual:
		return compareNumeric(actual, op, operand)
	case testcase.OpContains:
		return contains(actual, operand)
	case testcase.OpNotContains:
		if passed, _ := contains(actual, operand); passed {
			return false, fmt.Sprintf("expected not to contain %q", operand)
		}
		return true, ""
	case testcase.OpMatches:
		return matches(actual, operand)
	case testcase.OpSchema:
		return validateSchema(actual, operand)
	default:
		return false, fmt.Sprintf("unknown operator: %v", op)
	}
}

func equals(actual any, operand string) (bool, string) {
	if aNum, aOk := toFloat64(actual); aOk {
		if eNum, eOk := toFloat64(operand); eOk && aNum == eNum {
			return true, ""
		}
	}
	actualStr := stringify(actual)
	if actualStr == operand {
		return true, ""
	}
	return false, fmt.Sprintf("expected %v got %v", operand, actualStr)
}

func compareNumeric(actual any, op testcase.Op, operand string) (bool, string) {
	aNum, aOk := toFloat64(actual)
	eNum, eOk := toFloat64(operand)
	if !aOk || !eOk {
		return false, fmt.Sprintf("cannot compare non-numeric values: %v %s %v", stringify(actual), op, operand)
	}

	var passed bool
	switch op {
	case testcase.OpGreaterThan:
		passed = aNum > eNum
	case testcase.OpGreaterOrEqual:
		passed = aNum >= eNum
	case testcase.OpLessThan:
		passed = aNum < eNum
	case testcase.OpLessOrEqual:
		passed = aNum <= eNum
	}
	if passed {
		return true, ""
	}
	return false, fmt.Sprintf("expected %v %s %v", stringify(actual), op, operand)
}

func contains(actual any, operand string) (bool, string) {
	if strings.Contains(stringify(actual), operand) {
		return true, ""
	}
	return false, fmt.Sprintf("expected %q to contain %q", stringify(actual), operand)
}

func matches(actual any, operand string) (bool, string) {
	pattern := strings.TrimSuffix(strings.TrimPrefix(operand, "/"), "/")
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Sprintf("invalid regex pattern: %v", err)
	}
	if re.MatchString(stringify(actual)) {
		return true, ""
	}
	return false, fmt.Sprintf("expected %q to match /%s/", stringify(actual), pattern)
}

// validateSchema checks the facet's value against an inline JSON Schema.
// A string value that is itself JSON (the whole-body facet) is validated
// as that document, not as a JSON string.
func validateSchema(actual any, operand string) (bool, string) {
	var doc []byte
	if s, ok := actual.(string); ok && json.Valid([]byte(s)) {
		doc = []byte(s)
	} else {
		var err error
		doc, err = json.Marshal(actual)
		if err != nil {
			return false, fmt.Sprintf("cannot encode value for schema check: %v", err)
		}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(operand),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return false, fmt.Sprintf("schema validation error: %v", err)
	}
	if result.Valid() {
		return true, ""
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return false, "schema validation failed: " + strings.Join(details, "; ")
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
