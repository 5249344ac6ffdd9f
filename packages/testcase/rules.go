package testcase

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Op enumerates the assertion operators.
type Op int

const (
	OpInvalid Op = iota
	OpEquals
	OpNotEquals
	OpGreaterThan
	OpGreaterOrEqual
	OpLessThan
	OpLessOrEqual
	OpContains
	OpNotContains
	OpMatches
	OpExists
	OpNotExists
	OpSchema
)

var opNames = map[Op]string{
	OpEquals:         "==",
	OpNotEquals:      "!=",
	OpGreaterThan:    ">",
	OpGreaterOrEqual: ">=",
	OpLessThan:       "<",
	OpLessOrEqual:    "<=",
	OpContains:       "contains",
	OpNotContains:    "not_contains",
	OpMatches:        "matches",
	OpExists:         "exists",
	OpNotExists:      "not_exists",
	OpSchema:         "schema",
}

func (op Op) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return "invalid"
}

// Unary reports whether the operator takes no operand.
func (op Op) Unary() bool {
	return op == OpExists || op == OpNotExists
}

var opsByToken = map[string]Op{
	"==":           OpEquals,
	"!=":           OpNotEquals,
	">":            OpGreaterThan,
	">=":           OpGreaterOrEqual,
	"<":            OpLessThan,
	"<=":           OpLessOrEqual,
	"contains":     OpContains,
	"not_contains": OpNotContains,
	"matches":      OpMatches,
	"exists":       OpExists,
	"not_exists":   OpNotExists,
	"schema":       OpSchema,
}

// FacetStatusCode names the response status facet. Anything else is a
// header (with the "header " prefix) or a body field path in gjson syntax.
const (
	FacetStatusCode   = "status_code"
	FacetHeaderPrefix = "header "
	FacetBody         = "body"
)

// Rule is one parsed assertion: a response facet, an operator, and an
// operand. A malformed source rule is kept with ParseErr set so the
// evaluator can report exactly one failing entry for it without
// disturbing the rest of the set.
type Rule struct {
	Facet    string
	Op       Op
	Operand  string
	Raw      string
	ParseErr string
}

// ParseRules parses the assertion-rule cell. Two source shapes are
// accepted: a JSON object mapping facet to "operator operand" (document
// order preserved), or plain lines of "facet operator operand" separated
// by newlines or semicolons. Empty input yields no rules, which is a
// valid status-code-only test.
func ParseRules(text string) []Rule {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if strings.HasPrefix(text, "{") && gjson.Valid(text) {
		var rules []Rule
		gjson.Parse(text).ForEach(func(key, value gjson.Result) bool {
			rules = append(rules, parseExpr(key.String(), value.String(), fmt.Sprintf("%s: %s", key.String(), value.String())))
			return true
		})
		return rules
	}

	var rules []Rule
	for _, line := range splitRules(text) {
		facet, expr := splitFacet(line)
		if facet == "" {
			rules = append(rules, Rule{Raw: line, ParseErr: "missing facet"})
			continue
		}
		rules = append(rules, parseExpr(facet, expr, line))
	}
	return rules
}

func splitRules(text string) []string {
	var out []string
	for _, chunk := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '\n' || r == ';'
	}) {
		if chunk = strings.TrimSpace(chunk); chunk != "" {
			out = append(out, chunk)
		}
	}
	return out
}

// splitFacet peels the facet off a plain-form rule. A facet of the form
// "header X" spans two tokens; everything else is a single token.
func splitFacet(line string) (facet, rest string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", ""
	}
	take := 1
	if fields[0] == "header" && len(fields) > 1 {
		take = 2
	}
	// Cut by position in the original line: the facet tokens may be
	// separated by any run of whitespace.
	end := 0
	for _, f := range fields[:take] {
		end += strings.Index(line[end:], f) + len(f)
	}
	facet = strings.Join(fields[:take], " ")
	rest = strings.TrimSpace(line[end:])
	return facet, rest
}

func parseExpr(facet, expr, raw string) Rule {
	facet = strings.TrimSpace(facet)
	expr = strings.TrimSpace(expr)

	rule := Rule{Facet: facet, Raw: raw}
	if expr == "" {
		rule.ParseErr = "missing operator"
		return rule
	}

	opToken := expr
	operand := ""
	if idx := strings.IndexAny(expr, " \t"); idx >= 0 {
		opToken = expr[:idx]
		operand = strings.TrimSpace(expr[idx+1:])
	}

	op, ok := opsByToken[opToken]
	if !ok {
		rule.ParseErr = fmt.Sprintf("unsupported operator %q", opToken)
		return rule
	}
	rule.Op = op

	if op.Unary() {
		// Trailing text after exists/not_exists is author noise, ignore it.
		return rule
	}
	if operand == "" {
		rule.ParseErr = fmt.Sprintf("operator %q requires an operand", opToken)
		return rule
	}
	rule.Operand = unquote(operand)
	return rule
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
