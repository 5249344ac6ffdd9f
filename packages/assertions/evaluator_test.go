package assertions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larktools/bitrunner/packages/http"
	"github.com/larktools/bitrunner/packages/testcase"
)

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       []byte(body),
	}
}

func TestEvaluate_StatusCodeEquals(t *testing.T) {
	rules := testcase.ParseRules(`{"status_code": "== 200"}`)

	outcomes := Evaluate(rules, jsonResponse(200, `{}`))
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Passed)
	assert.Empty(t, outcomes[0].Detail)

	outcomes = Evaluate(rules, jsonResponse(500, `{}`))
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Passed)
	assert.Equal(t, "expected 200 got 500", outcomes[0].Detail)
}

func TestEvaluate_BodyPath(t *testing.T) {
	resp := jsonResponse(200, `{"data": {"code": 0, "user": {"name": "alice", "age": 30}}}`)

	tests := []struct {
		rule   string
		passed bool
		detail string
	}{
		{"data.code == 0", true, ""},
		{"data.user.name == alice", true, ""},
		{"data.user.age > 18", true, ""},
		{"data.user.age <= 30", true, ""},
		{"data.user.name exists", true, ""},
		{"data.user.email not_exists", true, ""},
		{"data.missing == 1", false, "path not found"},
		{"data.missing exists", false, "path not found"},
		{"data.code == 1", false, "expected 1 got 0"},
	}

	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			rules := testcase.ParseRules(tt.rule)
			require.Len(t, rules, 1)

			outcomes := Evaluate(rules, resp)
			require.Len(t, outcomes, 1)
			assert.Equal(t, tt.passed, outcomes[0].Passed)
			if tt.detail != "" {
				assert.Equal(t, tt.detail, outcomes[0].Detail)
			}
		})
	}
}

func TestEvaluate_BracketIndexing(t *testing.T) {
	resp := jsonResponse(200, `{"items": [{"id": 7}, {"id": 8}]}`)

	outcomes := Evaluate(testcase.ParseRules("items[1].id == 8"), resp)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Passed)
}

func TestEvaluate_HeaderFacet(t *testing.T) {
	resp := jsonResponse(200, `{}`)

	outcomes := Evaluate(testcase.ParseRules("header Content-Type contains json"), resp)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Passed)

	outcomes = Evaluate(testcase.ParseRules("header X-Missing == x"), resp)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Passed)
	assert.Contains(t, outcomes[0].Detail, "not present")
}

func TestEvaluate_WholeBodyFacet(t *testing.T) {
	resp := &http.Response{StatusCode: 200, Body: []byte("pong")}

	outcomes := Evaluate(testcase.ParseRules("body == pong"), resp)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Passed)
}

func TestEvaluate_NonJSONBody(t *testing.T) {
	resp := &http.Response{StatusCode: 200, Body: []byte("<html></html>")}

	outcomes := Evaluate(testcase.ParseRules("data.code == 0"), resp)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Passed)
	assert.Equal(t, "response body is not JSON", outcomes[0].Detail)
}

func TestEvaluate_Contains(t *testing.T) {
	resp := jsonResponse(200, `{"msg": "operation successful"}`)

	outcomes := Evaluate(testcase.ParseRules("msg contains success"), resp)
	assert.True(t, outcomes[0].Passed)

	outcomes = Evaluate(testcase.ParseRules("msg not_contains error"), resp)
	assert.True(t, outcomes[0].Passed)

	outcomes = Evaluate(testcase.ParseRules("msg contains failure"), resp)
	assert.False(t, outcomes[0].Passed)
	assert.Contains(t, outcomes[0].Detail, "to contain")
}

func TestEvaluate_Matches(t *testing.T) {
	resp := jsonResponse(200, `{"id": "usr_a1b2c3"}`)

	outcomes := Evaluate(testcase.ParseRules(`id matches ^usr_[a-z0-9]+$`), resp)
	assert.True(t, outcomes[0].Passed)

	outcomes = Evaluate(testcase.ParseRules(`id matches ^ord_`), resp)
	assert.False(t, outcomes[0].Passed)
}

func TestEvaluate_MatchesInvalidPattern(t *testing.T) {
	resp := jsonResponse(200, `{"id": "x"}`)

	outcomes := Evaluate(testcase.ParseRules(`id matches [unclosed`), resp)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Passed)
	assert.Contains(t, outcomes[0].Detail, "invalid regex")
}

func TestEvaluate_Schema(t *testing.T) {
	resp := jsonResponse(200, `{"data": {"id": 1, "name": "alice"}}`)

	outcomes := Evaluate(testcase.ParseRules(`data schema {"type": "object", "required": ["id", "name"]}`), resp)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Passed, outcomes[0].Detail)

	outcomes = Evaluate(testcase.ParseRules(`data schema {"type": "object", "required": ["email"]}`), resp)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Passed)
	assert.Contains(t, outcomes[0].Detail, "schema validation failed")
}

func TestEvaluate_SchemaOnWholeBody(t *testing.T) {
	resp := jsonResponse(200, `{"id": 1}`)

	outcomes := Evaluate(testcase.ParseRules(`body schema {"type": "object", "required": ["id"]}`), resp)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Passed, outcomes[0].Detail)
}

func TestEvaluate_MalformedRuleIsolated(t *testing.T) {
	resp := jsonResponse(200, `{"code": 0}`)
	rules := testcase.ParseRules("status_code == 200\ncode ~= 0\ncode == 0")

	outcomes := Evaluate(rules, resp)

	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[0].Passed)
	assert.False(t, outcomes[1].Passed)
	assert.Contains(t, outcomes[1].Detail, "malformed rule")
	assert.True(t, outcomes[2].Passed)
}

func TestEvaluate_Deterministic(t *testing.T) {
	resp := jsonResponse(200, `{"data": {"code": 0}}`)
	rules := testcase.ParseRules(`{"status_code": "== 200", "data.code": "== 0", "data.missing": "exists"}`)

	first := Evaluate(rules, resp)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Evaluate(rules, resp))
	}
}

func TestVerdict(t *testing.T) {
	resp := jsonResponse(200, `{"code": 0}`)

	// no rules: status comparison alone decides
	assert.True(t, Verdict(200, resp, nil))
	assert.False(t, Verdict(201, resp, nil))

	passing := Evaluate(testcase.ParseRules("code == 0"), resp)
	failing := Evaluate(testcase.ParseRules("code == 1"), resp)

	assert.True(t, Verdict(200, resp, passing))
	assert.False(t, Verdict(200, resp, failing))
	// rules pass but status mismatches
	assert.False(t, Verdict(204, resp, passing))
}

func TestEvaluate_TopLevelFieldNotUnderPath(t *testing.T) {
	// "code" exists at the top level only; "data.code" must not resolve to it.
	resp := jsonResponse(200, `{"code": "00000", "data": {}}`)
	rules := testcase.ParseRules(`{"data.code": "== \"00000\""}`)

	outcomes := Evaluate(rules, resp)

	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Passed)
	assert.Equal(t, "path not found", outcomes[0].Detail)
	assert.False(t, Verdict(200, resp, outcomes))
}

func TestEvaluate_NumericStringCoercion(t *testing.T) {
	resp := jsonResponse(200, `{"count": "42"}`)

	outcomes := Evaluate(testcase.ParseRules("count == 42"), resp)
	assert.True(t, outcomes[0].Passed)

	outcomes = Evaluate(testcase.ParseRules("count >= 40"), resp)
	assert.True(t, outcomes[0].Passed)
}

func TestToGJSONPath(t *testing.T) {
	assert.Equal(t, "items.0.id", toGJSONPath("items[0].id"))
	assert.Equal(t, "data.user.name", toGJSONPath("data.user.name"))
	assert.Equal(t, "0.id", toGJSONPath("[0].id"))
}
