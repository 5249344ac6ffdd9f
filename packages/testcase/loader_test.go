package testcase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larktools/bitrunner/packages/bitable"
)

func validRecord() bitable.Record {
	return bitable.Record{
		ID: "rec1",
		Fields: map[string]any{
			FieldName:           "API-001",
			FieldPath:           "/api/users",
			FieldMethod:         "POST",
			FieldHeaders:        `{"X-Env": "staging"}`,
			FieldBody:           `{"name": "alice"}`,
			FieldExpectedStatus: float64(201),
			FieldRules:          "status_code == 201",
		},
	}
}

func TestLoad_Valid(t *testing.T) {
	tc, err := Load(validRecord())

	require.NoError(t, err)
	assert.Equal(t, "rec1", tc.RecordID)
	assert.Equal(t, "API-001", tc.Name)
	assert.Equal(t, "/api/users", tc.Path)
	assert.Equal(t, MethodPost, tc.Method)
	assert.Equal(t, map[string]string{"X-Env": "staging"}, tc.Headers)
	assert.Equal(t, `{"name": "alice"}`, tc.Body)
	assert.Equal(t, 201, tc.ExpectedStatus)
	require.Len(t, tc.Rules, 1)
	assert.Equal(t, FacetStatusCode, tc.Rules[0].Facet)
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	for _, field := range []string{FieldName, FieldPath, FieldMethod, FieldExpectedStatus} {
		t.Run(field, func(t *testing.T) {
			rec := validRecord()
			delete(rec.Fields, field)

			_, err := Load(rec)

			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "rec1", verr.RecordID)
			assert.Equal(t, field, verr.Field)
			assert.Contains(t, verr.Reason, "missing")
		})
	}
}

func TestLoad_MethodCaseInsensitive(t *testing.T) {
	rec := validRecord()
	rec.Fields[FieldMethod] = " delete "

	tc, err := Load(rec)

	require.NoError(t, err)
	assert.Equal(t, MethodDelete, tc.Method)
}

func TestLoad_UnsupportedMethod(t *testing.T) {
	rec := validRecord()
	rec.Fields[FieldMethod] = "TRACE"

	_, err := Load(rec)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, FieldMethod, verr.Field)
}

func TestLoad_PathMustBeRooted(t *testing.T) {
	rec := validRecord()
	rec.Fields[FieldPath] = "api/users"

	_, err := Load(rec)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, FieldPath, verr.Field)
}

func TestLoad_AbsoluteURLAllowed(t *testing.T) {
	rec := validRecord()
	rec.Fields[FieldPath] = "https://other.example.com/health"

	tc, err := Load(rec)

	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com/health", tc.Path)
}

func TestLoad_ExpectedStatusCoercion(t *testing.T) {
	rec := validRecord()
	rec.Fields[FieldExpectedStatus] = "200"

	tc, err := Load(rec)

	require.NoError(t, err)
	assert.Equal(t, 200, tc.ExpectedStatus)
}

func TestLoad_ExpectedStatusOutOfRange(t *testing.T) {
	rec := validRecord()
	rec.Fields[FieldExpectedStatus] = float64(799)

	_, err := Load(rec)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, FieldExpectedStatus, verr.Field)
}

func TestLoad_ExpectedStatusNotANumber(t *testing.T) {
	rec := validRecord()
	rec.Fields[FieldExpectedStatus] = "OK"

	_, err := Load(rec)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "not a number")
}

func TestLoad_RichTextCells(t *testing.T) {
	rec := validRecord()
	rec.Fields[FieldPath] = []any{
		map[string]any{"text": "/api/"},
		map[string]any{"text": "users"},
	}

	tc, err := Load(rec)

	require.NoError(t, err)
	assert.Equal(t, "/api/users", tc.Path)
}

func TestLoad_LenientJSONBody(t *testing.T) {
	rec := validRecord()
	rec.Fields[FieldBody] = `{'name': 'alice', 'tags': ['a', 'b',],}`

	tc, err := Load(rec)

	require.NoError(t, err)
	assert.JSONEq(t, `{"name": "alice", "tags": ["a", "b"]}`, tc.Body)
}

func TestLoad_UnparseableBody(t *testing.T) {
	rec := validRecord()
	rec.Fields[FieldBody] = "not json at all {{{"

	_, err := Load(rec)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, FieldBody, verr.Field)
}

func TestLoad_HeaderLines(t *testing.T) {
	rec := validRecord()
	rec.Fields[FieldHeaders] = "Authorization: Bearer tok\nX-Env: staging"

	tc, err := Load(rec)

	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", tc.Headers["Authorization"])
	assert.Equal(t, "staging", tc.Headers["X-Env"])
}

func TestLoad_HeadersOptional(t *testing.T) {
	rec := validRecord()
	delete(rec.Fields, FieldHeaders)
	delete(rec.Fields, FieldBody)
	delete(rec.Fields, FieldRules)

	tc, err := Load(rec)

	require.NoError(t, err)
	assert.Empty(t, tc.Headers)
	assert.Empty(t, tc.Body)
	assert.Empty(t, tc.Rules)
}

func TestLoadAll_PartitionsInvalidRows(t *testing.T) {
	bad := validRecord()
	bad.ID = "rec-bad"
	delete(bad.Fields, FieldPath)

	cases, verrs := LoadAll([]bitable.Record{validRecord(), bad})

	require.Len(t, cases, 1)
	require.Len(t, verrs, 1)
	assert.Equal(t, "rec1", cases[0].RecordID)
	assert.Equal(t, "rec-bad", verrs[0].RecordID)
}

func TestLoadAll_OneBadRowDoesNotAbort(t *testing.T) {
	records := []bitable.Record{validRecord()}
	for i := 0; i < 3; i++ {
		rec := validRecord()
		rec.ID = "rec-missing-method"
		delete(rec.Fields, FieldMethod)
		records = append(records, rec)
	}

	cases, verrs := LoadAll(records)

	assert.Len(t, cases, 1)
	assert.Len(t, verrs, 3)
}
