// Package assertions evaluates parsed rules against HTTP responses.
//
// Supported rule facets:
//   - Status code checks (status_code == 200)
//   - Header checks (header Content-Type contains json)
//   - Whole-body checks (body contains "success")
//   - Body field paths in gjson syntax (data.user.name exists)
//   - Inline JSON Schema validation (data schema {"type": "object"})
//
// Operators: ==, !=, >, >=, <, <=, contains, not_contains, matches,
// exists, not_exists, schema.
//
// Evaluation is pure: the same rules against the same response always
// yield the same outcomes, and one failing or malformed rule never
// affects the others.
package assertions
