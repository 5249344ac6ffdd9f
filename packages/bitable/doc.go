// Package bitable is a minimal client for the Lark Base (Bitable) open
// API: cursor-paginated record listing, single and batch record updates,
// and field management. Calls are rate limited with a shared token
// bucket and transient failures are retried with jittered backoff.
package bitable
