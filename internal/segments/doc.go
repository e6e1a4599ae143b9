// Package segments holds the pending-segment ledger, the grouping pass, and
// the overlap guard.
//
// None of the types here are safe for concurrent use. The coordinator owns one
// Ledger and one Guard per session and is the only goroutine that touches
// them.
package segments
