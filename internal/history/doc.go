// Package history persists an audit trail of merge sessions in SQLite.
//
// Every session gets a row when it starts and is stamped when it stops. Each
// finished merge job, and each group discarded for overlapping an earlier
// merge, becomes a record carrying its range, sources, output, and error.
// History is write-only from the session's point of view: it is never replayed
// into the grouping state of a later session.
//
// The schema is applied from embedded migrations tracked in schema_migrations.
package history
