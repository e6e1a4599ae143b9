// Package logging assembles structured slog loggers and formatting helpers used
// across dashjoin components.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers that tag lines with merge job
// and request identifiers. A daemon session runs with a console handler on
// stdout teed into a JSON file under the log directory, and every record
// carries the session id.
//
// Prefer these constructors over hand-rolled slog setup so new components emit
// the same shape as the rest of the system.
package logging
