// Package daemon runs one dashjoin session.
//
// A Session captures grouping settings from the config, takes a flock on the
// state directory so only one session runs per directory, and wires the
// watcher, initial scan, device monitor, coordinator, and merge pool into a
// single errgroup. Status events fan out from an in-memory hub to the log,
// the JSON lines archive, Prometheus metrics, and ntfy. Session start and stop
// are recorded in the history database.
//
// The optional HTTP API serves /api/status, /api/events, and /metrics.
// Keep orchestration here: grouping rules live in segments and coordinator,
// and merge execution lives in merge.
package daemon
