// Package main hosts the dashjoin CLI.
//
// `dashjoin run` starts a foreground session that watches the dash cam
// directory and merges contiguous segments until SIGINT or SIGTERM. The
// remaining commands inspect state without a running session: `plan` shows
// what a directory would merge into, `history` and `status` read the session
// database, `stop` signals the running session through its pid file, and
// `config` scaffolds and checks the TOML configuration.
package main
