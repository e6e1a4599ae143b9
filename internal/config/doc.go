// Package config loads, normalizes, and validates dashjoin configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and derives the immutable Settings a merge
// session runs with. The Config type centralizes every knob the daemon and CLI
// need so watch, output, and state directories are resolved in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, a dotted lowercase extension, and clear validation errors.
package config
