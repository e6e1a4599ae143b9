// Package notifications delivers session events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when notifications are disabled. A
// Forwarder turns the status stream into notifications on its own goroutine so
// a slow ntfy server never stalls the coordinator.
package notifications
