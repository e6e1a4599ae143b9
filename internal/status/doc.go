// Package status carries the session's event stream.
//
// The coordinator publishes every state change as an Event into a Hub. The
// hub stamps a sequence number, keeps a bounded buffer for the HTTP events
// endpoint, and forwards each event to its sinks: the structured log, the
// on-disk archive, metrics, and notifications. Sinks run on the publisher's
// goroutine and must not block.
package status
