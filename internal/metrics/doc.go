// Package metrics exposes session activity as Prometheus metrics.
//
// A Collector is a status.Sink: it derives every series from the status
// stream, so nothing else in the pipeline needs to know metrics exist.
package metrics
