package ingest

import "context"

// Event announces a path that appeared in the watched directory.
type Event struct {
	Path  string
	IsDir bool
}

// Sink accepts discovered paths.
type Sink interface {
	Discover(ctx context.Context, evt Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, evt Event) error

// Discover calls f.
func (f SinkFunc) Discover(ctx context.Context, evt Event) error { return f(ctx, evt) }
