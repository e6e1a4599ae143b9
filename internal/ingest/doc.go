// Package ingest feeds segment discoveries to a Sink.
//
// Scan enumerates a directory once (session start, device rescans). A Watcher
// reports files as they finish arriving, using inotify on Linux and mtime/size
// polling elsewhere. Both paths deliver the same Event to the same Sink so the
// receiver never needs to know where a file came from.
package ingest
