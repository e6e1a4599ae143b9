// Package coordinator owns the segment ledger and overlap guard.
//
// A single goroutine (Run) applies every mutation: discovered paths, worker
// results, and snapshot requests are all messages on its select loop. Merge
// jobs wait in the coordinator's own queue and are handed to the dispatcher
// only when a worker is ready to receive, so ingestion never blocks behind a
// slow merge.
package coordinator
