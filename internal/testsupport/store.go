package testsupport

import (
	"context"
	"testing"

	"dashjoin/internal/config"
	"dashjoin/internal/history"
)

// MustOpenHistory opens the history store for cfg and registers cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// StartSession inserts a session row so records can reference it.
func StartSession(t testing.TB, store *history.Store, id string) {
	t.Helper()

	if err := store.StartSession(context.Background(), history.Session{ID: id}); err != nil {
		t.Fatalf("store.StartSession: %v", err)
	}
}
