package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Archive persists events as JSON lines so API consumers can replay the
// session after the in-memory hub rolls over.
type Archive struct {
	path string
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	err  error
}

// NewArchive creates (or truncates) the journal at path. An empty path
// disables archiving and returns a nil Archive, which is safe to use.
func NewArchive(path string) (*Archive, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure archive dir: %w", err)
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", trimmed, err)
	}
	return &Archive{path: trimmed, file: file, enc: json.NewEncoder(file)}, nil
}

// Publish appends evt. The first write error is kept and reported by Close.
func (a *Archive) Publish(evt Event) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.enc == nil || a.err != nil {
		return
	}
	if err := a.enc.Encode(evt); err != nil {
		a.err = fmt.Errorf("append archive %s: %w", a.path, err)
	}
}

// ReadSince returns archived events newer than since along with the highest
// sequence observed. Limit bounds the number of events returned (0 means
// unlimited).
func (a *Archive) ReadSince(since uint64, limit int) ([]Event, uint64, error) {
	if a == nil {
		return nil, since, nil
	}
	return ReadArchive(a.path, since, limit)
}

// ReadArchive reads a journal written by Archive.
func ReadArchive(path string, since uint64, limit int) ([]Event, uint64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, since, nil
		}
		return nil, since, fmt.Errorf("open archive %s: %w", path, err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	var result []Event
	highest := since
	for {
		var evt Event
		if err := decoder.Decode(&evt); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return result, highest, fmt.Errorf("decode archive %s: %w", path, err)
		}
		highest = max(highest, evt.Seq)
		if evt.Seq <= since {
			continue
		}
		result = append(result, evt)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, highest, nil
}

// Path returns the on-disk location backing the archive.
func (a *Archive) Path() string {
	if a == nil {
		return ""
	}
	return a.path
}

// Close releases the file handle.
func (a *Archive) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	var err error
	if a.file != nil {
		err = a.file.Close()
	}
	a.file = nil
	a.enc = nil
	return errors.Join(a.err, err)
}
