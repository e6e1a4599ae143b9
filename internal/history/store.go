package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrSessionNotFound is returned when a session id has no row.
var ErrSessionNotFound = errors.New("history session not found")

const timeLayout = time.RFC3339Nano

// Store manages history persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database and applies migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// StartSession inserts a row for a new session.
func (s *Store) StartSession(ctx context.Context, session Session) error {
	if strings.TrimSpace(session.ID) == "" {
		return errors.New("session id required")
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions
		(id, started_at, pid, watch_dir, output_dir, threshold_seconds, timestamp_pattern, extension)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, formatTime(session.StartedAt), session.PID, session.WatchDir, session.OutputDir,
		session.ThresholdSeconds, session.Pattern, session.Extension,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// StopSession stamps a session as stopped.
func (s *Store) StopSession(ctx context.Context, id, reason string, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET stopped_at = ?, stop_reason = ? WHERE id = ?`,
		formatTime(at), nullString(reason), id)
	if err != nil {
		return fmt.Errorf("stop session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

const sessionColumns = `id, started_at, stopped_at, stop_reason, pid, watch_dir, output_dir, threshold_seconds, timestamp_pattern, extension`

// LatestSession returns the most recently started session, or nil when none exist.
func (s *Store) LatestSession(ctx context.Context) (*Session, error) {
	sessions, err := s.ListSessions(ctx, 1)
	if err != nil || len(sessions) == 0 {
		return nil, err
	}
	return &sessions[0], nil
}

// GetSession loads a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ListSessions returns sessions newest first. A limit <= 0 returns all.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// RecordOutcome appends a record and returns its id.
func (s *Store) RecordOutcome(ctx context.Context, record Record) (int64, error) {
	if _, ok := ParseStatus(string(record.Status)); !ok {
		return 0, fmt.Errorf("record outcome: unknown status %q", record.Status)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	sources := record.Sources
	if sources == nil {
		sources = []string{}
	}
	encoded, err := json.Marshal(sources)
	if err != nil {
		return 0, fmt.Errorf("encode sources: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO records
		(session_id, job_id, status, range_start, range_end, output, sources, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.SessionID, nullString(record.JobID), record.Status,
		formatTime(record.Start), formatTime(record.End), nullString(record.Output),
		string(encoded), nullString(record.Error), formatTime(record.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}
	return res.LastInsertId()
}

// ListRecords returns records newest first.
func (s *Store) ListRecords(ctx context.Context, filter Filter) ([]Record, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	query := `SELECT id, session_id, job_id, status, range_start, range_end, output, sources, error_message, created_at FROM records`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Counts tallies records per status, optionally for one session.
func (s *Store) Counts(ctx context.Context, sessionID string) (map[Status]int, error) {
	query := `SELECT status, COUNT(1) FROM records`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` GROUP BY status`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("record counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var (
		session    Session
		startedAt  string
		stoppedAt  sql.NullString
		stopReason sql.NullString
	)
	if err := row.Scan(&session.ID, &startedAt, &stoppedAt, &stopReason, &session.PID,
		&session.WatchDir, &session.OutputDir, &session.ThresholdSeconds, &session.Pattern, &session.Extension); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	session.StartedAt = parseTime(startedAt)
	session.StoppedAt = parseTime(stoppedAt.String)
	session.StopReason = stopReason.String
	return session, nil
}

func scanRecord(row scanner) (Record, error) {
	var (
		record                   Record
		jobID, output, errMsg    sql.NullString
		start, end, created, src string
	)
	if err := row.Scan(&record.ID, &record.SessionID, &jobID, &record.Status, &start, &end,
		&output, &src, &errMsg, &created); err != nil {
		return Record{}, fmt.Errorf("scan record: %w", err)
	}
	record.JobID = jobID.String
	record.Output = output.String
	record.Error = errMsg.String
	record.Start = parseTime(start)
	record.End = parseTime(end)
	record.CreatedAt = parseTime(created)
	if err := json.Unmarshal([]byte(src), &record.Sources); err != nil {
		return Record{}, fmt.Errorf("decode sources for record %d: %w", record.ID, err)
	}
	return record, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(value string) sql.NullString {
	value = strings.TrimSpace(value)
	return sql.NullString{String: value, Valid: value != ""}
}

func makePlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
