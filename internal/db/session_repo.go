package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/user/iris/internal/trace"
)

const defaultLimit = 50

type SessionRepo struct {
	db *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Import stores a sealed session and its events. Importing the same session
// again replaces the earlier copy.
func (r *SessionRepo) Import(ctx context.Context, tracePath string, s *trace.Session) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("cannot import session without id")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start import transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, s.ID); err != nil {
		return fmt.Errorf("failed to replace session %q: %w", s.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO sessions (id, trace_path, hostname, start_time, end_time, event_count, imported_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, s.ID, tracePath, s.Hostname, formatTimestamp(s.StartTime), formatTimestamp(s.EndTime), len(s.Events), formatTimestamp(nowUTC())); err != nil {
		return fmt.Errorf("failed to insert session %q: %w", s.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO events (session_id, seq, type, timestamp, command, output, exit_code, duration_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range s.Events {
		if _, err := stmt.ExecContext(ctx, s.ID, ev.ID, ev.Type, formatTimestamp(ev.Timestamp), ev.Command, ev.Output, ev.ExitCode, ev.DurationMS); err != nil {
			return fmt.Errorf("failed to insert event %d of %q: %w", ev.ID, s.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import of %q: %w", s.ID, err)
	}
	return nil
}

const sessionColumns = `
SELECT s.id, s.trace_path, s.hostname, s.start_time, s.end_time, s.event_count,
	(SELECT count(1) FROM events e WHERE e.session_id = s.id AND e.exit_code != 0)
FROM sessions s`

func scanSession(row interface{ Scan(...any) error }) (*ArchivedSession, error) {
	var s ArchivedSession
	var startRaw, endRaw string
	if err := row.Scan(&s.ID, &s.TracePath, &s.Hostname, &startRaw, &endRaw, &s.EventCount, &s.ErrorCount); err != nil {
		return nil, err
	}
	var err error
	if s.StartTime, err = parseTimestamp(startRaw); err != nil {
		return nil, err
	}
	if s.EndTime, err = parseTimestamp(endRaw); err != nil {
		return nil, err
	}
	return &s, nil
}

// Get returns nil when the session is not archived.
func (r *SessionRepo) Get(ctx context.Context, id string) (*ArchivedSession, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, sessionColumns+` WHERE s.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session %q: %w", id, err)
	}
	return s, nil
}

// List returns archived sessions, newest first.
func (r *SessionRepo) List(ctx context.Context, limit int) ([]*ArchivedSession, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := r.db.QueryContext(ctx, sessionColumns+` ORDER BY s.start_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []*ArchivedSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return out, nil
}

// Search matches query case-insensitively against command and output of
// every archived event, oldest session first.
func (r *SessionRepo) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	pattern := likePattern(query)
	rows, err := r.db.QueryContext(ctx, `
SELECT s.id, s.trace_path, e.seq, e.type, e.timestamp, e.command, e.output, e.exit_code, e.duration_ms
FROM events e
JOIN sessions s ON s.id = e.session_id
WHERE lower(e.command) LIKE ? ESCAPE '\' OR lower(e.output) LIKE ? ESCAPE '\'
ORDER BY s.start_time, e.seq
LIMIT ?
`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search events: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		var tsRaw string
		if err := rows.Scan(&h.SessionID, &h.TracePath, &h.Event.ID, &h.Event.Type, &tsRaw, &h.Event.Command, &h.Event.Output, &h.Event.ExitCode, &h.Event.DurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if h.Event.Timestamp, err = parseTimestamp(tsRaw); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return hits, nil
}
