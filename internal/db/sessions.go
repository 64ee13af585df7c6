package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Session states.
const (
	SessionSubmitting     = "submitting"
	SessionMonitoring     = "monitoring"
	SessionPostprocessing = "postprocessing"
	SessionCompleted      = "completed"
	SessionFailed         = "failed"
	SessionCancelled      = "cancelled"
)

// ValidTransitions defines the allowed session state machine transitions.
var ValidTransitions = map[string][]string{
	SessionSubmitting:     {SessionMonitoring, SessionFailed, SessionCancelled},
	SessionMonitoring:     {SessionPostprocessing, SessionFailed, SessionCancelled},
	SessionPostprocessing: {SessionCompleted, SessionFailed, SessionCancelled},
}

// IsActiveState reports whether a session is still running.
func IsActiveState(state string) bool {
	switch state {
	case SessionSubmitting, SessionMonitoring, SessionPostprocessing:
		return true
	default:
		return false
	}
}

type Session struct {
	ID           string
	WorkDir      string
	PID          int
	Pool         string
	State        string
	ExitCode     *int
	ErrorMessage string
	CreatedAt    string
	UpdatedAt    string
	CompletedAt  string
}

// NewSession describes a session about to submit its jobs.
type NewSession struct {
	// ID is generated when empty.
	ID      string
	WorkDir string
	PID     int
	Pool    string
}

const sessionColumns = `id, work_dir, pid, pool, state, exit_code, COALESCE(error_message,''),
       created_at, updated_at, COALESCE(completed_at,'')`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var s Session
	var exit sql.NullInt64
	if err := row.Scan(&s.ID, &s.WorkDir, &s.PID, &s.Pool, &s.State, &exit, &s.ErrorMessage,
		&s.CreatedAt, &s.UpdatedAt, &s.CompletedAt); err != nil {
		return Session{}, err
	}
	if exit.Valid {
		v := int(exit.Int64)
		s.ExitCode = &v
	}
	return s, nil
}

func (s *Store) CreateSession(ctx context.Context, in NewSession) (string, error) {
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	const q = `INSERT INTO sessions(id, work_dir, pid, pool, state) VALUES(?,?,?,?,'submitting')`
	if _, err := s.Writer.ExecContext(ctx, q, id, in.WorkDir, in.PID, in.Pool); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// TransitionSession validates and performs a state transition.
func (s *Store) TransitionSession(ctx context.Context, id, from, to string) error {
	valid := false
	for _, next := range ValidTransitions[from] {
		if next == to {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid transition: %s -> %s", from, to)
	}
	const q = `UPDATE sessions SET state = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
WHERE id = ? AND state = ?`
	res, err := s.Writer.ExecContext(ctx, q, to, id, from)
	if err != nil {
		return fmt.Errorf("transition session %s %s->%s: %w", ShortID(id), from, to, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session %s not in state %s", ShortID(id), from)
	}
	return nil
}

// FinishSession moves an active session to a terminal state and records
// its exit code.
func (s *Store) FinishSession(ctx context.Context, id, state string, exitCode int, errMsg string) error {
	switch state {
	case SessionCompleted, SessionFailed, SessionCancelled:
	default:
		return fmt.Errorf("finish session: %q is not a terminal state", state)
	}
	const q = `UPDATE sessions SET state = ?, exit_code = ?, error_message = NULLIF(?, ''),
       updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now'),
       completed_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
WHERE id = ? AND state IN ('submitting','monitoring','postprocessing')`
	res, err := s.Writer.ExecContext(ctx, q, state, exitCode, errMsg, id)
	if err != nil {
		return fmt.Errorf("finish session %s: %w", ShortID(id), err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session %s is not active", ShortID(id))
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.Reader.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return Session{}, fmt.Errorf("get session %s: %w", id, err)
	}
	return sess, nil
}

// LatestSession returns the most recent session, optionally restricted to
// one working directory.
func (s *Store) LatestSession(ctx context.Context, workDir string) (Session, error) {
	sessions, err := s.ListSessions(ctx, workDir, 1)
	if err != nil {
		return Session{}, err
	}
	if len(sessions) == 0 {
		return Session{}, fmt.Errorf("latest session: %w", ErrNotFound)
	}
	return sessions[0], nil
}

// ListSessions returns sessions newest first. Empty workDir lists all;
// limit <= 0 means no limit.
func (s *Store) ListSessions(ctx context.Context, workDir string, limit int) ([]Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM sessions WHERE 1=1`
	var args []any
	if workDir != "" {
		q += ` AND work_dir = ?`
		args = append(args, workDir)
	}
	q += ` ORDER BY created_at DESC, rowid DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.Reader.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// RecoverInterruptedSessions marks sessions left active by a crashed emrun
// in workDir as failed. Called before a new session starts there.
func (s *Store) RecoverInterruptedSessions(ctx context.Context, workDir string) (int64, error) {
	res, err := s.Writer.ExecContext(ctx,
		`UPDATE sessions SET state = 'failed', error_message = 'interrupted',
		        updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now'),
		        completed_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		 WHERE work_dir = ? AND state IN ('submitting','monitoring','postprocessing')`, workDir)
	if err != nil {
		return 0, fmt.Errorf("recover interrupted sessions: %w", err)
	}
	return res.RowsAffected()
}

// ResolveSessionID resolves a full id or unique prefix.
func (s *Store) ResolveSessionID(ctx context.Context, prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", fmt.Errorf("empty session id")
	}
	var id string
	err := s.Reader.QueryRowContext(ctx, `SELECT id FROM sessions WHERE id = ?`, prefix).Scan(&id)
	if err == nil {
		return id, nil
	}

	rows, err := s.Reader.QueryContext(ctx, `SELECT id FROM sessions WHERE id LIKE ? ORDER BY created_at DESC LIMIT 2`, prefix+"%")
	if err != nil {
		return "", fmt.Errorf("resolve session id %q: %w", prefix, err)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return "", fmt.Errorf("scan session id: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no session matching %q: %w", prefix, ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("ambiguous session prefix %q: matches %s and others", prefix, ShortID(matches[0]))
	}
}

// ShortID returns the first 8 characters of a session id.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
