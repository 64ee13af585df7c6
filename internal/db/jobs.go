package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Job states. completed is final.
const (
	JobSubmitted = "submitted"
	JobRunning   = "running"
	JobCompleted = "completed"
)

type Job struct {
	ID                int64
	SessionID         string
	Role              string
	QueueJobID        string
	LogPath           string
	State             string
	ExitStatus        *int
	PreExecExitStatus *int
	SubmitTime        string
	TimeInRunning     string
	Progress          int
	CreatedAt         string
	UpdatedAt         string
	CompletedAt       string
}

// Observation is one monitor cycle's view of a job.
type Observation struct {
	State             string
	ExitStatus        *int
	PreExecExitStatus *int
	SubmitTime        string
	TimeInRunning     string
	Progress          int
}

func (s *Store) AddJob(ctx context.Context, sessionID, role, queueJobID, logPath string) (int64, error) {
	const q = `INSERT INTO jobs(session_id, role, queue_job_id, log_path, state) VALUES(?,?,?,?,'submitted')`
	res, err := s.Writer.ExecContext(ctx, q, sessionID, role, queueJobID, logPath)
	if err != nil {
		return 0, fmt.Errorf("add %s job to session %s: %w", role, ShortID(sessionID), err)
	}
	return res.LastInsertId()
}

// RecordObservation stores the latest observation. Once a job row is
// completed, its state, exit status and queue fields are frozen; progress
// keeps updating.
func (s *Store) RecordObservation(ctx context.Context, jobID int64, obs Observation) error {
	switch obs.State {
	case JobSubmitted, JobRunning, JobCompleted:
	default:
		return fmt.Errorf("record observation: unknown job state %q", obs.State)
	}
	if obs.Progress < 0 || obs.Progress > 100 {
		return fmt.Errorf("record observation: progress %d out of range", obs.Progress)
	}
	const q = `
UPDATE jobs SET
    state                = CASE WHEN state = 'completed' THEN state ELSE ? END,
    exit_status          = CASE WHEN state = 'completed' THEN exit_status ELSE ? END,
    pre_exec_exit_status = CASE WHEN state = 'completed' THEN pre_exec_exit_status ELSE COALESCE(?, pre_exec_exit_status) END,
    submit_time          = CASE WHEN state = 'completed' OR ? = '' THEN submit_time ELSE ? END,
    time_in_running      = CASE WHEN state = 'completed' OR ? = '' THEN time_in_running ELSE ? END,
    completed_at         = CASE WHEN state != 'completed' AND ? = 'completed'
                                THEN strftime('%Y-%m-%dT%H:%M:%SZ', 'now') ELSE completed_at END,
    progress             = ?,
    updated_at           = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
WHERE id = ?`
	res, err := s.Writer.ExecContext(ctx, q,
		obs.State,
		nullableInt(obs.ExitStatus),
		nullableInt(obs.PreExecExitStatus),
		obs.SubmitTime, obs.SubmitTime,
		obs.TimeInRunning, obs.TimeInRunning,
		obs.State,
		obs.Progress,
		jobID,
	)
	if err != nil {
		return fmt.Errorf("record observation for job %d: %w", jobID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("job %d not found", jobID)
	}
	return nil
}

// ListJobs returns a session's jobs, X before Y.
func (s *Store) ListJobs(ctx context.Context, sessionID string) ([]Job, error) {
	const q = `
SELECT id, session_id, role, queue_job_id, log_path, state, exit_status, pre_exec_exit_status,
       submit_time, time_in_running, progress, created_at, updated_at, COALESCE(completed_at,'')
FROM jobs WHERE session_id = ? ORDER BY role`
	rows, err := s.Reader.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		var j Job
		var exit, preExec sql.NullInt64
		if err := rows.Scan(&j.ID, &j.SessionID, &j.Role, &j.QueueJobID, &j.LogPath, &j.State,
			&exit, &preExec, &j.SubmitTime, &j.TimeInRunning, &j.Progress,
			&j.CreatedAt, &j.UpdatedAt, &j.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		j.ExitStatus = intPtr(exit)
		j.PreExecExitStatus = intPtr(preExec)
		out = append(out, j)
	}
	return out, rows.Err()
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
