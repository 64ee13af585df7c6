package db

import (
	"fmt"
)

const schemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER NOT NULL,
    applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
);

CREATE TABLE IF NOT EXISTS sessions (
    id            TEXT PRIMARY KEY,
    work_dir      TEXT NOT NULL,
    pid           INTEGER NOT NULL DEFAULT 0,
    pool          TEXT NOT NULL DEFAULT '',
    state         TEXT NOT NULL DEFAULT 'submitting'
        CHECK(state IN ('submitting','monitoring','postprocessing','completed','failed','cancelled')),
    exit_code     INTEGER,
    error_message TEXT,
    created_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
    updated_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
    completed_at  TEXT
);

CREATE INDEX IF NOT EXISTS idx_sessions_work_dir_state ON sessions(work_dir, state);
CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);

CREATE TABLE IF NOT EXISTS jobs (
    id                   INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id           TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    role                 TEXT NOT NULL CHECK(role IN ('x','y')),
    queue_job_id         TEXT NOT NULL DEFAULT '',
    log_path             TEXT NOT NULL DEFAULT '',
    state                TEXT NOT NULL DEFAULT 'submitted'
        CHECK(state IN ('submitted','running','completed')),
    exit_status          INTEGER,
    pre_exec_exit_status INTEGER,
    submit_time          TEXT NOT NULL DEFAULT '',
    time_in_running      TEXT NOT NULL DEFAULT '',
    progress             INTEGER NOT NULL DEFAULT 0 CHECK(progress BETWEEN 0 AND 100),
    created_at           TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
    updated_at           TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
    completed_at         TEXT,
    UNIQUE(session_id, role)
);

CREATE INDEX IF NOT EXISTS idx_jobs_session ON jobs(session_id);

CREATE TRIGGER IF NOT EXISTS jobs_completed_is_final
BEFORE UPDATE OF state ON jobs
WHEN OLD.state = 'completed' AND NEW.state != 'completed'
BEGIN
    SELECT RAISE(ABORT, 'completed job cannot change state');
END;
`

func (s *Store) createSchema() error {
	if _, err := s.Writer.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	var count int
	if err := s.Writer.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		return fmt.Errorf("check schema version: %w", err)
	}
	if count == 0 {
		if _, err := s.Writer.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("insert schema version: %w", err)
		}
	}
	return nil
}
