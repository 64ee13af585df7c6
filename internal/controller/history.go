package controller

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"emrun/internal/db"
	"emrun/internal/monitor"
	"emrun/internal/notify"
)

// History failures are logged and never fail the run: the queue jobs matter
// more than their record.

func (r *run) startHistory(ctx context.Context) {
	if r.history == nil {
		return
	}
	if n, err := r.history.RecoverInterruptedSessions(ctx, r.c.WorkDir); err != nil {
		slog.Warn("recover interrupted sessions", "error", err)
	} else if n > 0 {
		slog.Info("marked interrupted sessions as failed", "count", n)
	}
	if _, err := r.history.CreateSession(ctx, db.NewSession{
		ID:      r.sessionID,
		WorkDir: r.c.WorkDir,
		PID:     os.Getpid(),
		Pool:    r.c.Pool,
	}); err != nil {
		slog.Warn("history disabled for this session", "error", err)
		r.history = nil
	}
}

func (r *run) addJob(ctx context.Context, job *monitor.Job) {
	if r.history == nil {
		return
	}
	id, err := r.history.AddJob(context.WithoutCancel(ctx), r.sessionID, job.Role, job.ID, job.LogPath)
	if err != nil {
		slog.Warn("record submitted job", "job", job.Label(), "error", err)
		return
	}
	job.RecordID = id
}

func (r *run) transition(ctx context.Context, to string) {
	from := r.state
	r.state = to
	if r.history == nil {
		return
	}
	if err := r.history.TransitionSession(ctx, r.sessionID, from, to); err != nil {
		slog.Warn("record session state", "from", from, "to", to, "error", err)
	}
}

// finish records the outcome and sends notifications.
func (r *run) finish(ctx context.Context, runErr error) {
	ctx = context.WithoutCancel(ctx)
	code := ExitCode(runErr)
	state := db.SessionCompleted
	switch {
	case errors.Is(runErr, ErrUserCancelled):
		state = db.SessionCancelled
	case runErr != nil:
		state = db.SessionFailed
	}
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}

	if r.history != nil {
		for _, job := range r.jobs {
			if job.RecordID == 0 {
				continue
			}
			if err := (historyRecorder{h: r.history}).RecordJob(ctx, job); err != nil {
				slog.Warn("record final job snapshot", "job", job.Label(), "error", err)
			}
		}
		if err := r.history.FinishSession(ctx, r.sessionID, state, code, errMsg); err != nil {
			slog.Warn("record session outcome", "error", err)
		}
	}
	slog.Info("session finished", "session", db.ShortID(r.sessionID), "state", state, "exit_code", code)

	r.notify(ctx, state, code, errMsg)
}

func (r *run) notify(ctx context.Context, state string, code int, errMsg string) {
	if len(r.c.Senders) == 0 {
		return
	}
	if _, ok := r.c.Triggers[state]; !ok {
		return
	}
	payload := notify.Payload{
		Event:     state,
		SessionID: r.sessionID,
		WorkDir:   r.c.WorkDir,
		Pool:      r.c.Pool,
		ExitCode:  code,
		Error:     errMsg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	for _, job := range r.jobs {
		payload.Jobs = append(payload.Jobs, notify.JobResult{
			Role:       job.Role,
			ID:         job.ID,
			State:      string(job.State),
			ExitStatus: job.ExitStatus,
			Progress:   job.Progress,
		})
	}
	results := notify.SendAll(ctx, r.c.Senders, payload, notifyTimeout)
	if failures := notify.SummarizeFailures(results); failures != "" {
		slog.Warn("notification delivery failed", "errors", failures)
	}
}

type historyRecorder struct {
	h History
}

func (hr historyRecorder) RecordJob(ctx context.Context, job *monitor.Job) error {
	if job.RecordID == 0 {
		return nil
	}
	return hr.h.RecordObservation(context.WithoutCancel(ctx), job.RecordID, db.Observation{
		State:             string(job.State),
		ExitStatus:        job.ExitStatus,
		PreExecExitStatus: job.PreExecExitStatus,
		SubmitTime:        job.SubmitTime,
		TimeInRunning:     job.TimeInRunning,
		Progress:          job.Progress,
	})
}
