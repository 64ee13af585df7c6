// Package controller drives one emrun session: guard the working directory,
// submit the X and Y jobs, validate them, monitor them to completion and
// run post-processing.
package controller

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"emrun/internal/config"
	"emrun/internal/db"
	"emrun/internal/monitor"
	"emrun/internal/notify"
	"emrun/internal/queue"
	"emrun/internal/session"
)

const (
	defaultRemoveTimeout = 2 * time.Minute
	notifyTimeout        = 10 * time.Second
)

// Queue is the job queue as seen by the controller.
type Queue interface {
	Submit(ctx context.Context, req queue.SubmitRequest) (string, error)
	Status(ctx context.Context, jobID string) (queue.StatusRecord, error)
	Remove(ctx context.Context, jobID string) error
}

type PostProcessor interface {
	Run(ctx context.Context) error
}

// History records sessions and job snapshots. Implemented by *db.Store.
type History interface {
	RecoverInterruptedSessions(ctx context.Context, workDir string) (int64, error)
	CreateSession(ctx context.Context, in db.NewSession) (string, error)
	AddJob(ctx context.Context, sessionID, role, queueJobID, logPath string) (int64, error)
	RecordObservation(ctx context.Context, jobID int64, obs db.Observation) error
	TransitionSession(ctx context.Context, id, from, to string) error
	FinishSession(ctx context.Context, id, state string, exitCode int, errMsg string) error
}

// JobSpec is one of the two solver runs of a session.
type JobSpec struct {
	Role         string
	LogPath      string
	InputPattern string
}

type Controller struct {
	Queue       Queue
	Guard       session.Guard
	PostProcess PostProcessor
	Out         io.Writer

	WorkDir      string
	Pool         string
	Jobs         []JobSpec
	PollInterval time.Duration
	// StaleFiles are removed (inside WorkDir only) before submitting.
	StaleFiles []string

	// Optional.
	History       History
	Senders       []notify.Sender
	Triggers      map[string]struct{}
	Signals       []os.Signal
	RemoveTimeout time.Duration
	ReadProgress  func(path string) int
	Sleep         func(ctx context.Context, d time.Duration) error
}

// New wires a controller from configuration.
func New(cfg *config.Config, q Queue, post PostProcessor, out io.Writer) *Controller {
	return &Controller{
		Queue:       q,
		PostProcess: post,
		Out:         out,
		Guard: session.Guard{
			Dir:      cfg.WorkDir,
			Marker:   cfg.Session.Marker,
			Patterns: cfg.Session.MarkerPatterns,
		},
		WorkDir: cfg.WorkDir,
		Pool:    cfg.Queue.Pool,
		Jobs: []JobSpec{
			{Role: "x", LogPath: cfg.Jobs.X.Log, InputPattern: cfg.InputPattern("x")},
			{Role: "y", LogPath: cfg.Jobs.Y.Log, InputPattern: cfg.InputPattern("y")},
		},
		PollInterval: cfg.PollInterval(),
		StaleFiles:   []string{cfg.Jobs.X.Log, cfg.Jobs.Y.Log, cfg.Solver.PostprocessLog},
		Triggers:     notify.TriggerSet(cfg.Notifications.Triggers),
	}
}

// run is the mutable state of one Run call.
type run struct {
	c         *Controller
	sessionID string
	history   History
	state     string
	jobs      []*monitor.Job
}

// Run executes one session. The returned error carries the exit code
// through ExitCode.
func (c *Controller) Run(parent context.Context) (err error) {
	out := c.out()

	// A live marker ends the run here: nothing is deleted, cleared or recorded.
	if err := c.Guard.CheckNoneActive(); err != nil {
		return err
	}

	r := &run{c: c, sessionID: uuid.NewString(), history: c.History, state: db.SessionSubmitting}
	lock, err := c.Guard.Acquire(session.Info{
		SessionID: r.sessionID,
		PID:       os.Getpid(),
		WorkDir:   c.WorkDir,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	// Markers present at exit belong to this session (the pre-exec step
	// drops its own), so all of them go on every exit path.
	defer func() {
		if relErr := lock.Release(); relErr != nil {
			slog.Warn("release session marker", "error", relErr)
		}
		removed, clrErr := c.Guard.Clear()
		if clrErr != nil {
			slog.Warn("clear session markers", "error", clrErr)
		}
		if len(removed) > 0 {
			slog.Debug("cleared session markers", "markers", removed)
		}
	}()

	r.startHistory(parent)
	if err := session.RemoveStaleFiles(c.WorkDir, c.StaleFiles...); err != nil {
		slog.Warn("clear stale logs", "error", err)
	}

	ctx, stop := signal.NotifyContext(parent, c.signals()...)
	defer stop()

	for _, spec := range c.Jobs {
		r.jobs = append(r.jobs, monitor.NewJob(spec.Role, spec.LogPath))
	}

	// The handler sees the jobs through the closure, so it removes
	// whatever has been submitted by the time the signal arrives.
	cancelled := func() error {
		// Restore default signal handling: a second Ctrl-C kills emrun.
		stop()
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Job cancelled by user, please wait till complete termination..")
		c.removeJobs(r.jobs)
		return ErrUserCancelled
	}

	defer func() { r.finish(parent, err) }()

	slog.Info("session started", "session", db.ShortID(r.sessionID), "work_dir", c.WorkDir, "pool", c.Pool)

	for i, spec := range c.Jobs {
		job := r.jobs[i]
		id, subErr := c.Queue.Submit(ctx, queue.SubmitRequest{
			Role:         spec.Role,
			LogPath:      spec.LogPath,
			InputPattern: spec.InputPattern,
		})
		if subErr == nil {
			job.ID = id
		}
		if ctx.Err() != nil {
			return cancelled()
		}
		if subErr != nil {
			c.removeJobs(r.jobs)
			return fmt.Errorf("%w: %v", ErrSubmissionFailed, subErr)
		}
		fmt.Fprintf(out, "%s job submitted with id %s\n", job.Label(), id)
		r.addJob(ctx, job)
	}

	if err := r.checkPreExec(ctx); err != nil {
		if ctx.Err() != nil {
			return cancelled()
		}
		return err
	}

	r.transition(ctx, db.SessionMonitoring)
	m := &monitor.Monitor{
		Queue:        c.Queue,
		Interval:     c.PollInterval,
		Out:          out,
		ReadProgress: c.ReadProgress,
		Sleep:        c.Sleep,
	}
	if r.history != nil {
		m.Recorder = historyRecorder{h: r.history}
	}
	if err := m.Run(ctx, r.jobs...); err != nil {
		if ctx.Err() != nil {
			return cancelled()
		}
		return fmt.Errorf("monitor: %w", err)
	}

	r.transition(ctx, db.SessionPostprocessing)
	fmt.Fprintln(out, "Starting post-processing...")
	if err := c.PostProcess.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return cancelled()
		}
		return fmt.Errorf("%w: %v", ErrPostProcessFailed, err)
	}
	fmt.Fprintln(out, "Post-processing completed successfully")
	fmt.Fprintln(out, "All tasks completed")
	return nil
}

// checkPreExec queries the X job once. Only an explicit non-zero
// pre-execution exit status is fatal.
func (r *run) checkPreExec(ctx context.Context) error {
	if len(r.jobs) == 0 {
		return nil
	}
	first := r.jobs[0]
	rec, err := r.c.Queue.Status(ctx, first.ID)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("pre-execution status unavailable, continuing", "job", first.Label(), "id", first.ID, "error", err)
	case rec.PreExecExitStatus == nil:
		slog.Info("pre-execution status not yet available", "job", first.Label(), "id", first.ID)
	case *rec.PreExecExitStatus != 0:
		r.c.removeJobs(r.jobs)
		return fmt.Errorf("%w: %s job %s exited %d before the solver started",
			ErrPreExecFailed, first.Label(), first.ID, *rec.PreExecExitStatus)
	default:
		fmt.Fprintln(r.c.out(), "Jobs submitted successfully")
	}
	return nil
}

// removeJobs removes every submitted job. It runs on its own deadline
// because the session context may already be cancelled.
func (c *Controller) removeJobs(jobs []*monitor.Job) {
	timeout := c.RemoveTimeout
	if timeout <= 0 {
		timeout = defaultRemoveTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, j := range jobs {
		if !j.Submitted() {
			continue
		}
		if err := c.Queue.Remove(ctx, j.ID); err != nil {
			slog.Warn("remove job", "job", j.Label(), "id", j.ID, "error", err)
			continue
		}
		slog.Info("removed job from queue", "job", j.Label(), "id", j.ID)
	}
}

func (c *Controller) out() io.Writer {
	if c.Out == nil {
		return io.Discard
	}
	return c.Out
}

func (c *Controller) signals() []os.Signal {
	if len(c.Signals) > 0 {
		return c.Signals
	}
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}
