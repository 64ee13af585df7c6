// Package monitor polls the queue for a set of submitted jobs until they
// are all finished.
package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"emrun/internal/progress"
	"emrun/internal/queue"
)

// StatusQuerier fetches one job's status record.
type StatusQuerier interface {
	Status(ctx context.Context, jobID string) (queue.StatusRecord, error)
}

// Recorder persists job snapshots after every cycle.
type Recorder interface {
	RecordJob(ctx context.Context, job *Job) error
}

type Monitor struct {
	Queue    StatusQuerier
	Interval time.Duration
	Out      io.Writer

	// Optional.
	Recorder     Recorder
	ReadProgress func(path string) int
	Sleep        func(ctx context.Context, d time.Duration) error
}

// Run polls until every job is completed or every job's log reports 100%
// progress. Jobs are visited in the order given. It returns ctx.Err() when
// cancelled; query failures never end the loop.
func (m *Monitor) Run(ctx context.Context, jobs ...*Job) error {
	readProgress := m.ReadProgress
	if readProgress == nil {
		readProgress = progress.Percent
	}
	sleep := m.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	out := m.Out
	if out == nil {
		out = io.Discard
	}

	for cycle := 1; ; cycle++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		for _, job := range jobs {
			if job.Completed() {
				continue
			}
			rec, err := m.Queue.Status(ctx, job.ID)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Warn("status query failed", "job", job.Label(), "id", job.ID, "cycle", cycle, "error", err)
				continue
			}
			if job.Observe(rec) {
				fmt.Fprintln(out)
				fmt.Fprintln(out, completionMessage(job))
				slog.Info("job completed", "job", job.Label(), "id", job.ID, "exit_status", *job.ExitStatus)
			}
		}
		// A query may answer after the signal; the cycle still ends here.
		if err := ctx.Err(); err != nil {
			return err
		}

		for _, job := range jobs {
			job.Progress = readProgress(job.LogPath)
		}

		if m.Recorder != nil {
			for _, job := range jobs {
				if err := m.Recorder.RecordJob(ctx, job); err != nil {
					slog.Warn("record job snapshot", "job", job.Label(), "error", err)
				}
			}
		}

		if done, reason := finished(jobs); done {
			slog.Debug("monitor finished", "reason", reason, "cycles", cycle)
			fmt.Fprintln(out)
			fmt.Fprint(out, Summary(jobs))
			return nil
		}

		fmt.Fprint(out, "\r"+StatusLine(jobs))
		if err := sleep(ctx, m.Interval); err != nil {
			return err
		}
	}
}

func finished(jobs []*Job) (bool, string) {
	if len(jobs) == 0 {
		return true, "no jobs"
	}
	allCompleted, allFull := true, true
	for _, j := range jobs {
		if !j.Completed() {
			allCompleted = false
		}
		if j.Progress < 100 {
			allFull = false
		}
	}
	switch {
	case allCompleted:
		return true, "all jobs completed"
	case allFull:
		return true, "all logs at 100%"
	}
	return false, ""
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
