package monitor

import (
	"strings"

	"emrun/internal/queue"
)

// UnsubmittedID is the job id placeholder before the queue assigns one.
const UnsubmittedID = "unsubmitted"

// State is a job's lifecycle state. Completed is final.
type State string

const (
	StateSubmitted State = "submitted"
	StateRunning   State = "running"
	StateCompleted State = "completed"
)

// Job is one monitored solver run.
type Job struct {
	Role    string
	ID      string
	LogPath string

	State             State
	ExitStatus        *int
	SubmitTime        string
	PreExecExitStatus *int
	TimeInRunning     string
	Progress          int

	// RecordID is the history row for this job, 0 when not persisted.
	RecordID int64
}

func NewJob(role, logPath string) *Job {
	return &Job{Role: role, ID: UnsubmittedID, LogPath: logPath, State: StateSubmitted}
}

// Label is the display name of the job's role ("X", "Y").
func (j *Job) Label() string { return strings.ToUpper(j.Role) }

func (j *Job) Submitted() bool { return j.ID != "" && j.ID != UnsubmittedID }

func (j *Job) Completed() bool { return j.State == StateCompleted }

// Succeeded reports a completed job with exit status 0.
func (j *Job) Succeeded() bool {
	return j.Completed() && j.ExitStatus != nil && *j.ExitStatus == 0
}

// Observe folds a status record into the job and reports whether this
// record is the one that completed it. Records for a completed job are
// ignored.
func (j *Job) Observe(rec queue.StatusRecord) (justCompleted bool) {
	if j.Completed() {
		return false
	}
	if rec.SubmitTime != "" {
		j.SubmitTime = rec.SubmitTime
	}
	if rec.PreExecExitStatus != nil {
		v := *rec.PreExecExitStatus
		j.PreExecExitStatus = &v
	}
	if rec.TimeInRunning != "" {
		j.TimeInRunning = rec.TimeInRunning
	}
	if rec.ExitStatus != nil {
		v := *rec.ExitStatus
		j.ExitStatus = &v
		j.State = StateCompleted
		return true
	}
	j.State = StateRunning
	return false
}
