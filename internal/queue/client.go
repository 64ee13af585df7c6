// Package queue talks to the cluster job queue through its command-line
// tools: submit, status and remove.
package queue

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"emrun/internal/cmdline"
	"emrun/internal/config"
)

// QueryError wraps a failed status query for one job.
type QueryError struct {
	JobID string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("status query for job %s: %v", e.JobID, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Runner executes argv in dir and returns stdout.
type Runner func(ctx context.Context, dir string, argv []string) (string, error)

// Options configures a Client.
type Options struct {
	WorkDir string
	Solver  string

	Pool         string
	Class        string
	QSlot        string
	Slots        int
	SlotsPerHost int
	Mail         string

	SubmitCmd cmdline.Template
	StatusCmd cmdline.Template
	RemoveCmd cmdline.Template

	JobIDField   int
	InvalidJobID string

	// Run defaults to ExecRunner.
	Run Runner
}

// SubmitRequest describes one solver job.
type SubmitRequest struct {
	Role         string
	LogPath      string
	InputPattern string
}

type Client struct {
	opts Options
	run  Runner
}

func NewClient(opts Options) *Client {
	if opts.JobIDField == 0 {
		opts.JobIDField = config.DefaultJobIDField
	}
	if opts.InvalidJobID == "" {
		opts.InvalidJobID = config.DefaultInvalidJobID
	}
	run := opts.Run
	if run == nil {
		run = ExecRunner
	}
	return &Client{opts: opts, run: run}
}

// NewClientFromConfig parses the configured command templates.
func NewClientFromConfig(cfg *config.Config) (*Client, error) {
	submit, err := cmdline.Parse(cfg.Queue.SubmitCmd)
	if err != nil {
		return nil, fmt.Errorf("queue.submit_cmd: %w", err)
	}
	status, err := cmdline.Parse(cfg.Queue.StatusCmd)
	if err != nil {
		return nil, fmt.Errorf("queue.status_cmd: %w", err)
	}
	remove, err := cmdline.Parse(cfg.Queue.RemoveCmd)
	if err != nil {
		return nil, fmt.Errorf("queue.remove_cmd: %w", err)
	}
	return NewClient(Options{
		WorkDir:      cfg.WorkDir,
		Solver:       cfg.Solver.Command,
		Pool:         cfg.Queue.Pool,
		Class:        cfg.Queue.Class,
		QSlot:        cfg.Queue.QSlot,
		Slots:        cfg.Queue.Slots,
		SlotsPerHost: cfg.Queue.SlotsPerHost,
		Mail:         cfg.Queue.Mail,
		SubmitCmd:    submit,
		StatusCmd:    status,
		RemoveCmd:    remove,
		JobIDField:   cfg.Queue.JobIDField,
		InvalidJobID: cfg.Queue.InvalidJobID,
	}), nil
}

func (c *Client) vars() cmdline.Vars {
	return cmdline.Vars{
		"pool":           c.opts.Pool,
		"class":          c.opts.Class,
		"qslot":          c.opts.QSlot,
		"slots":          strconv.Itoa(c.opts.Slots),
		"slots_per_host": strconv.Itoa(c.opts.SlotsPerHost),
		"mail":           c.opts.Mail,
		"solver":         c.opts.Solver,
	}
}

// Submit hands one job to the queue and returns its id.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	vars := c.vars()
	vars["log"] = req.LogPath
	vars["input"] = req.InputPattern
	vars["role"] = req.Role
	argv, err := c.opts.SubmitCmd.Expand(vars)
	if err != nil {
		return "", fmt.Errorf("submit %s job: %w", req.Role, err)
	}
	out, err := c.run(ctx, c.opts.WorkDir, argv)
	if err != nil {
		return "", fmt.Errorf("submit %s job: %w", req.Role, err)
	}
	id, err := ParseSubmitResponse(out, c.opts.JobIDField, c.opts.InvalidJobID)
	if err != nil {
		return "", fmt.Errorf("submit %s job: %w", req.Role, err)
	}
	return id, nil
}

// Status queries one job. All failures are returned as *QueryError.
func (c *Client) Status(ctx context.Context, jobID string) (StatusRecord, error) {
	vars := c.vars()
	vars["job"] = jobID
	argv, err := c.opts.StatusCmd.Expand(vars)
	if err != nil {
		return StatusRecord{}, &QueryError{JobID: jobID, Err: err}
	}
	out, err := c.run(ctx, c.opts.WorkDir, argv)
	if err != nil {
		return StatusRecord{}, &QueryError{JobID: jobID, Err: err}
	}
	rec, err := ParseStatus(lastLine(out))
	if err != nil {
		return StatusRecord{}, &QueryError{JobID: jobID, Err: err}
	}
	return rec, nil
}

// Remove deletes a job from the queue.
func (c *Client) Remove(ctx context.Context, jobID string) error {
	vars := c.vars()
	vars["job"] = jobID
	argv, err := c.opts.RemoveCmd.Expand(vars)
	if err != nil {
		return fmt.Errorf("remove job %s: %w", jobID, err)
	}
	if _, err := c.run(ctx, c.opts.WorkDir, argv); err != nil {
		return fmt.Errorf("remove job %s: %w", jobID, err)
	}
	return nil
}

// ExecRunner runs argv directly (no shell) and folds stderr into the error.
func ExecRunner(ctx context.Context, dir string, argv []string) (string, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			msg = strings.TrimSpace(msg + "\n" + string(exitErr.Stderr))
		}
		if msg != "" {
			return "", fmt.Errorf("%s: %w: %s", argv[0], err, msg)
		}
		return "", fmt.Errorf("%s: %w", argv[0], err)
	}
	return string(out), nil
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	return lines[len(lines)-1]
}
