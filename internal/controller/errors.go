package controller

import (
	"errors"

	"emrun/internal/session"
)

var (
	ErrSessionAlreadyActive = session.ErrSessionAlreadyActive
	ErrSubmissionFailed     = errors.New("job submission failed")
	ErrPreExecFailed        = errors.New("pre-execution failed")
	ErrUserCancelled        = errors.New("job cancelled by user")
	ErrPostProcessFailed    = errors.New("post-processing failed")
)

// Process exit codes.
const (
	ExitOK                   = 0
	ExitFailure              = 1
	ExitPreExecFailed        = 126
	ExitSubmissionFailed     = 127
	ExitUserCancelled        = 130
	ExitSessionAlreadyActive = 132
)

// ExitCode maps a Run error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrSessionAlreadyActive):
		return ExitSessionAlreadyActive
	case errors.Is(err, ErrSubmissionFailed):
		return ExitSubmissionFailed
	case errors.Is(err, ErrPreExecFailed):
		return ExitPreExecFailed
	case errors.Is(err, ErrUserCancelled):
		return ExitUserCancelled
	default:
		return ExitFailure
	}
}
