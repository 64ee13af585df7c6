package session

import (
	"errors"
	"os"
	"syscall"
)

// ProcessAlive reports whether pid refers to a running process.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	// EPERM means the process exists but belongs to someone else.
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Interrupt sends SIGINT to the emrun process recorded in a marker, which
// runs the same cancellation path as Ctrl-C.
func Interrupt(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(os.Interrupt)
}
