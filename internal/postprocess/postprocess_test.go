package postprocess

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeExecutable(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestRunRedirectsOutputToLog(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	solver := filepath.Join(dir, "fake-em")
	writeExecutable(t, solver, "#!/bin/sh\necho \"running $1\"\necho 'warning: coarse mesh' >&2\n")
	script := filepath.Join(dir, "post.tcl")
	if err := os.WriteFile(script, []byte("# post\n"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	logPath := filepath.Join(dir, "post.log")
	if err := os.WriteFile(logPath, []byte("stale output from last run\n"), 0o644); err != nil {
		t.Fatalf("write stale log: %v", err)
	}

	r := &Runner{Solver: solver, Script: script, LogPath: logPath, WorkDir: dir}
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	got := string(data)
	if !strings.Contains(got, "running "+script) || !strings.Contains(got, "coarse mesh") {
		t.Fatalf("expected stdout and stderr in log, got %q", got)
	}
	if strings.Contains(got, "stale output") {
		t.Fatalf("expected log to be truncated, got %q", got)
	}
}

func TestRunReportsSolverFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	solver := filepath.Join(dir, "fake-em")
	writeExecutable(t, solver, "#!/bin/sh\nexit 4\n")
	script := filepath.Join(dir, "post.tcl")
	if err := os.WriteFile(script, nil, 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	r := &Runner{Solver: solver, Script: script, LogPath: filepath.Join(dir, "post.log"), WorkDir: dir}
	err := r.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "post.log") {
		t.Fatalf("expected failure pointing at the log, got %v", err)
	}
}

func TestRunMissingScript(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	r := &Runner{Solver: "em", Script: filepath.Join(dir, "missing.tcl"), LogPath: filepath.Join(dir, "post.log"), WorkDir: dir}
	if err := r.Run(context.Background()); err == nil {
		t.Fatalf("expected missing script error")
	}
	if _, err := os.Stat(filepath.Join(dir, "post.log")); !os.IsNotExist(err) {
		t.Fatalf("log must not be created when the script is missing")
	}
}
