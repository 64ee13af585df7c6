// Package postprocess runs the final local solver pass once both queue jobs
// have finished.
package postprocess

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"emrun/internal/cmdline"
)

// DefaultTemplate runs the solver on the post-processing script.
const DefaultTemplate = "{solver} {script}"

type Runner struct {
	Solver  string
	Script  string
	LogPath string
	WorkDir string
	// Template overrides DefaultTemplate when set.
	Template cmdline.Template
}

// Run executes the post-processing command with stdout and stderr
// redirected to LogPath (truncated first) and waits for it to finish.
func (r *Runner) Run(ctx context.Context) error {
	tmpl := r.Template
	if len(tmpl.Args()) == 0 {
		tmpl = cmdline.MustParse(DefaultTemplate)
	}
	argv, err := tmpl.Expand(cmdline.Vars{"solver": r.Solver, "script": r.Script})
	if err != nil {
		return fmt.Errorf("post-process command: %w", err)
	}
	if _, err := os.Stat(r.Script); err != nil {
		return fmt.Errorf("post-process script: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.LogPath), 0o755); err != nil {
		return fmt.Errorf("create post-process log dir: %w", err)
	}
	logFile, err := os.OpenFile(r.LogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open post-process log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.WorkDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	start := time.Now()
	slog.Info("post-processing started", "argv", argv, "log", r.LogPath)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("post-process %s: %w (see %s)", filepath.Base(r.Script), err, r.LogPath)
	}
	slog.Info("post-processing finished", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}
