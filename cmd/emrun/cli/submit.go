package cli

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"emrun/internal/config"
	"emrun/internal/controller"
	"emrun/internal/notify"
	"emrun/internal/postprocess"
	"emrun/internal/queue"

	"github.com/spf13/cobra"
)

var submitNoHistory bool

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit the X/Y job pair, monitor it and post-process (default command)",
	Args:  cobra.NoArgs,
	RunE:  runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)
	for _, c := range []*cobra.Command{rootCmd, submitCmd} {
		c.Flags().BoolVar(&submitNoHistory, "no-history", false, "do not record the session in the history database")
	}
}

func runSubmit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// A refused session leaves no trace: no log file, no history database.
	if err := sessionGuard(cfg).CheckNoneActive(); err != nil {
		return err
	}
	closeLog, err := setupRunLogging(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	q, err := queue.NewClientFromConfig(cfg)
	if err != nil {
		return err
	}
	post := &postprocess.Runner{
		Solver:  cfg.Solver.Command,
		Script:  cfg.Solver.PostprocessScript,
		LogPath: cfg.Solver.PostprocessLog,
		WorkDir: cfg.WorkDir,
	}

	ctrl := controller.New(cfg, q, post, cmd.OutOrStdout())
	ctrl.Senders = notify.BuildSenders(cfg.Notifications, &http.Client{Timeout: 10 * time.Second})

	if !submitNoHistory {
		store, err := openStore(cfg)
		if err != nil {
			slog.Warn("history disabled", "error", err)
		} else {
			defer store.Close()
			// Interrupted sessions are recovered by the controller once the
			// marker check has passed.
			ctrl.History = store
		}
	}

	slog.Debug("starting run", "work_dir", cfg.WorkDir, "pool", cfg.Queue.Pool, "poll_interval", cfg.PollInterval())
	return ctrl.Run(cmd.Context())
}

// setupRunLogging writes JSON logs at the configured level to cfg.LogFile
// while warnings stay on stderr as text. Without a log file the root
// logger is kept. The returned func restores the previous logger and
// closes the file.
func setupRunLogging(cfg *config.Config, stderr io.Writer) (func(), error) {
	if cfg.LogFile == "" {
		return func() {}, nil
	}
	fileLevel := cfg.SlogLevel()
	consoleLevel := slog.LevelWarn
	if verbose {
		fileLevel = slog.LevelDebug
		consoleLevel = slog.LevelDebug
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	console := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: consoleLevel})
	file := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: fileLevel})
	prev := slog.Default()
	slog.SetDefault(slog.New(teeHandler{console, file}))
	return func() {
		slog.SetDefault(prev)
		_ = f.Close()
	}, nil
}
