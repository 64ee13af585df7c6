package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"emrun/internal/config"
	"emrun/internal/controller"
	"emrun/internal/db"
	"emrun/internal/session"

	"github.com/spf13/cobra"
)

var (
	cfgPath string
	verbose bool
	jsonOut bool
	version = "dev"
	commit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "emrun",
	Short:   "Submit and monitor EM solver X/Y job pairs",
	Long:    "emrun submits the X and Y solver jobs of an EM simulation to the cluster queue, follows their progress until both finish, then runs post-processing locally.",
	Version: fmt.Sprintf("%s (%s)", version, commit),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
	Args:          cobra.NoArgs,
	RunE:          runSubmit,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output JSON")
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return controller.ExitCode(err)
	}
	return controller.ExitOK
}

// resolveConfigPath determines which config file to use.
// Priority: --config flag > ./emrun.toml > ~/.config/emrun/config.toml.
func resolveConfigPath() (string, error) {
	if cfgPath != "" {
		return cfgPath, nil
	}
	if _, err := os.Stat("emrun.toml"); err == nil {
		return "emrun.toml", nil
	}
	globalPath, err := config.GlobalConfigPath()
	if err == nil {
		if _, err := os.Stat(globalPath); err == nil {
			return globalPath, nil
		}
	}
	return "", fmt.Errorf("no config file found. Create emrun.toml in the simulation directory or pass --config")
}

func loadConfig() (*config.Config, error) {
	path, err := resolveConfigPath()
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

func openStore(cfg *config.Config) (*db.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	// Orphaned WAL sidecars confuse SQLite when the main DB was deleted.
	if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
		_ = os.Remove(cfg.DBPath + "-shm")
		_ = os.Remove(cfg.DBPath + "-wal")
	}
	return db.Open(cfg.DBPath)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// resolveSession returns the session named by a full or partial id, or the
// latest session in the work dir when arg is empty.
func resolveSession(ctx context.Context, store *db.Store, cfg *config.Config, arg string) (db.Session, error) {
	if arg == "" {
		sess, err := store.LatestSession(ctx, cfg.WorkDir)
		if err != nil {
			return db.Session{}, fmt.Errorf("latest session in %s: %w", cfg.WorkDir, err)
		}
		return sess, nil
	}
	id, err := store.ResolveSessionID(ctx, arg)
	if err != nil {
		return db.Session{}, err
	}
	return store.GetSession(ctx, id)
}

func sessionGuard(cfg *config.Config) session.Guard {
	return session.Guard{Dir: cfg.WorkDir, Marker: cfg.Session.Marker, Patterns: cfg.Session.MarkerPatterns}
}
