package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const Version = "0.1.0"

// Default command templates. Placeholders are expanded per token by the
// cmdline package; {input} as a whole token becomes the sorted glob matches.
const (
	DefaultSubmitCmd = "nbjob run --target {pool} --qslot {qslot} --class {class} --parallel slots={slots},slots_per_host={slots_per_host} --log-file {log} {solver} {input}"
	DefaultStatusCmd = "nbstatus jobs --target {pool} --format csv --fields submittime,preexecexitstatus,timeinrunning,exitstatus {job}"
	DefaultRemoveCmd = "nbjob remove --target {pool} {job}"
)

const (
	DefaultPollInterval  = 60 * time.Second
	DefaultJobIDField    = 7
	DefaultInvalidJobID  = "not"
	DefaultMarkerFile    = ".emrun.session"
	DefaultSolverCommand = "em"
)

type Config struct {
	WorkDir  string `toml:"work_dir"`
	DBPath   string `toml:"db_path"`
	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"`

	Queue         QueueConfig         `toml:"queue"`
	Monitor       MonitorConfig       `toml:"monitor"`
	Jobs          JobsConfig          `toml:"jobs"`
	Solver        SolverConfig        `toml:"solver"`
	Session       SessionConfig       `toml:"session"`
	Notifications NotificationsConfig `toml:"notifications"`

	// Resolved at runtime (not in TOML).
	BaseDir      string        `toml:"-"`
	pollInterval time.Duration `toml:"-"`
}

// QueueConfig carries the placement settings of the cluster queue and the
// command templates used to talk to it.
type QueueConfig struct {
	Pool         string `toml:"pool"`
	Class        string `toml:"class"`
	QSlot        string `toml:"qslot"`
	Slots        int    `toml:"slots"`
	SlotsPerHost int    `toml:"slots_per_host"`
	Mail         string `toml:"mail"`

	SubmitCmd string `toml:"submit_cmd"`
	StatusCmd string `toml:"status_cmd"`
	RemoveCmd string `toml:"remove_cmd"`

	JobIDField   int    `toml:"job_id_field"`
	InvalidJobID string `toml:"invalid_job_id"`
}

type MonitorConfig struct {
	// PollInterval is a Go duration ("90s", "2m") or a plain number of seconds.
	PollInterval string `toml:"poll_interval"`
}

type JobsConfig struct {
	X JobConfig `toml:"x"`
	Y JobConfig `toml:"y"`
}

type JobConfig struct {
	Input string `toml:"input"`
	Log   string `toml:"log"`
}

type SolverConfig struct {
	Command           string `toml:"command"`
	PostprocessScript string `toml:"postprocess_script"`
	PostprocessLog    string `toml:"postprocess_log"`
}

type SessionConfig struct {
	Marker         string   `toml:"marker"`
	MarkerPatterns []string `toml:"marker_patterns"`
}

type NotificationsConfig struct {
	WebhookURL   string   `toml:"webhook_url"`
	SlackWebhook string   `toml:"slack_webhook"`
	Triggers     []string `toml:"triggers"`
}

const (
	TriggerCompleted = "completed"
	TriggerFailed    = "failed"
	TriggerCancelled = "cancelled"
)

var defaultNotificationTriggers = []string{
	TriggerCompleted,
	TriggerFailed,
	TriggerCancelled,
}

func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.BaseDir = filepath.Dir(path)
	applyDefaults(cfg)
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	resolvePaths(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}
	if cfg.DBPath == "" {
		if d, err := DataDir(); err == nil {
			cfg.DBPath = filepath.Join(d, "emrun.db")
		} else {
			cfg.DBPath = "emrun.db"
		}
	}
	if cfg.LogFile == "" {
		if d, err := StateDir(); err == nil {
			cfg.LogFile = filepath.Join(d, "emrun.log")
		} else {
			cfg.LogFile = "emrun.log"
		}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	q := &cfg.Queue
	if q.Slots == 0 {
		q.Slots = 16
	}
	if q.SlotsPerHost == 0 {
		q.SlotsPerHost = 8
	}
	if q.SubmitCmd == "" {
		q.SubmitCmd = DefaultSubmitCmd
	}
	if q.StatusCmd == "" {
		q.StatusCmd = DefaultStatusCmd
	}
	if q.RemoveCmd == "" {
		q.RemoveCmd = DefaultRemoveCmd
	}
	if q.JobIDField == 0 {
		q.JobIDField = DefaultJobIDField
	}
	if q.InvalidJobID == "" {
		q.InvalidJobID = DefaultInvalidJobID
	}

	if cfg.Monitor.PollInterval == "" {
		cfg.Monitor.PollInterval = DefaultPollInterval.String()
	}

	if cfg.Jobs.X.Input == "" {
		cfg.Jobs.X.Input = "emsim_x*.in"
	}
	if cfg.Jobs.X.Log == "" {
		cfg.Jobs.X.Log = "em_x.log"
	}
	if cfg.Jobs.Y.Input == "" {
		cfg.Jobs.Y.Input = "emsim_y*.in"
	}
	if cfg.Jobs.Y.Log == "" {
		cfg.Jobs.Y.Log = "em_y.log"
	}

	if cfg.Solver.Command == "" {
		cfg.Solver.Command = DefaultSolverCommand
	}
	if cfg.Solver.PostprocessScript == "" {
		cfg.Solver.PostprocessScript = "post.tcl"
	}
	if cfg.Solver.PostprocessLog == "" {
		cfg.Solver.PostprocessLog = "post.log"
	}

	if cfg.Session.Marker == "" {
		cfg.Session.Marker = DefaultMarkerFile
	}
	if cfg.Session.MarkerPatterns == nil {
		cfg.Session.MarkerPatterns = []string{"*.lock"}
	}

	if cfg.Notifications.Triggers == nil {
		cfg.Notifications.Triggers = slices.Clone(defaultNotificationTriggers)
	}
}

// applyEnv loads a .env file next to the config file (without overriding
// variables already set) and then layers EMRUN_* variables on top.
// Priority (highest → lowest): env > .env > config file.
func applyEnv(cfg *Config) error {
	if err := godotenv.Load(filepath.Join(cfg.BaseDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if v := os.Getenv("EMRUN_WORK_DIR"); v != "" {
		cfg.WorkDir = v
	}
	if v := os.Getenv("EMRUN_POOL"); v != "" {
		cfg.Queue.Pool = v
	}
	if v := os.Getenv("EMRUN_POLL_INTERVAL"); v != "" {
		cfg.Monitor.PollInterval = v
	}
	if v := os.Getenv("EMRUN_WEBHOOK_URL"); v != "" {
		cfg.Notifications.WebhookURL = v
	}
	if v := os.Getenv("EMRUN_SLACK_WEBHOOK"); v != "" {
		cfg.Notifications.SlackWebhook = v
	}
	return nil
}

func validate(cfg *Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log_level: %q", cfg.LogLevel)
	}
	if strings.TrimSpace(cfg.Queue.Pool) == "" {
		return fmt.Errorf("queue.pool is required")
	}
	if cfg.Queue.Slots < 0 || cfg.Queue.SlotsPerHost < 0 {
		return fmt.Errorf("queue.slots and queue.slots_per_host must be positive")
	}
	if cfg.Queue.JobIDField < 1 {
		return fmt.Errorf("invalid queue.job_id_field %d: must be >= 1", cfg.Queue.JobIDField)
	}
	interval, err := ParsePollInterval(cfg.Monitor.PollInterval)
	if err != nil {
		return fmt.Errorf("invalid monitor.poll_interval %q: %w", cfg.Monitor.PollInterval, err)
	}
	cfg.pollInterval = interval
	for _, pattern := range append([]string{cfg.Session.Marker}, cfg.Session.MarkerPatterns...) {
		if strings.ContainsRune(pattern, filepath.Separator) {
			return fmt.Errorf("invalid session marker %q: must be a file name inside work_dir", pattern)
		}
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("invalid session marker pattern %q: %w", pattern, err)
		}
	}
	normalizedTriggers, err := validateNotificationsConfig(cfg.Notifications)
	if err != nil {
		return err
	}
	cfg.Notifications.Triggers = normalizedTriggers
	return nil
}

// ParsePollInterval accepts a Go duration or a plain integer number of seconds.
func ParsePollInterval(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("must be positive")
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return d, nil
}

func validateNotificationsConfig(cfg NotificationsConfig) ([]string, error) {
	if cfg.WebhookURL != "" {
		if err := validateWebhookURL(cfg.WebhookURL); err != nil {
			return nil, fmt.Errorf("invalid notifications.webhook_url: %w", err)
		}
	}
	if cfg.SlackWebhook != "" {
		if err := validateWebhookURL(cfg.SlackWebhook); err != nil {
			return nil, fmt.Errorf("invalid notifications.slack_webhook: %w", err)
		}
	}
	normalized, err := normalizeTriggers(cfg.Triggers)
	if err != nil {
		return nil, fmt.Errorf("invalid notifications.triggers: %w", err)
	}
	return normalized, nil
}

func validateWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

func normalizeTriggers(triggers []string) ([]string, error) {
	out := make([]string, 0, len(triggers))
	seen := make(map[string]struct{}, len(triggers))
	for i, trigger := range triggers {
		normalized := strings.ToLower(strings.TrimSpace(trigger))
		if normalized == "" {
			return nil, fmt.Errorf("trigger at index %d is empty", i)
		}
		switch normalized {
		case TriggerCompleted, TriggerFailed, TriggerCancelled:
		default:
			return nil, fmt.Errorf("unsupported trigger %q", normalized)
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out, nil
}

func resolvePaths(cfg *Config) {
	cfg.WorkDir = absPath(cfg.BaseDir, cfg.WorkDir)
	cfg.DBPath = absPath(cfg.BaseDir, cfg.DBPath)
	if cfg.LogFile != "" {
		cfg.LogFile = absPath(cfg.BaseDir, cfg.LogFile)
	}
	// Job logs, inputs and the post-processing files live in work_dir.
	cfg.Jobs.X.Log = absPath(cfg.WorkDir, cfg.Jobs.X.Log)
	cfg.Jobs.Y.Log = absPath(cfg.WorkDir, cfg.Jobs.Y.Log)
	cfg.Solver.PostprocessLog = absPath(cfg.WorkDir, cfg.Solver.PostprocessLog)
	cfg.Solver.PostprocessScript = absPath(cfg.WorkDir, cfg.Solver.PostprocessScript)
}

func absPath(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// PollInterval returns the validated monitor poll interval.
func (cfg *Config) PollInterval() time.Duration {
	if cfg.pollInterval > 0 {
		return cfg.pollInterval
	}
	if d, err := ParsePollInterval(cfg.Monitor.PollInterval); err == nil {
		return d
	}
	return DefaultPollInterval
}

// InputPattern returns the work_dir-relative glob for a job role's inputs.
func (cfg *Config) InputPattern(role string) string {
	var pattern string
	switch role {
	case "x":
		pattern = cfg.Jobs.X.Input
	case "y":
		pattern = cfg.Jobs.Y.Input
	}
	return absPath(cfg.WorkDir, pattern)
}

func (cfg *Config) SlogLevel() slog.Level {
	switch cfg.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
