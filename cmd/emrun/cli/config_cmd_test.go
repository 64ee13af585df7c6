package cli

import (
	"path/filepath"
	"strings"
	"testing"

	"emrun/internal/config"
)

func useConfigPool(t *testing.T, pool string) {
	t.Helper()
	prev := configPool
	configPool = pool
	t.Cleanup(func() { configPool = prev })
}

func TestRunConfigCreatesStarter(t *testing.T) {
	t.Setenv("EDITOR", "true")
	t.Setenv("EMRUN_POOL", "")
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "emrun.toml")
	useConfig(t, path, false)
	useConfigPool(t, "sc_normal")

	out, err := runWithOutput(t, runConfig)
	if err != nil {
		t.Fatalf("run config: %v", err)
	}
	if !strings.Contains(out, "Created "+path) || !strings.Contains(out, "Config OK: "+path) {
		t.Fatalf("unexpected output %q", out)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load starter: %v", err)
	}
	if cfg.Queue.Pool != "sc_normal" || cfg.Jobs.X.Input != "emsim_x*.in" {
		t.Fatalf("unexpected starter config: pool %q, x input %q", cfg.Queue.Pool, cfg.Jobs.X.Input)
	}
}

func TestRunConfigReportsStarterWithoutPool(t *testing.T) {
	t.Setenv("EDITOR", "true")
	t.Setenv("EMRUN_POOL", "")
	path := filepath.Join(t.TempDir(), "emrun.toml")
	useConfig(t, path, false)
	useConfigPool(t, "")

	_, err := runWithOutput(t, runConfig)
	if err == nil || !strings.Contains(err.Error(), "queue.pool is required") {
		t.Fatalf("expected queue.pool error, got %v", err)
	}
	if !strings.Contains(readFile(t, path), "[queue]") {
		t.Fatalf("expected starter config to stay for editing")
	}
}

func TestRunConfigKeepsExistingFile(t *testing.T) {
	t.Setenv("EDITOR", "true")
	tmp := t.TempDir()
	path := writeTestConfig(t, tmp, "")
	before := readFile(t, path)
	useConfig(t, path, false)
	useConfigPool(t, "other")

	out, err := runWithOutput(t, runConfig)
	if err != nil {
		t.Fatalf("run config: %v", err)
	}
	if strings.Contains(out, "Created") {
		t.Fatalf("existing config reported as created: %q", out)
	}
	if got := readFile(t, path); got != before {
		t.Fatalf("existing config changed:\n%s", got)
	}
}

func TestRunConfigEditorFailure(t *testing.T) {
	t.Setenv("EDITOR", "false")
	path := writeTestConfig(t, t.TempDir(), "")
	useConfig(t, path, false)

	_, err := runWithOutput(t, runConfig)
	if err == nil || !strings.Contains(err.Error(), "open editor") {
		t.Fatalf("expected editor error, got %v", err)
	}
}
