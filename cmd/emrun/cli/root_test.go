package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

func TestRootCmdVersionIncludesCommit(t *testing.T) {
	want := fmt.Sprintf("%s (%s)", version, commit)
	if got := rootCmd.Version; got != want {
		t.Fatalf("rootCmd.Version = %q, want %q", got, want)
	}
}

func TestResolveConfigPathPrefersFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.toml")
	useConfig(t, path, false)

	got, err := resolveConfigPath()
	if err != nil {
		t.Fatalf("resolve config path: %v", err)
	}
	if got != path {
		t.Fatalf("expected %q, got %q", path, got)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	useConfig(t, filepath.Join(t.TempDir(), "missing.toml"), false)
	if _, err := loadConfig(); err == nil || !strings.Contains(err.Error(), "decode config") {
		t.Fatalf("expected decode config error, got %v", err)
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	for _, name := range []string{"submit", "status", "list", "report", "watch", "cancel", "notify", "paths", "config"} {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("expected %q subcommand, got %v (err=%v)", name, cmd, err)
		}
	}
}
