package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const starterHeader = `# emrun configuration.
# Command templates are tokenized without a shell. Placeholders:
#   {pool} {class} {qslot} {slots} {slots_per_host} {mail} {log} {input} {solver} {job}
# db_path and log_file default to the XDG data and state directories.

`

// Starter returns a configuration holding every default, with pool as the
// queue pool. DBPath and LogFile stay empty so Load resolves them.
func Starter(pool string) *Config {
	cfg := &Config{Queue: QueueConfig{Pool: pool}}
	applyDefaults(cfg)
	cfg.DBPath = ""
	cfg.LogFile = ""
	return cfg
}

// WriteStarter creates path with the Starter configuration. An existing
// file is never replaced.
func WriteStarter(path, pool string) error {
	var buf bytes.Buffer
	buf.WriteString(starterHeader)
	if err := toml.NewEncoder(&buf).Encode(Starter(pool)); err != nil {
		return fmt.Errorf("encode starter config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create config %s: %w", path, err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return f.Close()
}
