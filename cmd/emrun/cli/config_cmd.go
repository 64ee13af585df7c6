package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"emrun/internal/config"

	"github.com/spf13/cobra"
)

var configPool string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Edit emrun.toml in $EDITOR, creating a starter file when none exists",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	configCmd.Flags().StringVar(&configPool, "pool", "", "queue pool written into a new starter config")
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	path := configEditPath()
	out := cmd.OutOrStdout()

	switch err := config.WriteStarter(path, configPool); {
	case err == nil:
		fmt.Fprintf(out, "Created %s\n", path)
	case errors.Is(err, fs.ErrExist):
	default:
		return err
	}

	if err := editorCommand(path).Run(); err != nil {
		return fmt.Errorf("open editor: %w", err)
	}
	if _, err := config.Load(path); err != nil {
		return fmt.Errorf("%s needs attention: %w", path, err)
	}
	fmt.Fprintf(out, "Config OK: %s\n", path)
	return nil
}

// configEditPath is the resolved config file, or ./emrun.toml when no
// config exists yet.
func configEditPath() string {
	if path, err := resolveConfigPath(); err == nil {
		return path
	}
	return "emrun.toml"
}

func editorCommand(path string) *exec.Cmd {
	args := strings.Fields(os.Getenv("EDITOR"))
	if len(args) == 0 {
		args = []string{"vi"}
	}
	c := exec.Command(args[0], append(args[1:], path)...)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	return c
}
