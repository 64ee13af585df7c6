package cli

import (
	"fmt"
	"time"

	"emrun/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	watchAll      bool
	watchInterval time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch [session-id]",
	Short: "Open the interactive session dashboard",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchAll, "all", false, "show sessions from every work dir")
	watchCmd.Flags().DurationVar(&watchInterval, "refresh", 2*time.Second, "refresh interval")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	workDir := cfg.WorkDir
	if watchAll {
		workDir = ""
	}
	model := tui.NewModel(store, workDir, watchInterval)
	if len(args) == 1 {
		sess, err := resolveSession(cmd.Context(), store, cfg, args[0])
		if err != nil {
			return err
		}
		model = model.WithSelected(sess)
	}

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}
