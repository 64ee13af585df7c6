package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"emrun/internal/session"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Interrupt the emrun session running in the work dir",
	Long:  "Sends SIGINT to the emrun process that owns the work dir's session marker. It removes both queue jobs and exits with status 130.",
	Args:  cobra.NoArgs,
	RunE:  runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	guard := sessionGuard(cfg)
	info, err := session.ReadMarker(guard.MarkerPath())
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("no emrun session is active in %s", cfg.WorkDir)
	}
	if err != nil {
		return err
	}
	if !session.ProcessAlive(info.PID) {
		return fmt.Errorf("session marker %s names pid %d, which is not running; remove the marker by hand once you have checked the queue", guard.MarkerPath(), info.PID)
	}
	if err := session.Interrupt(info.PID); err != nil {
		return fmt.Errorf("interrupt pid %d: %w", info.PID, err)
	}

	if jsonOut {
		printJSON(map[string]any{"session_id": info.SessionID, "pid": info.PID, "signalled": true})
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sent interrupt to emrun pid %d (session %s).\n", info.PID, info.SessionID)
	return nil
}
