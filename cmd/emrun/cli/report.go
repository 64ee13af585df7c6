package cli

import (
	"fmt"

	"emrun/internal/tui"

	"github.com/spf13/cobra"
)

var reportRaw bool

var reportCmd = &cobra.Command{
	Use:   "report [session-id]",
	Short: "Show a summary of a session (latest by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().BoolVar(&reportRaw, "raw", false, "print markdown without rendering")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	arg := ""
	if len(args) == 1 {
		arg = args[0]
	}
	sess, err := resolveSession(cmd.Context(), store, cfg, arg)
	if err != nil {
		return err
	}
	jobs, err := store.ListJobs(cmd.Context(), sess.ID)
	if err != nil {
		return err
	}

	if jsonOut {
		printJSON(map[string]any{"session": sess, "jobs": jobs})
		return nil
	}
	md := tui.BuildReport(sess, jobs)
	if reportRaw {
		fmt.Fprint(cmd.OutOrStdout(), md)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), tui.RenderMarkdown(md, 100))
	return nil
}
