package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"emrun/internal/db"

	"github.com/spf13/cobra"
)

var (
	listAll   bool
	listLimit int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded sessions",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVar(&listAll, "all", false, "include sessions from every work dir")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "maximum number of sessions")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
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
	if listAll {
		workDir = ""
	}
	sessions, err := store.ListSessions(cmd.Context(), workDir, listLimit)
	if err != nil {
		return err
	}

	if jsonOut {
		printJSON(sessions)
		return nil
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tSTATE\tEXIT\tSTARTED\tWORK DIR")
	for _, s := range sessions {
		exit := "-"
		if s.ExitCode != nil {
			exit = fmt.Sprintf("%d", *s.ExitCode)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", db.ShortID(s.ID), s.State, exit, s.CreatedAt, s.WorkDir)
	}
	return w.Flush()
}
