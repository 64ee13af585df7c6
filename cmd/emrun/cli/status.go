package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"emrun/internal/db"
	"emrun/internal/session"

	"github.com/spf13/cobra"
)

type statusJob struct {
	Role       string `json:"role"`
	QueueJobID string `json:"queue_job_id"`
	State      string `json:"state"`
	ExitStatus *int   `json:"exit_status"`
	Progress   int    `json:"progress"`
}

type statusOutput struct {
	WorkDir     string      `json:"work_dir"`
	Active      bool        `json:"active"`
	Markers     []string    `json:"markers"`
	PID         int         `json:"pid,omitempty"`
	Running     bool        `json:"running"`
	SessionID   string      `json:"session_id,omitempty"`
	State       string      `json:"state,omitempty"`
	ExitCode    *int        `json:"exit_code,omitempty"`
	StartedAt   string      `json:"started_at,omitempty"`
	CompletedAt string      `json:"completed_at,omitempty"`
	Jobs        []statusJob `json:"jobs"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a session is active and the latest run's jobs",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	guard := sessionGuard(cfg)
	markers, err := guard.Active()
	if err != nil {
		return err
	}
	out := statusOutput{WorkDir: cfg.WorkDir, Active: len(markers) > 0, Markers: markers, Jobs: []statusJob{}}
	if info, err := session.ReadMarker(guard.MarkerPath()); err == nil {
		out.PID = info.PID
		out.Running = session.ProcessAlive(info.PID)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	sess, err := store.LatestSession(cmd.Context(), cfg.WorkDir)
	switch {
	case errors.Is(err, db.ErrNotFound):
	case err != nil:
		return err
	default:
		out.SessionID = sess.ID
		out.State = sess.State
		out.ExitCode = sess.ExitCode
		out.StartedAt = sess.CreatedAt
		out.CompletedAt = sess.CompletedAt
		jobs, err := store.ListJobs(cmd.Context(), sess.ID)
		if err != nil {
			return err
		}
		for _, j := range jobs {
			out.Jobs = append(out.Jobs, statusJob{
				Role: j.Role, QueueJobID: j.QueueJobID, State: j.State, ExitStatus: j.ExitStatus, Progress: j.Progress,
			})
		}
	}

	if jsonOut {
		printJSON(out)
		return nil
	}
	renderStatus(os.Stdout, out)
	return nil
}

func renderStatus(w io.Writer, out statusOutput) {
	fmt.Fprintf(w, "Work dir:  %s\n", out.WorkDir)
	switch {
	case out.Running:
		fmt.Fprintf(w, "Session:   active (emrun pid %d)\n", out.PID)
	case out.Active:
		fmt.Fprintf(w, "Session:   active (marker: %s)\n", strings.Join(out.Markers, ", "))
	default:
		fmt.Fprintln(w, "Session:   none active")
	}
	if out.SessionID == "" {
		fmt.Fprintln(w, "Last run:  none recorded")
		return
	}
	exit := "-"
	if out.ExitCode != nil {
		exit = fmt.Sprintf("%d", *out.ExitCode)
	}
	fmt.Fprintf(w, "Last run:  %s  %s  exit %s  started %s\n", db.ShortID(out.SessionID), out.State, exit, out.StartedAt)
	for _, j := range out.Jobs {
		status := "-"
		if j.ExitStatus != nil {
			status = fmt.Sprintf("%d", *j.ExitStatus)
		}
		fmt.Fprintf(w, "  %s  %-10s %-10s exit %-4s %3d%%\n", strings.ToUpper(j.Role), j.QueueJobID, j.State, status, j.Progress)
	}
}
