package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"emrun/internal/db"
)

// BuildReport renders a session and its jobs as markdown.
func BuildReport(sess db.Session, jobs []db.Job) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# emrun session %s\n\n", db.ShortID(sess.ID))
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Session | `%s` |\n", sess.ID)
	fmt.Fprintf(&b, "| State | **%s** |\n", sess.State)
	fmt.Fprintf(&b, "| Exit code | %s |\n", optionalInt(sess.ExitCode))
	fmt.Fprintf(&b, "| Work dir | `%s` |\n", sess.WorkDir)
	if sess.Pool != "" {
		fmt.Fprintf(&b, "| Pool | %s |\n", sess.Pool)
	}
	fmt.Fprintf(&b, "| Started | %s |\n", sess.CreatedAt)
	if sess.CompletedAt != "" {
		fmt.Fprintf(&b, "| Finished | %s |\n", sess.CompletedAt)
	}
	if sess.ErrorMessage != "" {
		fmt.Fprintf(&b, "\n> %s\n", sess.ErrorMessage)
	}

	b.WriteString("\n## Jobs\n\n")
	if len(jobs) == 0 {
		b.WriteString("_No jobs were submitted._\n")
		return b.String()
	}
	b.WriteString("| Job | Queue id | State | Exit | Pre-exec | Submitted | Running | Progress |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|\n")
	for _, j := range jobs {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %d%% |\n",
			strings.ToUpper(j.Role), j.QueueJobID, j.State,
			optionalInt(j.ExitStatus), optionalInt(j.PreExecExitStatus),
			orNA(j.SubmitTime), orNA(j.TimeInRunning), j.Progress)
	}
	b.WriteString("\n### Logs\n\n")
	for _, j := range jobs {
		if j.LogPath != "" {
			fmt.Fprintf(&b, "- %s: `%s`\n", strings.ToUpper(j.Role), j.LogPath)
		}
	}
	return b.String()
}

// RenderMarkdown renders markdown for the terminal, falling back to the
// raw text when rendering fails.
func RenderMarkdown(text string, width int) string {
	if width < 40 {
		width = 76
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return text
	}
	rendered, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(rendered, "\n")
}

func optionalInt(v *int) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%d", *v)
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}
