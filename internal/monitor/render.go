package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true)
	stateStyle = map[State]lipgloss.Style{
		StateSubmitted: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		StateRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		StateCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
	}
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// StatusLine renders one rewritable progress line for all jobs.
func StatusLine(jobs []*Job) string {
	parts := make([]string, 0, len(jobs))
	for _, j := range jobs {
		parts = append(parts, fmt.Sprintf("%s %s %3d%%",
			labelStyle.Render(j.Label()+":"),
			stateStyle[j.State].Render(string(j.State)),
			j.Progress))
	}
	return strings.Join(parts, "  |  ")
}

func completionMessage(j *Job) string {
	exit := *j.ExitStatus
	verdict := stateStyle[StateCompleted].Render("Success!")
	if exit != 0 {
		verdict = failStyle.Render("Failure!")
	}
	return fmt.Sprintf("%s job %s has completed with exit status %d (%s)", j.Label(), j.ID, exit, verdict)
}

// Summary renders the final report printed when monitoring ends.
func Summary(jobs []*Job) string {
	var b strings.Builder
	for _, j := range jobs {
		exit := "n/a"
		if j.ExitStatus != nil {
			exit = fmt.Sprintf("%d", *j.ExitStatus)
		}
		running := j.TimeInRunning
		if running == "" {
			running = "n/a"
		}
		fmt.Fprintf(&b, "%s job %s: %s, exit status %s, time in running %s, progress %d%%\n",
			j.Label(), j.ID, j.State, exit, running, j.Progress)
	}
	return b.String()
}
