package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"emrun/internal/db"
	"emrun/internal/session"
)

// ── Styles ──────────────────────────────────────────────────────────────────

const pad = 2 // horizontal padding on each side

var (
	frameStyle    = lipgloss.NewStyle().Padding(1, pad)
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("37"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	barFullStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	barEmptyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	dotRunning    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46")).Render("●")
	dotStopped    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("242")).Render("●")
	stateStyle    = map[string]lipgloss.Style{
		db.SessionSubmitting:     lipgloss.NewStyle().Foreground(lipgloss.Color("246")),
		db.SessionMonitoring:     lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
		db.SessionPostprocessing: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		db.SessionCompleted:      lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		db.SessionFailed:         lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		db.SessionCancelled:      lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		db.JobSubmitted:          lipgloss.NewStyle().Foreground(lipgloss.Color("246")),
		db.JobRunning:            lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
	}
)

// ── Model ───────────────────────────────────────────────────────────────────

// Source is the read side of the history store.
type Source interface {
	ListSessions(ctx context.Context, workDir string, limit int) ([]db.Session, error)
	ListJobs(ctx context.Context, sessionID string) ([]db.Job, error)
}

// Model is the BubbleTea model for `emrun watch`.
//
//	selected == nil  → session list
//	selected != nil  → session detail (jobs with progress bars)
//	showReport       → markdown report of the selected session
type Model struct {
	src      Source
	workDir  string
	interval time.Duration

	sessions []db.Session
	cursor   int

	selected *db.Session
	jobs     []db.Job

	showReport   bool
	reportLines  []string
	scrollOffset int

	err    error
	width  int
	height int
}

func NewModel(src Source, workDir string, interval time.Duration) Model {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return Model{src: src, workDir: workDir, interval: interval}
}

// WithSelected opens the model directly on one session's detail view.
func (m Model) WithSelected(sess db.Session) Model {
	m.selected = &sess
	return m
}

// ── Messages ────────────────────────────────────────────────────────────────

type sessionsMsg []db.Session
type jobsMsg struct {
	sessionID string
	jobs      []db.Job
}
type tickMsg time.Time
type errMsg error

// ── Init / Commands ─────────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.fetchSessions, m.tick()}
	if m.selected != nil {
		cmds = append(cmds, m.fetchJobs(m.selected.ID))
	}
	return tea.Batch(cmds...)
}

func (m Model) fetchSessions() tea.Msg {
	sessions, err := m.src.ListSessions(context.Background(), m.workDir, 50)
	if err != nil {
		return errMsg(err)
	}
	return sessionsMsg(sessions)
}

func (m Model) fetchJobs(sessionID string) tea.Cmd {
	return func() tea.Msg {
		jobs, err := m.src.ListJobs(context.Background(), sessionID)
		if err != nil {
			return errMsg(err)
		}
		return jobsMsg{sessionID: sessionID, jobs: jobs}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) refresh() tea.Cmd {
	cmds := []tea.Cmd{m.fetchSessions}
	if m.selected != nil {
		cmds = append(cmds, m.fetchJobs(m.selected.ID))
	}
	return tea.Batch(cmds...)
}

// ── Update ──────────────────────────────────────────────────────────────────

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.showReport {
			m.reportLines = m.renderReport()
		}
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.refresh(), m.tick())

	case sessionsMsg:
		m.err = nil
		m.sessions = msg
		if m.cursor >= len(m.sessions) {
			m.cursor = max(len(m.sessions)-1, 0)
		}
		if m.selected != nil {
			for i := range m.sessions {
				if m.sessions[i].ID == m.selected.ID {
					s := m.sessions[i]
					m.selected = &s
					break
				}
			}
		}
		return m, nil

	case jobsMsg:
		if m.selected != nil && m.selected.ID == msg.sessionID {
			m.jobs = msg.jobs
			if m.showReport {
				m.reportLines = m.renderReport()
			}
		}
		return m, nil

	case errMsg:
		m.err = msg
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "r":
		return m, m.refresh()
	case "esc", "backspace":
		switch {
		case m.showReport:
			m.showReport = false
			m.scrollOffset = 0
		case m.selected != nil:
			m.selected = nil
			m.jobs = nil
		}
		return m, nil
	}

	if m.showReport {
		switch msg.String() {
		case "up", "k":
			if m.scrollOffset > 0 {
				m.scrollOffset--
			}
		case "down", "j":
			if m.scrollOffset < len(m.reportLines)-1 {
				m.scrollOffset++
			}
		}
		return m, nil
	}

	if m.selected != nil {
		if msg.String() == "m" {
			m.showReport = true
			m.scrollOffset = 0
			m.reportLines = m.renderReport()
		}
		return m, nil
	}

	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.sessions)-1 {
			m.cursor++
		}
	case "enter":
		if m.cursor < len(m.sessions) {
			s := m.sessions[m.cursor]
			m.selected = &s
			m.jobs = nil
			return m, m.fetchJobs(s.ID)
		}
	}
	return m, nil
}

func (m Model) renderReport() []string {
	if m.selected == nil {
		return nil
	}
	text := RenderMarkdown(BuildReport(*m.selected, m.jobs), m.cw())
	return strings.Split(text, "\n")
}

// ── View ────────────────────────────────────────────────────────────────────

func (m Model) View() string {
	var content string
	switch {
	case m.err != nil:
		content = fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err)
	case m.showReport:
		content = m.reportView()
	case m.selected != nil:
		content = m.detailView()
	default:
		content = m.listView()
	}
	return frameStyle.Render(content)
}

func (m Model) listView() string {
	var b strings.Builder
	w := m.cw()

	b.WriteString(titleStyle.Render("EMRUN"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(strings.Repeat("─", w)))
	b.WriteString("\n\n")

	if len(m.sessions) == 0 {
		b.WriteString(dimStyle.Render("  No sessions recorded yet. Start one with `emrun submit`."))
		b.WriteString("\n")
	} else {
		b.WriteString(headerStyle.Render(fmt.Sprintf("  %-10s %-15s %-5s %-21s %s", "SESSION", "STATE", "EXIT", "STARTED", "WORK DIR")))
		b.WriteString("\n")
		for i, s := range m.sessions {
			line := fmt.Sprintf("%s %-10s %s %-5s %-21s %s",
				liveDot(s),
				db.ShortID(s.ID),
				stateStyle[s.State].Render(padRight(s.State, 15)),
				optionalInt(s.ExitCode),
				s.CreatedAt,
				truncate(s.WorkDir, max(w-60, 12)))
			if i == m.cursor {
				line = selectedStyle.Render("▸") + line
			} else {
				line = " " + line
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("↑/↓ select · enter open · r refresh · q quit"))
	return b.String()
}

func (m Model) detailView() string {
	var b strings.Builder
	w := m.cw()
	s := m.selected

	b.WriteString(titleStyle.Render("SESSION " + db.ShortID(s.ID)))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(strings.Repeat("─", w)))
	b.WriteString("\n\n")

	kv := func(k, v string) {
		b.WriteString(fmt.Sprintf("  %s  %s\n", labelStyle.Render(padRight(k, 9)), v))
	}
	kv("state", liveDot(*s)+" "+stateStyle[s.State].Render(s.State))
	kv("work dir", s.WorkDir)
	if s.Pool != "" {
		kv("pool", s.Pool)
	}
	kv("started", s.CreatedAt)
	if s.CompletedAt != "" {
		kv("finished", s.CompletedAt+"  (exit "+optionalInt(s.ExitCode)+")")
	}
	if s.ErrorMessage != "" {
		kv("error", s.ErrorMessage)
	}
	b.WriteString("\n")

	if len(m.jobs) == 0 {
		b.WriteString(dimStyle.Render("  No jobs submitted."))
		b.WriteString("\n")
	}
	barWidth := min(max(w-40, 10), 50)
	for _, j := range m.jobs {
		b.WriteString(fmt.Sprintf("  %s  %-10s %s %s %3d%%\n",
			headerStyle.Render(strings.ToUpper(j.Role)),
			j.QueueJobID,
			stateStyle[j.State].Render(padRight(j.State, 10)),
			progressBar(j.Progress, barWidth),
			j.Progress))
		b.WriteString(dimStyle.Render(fmt.Sprintf("       exit %s · pre-exec %s · running %s",
			optionalInt(j.ExitStatus), optionalInt(j.PreExecExitStatus), orNA(j.TimeInRunning))))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("m report · esc back · r refresh · q quit"))
	return b.String()
}

func (m Model) reportView() string {
	visible := len(m.reportLines)
	if m.height > 4 {
		visible = m.height - 4
	}
	start := min(m.scrollOffset, len(m.reportLines))
	end := min(start+visible, len(m.reportLines))
	return strings.Join(m.reportLines[start:end], "\n") + "\n\n" +
		dimStyle.Render("↑/↓ scroll · esc back · q quit")
}

// ── Helpers ─────────────────────────────────────────────────────────────────

// cw is the content width inside the frame.
func (m Model) cw() int {
	if m.width <= 0 {
		return 80
	}
	return max(m.width-2*pad, 20)
}

func liveDot(s db.Session) string {
	if db.IsActiveState(s.State) && session.ProcessAlive(s.PID) {
		return dotRunning
	}
	return dotStopped
}

func progressBar(percent, width int) string {
	percent = min(max(percent, 0), 100)
	filled := percent * width / 100
	return barFullStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", width-filled))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}
