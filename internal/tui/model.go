// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/cache"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/config"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/logstream"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/models"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/refresh"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/tree"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/tui/styles"
)

type tickMsg time.Time

type refreshDoneMsg struct {
	anyActive bool
	err       error
}

type jobsLoadedMsg struct {
	key cache.RunKey
	err error
}

// logContentMsg carries one virtual document update from the stream
// controller into the bubbletea loop.
type logContentMsg struct {
	uri  string
	text string
}

// chanSink satisfies logstream.DocumentSink by forwarding updates onto
// a channel the model drains with waitForLog.
type chanSink struct {
	updates chan logContentMsg
}

func (s chanSink) SetContent(uri, text string) {
	s.updates <- logContentMsg{uri: uri, text: text}
}

// row is one visible line of the flattened tree, copied out of the
// differ under its lock so rendering never reads node fields a sweep
// is writing. jobIndex is the position of the enclosing job within its
// run; the secondary protocol addresses jobs by position, not id.
type row struct {
	node     tree.Node
	depth    int
	jobIndex int
	expanded bool
}

type Model struct {
	orch       *refresh.Orchestrator
	controller *logstream.Controller
	sink       chanSink
	cfg        *config.Config

	rows   []row
	cursor int

	spinner    spinner.Model
	refreshing bool
	anyActive  bool
	lastErr    error

	// logURI is non-empty while the log pane is open; it names the
	// stream whose updates the pane shows.
	logURI   string
	logPane  viewport.Model
	logTitle string

	width  int
	height int
	ready  bool
}

func NewModel(orch *refresh.Orchestrator, cfg *config.Config) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.RunningStyle
	sink := chanSink{updates: make(chan logContentMsg, 8)}
	return &Model{
		orch:       orch,
		sink:       sink,
		controller: logstream.NewController(orch, sink, logstream.DefaultPollInterval, nil),
		cfg:        cfg,
		spinner:    sp,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), m.spinner.Tick, m.waitForLog())
}

func (m *Model) refreshCmd() tea.Cmd {
	m.refreshing = true
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		active, err := m.orch.RefreshAll(ctx)
		return refreshDoneMsg{anyActive: active, err: err}
	}
}

func (m *Model) loadJobsCmd(key cache.RunKey) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_, err := m.orch.FetchJobsForRun(ctx, key, false)
		return jobsLoadedMsg{key: key, err: err}
	}
}

// scheduleTick picks the poll cadence from run activity: fast while
// anything is live, slow when the whole tree is settled.
func (m *Model) scheduleTick() tea.Cmd {
	secs := m.cfg.PollIdleSeconds
	if m.anyActive {
		secs = m.cfg.PollRunningSeconds
	}
	return tea.Tick(time.Duration(secs)*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) waitForLog() tea.Cmd {
	return func() tea.Msg {
		return <-m.sink.updates
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.logPane = viewport.New(msg.Width-4, m.logPaneHeight())
		m.ready = true
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		if m.refreshing {
			return m, m.scheduleTick()
		}
		return m, m.refreshCmd()

	case refreshDoneMsg:
		m.refreshing = false
		m.anyActive = msg.anyActive
		m.lastErr = msg.err
		m.rebuildRows()
		return m, m.scheduleTick()

	case jobsLoadedMsg:
		if msg.err != nil {
			m.lastErr = msg.err
		}
		m.rebuildRows()
		return m, nil

	case logContentMsg:
		if msg.uri == m.logURI {
			atBottom := m.logPane.AtBottom()
			m.logPane.SetContent(msg.text)
			if atBottom {
				m.logPane.GotoBottom()
			}
		}
		return m, m.waitForLog()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.controller.StopAll()
		m.orch.Close()
		return m, tea.Quit

	case "up", "k":
		if m.logURI != "" && msg.String() == "k" {
			var cmd tea.Cmd
			m.logPane, cmd = m.logPane.Update(msg)
			return m, cmd
		}
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down", "j":
		if m.logURI != "" && msg.String() == "j" {
			var cmd tea.Cmd
			m.logPane, cmd = m.logPane.Update(msg)
			return m, cmd
		}
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
		return m, nil

	case "pgup", "pgdown":
		if m.logURI != "" {
			var cmd tea.Cmd
			m.logPane, cmd = m.logPane.Update(msg)
			return m, cmd
		}
		return m, nil

	case "enter", " ":
		return m.toggleCursor()

	case "l":
		return m.openLogs()

	case "esc":
		if m.logURI != "" {
			m.controller.Stop(m.logURI)
			m.logURI = ""
			m.logTitle = ""
		}
		return m, nil

	case "r":
		if !m.refreshing {
			return m, m.refreshCmd()
		}
		return m, nil
	}
	return m, nil
}

// toggleCursor expands or collapses the node under the cursor.
// Expanding a run lazily triggers its job fetch.
func (m *Model) toggleCursor() (tea.Model, tea.Cmd) {
	if m.cursor >= len(m.rows) {
		return m, nil
	}
	node := m.rows[m.cursor].node
	differ := m.orch.Differ()
	if differ.IsExpanded(node.ID) {
		differ.Collapse(node.ID)
		m.rebuildRows()
		return m, nil
	}
	differ.Expand(node.ID)
	m.rebuildRows()
	if node.ID.Kind == tree.KindRun {
		key := node.ID.RunKey()
		if m.orch.Store().JobCacheFor(key).State != cache.JobStateIdle {
			return m, m.loadJobsCmd(key)
		}
	}
	return m, nil
}

// openLogs starts a live stream for the job or step under the cursor.
func (m *Model) openLogs() (tea.Model, tea.Cmd) {
	if m.cursor >= len(m.rows) {
		return m, nil
	}
	r := m.rows[m.cursor]
	node := r.node

	if m.logURI != "" {
		m.controller.Stop(m.logURI)
		m.logURI = ""
	}

	switch node.ID.Kind {
	case tree.KindJob:
		uri := node.ID.String()
		m.controller.StartJobStream(context.Background(), logstream.JobRef{
			Key:      node.ID.RunKey(),
			JobID:    node.Job.ID,
			JobIndex: r.jobIndex,
		}, uri)
		m.logURI = uri
		m.logTitle = node.Job.Name
	case tree.KindStep:
		uri := node.ID.String()
		m.controller.StartStepStream(context.Background(), logstream.StepRef{
			Key: cache.JobKey{
				Owner:    node.ID.Owner,
				Name:     node.ID.Name,
				RunID:    node.ID.RunID,
				JobIndex: r.jobIndex,
			},
			StepIndex: node.Step.Index,
		}, uri)
		m.logURI = uri
		m.logTitle = node.Step.Name
	default:
		return m, nil
	}
	m.logPane.SetContent(logstream.NoLogsPlaceholder)
	return m, nil
}

// rebuildRows flattens the tree honoring expansion state. Job position
// within the run is carried down to step rows so both can address the
// step-view protocol.
func (m *Model) rebuildRows() {
	var rows []row
	m.orch.Differ().WalkVisible(func(n tree.Node, depth, jobIndex int, expanded bool) {
		rows = append(rows, row{node: n, depth: depth, jobIndex: jobIndex, expanded: expanded})
	})
	m.rows = rows
	if m.cursor >= len(rows) {
		m.cursor = len(rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) logPaneHeight() int {
	h := m.height / 2
	if h < 6 {
		h = 6
	}
	return h
}

func (m *Model) View() string {
	if !m.ready {
		return "loading..."
	}

	var b strings.Builder
	title := " giteawatch "
	if m.refreshing {
		title += m.spinner.View()
	}
	b.WriteString(styles.TitleStyle.Render(title))
	b.WriteString("\n\n")

	treeHeight := m.height - 5
	if m.logURI != "" {
		treeHeight -= m.logPaneHeight() + 2
	}
	start := 0
	if m.cursor >= treeHeight {
		start = m.cursor - treeHeight + 1
	}
	for i := start; i < len(m.rows) && i < start+treeHeight; i++ {
		line := m.renderRow(m.rows[i])
		if i == m.cursor {
			line = styles.SelectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if len(m.rows) == 0 {
		b.WriteString(styles.HelpStyle.Render("  no repositories resolved"))
		b.WriteString("\n")
	}

	if m.logURI != "" {
		header := styles.StatusBarStyle.Render(" logs: " + m.logTitle + " ")
		b.WriteString("\n")
		b.WriteString(header)
		b.WriteString("\n")
		b.WriteString(styles.LogBorderStyle.Width(m.width - 2).Render(m.logPane.View()))
		b.WriteString("\n")
	}

	status := "enter expand · l logs · r refresh · q quit"
	if m.lastErr != nil {
		status = styles.ErrorStyle.Render(truncateLine(m.lastErr.Error(), m.width-2))
	}
	b.WriteString("\n")
	b.WriteString(styles.HelpStyle.Render(status))
	return b.String()
}

func (m *Model) renderRow(r row) string {
	indent := strings.Repeat("  ", r.depth)
	node := r.node

	switch node.ID.Kind {
	case tree.KindRepository:
		label := styles.RepoStyle.Render(node.Repo.FullName())
		switch node.Phase {
		case cache.PhaseLoading:
			label += " " + m.spinner.View()
		case cache.PhaseError:
			label += " " + styles.ErrorStyle.Render(node.Message)
		}
		return fmt.Sprintf("%s%s %s", indent, expandGlyph(r.expanded), label)

	case tree.KindRun:
		conclusion := models.ConclusionNone
		if node.Run != nil {
			conclusion = node.Run.Conclusion
		}
		icon := styles.StatusStyle(node.DisplayStatus, conclusion).
			Render(styles.StatusIcon(node.DisplayStatus, conclusion))
		return fmt.Sprintf("%s%s %s #%d %s %s", indent, expandGlyph(r.expanded),
			icon, node.Run.RunNumber, truncateLine(node.Run.Title, 60),
			styles.HelpStyle.Render(node.Run.Branch))

	case tree.KindJob:
		icon := styles.StatusStyle(node.Job.Status, node.Job.Conclusion).
			Render(styles.StatusIcon(node.Job.Status, node.Job.Conclusion))
		label := node.Job.Name
		if node.Job.StepsError != "" {
			label += " " + styles.ErrorStyle.Render(node.Job.StepsError)
		}
		return fmt.Sprintf("%s%s %s %s", indent, expandGlyph(r.expanded), icon, label)

	case tree.KindStep:
		icon := styles.StatusStyle(node.Step.Status, node.Step.Conclusion).
			Render(styles.StatusIcon(node.Step.Status, node.Step.Conclusion))
		line := fmt.Sprintf("%s  %s %s", indent, icon, node.Step.Name)
		if node.Step.Duration != "" {
			line += " " + styles.HelpStyle.Render(node.Step.Duration)
		}
		return line
	}
	return indent + node.ID.String()
}

func expandGlyph(expanded bool) string {
	if expanded {
		return "▾"
	}
	return "▸"
}

func truncateLine(s string, max int) string {
	if max <= 3 || lipgloss.Width(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
