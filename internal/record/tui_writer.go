package record

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"rlsim-bridge/internal/telemetry"
	"rlsim-bridge/internal/wire"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// sampleMsg carries a sample and its log line.
type sampleMsg struct {
	line   string
	sample telemetry.Sample
}

// episodeMsg carries a finished episode.
type episodeMsg struct{ EpisodeRow }

const maxLogLines = 500

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	tsStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	forceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	poseStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// TUIWriter renders samples using a bubbletea TUI.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter. Quitting
// the TUI interrupts the process.
func NewTUIWriter(title string) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(title), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// WriteSample implements SampleWriter.
func (w *TUIWriter) WriteSample(s telemetry.Sample) error {
	line := fmt.Sprintf("%s run=%s tick=%d %s %s",
		tsStyle.Render(s.Timestamp.Format(time.RFC3339)),
		shortID(s.RunID), s.Tick,
		forceStyle.Render(fmt.Sprintf("force=(%.1f,%.1f,%.1f)", s.Force.X, s.Force.Y, s.Force.N)),
		poseStyle.Render(fmt.Sprintf("pose=(%.3f,%.3f,%.2f°)", s.Pose.X, s.Pose.Y, wire.RadToDeg(s.Pose.Heading))),
	)
	w.program.Send(sampleMsg{line: line, sample: s})
	return nil
}

// WriteSamples sends each sample to the TUI.
func (w *TUIWriter) WriteSamples(rows []telemetry.Sample) error {
	for _, r := range rows {
		_ = w.WriteSample(r)
	}
	return nil
}

// WriteEpisode implements EpisodeWriter.
func (w *TUIWriter) WriteEpisode(e EpisodeRow) error {
	w.program.Send(episodeMsg{e})
	return nil
}

// Close stops the TUI without interrupting the process.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if q, ok := w.program.(interface{ Quit() }); ok {
		q.Quit()
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type runRow struct {
	ticks int
	last  telemetry.Sample
}

type tuiModel struct {
	title      string
	table      table.Model
	vp         viewport.Model
	logs       []string
	episodes   []EpisodeRow
	runs       map[string]runRow
	wrap       bool
	autoscroll bool
	width      int
	height     int
}

func newTUIModel(title string) tuiModel {
	cols := []table.Column{
		{Title: "Run", Width: 10},
		{Title: "Ticks", Width: 7},
		{Title: "X (m)", Width: 12},
		{Title: "Y (m)", Width: 12},
		{Title: "Heading (°)", Width: 12},
		{Title: "Force X/Y/N", Width: 28},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(4))
	return tuiModel{
		title:      title,
		table:      t,
		vp:         viewport.New(0, 0),
		runs:       make(map[string]runRow),
		autoscroll: true,
	}
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.updateViewportHeight()
		m.refreshViewport()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
		default:
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(msg)
			return m, cmd
		}
	case sampleMsg:
		r := m.runs[msg.sample.RunID]
		r.ticks++
		r.last = msg.sample
		m.runs[msg.sample.RunID] = r
		m.refreshTable()
		m.appendLog(msg.line)
	case episodeMsg:
		m.episodes = append(m.episodes, msg.EpisodeRow)
		m.appendLog(titleStyle.Render(fmt.Sprintf("episode %s finished: steps=%d distance=%.2fm", msg.Name, msg.Steps, msg.Distance)))
	}
	return m, nil
}

func (m *tuiModel) appendLog(line string) {
	m.logs = append(m.logs, line)
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
	m.refreshViewport()
}

func (m *tuiModel) refreshTable() {
	ids := make([]string, 0, len(m.runs))
	for id := range m.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rows := make([]table.Row, 0, len(ids))
	for _, id := range ids {
		r := m.runs[id]
		p, f := r.last.Pose, r.last.Force
		rows = append(rows, table.Row{
			shortID(id),
			fmt.Sprintf("%d", r.ticks),
			fmt.Sprintf("%.3f", p.X),
			fmt.Sprintf("%.3f", p.Y),
			fmt.Sprintf("%.2f", wire.RadToDeg(p.Heading)),
			fmt.Sprintf("%.0f/%.0f/%.0f", f.X, f.Y, f.N),
		})
	}
	m.table.SetRows(rows)
	m.table.SetHeight(len(rows) + 1)
	m.updateViewportHeight()
}

func (m *tuiModel) updateViewportHeight() {
	h := m.height - lipgloss.Height(m.renderHeader()) - lipgloss.Height(m.renderHelp()) - 2
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
	lines := make([]string, 0, len(m.logs))
	for _, l := range m.logs {
		if m.wrap && m.vp.Width > 0 {
			l = wordwrap.String(l, m.vp.Width)
		}
		lines = append(lines, l)
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) renderHeader() string {
	return titleStyle.Render(m.title) + "\n" + m.table.View()
}

func (m tuiModel) renderHelp() string {
	flags := fmt.Sprintf("wrap=%v autoscroll=%v", m.wrap, m.autoscroll)
	return helpStyle.Render("q quit • w wrap • s autoscroll • ↑/↓ scroll  " + flags)
}

func (m tuiModel) View() string {
	divider := strings.Repeat("─", m.width)
	return strings.Join([]string{m.renderHeader(), divider, m.vp.View(), divider, m.renderHelp()}, "\n")
}
