// Package tui provides a Bubble Tea console for live tuning and for viewing
// saved captures.
package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/scopecomms/internal/capture"
	"github.com/fakeyudi/scopecomms/internal/perfserver"
	"github.com/fakeyudi/scopecomms/internal/report"
	"github.com/fakeyudi/scopecomms/internal/wire"
)

// ── Styles ────────────

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Background(lipgloss.Color("235")).
				Padding(0, 1)

	tabSepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238")).
			Background(lipgloss.Color("235"))

	sectionHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	timeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("178"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	liveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)

	kindMarkStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	kindSpanStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	sparkStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)

	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("237"))
)

// RefreshInterval is how often live mode polls the server.
const RefreshInterval = 250 * time.Millisecond

const (
	sparkWidth    = 40
	timelineLimit = 500
)

// ── Tab definitions ─────────────────

type tabID int

const (
	tabSummary tabID = iota
	tabLibrary
	tabCounters
	tabTimeline
	tabCount
)

var tabNames = [tabCount]string{"Summary", "Library", "Counters", "Timeline"}

// ── Messages ────────────────────

type tickMsg time.Time

type editResultMsg struct {
	name  string
	value string
	err   error
}

// Source is the live server as seen by the console. *perfserver.Server
// satisfies it.
type Source interface {
	Clients() []perfserver.Snapshot
	Recent() []perfserver.Snapshot
	Edit(id string, item uint32, data []byte) error
}

// ── Model ────────────────────

// Model is the root Bubble Tea model.
type Model struct {
	source   Source
	capture  *capture.Capture
	title    string
	clientID string
	live     bool
	clients  int
	selected int

	activeTab tabID
	viewports [tabCount]viewport.Model
	width     int
	height    int
	ready     bool
	sortAsc   bool
	cursor    int
	status    string
}

// NewStatic creates a model that views a saved capture.
func NewStatic(c *capture.Capture, filename string) Model {
	return Model{capture: c, title: filepath.Base(filename)}
}

// NewLive creates a model that follows the clients of src.
func NewLive(src Source, title string) Model {
	m := Model{source: src, title: title}
	m.refresh()
	return m
}

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd {
	if m.source == nil {
		return nil
	}
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.refresh()
		m.rebuild()
		return m, tick()

	case editResultMsg:
		if msg.err != nil {
			m.status = "edit failed: " + msg.err.Error()
		} else {
			m.status = msg.name + " = " + msg.value
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab", "l", "right":
			m.activeTab = (m.activeTab + 1) % tabCount
			return m, nil
		case "shift+tab", "h", "left":
			m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
			return m, nil
		case "1", "2", "3", "4":
			m.activeTab = tabID(msg.String()[0] - '1')
			return m, nil
		case "c":
			if m.source != nil && m.clients > 1 {
				m.selected = (m.selected + 1) % m.clients
				m.cursor = 0
				m.refresh()
				m.rebuild()
			}
			return m, nil
		case "s":
			if m.activeTab == tabTimeline {
				m.sortAsc = !m.sortAsc
				m.rebuild()
				m.viewports[tabTimeline].GotoTop()
			}
			return m, nil
		}
		if m.activeTab == tabLibrary {
			if cmd, handled := m.libraryKey(msg.String()); handled {
				m.rebuild()
				return m, cmd
			}
		}
		var cmd tea.Cmd
		m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.initViewports()
		return m, nil
	}
	return m, nil
}

// libraryKey handles selection and editing on the Library tab.
func (m *Model) libraryKey(key string) (tea.Cmd, bool) {
	n := 0
	if m.capture != nil {
		n = len(m.capture.Library)
	}
	switch key {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return nil, true
	case "down", "j":
		if m.cursor < n-1 {
			m.cursor++
		}
		return nil, true
	case "+", "=", "]":
		return m.editSelected(1, false), true
	case "-", "_", "[":
		return m.editSelected(-1, false), true
	case "enter", " ":
		return m.editSelected(1, true), true
	}
	return nil, false
}

// editSelected nudges the item under the cursor and sends it to the client.
// With discrete set, only Bool and Enum items respond.
func (m *Model) editSelected(steps int, discrete bool) tea.Cmd {
	if m.capture == nil || m.cursor >= len(m.capture.Library) {
		return nil
	}
	if !m.live {
		m.status = "not connected: values are read-only"
		return nil
	}
	it := m.capture.Library[m.cursor]
	if discrete && it.Type != wire.ItemBool && it.Type != wire.ItemEnum {
		m.status = "use +/- to adjust " + it.Type.String() + " items"
		return nil
	}
	data, ok := nudge(it.Type, it.Data, steps)
	if !ok {
		m.status = it.Type.String() + " items cannot be edited here"
		return nil
	}
	m.capture.Library[m.cursor].Data = data

	src, id, item := m.source, m.clientID, uint32(m.cursor)
	name, value := it.Name, wire.Describe(it.Type, data)
	return func() tea.Msg {
		return editResultMsg{name: name, value: value, err: src.Edit(id, item, data)}
	}
}

// refresh pulls the selected client from the server. When nothing is
// attached it falls back to the most recently finished client.
func (m *Model) refresh() {
	if m.source == nil {
		return
	}
	clients := m.source.Clients()
	m.clients = len(clients)
	var snap *perfserver.Snapshot
	if len(clients) > 0 {
		m.selected %= len(clients)
		snap = &clients[m.selected]
	} else if recent := m.source.Recent(); len(recent) > 0 {
		snap = &recent[len(recent)-1]
	}
	if snap == nil {
		m.capture, m.clientID, m.live = nil, "", false
		return
	}
	if snap.ID != m.clientID {
		m.cursor = 0
	}
	m.capture = capture.FromSnapshot(*snap)
	m.clientID = snap.ID
	m.live = snap.Live()
	if m.cursor >= len(m.capture.Library) {
		m.cursor = max(0, len(m.capture.Library)-1)
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	name := m.title
	if m.capture != nil && m.capture.App != "" {
		name += "  " + m.capture.App
	}
	title := titleStyle.Width(m.width).Render("  scopecomms  " + name)

	var tabParts []string
	for i := tabID(0); i < tabCount; i++ {
		label := fmt.Sprintf(" %d %s ", i+1, tabNames[i])
		if i == m.activeTab {
			tabParts = append(tabParts, activeTabStyle.Render(label))
		} else {
			tabParts = append(tabParts, inactiveTabStyle.Render(label))
		}
		if i < tabCount-1 {
			tabParts = append(tabParts, tabSepStyle.Render("│"))
		}
	}
	tabRow := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Width(m.width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, tabParts...))

	content := m.viewports[m.activeTab].View()

	hint := "  ←/→ tab  ↑/↓ scroll  1-4 jump  q quit"
	switch m.activeTab {
	case tabLibrary:
		if m.live {
			hint = "  ↑/↓ select  +/- nudge  enter toggle  q quit"
		}
	case tabTimeline:
		dir := "newest first"
		if m.sortAsc {
			dir = "oldest first"
		}
		hint += "  s sort (" + dir + ")"
	}
	if m.clients > 1 {
		hint += "  c next client"
	}
	if m.status != "" {
		hint += "  │ " + m.status
	}
	pct := fmt.Sprintf("%3.0f%%", m.viewports[m.activeTab].ScrollPercent()*100)
	pad := max(1, m.width-lipgloss.Width(hint)-len(pct)-2)
	statusBar := statusBarStyle.Width(m.width).Render(hint + strings.Repeat(" ", pad) + pct)

	return lipgloss.JoinVertical(lipgloss.Left, title, tabRow, content, statusBar)
}

// ── Viewport management ───────────────────────────────────────────────────────

func (m *Model) initViewports() {
	// title(1) + tabRow(1) + statusBar(1) = 3 fixed rows
	vpHeight := max(1, m.height-3)
	for i := tabID(0); i < tabCount; i++ {
		vp := viewport.New(m.width, vpHeight)
		vp.SetContent(m.renderTab(i))
		m.viewports[i] = vp
	}
}

// rebuild re-renders every tab, keeping scroll positions.
func (m *Model) rebuild() {
	if !m.ready {
		return
	}
	for i := tabID(0); i < tabCount; i++ {
		m.viewports[i].SetContent(m.renderTab(i))
	}
}

// ── Tab renderers ─────────────────────────────────────────────────────────────

func (m *Model) renderTab(t tabID) string {
	if m.capture == nil {
		return heading("Waiting for a client") + dimStyle.Render("  (no application has connected yet)") + "\n"
	}
	switch t {
	case tabSummary:
		return m.renderSummary()
	case tabLibrary:
		return m.renderLibrary()
	case tabCounters:
		return m.renderCounters()
	case tabTimeline:
		return m.renderTimeline()
	}
	return ""
}

func heading(s string) string {
	return "\n" + sectionHeader.Render("  "+s) + "\n\n"
}

func (m *Model) renderSummary() string {
	c := m.capture
	var sb strings.Builder
	sb.WriteString(heading("Session Summary"))

	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-14s", label)) + "  " + value + "\n")
	}
	row("Application:", c.App)
	row("Instance:", c.Instance)
	if c.Remote != "" {
		row("Remote:", c.Remote)
	}
	row("Protocol:", c.Protocol)
	row("Connected:", c.StartTime.Local().Format("2006-01-02 15:04:05 MST"))
	switch {
	case m.source != nil && m.live:
		row("Status:", liveStyle.Render("live"))
	case c.StopTime != nil:
		end := "dropped"
		if c.Goodbye {
			end = "clean shutdown"
		}
		row("Ended:", c.StopTime.Local().Format("15:04:05")+" ("+end+")")
		row("Duration:", c.StopTime.Sub(c.StartTime).Round(time.Second).String())
	}

	sb.WriteString(heading("Counts"))
	row("Library:", fmt.Sprintf("%d", len(c.Library)))
	row("Counters:", fmt.Sprintf("%d", len(c.Counters)))
	row("Samples:", fmt.Sprintf("%d", len(c.Samples)))
	row("Marks:", fmt.Sprintf("%d", len(c.Marks)))
	row("Spans:", fmt.Sprintf("%d", len(c.Spans)))

	if a := c.Anomalies; a.Any() {
		sb.WriteString(heading("Anomalies"))
		row("Unmatched:", warnStyle.Render(fmt.Sprintf("%d", a.UnmatchedEnds)))
		row("Open spans:", warnStyle.Render(fmt.Sprintf("%d", a.OpenSpans)))
		row("Seq gaps:", warnStyle.Render(fmt.Sprintf("%d", a.SeqGaps)))
		row("Bad frames:", warnStyle.Render(fmt.Sprintf("%d", a.BadFrames)))
	}
	return sb.String()
}

func (m *Model) renderLibrary() string {
	lib := m.capture.Library
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Library (%d)", len(lib))))
	if len(lib) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	for i, it := range lib {
		row := fmt.Sprintf("  %3d  %-24s %-6s  %s", i, truncate(it.Name, 24), it.Type, it.Value())
		if i == m.cursor {
			row = selectedRowStyle.Width(max(1, m.width-2)).Render(row)
		}
		sb.WriteString(row + "\n")
	}
	return sb.String()
}

func (m *Model) renderCounters() string {
	c := m.capture
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Counters (%d samples)", len(c.Samples))))
	if len(c.Counters) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	sb.WriteString(dimStyle.Render(fmt.Sprintf("  %-20s %10s %10s %10s %12s", "name", "last", "min", "max", "mean")) + "\n")
	for i, st := range report.CounterStats(c) {
		fmt.Fprintf(&sb, "  %-20s %10d %10d %10d %12.2f  %s\n",
			truncate(st.Name, 20), st.Last, st.Min, st.Max, st.Mean, sparkStyle.Render(sparkline(c, i, sparkWidth)))
	}
	return sb.String()
}

type timelineEvent struct {
	ts    uint64
	depth int
	badge string
	text  string
}

func (m *Model) renderTimeline() string {
	c := m.capture
	var sb strings.Builder
	dir := "newest first"
	if m.sortAsc {
		dir = "oldest first"
	}
	sb.WriteString(heading(fmt.Sprintf("Timeline (%s)", dir)))

	events := buildTimeline(c)
	if m.sortAsc {
		sort.SliceStable(events, func(i, j int) bool { return events[i].ts < events[j].ts })
	} else {
		sort.SliceStable(events, func(i, j int) bool { return events[i].ts > events[j].ts })
	}
	if len(events) > timelineLimit {
		events = events[:timelineLimit]
	}
	if len(events) == 0 {
		sb.WriteString(dimStyle.Render("  (no marks or spans recorded)") + "\n")
		return sb.String()
	}
	for _, ev := range events {
		ts := timeStyle.Render(fmt.Sprintf("%12s", formatClock(ev.ts)))
		sb.WriteString("  " + ts + "  " + ev.badge + "  " + strings.Repeat("  ", ev.depth) + ev.text + "\n")
	}
	return sb.String()
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func buildTimeline(c *capture.Capture) []timelineEvent {
	events := make([]timelineEvent, 0, len(c.Marks)+len(c.Spans))
	for _, mk := range c.Marks {
		events = append(events, timelineEvent{ts: mk.Timestamp, badge: kindMarkStyle.Render("MARK"), text: mk.Label})
	}
	for _, sp := range report.Outline(c, 0) {
		text := fmt.Sprintf("%s  %s  frame %d", sp.Label, dimStyle.Render(fmt.Sprintf("%dµs", sp.Duration())), sp.Frame)
		if sp.Open {
			text += warnStyle.Render("  open")
		}
		events = append(events, timelineEvent{ts: sp.Begin, depth: sp.Depth, badge: kindSpanStyle.Render("SPAN"), text: text})
	}
	return events
}

// sparkline draws the last width readings of counter i.
func sparkline(c *capture.Capture, i, width int) string {
	const bars = "▁▂▃▄▅▆▇█"
	var vals []uint32
	for _, s := range c.Samples {
		if len(s.Readings) == len(c.Counters) {
			vals = append(vals, s.Readings[i])
		}
	}
	if len(vals) > width {
		vals = vals[len(vals)-width:]
	}
	if len(vals) == 0 {
		return ""
	}
	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		lo, hi = min(lo, v), max(hi, v)
	}
	levels := []rune(bars)
	var sb strings.Builder
	for _, v := range vals {
		idx := 0
		if hi > lo {
			idx = int(uint64(v-lo) * uint64(len(levels)-1) / uint64(hi-lo))
		}
		sb.WriteRune(levels[idx])
	}
	return sb.String()
}

// formatClock renders a session timestamp as seconds.micros.
func formatClock(us uint64) string {
	return fmt.Sprintf("%d.%06d", us/1_000_000, us%1_000_000)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// Run opens a saved capture.
func Run(c *capture.Capture, filename string) error {
	p := tea.NewProgram(NewStatic(c, filename), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RunLive follows src until the user quits or ctx is done.
func RunLive(ctx context.Context, src Source, title string) error {
	p := tea.NewProgram(NewLive(src, title), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
