package tui

import (
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"pgregory.net/rapid"

	"github.com/fakeyudi/scopecomms/internal/capture"
	"github.com/fakeyudi/scopecomms/internal/perfserver"
	"github.com/fakeyudi/scopecomms/internal/wire"
)

// Property: nudging a Float or Int never leaves its range.
func TestNudgeStaysInRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lo := rapid.Float32Range(-1000, 1000).Draw(t, "lo")
		hi := lo + rapid.Float32Range(0, 1000).Draw(t, "span")
		cur := rapid.Float32Range(lo, hi).Draw(t, "cur")
		steps := rapid.IntRange(-300, 300).Draw(t, "steps")

		out, ok := nudge(wire.ItemFloat, wire.FloatValue{Current: cur, Min: lo, Max: hi}.Bytes(), steps)
		if !ok {
			t.Fatal("float not nudged")
		}
		v, _ := wire.ParseFloatValue(out)
		if v.Current < lo || v.Current > hi || v.Min != lo || v.Max != hi {
			t.Fatalf("nudge(%v in [%v, %v], %d) = %+v", cur, lo, hi, steps, v)
		}

		ilo := rapid.Int32Range(-1000, 0).Draw(t, "ilo")
		ihi := rapid.Int32Range(0, 1000).Draw(t, "ihi")
		out, ok = nudge(wire.ItemInt, wire.IntValue{Current: 0, Min: ilo, Max: ihi}.Bytes(), steps)
		if !ok {
			t.Fatal("int not nudged")
		}
		iv, _ := wire.ParseIntValue(out)
		if iv.Current < ilo || iv.Current > ihi {
			t.Fatalf("int nudge left range: %+v", iv)
		}
	})
}

func TestNudgeDiscreteTypes(t *testing.T) {
	out, ok := nudge(wire.ItemBool, wire.BoolValue(false).Bytes(), 1)
	if v, _ := wire.ParseBoolValue(out); !ok || !bool(v) {
		t.Errorf("bool toggle = %v, %v", v, ok)
	}
	out, ok = nudge(wire.ItemEnum, wire.EnumValue{Selected: 0, Options: []string{"a", "b", "c"}}.Bytes(), -1)
	if v, _ := wire.ParseEnumValue(out); !ok || v.Selected != 2 {
		t.Errorf("enum wrap = %+v, %v", v, ok)
	}
	if _, ok := nudge(wire.ItemString, []byte("src"), 1); ok {
		t.Error("string items should not nudge")
	}
	if _, ok := nudge(wire.ItemFloat, []byte{1}, 1); ok {
		t.Error("malformed float should not nudge")
	}
}

type sentEdit struct {
	id   string
	item uint32
	data []byte
}

type fakeSource struct {
	mu      sync.Mutex
	clients []perfserver.Snapshot
	recent  []perfserver.Snapshot
	edits   []sentEdit
}

func (f *fakeSource) Clients() []perfserver.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]perfserver.Snapshot(nil), f.clients...)
}

func (f *fakeSource) Recent() []perfserver.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]perfserver.Snapshot(nil), f.recent...)
}

func (f *fakeSource) Edit(id string, item uint32, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, sentEdit{id, item, data})
	return nil
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(t *testing.T, m Model, msgs ...tea.Msg) (Model, []tea.Cmd) {
	t.Helper()
	var cmds []tea.Cmd
	for _, msg := range msgs {
		next, cmd := m.Update(msg)
		m = next.(Model)
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return m, cmds
}

func liveClient() perfserver.Snapshot {
	return perfserver.Snapshot{
		ID:        "c1",
		App:       "Demo",
		Connected: time.Now(),
		Items: []wire.LibraryItem{
			{Name: "thickness", Type: wire.ItemFloat, Data: wire.FloatValue{Current: 50, Min: 0, Max: 100}.Bytes()},
			{Name: "wireframe", Type: wire.ItemBool, Data: wire.BoolValue(false).Bytes()},
		},
		Counters: []string{"Frames"},
		Samples:  []perfserver.Sample{{Seq: 0, Readings: []uint32{1}}, {Seq: 1, Readings: []uint32{5}}},
		Marks:    []wire.Mark{{Timestamp: 10, Label: "start"}},
		Spans:    []wire.Span{{Label: "draw", Begin: 5, End: 9}},
	}
}

func TestLiveModeEditsSelectedItem(t *testing.T) {
	src := &fakeSource{clients: []perfserver.Snapshot{liveClient()}}
	m := NewLive(src, "test")
	if cmd := m.Init(); cmd == nil {
		t.Fatal("live mode should schedule a refresh")
	}
	m, _ = send(t, m, tea.WindowSizeMsg{Width: 100, Height: 30}, key("2"))

	// Nudge the float up by 1% of its range.
	m, cmds := send(t, m, key("+"))
	if len(cmds) != 1 {
		t.Fatalf("expected one edit command, got %d", len(cmds))
	}
	res := cmds[0]().(editResultMsg)
	if res.err != nil || !strings.HasPrefix(res.value, "51 ") {
		t.Errorf("edit result = %+v", res)
	}

	// Enter does nothing on a float but toggles the bool.
	m, cmds = send(t, m, key("enter"))
	if len(cmds) != 0 || !strings.Contains(m.status, "+/-") {
		t.Errorf("enter on a float: cmds=%d status=%q", len(cmds), m.status)
	}
	m, cmds = send(t, m, key("down"), key("enter"))
	if len(cmds) != 1 {
		t.Fatalf("expected a toggle command, got %d", len(cmds))
	}
	cmds[0]()

	src.mu.Lock()
	defer src.mu.Unlock()
	if len(src.edits) != 2 {
		t.Fatalf("edits = %+v", src.edits)
	}
	if e := src.edits[0]; e.id != "c1" || e.item != 0 {
		t.Errorf("first edit = %+v", e)
	}
	if e := src.edits[1]; e.item != 1 || e.data[0] != 1 {
		t.Errorf("second edit = %+v", e)
	}
}

func TestLiveModeFallsBackToRecentReadOnly(t *testing.T) {
	done := liveClient()
	done.Ended = time.Now()
	src := &fakeSource{recent: []perfserver.Snapshot{done}}
	m := NewLive(src, "test")
	m, _ = send(t, m, tea.WindowSizeMsg{Width: 80, Height: 20}, key("2"))
	m, cmds := send(t, m, key("+"))
	if len(cmds) != 0 || !strings.Contains(m.status, "read-only") {
		t.Errorf("edit on a finished client: cmds=%d status=%q", len(cmds), m.status)
	}
}

func TestWaitingForClient(t *testing.T) {
	m := NewLive(&fakeSource{}, "test")
	m, _ = send(t, m, tea.WindowSizeMsg{Width: 80, Height: 20})
	if !strings.Contains(m.View(), "Waiting for a client") {
		t.Error("empty server should show the waiting message")
	}
	m, cmds := send(t, m, tickMsg(time.Now()))
	if len(cmds) != 1 {
		t.Error("tick should reschedule itself")
	}
}

func TestStaticViewRendersEveryTab(t *testing.T) {
	c := capture.FromSnapshot(liveClient())
	m := NewStatic(c, "/tmp/capture.json")
	if m.Init() != nil {
		t.Error("static mode should not tick")
	}
	m, _ = send(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})

	want := map[tabID]string{
		tabSummary:  "Demo",
		tabLibrary:  "thickness",
		tabCounters: "Frames",
		tabTimeline: "draw",
	}
	for tab, text := range want {
		if got := m.renderTab(tab); !strings.Contains(got, text) {
			t.Errorf("tab %s missing %q", tabNames[tab], text)
		}
	}
	if !strings.Contains(m.View(), "capture.json") {
		t.Error("title should show the file name")
	}
}

func TestSparkline(t *testing.T) {
	c := &capture.Capture{
		Counters: []string{"n"},
		Samples: []perfserver.Sample{
			{Readings: []uint32{0}}, {Readings: []uint32{7}}, {Readings: []uint32{14}},
		},
	}
	if got := sparkline(c, 0, 10); got != "▁▄█" {
		t.Errorf("sparkline = %q", got)
	}
	if got := sparkline(c, 0, 2); got != "▁█" {
		t.Errorf("clipped sparkline = %q", got)
	}
}
