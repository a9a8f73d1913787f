package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fakeyudi/scopecomms/internal/logging"
	"github.com/fakeyudi/scopecomms/internal/perfserver"
	"github.com/fakeyudi/scopecomms/ppl"
)

func TestUniformsApplyEdits(t *testing.T) {
	u := newUniforms()
	if !u.apply(1, []byte("void main() {}")) || string(u.fragmentShader) != "void main() {}" {
		t.Errorf("fragment shader = %q", u.fragmentShader)
	}
	if !u.apply(3, ppl.FloatValue{Current: 0.25, Min: 0, Max: 1}.Bytes()) || u.metallicity != 0.25 {
		t.Errorf("metallicity = %v", u.metallicity)
	}
	if !u.apply(7, ppl.FloatValue{Current: 0.5, Min: 0, Max: 1}.Bytes()) || u.albedo[2] != 0.5 {
		t.Errorf("albedo = %v", u.albedo)
	}
	if u.apply(4, []byte{1, 2}) {
		t.Error("short float payload should be rejected")
	}
	if u.apply(8, ppl.FloatValue{}.Bytes()) {
		t.Error("unknown item should be rejected")
	}
	if n := len(u.library()); n != 8 {
		t.Errorf("library has %d items, want 8", n)
	}
}

func TestDemoPublishesToServer(t *testing.T) {
	srv := perfserver.New(perfserver.WithLogger(logging.Discard()))
	pipe := startPipeServer(t, srv)

	var out bytes.Buffer
	o := demoOptions{frames: 250, wait: 2 * time.Second}
	if err := runDemo(context.Background(), &out, o, ppl.WithDialer(pipe), ppl.WithLogger(logging.Discard())); err != nil {
		t.Fatalf("runDemo: %v", err)
	}
	if !strings.Contains(out.String(), "Ran 250 frames") {
		t.Errorf("summary = %q", out.String())
	}

	var snap perfserver.Snapshot
	waitFor(t, func() bool {
		r := srv.Recent()
		if len(r) == 0 {
			return false
		}
		snap = r[0]
		return true
	})
	if snap.App != "Demo" || !snap.Goodbye {
		t.Errorf("snapshot header = %+v", snap)
	}
	if len(snap.Items) != 8 || snap.Items[0].Name != vertexShaderItem || snap.Items[1].Name != fragmentShaderItem {
		t.Errorf("library = %+v", snap.Items)
	}
	if len(snap.Counters) != 2 || snap.Counters[1] != "Frames10" {
		t.Errorf("counters = %v", snap.Counters)
	}
	if n := len(snap.Samples); n != 250 {
		t.Errorf("samples = %d, want 250", n)
	} else if last := snap.Samples[n-1].Readings; last[0] != 249 || last[1] != 24 {
		t.Errorf("last readings = %v", last)
	}
	// The early mark arrives only when the dial beat it, and then first.
	marks := snap.Marks
	if len(marks) > 0 && marks[0].Label == "lost" {
		marks = marks[1:]
	}
	for _, m := range marks {
		if m.Label == "lost" {
			t.Errorf("early mark out of order: %+v", snap.Marks)
			break
		}
	}
	// frame 0, 100, 200 plus the quit burst
	if n := len(marks); n != 3+quitMarks {
		t.Errorf("marks = %d, want %d", n, 3+quitMarks)
	} else if marks[n-1].Label != "quit 39" {
		t.Errorf("last mark = %+v", marks[n-1])
	}
	// frame, dirty, draw and UIRenderer per frame plus the quit span
	if len(snap.Spans) != 4*250+1 || snap.UnmatchedEnds != 0 || snap.OpenSpans != 0 {
		t.Errorf("spans = %d, unmatched %d, open %d", len(snap.Spans), snap.UnmatchedEnds, snap.OpenSpans)
	}
}

func TestDemoRunsWithoutServer(t *testing.T) {
	var out bytes.Buffer
	o := demoOptions{frames: 20, wait: 10 * time.Millisecond}
	if err := runDemo(context.Background(), &out, o, ppl.WithAddress("127.0.0.1:1"), ppl.WithLogger(logging.Discard())); err != nil {
		t.Fatalf("runDemo: %v", err)
	}
	if !strings.Contains(out.String(), "Ran 20 frames") {
		t.Errorf("summary = %q", out.String())
	}
}
