package trace

import (
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want Level
		err  bool
	}{
		{"off", LevelOff, false},
		{"error", LevelError, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"info", LevelInfo, false},
		{"DEBUG", LevelDebug, false},
		{"verbose", LevelOff, true},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.in)
		if (err != nil) != tc.err {
			t.Fatalf("ParseLevel(%q): err=%v", tc.in, err)
		}
		if !tc.err && got != tc.want {
			t.Fatalf("ParseLevel(%q): want %s, got %s", tc.in, tc.want, got)
		}
	}
}

func TestShouldEmitMatrix(t *testing.T) {
	cases := []struct {
		level Level
		scope Scope
		want  bool
	}{
		{LevelOff, ScopeDriver, false},
		{LevelWarn, ScopeDriver, true},
		{LevelWarn, ScopePhase, false},
		{LevelInfo, ScopePhase, true},
		{LevelInfo, ScopeAttempt, false},
		{LevelDebug, ScopeAttempt, true},
	}
	for _, tc := range cases {
		if got := tc.level.ShouldEmit(tc.scope); got != tc.want {
			t.Fatalf("%s.ShouldEmit(%s): want %t, got %t", tc.level, tc.scope, tc.want, got)
		}
	}
}

func TestRingTracerKeepsTail(t *testing.T) {
	rt := NewRingTracer(4, LevelDebug)
	for i := 0; i < 10; i++ {
		rt.Emit(Event{Kind: KindPoint, Scope: ScopeAttempt, Name: "ev", Detail: string(rune('a' + i))})
	}
	snap := rt.Snapshot()
	if len(snap) != 4 {
		t.Fatalf("want 4 events, got %d", len(snap))
	}
	// the oldest surviving event is number 6 ("g")
	if snap[0].Detail != "g" || snap[3].Detail != "j" {
		t.Fatalf("tail wrong: %q .. %q", snap[0].Detail, snap[3].Detail)
	}
	// seq numbers ascend
	for i := 1; i < len(snap); i++ {
		if snap[i].Seq <= snap[i-1].Seq {
			t.Fatalf("seq not ascending: %d then %d", snap[i-1].Seq, snap[i].Seq)
		}
	}
}

func TestRingTracerFiltersByLevel(t *testing.T) {
	rt := NewRingTracer(8, LevelInfo)
	rt.Emit(Event{Kind: KindPoint, Scope: ScopePhase, Name: "kept"})
	rt.Emit(Event{Kind: KindPoint, Scope: ScopeAttempt, Name: "dropped"})
	snap := rt.Snapshot()
	if len(snap) != 1 || snap[0].Name != "kept" {
		t.Fatalf("level filter wrong: %+v", snap)
	}
}

func TestStreamTracerWritesText(t *testing.T) {
	var sb strings.Builder
	st := NewStreamTracer(&sb, LevelDebug, FormatText)
	st.Emit(Event{Time: time.Now(), Kind: KindPoint, Scope: ScopePhase, Name: "isolate", Detail: "stage=lower"})
	if err := st.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	out := sb.String()
	if !strings.Contains(out, "isolate") || !strings.Contains(out, "stage=lower") {
		t.Fatalf("stream output: %q", out)
	}
}

func TestFormatNDJSON(t *testing.T) {
	ev := Event{Time: time.Now(), Kind: KindPoint, Scope: ScopeDriver, Name: "run", Detail: "x"}
	line := string(FormatEvent(ev, FormatNDJSON))
	if !strings.HasSuffix(line, "\n") || !strings.Contains(line, `"name":"run"`) {
		t.Fatalf("ndjson line: %q", line)
	}
}

func TestSpanLifecycle(t *testing.T) {
	rt := NewRingTracer(8, LevelDebug)
	sp := Begin(rt, ScopePhase, "minify", 0)
	sp.SetExtra("evals", "12")
	sp.End("done")

	snap := rt.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("want begin+end, got %d events", len(snap))
	}
	if snap[0].Kind != KindSpanBegin || snap[1].Kind != KindSpanEnd {
		t.Fatalf("kinds: %s, %s", snap[0].Kind, snap[1].Kind)
	}
	if snap[1].Extra["evals"] != "12" {
		t.Fatalf("extra lost: %+v", snap[1].Extra)
	}
	if snap[0].SpanID == 0 || snap[0].SpanID != snap[1].SpanID {
		t.Fatalf("span IDs: %d, %d", snap[0].SpanID, snap[1].SpanID)
	}
}

func TestNilSpanIsSafe(t *testing.T) {
	sp := Begin(Nop, ScopePhase, "noop", 0)
	if sp != nil {
		t.Fatalf("disabled tracer must yield a nil span")
	}
	sp.SetExtra("k", "v")
	sp.End("fine")
	if sp.ID() != 0 {
		t.Fatalf("nil span ID: %d", sp.ID())
	}
}

func TestNewSelectsStorage(t *testing.T) {
	tr, err := New(Config{Level: LevelInfo, Mode: ModeRing})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := tr.(*RingTracer); !ok {
		t.Fatalf("want RingTracer, got %T", tr)
	}

	var sb strings.Builder
	tr, err = New(Config{Level: LevelInfo, Mode: ModeBoth, Output: &sb})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mt, ok := tr.(*MultiTracer)
	if !ok {
		t.Fatalf("want MultiTracer, got %T", tr)
	}
	if mt.Ring() == nil {
		t.Fatalf("multi tracer lost its ring")
	}

	if tr, err := New(Config{Level: LevelOff}); err != nil || tr != Nop {
		t.Fatalf("level off must be the nop tracer: %T %v", tr, err)
	}
}
