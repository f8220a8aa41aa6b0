package observ

import (
	"strings"
	"testing"
)

func TestTimerSummary(t *testing.T) {
	tm := NewTimer()
	idx := tm.Begin("trace")
	tm.End(idx, "2 fragment(s)")
	tm.Time("minify", func() string { return "17 eval(s)" })

	s := tm.Summary()
	if !strings.Contains(s, "trace") || !strings.Contains(s, "2 fragment(s)") {
		t.Fatalf("summary missing trace phase:\n%s", s)
	}
	if !strings.Contains(s, "minify") || !strings.Contains(s, "total") {
		t.Fatalf("summary missing minify or total:\n%s", s)
	}
}

func TestNilTimerIsInert(t *testing.T) {
	var tm *Timer
	idx := tm.Begin("anything")
	tm.End(idx, "note")
	if s := tm.Summary(); s != "" {
		t.Fatalf("nil timer summary: %q", s)
	}
}

func TestEndOutOfRange(t *testing.T) {
	tm := NewTimer()
	tm.End(5, "ignored")
	if s := tm.Summary(); s != "" {
		t.Fatalf("empty timer summary: %q", s)
	}
}
