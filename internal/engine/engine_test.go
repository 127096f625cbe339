package engine

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func typeText(e *Engine, text string) {
	for _, r := range text {
		e.Key(r)
	}
}

func TestEngine_StartsOnFirstKey(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := New(clock, "hello world", 30)

	if e.State() != StateStart {
		t.Fatalf("state = %q, want start", e.State())
	}
	e.Key('h')
	if e.State() != StateRun {
		t.Fatalf("state = %q, want run after first key", e.State())
	}
	if e.TimeLeft() != 30 {
		t.Fatalf("time left = %d, want 30 at race start", e.TimeLeft())
	}
}

func TestEngine_NetWPM_CountsOnlyCorrectChars(t *testing.T) {
	clock := clockwork.NewFakeClock()
	target := "the quick brown fox jumps over the lazy dog again"
	e := New(clock, target, 60)

	// 25 correct characters over 30 seconds: (25/5)/0.5min = 10 net wpm.
	typeText(e, target[:25])
	clock.Advance(30 * time.Second)
	e.Key(rune(target[25]))

	res := e.Results()
	if res.Net != 10 {
		t.Fatalf("net = %d, want 10", res.Net)
	}
	if res.Raw != 10 {
		t.Fatalf("raw = %d, want 10", res.Raw)
	}
	if res.Accuracy != 100 {
		t.Fatalf("accuracy = %d, want 100", res.Accuracy)
	}
	if res.Chars.Correct != 26 || res.Chars.Wrong != 0 {
		t.Fatalf("chars = %+v", res.Chars)
	}
}

func TestEngine_WrongCharsLowerAccuracyNotRaw(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := New(clock, "abcdefghij", 60)

	typeText(e, "abcdeXXXX")
	clock.Advance(12 * time.Second)
	e.Key('X')

	res := e.Results()
	if res.Chars.Correct != 5 || res.Chars.Wrong != 5 {
		t.Fatalf("chars = %+v, want 5 correct 5 wrong", res.Chars)
	}
	if res.Accuracy != 50 {
		t.Fatalf("accuracy = %d, want 50", res.Accuracy)
	}
	if res.Raw <= res.Net {
		t.Fatalf("raw %d should exceed net %d with wrong chars", res.Raw, res.Net)
	}
}

func TestEngine_BackspaceRemovesLastChar(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := New(clock, "hello", 30)

	typeText(e, "hex")
	e.Backspace()
	if got := e.Typed(); got != "he" {
		t.Fatalf("typed = %q, want %q", got, "he")
	}

	e.Backspace()
	e.Backspace()
	e.Backspace()
	if got := e.Typed(); got != "" {
		t.Fatalf("typed = %q, want empty after draining", got)
	}
}

func TestEngine_FinishesWhenTimerExpires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := New(clock, "hello world", 30)

	e.Key('h')
	clock.Advance(29 * time.Second)
	e.Tick()
	if e.State() != StateRun {
		t.Fatalf("finished early at 29s")
	}

	clock.Advance(1 * time.Second)
	e.Tick()
	if e.State() != StateFinish {
		t.Fatalf("state = %q, want finish at 30s", e.State())
	}
	if e.TimeLeft() != 0 {
		t.Fatalf("time left = %d after finish", e.TimeLeft())
	}

	// Input after finish is ignored.
	before := e.Typed()
	e.Key('x')
	if e.Typed() != before {
		t.Fatalf("key accepted after finish")
	}
}

func TestEngine_HistoryRecordsOnePointPerSecond(t *testing.T) {
	clock := clockwork.NewFakeClock()
	target := "the quick brown fox jumps over the lazy dog"
	e := New(clock, target, 30)

	e.Key('t')
	for i := 1; i < 4; i++ {
		clock.Advance(time.Second)
		e.Tick()
		e.Tick() // duplicate tick within the same second
	}

	hist := e.History()
	if len(hist) != 3 {
		t.Fatalf("history has %d points, want 3: %+v", len(hist), hist)
	}
	for i, p := range hist {
		if p.TimeSec != i+1 {
			t.Fatalf("point %d at second %d, want %d", i, p.TimeSec, i+1)
		}
	}
}

func TestEngine_RestartResetsForNewRace(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := New(clock, "first text", 30)

	typeText(e, "first")
	clock.Advance(30 * time.Second)
	e.Tick()
	if e.State() != StateFinish {
		t.Fatalf("race did not finish")
	}

	e.Restart("second text", 60)
	if e.State() != StateStart {
		t.Fatalf("state = %q after restart, want start", e.State())
	}
	if e.Typed() != "" || len(e.History()) != 0 {
		t.Fatalf("restart kept old progress")
	}
	if e.TimeLeft() != 60 {
		t.Fatalf("time left = %d, want 60", e.TimeLeft())
	}
	if res := e.Results(); res.Net != 0 || res.Accuracy != 100 {
		t.Fatalf("results not reset: %+v", res)
	}
}

func TestEngine_InputCappedAtTargetLength(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := New(clock, "hi", 30)

	typeText(e, "hi there")
	if got := e.Typed(); got != "hi" {
		t.Fatalf("typed = %q, want capped at target length", got)
	}
}
