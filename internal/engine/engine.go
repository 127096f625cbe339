// Package engine implements the typing race: a start/run/finish state
// machine with strict WPM and accuracy arithmetic. The race text comes from
// the shared session so both clients type identical material; the engine
// itself is purely local.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// State is the engine lifecycle phase.
type State string

const (
	StateStart  State = "start"
	StateRun    State = "run"
	StateFinish State = "finish"
)

// Point is one sample of the per-second WPM graph.
type Point struct {
	TimeSec int `json:"time"`
	WPM     int `json:"wpm"`
}

// CharStats breaks typed characters down for the results screen.
type CharStats struct {
	Correct int `json:"correct"`
	Wrong   int `json:"wrong"`
}

// Results is the live stat snapshot: net WPM counts only correct characters,
// raw WPM counts everything, both at the standard five characters per word.
type Results struct {
	Net      int       `json:"net"`
	Raw      int       `json:"raw"`
	Accuracy int       `json:"accuracy"`
	Chars    CharStats `json:"chars"`
}

// Engine drives one client's race.
type Engine struct {
	clock clockwork.Clock

	mu        sync.Mutex
	state     State
	target    []rune
	typed     []rune
	duration  time.Duration
	startedAt time.Time
	results   Results
	history   []Point
}

// New creates an engine for the given race text and timer duration.
func New(clock clockwork.Clock, target string, durationSec int) *Engine {
	return &Engine{
		clock:    clock,
		state:    StateStart,
		target:   []rune(target),
		duration: time.Duration(durationSec) * time.Second,
		results:  Results{Accuracy: 100},
	}
}

// Key feeds one typed character. The first key starts the run.
func (e *Engine) Key(r rune) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateFinish {
		return
	}
	if e.state == StateStart {
		e.state = StateRun
		e.startedAt = e.clock.Now()
	}
	if len(e.typed) >= len(e.target) {
		return
	}
	e.typed = append(e.typed, r)
	e.results = calculate(e.typed, e.target, e.clock.Now().Sub(e.startedAt))
}

// Backspace removes the last typed character.
func (e *Engine) Backspace() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRun || len(e.typed) == 0 {
		return
	}
	e.typed = e.typed[:len(e.typed)-1]
}

// Tick advances the per-second graph and finishes the race when the timer
// runs out. It is driven by Run in production and called directly in tests.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRun {
		return
	}
	elapsed := e.clock.Now().Sub(e.startedAt)
	if elapsed >= e.duration {
		e.state = StateFinish
		return
	}
	sec := int(elapsed.Seconds())
	if n := len(e.history); n > 0 && e.history[n-1].TimeSec == sec {
		return
	}
	net := calculate(e.typed, e.target, elapsed).Net
	e.history = append(e.history, Point{TimeSec: sec, WPM: net})
}

// Run ticks the engine once per second until the race finishes or the
// context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := e.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			e.Tick()
			if e.State() == StateFinish {
				return
			}
		}
	}
}

// Restart resets the engine for a new race on fresh text.
func (e *Engine) Restart(target string, durationSec int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateStart
	e.target = []rune(target)
	e.typed = nil
	e.duration = time.Duration(durationSec) * time.Second
	e.results = Results{Accuracy: 100}
	e.history = nil
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Typed() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return string(e.typed)
}

func (e *Engine) Results() Results {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.results
}

func (e *Engine) History() []Point {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Point(nil), e.history...)
}

// TimeLeft reports whole seconds remaining on the race clock.
func (e *Engine) TimeLeft() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateStart:
		return int(e.duration.Seconds())
	case StateFinish:
		return 0
	}
	left := e.duration - e.clock.Now().Sub(e.startedAt)
	if left < 0 {
		return 0
	}
	return int(left.Seconds())
}

// calculate is the strict stat arithmetic: a word is five characters, net
// counts only positionally correct characters, accuracy is correct over
// typed.
func calculate(typed, target []rune, elapsed time.Duration) Results {
	var correct, wrong int
	for i, r := range typed {
		if i < len(target) && r == target[i] {
			correct++
		} else {
			wrong++
		}
	}

	minutes := elapsed.Minutes()
	res := Results{Accuracy: 100, Chars: CharStats{Correct: correct, Wrong: wrong}}
	if minutes > 0 {
		res.Net = int(float64(correct)/5/minutes + 0.5)
		res.Raw = int(float64(len(typed))/5/minutes + 0.5)
	}
	if len(typed) > 0 {
		res.Accuracy = int(float64(correct)/float64(len(typed))*100 + 0.5)
	}
	return res
}
