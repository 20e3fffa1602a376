package pipeline

import (
	"sync"
	"time"
)

// Limiter gates backend calls per stage. Denial is immediate; callers
// must treat it as a RateLimited failure, never a wait condition.
type Limiter interface {
	Allow(stage Stage) bool
	Remaining(stage Stage) int
	ResetAt(stage Stage) time.Time
}

// Limits holds the per-stage admission caps for one window. A cap of 0
// leaves that stage uncapped.
type Limits struct {
	STT         int
	Translation int
	TTS         int
	Window      time.Duration
}

// DefaultLimits matches the stock vendor quotas the engine assumes when
// nothing is configured.
var DefaultLimits = Limits{STT: 10, Translation: 50, TTS: 20, Window: time.Minute}

// WindowLimiter admits a fixed number of backend calls per stage within a
// rolling window. State is process-wide and shared by all in-flight
// requests; the window resets only by rollover.
type WindowLimiter struct {
	window time.Duration

	mu     sync.Mutex
	states map[Stage]*windowState
}

type windowState struct {
	max   int
	count int
	start time.Time
}

// NewWindowLimiter creates a limiter with one window per pipeline stage.
func NewWindowLimiter(limits Limits) *WindowLimiter {
	window := limits.Window
	if window <= 0 {
		window = time.Minute
	}
	return &WindowLimiter{
		window: window,
		states: map[Stage]*windowState{
			StageSTT:         {max: limits.STT},
			StageTranslation: {max: limits.Translation},
			StageTTS:         {max: limits.TTS},
		},
	}
}

// Allow consumes one admission for the stage if the current window has
// capacity. Unknown stages are always denied.
func (l *WindowLimiter) Allow(stage Stage) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.states[stage]
	if !ok {
		return false
	}
	if st.max <= 0 {
		return true
	}
	l.roll(st)
	if st.count >= st.max {
		return false
	}
	st.count++
	return true
}

// Remaining reports how many admissions are left in the stage's current
// window, or -1 when the stage is uncapped.
func (l *WindowLimiter) Remaining(stage Stage) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.states[stage]
	if !ok {
		return 0
	}
	if st.max <= 0 {
		return -1
	}
	l.roll(st)
	return st.max - st.count
}

// RemainingByStage reports remaining admissions for every stage, keyed
// by stage name. Feeds the metrics collector.
func (l *WindowLimiter) RemainingByStage() map[string]int {
	out := make(map[string]int, len(l.states))
	for stage := range l.states {
		out[string(stage)] = l.Remaining(stage)
	}
	return out
}

// ResetAt reports when the stage's current window rolls over.
func (l *WindowLimiter) ResetAt(stage Stage) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.states[stage]
	if !ok || st.max <= 0 {
		return time.Now()
	}
	l.roll(st)
	return st.start.Add(l.window)
}

// roll starts a fresh window when the current one has expired. Callers
// hold l.mu.
func (l *WindowLimiter) roll(st *windowState) {
	now := time.Now()
	if now.Sub(st.start) >= l.window {
		st.start = now
		st.count = 0
	}
}
