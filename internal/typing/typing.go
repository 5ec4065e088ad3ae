// Package typing replays already-known text a few characters at a time to give the
// code viewer a typing effect. It is cosmetic: the full text is available to everyone
// else before an animation starts.
package typing

import (
	"sync"
	"time"
)

const (
	DefaultCharsPerTick = 3
	DefaultInterval     = 15 * time.Millisecond
)

// Animation is one running reveal of a text.
type Animation struct {
	mu      sync.Mutex
	stopped bool
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// Animate calls onUpdate with a growing prefix of text every interval, charsPerTick
// runes at a time, and finishes with onUpdate(text). Prefixes never split a rune.
//
// Cancel stops the animation; once it returns, onUpdate is not called again. Cancel
// must not be called from inside onUpdate.
func Animate(text string, onUpdate func(partial string), charsPerTick int, interval time.Duration) *Animation {
	if charsPerTick <= 0 {
		charsPerTick = DefaultCharsPerTick
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	a := &Animation{stop: make(chan struct{}), done: make(chan struct{})}
	go a.run([]rune(text), onUpdate, charsPerTick, interval)
	return a
}

func (a *Animation) run(runes []rune, onUpdate func(string), step int, interval time.Duration) {
	defer close(a.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	shown := 0
	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
		}
		shown += step
		if shown > len(runes) {
			shown = len(runes)
		}
		if !a.emit(onUpdate, string(runes[:shown])) {
			return
		}
		if shown == len(runes) {
			return
		}
	}
}

func (a *Animation) emit(onUpdate func(string), partial string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return false
	}
	if onUpdate != nil {
		onUpdate(partial)
	}
	return true
}

// Cancel halts further updates. Whatever was revealed stays revealed. Safe to call
// more than once and after the animation finished.
func (a *Animation) Cancel() {
	if a == nil {
		return
	}
	a.once.Do(func() { close(a.stop) })
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()
}

// Done is closed when the animation goroutine has exited, either because the whole
// text was delivered or because it was cancelled.
func (a *Animation) Done() <-chan struct{} { return a.done }

// Wait blocks until Done is closed.
func (a *Animation) Wait() { <-a.done }

// Animator keeps at most one animation alive, which is what a code viewer switching
// between files needs.
type Animator struct {
	mu           sync.Mutex
	current      *Animation
	currentPath  string
	charsPerTick int
	interval     time.Duration
}

// NewAnimator returns an Animator using the given pace for every Play.
func NewAnimator(charsPerTick int, interval time.Duration) *Animator {
	return &Animator{charsPerTick: charsPerTick, interval: interval}
}

// Play cancels whatever is running and starts animating text for path.
func (m *Animator) Play(path, text string, onUpdate func(string)) *Animation {
	return m.PlayWith(path, text, m.charsPerTick, m.interval, onUpdate)
}

// PlayWith is Play at a pace other than the Animator's own.
func (m *Animator) PlayWith(path, text string, charsPerTick int, interval time.Duration, onUpdate func(string)) *Animation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Cancel()
	}
	m.current = Animate(text, onUpdate, charsPerTick, interval)
	m.currentPath = path
	return m.current
}

// Active returns the path of the last animation started, if it is still running.
func (m *Animator) Active() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return "", false
	}
	select {
	case <-m.current.Done():
		return "", false
	default:
		return m.currentPath, true
	}
}

// Stop cancels the running animation, if any.
func (m *Animator) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Cancel()
		m.current = nil
		m.currentPath = ""
	}
}
