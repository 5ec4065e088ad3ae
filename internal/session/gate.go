package session

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrBusy is returned when a surface already has a generation in flight. The second
// submission is dropped, not queued.
var ErrBusy = errors.New("a generation is already in progress for this surface")

// Gate allows one in-flight generation per input surface.
type Gate struct {
	flags sync.Map // surface -> *atomic.Bool
}

// Acquire marks surface busy and returns the function that clears it.
func (g *Gate) Acquire(surface string) (release func(), err error) {
	v, _ := g.flags.LoadOrStore(surface, new(atomic.Bool))
	flag := v.(*atomic.Bool)
	if !flag.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	var once sync.Once
	return func() { once.Do(func() { flag.Store(false) }) }, nil
}

// Busy reports whether surface has a generation in flight.
func (g *Gate) Busy(surface string) bool {
	v, ok := g.flags.Load(surface)
	return ok && v.(*atomic.Bool).Load()
}
