/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package timers schedules keyed one-shot callbacks that run on their
// owner's event loop instead of on the timer goroutine.
package timers

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type entry struct {
	timer clockwork.Timer
	gen   uint64
}

// Set holds at most one pending timer per key. Scheduling a key replaces
// the previous timer for it, and a callback whose timer was replaced or
// cancelled before it reached the loop is dropped.
type Set struct {
	clock clockwork.Clock
	post  func(func())

	mu     sync.Mutex
	gen    uint64
	active map[string]entry
}

// New returns a Set that hands fired callbacks to post. post must run the
// function on the owner's loop.
func New(clock clockwork.Clock, post func(func())) *Set {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Set{
		clock:  clock,
		post:   post,
		active: make(map[string]entry),
	}
}

// After runs fn on the loop once d has elapsed, replacing any timer already
// scheduled under key.
func (s *Set) After(key string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.active[key]; ok {
		old.timer.Stop()
	}

	s.gen++
	gen := s.gen

	timer := s.clock.AfterFunc(d, func() {
		s.post(func() {
			if !s.claim(key, gen) {
				log.Debug().Str("timer", key).Msg("dropping stale timer callback")
				return
			}
			fn()
		})
	})

	s.active[key] = entry{timer: timer, gen: gen}
}

// claim removes key if it is still owned by gen.
func (s *Set) claim(key string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.active[key]
	if !ok || e.gen != gen {
		return false
	}
	delete(s.active, key)

	return true
}

// Cancel stops the timer for key, if any.
func (s *Set) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.active[key]; ok {
		e.timer.Stop()
		delete(s.active, key)
	}
}

// CancelAll stops every pending timer.
func (s *Set) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.active {
		e.timer.Stop()
		delete(s.active, key)
	}
}

// Pending reports whether a timer is scheduled under key.
func (s *Set) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.active[key]
	return ok
}

// Len returns the number of pending timers.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.active)
}
