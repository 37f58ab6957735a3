/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package timers

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTestSet(t *testing.T) (*Set, *clockwork.FakeClock, chan func()) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	posted := make(chan func(), 8)
	return New(clock, func(fn func()) { posted <- fn }), clock, posted
}

func next(t *testing.T, posted chan func()) func() {
	t.Helper()
	select {
	case fn := <-posted:
		return fn
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for timer callback")
		return nil
	}
}

func TestAfter_RunsOnPost(t *testing.T) {
	s, clock, posted := newTestSet(t)

	ran := false
	s.After("countdown", time.Second, func() { ran = true })
	if !s.Pending("countdown") {
		t.Fatal("timer should be pending")
	}

	clock.Advance(time.Second)
	next(t, posted)()

	if !ran {
		t.Error("callback did not run")
	}
	if s.Pending("countdown") {
		t.Error("timer should no longer be pending")
	}
}

func TestAfter_ReplacesSameKey(t *testing.T) {
	s, clock, posted := newTestSet(t)

	var got []string
	s.After("aim:alice", time.Second, func() { got = append(got, "first") })
	s.After("aim:alice", 2*time.Second, func() { got = append(got, "second") })
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}

	clock.Advance(2 * time.Second)
	next(t, posted)()

	select {
	case fn := <-posted:
		fn()
	case <-time.After(50 * time.Millisecond):
	}

	if len(got) != 1 || got[0] != "second" {
		t.Errorf("callbacks %v, want [second]", got)
	}
}

func TestCancel_DropsAlreadyPostedCallback(t *testing.T) {
	s, clock, posted := newTestSet(t)

	ran := false
	s.After("abandon", time.Second, func() { ran = true })
	clock.Advance(time.Second)
	fn := next(t, posted)

	s.Cancel("abandon")
	fn()

	if ran {
		t.Error("cancelled callback ran")
	}
}

func TestCancelAll(t *testing.T) {
	s, _, _ := newTestSet(t)
	s.After("a", time.Second, func() {})
	s.After("b", time.Minute, func() {})
	s.CancelAll()
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}
