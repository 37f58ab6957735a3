/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package turns holds the readiness, countdown and turn rotation rules of
// a match. It keeps no timers itself; the caller ticks the countdown.
package turns

const (
	// ThrowsPerTurn is how many darts a player throws before the turn passes.
	ThrowsPerTurn = 3

	// DefaultCountdown is the first value shown when a countdown starts.
	DefaultCountdown = 5

	// Sentinel is the reserved aim value both axes carry in a ready signal.
	Sentinel = 999.0
)

// State is the phase of the scheduler.
type State int

const (
	Idle State = iota
	Counting
	Active
)

func (s State) String() string {
	switch s {
	case Counting:
		return "counting"
	case Active:
		return "active"
	}
	return "idle"
}

// IsSentinel reports whether an aim is the out-of-band ready signal.
func IsSentinel(x, y float64) bool {
	return x == Sentinel && y == Sentinel
}

// Machine tracks whose turn it is and the countdown that precedes the first
// turn.
type Machine struct {
	state     State
	current   string
	countdown int
	start     int
}

// NewMachine returns an idle machine counting down from start, or from
// DefaultCountdown if start is not positive.
func NewMachine(start int) *Machine {
	if start <= 0 {
		start = DefaultCountdown
	}
	return &Machine{start: start}
}

func (m *Machine) State() State { return m.state }

// Current returns the player holding the turn, or "" if none.
func (m *Machine) Current() string { return m.current }

// Countdown returns the value last shown, valid while Counting.
func (m *Machine) Countdown() int { return m.countdown }

// Counting reports whether a countdown is running.
func (m *Machine) Counting() bool { return m.state == Counting }

// CanStart reports whether a countdown may begin: one or two players are
// connected, all of them are ready, and nothing is counting or in play.
func (m *Machine) CanStart(connected, ready int, solo bool) bool {
	if solo || m.state != Idle || m.current != "" {
		return false
	}
	return connected >= 1 && connected <= 2 && ready == connected
}

// StartCountdown enters Counting and returns the first value to show.
func (m *Machine) StartCountdown() int {
	m.state = Counting
	m.current = ""
	m.countdown = m.start
	return m.countdown
}

// Tick lowers the countdown by one. done is true once it reaches zero; the
// caller then picks the first player and calls Activate.
func (m *Machine) Tick() (value int, done bool) {
	if m.state != Counting {
		return 0, false
	}
	if m.countdown > 0 {
		m.countdown--
	}
	return m.countdown, m.countdown == 0
}

// Cancel abandons a running countdown.
func (m *Machine) Cancel() {
	if m.state == Counting {
		m.state = Idle
		m.countdown = 0
	}
}

// Activate hands the turn to key. An empty key means no current turn.
func (m *Machine) Activate(key string) {
	m.countdown = 0
	m.current = key
	if key == "" {
		m.state = Idle
		return
	}
	m.state = Active
}

// Clear drops the current turn without advancing it.
func (m *Machine) Clear() {
	m.Activate("")
}

// Reset returns the machine to Idle.
func (m *Machine) Reset() {
	m.state = Idle
	m.current = ""
	m.countdown = 0
}

// CountThrow adds a throw to a per-turn counter. It returns the new counter
// and whether the turn is over, in which case the counter is back to zero.
func CountThrow(current int) (int, bool) {
	current++
	if current >= ThrowsPerTurn {
		return 0, true
	}
	return current, false
}

// Next searches order in ring order starting after from for the first key
// eligible reports true for. from itself is checked last. ok is false when
// nobody is eligible.
func Next(order []string, eligible func(string) bool, from string) (string, bool) {
	n := len(order)
	if n == 0 {
		return "", false
	}

	start := -1
	for i, k := range order {
		if k == from {
			start = i
			break
		}
	}

	for step := 1; step <= n; step++ {
		k := order[(start+step+n)%n]
		if eligible(k) {
			return k, true
		}
	}

	return "", false
}
