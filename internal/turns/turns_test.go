/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package turns

import "testing"

func connectedSet(keys ...string) func(string) bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return func(k string) bool { return set[k] }
}

func TestNext_Rotation(t *testing.T) {
	order := []string{"A", "B"}

	tests := []struct {
		name      string
		connected []string
		from      string
		want      string
		ok        bool
	}{
		{"passes to B", []string{"A", "B"}, "A", "B", true},
		{"wraps to A", []string{"A", "B"}, "B", "A", true},
		{"skips disconnected B", []string{"A"}, "A", "A", true},
		{"nobody connected", nil, "A", "", false},
		{"unknown from starts at head", []string{"B"}, "Z", "B", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Next(order, connectedSet(tt.connected...), tt.from)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Next = %q, %v, want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestNext_EmptyOrder(t *testing.T) {
	if k, ok := Next(nil, connectedSet("A"), "A"); ok || k != "" {
		t.Errorf("Next(nil) = %q, %v, want none", k, ok)
	}
}

func TestCountThrow(t *testing.T) {
	c, over := CountThrow(0)
	if c != 1 || over {
		t.Errorf("after 1 throw: %d, %v", c, over)
	}
	c, over = CountThrow(c)
	if c != 2 || over {
		t.Errorf("after 2 throws: %d, %v", c, over)
	}
	c, over = CountThrow(c)
	if c != 0 || !over {
		t.Errorf("after 3 throws: %d, %v, want 0, true", c, over)
	}
}

func TestIsSentinel(t *testing.T) {
	if !IsSentinel(999, 999) {
		t.Error("999,999 should be the sentinel")
	}
	if IsSentinel(999, 0) || IsSentinel(1, 1) {
		t.Error("only both axes at 999 form the sentinel")
	}
}

func TestMachine_CanStart(t *testing.T) {
	m := NewMachine(0)

	tests := []struct {
		connected, ready int
		solo             bool
		want             bool
	}{
		{2, 2, false, true},
		{2, 1, false, false},
		{1, 1, false, true},
		{0, 0, false, false},
		{3, 3, false, false},
		{1, 1, true, false},
	}
	for _, tt := range tests {
		if got := m.CanStart(tt.connected, tt.ready, tt.solo); got != tt.want {
			t.Errorf("CanStart(%d, %d, %v) = %v, want %v", tt.connected, tt.ready, tt.solo, got, tt.want)
		}
	}

	m.StartCountdown()
	if m.CanStart(2, 2, false) {
		t.Error("CanStart while counting should be false")
	}
}

func TestMachine_CountdownToActive(t *testing.T) {
	m := NewMachine(DefaultCountdown)

	if v := m.StartCountdown(); v != 5 {
		t.Fatalf("StartCountdown = %d, want 5", v)
	}

	var seen []int
	for {
		v, done := m.Tick()
		seen = append(seen, v)
		if done {
			break
		}
		if len(seen) > 10 {
			t.Fatal("countdown never finished")
		}
	}
	if len(seen) != 5 || seen[4] != 0 {
		t.Errorf("ticks %v, want 4 3 2 1 0", seen)
	}

	m.Activate("A")
	if m.State() != Active || m.Current() != "A" {
		t.Errorf("state %v current %q, want active A", m.State(), m.Current())
	}
	if m.CanStart(2, 2, false) {
		t.Error("CanStart during play should be false")
	}

	m.Clear()
	if m.State() != Idle || m.Current() != "" {
		t.Errorf("after Clear: state %v current %q", m.State(), m.Current())
	}
}

func TestMachine_Cancel(t *testing.T) {
	m := NewMachine(3)
	m.StartCountdown()
	m.Tick()
	m.Cancel()
	if m.Counting() {
		t.Error("Cancel should stop the countdown")
	}
	if _, done := m.Tick(); done {
		t.Error("Tick after Cancel should not finish")
	}
}
