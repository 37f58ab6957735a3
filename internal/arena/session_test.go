/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package arena

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Seednode/darts/internal/scoring"
	"github.com/Seednode/darts/internal/timers"
	"github.com/Seednode/darts/internal/turns"
)

type recorder struct {
	events []Event
}

func (r *recorder) Emit(e Event) { r.events = append(r.events, e) }

func (r *recorder) types() []string {
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, typeOf(e.Msg))
	}
	return out
}

func (r *recorder) count(typ string) int {
	n := 0
	for _, e := range r.events {
		if typeOf(e.Msg) == typ {
			n++
		}
	}
	return n
}

func (r *recorder) last(typ string) (Event, bool) {
	for i := len(r.events) - 1; i >= 0; i-- {
		if typeOf(r.events[i].Msg) == typ {
			return r.events[i], true
		}
	}
	return Event{}, false
}

func (r *recorder) reset() { r.events = nil }

func typeOf(msg any) string {
	switch m := msg.(type) {
	case StatusQueueMessage:
		return m.Type
	case QueueAdmittedMessage:
		return m.Type
	case ClientInfoMessage:
		return m.Type
	case PlayerCountMessage:
		return m.Type
	case AimMessage:
		return m.Type
	case DartThrownMessage:
		return m.Type
	case SoloStartedMessage:
		return m.Type
	case TurnMessage:
		return m.Type
	case CountdownMessage:
		return m.Type
	case RejectedMessage:
		return m.Type
	case ReadyMessage:
		return m.Type
	case NotYourTurnMessage:
		return m.Type
	case StandingsMessage:
		return m.Type
	case ResetMessage:
		return m.Type
	}
	return ""
}

type finishes struct {
	scores map[string]int
}

func (f *finishes) RecordFinish(name string, score int) {
	f.scores[name] = score
}

type seatLog struct {
	refreshed map[int]int
	released  []int
	cleared   int
}

func (s *seatLog) Refresh(room string, slot int) { s.refreshed[slot]++ }
func (s *seatLog) Release(room string, slot int) { s.released = append(s.released, slot) }
func (s *seatLog) Clear(room string)             { s.cleared++ }

type harness struct {
	t      *testing.T
	s      *Session
	clock  *clockwork.FakeClock
	posted chan func()
	out    *recorder
	done   *finishes
	seats  *seatLog
	freed  int
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()

	h := &harness{
		t:      t,
		clock:  clockwork.NewFakeClock(),
		posted: make(chan func(), 16),
		out:    &recorder{},
		done:   &finishes{scores: map[string]int{}},
		seats:  &seatLog{refreshed: map[int]int{}},
	}

	opts := Options{
		Room:           "abc",
		AimTimeout:     DefaultAimTimeout,
		AbandonTimeout: DefaultAbandonTimeout,
		Emitter:        h.out,
		Timers:         timers.New(h.clock, func(fn func()) { h.posted <- fn }),
		Recorder:       h.done,
		Seats:          h.seats,
		SeatsFreed:     func() { h.freed++ },
	}
	if mutate != nil {
		mutate(&opts)
	}

	h.s = NewSession(opts)

	return h
}

// advance moves the clock and runs the callback that fires.
func (h *harness) advance(d time.Duration) {
	h.t.Helper()

	h.clock.Advance(d)

	select {
	case fn := <-h.posted:
		fn()
	case <-time.After(time.Second):
		h.t.Fatalf("no timer fired after %v", d)
	}
}

func id(key string) Identity {
	return Identity{PlayerID: key, Name: key, ConnID: "conn-" + key}
}

func ready() *scoring.Aim {
	return &scoring.Aim{X: turns.Sentinel, Y: turns.Sentinel}
}

func (h *harness) readyUp(keys ...string) {
	for _, k := range keys {
		h.s.UpdateAim(id(k), ready(), "")
	}
}

func (h *harness) runCountdown() {
	h.t.Helper()
	for range turns.DefaultCountdown {
		h.advance(time.Second)
	}
}

func TestResolveKey(t *testing.T) {
	tests := []struct {
		id   Identity
		want string
	}{
		{Identity{PlayerID: "p1", Name: "Ann", ConnID: "c1"}, "p1"},
		{Identity{Name: "Ann", ConnID: "c1"}, "Ann"},
		{Identity{ConnID: "c1"}, "c1"},
		{Identity{}, ""},
	}

	for _, tt := range tests {
		if got := ResolveKey(tt.id); got != tt.want {
			t.Errorf("ResolveKey(%+v) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestSession_TwoPlayerMatch(t *testing.T) {
	h := newHarness(t, nil)

	if !h.s.Join(id("A"), 1) || !h.s.Join(id("B"), 2) {
		t.Fatal("both players should be seated")
	}
	if got := h.s.Order(); len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Fatalf("order = %v, want [A B]", got)
	}

	h.readyUp("A")
	if h.s.Counting() {
		t.Fatal("countdown started with one of two players ready")
	}
	h.readyUp("B")
	if !h.s.Counting() {
		t.Fatal("countdown should start once both are ready")
	}

	h.runCountdown()

	var values []int
	for _, e := range h.out.events {
		if m, ok := e.Msg.(CountdownMessage); ok && m.Type == "countdown" {
			values = append(values, m.Value)
		}
	}
	want := []int{5, 4, 3, 2, 1, 0}
	if len(values) != len(want) {
		t.Fatalf("countdown values %v, want %v", values, want)
	}
	for i := range want {
		if values[i] != want[i] {
			t.Fatalf("countdown values %v, want %v", values, want)
		}
	}

	if h.s.CurrentTurn() != "A" {
		t.Fatalf("current turn = %q, want A", h.s.CurrentTurn())
	}

	// B throwing out of turn is refused.
	h.out.reset()
	h.s.Throw(id("B"), &scoring.Aim{})
	if e, ok := h.out.last("not-your-turn"); !ok || e.To != Sender || e.ConnID != "conn-B" {
		t.Errorf("out-of-turn throw: got %v, want not-your-turn to conn-B", h.out.types())
	}

	for range 3 {
		h.s.Throw(id("A"), &scoring.Aim{})
	}

	a, _ := h.s.Player("A")
	if a.Score != 150 || !a.Finished {
		t.Errorf("A = %+v, want score 150 finished", a)
	}
	if h.done.scores["A"] != 150 {
		t.Errorf("recorded %v, want A=150", h.done.scores)
	}
	if h.s.CurrentTurn() != "B" {
		t.Fatalf("current turn = %q, want B", h.s.CurrentTurn())
	}
	if len(h.seats.released) != 1 || h.seats.released[0] != 1 {
		t.Errorf("released %v, want [1]", h.seats.released)
	}

	h.out.reset()
	for range 3 {
		h.s.Throw(id("B"), nil)
	}

	if h.done.scores["B"] != 0 {
		t.Errorf("B should finish with 0, got %v", h.done.scores)
	}
	if h.out.count("match-over") != 1 || h.out.count("room-reset") != 1 {
		t.Errorf("events %v, want match-over then room-reset", h.out.types())
	}
	if !h.s.Empty() || h.seats.cleared != 1 {
		t.Errorf("room not reset: empty=%v cleared=%d", h.s.Empty(), h.seats.cleared)
	}
}

func TestSession_ReadyIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)

	h.s.Join(id("A"), 1)
	h.s.Join(id("B"), 2)
	h.readyUp("A", "A", "A")

	if n := h.out.count("player-ready"); n != 1 {
		t.Errorf("player-ready emitted %d times, want 1", n)
	}
	if h.s.Counting() {
		t.Error("repeated ready from one player must not start the countdown")
	}

	h.readyUp("B", "B")
	if n := h.out.count("countdown"); n != 1 {
		t.Errorf("countdown emitted %d times, want 1", n)
	}
}

func TestSession_SinglePlayerCountdown(t *testing.T) {
	h := newHarness(t, nil)

	h.s.Join(id("A"), 1)
	h.readyUp("A")

	if !h.s.Counting() {
		t.Fatal("a lone ready player should start the countdown")
	}

	h.runCountdown()
	if h.s.CurrentTurn() != "A" {
		t.Errorf("current turn = %q, want A", h.s.CurrentTurn())
	}
}

func TestSession_RoomFull(t *testing.T) {
	h := newHarness(t, nil)

	h.s.Join(id("A"), 1)
	h.s.Join(id("B"), 2)

	if h.s.Join(id("C"), 0) {
		t.Fatal("third player should be rejected")
	}

	e, ok := h.out.last("player-rejected")
	if !ok {
		t.Fatal("no player-rejected event")
	}
	if m := e.Msg.(RejectedMessage); m.Reason != ReasonRoomFull || e.ConnID != "conn-C" {
		t.Errorf("rejection = %+v to %q", m, e.ConnID)
	}

	// A known player coming back is not a new seat.
	if !h.s.Join(id("A"), 1) {
		t.Error("returning player should be accepted")
	}
}

func TestSession_SoloMode(t *testing.T) {
	h := newHarness(t, nil)

	h.s.Join(id("A"), 1)
	if !h.s.StartSolo(id("A")) {
		t.Fatal("solo start should be accepted")
	}
	if !h.s.Solo() || h.s.CurrentTurn() != "A" {
		t.Fatalf("solo=%v turn=%q, want solo with A", h.s.Solo(), h.s.CurrentTurn())
	}

	if h.s.Join(id("B"), 0) {
		t.Fatal("join during solo should be rejected")
	}
	if e, _ := h.out.last("player-rejected"); e.Msg.(RejectedMessage).Reason != ReasonSoloMode {
		t.Errorf("rejection reason = %q, want %q", e.Msg.(RejectedMessage).Reason, ReasonSoloMode)
	}

	h.s.UpdateAim(id("A"), &scoring.Aim{X: 0.1, Y: 0.1}, "red")
	h.s.AimOff(id("A"))

	if h.s.Solo() || !h.s.Empty() {
		t.Error("solo player leaving should reset the room")
	}
	if h.out.count("room-reset") != 1 {
		t.Errorf("events %v, want one room-reset", h.out.types())
	}
}

func TestSession_SoloIgnoredWithOpponent(t *testing.T) {
	h := newHarness(t, nil)

	h.s.Join(id("A"), 1)
	h.s.Join(id("B"), 2)

	if h.s.StartSolo(id("A")) {
		t.Fatal("solo start must be ignored with another player connected")
	}
	if h.s.Solo() {
		t.Error("room should not be in solo mode")
	}
}

func TestSession_HeldAimUntilReady(t *testing.T) {
	h := newHarness(t, nil)

	h.s.Join(id("A"), 1)
	h.s.Join(id("B"), 2)

	h.s.UpdateAim(id("A"), &scoring.Aim{X: 0.2, Y: -0.3}, "")
	if _, ok := h.s.Aim("A"); ok {
		t.Error("aim from a non-ready player at capacity should be held")
	}
	if !h.s.Held("A") {
		t.Error("sample should be held")
	}
	if h.out.count("aim-update") != 0 {
		t.Error("held sample must not be relayed")
	}

	h.readyUp("A")
	h.s.UpdateAim(id("A"), &scoring.Aim{X: 0.2, Y: -0.3}, "")

	got, ok := h.s.Aim("A")
	if !ok || got.X != 0.2 || got.Y != -0.3 {
		t.Errorf("aim = %+v, %v, want 0.2,-0.3", got, ok)
	}
	if h.s.Held("A") {
		t.Error("sample should no longer be held")
	}
	if e, ok := h.out.last("aim-update"); !ok || e.To != Displays {
		t.Error("aim-update should be relayed to displays")
	}
}

func TestSession_AimClampedAndTimesOut(t *testing.T) {
	h := newHarness(t, nil)

	h.s.Join(id("A"), 1)
	h.s.UpdateAim(id("A"), &scoring.Aim{X: 4, Y: -9}, "")

	got, _ := h.s.Aim("A")
	if got.X != 1 || got.Y != -1 {
		t.Errorf("aim = %+v, want clamped to 1,-1", got)
	}
	if h.seats.refreshed[1] == 0 {
		t.Error("aim should refresh the lease")
	}

	h.advance(DefaultAimTimeout)

	if _, ok := h.s.Aim("A"); ok {
		t.Error("aim should expire")
	}
	if h.out.count("aim-off") != 1 {
		t.Errorf("events %v, want one aim-off", h.out.types())
	}
}

func TestSession_DisconnectCancelsCountdown(t *testing.T) {
	h := newHarness(t, nil)

	h.s.Join(id("A"), 1)
	h.s.Join(id("B"), 2)
	h.readyUp("A", "B")

	h.advance(time.Second)
	h.s.Disconnect("conn-B")

	if h.s.Counting() {
		t.Error("countdown should be cancelled")
	}
	if h.out.count("countdown-cancelled") != 1 {
		t.Errorf("events %v, want countdown-cancelled", h.out.types())
	}

	b, _ := h.s.Player("B")
	if b.Connected || !b.Ready {
		t.Errorf("B = %+v, want disconnected and still ready", b)
	}

	// Coming back completes the handshake again.
	h.s.Join(Identity{PlayerID: "B", ConnID: "conn-B2"}, 2)
	if !h.s.Counting() {
		t.Error("countdown should restart when B returns")
	}
}

func TestSession_DisconnectStallsTurn(t *testing.T) {
	h := newHarness(t, nil)

	h.s.Join(id("A"), 1)
	h.s.Join(id("B"), 2)
	h.readyUp("A", "B")
	h.runCountdown()

	h.s.Disconnect("conn-A")

	if h.s.CurrentTurn() != "" {
		t.Errorf("current turn = %q, want none", h.s.CurrentTurn())
	}

	// B cannot throw: nobody holds the turn.
	h.s.Throw(id("B"), &scoring.Aim{})
	if b, _ := h.s.Player("B"); b.TotalThrows != 0 {
		t.Errorf("B threw %d darts during the stall", b.TotalThrows)
	}

	// A's record survives and can come back.
	if a, ok := h.s.Player("A"); !ok || a.Connected {
		t.Errorf("A = %+v, %v, want kept and disconnected", a, ok)
	}
	h.s.Join(id("A"), 1)
	if a, _ := h.s.Player("A"); !a.Connected {
		t.Error("A should be connected again")
	}
}

func TestSession_AbandonedRoomResets(t *testing.T) {
	h := newHarness(t, nil)

	h.s.Join(id("A"), 1)
	h.s.Disconnect("conn-A")

	if h.s.Empty() {
		t.Fatal("record should survive the disconnect")
	}

	h.advance(DefaultAbandonTimeout)

	if !h.s.Empty() {
		t.Error("abandoned room should reset")
	}
	if h.freed == 0 {
		t.Error("reset should free seats for the queue")
	}
}

func TestSession_RotationWrapsWithMoreThrows(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Throws = 6 })

	h.s.Join(id("A"), 1)
	h.s.Join(id("B"), 2)
	h.readyUp("A", "B")
	h.runCountdown()

	var turnsSeen []string
	for range 4 {
		current := h.s.CurrentTurn()
		turnsSeen = append(turnsSeen, current)
		for range turns.ThrowsPerTurn {
			h.s.Throw(id(current), &scoring.Aim{})
		}
	}

	want := []string{"A", "B", "A", "B"}
	for i := range want {
		if turnsSeen[i] != want[i] {
			t.Fatalf("turns %v, want %v", turnsSeen, want)
		}
	}
	if h.out.count("match-over") != 1 {
		t.Errorf("match should be over after 12 darts")
	}
}

func TestSession_Snapshot(t *testing.T) {
	h := newHarness(t, nil)

	h.s.Join(id("A"), 1)
	h.s.UpdateAim(id("A"), &scoring.Aim{X: 0.5}, "blue")
	h.readyUp("A")

	st := h.s.Snapshot()
	if st.Room != "abc" || st.Phase != "counting" || st.Countdown != 5 {
		t.Errorf("snapshot = %+v", st)
	}
	if len(st.Players) != 1 || len(st.Aims) != 1 || st.Aims[0].Skin != "blue" {
		t.Errorf("snapshot players %v aims %v", st.Players, st.Aims)
	}
}

func TestSession_ClientInfoWithoutSlot(t *testing.T) {
	h := newHarness(t, nil)

	h.s.Join(id("A"), 0)
	h.s.Join(id("B"), 2)

	var got []string
	for _, e := range h.out.events {
		if m, ok := e.Msg.(ClientInfoMessage); ok {
			got = append(got, m.Room)
		}
	}
	if len(got) != 2 || got[0] != "" || got[1] != "game-abc-player2" {
		t.Errorf("clientInfo rooms %q, want [\"\" game-abc-player2]", got)
	}
}

func TestSession_FinishedPlayerGivesUpSeat(t *testing.T) {
	h := newHarness(t, nil)

	h.s.Join(id("A"), 1)
	h.s.Join(id("B"), 2)
	h.readyUp("A", "B")
	h.runCountdown()

	for range 3 {
		h.s.Throw(id("A"), &scoring.Aim{})
	}
	if h.freed != 1 {
		t.Fatalf("seats freed %d times, want 1", h.freed)
	}

	if !h.s.Join(id("C"), 1) {
		t.Fatalf("C should take the seat A gave up, got %v", h.out.types())
	}
	if h.s.Counting() || h.s.CurrentTurn() != "B" {
		t.Errorf("counting=%v turn=%q, want B still playing", h.s.Counting(), h.s.CurrentTurn())
	}

	// C's aim is relayed while the match is in play.
	h.s.UpdateAim(id("C"), &scoring.Aim{X: 0.3}, "")
	if _, ok := h.s.Aim("C"); !ok {
		t.Error("aim from a player joining mid-match should not be held")
	}

	if h.s.Join(id("D"), 0) {
		t.Error("a fourth player should be rejected while B and C are playing")
	}

	for range 3 {
		h.s.Throw(id("B"), nil)
	}
	if h.s.CurrentTurn() != "C" {
		t.Fatalf("current turn = %q, want C", h.s.CurrentTurn())
	}

	for range 3 {
		h.s.Throw(id("C"), &scoring.Aim{})
	}
	if h.done.scores["C"] != 150 || h.out.count("match-over") != 1 {
		t.Errorf("scores %v events %v, want C=150 and match-over", h.done.scores, h.out.types())
	}
}

func TestSession_ReconnectMidMatchRelaysAim(t *testing.T) {
	h := newHarness(t, nil)

	h.s.Join(id("A"), 1)
	h.s.Join(id("B"), 2)
	h.readyUp("A", "B")
	h.runCountdown()

	h.s.Disconnect("conn-B")
	h.s.Join(Identity{PlayerID: "B", Name: "B", ConnID: "conn-B2"}, 2)

	h.out.reset()
	h.s.UpdateAim(Identity{PlayerID: "B", ConnID: "conn-B2"}, &scoring.Aim{X: 0.1, Y: 0.1}, "")

	if h.s.Held("B") {
		t.Error("returning player's aim should not be held")
	}
	if got, ok := h.s.Aim("B"); !ok || got.X != 0.1 {
		t.Errorf("aim = %+v, %v, want stored", got, ok)
	}
	if h.out.count("aim-update") != 1 {
		t.Errorf("events %v, want one aim-update", h.out.types())
	}
	if h.s.CurrentTurn() != "A" {
		t.Errorf("current turn = %q, want A", h.s.CurrentTurn())
	}
}

func TestSession_StalledTurnResumesWithFirstEligible(t *testing.T) {
	h := newHarness(t, nil)

	h.s.Join(id("A"), 1)
	h.s.Join(id("B"), 2)
	h.readyUp("A", "B")
	h.runCountdown()

	for range 3 {
		h.s.Throw(id("A"), &scoring.Aim{})
	}

	h.s.Disconnect("conn-B")
	if h.s.CurrentTurn() != "" {
		t.Fatalf("current turn = %q, want none", h.s.CurrentTurn())
	}

	h.s.Join(id("B"), 2)
	if !h.s.Counting() {
		t.Fatal("countdown should restart when B returns")
	}
	h.runCountdown()

	if h.s.CurrentTurn() != "B" {
		t.Fatalf("current turn = %q, want B; A has finished", h.s.CurrentTurn())
	}

	for range 3 {
		h.s.Throw(id("B"), &scoring.Aim{})
	}
	if b := h.done.scores["B"]; b != 150 {
		t.Errorf("B recorded %d, want 150", b)
	}
	if h.out.count("match-over") != 1 {
		t.Errorf("events %v, want match-over", h.out.types())
	}
}

func TestSession_RotationSkipsDisconnected(t *testing.T) {
	t.Run("default throws", func(t *testing.T) {
		h := newHarness(t, nil)

		h.s.Join(id("A"), 1)
		h.s.Join(id("B"), 2)
		h.readyUp("A", "B")
		h.runCountdown()

		h.s.Disconnect("conn-B")
		if h.s.CurrentTurn() != "A" {
			t.Fatalf("current turn = %q, want A", h.s.CurrentTurn())
		}

		h.out.reset()
		for range 3 {
			h.s.Throw(id("A"), &scoring.Aim{})
		}

		// B is skipped and the ring wraps to A, who has finished.
		e, ok := h.out.last("match-over")
		if !ok {
			t.Fatalf("events %v, want match-over", h.out.types())
		}
		if st := e.Msg.(StandingsMessage).Players; len(st) != 2 || st[1].Connected {
			t.Errorf("standings %+v, want B listed as disconnected", st)
		}
		if !h.s.Empty() {
			t.Error("room should reset after the match")
		}
	})

	t.Run("wraps to A", func(t *testing.T) {
		h := newHarness(t, func(o *Options) { o.Throws = 6 })

		h.s.Join(id("A"), 1)
		h.s.Join(id("B"), 2)
		h.readyUp("A", "B")
		h.runCountdown()

		h.s.Disconnect("conn-B")
		for range turns.ThrowsPerTurn {
			h.s.Throw(id("A"), &scoring.Aim{})
		}

		if h.s.CurrentTurn() != "A" {
			t.Errorf("current turn = %q, want A after skipping B", h.s.CurrentTurn())
		}
	})
}
