/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package arena is the authoritative state of one dart room: who is
// seated, where they are aiming, whose turn it is and the score.
//
// A Session is not safe for concurrent use. Its owner runs every call, and
// every timer callback, on a single goroutine.
package arena

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Seednode/darts/internal/rooms"
	"github.com/Seednode/darts/internal/scoring"
	"github.com/Seednode/darts/internal/timers"
	"github.com/Seednode/darts/internal/turns"
)

const (
	// Capacity is the number of distinct players a room holds.
	Capacity = 2

	// DefaultThrows is how many darts each player throws per match.
	DefaultThrows = 3

	DefaultAimTimeout     = 10 * time.Second
	DefaultAbandonTimeout = 30 * time.Second

	countdownTimer = "countdown"
	abandonTimer   = "abandon"
	aimTimerPrefix = "aim:"
)

// Identity is everything a message may say about who sent it.
type Identity struct {
	PlayerID string
	Name     string
	ConnID   string
}

// ResolveKey picks the player key: explicit player id, else display name,
// else connection id.
func ResolveKey(id Identity) string {
	switch {
	case id.PlayerID != "":
		return id.PlayerID
	case id.Name != "":
		return id.Name
	}
	return id.ConnID
}

// Player is one seated participant. The record outlives a disconnect so
// that score and turn order survive a reconnect.
type Player struct {
	Key           string `json:"key"`
	Name          string `json:"name"`
	Score         int    `json:"score"`
	Connected     bool   `json:"isConnected"`
	Ready         bool   `json:"isReady"`
	Finished      bool   `json:"finished"`
	TotalThrows   int    `json:"totalThrows"`
	CurrentThrows int    `json:"currentThrows"`
	Slot          int    `json:"slot,omitempty"`
	ConnID        string `json:"-"`
}

// AimSample is the latest aim reported by a player.
type AimSample struct {
	Key  string  `json:"key"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Skin string  `json:"skin,omitempty"`
}

// Options configures a Session. Zero values pick the defaults.
type Options struct {
	Room           string
	Countdown      int
	Throws         int
	BoardRadius    float64
	AimTimeout     time.Duration
	AbandonTimeout time.Duration

	Emitter  Emitter
	Timers   *timers.Set
	Recorder Recorder
	Seats    Seats

	// SeatsFreed runs whenever a lease was released, so queued clients can
	// be promoted.
	SeatsFreed func()
}

// Session owns the player map, turn order and aim samples of a room.
type Session struct {
	room           string
	throws         int
	radius         float64
	aimTimeout     time.Duration
	abandonTimeout time.Duration

	emitter    Emitter
	timers     *timers.Set
	recorder   Recorder
	seats      Seats
	seatsFreed func()

	players map[string]*Player
	order   []string
	aims    map[string]AimSample
	held    map[string]AimSample
	turn    *turns.Machine
	solo    bool
	soloKey string
}

// NewSession returns an empty room. Options.Timers is required.
func NewSession(opts Options) *Session {
	if opts.Throws <= 0 {
		opts.Throws = DefaultThrows
	}
	if opts.BoardRadius <= 0 {
		opts.BoardRadius = scoring.DefaultRadius
	}
	if opts.Recorder == nil {
		opts.Recorder = LogRecorder{}
	}
	if opts.Emitter == nil {
		opts.Emitter = discard{}
	}
	if opts.SeatsFreed == nil {
		opts.SeatsFreed = func() {}
	}

	return &Session{
		room:           opts.Room,
		throws:         opts.Throws,
		radius:         opts.BoardRadius,
		aimTimeout:     opts.AimTimeout,
		abandonTimeout: opts.AbandonTimeout,
		emitter:        opts.Emitter,
		timers:         opts.Timers,
		recorder:       opts.Recorder,
		seats:          opts.Seats,
		seatsFreed:     opts.SeatsFreed,
		players:        make(map[string]*Player),
		aims:           make(map[string]AimSample),
		held:           make(map[string]AimSample),
		turn:           turns.NewMachine(opts.Countdown),
	}
}

type discard struct{}

func (discard) Emit(Event) {}

func (s *Session) emit(to Audience, connID string, msg any) {
	s.emitter.Emit(Event{To: to, ConnID: connID, Msg: msg})
}

// Room returns the room's base name.
func (s *Session) Room() string { return s.room }

// Solo reports whether the room is in solo mode.
func (s *Session) Solo() bool { return s.solo }

// CurrentTurn returns the key holding the turn, or "".
func (s *Session) CurrentTurn() string { return s.turn.Current() }

// Counting reports whether the pre-game countdown is running.
func (s *Session) Counting() bool { return s.turn.Counting() }

// Player returns a copy of a player record.
func (s *Session) Player(key string) (Player, bool) {
	p, ok := s.players[key]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// Order returns the join order.
func (s *Session) Order() []string {
	return append([]string(nil), s.order...)
}

// Aim returns the stored aim sample for key.
func (s *Session) Aim(key string) (AimSample, bool) {
	a, ok := s.aims[key]
	return a, ok
}

// Held reports whether a sample from key is being held back.
func (s *Session) Held(key string) bool {
	_, ok := s.held[key]
	return ok
}

// ConnectedCount returns the number of connected players.
func (s *Session) ConnectedCount() int {
	n := 0
	for _, p := range s.players {
		if p.Connected {
			n++
		}
	}
	return n
}

// Empty reports whether the room holds no player records.
func (s *Session) Empty() bool {
	return len(s.players) == 0
}

// seated counts the players still taking part in the match. Finished
// players keep their record but give up their seat.
func (s *Session) seated() int {
	n := 0
	for _, p := range s.players {
		if !p.Finished {
			n++
		}
	}
	return n
}

func (s *Session) eligible(key string) bool {
	p, ok := s.players[key]
	return ok && p.Connected && !p.Finished
}

func (s *Session) reject(id Identity, reason string) {
	log.Info().Str("room", s.room).Str("player", ResolveKey(id)).Str("reason", reason).Msg("player rejected")

	s.emit(Sender, id.ConnID, RejectedMessage{
		Type:   "player-rejected",
		Room:   s.room,
		Name:   id.Name,
		Reason: reason,
	})
}

// Join seats a player, or reactivates a known one. slot is the lease slot
// named by the player room the client joined, or 0.
func (s *Session) Join(id Identity, slot int) bool {
	key := ResolveKey(id)
	if key == "" {
		return false
	}

	p, exists := s.players[key]
	if !exists {
		if s.seated() >= Capacity {
			s.reject(id, ReasonRoomFull)
			return false
		}
		if s.solo {
			s.reject(id, ReasonSoloMode)
			return false
		}

		p = &Player{Key: key, Name: key}
		s.players[key] = p
		s.order = append(s.order, key)
	}

	if id.Name != "" {
		p.Name = id.Name
	}
	if slot > 0 {
		p.Slot = slot
		s.refreshSeat(p)
	}
	p.Connected = true
	p.ConnID = id.ConnID

	s.timers.Cancel(abandonTimer)

	log.Info().Str("room", s.room).Str("player", key).Bool("returning", exists).Msg("player joined")

	count := s.ConnectedCount()
	s.emit(Sender, id.ConnID, PlayerCountMessage{Type: "joinedRoom", Room: s.room, PlayerCount: count})
	info := ClientInfoMessage{Type: "clientInfo", SocketID: id.ConnID, Name: p.Name}
	if p.Slot > 0 {
		info.Room = rooms.PlayerRoom(s.room, p.Slot)
	}
	s.emit(Displays, "", info)
	s.emit(Everyone, "", PlayerCountMessage{Type: "roomPlayerCount", Room: s.room, PlayerCount: count})

	// A returning player may complete a readiness handshake that stalled
	// when they dropped.
	s.maybeStartCountdown()

	return true
}

// UpdateAim records an aim sample. The readiness sentinel marks the sender
// ready instead of being stored.
func (s *Session) UpdateAim(id Identity, aim *scoring.Aim, skin string) {
	key := ResolveKey(id)
	if key == "" {
		return
	}

	if aim != nil && turns.IsSentinel(aim.X, aim.Y) {
		s.markReady(key)
		return
	}

	var a scoring.Aim
	if aim != nil {
		a = *aim
	}
	a = a.Clamp()

	p, ok := s.players[key]
	if !ok || !p.Connected {
		if !s.Join(id, 0) {
			return
		}
		p = s.players[key]
	}

	sample := AimSample{Key: key, X: a.X, Y: a.Y, Skin: skin}

	if !p.Ready && s.turn.State() != turns.Active && s.ConnectedCount() >= Capacity && !s.solo {
		s.held[key] = sample
		return
	}

	delete(s.held, key)
	s.aims[key] = sample
	s.refreshSeat(p)

	if s.aimTimeout > 0 {
		s.timers.After(aimTimerPrefix+key, s.aimTimeout, func() {
			log.Debug().Str("room", s.room).Str("player", key).Msg("aim timed out")
			s.dropAim(key)
		})
	}

	s.emit(Displays, "", AimMessage{
		Type:     "aim-update",
		Room:     s.room,
		PlayerID: key,
		Name:     p.Name,
		Skin:     skin,
		Aim:      &a,
	})
}

func (s *Session) dropAim(key string) {
	delete(s.held, key)
	s.timers.Cancel(aimTimerPrefix + key)

	if _, ok := s.aims[key]; !ok {
		return
	}
	delete(s.aims, key)

	s.emit(Displays, "", AimMessage{Type: "aim-off", Room: s.room, PlayerID: key})
}

// AimOff removes the sender's aim. The only player of a solo match leaving
// resets the room.
func (s *Session) AimOff(id Identity) {
	key := ResolveKey(id)
	s.dropAim(key)

	if s.solo && s.soloKey == key {
		s.Reset("solo player left")
	}
}

func (s *Session) markReady(key string) {
	p, ok := s.players[key]
	if !ok || !p.Connected || p.Ready {
		return
	}

	p.Ready = true
	log.Info().Str("room", s.room).Str("player", key).Msg("player ready")
	s.emit(Everyone, "", ReadyMessage{Type: "player-ready", Room: s.room, Name: p.Name})

	s.maybeStartCountdown()
}

func (s *Session) maybeStartCountdown() {
	connected, ready := 0, 0
	for _, p := range s.players {
		if !p.Connected || p.Finished {
			continue
		}
		connected++
		if p.Ready {
			ready++
		}
	}

	if !s.turn.CanStart(connected, ready, s.solo) {
		return
	}

	value := s.turn.StartCountdown()
	log.Info().Str("room", s.room).Int("from", value).Msg("countdown started")

	s.emit(Everyone, "", CountdownMessage{Type: "countdown", Room: s.room, Value: value})
	s.scheduleTick()
}

func (s *Session) scheduleTick() {
	s.timers.After(countdownTimer, time.Second, s.tick)
}

func (s *Session) tick() {
	value, done := s.turn.Tick()
	if !s.turn.Counting() {
		return
	}

	s.emit(Everyone, "", CountdownMessage{Type: "countdown", Room: s.room, Value: value})

	if !done {
		s.scheduleTick()
		return
	}

	first, _ := turns.Next(s.order, s.eligible, "")
	s.turn.Activate(first)
	s.announceTurn()
}

func (s *Session) cancelCountdown() {
	if !s.turn.Counting() {
		return
	}

	s.timers.Cancel(countdownTimer)
	s.turn.Cancel()

	log.Info().Str("room", s.room).Msg("countdown cancelled")
	s.emit(Everyone, "", CountdownMessage{Type: "countdown-cancelled", Room: s.room})
}

func (s *Session) announceTurn() {
	key := s.turn.Current()
	msg := TurnMessage{Type: "turn-update", Room: s.room, CurrentTurn: key}
	if p, ok := s.players[key]; ok {
		msg.Name = p.Name
	}

	log.Info().Str("room", s.room).Str("player", key).Msg("turn update")
	s.emit(Everyone, "", msg)
}

// StartSolo switches the room to a single-player match for the sender,
// skipping the readiness handshake. It is ignored while another player is
// connected.
func (s *Session) StartSolo(id Identity) bool {
	key := ResolveKey(id)
	if key == "" {
		return false
	}

	for k, p := range s.players {
		if k != key && p.Connected {
			log.Info().Str("room", s.room).Str("player", key).Msg("solo start ignored; room has another player")
			return false
		}
	}

	if p, ok := s.players[key]; !ok || !p.Connected {
		if !s.Join(id, 0) {
			return false
		}
	}

	s.cancelCountdown()

	p := s.players[key]
	p.Ready = true
	s.solo = true
	s.soloKey = key

	for k := range s.aims {
		if k != key {
			s.dropAim(k)
		}
	}
	for k := range s.held {
		if k != key {
			delete(s.held, k)
		}
	}

	s.turn.Activate(key)

	log.Info().Str("room", s.room).Str("player", key).Msg("solo match started")
	s.emit(Everyone, "", SoloStartedMessage{Type: "solo-mode-started", Room: s.room, Player: p.Name})
	s.announceTurn()

	return true
}

// Throw scores a dart from the player holding the turn and advances the
// turn after every third dart.
func (s *Session) Throw(id Identity, aim *scoring.Aim) {
	key := ResolveKey(id)

	p, ok := s.players[key]
	if !ok || !p.Connected || p.Finished {
		return
	}

	if s.turn.Current() != key {
		s.emit(Sender, id.ConnID, NotYourTurnMessage{Type: "not-your-turn", Room: s.room, Name: p.Name})
		return
	}

	s.refreshSeat(p)

	zone, points := scoring.Score(aim, s.radius)

	var landed scoring.Aim
	if aim != nil {
		landed = aim.Clamp()
	}

	p.Score += points
	p.TotalThrows++

	var turnOver bool
	p.CurrentThrows, turnOver = turns.CountThrow(p.CurrentThrows)

	log.Info().
		Str("room", s.room).
		Str("player", key).
		Str("zone", zone.String()).
		Int("points", points).
		Int("total", p.Score).
		Msg("dart thrown")

	s.emit(Everyone, "", DartThrownMessage{
		Type:  "dart-thrown",
		Room:  s.room,
		Name:  p.Name,
		Aim:   landed,
		Score: points,
		Zone:  zone.String(),
	})

	if p.TotalThrows >= s.throws {
		p.Finished = true
		p.CurrentThrows = 0
		turnOver = true
		s.finishPlayer(p)
	}

	s.emit(Everyone, "", StandingsMessage{Type: "standings", Room: s.room, Players: s.Standings()})

	if !turnOver {
		return
	}

	next, ok := turns.Next(s.order, s.eligible, key)
	s.turn.Activate(next)
	s.announceTurn()

	if !ok {
		s.matchOver()
	}
}

func (s *Session) finishPlayer(p *Player) {
	s.recorder.RecordFinish(p.Name, p.Score)
	s.dropAim(p.Key)
	s.releaseSeat(p)
}

func (s *Session) matchOver() {
	log.Info().Str("room", s.room).Msg("match over")
	s.emit(Everyone, "", StandingsMessage{Type: "match-over", Room: s.room, Players: s.Standings()})
	s.Reset("match over")
}

// Disconnect marks every player on connID as departed. Readiness is kept.
// A departing turn holder leaves the room with no current turn until a
// returning or new player completes another countdown, or the room resets.
func (s *Session) Disconnect(connID string) {
	changed := false

	for _, key := range s.order {
		p := s.players[key]
		if !p.Connected || p.ConnID != connID {
			continue
		}

		changed = true
		p.Connected = false
		s.dropAim(key)

		log.Info().Str("room", s.room).Str("player", key).Msg("player disconnected")

		s.cancelCountdown()

		if s.turn.Current() == key {
			s.turn.Clear()
			s.announceTurn()
		}
	}

	if !changed {
		return
	}

	s.emit(Everyone, "", PlayerCountMessage{Type: "roomPlayerCount", Room: s.room, PlayerCount: s.ConnectedCount()})

	if s.ConnectedCount() == 0 && s.abandonTimeout > 0 {
		s.timers.After(abandonTimer, s.abandonTimeout, func() {
			if s.ConnectedCount() == 0 && !s.Empty() {
				s.Reset("abandoned")
			}
		})
	}
}

// Reset clears every player, aim and timer of the room and frees its
// leases.
func (s *Session) Reset(reason string) {
	s.timers.CancelAll()

	clear(s.players)
	clear(s.aims)
	clear(s.held)
	s.order = nil
	s.solo = false
	s.soloKey = ""
	s.turn.Reset()

	if s.seats != nil {
		s.seats.Clear(s.room)
	}

	log.Info().Str("room", s.room).Str("reason", reason).Msg("room reset")

	s.emit(Everyone, "", ResetMessage{Type: "room-reset", Room: s.room, Reason: reason})
	s.emit(Everyone, "", TurnMessage{Type: "turn-update", Room: s.room})
	s.emit(Everyone, "", PlayerCountMessage{Type: "roomPlayerCount", Room: s.room})

	s.seatsFreed()
}

func (s *Session) refreshSeat(p *Player) {
	if s.seats != nil && p.Slot > 0 {
		s.seats.Refresh(s.room, p.Slot)
	}
}

func (s *Session) releaseSeat(p *Player) {
	if s.seats == nil || p.Slot == 0 {
		return
	}

	s.seats.Release(s.room, p.Slot)
	p.Slot = 0
	s.seatsFreed()
}

// Standings returns the scoreboard in join order.
func (s *Session) Standings() []Standing {
	out := make([]Standing, 0, len(s.order))
	for _, key := range s.order {
		p := s.players[key]
		out = append(out, Standing{
			Name:        p.Name,
			Score:       p.Score,
			TotalThrows: p.TotalThrows,
			Connected:   p.Connected,
			Finished:    p.Finished,
		})
	}
	return out
}

// State is a read-only view of the room.
type State struct {
	Room        string      `json:"room"`
	Solo        bool        `json:"solo"`
	Phase       string      `json:"phase"`
	CurrentTurn string      `json:"currentTurn"`
	Countdown   int         `json:"countdown,omitempty"`
	Players     []Player    `json:"players"`
	Aims        []AimSample `json:"aims"`
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	st := State{
		Room:        s.room,
		Solo:        s.solo,
		Phase:       s.turn.State().String(),
		CurrentTurn: s.turn.Current(),
		Players:     make([]Player, 0, len(s.order)),
		Aims:        make([]AimSample, 0, len(s.aims)),
	}
	if s.turn.Counting() {
		st.Countdown = s.turn.Countdown()
	}
	for _, key := range s.order {
		st.Players = append(st.Players, *s.players[key])
		if a, ok := s.aims[key]; ok {
			st.Aims = append(st.Aims, a)
		}
	}
	return st
}
