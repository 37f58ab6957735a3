/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Seednode/darts/internal/arena"
	"github.com/Seednode/darts/internal/feed"
	"github.com/Seednode/darts/internal/lease"
	"github.com/Seednode/darts/internal/queue"
	"github.com/Seednode/darts/internal/rooms"
	"github.com/Seednode/darts/internal/timers"
)

const promoteTimer = "promote"

// Activity is one entry of a room's public event log.
type Activity struct {
	Time  time.Time `json:"time"`
	Room  string    `json:"room"`
	Event any       `json:"event"`
}

// RoomState is what /arena/:room/state reports.
type RoomState struct {
	arena.State
	Queue  []queue.Entry   `json:"queue"`
	Leases lease.Occupancy `json:"leases"`
}

type inboundMessage struct {
	client *Client
	msg    arena.ClientMessage
}

// hubDeps is shared by every hub of a manager.
type hubDeps struct {
	cfg      *Config
	clock    clockwork.Clock
	queue    *queue.Manager
	seats    *lease.Allocator
	names    arena.NameValidator
	recorder func(room string) arena.Recorder
}

// Hub is the event loop of one room. Client messages, timer callbacks and
// state queries all run on the run goroutine.
type Hub struct {
	base     string
	deps     hubDeps
	session  *arena.Session
	timers   *timers.Set
	activity *feed.Broadcaster[Activity]

	clients map[*Client]bool

	register chan *Client
	unreg    chan *Client
	inbound  chan inboundMessage
	posted   chan func()
	done     chan struct{}
	stopOnce sync.Once

	mu         sync.RWMutex
	lastActive time.Time
}

func newHub(base string, deps hubDeps) *Hub {
	h := &Hub{
		base:       base,
		deps:       deps,
		activity:   feed.New[Activity](feed.DefaultBuffer),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		inbound:    make(chan inboundMessage),
		posted:     make(chan func()),
		done:       make(chan struct{}),
		lastActive: deps.clock.Now(),
	}

	h.timers = timers.New(deps.clock, h.post)

	cfg := deps.cfg
	h.session = arena.NewSession(arena.Options{
		Room:           base,
		Countdown:      cfg.countdown,
		Throws:         cfg.throws,
		BoardRadius:    cfg.boardRadius,
		AimTimeout:     cfg.aimTimeout,
		AbandonTimeout: cfg.playerTimeout,
		Emitter:        h,
		Timers:         h.timers,
		Recorder:       deps.recorder(base),
		Seats:          deps.seats,
		SeatsFreed:     h.promote,
	})

	return h
}

// post runs fn on the loop. It gives up once the hub is stopped.
func (h *Hub) post(fn func()) {
	select {
	case h.posted <- fn:
	case <-h.done:
	}
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unreg <- c:
	case <-h.done:
	}
}

func (h *Hub) dispatch(c *Client, msg arena.ClientMessage) bool {
	select {
	case h.inbound <- inboundMessage{client: c, msg: msg}:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) touch() {
	h.mu.Lock()
	h.lastActive = h.deps.clock.Now()
	h.mu.Unlock()
}

func (h *Hub) idleSince() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.lastActive
}

func (h *Hub) run() {
	defer h.shutdown()

	for {
		select {
		case c := <-h.register:
			h.touch()
			h.clients[c] = true

			log.Debug().Str("room", h.base).Str("conn", c.id).Int("clients", len(h.clients)).Msg("client connected")

			h.deliver(c, arena.PlayerCountMessage{
				Type:        "roomPlayerCount",
				Room:        h.base,
				PlayerCount: h.session.ConnectedCount(),
			})

		case c := <-h.unreg:
			h.touch()

			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

			log.Debug().Str("room", h.base).Str("conn", c.id).Msg("client disconnected")

			if _, ok := h.deps.queue.Leave(c.id); ok {
				h.sendQueueStatus()
			}
			h.session.Disconnect(c.id)

		case in := <-h.inbound:
			h.touch()
			h.handle(in.client, in.msg)

		case fn := <-h.posted:
			fn()

		case <-h.done:
			return
		}
	}
}

func (h *Hub) shutdown() {
	for c := range h.clients {
		h.deps.queue.Leave(c.id)
	}

	h.session.Reset("room closed")

	log.Debug().Str("room", h.base).Int("timers", h.timers.Len()).Int("subscribers", h.activity.Len()).Msg("stopping room")
	h.timers.CancelAll()

	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}

	h.activity.Close()

	log.Info().Str("room", h.base).Msg("room closed")
}

// addressed resolves the sub-room a message names. ok is false for
// messages meant for another room.
func (h *Hub) addressed(room string) (rooms.Name, bool) {
	base, ok := rooms.BaseOf(room)
	if !ok {
		return rooms.Name{Base: h.base}, true
	}
	if base != h.base {
		return rooms.Name{}, false
	}

	n, _ := rooms.Parse(room)
	n.Base = base

	return n, true
}

func (h *Hub) handle(c *Client, msg arena.ClientMessage) {
	sub, ok := h.addressed(msg.Room)
	if !ok {
		log.Debug().Str("room", h.base).Str("conn", c.id).Str("target", msg.Room).Msg("ignoring message for another room")
		return
	}
	if sub.Role == rooms.Display {
		c.display = true
	}

	id := arena.Identity{
		PlayerID: msg.PlayerID,
		Name:     strings.TrimSpace(msg.Name),
		ConnID:   c.id,
	}

	switch msg.Type {
	case arena.InboundJoinQueue:
		if !h.validName(c, id.Name) {
			return
		}
		h.deps.queue.Join(h.base, c.id, id.Name)
		h.promote()

		if pos, ok := h.deps.queue.Position(h.base, c.id); ok {
			log.Info().
				Str("room", h.base).
				Str("conn", c.id).
				Int("position", pos).
				Int("waiting", h.deps.queue.Len(h.base)).
				Msg("client queued")
		}

	case arena.InboundLeaveQueue:
		if _, ok := h.deps.queue.Leave(c.id); ok {
			h.promote()
		}

	case arena.InboundJoinRoom:
		if sub.Role == rooms.Display {
			h.deliver(c, arena.PlayerCountMessage{
				Type:        "joinedRoom",
				Room:        h.base,
				PlayerCount: h.session.ConnectedCount(),
			})
			return
		}
		if id.Name != "" && !h.validName(c, id.Name) {
			return
		}
		h.session.Join(id, sub.Slot)

	case arena.InboundAimUpdate:
		h.session.UpdateAim(id, msg.Aim, msg.Skin)

	case arena.InboundAimOff:
		h.session.AimOff(id)

	case arena.InboundThrow:
		h.session.Throw(id, msg.Aim)

	case arena.InboundSolo:
		if id.Name == "" {
			id.Name = strings.TrimSpace(msg.Player)
		}
		h.session.StartSolo(id)

	default:
		log.Debug().Str("room", h.base).Str("conn", c.id).Str("type", msg.Type).Msg("ignoring unknown message")
	}
}

func (h *Hub) validName(c *Client, name string) bool {
	ok, reason := h.deps.names.Validate(name)
	if ok {
		return true
	}

	log.Info().Str("room", h.base).Str("conn", c.id).Str("reason", reason).Msg("name rejected")

	h.deliver(c, arena.RejectedMessage{
		Type:   "player-rejected",
		Room:   h.base,
		Name:   name,
		Reason: arena.ReasonBadName,
	})

	return false
}

// promote seats queued clients into free slots and reports the queue.
func (h *Hub) promote() {
	for _, a := range h.deps.queue.Promote(h.base) {
		c := h.client(a.ConnID)
		if c == nil {
			h.deps.seats.Release(h.base, a.Slot)
			continue
		}

		h.deliver(c, arena.QueueAdmittedMessage{
			Type:       "queue-admitted",
			Room:       h.base,
			Slot:       a.Slot,
			PlayerRoom: rooms.PlayerRoom(h.base, a.Slot),
		})
	}

	h.sendQueueStatus()
}

func (h *Hub) sendQueueStatus() {
	ids := h.deps.queue.Snapshot(h.base)

	for pos, id := range ids {
		if c := h.client(id); c != nil {
			h.deliver(c, arena.StatusQueueMessage{
				Type:     "status-queue",
				Room:     h.base,
				Queue:    ids,
				Position: pos,
				Slot:     queue.SlotForPosition(pos),
			})
		}
	}

	for c := range h.clients {
		if c.display {
			h.deliver(c, arena.StatusQueueMessage{Type: "status-queue", Room: h.base, Queue: ids, Position: -1})
		}
	}

	// Expired leases are only noticed by the next Assign.
	if len(ids) > 0 {
		if !h.timers.Pending(promoteTimer) {
			h.timers.After(promoteTimer, h.deps.seats.TTL(), h.promote)
		}
	} else {
		h.timers.Cancel(promoteTimer)
	}
}

func (h *Hub) client(connID string) *Client {
	for c := range h.clients {
		if c.id == connID {
			return c
		}
	}
	return nil
}

// deliver queues msg for c, dropping clients that cannot keep up.
func (h *Hub) deliver(c *Client, msg any) {
	select {
	case c.send <- msg:
	default:
		log.Warn().Str("room", h.base).Str("conn", c.id).Msg("client send buffer full; dropping client")
		delete(h.clients, c)
		close(c.send)
	}
}

// Emit fans session events out to the room's connections.
func (h *Hub) Emit(e arena.Event) {
	switch e.To {
	case arena.Sender:
		if c := h.client(e.ConnID); c != nil {
			h.deliver(c, e.Msg)
		}

	case arena.Displays:
		for c := range h.clients {
			if c.display {
				h.deliver(c, e.Msg)
			}
		}

	case arena.Everyone:
		for c := range h.clients {
			h.deliver(c, e.Msg)
		}
		h.activity.Publish(Activity{Time: h.deps.clock.Now(), Room: h.base, Event: e.Msg})
	}
}

// Snapshot returns the room state as seen from the loop.
func (h *Hub) Snapshot(ctx context.Context) (RoomState, error) {
	res := make(chan RoomState, 1)

	fn := func() {
		res <- RoomState{
			State:  h.session.Snapshot(),
			Queue:  h.deps.queue.Entries(h.base),
			Leases: h.deps.seats.Occupied(h.base),
		}
	}

	select {
	case h.posted <- fn:
	case <-h.done:
		return RoomState{}, ErrHubClosed
	case <-ctx.Done():
		return RoomState{}, ctx.Err()
	}

	select {
	case st := <-res:
		return st, nil
	case <-ctx.Done():
		return RoomState{}, ctx.Err()
	}
}

// HubManager holds one hub per room, so each $path/$room is its own
// isolated arena.
type HubManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	deps        hubDeps
	idleTimeout time.Duration
}

func newHubManager(deps hubDeps, idleTimeout time.Duration) *HubManager {
	return &HubManager{
		hubs:        make(map[string]*Hub),
		deps:        deps,
		idleTimeout: idleTimeout,
	}
}

func (m *HubManager) getHub(base string) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[base]; ok {
		return hub
	}

	hub := newHub(base, m.deps)
	m.hubs[base] = hub
	go hub.run()

	log.Info().Str("room", base).Msg("room created")

	return hub
}

func (m *HubManager) lookup(base string) (*Hub, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hub, ok := m.hubs[base]
	return hub, ok
}

func (m *HubManager) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.hubs)
}

// newRoomID generates a crypto-random room id that no live room uses.
func (m *HubManager) newRoomID() string {
	const letters = "abcdefghijkmnpqrstuvwxyz23456789"
	for {
		buf := make([]byte, 6)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, len(buf))
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		if _, exists := m.lookup(id); !exists {
			return id
		}
	}
}

// reapIdle stops hubs idle since before cutoff.
func (m *HubManager) reapIdle(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	reaped := 0
	for id, hub := range m.hubs {
		if hub.idleSince().Before(cutoff) {
			delete(m.hubs, id)
			hub.stop()
			reaped++
		}
	}

	return reaped
}

// reaperLoop periodically removes hubs that have been idle longer than
// idleTimeout, until ctx is done.
func (m *HubManager) reaperLoop(ctx context.Context) {
	if m.idleTimeout <= 0 {
		return
	}

	ticker := m.deps.clock.NewTicker(m.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if n := m.reapIdle(m.deps.clock.Now().Add(-m.idleTimeout)); n > 0 {
				log.Info().Int("rooms", n).Msg("reaped idle rooms")
			}
		}
	}
}

func (m *HubManager) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, hub := range m.hubs {
		delete(m.hubs, id)
		hub.stop()
	}
}
