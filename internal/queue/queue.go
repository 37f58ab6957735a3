/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package queue keeps the ordered wait list of each room and promotes the
// clients at the head of it into free seats.
package queue

import (
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Seednode/darts/internal/feed"
)

// Seats reserves a seat in a room. *lease.Allocator satisfies it.
type Seats interface {
	Assign(room string) (int, bool)
}

// Entry is one waiting connection.
type Entry struct {
	ConnID   string    `json:"connId"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Status is a snapshot of a room's queue, in arrival order.
type Status struct {
	Room  string   `json:"room"`
	Queue []string `json:"queue"`
}

// Admission is a queued connection that was given a seat.
type Admission struct {
	Room   string
	ConnID string
	Name   string
	Slot   int
}

// Manager is the authoritative queue for every room.
type Manager struct {
	mu     sync.Mutex
	seats  Seats
	clock  clockwork.Clock
	queues map[string][]Entry
	where  map[string]string
	feed   *feed.Broadcaster[Status]
}

// New returns an empty manager. Changes are published on f; a nil f gets a
// default-sized broadcaster.
func New(seats Seats, clock clockwork.Clock, f *feed.Broadcaster[Status]) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if f == nil {
		f = feed.New[Status](feed.DefaultBuffer)
	}

	return &Manager{
		seats:  seats,
		clock:  clock,
		queues: make(map[string][]Entry),
		where:  make(map[string]string),
		feed:   f,
	}
}

// SlotForPosition maps a 0-based queue position to the seat it would take,
// or 0 if the position is too far back.
func SlotForPosition(pos int) int {
	if pos < 0 || pos > 1 {
		return 0
	}
	return pos + 1
}

// Feed returns the broadcaster that receives a Status on every change.
func (m *Manager) Feed() *feed.Broadcaster[Status] {
	return m.feed
}

// Join appends connID to the room's queue. Joining a room the connection
// already waits in is a no-op; joining another room moves it.
func (m *Manager) Join(room, connID, name string) bool {
	m.mu.Lock()

	if current, ok := m.where[connID]; ok {
		if current == room {
			m.mu.Unlock()
			return false
		}
		m.removeLocked(current, connID)
		m.publishLocked(current)
	}

	m.queues[room] = append(m.queues[room], Entry{
		ConnID:   connID,
		Name:     name,
		JoinedAt: m.clock.Now(),
	})
	m.where[connID] = room
	m.publishLocked(room)

	m.mu.Unlock()

	log.Debug().Str("room", room).Str("conn", connID).Str("name", name).Msg("joined queue")

	return true
}

// Leave removes connID from whatever queue it is in and returns that room.
func (m *Manager) Leave(connID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.where[connID]
	if !ok {
		return "", false
	}

	m.removeLocked(room, connID)
	m.publishLocked(room)

	return room, true
}

func (m *Manager) removeLocked(room, connID string) {
	delete(m.where, connID)

	q := slices.DeleteFunc(m.queues[room], func(e Entry) bool {
		return e.ConnID == connID
	})
	if len(q) == 0 {
		delete(m.queues, room)
		return
	}
	m.queues[room] = q
}

func (m *Manager) snapshotLocked(room string) []string {
	ids := make([]string, 0, len(m.queues[room]))
	for _, e := range m.queues[room] {
		ids = append(ids, e.ConnID)
	}
	return ids
}

func (m *Manager) publishLocked(room string) {
	m.feed.Publish(Status{Room: room, Queue: m.snapshotLocked(room)})
}

// Snapshot returns the room's queued connection ids in arrival order.
func (m *Manager) Snapshot(room string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.snapshotLocked(room)
}

// Entries returns a copy of the room's queue.
func (m *Manager) Entries(room string) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.queues[room])
}

// Position returns connID's 0-based position in the room's queue.
func (m *Manager) Position(room, connID string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.queues[room] {
		if e.ConnID == connID {
			return i, true
		}
	}
	return -1, false
}

// Len returns the number of waiting connections in the room.
func (m *Manager) Len(room string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.queues[room])
}

// Promote seats the entries whose position maps to a slot, for as long as
// seats are available. Promoted entries leave the queue.
func (m *Manager) Promote(room string) []Admission {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.seats == nil {
		return nil
	}

	var admitted []Admission
	for pos, e := range m.queues[room] {
		if SlotForPosition(pos) == 0 {
			break
		}

		slot, ok := m.seats.Assign(room)
		if !ok {
			break
		}

		admitted = append(admitted, Admission{
			Room:   room,
			ConnID: e.ConnID,
			Name:   e.Name,
			Slot:   slot,
		})
	}

	if len(admitted) == 0 {
		return nil
	}

	for _, a := range admitted {
		m.removeLocked(room, a.ConnID)
		log.Info().Str("room", room).Str("conn", a.ConnID).Int("slot", a.Slot).Msg("promoted from queue")
	}
	m.publishLocked(room)

	return admitted
}
