/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package lease reserves one of a room's two seats for a limited time while
// a client moves from the queue into the game.
//
// Leases are advisory. Release does not check who holds a slot, and
// expired leases are only noticed by the next Assign.
package lease

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	// Slots is the number of seats per room.
	Slots = 2

	// DefaultTTL is how long an unrefreshed lease holds a seat.
	DefaultTTL = 60 * time.Second
)

// Allocator hands out slot leases backed by a Store.
type Allocator struct {
	mu    sync.Mutex
	clock clockwork.Clock
	ttl   time.Duration
	store Store
}

// New returns an allocator. A nil store uses a MemoryStore, a nil clock the
// real clock and a non-positive ttl DefaultTTL.
func New(store Store, clock clockwork.Clock, ttl time.Duration) *Allocator {
	if store == nil {
		store = NewMemoryStore()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Allocator{
		clock: clock,
		ttl:   ttl,
		store: store,
	}
}

// TTL returns the lease duration.
func (a *Allocator) TTL() time.Duration {
	return a.ttl
}

func (a *Allocator) load(room string) Occupancy {
	occ, err := a.store.Load(room)
	if err != nil {
		log.Warn().Err(err).Str("room", room).Msg("loading leases failed; treating room as empty")
		return Occupancy{}
	}

	return occ
}

func (a *Allocator) save(room string, occ Occupancy) {
	if err := a.store.Save(room, occ); err != nil {
		log.Warn().Err(err).Str("room", room).Msg("saving leases failed")
	}
}

func free(occ Occupancy, slot int, now time.Time) bool {
	expiry, ok := occ[slot]
	return !ok || !now.Before(expiry)
}

// Assign leases the first free slot, scanning 1 then 2.
func (a *Allocator) Assign(room string) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	occ := a.load(room)

	for slot := 1; slot <= Slots; slot++ {
		if !free(occ, slot, now) {
			continue
		}

		occ[slot] = now.Add(a.ttl)
		a.save(room, occ)

		log.Debug().Str("room", room).Int("slot", slot).Time("expires", occ[slot]).Msg("lease assigned")

		return slot, true
	}

	return 0, false
}

// Release frees a slot. Unknown rooms and slots are ignored.
func (a *Allocator) Release(room string, slot int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	occ := a.load(room)
	if _, ok := occ[slot]; !ok {
		return
	}

	delete(occ, slot)
	a.save(room, occ)

	log.Debug().Str("room", room).Int("slot", slot).Msg("lease released")
}

// Refresh extends an existing lease to a full TTL from now.
func (a *Allocator) Refresh(room string, slot int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	occ := a.load(room)
	if _, ok := occ[slot]; !ok {
		return
	}

	occ[slot] = a.clock.Now().Add(a.ttl)
	a.save(room, occ)
}

// Clear drops every lease in the room.
func (a *Allocator) Clear(room string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.store.Delete(room); err != nil {
		log.Warn().Err(err).Str("room", room).Msg("clearing leases failed")
	}
}

// Occupied returns the unexpired leases of a room.
func (a *Allocator) Occupied(room string) Occupancy {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	out := Occupancy{}
	for slot, expiry := range a.load(room) {
		if now.Before(expiry) {
			out[slot] = expiry
		}
	}

	return out
}
