/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package feed provides a bounded publish/subscribe fan-out.
package feed

import "sync"

// DefaultBuffer is the per-subscriber buffer used when none is given.
const DefaultBuffer = 16

// Broadcaster publishes values to subscribers. Each subscriber has a
// fixed-size buffer; values published while it is full are dropped for
// that subscriber only.
type Broadcaster[T any] struct {
	mu      sync.Mutex
	buffer  int
	subs    map[chan T]struct{}
	dropped uint64
}

// New creates an empty broadcaster with the given per-subscriber buffer.
func New[T any](buffer int) *Broadcaster[T] {
	if buffer < 1 {
		buffer = DefaultBuffer
	}

	return &Broadcaster[T]{
		buffer: buffer,
		subs:   make(map[chan T]struct{}),
	}
}

// Subscribe registers a new subscriber and returns its channel.
func (b *Broadcaster[T]) Subscribe() chan T {
	ch := make(chan T, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster[T]) Unsubscribe(ch chan T) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish delivers v to every subscriber that has room for it.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- v:
		default:
			// Lagging subscriber; the next value catches it up.
			b.dropped++
		}
	}
	b.mu.Unlock()
}

// Len returns the number of subscribers.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber
// buffer was full.
func (b *Broadcaster[T]) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close unsubscribes everyone.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}
