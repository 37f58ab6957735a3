/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	"github.com/Seednode/darts/internal/queue"
	"github.com/Seednode/darts/internal/rooms"
)

const keepAliveInterval = 25 * time.Second

func writeSSE(w http.ResponseWriter, event string, data []byte) {
	_, _ = w.Write([]byte("event: " + event + "\n"))
	for _, line := range strings.Split(string(data), "\n") {
		_, _ = w.Write([]byte("data: " + line + "\n"))
	}
	_, _ = w.Write([]byte("\n"))
}

// startStream prepares w for server-sent events and lifts the server's
// write timeout for this response.
func startStream(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil, false
	}

	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return flusher, true
}

// stream relays values from sub until the client goes away or the feed is
// closed. keep filters values; a nil keep passes everything.
func stream[T any](ctx context.Context, w http.ResponseWriter, flusher http.Flusher, event string, sub chan T, keep func(T) bool) {
	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case v, ok := <-sub:
			if !ok {
				return
			}
			if keep != nil && !keep(v) {
				continue
			}

			data, err := json.Marshal(v)
			if err != nil {
				log.Warn().Err(err).Str("event", event).Msg("encoding stream event failed")
				continue
			}
			writeSSE(w, event, data)
			flusher.Flush()

		case <-keepAlive.C:
			_, _ = w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		}
	}
}

// serveActivity streams everything broadcast to a room's players.
func serveActivity(m *HubManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		base := ps.ByName("room")
		if !rooms.ValidBase(base) {
			http.Error(w, "invalid room", http.StatusBadRequest)
			return
		}

		hub, ok := m.lookup(base)
		if !ok {
			http.NotFound(w, r)
			return
		}

		flusher, ok := startStream(w)
		if !ok {
			return
		}

		sub := hub.activity.Subscribe()
		defer hub.activity.Unsubscribe(sub)

		logf("SERVE: Activity stream for room %s to %s", base, realIP(r))

		stream(r.Context(), w, flusher, "activity", sub, nil)

		logf("SERVE: Activity stream for room %s to %s closed (%d events dropped room-wide)", base, realIP(r), hub.activity.Dropped())
	}
}

// serveQueueFeed streams the room's queue snapshots.
func serveQueueFeed(q *queue.Manager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		base := ps.ByName("room")
		if !rooms.ValidBase(base) {
			http.Error(w, "invalid room", http.StatusBadRequest)
			return
		}

		flusher, ok := startStream(w)
		if !ok {
			return
		}

		f := q.Feed()
		sub := f.Subscribe()
		defer f.Unsubscribe(sub)

		initial, _ := json.Marshal(queue.Status{Room: base, Queue: q.Snapshot(base)})
		writeSSE(w, "status-queue", initial)
		flusher.Flush()

		stream(r.Context(), w, flusher, "status-queue", sub, func(s queue.Status) bool {
			return s.Room == base
		})
	}
}

// serveState reports a room's state as JSON.
func serveState(cfg *Config, m *HubManager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		base := ps.ByName("room")

		hub, ok := m.lookup(base)
		if !ok {
			http.NotFound(w, r)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		st, err := hub.Snapshot(ctx)
		switch {
		case errors.Is(err, ErrHubClosed):
			http.NotFound(w, r)
			return
		case err != nil:
			http.Error(w, "room busy", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		if err := json.NewEncoder(w).Encode(st); err != nil {
			errs <- err
		}
	}
}
