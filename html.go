/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/Seednode/darts/internal/lease"
	"github.com/Seednode/darts/internal/rooms"
)

func cspPage(w http.ResponseWriter) {
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
}

func writePage(cfg *Config, w http.ResponseWriter, r *http.Request, errs chan<- error, page string) {
	startTime := time.Now()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	securityHeaders(cfg, w)
	cspPage(w)

	written, err := w.Write([]byte(page))
	if err != nil {
		errs <- err

		return
	}

	logf("SERVE: Page %s (%s) to %s in %s",
		r.URL.Path,
		humanReadableSize(int64(written)),
		realIP(r),
		time.Since(startTime).Round(time.Microsecond),
	)
}

func serveHomePage(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writePage(cfg, w, r, errs, newPage(cfg, "darts", "Tap to open a new arena"))
	}
}

// serveRoomPage lists the sub-rooms of an arena and its join code.
func serveRoomPage(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		base := ps.ByName("room")
		if !rooms.ValidBase(base) {
			http.Error(w, "invalid room", http.StatusBadRequest)
			return
		}

		root := cfg.prefix + "/arena/" + base

		var body strings.Builder

		body.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
		body.WriteString(getFavicon(cfg))
		body.WriteString(fmt.Sprintf("<title>darts: %s</title>", html.EscapeString(base)))
		body.WriteString(`<style>body{font-family:sans-serif;text-align:center;background:#1b1b1b;color:#e8d9b5}code{color:#fff}</style></head><body>`)
		body.WriteString(fmt.Sprintf("<h1>Arena %s</h1>", html.EscapeString(base)))
		body.WriteString(fmt.Sprintf(`<img src="%s/qr" alt="join code" width="320" height="320">`, root))
		body.WriteString("<p>Display: <code>" + html.EscapeString(rooms.DisplayRoom(base)) + "</code></p>")
		for slot := 1; slot <= lease.Slots; slot++ {
			body.WriteString(fmt.Sprintf("<p>Seat %d: <code>%s</code></p>", slot, html.EscapeString(rooms.PlayerRoom(base, slot))))
		}
		body.WriteString(fmt.Sprintf("<p>Socket: <code>%s/ws</code></p>", root))
		body.WriteString(`</body></html>`)

		writePage(cfg, w, r, errs, body.String())
	}
}

// redirectNewRoom handles GET /arena by generating a new random room id and
// redirecting to /arena/:room.
func redirectNewRoom(cfg *Config, m *HubManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		id := m.newRoomID()
		logf("ROOMS: Assigned new room %s to %s", id, realIP(r))
		http.Redirect(w, r, cfg.prefix+"/arena/"+id, http.StatusTemporaryRedirect)
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: *
Disallow: /arena/

User-agent: GPTBot
Disallow: /

User-agent: CCBot
Disallow: /`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}
