/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/Seednode/darts/internal/arena"
	"github.com/Seednode/darts/internal/lease"
	"github.com/Seednode/darts/internal/queue"
)

const (
	logDate string        = `2006-01-02T15:04:05.000-07:00`
	timeout time.Duration = 10 * time.Second
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func serveVersion(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("darts v" + releaseVersion + "\n"))
		if err != nil {
			errs <- err

			return
		}

		logf("SERVE: Version page (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func newLeaseStore(cfg *Config) (lease.Store, error) {
	if cfg.leaseDir == "" {
		return lease.NewMemoryStore(), nil
	}

	store, err := lease.NewFileStore(cfg.leaseDir)
	if err != nil {
		return nil, fmt.Errorf("open lease store: %w", err)
	}

	log.Info().Str("dir", cfg.leaseDir).Msg("persisting seat leases")

	return store, nil
}

// newRecorders picks where finished scores go. The returned cleanup drains
// the NATS connection, if any.
func newRecorders(cfg *Config) (func(room string) arena.Recorder, func(), error) {
	if cfg.natsURL == "" {
		return func(string) arena.Recorder { return arena.LogRecorder{} }, func() {}, nil
	}

	nc, err := arena.DialNATS(cfg.natsURL)
	if err != nil {
		return nil, nil, err
	}

	log.Info().Str("url", nc.ConnectedUrl()).Str("subject", cfg.natsSubject).Msg("publishing finished scores to NATS")

	recorder := func(room string) arena.Recorder {
		return arena.NewNATSRecorder(nc, cfg.natsSubject, room)
	}

	return recorder, func() { _ = nc.Drain() }, nil
}

// registerArena sets up routes so that:
//   - $prefix/arena              → redirects to a new random room
//   - $prefix/arena/:room        → landing page with the join code
//   - $prefix/arena/:room/ws     → websocket for that room
//   - $prefix/arena/:room/qr     → PNG QR code for the room URL
//   - $prefix/arena/:room/log    → server-sent activity log
//   - $prefix/arena/:room/queue  → server-sent queue snapshots
//   - $prefix/arena/:room/state  → JSON snapshot
func registerArena(cfg *Config, mux *httprouter.Router, m *HubManager, q *queue.Manager, errs chan<- error) {
	path := cfg.prefix + "/arena"

	mux.GET(path, redirectNewRoom(cfg, m))
	mux.GET(path+"/:room", serveRoomPage(cfg, errs))
	mux.GET(path+"/:room/ws", serveWS(cfg, m, arena.AllowAll{}))
	mux.GET(path+"/:room/qr", serveQR(cfg, errs))
	mux.GET(path+"/:room/log", serveActivity(m))
	mux.GET(path+"/:room/queue", serveQueueFeed(q))
	mux.GET(path+"/:room/state", serveState(cfg, m, errs))
}

func newRouter(cfg *Config, m *HubManager, q *queue.Manager, errs chan<- error) *httprouter.Router {
	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		log.Error().Interface("panic", i).Str("path", r.URL.Path).Msg("handler panicked")

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		_, _ = io.WriteString(w, newPage(cfg, "Server Error", "An error has occurred. Please try again."))
	}

	mux.GET(cfg.prefix+"/", serveHomePage(cfg, errs))
	mux.GET(cfg.prefix+"/favicon.svg", serveFavicons(cfg, errs))
	mux.GET(cfg.prefix+"/favicons/*favicon", serveFavicons(cfg, errs))
	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, errs))
	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg, errs))
	mux.GET(cfg.prefix+"/version", serveVersion(cfg, errs))

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	registerArena(cfg, mux, m, q, errs)

	return mux
}

func ServePage(ctx context.Context, cfg *Config, args []string) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	log.Info().Str("version", releaseVersion).Msg("starting darts")

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	clock := clockwork.NewRealClock()

	store, err := newLeaseStore(cfg)
	if err != nil {
		return err
	}
	seats := lease.New(store, clock, cfg.leaseTTL)
	q := queue.New(seats, clock, nil)

	recorders, closeRecorders, err := newRecorders(cfg)
	if err != nil {
		return err
	}
	defer closeRecorders()

	m := newHubManager(hubDeps{
		cfg:      cfg,
		clock:    clock,
		queue:    q,
		seats:    seats,
		names:    arena.BasicNames{},
		recorder: recorders,
	}, cfg.sessionTimeout)
	defer m.closeAll()

	go m.reaperLoop(ctx)

	errs := make(chan error, 64)
	go func() {
		for err := range errs {
			log.Debug().Err(err).Msg("write failed")
		}
	}()

	mux := newRouter(cfg, m, q, errs)

	var handler http.Handler = cors.New(cors.Options{
		AllowedOrigins: cfg.corsOrigins,
		AllowedMethods: []string{http.MethodHead, http.MethodGet},
		AllowedHeaders: []string{"*"},
	}).Handler(mux)

	if cfg.scheme() == "http" {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           handler,
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	failed := make(chan error, 1)

	go func() {
		var err error

		log.Info().Str("url", fmt.Sprintf("%s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)).Msg("listening")

		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-failed:
		return fmt.Errorf("serve: %w", err)
	}

	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	return nil
}
