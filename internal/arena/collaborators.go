/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package arena

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// SessionChecker decides whether a connecting client holds a valid
// session token. Token issuance lives outside this server.
type SessionChecker interface {
	Valid(token string) bool
}

// NameValidator vets display names. Profanity filtering lives outside this
// server; reason is shown to the player when ok is false.
type NameValidator interface {
	Validate(name string) (ok bool, reason string)
}

// Recorder receives final scores for the leaderboard.
type Recorder interface {
	RecordFinish(name string, score int)
}

// Seats is the lease side of seating. *lease.Allocator satisfies it.
type Seats interface {
	Refresh(room string, slot int)
	Release(room string, slot int)
	Clear(room string)
}

// AllowAll accepts every session.
type AllowAll struct{}

func (AllowAll) Valid(string) bool { return true }

// MaxNameLength is the longest display name BasicNames accepts, in runes.
const MaxNameLength = 20

// BasicNames accepts non-empty printable names up to MaxNameLength runes.
type BasicNames struct{}

func (BasicNames) Validate(name string) (bool, string) {
	name = strings.TrimSpace(name)

	switch {
	case name == "":
		return false, "name is required"
	case utf8.RuneCountInString(name) > MaxNameLength:
		return false, fmt.Sprintf("name must be at most %d characters", MaxNameLength)
	}

	for _, r := range name {
		if !unicode.IsPrint(r) {
			return false, "name contains unsupported characters"
		}
	}

	return true, ""
}

// LogRecorder writes finishes to the log.
type LogRecorder struct{}

func (LogRecorder) RecordFinish(name string, score int) {
	log.Info().Str("player", name).Int("score", score).Msg("player finished")
}

// Finish is the message NATSRecorder publishes.
type Finish struct {
	Room       string    `json:"room"`
	Name       string    `json:"name"`
	Score      int       `json:"score"`
	FinishedAt time.Time `json:"finished_at"`
}

// NATSRecorder publishes finishes to a NATS subject for an external
// leaderboard service.
type NATSRecorder struct {
	nc      *nats.Conn
	subject string
	room    string
}

// DialNATS connects to url with reconnects enabled.
func DialNATS(url string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("darts"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return nc, nil
}

// NewNATSRecorder publishes to subject.<room>.
func NewNATSRecorder(nc *nats.Conn, subject, room string) *NATSRecorder {
	return &NATSRecorder{nc: nc, subject: subject, room: room}
}

func (r *NATSRecorder) RecordFinish(name string, score int) {
	data, err := json.Marshal(Finish{
		Room:       r.room,
		Name:       name,
		Score:      score,
		FinishedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Error().Err(err).Msg("encoding finish failed")
		return
	}

	if err := r.nc.Publish(r.subject+"."+r.room, data); err != nil {
		log.Error().Err(err).Str("room", r.room).Str("player", name).Msg("publishing finish failed")
	}
}
