/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package arena

import "github.com/Seednode/darts/internal/scoring"

// Rejection reasons sent with player-rejected.
const (
	ReasonRoomFull = "room-full"
	ReasonSoloMode = "solo-mode"
	ReasonBadName  = "invalid-name"
)

// Audience selects who receives an outbound message.
type Audience int

const (
	Sender Audience = iota
	Displays
	Everyone
)

// Event is an outbound message and its audience. ConnID names the
// recipient when To is Sender.
type Event struct {
	To     Audience
	ConnID string
	Msg    any
}

// Emitter delivers outbound events.
type Emitter interface {
	Emit(Event)
}

// Messages coming from clients. Fields not used by a type are left empty.
type ClientMessage struct {
	Type     string       `json:"type"`               // see Inbound* constants
	Room     string       `json:"room,omitempty"`     // all
	Name     string       `json:"name,omitempty"`     // join-queue, joinRoom, aim-*, throw-dart
	PlayerID string       `json:"playerId,omitempty"` // joinRoom, aim-*, throw-dart
	SocketID string       `json:"socketId,omitempty"` // aim-*
	Skin     string       `json:"skin,omitempty"`     // aim-update
	Aim      *scoring.Aim `json:"aim,omitempty"`      // aim-update, throw-dart
	Player   string       `json:"player,omitempty"`   // solo-mode-started
}

const (
	InboundJoinQueue  = "join-queue"
	InboundLeaveQueue = "leave-queue"
	InboundJoinRoom   = "joinRoom"
	InboundAimUpdate  = "aim-update"
	InboundAimOff     = "aim-off"
	InboundThrow      = "throw-dart"
	InboundSolo       = "solo-mode-started"
)

// StatusQueueMessage reports the queue to each waiting client.
type StatusQueueMessage struct {
	Type     string   `json:"type"` // "status-queue"
	Room     string   `json:"room"`
	Queue    []string `json:"queue"`
	Position int      `json:"position"`
	Slot     int      `json:"slot"`
}

// QueueAdmittedMessage tells a client which seat it was promoted into.
type QueueAdmittedMessage struct {
	Type       string `json:"type"` // "queue-admitted"
	Room       string `json:"room"`
	Slot       int    `json:"slot"`
	PlayerRoom string `json:"playerRoom"`
}

type ClientInfoMessage struct {
	Type     string `json:"type"` // "clientInfo"
	SocketID string `json:"socketId"`
	Name     string `json:"name"`
	Room     string `json:"room,omitempty"`
}

type PlayerCountMessage struct {
	Type        string `json:"type"` // "joinedRoom" or "roomPlayerCount"
	Room        string `json:"room"`
	PlayerCount int    `json:"playerCount"`
}

type AimMessage struct {
	Type     string       `json:"type"` // "aim-update" or "aim-off"
	Room     string       `json:"room"`
	PlayerID string       `json:"playerId"`
	Name     string       `json:"name,omitempty"`
	Skin     string       `json:"skin,omitempty"`
	Aim      *scoring.Aim `json:"aim,omitempty"`
}

type DartThrownMessage struct {
	Type  string      `json:"type"` // "dart-thrown"
	Room  string      `json:"room"`
	Name  string      `json:"name"`
	Aim   scoring.Aim `json:"aim"`
	Score int         `json:"score"`
	Zone  string      `json:"zone"`
}

type SoloStartedMessage struct {
	Type   string `json:"type"` // "solo-mode-started"
	Room   string `json:"room"`
	Player string `json:"player"`
}

type TurnMessage struct {
	Type        string `json:"type"` // "turn-update"
	Room        string `json:"room"`
	CurrentTurn string `json:"currentTurn"`
	Name        string `json:"name,omitempty"`
}

type CountdownMessage struct {
	Type  string `json:"type"` // "countdown" or "countdown-cancelled"
	Room  string `json:"room"`
	Value int    `json:"value"`
}

type RejectedMessage struct {
	Type   string `json:"type"` // "player-rejected"
	Room   string `json:"room"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type ReadyMessage struct {
	Type string `json:"type"` // "player-ready"
	Room string `json:"room"`
	Name string `json:"name"`
}

type NotYourTurnMessage struct {
	Type string `json:"type"` // "not-your-turn"
	Room string `json:"room"`
	Name string `json:"name"`
}

// Standing is one row of the scoreboard.
type Standing struct {
	Name        string `json:"name"`
	Score       int    `json:"score"`
	TotalThrows int    `json:"totalThrows"`
	Connected   bool   `json:"connected"`
	Finished    bool   `json:"finished"`
}

type StandingsMessage struct {
	Type    string     `json:"type"` // "standings" or "match-over"
	Room    string     `json:"room"`
	Players []Standing `json:"players"`
}

type ResetMessage struct {
	Type   string `json:"type"` // "room-reset"
	Room   string `json:"room"`
	Reason string `json:"reason"`
}
