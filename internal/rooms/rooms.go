/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package rooms parses and builds the sub-room names used on the event
// channel: game-<base>-player1, game-<base>-player2 and game-<base>-display.
package rooms

import (
	"fmt"
	"regexp"
	"strconv"
)

// Role is what a sub-room is used for.
type Role int

const (
	Unknown Role = iota
	Player
	Display
)

var (
	playerRoom  = regexp.MustCompile(`^game-([^-]+)-player([12])$`)
	displayRoom = regexp.MustCompile(`^game-([^-]+)-display$`)
	baseName    = regexp.MustCompile(`^[^-]+$`)
)

// Name is a parsed sub-room name.
type Name struct {
	Base string
	Role Role
	Slot int
}

func (r Role) String() string {
	switch r {
	case Player:
		return "player"
	case Display:
		return "display"
	}
	return "unknown"
}

// Parse splits a sub-room name. Names matching neither pattern return a
// Name with Role Unknown and ok false.
func Parse(room string) (Name, bool) {
	if m := playerRoom.FindStringSubmatch(room); m != nil {
		slot, _ := strconv.Atoi(m[2])
		return Name{Base: m[1], Role: Player, Slot: slot}, true
	}
	if m := displayRoom.FindStringSubmatch(room); m != nil {
		return Name{Base: m[1], Role: Display}, true
	}
	return Name{}, false
}

// ValidBase reports whether base can be embedded in a sub-room name.
func ValidBase(base string) bool {
	return baseName.MatchString(base)
}

// PlayerRoom returns the sub-room name for a seat.
func PlayerRoom(base string, slot int) string {
	return fmt.Sprintf("game-%s-player%d", base, slot)
}

// DisplayRoom returns the display observation sub-room name.
func DisplayRoom(base string) string {
	return fmt.Sprintf("game-%s-display", base)
}

// BaseOf returns the base for either a sub-room name or a bare base.
func BaseOf(room string) (string, bool) {
	if n, ok := Parse(room); ok {
		return n.Base, true
	}
	if ValidBase(room) {
		return room, true
	}
	return "", false
}
