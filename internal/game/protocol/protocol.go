// Package protocol defines the wire frames exchanged with clients and the
// pub/sub channel addressing scheme. Outbound frames mirror published
// payloads verbatim: what a session publishes to a channel is exactly what
// subscribed clients receive.
package protocol

import "strconv"

// Frame type tags. Inbound frames carry exactly one of the first four;
// TypeDisconnect is outbound-only and doubles as both the leave and the
// arrival notice (an arrival carries identity fields, a leave does not).
const (
	TypeConnect    = "connect"
	TypeFloor      = "floor"
	TypeMovement   = "movement"
	TypeDead       = "dead"
	TypeDisconnect = "disconnect"
)

// Envelope is the minimal decode of any frame, used for dispatch.
type Envelope struct {
	Type string `json:"type"`
}

// Connect is the first frame a client sends, identifying the player.
type Connect struct {
	Appearance string `json:"appearance"`
	ID         string `json:"id"`
	Name       string `json:"name"`
}

// Floor announces the player entering a floor at a position.
type Floor struct {
	Floor int `json:"floor"`
	X     int `json:"x"`
	Y     int `json:"y"`
}

// Movement announces a position change on the current floor.
type Movement struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Dead announces the player's death and its cause.
type Dead struct {
	DeadTo string `json:"dead_to"`
}

// LeaveNotice tells a floor's occupants that a player left it.
type LeaveNotice struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// ArrivalNotice tells a floor's occupants that a player arrived. Same wire
// type as LeaveNotice; the identity fields distinguish the two.
type ArrivalNotice struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Name       string `json:"name"`
	Appearance string `json:"appearance"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
}

// MovementNotice broadcasts a position change to the floor.
type MovementNotice struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

// DeathNotice broadcasts a death to the floor.
type DeathNotice struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Name   string `json:"name"`
	DeadTo string `json:"dead_to"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

// DeadMarker is one corpse entry in a floor snapshot, at the victim's
// frozen death coordinates.
type DeadMarker struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	DeadTo string `json:"dead_to"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

// Peer is one live player entry in a floor snapshot.
type Peer struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Appearance string `json:"appearance"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
}

// FloorSnapshot is the private occupancy reply to a floor change. It
// deliberately carries no top-level sender id so the publishing session's
// own self-filter does not discard it.
type FloorSnapshot struct {
	Type    string       `json:"type"`
	Dead    []DeadMarker `json:"dead"`
	Players []Peer       `json:"players"`
}

// PrivateChannel is the point-to-point channel for one player's session.
func PrivateChannel(playerID string) string {
	return "private:" + playerID
}

// FloorChannel is the broadcast channel shared by a floor's occupants.
func FloorChannel(floor int) string {
	return "floor:" + strconv.Itoa(floor)
}
