// Package player defines the per-player dungeon state and the partial
// update applied by field-merging upserts.
package player

import (
	"fmt"
	"strconv"
)

// UnassignedFloor is the sentinel floor for a player that has not yet
// entered the dungeon (or has just reconnected).
const UnassignedFloor = -1

// Hash field names for the persisted player record.
const (
	FieldID         = "id"
	FieldName       = "name"
	FieldAppearance = "appearance"
	FieldFloor      = "floor"
	FieldX          = "x"
	FieldY          = "y"
	FieldDeadTo     = "dead_to"
	FieldDeadX      = "dead_x"
	FieldDeadY      = "dead_y"
)

// State is the persisted representation of one player inside a dungeon
// instance. It is keyed by (dungeon seed, player id) and survives
// reconnects until the dungeon expires.
type State struct {
	// ID is the client-chosen unique player identifier.
	ID string `json:"id"`
	// Name is the player display name.
	Name string `json:"name"`
	// Appearance is an opaque sprite descriptor interpreted by clients.
	Appearance string `json:"appearance"`
	// Floor is the current floor, or UnassignedFloor.
	Floor int `json:"floor"`
	// X, Y are grid coordinates on the current floor.
	X int `json:"x"`
	Y int `json:"y"`
	// DeadTo names the killer when the player has died; empty means alive.
	DeadTo string `json:"dead_to,omitempty"`
	// DeadX, DeadY are the coordinates frozen at the moment of death.
	// Valid only when DeadTo is set.
	DeadX int `json:"dead_x,omitempty"`
	DeadY int `json:"dead_y,omitempty"`
}

// Dead reports whether the player has died in this dungeon.
func (s State) Dead() bool { return s.DeadTo != "" }

// Update is a partial state write. Only non-nil fields are applied; the
// stored record's other fields are untouched.
type Update struct {
	Name       *string
	Appearance *string
	Floor      *int
	X          *int
	Y          *int
	DeadTo     *string
	DeadX      *int
	DeadY      *int
}

// Ptr returns a pointer to v, for building Updates inline.
func Ptr[T any](v T) *T { return &v }

// Fields returns the hash field map for the set fields of the update.
//
// Postcondition: The map contains exactly one entry per non-nil field.
func (u Update) Fields() map[string]any {
	fields := make(map[string]any)
	if u.Name != nil {
		fields[FieldName] = *u.Name
	}
	if u.Appearance != nil {
		fields[FieldAppearance] = *u.Appearance
	}
	if u.Floor != nil {
		fields[FieldFloor] = *u.Floor
	}
	if u.X != nil {
		fields[FieldX] = *u.X
	}
	if u.Y != nil {
		fields[FieldY] = *u.Y
	}
	if u.DeadTo != nil {
		fields[FieldDeadTo] = *u.DeadTo
	}
	if u.DeadX != nil {
		fields[FieldDeadX] = *u.DeadX
	}
	if u.DeadY != nil {
		fields[FieldDeadY] = *u.DeadY
	}
	return fields
}

// Apply merges the update into s, mirroring the store's field-merge
// semantics for in-memory snapshots and test fakes.
func (u Update) Apply(s *State) {
	if u.Name != nil {
		s.Name = *u.Name
	}
	if u.Appearance != nil {
		s.Appearance = *u.Appearance
	}
	if u.Floor != nil {
		s.Floor = *u.Floor
	}
	if u.X != nil {
		s.X = *u.X
	}
	if u.Y != nil {
		s.Y = *u.Y
	}
	if u.DeadTo != nil {
		s.DeadTo = *u.DeadTo
	}
	if u.DeadX != nil {
		s.DeadX = *u.DeadX
	}
	if u.DeadY != nil {
		s.DeadY = *u.DeadY
	}
}

// FromFields reconstructs a State from a stored hash field map.
//
// Precondition: numeric fields, when present, must hold decimal integers.
func FromFields(fields map[string]string) (State, error) {
	s := State{
		ID:         fields[FieldID],
		Name:       fields[FieldName],
		Appearance: fields[FieldAppearance],
		DeadTo:     fields[FieldDeadTo],
	}

	var err error
	if s.Floor, err = intField(fields, FieldFloor); err != nil {
		return State{}, err
	}
	if s.X, err = intField(fields, FieldX); err != nil {
		return State{}, err
	}
	if s.Y, err = intField(fields, FieldY); err != nil {
		return State{}, err
	}
	if s.DeadX, err = intField(fields, FieldDeadX); err != nil {
		return State{}, err
	}
	if s.DeadY, err = intField(fields, FieldDeadY); err != nil {
		return State{}, err
	}
	return s, nil
}

func intField(fields map[string]string, name string) (int, error) {
	raw, ok := fields[name]
	if !ok {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing player field %s=%q: %w", name, raw, err)
	}
	return v, nil
}
