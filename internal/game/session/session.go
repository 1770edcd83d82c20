// Package session implements the per-connection gameplay state machine:
// one Session per connected player, driven by inbound frames and fed by
// bus deliveries, plus the Manager that owns the live session set.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/cory-johannsen/storymode/internal/game/dungeon"
	"github.com/cory-johannsen/storymode/internal/game/player"
	"github.com/cory-johannsen/storymode/internal/game/protocol"
)

// ErrDungeonNotInitialized is returned on connect when no daily dungeon
// exists yet; clients are expected to request the daily endpoint first.
var ErrDungeonNotInitialized = errors.New("daily dungeon not initialized")

// ErrMalformedFrame wraps decode and validation failures of inbound frames.
var ErrMalformedFrame = errors.New("malformed frame")

// DungeonAPI is the read side of the daily dungeon registry.
type DungeonAPI interface {
	Current(ctx context.Context) (dungeon.Dungeon, bool, error)
}

// PlayerStore persists per-player state keyed by (dungeon seed, player id).
type PlayerStore interface {
	Get(ctx context.Context, seed, playerID string) (player.State, bool, error)
	Upsert(ctx context.Context, seed, playerID string, u player.Update) error
	ListAll(ctx context.Context, seed string) ([]player.State, error)
}

// Bus is the channel fan-out a session publishes to and receives from.
type Bus interface {
	Subscribe(ctx context.Context, channel, owner string, deliver func(channel string, payload []byte)) error
	Unsubscribe(ctx context.Context, channel, owner string) error
	Publish(ctx context.Context, channel string, payload any) error
}

// SendFunc pushes one encoded frame toward the session's client. It must
// not block; the transport owns buffering and backpressure.
type SendFunc func(payload []byte)

// Phase is the session lifecycle position.
type Phase int

const (
	// PhaseConnecting means the connect frame was accepted but the private
	// channel subscription is not live yet; gameplay frames are ignored.
	PhaseConnecting Phase = iota
	// PhaseActive means the session accepts gameplay frames and receives
	// bus deliveries.
	PhaseActive
	// PhaseClosed is terminal; all subscriptions are released.
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseActive:
		return "active"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the gameplay state machine for one connected player. All
// frame handling and lifecycle transitions serialize on one mutex, so
// handlers observe a consistent (state, subscription) pair.
type Session struct {
	logger *zap.Logger
	seed   string
	store  PlayerStore
	bus    Bus
	send   SendFunc

	deadCap int
	peerCap int

	// closed mirrors the terminal phase without taking mu; deliver may be
	// invoked synchronously from a publish this session initiated while
	// holding mu.
	closed atomic.Bool

	mu        sync.Mutex
	phase     Phase
	state     player.State
	heldFloor int
}

// frameHandlers is the complete set of gameplay frames an active session
// accepts. Frames with any other type tag are ignored without terminating
// the connection.
var frameHandlers = map[string]func(*Session, context.Context, json.RawMessage) error{
	protocol.TypeFloor:    (*Session).handleFloor,
	protocol.TypeMovement: (*Session).handleMovement,
	protocol.TypeDead:     (*Session).handleDead,
}

// ID returns the player id the session is bound to.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ID
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// State returns a copy of the session's view of its player state.
func (s *Session) State() player.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HandleFrame dispatches one inbound frame. Unknown types and malformed
// payloads are dropped; handler failures are logged and the session stays
// open, the next gameplay event being the retry.
func (s *Session) HandleFrame(ctx context.Context, raw []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.logger.Debug("dropping undecodable frame", zap.Error(err))
		return
	}

	handler, ok := frameHandlers[env.Type]
	if !ok {
		s.logger.Debug("ignoring unknown frame type", zap.String("type", env.Type))
		return
	}

	if err := handler(s, ctx, raw); err != nil {
		if errors.Is(err, ErrMalformedFrame) {
			s.logger.Debug("dropping malformed frame",
				zap.String("type", env.Type),
				zap.Error(err),
			)
			return
		}
		s.logger.Warn("frame handling failed",
			zap.String("type", env.Type),
			zap.Error(err),
		)
	}
}

// handleFloor moves the player to a floor: persist the new position, swap
// the floor subscription, then announce the leave on the old floor, the
// arrival on the new one, and reply privately with an occupancy snapshot.
func (s *Session) handleFloor(ctx context.Context, raw json.RawMessage) error {
	var req protocol.Floor
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseActive {
		return nil
	}

	prev := s.state.Floor
	u := player.Update{
		Floor: player.Ptr(req.Floor),
		X:     player.Ptr(req.X),
		Y:     player.Ptr(req.Y),
	}
	if err := s.store.Upsert(ctx, s.seed, s.state.ID, u); err != nil {
		return err
	}
	u.Apply(&s.state)

	// The old floor's subscription is released before the new one is
	// taken; a broadcast landing in the gap is lost, which is acceptable
	// for presence traffic.
	if prev != player.UnassignedFloor {
		if err := s.bus.Unsubscribe(ctx, protocol.FloorChannel(prev), s.state.ID); err != nil {
			s.logger.Warn("releasing floor channel failed",
				zap.Int("floor", prev),
				zap.Error(err),
			)
		}
	}
	if err := s.bus.Subscribe(ctx, protocol.FloorChannel(req.Floor), s.state.ID, s.deliver); err != nil {
		return fmt.Errorf("subscribing floor channel: %w", err)
	}
	s.heldFloor = req.Floor

	everyone, err := s.store.ListAll(ctx, s.seed)
	if err != nil {
		return err
	}

	if prev != player.UnassignedFloor {
		s.publish(ctx, protocol.FloorChannel(prev), protocol.LeaveNotice{
			Type: protocol.TypeDisconnect,
			ID:   s.state.ID,
		})
	}
	s.publish(ctx, protocol.FloorChannel(req.Floor), protocol.ArrivalNotice{
		Type:       protocol.TypeDisconnect,
		ID:         s.state.ID,
		Name:       s.state.Name,
		Appearance: s.state.Appearance,
		X:          s.state.X,
		Y:          s.state.Y,
	})
	s.publish(ctx, protocol.PrivateChannel(s.state.ID), s.snapshot(everyone, req.Floor))
	return nil
}

// handleMovement persists the new coordinates and broadcasts them to the
// current floor. Movement before any floor frame only updates storage.
func (s *Session) handleMovement(ctx context.Context, raw json.RawMessage) error {
	var req protocol.Movement
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseActive {
		return nil
	}

	u := player.Update{X: player.Ptr(req.X), Y: player.Ptr(req.Y)}
	if err := s.store.Upsert(ctx, s.seed, s.state.ID, u); err != nil {
		return err
	}
	u.Apply(&s.state)

	if s.state.Floor != player.UnassignedFloor {
		s.publish(ctx, protocol.FloorChannel(s.state.Floor), protocol.MovementNotice{
			Type: protocol.TypeMovement,
			ID:   s.state.ID,
			X:    s.state.X,
			Y:    s.state.Y,
		})
	}
	return nil
}

// handleDead records the death with the player's coordinates frozen at
// this moment and broadcasts it to the current floor.
func (s *Session) handleDead(ctx context.Context, raw json.RawMessage) error {
	var req protocol.Dead
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseActive {
		return nil
	}

	u := player.Update{
		DeadTo: player.Ptr(req.DeadTo),
		DeadX:  player.Ptr(s.state.X),
		DeadY:  player.Ptr(s.state.Y),
	}
	if err := s.store.Upsert(ctx, s.seed, s.state.ID, u); err != nil {
		return err
	}
	u.Apply(&s.state)

	if s.state.Floor != player.UnassignedFloor {
		s.publish(ctx, protocol.FloorChannel(s.state.Floor), protocol.DeathNotice{
			Type:   protocol.TypeDead,
			ID:     s.state.ID,
			Name:   s.state.Name,
			DeadTo: s.state.DeadTo,
			X:      s.state.DeadX,
			Y:      s.state.DeadY,
		})
	}
	return nil
}

// snapshot builds the private occupancy reply for a floor: at most deadCap
// corpses at their frozen death coordinates and at most peerCap live
// players, the requester excluded. Both samples are uniform without
// replacement.
func (s *Session) snapshot(everyone []player.State, floor int) protocol.FloorSnapshot {
	var dead []protocol.DeadMarker
	var peers []protocol.Peer
	for _, p := range everyone {
		if p.Floor != floor {
			continue
		}
		if p.Dead() {
			dead = append(dead, protocol.DeadMarker{
				ID:     p.ID,
				Name:   p.Name,
				DeadTo: p.DeadTo,
				X:      p.DeadX,
				Y:      p.DeadY,
			})
			continue
		}
		if p.ID == s.state.ID {
			continue
		}
		peers = append(peers, protocol.Peer{
			ID:         p.ID,
			Name:       p.Name,
			Appearance: p.Appearance,
			X:          p.X,
			Y:          p.Y,
		})
	}
	return protocol.FloorSnapshot{
		Type:    protocol.TypeFloor,
		Dead:    sample(dead, s.deadCap),
		Players: sample(peers, s.peerCap),
	}
}

// deliver is the session's bus handler. The bus already filtered on exact
// channel and differing sender id, so everything arriving here is
// forwarded to the client verbatim.
func (s *Session) deliver(channel string, payload []byte) {
	if s.closed.Load() {
		return
	}
	s.send(payload)
}

// publish sends a frame to a channel, fire-and-forget. Broadcast loss is
// tolerated; persisted state remains the source of truth.
func (s *Session) publish(ctx context.Context, channel string, payload any) {
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.Warn("publish failed",
			zap.String("channel", channel),
			zap.Error(err),
		)
	}
}

// activate moves a connecting session to active.
func (s *Session) activate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseConnecting {
		s.phase = PhaseActive
	}
}

// Close releases the session's channel subscriptions and makes it inert.
// Safe to call more than once and from any goroutine.
//
// Postcondition: The session holds no subscriptions and drops all further
// frames and deliveries.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.phase == PhaseClosed {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseClosed
	s.closed.Store(true)
	id := s.state.ID
	floor := s.heldFloor
	s.heldFloor = player.UnassignedFloor
	s.mu.Unlock()

	if err := s.bus.Unsubscribe(ctx, protocol.PrivateChannel(id), id); err != nil {
		s.logger.Warn("releasing private channel failed", zap.Error(err))
	}
	if floor != player.UnassignedFloor {
		if err := s.bus.Unsubscribe(ctx, protocol.FloorChannel(floor), id); err != nil {
			s.logger.Warn("releasing floor channel failed",
				zap.Int("floor", floor),
				zap.Error(err),
			)
		}
	}
	s.logger.Info("session closed", zap.String("player_id", id))
}
