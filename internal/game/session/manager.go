package session

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/storymode/internal/config"
	"github.com/cory-johannsen/storymode/internal/game/player"
	"github.com/cory-johannsen/storymode/internal/game/protocol"
)

// Manager owns the live session set for the process. At most one session
// exists per player id; a new connect for an id already in play evicts
// the prior session (last connect wins).
type Manager struct {
	logger   *zap.Logger
	dungeons DungeonAPI
	store    PlayerStore
	bus      Bus
	cfg      config.GameConfig

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a Manager.
//
// Precondition: all collaborators must be non-nil and cfg validated.
func NewManager(dungeons DungeonAPI, store PlayerStore, bus Bus, cfg config.GameConfig, logger *zap.Logger) *Manager {
	return &Manager{
		logger:   logger,
		dungeons: dungeons,
		store:    store,
		bus:      bus,
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Connect admits a player into the day's dungeon: load or create their
// persisted state, reset placement to unassigned, evict any prior session
// for the id, and subscribe the new session's private channel.
//
// Postcondition: On success the returned session is Active and is the
// only live session for the player id. Returns ErrDungeonNotInitialized
// when no daily dungeon exists.
func (m *Manager) Connect(ctx context.Context, req protocol.Connect, send SendFunc) (*Session, error) {
	if req.ID == "" {
		return nil, fmt.Errorf("%w: connect frame missing player id", ErrMalformedFrame)
	}

	d, ok, err := m.dungeons.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("looking up daily dungeon: %w", err)
	}
	if !ok {
		return nil, ErrDungeonNotInitialized
	}

	st, found, err := m.store.Get(ctx, d.Seed, req.ID)
	if err != nil {
		return nil, fmt.Errorf("loading player state: %w", err)
	}
	if !found {
		st = player.State{ID: req.ID, Floor: player.UnassignedFloor, X: -1, Y: -1}
	}

	// Identity refreshes on every connect; placement resets so a
	// reconnecting player re-enters via a floor frame. Death state, if
	// any, persists.
	u := player.Update{
		Name:       player.Ptr(req.Name),
		Appearance: player.Ptr(req.Appearance),
		Floor:      player.Ptr(player.UnassignedFloor),
		X:          player.Ptr(-1),
		Y:          player.Ptr(-1),
	}
	if err := m.store.Upsert(ctx, d.Seed, req.ID, u); err != nil {
		return nil, fmt.Errorf("initializing player state: %w", err)
	}
	u.Apply(&st)

	s := &Session{
		logger:    m.logger.With(zap.String("player_id", req.ID)),
		seed:      d.Seed,
		store:     m.store,
		bus:       m.bus,
		send:      send,
		deadCap:   m.cfg.DeadSampleSize,
		peerCap:   m.cfg.PeerSampleSize,
		phase:     PhaseConnecting,
		state:     st,
		heldFloor: player.UnassignedFloor,
	}

	m.mu.Lock()
	prev := m.sessions[req.ID]
	m.sessions[req.ID] = s
	m.mu.Unlock()

	// The evicted session must release its subscriptions before the new
	// one takes the shared private channel; both are keyed by the same
	// (owner, channel) pair.
	if prev != nil {
		m.logger.Info("evicting prior session", zap.String("player_id", req.ID))
		prev.Close(ctx)
	}

	if err := m.bus.Subscribe(ctx, protocol.PrivateChannel(req.ID), req.ID, s.deliver); err != nil {
		m.remove(s)
		return nil, fmt.Errorf("subscribing private channel: %w", err)
	}
	s.activate()

	m.logger.Info("player connected",
		zap.String("player_id", req.ID),
		zap.String("seed", d.Seed),
	)
	return s, nil
}

// Release closes the session and removes it from the live set, unless it
// was already evicted by a newer connect.
func (m *Manager) Release(ctx context.Context, s *Session) {
	s.Close(ctx)
	m.remove(s)
}

// remove deletes the session from the live set only if it is still the
// current session for its id.
func (m *Manager) remove(s *Session) {
	id := s.ID()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[id] == s {
		delete(m.sessions, id)
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
