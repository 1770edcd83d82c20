package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cory-johannsen/storymode/internal/game/dungeon"
	"github.com/cory-johannsen/storymode/internal/game/player"
)

// MemoryStore is an in-memory player state store with the same field-merge
// upsert semantics as the Redis-backed store. Safe for concurrent use.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]map[string]player.State

	// Err, when set, is returned by every operation.
	Err error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]map[string]player.State)}
}

// Get fetches one player's state.
func (m *MemoryStore) Get(_ context.Context, seed, playerID string) (player.State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return player.State{}, false, m.Err
	}
	st, ok := m.states[seed][playerID]
	return st, ok, nil
}

// Upsert merges the update's set fields into the stored record.
func (m *MemoryStore) Upsert(_ context.Context, seed, playerID string, u player.Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if m.states[seed] == nil {
		m.states[seed] = make(map[string]player.State)
	}
	st, ok := m.states[seed][playerID]
	if !ok {
		st = player.State{ID: playerID}
	}
	u.Apply(&st)
	m.states[seed][playerID] = st
	return nil
}

// ListAll returns every player state stored for the seed.
func (m *MemoryStore) ListAll(_ context.Context, seed string) ([]player.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	states := make([]player.State, 0, len(m.states[seed]))
	for _, st := range m.states[seed] {
		states = append(states, st)
	}
	return states, nil
}

// Put stores a state directly, bypassing merge semantics.
func (m *MemoryStore) Put(seed string, st player.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.states[seed] == nil {
		m.states[seed] = make(map[string]player.State)
	}
	m.states[seed][st.ID] = st
}

// MemoryBus is an in-process channel bus with the same subscription and
// delivery-filter semantics as the Redis-backed bus: exact channel match,
// sender id must differ from the subscriber's owner id, and at most one
// subscription per (owner, channel) pair. Publishes dispatch synchronously.
type MemoryBus struct {
	mu        sync.Mutex
	subs      map[string]map[string]func(channel string, payload []byte)
	published map[string][][]byte

	// Err, when set, is returned by every operation.
	Err error
}

// NewMemoryBus creates an empty MemoryBus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs:      make(map[string]map[string]func(channel string, payload []byte)),
		published: make(map[string][][]byte),
	}
}

// Subscribe registers deliver under (channel, owner); re-subscribing a
// held pair is a no-op.
func (b *MemoryBus) Subscribe(_ context.Context, channel, owner string, deliver func(channel string, payload []byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return b.Err
	}
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[string]func(channel string, payload []byte))
	}
	if _, held := b.subs[channel][owner]; !held {
		b.subs[channel][owner] = deliver
	}
	return nil
}

// Unsubscribe drops the (channel, owner) registration; unheld pairs are a
// no-op.
func (b *MemoryBus) Unsubscribe(_ context.Context, channel, owner string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return b.Err
	}
	delete(b.subs[channel], owner)
	return nil
}

// Publish records the message and delivers it synchronously to every
// subscriber of the channel whose owner id differs from the payload's
// embedded sender id.
func (b *MemoryBus) Publish(_ context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.mu.Lock()
	if b.Err != nil {
		b.mu.Unlock()
		return b.Err
	}
	b.published[channel] = append(b.published[channel], data)

	var sender struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(data, &sender)

	targets := make([]func(channel string, payload []byte), 0, len(b.subs[channel]))
	for owner, deliver := range b.subs[channel] {
		if sender.ID != "" && sender.ID == owner {
			continue
		}
		targets = append(targets, deliver)
	}
	b.mu.Unlock()

	for _, deliver := range targets {
		deliver(channel, data)
	}
	return nil
}

// Held reports whether (channel, owner) is currently subscribed.
func (b *MemoryBus) Held(channel, owner string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.subs[channel][owner]
	return ok
}

// Published returns the raw payloads published to a channel, in order.
func (b *MemoryBus) Published(channel string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.published[channel]))
	copy(out, b.published[channel])
	return out
}

// MemoryRegistry is an in-memory daily dungeon registry.
type MemoryRegistry struct {
	mu sync.Mutex
	d  dungeon.Dungeon
	ok bool

	// Err, when set, is returned by every operation.
	Err error
}

// NewMemoryRegistry creates a registry with no daily dungeon.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{}
}

// Set installs the daily dungeon.
func (r *MemoryRegistry) Set(d dungeon.Dungeon) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.d, r.ok = d, true
}

// Current returns the daily dungeon if one is installed.
func (r *MemoryRegistry) Current(_ context.Context) (dungeon.Dungeon, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return dungeon.Dungeon{}, false, r.Err
	}
	return r.d, r.ok, nil
}

// GetOrCreateDaily returns the installed dungeon, generating one when
// absent.
func (r *MemoryRegistry) GetOrCreateDaily(_ context.Context) (dungeon.Dungeon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return dungeon.Dungeon{}, r.Err
	}
	if !r.ok {
		d, err := dungeon.NewDaily(time.Now())
		if err != nil {
			return dungeon.Dungeon{}, err
		}
		r.d, r.ok = d, true
	}
	return r.d, nil
}
