package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cory-johannsen/storymode/internal/game/dungeon"
	"github.com/cory-johannsen/storymode/internal/game/player"
)

// playerKey is the hash holding one player's state inside a dungeon.
func playerKey(seed, playerID string) string {
	return "multiplayer:" + seed + ":player:" + playerID
}

// indexKey is the set of player ids known to a dungeon instance.
func indexKey(seed string) string {
	return "multiplayer:" + seed + ":players"
}

// PlayerStateStore persists per-player state keyed by (dungeon seed,
// player id). Each player is one Redis hash, so a partial upsert is a
// single HSET of the provided fields: atomic for its own fields with no
// cross-call transaction guarantee. Records expire with the dungeon at
// the next local midnight.
type PlayerStateStore struct {
	db  *goredis.Client
	now func() time.Time
}

// NewPlayerStateStore creates a PlayerStateStore backed by the given client.
//
// Precondition: db must be a valid, open client.
func NewPlayerStateStore(db *goredis.Client) *PlayerStateStore {
	return &PlayerStateStore{db: db, now: time.Now}
}

// Get fetches one player's state.
//
// Postcondition: ok is false when no record exists for the id.
func (s *PlayerStateStore) Get(ctx context.Context, seed, playerID string) (player.State, bool, error) {
	fields, err := s.db.HGetAll(ctx, playerKey(seed, playerID)).Result()
	if err != nil {
		return player.State{}, false, storeErr("reading player state", err)
	}
	if len(fields) == 0 {
		return player.State{}, false, nil
	}

	st, err := player.FromFields(fields)
	if err != nil {
		return player.State{}, false, err
	}
	return st, true, nil
}

// Upsert merges the update's fields into the stored record, leaving absent
// fields untouched, and refreshes the record's expiry to the next local
// midnight.
//
// Postcondition: Exactly the update's set fields (plus the id) are written.
func (s *PlayerStateStore) Upsert(ctx context.Context, seed, playerID string, u player.Update) error {
	fields := u.Fields()
	fields[player.FieldID] = playerID

	expiresAt := dungeon.NextMidnight(s.now())
	key := playerKey(seed, playerID)
	index := indexKey(seed)

	pipe := s.db.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.ExpireAt(ctx, key, expiresAt)
	pipe.SAdd(ctx, index, playerID)
	pipe.ExpireAt(ctx, index, expiresAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("upserting player state", err)
	}
	return nil
}

// ListAll returns the state of every player known to the dungeon instance.
// The listing may lag concurrent upserts from other sessions; it is used
// for floor-occupancy snapshots, not authoritative reads.
func (s *PlayerStateStore) ListAll(ctx context.Context, seed string) ([]player.State, error) {
	ids, err := s.db.SMembers(ctx, indexKey(seed)).Result()
	if err != nil {
		return nil, storeErr("listing player ids", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.db.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, playerKey(seed, id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, storeErr("reading player states", err)
	}

	states := make([]player.State, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// Index member whose hash already expired.
			continue
		}
		st, err := player.FromFields(fields)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, nil
}
