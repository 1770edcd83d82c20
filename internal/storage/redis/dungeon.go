package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cory-johannsen/storymode/internal/game/dungeon"
)

// keyDaily holds the serialized triple for the current day's dungeon.
const keyDaily = "daily_dungeon"

// reservationKey is the multiplayer-namespace reservation flag for a seed.
func reservationKey(seed string) string {
	return "multiplayer:" + seed
}

// DungeonRegistry reserves and returns the day's dungeon descriptor with
// exactly-once-per-day semantics. Creation is an atomic create-if-absent;
// concurrent first callers converge on one winning triple.
type DungeonRegistry struct {
	db  *goredis.Client
	now func() time.Time
}

// NewDungeonRegistry creates a DungeonRegistry backed by the given client.
//
// Precondition: db must be a valid, open client.
func NewDungeonRegistry(db *goredis.Client) *DungeonRegistry {
	return &DungeonRegistry{db: db, now: time.Now}
}

// Current returns the day's dungeon if one has been initialized.
//
// Postcondition: ok is false when no daily dungeon exists; Current never
// creates one.
func (r *DungeonRegistry) Current(ctx context.Context) (dungeon.Dungeon, bool, error) {
	raw, err := r.db.Get(ctx, keyDaily).Result()
	if err == goredis.Nil {
		return dungeon.Dungeon{}, false, nil
	}
	if err != nil {
		return dungeon.Dungeon{}, false, storeErr("reading daily dungeon", err)
	}

	var d dungeon.Dungeon
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return dungeon.Dungeon{}, false, fmt.Errorf("decoding daily dungeon record: %w", err)
	}
	return d, true, nil
}

// GetOrCreateDaily returns the current day's dungeon, lazily generating
// and reserving one when none exists. The multiplayer namespace for the
// candidate seed is reserved with a create-if-not-exists write before the
// daily record itself is written the same way; a caller that loses the
// daily race re-reads and returns the winner's triple, and its stray
// reservation expires unobserved at midnight.
//
// Postcondition: All callers within one calendar day receive an identical
// (seed, type, difficulty) triple, or an error wrapping ErrUnavailable.
func (r *DungeonRegistry) GetOrCreateDaily(ctx context.Context) (dungeon.Dungeon, error) {
	if d, ok, err := r.Current(ctx); err != nil {
		return dungeon.Dungeon{}, err
	} else if ok {
		return d, nil
	}

	now := r.now()
	d, err := dungeon.NewDaily(now)
	if err != nil {
		return dungeon.Dungeon{}, err
	}
	ttl := d.TTL(now)

	reserved, err := r.db.SetNX(ctx, reservationKey(d.Seed), "1", ttl).Result()
	if err != nil {
		return dungeon.Dungeon{}, storeErr("reserving multiplayer namespace", err)
	}
	if !reserved {
		// A 63-bit seed collision; do not proceed without a reservation.
		return dungeon.Dungeon{}, fmt.Errorf("multiplayer namespace for seed %s already reserved", d.Seed)
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return dungeon.Dungeon{}, fmt.Errorf("encoding daily dungeon record: %w", err)
	}

	won, err := r.db.SetNX(ctx, keyDaily, payload, ttl).Result()
	if err != nil {
		return dungeon.Dungeon{}, storeErr("writing daily dungeon", err)
	}
	if !won {
		// Lost the creation race; converge on the winner's triple.
		winner, ok, err := r.Current(ctx)
		if err != nil {
			return dungeon.Dungeon{}, err
		}
		if !ok {
			return dungeon.Dungeon{}, fmt.Errorf("daily dungeon vanished during creation race")
		}
		return winner, nil
	}

	return d, nil
}
