package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/storymode/internal/game/player"
	"github.com/cory-johannsen/storymode/internal/storage/redis"
	"github.com/cory-johannsen/storymode/internal/testutil"
)

const seed = "123456789"

func TestGetAbsentPlayer(t *testing.T) {
	rc := testutil.StartRedis(t)
	store := redis.NewPlayerStateStore(rc.Client.DB())

	_, ok, err := store.Get(context.Background(), seed, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpsertMergesFields(t *testing.T) {
	rc := testutil.StartRedis(t)
	store := redis.NewPlayerStateStore(rc.Client.DB())
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, seed, "p1", player.Update{
		Name:       player.Ptr("Ada"),
		Appearance: player.Ptr("knight"),
		Floor:      player.Ptr(player.UnassignedFloor),
		X:          player.Ptr(-1),
		Y:          player.Ptr(-1),
	}))

	// A partial update must leave the other fields alone.
	require.NoError(t, store.Upsert(ctx, seed, "p1", player.Update{
		X: player.Ptr(7),
		Y: player.Ptr(8),
	}))

	st, ok, err := store.Get(ctx, seed, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "p1", st.ID)
	assert.Equal(t, "Ada", st.Name)
	assert.Equal(t, "knight", st.Appearance)
	assert.Equal(t, player.UnassignedFloor, st.Floor)
	assert.Equal(t, 7, st.X)
	assert.Equal(t, 8, st.Y)
	assert.False(t, st.Dead())
}

func TestUpsertPreservesDeathState(t *testing.T) {
	rc := testutil.StartRedis(t)
	store := redis.NewPlayerStateStore(rc.Client.DB())
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, seed, "p1", player.Update{
		Floor: player.Ptr(3), X: player.Ptr(5), Y: player.Ptr(6),
	}))
	require.NoError(t, store.Upsert(ctx, seed, "p1", player.Update{
		DeadTo: player.Ptr("a grue"), DeadX: player.Ptr(5), DeadY: player.Ptr(6),
	}))

	// The reconnect write resets placement without touching death fields.
	require.NoError(t, store.Upsert(ctx, seed, "p1", player.Update{
		Name:       player.Ptr("Ada"),
		Appearance: player.Ptr("knight"),
		Floor:      player.Ptr(player.UnassignedFloor),
		X:          player.Ptr(-1),
		Y:          player.Ptr(-1),
	}))

	st, ok, err := store.Get(ctx, seed, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, st.Dead())
	assert.Equal(t, "a grue", st.DeadTo)
	assert.Equal(t, 5, st.DeadX)
	assert.Equal(t, 6, st.DeadY)
	assert.Equal(t, player.UnassignedFloor, st.Floor)
}

func TestListAll(t *testing.T) {
	rc := testutil.StartRedis(t)
	store := redis.NewPlayerStateStore(rc.Client.DB())
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, seed, "p1", player.Update{Floor: player.Ptr(1)}))
	require.NoError(t, store.Upsert(ctx, seed, "p2", player.Update{Floor: player.Ptr(2)}))
	require.NoError(t, store.Upsert(ctx, "other-seed", "p3", player.Update{Floor: player.Ptr(1)}))

	states, err := store.ListAll(ctx, seed)
	require.NoError(t, err)
	require.Len(t, states, 2, "listing is scoped to one dungeon instance")

	byID := make(map[string]player.State, len(states))
	for _, st := range states {
		byID[st.ID] = st
	}
	assert.Equal(t, 1, byID["p1"].Floor)
	assert.Equal(t, 2, byID["p2"].Floor)
}

func TestListAllEmpty(t *testing.T) {
	rc := testutil.StartRedis(t)
	store := redis.NewPlayerStateStore(rc.Client.DB())

	states, err := store.ListAll(context.Background(), seed)
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestPlayerRecordsExpireWithTheDungeon(t *testing.T) {
	rc := testutil.StartRedis(t)
	store := redis.NewPlayerStateStore(rc.Client.DB())
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, seed, "p1", player.Update{Floor: player.Ptr(1)}))

	for _, key := range []string{
		"multiplayer:" + seed + ":player:p1",
		"multiplayer:" + seed + ":players",
	} {
		ttl, err := rc.Client.DB().TTL(ctx, key).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0), "key %s must expire", key)
		assert.LessOrEqual(t, ttl, 24*time.Hour)
	}
}
