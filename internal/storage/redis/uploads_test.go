package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/storymode/internal/storage/redis"
	"github.com/cory-johannsen/storymode/internal/testutil"
)

func newUpload(expiration time.Time) redis.Upload {
	return redis.Upload{
		ID:         uuid.NewString(),
		Seed:       987654321,
		Filename:   "castle.png",
		Extension:  "png",
		Filesize:   2048,
		Uploader:   "Ada",
		Expiration: expiration.UnixMilli(),
	}
}

func TestUploadAddAndList(t *testing.T) {
	rc := testutil.StartRedis(t)
	store := redis.NewUploadStore(rc.Client.DB())
	ctx := context.Background()
	now := time.Now()

	u := newUpload(now.Add(time.Hour))
	require.NoError(t, store.Add(ctx, u))

	uploads, err := store.List(ctx, now)
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.Equal(t, u, uploads[0])
}

func TestUploadListEmptyIsNotNil(t *testing.T) {
	rc := testutil.StartRedis(t)
	store := redis.NewUploadStore(rc.Client.DB())

	uploads, err := store.List(context.Background(), time.Now())
	require.NoError(t, err)
	assert.NotNil(t, uploads)
	assert.Empty(t, uploads)
}

func TestUploadListPrunesExpired(t *testing.T) {
	rc := testutil.StartRedis(t)
	store := redis.NewUploadStore(rc.Client.DB())
	ctx := context.Background()
	now := time.Now()

	live := newUpload(now.Add(time.Hour))
	expired := newUpload(now.Add(-time.Hour))
	require.NoError(t, store.Add(ctx, live))
	require.NoError(t, store.Add(ctx, expired))

	uploads, err := store.List(ctx, now)
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.Equal(t, live.ID, uploads[0].ID)

	// The expired member was removed from the set, not just filtered.
	card, err := rc.Client.DB().SCard(ctx, "uploads").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), card)
}

func TestUploadListPrunesGarbageMembers(t *testing.T) {
	rc := testutil.StartRedis(t)
	store := redis.NewUploadStore(rc.Client.DB())
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, rc.Client.DB().SAdd(ctx, "uploads", "not json").Err())
	require.NoError(t, store.Add(ctx, newUpload(now.Add(time.Hour))))

	uploads, err := store.List(ctx, now)
	require.NoError(t, err)
	assert.Len(t, uploads, 1)

	card, err := rc.Client.DB().SCard(ctx, "uploads").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), card)
}
