package redis

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// keyUploads is the set of community-uploaded dungeon records.
const keyUploads = "uploads"

// Upload is one community-uploaded dungeon listing. Uploads expire a fixed
// interval after creation and are pruned lazily on listing.
type Upload struct {
	ID        string `json:"id"`
	Seed      int64  `json:"seed"`
	Filename  string `json:"filename"`
	Extension string `json:"extension"`
	Filesize  int64  `json:"filesize"`
	Uploader  string `json:"uploader"`
	// Expiration is the listing cutoff in unix milliseconds.
	Expiration int64 `json:"expiration"`
}

// Expired reports whether the upload should no longer be listed at now.
func (u Upload) Expired(now time.Time) bool {
	return u.Expiration <= now.UnixMilli()
}

// UploadStore persists community upload metadata as JSON members of one
// Redis set. It has no interaction with session or dungeon state.
type UploadStore struct {
	db *goredis.Client
}

// NewUploadStore creates an UploadStore backed by the given client.
//
// Precondition: db must be a valid, open client.
func NewUploadStore(db *goredis.Client) *UploadStore {
	return &UploadStore{db: db}
}

// Add stores a new upload record.
func (s *UploadStore) Add(ctx context.Context, u Upload) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if err := s.db.SAdd(ctx, keyUploads, payload).Err(); err != nil {
		return storeErr("adding upload", err)
	}
	return nil
}

// List returns all unexpired uploads and lazily removes expired members
// from the set. Removal is best-effort; an expired member that survives a
// failed prune is filtered again on the next listing.
func (s *UploadStore) List(ctx context.Context, now time.Time) ([]Upload, error) {
	members, err := s.db.SMembers(ctx, keyUploads).Result()
	if err != nil {
		return nil, storeErr("listing uploads", err)
	}

	uploads := make([]Upload, 0, len(members))
	var expired []any
	for _, raw := range members {
		var u Upload
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			// Unparseable member; treat as garbage and prune it.
			expired = append(expired, raw)
			continue
		}
		if u.Expired(now) {
			expired = append(expired, raw)
			continue
		}
		uploads = append(uploads, u)
	}

	if len(expired) > 0 {
		_ = s.db.SRem(ctx, keyUploads, expired...).Err()
	}
	return uploads, nil
}
