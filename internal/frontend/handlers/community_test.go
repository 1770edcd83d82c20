package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/storymode/internal/config"
	"github.com/cory-johannsen/storymode/internal/frontend/handlers"
	"github.com/cory-johannsen/storymode/internal/storage/redis"
)

// memoryUploads is a hand-rolled Uploads fake; List applies the same
// expiry filter as the real store.
type memoryUploads struct {
	mu      sync.Mutex
	uploads []redis.Upload
	err     error
}

func (m *memoryUploads) Add(_ context.Context, u redis.Upload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.uploads = append(m.uploads, u)
	return nil
}

func (m *memoryUploads) List(_ context.Context, now time.Time) ([]redis.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]redis.Upload, 0, len(m.uploads))
	for _, u := range m.uploads {
		if !u.Expired(now) {
			out = append(out, u)
		}
	}
	return out, nil
}

func gameCfg() config.GameConfig {
	return config.GameConfig{UploadTTL: 24 * time.Hour}
}

func TestCommunityListEmpty(t *testing.T) {
	h := handlers.NewCommunityHandler(&memoryUploads{}, gameCfg(), zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/community", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCommunityPostThenList(t *testing.T) {
	store := &memoryUploads{}
	h := handlers.NewCommunityHandler(store, gameCfg(), zaptest.NewLogger(t))

	body := `{"seed":987654321,"filename":"castle.png","extension":"png","filesize":2048,"uploader":"Ada"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/community", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var created redis.Upload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, int64(987654321), created.Seed)
	assert.Equal(t, "Ada", created.Uploader)
	assert.Greater(t, created.Expiration, time.Now().UnixMilli())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/community", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var listed []redis.Upload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)
}

func TestCommunityPostDefaultsUploader(t *testing.T) {
	h := handlers.NewCommunityHandler(&memoryUploads{}, gameCfg(), zaptest.NewLogger(t))

	body := `{"seed":1,"filename":"a.png","extension":"png","filesize":10}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/community", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var created redis.Upload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Adventurer", created.Uploader)
}

func TestCommunityPostValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{{{`},
		{"missing seed", `{"filename":"a.png","extension":"png","filesize":10}`},
		{"missing filename", `{"seed":1,"extension":"png","filesize":10}`},
		{"missing extension", `{"seed":1,"filename":"a.png","filesize":10}`},
		{"zero filesize", `{"seed":1,"filename":"a.png","extension":"png","filesize":0}`},
		{"negative filesize", `{"seed":1,"filename":"a.png","extension":"png","filesize":-5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memoryUploads{}
			h := handlers.NewCommunityHandler(store, gameCfg(), zaptest.NewLogger(t))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/community", strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, store.uploads)
		})
	}
}

func TestCommunityStorageUnavailable(t *testing.T) {
	store := &memoryUploads{err: redis.ErrUnavailable}
	h := handlers.NewCommunityHandler(store, gameCfg(), zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/community", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestCommunityRejectsOtherMethods(t *testing.T) {
	h := handlers.NewCommunityHandler(&memoryUploads{}, gameCfg(), zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/community", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
