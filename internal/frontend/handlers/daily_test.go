package handlers_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/storymode/internal/frontend/handlers"
	"github.com/cory-johannsen/storymode/internal/game/dungeon"
	"github.com/cory-johannsen/storymode/internal/storage/redis"
	"github.com/cory-johannsen/storymode/internal/testutil"
)

func TestDailyReturnsTriple(t *testing.T) {
	registry := testutil.NewMemoryRegistry()
	registry.Set(dungeon.Dungeon{
		Seed:       "42",
		Type:       "Audio",
		Difficulty: 4,
		ExpiresAt:  time.Now().Add(time.Hour),
	})
	h := handlers.NewDailyHandler(registry, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/daily", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"seed":"42","type":"Audio","difficulty":4}`, rec.Body.String())
}

func TestDailyCreatesWhenAbsent(t *testing.T) {
	registry := testutil.NewMemoryRegistry()
	h := handlers.NewDailyHandler(registry, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/daily", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Seed       string `json:"seed"`
		Type       string `json:"type"`
		Difficulty int    `json:"difficulty"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Seed)
	assert.Contains(t, dungeon.Types, body.Type)
}

func TestDailyStorageUnavailable(t *testing.T) {
	registry := testutil.NewMemoryRegistry()
	registry.Err = fmt.Errorf("reading daily dungeon: %w", redis.ErrUnavailable)
	h := handlers.NewDailyHandler(registry, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/daily", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "storage unavailable")
}

func TestDailyRejectsNonGET(t *testing.T) {
	h := handlers.NewDailyHandler(testutil.NewMemoryRegistry(), zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/daily", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
