package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/storymode/internal/game/dungeon"
	"github.com/cory-johannsen/storymode/internal/storage/redis"
)

// DailyRegistry returns the day's dungeon, creating it when absent.
type DailyRegistry interface {
	GetOrCreateDaily(ctx context.Context) (dungeon.Dungeon, error)
}

// DailyHandler serves the daily dungeon descriptor. The first request of
// a day triggers creation; every later request that day returns the same
// triple.
type DailyHandler struct {
	registry DailyRegistry
	logger   *zap.Logger
}

// NewDailyHandler creates a DailyHandler.
func NewDailyHandler(registry DailyRegistry, logger *zap.Logger) *DailyHandler {
	return &DailyHandler{registry: registry, logger: logger}
}

type dailyResponse struct {
	Seed       string `json:"seed"`
	Type       string `json:"type"`
	Difficulty int    `json:"difficulty"`
}

func (h *DailyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	start := time.Now()
	d, err := h.registry.GetOrCreateDaily(r.Context())
	if err != nil {
		if errors.Is(err, redis.ErrUnavailable) {
			h.logger.Error("daily dungeon lookup unavailable", zap.Error(err))
			writeError(w, h.logger, http.StatusBadGateway, "storage unavailable")
			return
		}
		h.logger.Error("daily dungeon lookup failed", zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "internal error")
		return
	}

	h.logger.Debug("daily dungeon served",
		zap.String("seed", d.Seed),
		zap.Duration("elapsed", time.Since(start)),
	)
	writeJSON(w, h.logger, http.StatusOK, dailyResponse{
		Seed:       d.Seed,
		Type:       d.Type,
		Difficulty: d.Difficulty,
	})
}
