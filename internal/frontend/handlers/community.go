package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/storymode/internal/config"
	"github.com/cory-johannsen/storymode/internal/storage/redis"
)

// Uploads is the community upload store surface the handler needs.
type Uploads interface {
	Add(ctx context.Context, u redis.Upload) error
	List(ctx context.Context, now time.Time) ([]redis.Upload, error)
}

// CommunityHandler serves the community dungeon listing: GET returns the
// unexpired uploads, POST registers a new one.
type CommunityHandler struct {
	uploads Uploads
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewCommunityHandler creates a CommunityHandler.
func NewCommunityHandler(uploads Uploads, cfg config.GameConfig, logger *zap.Logger) *CommunityHandler {
	return &CommunityHandler{
		uploads: uploads,
		ttl:     cfg.UploadTTL,
		logger:  logger,
		now:     time.Now,
	}
}

// uploadRequest is the client-supplied part of an upload record.
type uploadRequest struct {
	Seed      int64  `json:"seed"`
	Filename  string `json:"filename"`
	Extension string `json:"extension"`
	Filesize  int64  `json:"filesize"`
	Uploader  string `json:"uploader"`
}

func (r uploadRequest) validate() error {
	if r.Seed == 0 {
		return errors.New("seed is required")
	}
	if r.Filename == "" {
		return errors.New("filename is required")
	}
	if r.Extension == "" {
		return errors.New("extension is required")
	}
	if r.Filesize <= 0 {
		return errors.New("filesize must be positive")
	}
	return nil
}

func (h *CommunityHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.add(w, r)
	default:
		writeError(w, h.logger, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *CommunityHandler) list(w http.ResponseWriter, r *http.Request) {
	uploads, err := h.uploads.List(r.Context(), h.now())
	if err != nil {
		h.logger.Error("listing uploads failed", zap.Error(err))
		writeError(w, h.logger, http.StatusBadGateway, "storage unavailable")
		return
	}
	// uploads is never nil, so an empty listing encodes as [].
	writeJSON(w, h.logger, http.StatusOK, uploads)
}

func (h *CommunityHandler) add(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	if req.Uploader == "" {
		req.Uploader = "Adventurer"
	}

	u := redis.Upload{
		ID:         uuid.NewString(),
		Seed:       req.Seed,
		Filename:   req.Filename,
		Extension:  req.Extension,
		Filesize:   req.Filesize,
		Uploader:   req.Uploader,
		Expiration: h.now().Add(h.ttl).UnixMilli(),
	}
	if err := h.uploads.Add(r.Context(), u); err != nil {
		h.logger.Error("storing upload failed", zap.Error(err))
		writeError(w, h.logger, http.StatusBadGateway, "storage unavailable")
		return
	}

	h.logger.Info("community upload registered",
		zap.String("upload_id", u.ID),
		zap.Int64("seed", u.Seed),
		zap.String("uploader", u.Uploader),
	)
	writeJSON(w, h.logger, http.StatusOK, u)
}
