package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/storymode/internal/config"
	"github.com/cory-johannsen/storymode/internal/game/protocol"
	"github.com/cory-johannsen/storymode/internal/game/session"
)

// Connector admits players into the day's dungeon and releases them.
type Connector interface {
	Connect(ctx context.Context, req protocol.Connect, send session.SendFunc) (*session.Session, error)
	Release(ctx context.Context, s *session.Session)
}

// Acceptor upgrades HTTP requests to WebSocket connections and runs the
// per-connection read loop. The first accepted frame must be a connect;
// everything after it is dispatched to the player's session.
type Acceptor struct {
	cfg      config.ServerConfig
	game     config.GameConfig
	sessions Connector
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewAcceptor creates a WebSocket acceptor.
//
// Precondition: sessions and logger must be non-nil; cfg and game must be
// validated.
func NewAcceptor(cfg config.ServerConfig, game config.GameConfig, sessions Connector, logger *zap.Logger) *Acceptor {
	return &Acceptor{
		cfg:      cfg,
		game:     game,
		sessions: sessions,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Game clients are served from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and serves the connection until the
// client disconnects or the idle deadline passes.
func (a *Acceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Debug("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}
	a.serve(wsConn, r.RemoteAddr)
}

func (a *Acceptor) serve(wsConn *websocket.Conn, addr string) {
	start := time.Now()
	logger := a.logger.With(zap.String("remote_addr", addr))
	logger.Info("client connected")

	pingPeriod := a.cfg.IdleTimeout * 9 / 10
	conn := newConn(wsConn, a.game.SendBufferSize, a.cfg.WriteTimeout, pingPeriod, logger)
	defer conn.Close()

	wsConn.SetReadLimit(a.game.ReadLimit)
	resetDeadline := func() error {
		return wsConn.SetReadDeadline(time.Now().Add(a.cfg.IdleTimeout))
	}
	_ = resetDeadline()
	wsConn.SetPongHandler(func(string) error { return resetDeadline() })

	var sess *session.Session
	defer func() {
		if sess != nil {
			// The request context is gone by the time a disconnect is
			// observed; release with a fresh one so cleanup still runs.
			a.sessions.Release(context.Background(), sess)
		}
		logger.Info("client disconnected", zap.Duration("duration", time.Since(start)))
	}()

	ctx := context.Background()
	for {
		_, raw, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("read failed", zap.Error(err))
			}
			return
		}
		_ = resetDeadline()

		if sess != nil {
			sess.HandleFrame(ctx, raw)
			continue
		}

		s, ok := a.handleConnect(ctx, logger, conn, raw)
		if !ok {
			return
		}
		// A nil session with ok means the frame was dropped; wait for a
		// proper connect.
		if s != nil {
			sess = s
		}
	}
}

// handleConnect processes one pre-session frame. Non-connect and
// undecodable frames are dropped and the connection stays open; a connect
// frame the manager rejects terminates the connection.
func (a *Acceptor) handleConnect(ctx context.Context, logger *zap.Logger, conn *Conn, raw []byte) (*session.Session, bool) {
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logger.Debug("dropping undecodable frame", zap.Error(err))
		return nil, true
	}
	if env.Type != protocol.TypeConnect {
		logger.Debug("ignoring frame before connect", zap.String("type", env.Type))
		return nil, true
	}

	var req protocol.Connect
	if err := json.Unmarshal(raw, &req); err != nil {
		logger.Debug("dropping malformed connect frame", zap.Error(err))
		return nil, true
	}

	s, err := a.sessions.Connect(ctx, req, conn.Enqueue)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrDungeonNotInitialized):
			logger.Warn("rejecting connect before daily dungeon exists")
		case errors.Is(err, session.ErrMalformedFrame):
			logger.Debug("rejecting invalid connect frame", zap.Error(err))
		default:
			logger.Error("connect failed", zap.Error(err))
		}
		return nil, false
	}
	return s, true
}
