// Package main provides the storymode server: the daily dungeon API and
// the WebSocket presence layer for the day's multiplayer dungeon.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/storymode/internal/bus"
	"github.com/cory-johannsen/storymode/internal/config"
	"github.com/cory-johannsen/storymode/internal/frontend/handlers"
	"github.com/cory-johannsen/storymode/internal/frontend/ws"
	"github.com/cory-johannsen/storymode/internal/game/session"
	"github.com/cory-johannsen/storymode/internal/observability"
	"github.com/cory-johannsen/storymode/internal/server"
	"github.com/cory-johannsen/storymode/internal/storage/redis"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting storymode server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("redis_addr", cfg.Redis.Addr),
	)

	ctx := context.Background()
	redisStart := time.Now()
	client, err := redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("connecting to redis", zap.Error(err))
	}
	logger.Info("redis connected",
		zap.String("addr", cfg.Redis.Addr),
		zap.Duration("elapsed", time.Since(redisStart)),
	)

	// Build services
	channelBus := bus.New(ctx, client.DB(), logger)
	dungeons := redis.NewDungeonRegistry(client.DB())
	players := redis.NewPlayerStateStore(client.DB())
	uploads := redis.NewUploadStore(client.DB())
	sessions := session.NewManager(dungeons, players, channelBus, cfg.Game, logger)
	acceptor := ws.NewAcceptor(cfg.Server, cfg.Game, sessions, logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", acceptor)
	mux.Handle("/daily", handlers.NewDailyHandler(dungeons, logger))
	mux.Handle("/community", handlers.NewCommunityHandler(uploads, cfg.Game, logger))
	mux.Handle("/healthz", handlers.NewHealthHandler(client, 5*time.Second, logger))

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: mux,
	}

	// Wire lifecycle
	lifecycle := server.NewLifecycle(logger)

	lifecycle.Add("redis", &server.FuncService{
		StartFn: func() error {
			for {
				time.Sleep(30 * time.Second)
				if err := client.Health(ctx, 5*time.Second); err != nil {
					logger.Warn("redis health check failed", zap.Error(err))
				}
			}
		},
		StopFn: func() {
			channelBus.Close()
			if err := client.Close(); err != nil {
				logger.Warn("closing redis client", zap.Error(err))
			}
		},
	})

	lifecycle.Add("http", server.NewHTTPService(httpServer, cfg.Server.ShutdownTimeout, logger))

	logger.Info("server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("addr", cfg.Server.Addr()),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
