package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-chat-realtime/internal/api"
	"go-chat-realtime/internal/audit"
	"go-chat-realtime/internal/auth"
	"go-chat-realtime/internal/config"
	"go-chat-realtime/internal/logger"
	"go-chat-realtime/internal/middleware"
	"go-chat-realtime/internal/presence"
	"go-chat-realtime/internal/room"
	"go-chat-realtime/internal/session"
	"go-chat-realtime/internal/storage"
	"go-chat-realtime/internal/websocket"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	zlog, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zlog.Sync() }()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	store := storage.NewStore(db, cfg.StorageTimeout)
	backend := storage.NewBreaker(store, storage.BreakerSettings{
		MaxFailures: uint32(cfg.BreakerMaxFail),
		OpenTimeout: cfg.BreakerTimeout,
	}, zlog)

	var mirror presence.Mirror
	var redisMirror *presence.RedisMirror
	if cfg.RedisURL != "" {
		rdb, err := presence.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()

		redisMirror, err = presence.NewRedisMirror(ctx, rdb, zlog)
		if err != nil {
			return err
		}
		mirror = redisMirror
		zlog.Info("presence mirror enabled", zap.String("key", presence.OnlineSetKey))
	}

	auditService := audit.NewAuditService(db)
	authenticator := auth.NewAuthenticator(auth.NewJWTVerifier(cfg.AppSecret))

	hub := websocket.NewHub(zlog)
	registry := session.NewRegistry()
	notifier := presence.NewNotifier(registry, hub, mirror, zlog)
	resolver := room.NewResolver(backend, zlog)
	dispatcher := websocket.NewDispatcher(backend, hub, zlog)
	handler := websocket.NewMessageHandler(hub, dispatcher, resolver, auditService, zlog)
	gateway := websocket.NewGateway(hub, notifier, resolver, handler, websocket.ClientConfig{
		SendBufferSize:  cfg.SendBufferSize,
		MaxMessageSize:  cfg.MaxMessageSize,
		PingInterval:    cfg.PingInterval,
		PongWait:        cfg.PongWait,
		WriteWait:       cfg.WriteWait,
		EventsPerSecond: cfg.EventsPerSecond,
		EventBurst:      cfg.EventBurst,
	}, zlog)

	handshakeLimiter := middleware.NewIPRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.HandshakeRPS,
		BurstSize:         cfg.HandshakeBurst,
		CleanupInterval:   middleware.HandshakeRateLimit.CleanupInterval,
	})
	defer handshakeLimiter.Stop()

	router := api.NewRouter(
		api.NewWebSocketHandler(hub, gateway, authenticator, auditService, api.NewOriginPolicy(cfg.AllowedOrigins, zlog), zlog),
		api.NewPresenceHandlers(notifier),
		api.NewAuditHandlers(auditService),
		auth.NewAuthMiddleware(authenticator),
		handshakeLimiter,
		backend,
	)

	srv := &http.Server{
		Addr:              cfg.Port,
		Handler:           api.NewEngine(cfg, router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return api.Serve(srv, cfg, zlog)
	})
	g.Go(func() error {
		<-gctx.Done()
		zlog.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			zlog.Warn("http shutdown incomplete", zap.Error(err))
		}
		if err := gateway.Shutdown(shutdownCtx); err != nil {
			zlog.Warn("websocket shutdown incomplete", zap.Error(err))
		}
		if redisMirror != nil {
			redisMirror.Close()
		}
		return nil
	})

	return g.Wait()
}
