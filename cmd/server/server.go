package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/aieditor/backend/api/handlers"
	"github.com/aieditor/backend/internal/agent"
	"github.com/aieditor/backend/internal/command"
	"github.com/aieditor/backend/internal/config"
	"github.com/aieditor/backend/internal/db"
	"github.com/aieditor/backend/internal/events"
	"github.com/aieditor/backend/internal/llm"
	"github.com/aieditor/backend/internal/repository"
	"github.com/aieditor/backend/internal/session"
	"github.com/aieditor/backend/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func run(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.Workspace.Root, 0755); err != nil {
		return errors.Wrap(err, "create workspace root")
	}

	// Session store, optionally backed by SQLite.
	storeConfig := session.Config{}
	if cfg.Storage.Enabled {
		database, err := openArchive(cfg.Storage.Path)
		if err != nil {
			return err
		}
		defer database.Close()
		storeConfig.Archive = repository.NewSessionRepository(database)
	}
	store := session.NewStore(storeConfig)
	if _, err := store.Restore(ctx); err != nil {
		return errors.Wrap(err, "restore sessions")
	}

	registry := llm.FromConfig(ctx, cfg.LLM)
	if len(registry.AvailableNames()) == 0 {
		log.Warn().Str("component", "llm").Msg("no responder configured, replies will explain how to set one up")
	}

	runner := command.NewRunner(command.Config{
		Timeout:   cfg.Workspace.CommandTimeout,
		RecordDir: filepath.Join(cfg.Log.Dir, "commands"),
	})
	router := agent.NewRouter(store, agent.DefaultHandlers(registry, runner, cfg.Workspace.Root)...)

	var publisher ws.FramePublisher
	if cfg.Redis.Enabled {
		mirror, err := events.NewRedisMirror(ctx, events.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.TopicPrefix,
		}, events.NewLogger(log.Logger))
		if err != nil {
			return err
		}
		defer mirror.Close()
		publisher = mirror
		log.Info().Str("component", "events").Str("addr", cfg.Redis.Addr).Msg("mirroring frames to redis streams")
	}

	// Cycles run on the server context so a client disconnect does not abort
	// work other clients are waiting on.
	wsService := ws.NewService(store, router, publisher, ws.Config{Context: ctx})
	defer wsService.Close()

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Server.Port),
		Handler: newEngine(cfg, store, router, registry, wsService),
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Info().Str("component", "http").Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serve http")
		}
		return nil
	})
	eg.Go(func() error {
		return store.StartSweeper(egCtx, cfg.Session.SweepInterval, cfg.Session.IdleTimeout)
	})
	eg.Go(func() error {
		<-egCtx.Done()
		log.Info().Str("component", "http").Msg("shutting down server")
		wsService.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func openArchive(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "create database directory")
	}
	database, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	log.Info().Str("component", "session").Str("path", path).Msg("session archive enabled")
	return database, nil
}

func newEngine(cfg config.Config, store *session.Store, router *agent.Router, registry *llm.Registry, wsService *ws.Service) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())
	r.Use(corsMiddleware(cfg.Server.CORSOrigins))
	r.Use(handlers.UserID())

	sessionHandler := handlers.NewSessionHandler(store, wsService)
	systemHandler := handlers.NewSystemHandler(router, registry, store, wsService)
	wsHandler := handlers.NewWebSocketHandler(wsService.Handler())

	api := r.Group("/api/v1")
	{
		sessionHandler.RegisterRoutes(api)
		systemHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	}
	wsHandler.RegisterRoutes(&r.RouterGroup)

	return r
}
