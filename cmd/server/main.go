package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/manpreetbhatti/codesync/backend/internal/api"
	"github.com/manpreetbhatti/codesync/backend/internal/config"
	"github.com/manpreetbhatti/codesync/backend/internal/executor"
	"github.com/manpreetbhatti/codesync/backend/internal/ratelimit"
	"github.com/manpreetbhatti/codesync/backend/internal/session"
	"github.com/manpreetbhatti/codesync/backend/internal/store"
	"github.com/manpreetbhatti/codesync/backend/internal/sweeper"
	"github.com/manpreetbhatti/codesync/backend/internal/ws"
)

type roomStore interface {
	store.Store
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg)

	st, err := openStore(cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to initialize room store")
	}
	defer st.Close()

	hub := ws.NewHub()
	manager := session.NewManager(st, session.NewRegistry(), hub)

	var sweep *sweeper.Service
	if cfg.SweepInterval > 0 {
		sweepConfig := sweeper.DefaultConfig()
		sweepConfig.Interval = cfg.SweepInterval
		sweep = sweeper.New(manager, hub.IsConnected, sweepConfig)
		sweep.Start()

		if cfg.Store.Driver == config.DriverRedis {
			log.Warn().Msg("sweeper enabled on a redis store; run a single instance or set SWEEP_INTERVAL=0")
		}
	}

	exec := executor.NewJDoodle(cfg.Exec.Endpoint, cfg.Exec.ClientID, cfg.Exec.ClientSecret, cfg.Exec.Timeout)
	limiters := ratelimit.NewClientLimiters(float64(cfg.Exec.RatePerMinute)/60, cfg.Exec.RatePerMinute)
	defer limiters.Stop()

	r := mux.NewRouter()
	r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, manager, w, r)
	})
	api.New(hub, st, exec, limiters).Routes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("store", cfg.Store.Driver).
			Msg("CodeSync server listening")
		log.Info().Msg("endpoints: WebSocket /ws, GET /health, GET /api/stats, GET /api/rooms/{id}, POST /api/execute")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	if sweep != nil {
		sweep.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Hanging up every socket runs normal leave handling, so rooms owned
	// by this process are cleaned out of the store before it closes.
	hub.Shutdown()
	waitForClients(ctx, hub)

	log.Info().Msg("server exited")
}

func openStore(cfg config.StoreConfig) (roomStore, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return store.NewSQLiteStore(cfg.SQLitePath)
	case config.DriverMemory:
		return store.NewMemoryStore(), nil
	default:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return store.DialRedis(ctx, cfg.RedisURL, cfg.KeyPrefix, cfg.RoomTTL)
	}
}

func setupLogging(cfg *config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func waitForClients(ctx context.Context, hub *ws.Hub) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for hub.GetClientCount() > 0 {
		select {
		case <-ctx.Done():
			log.Warn().Int("clients", hub.GetClientCount()).Msg("gave up waiting for clients to disconnect")
			return
		case <-ticker.C:
		}
	}
}
