package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/time/rate"

	"github.com/mcdev12/pokerroom/go/internal/config"
	"github.com/mcdev12/pokerroom/go/internal/gateway"
	"github.com/mcdev12/pokerroom/go/internal/roomevents"
	"github.com/mcdev12/pokerroom/go/internal/rooms"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, closeRepo, err := setupRoomRepository(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up room store")
	}
	defer closeRepo()

	publisher, err := setupPublisher(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up room event publisher")
	}
	defer publisher.Close()

	eventWorker := roomevents.NewWorker(publisher, roomevents.DefaultConfig())
	if err := eventWorker.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start room event worker")
	}

	gatewayConfig := gateway.Config{
		ConnectionConfig: connectionConfig(cfg),
		ReaperConfig: gateway.ReaperConfig{
			Interval:  cfg.Reaper.Interval,
			Threshold: cfg.Reaper.Threshold,
		},
	}
	gatewayService := gateway.NewService(gatewayConfig, rooms.NewApp(repo), eventWorker, nil)

	log.Info().
		Str("room_store", cfg.RoomStore).
		Bool("events_enabled", cfg.NATS.URL != "").
		Str("port", cfg.Port).
		Msg("starting room gateway")

	// Setup HTTP server
	mux := http.NewServeMux()

	// Register gateway routes (WebSocket and REST)
	gatewayService.RegisterRoutes(mux)

	// Add health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Add service info
	mux.HandleFunc("GET /info", func(w http.ResponseWriter, r *http.Request) {
		stats := gatewayService.GetStats()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"service":"room-gateway","connections":%d,"live_rooms":%d}`,
			stats.TotalConnections, stats.LiveRooms)
	})

	handler := gateway.CORSMiddleware(cfg.CORS.AllowedOrigins, mux)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     h2c.NewHandler(handler, &http2.Server{}),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	// Start gateway service (dispatcher, hub and reaper)
	serviceDone := make(chan struct{})
	go func() {
		defer close(serviceDone)
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	// Start HTTP server
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Cancel service context to stop gateway service and event worker
	cancel()
	<-serviceDone
	eventWorker.Wait()

	log.Info().Msg("room gateway shutdown complete")
}

func setupRoomRepository(cfg config.Config) (rooms.RoomsRepository, func(), error) {
	if cfg.RoomStore != config.StorePostgres {
		return rooms.NewMemoryRepository(nil), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("host", cfg.Database.Host).
		Str("database", cfg.Database.Database).
		Msg("connected to database")

	return rooms.NewPostgresRepository(db), func() { db.Close() }, nil
}

func setupPublisher(ctx context.Context, cfg config.Config) (roomevents.EventPublisher, error) {
	if cfg.NATS.URL == "" {
		log.Info().Msg("NATS_URL not set, room events disabled")
		return roomevents.NopPublisher{}, nil
	}

	jsCfg := roomevents.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATS.URL
	jsCfg.StreamName = cfg.NATS.StreamName
	jsCfg.SubjectPrefix = cfg.NATS.Subject
	return roomevents.NewJetStreamPublisher(ctx, jsCfg)
}

func connectionConfig(cfg config.Config) gateway.ConnectionConfig {
	cc := gateway.DefaultConnectionConfig()
	cc.ReadTimeout = cfg.WebSocket.ReadTimeout
	cc.WriteTimeout = cfg.WebSocket.WriteTimeout
	cc.PingInterval = cfg.WebSocket.PingInterval
	cc.MaxMessageSize = cfg.WebSocket.MaxMessageSize
	cc.SendBufferSize = cfg.WebSocket.SendBuffer
	// Zero disables throttling
	cc.MessageRate = rate.Limit(cfg.WebSocket.MessageRate)
	cc.MessageBurst = cfg.WebSocket.MessageBurst
	return cc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
