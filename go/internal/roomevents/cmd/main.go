package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pokerroom/go/internal/config"
	"github.com/mcdev12/pokerroom/go/internal/roomevents"
)

// Consumes the room event stream and logs running estimation statistics.
func main() {
	// load .env
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	cfg, err := config.Load(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())
	if cfg.NATS.URL == "" {
		log.Fatal().Msg("NATS_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumerCfg := roomevents.DefaultConsumerConfig()
	consumerCfg.URL = cfg.NATS.URL
	if cfg.NATS.StreamName != "" {
		consumerCfg.StreamName = cfg.NATS.StreamName
	}
	if cfg.NATS.Subject != "" {
		consumerCfg.SubjectFilter = cfg.NATS.Subject + ".>"
	}
	consumerCfg.ConsumerName = getEnv("CONSUMER_NAME", consumerCfg.ConsumerName)

	consumer, err := roomevents.NewJetStreamConsumer(ctx, consumerCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create JetStream consumer")
	}
	defer consumer.Close()

	stats := roomevents.NewStats()
	go reportStats(ctx, stats, time.Minute)

	if err := consumer.Run(ctx, func(ctx context.Context, event roomevents.Event) error {
		log.Info().
			Str("event_id", event.ID.String()).
			Str("event_type", string(event.Type)).
			Str("room_id", event.RoomID).
			Time("occurred_at", event.OccurredAt).
			Msg("room event")
		return stats.Handle(ctx, event)
	}); err != nil {
		log.Fatal().Err(err).Msg("room event consumer failed")
	}

	logStats(stats)
}

func reportStats(ctx context.Context, stats *roomevents.Stats, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logStats(stats)
		}
	}
}

func logStats(stats *roomevents.Stats) {
	snap := stats.Snapshot()
	evt := log.Info().
		Int("rooms_created", snap.RoomsCreated).
		Int("rooms_deleted", snap.RoomsDeleted).
		Int("host_changes", snap.HostChanges).
		Int("rounds_revealed", snap.RoundsRevealed)
	if snap.AverageScore != nil {
		evt = evt.Float64("average_score", *snap.AverageScore)
	}
	evt.Msg("room statistics")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
