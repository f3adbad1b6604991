package roomevents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// ConsumerConfig holds configuration for a durable room event consumer
type ConsumerConfig struct {
	URL           string
	StreamName    string
	ConsumerName  string
	SubjectFilter string // e.g., "rooms.events.>"
	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		URL:           nats.DefaultURL,
		StreamName:    "ROOM_EVENTS",
		ConsumerName:  "room-stats",
		SubjectFilter: "rooms.events.>",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Handler processes one delivered event. A returned error NAKs the message
// so it is redelivered.
type Handler func(ctx context.Context, event Event) error

// JetStreamConsumer reads room events from the stream the gateway publishes to
type JetStreamConsumer struct {
	nc       *nats.Conn
	consumer jetstream.Consumer
	config   ConsumerConfig
}

func NewJetStreamConsumer(ctx context.Context, cfg ConsumerConfig) (*JetStreamConsumer, error) {
	nc, js, err := connect(cfg.ConsumerName, cfg.URL, cfg.MaxReconnects, cfg.ReconnectWait)
	if err != nil {
		return nil, err
	}

	stream, err := js.Stream(ctx, cfg.StreamName)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("get stream: %w", err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          cfg.ConsumerName,
		Durable:       cfg.ConsumerName,
		Description:   "Room event statistics consumer",
		FilterSubject: cfg.SubjectFilter,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    cfg.MaxDeliver,
		AckWait:       cfg.AckWait,
		MaxAckPending: cfg.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}

	log.Info().
		Str("consumer", cfg.ConsumerName).
		Str("stream", cfg.StreamName).
		Msg("JetStream consumer ready")

	return &JetStreamConsumer{nc: nc, consumer: consumer, config: cfg}, nil
}

// Run delivers events to handle until ctx is cancelled. Messages are
// handled one at a time in stream order.
func (c *JetStreamConsumer) Run(ctx context.Context, handle Handler) error {
	messageCh := make(chan jetstream.Msg, c.config.MaxAckPending)

	consumeCtx, err := c.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			_ = msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("room event consumer shutting down")
			return nil
		case msg := <-messageCh:
			c.process(ctx, msg, handle)
		}
	}
}

func (c *JetStreamConsumer) process(ctx context.Context, msg jetstream.Msg, handle Handler) {
	event, err := DecodeEnvelope(msg.Data())
	if err != nil {
		// Redelivery will not fix a malformed body
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("dropping undecodable room event")
		if termErr := msg.Term(); termErr != nil {
			log.Error().Err(termErr).Msg("failed to TERM message")
		}
		return
	}

	if err := handle(ctx, event); err != nil {
		log.Error().
			Err(err).
			Str("event_id", event.ID.String()).
			Str("event_type", string(event.Type)).
			Msg("failed to process room event")
		if nakErr := msg.Nak(); nakErr != nil {
			log.Error().Err(nakErr).Msg("failed to NAK message")
		}
		return
	}
	if ackErr := msg.Ack(); ackErr != nil {
		log.Error().Err(ackErr).Msg("failed to ACK message")
	}
}

func (c *JetStreamConsumer) Close() error {
	if c.nc != nil {
		c.nc.Close()
	}
	return nil
}

// DecodeEnvelope parses a published message body back into an Event.
func DecodeEnvelope(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("unmarshal event envelope: %w", err)
	}
	id, err := uuid.Parse(env.EventID)
	if err != nil {
		return Event{}, fmt.Errorf("parse event id: %w", err)
	}
	if env.EventType == "" || env.RoomID == "" {
		return Event{}, fmt.Errorf("event %s is missing its type or room", env.EventID)
	}
	return Event{
		ID:         id,
		RoomID:     env.RoomID,
		Type:       env.EventType,
		Payload:    env.Payload,
		OccurredAt: env.Timestamp,
	}, nil
}
