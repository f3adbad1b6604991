package roomevents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	// PublishTimeout bounds a single publish attempt.
	PublishTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		BufferSize:     1024,
		MaxRetries:     3,
		RetryDelay:     time.Second,
		PublishTimeout: 5 * time.Second,
	}
}

// Worker publishes events off the caller's goroutine. Enqueue never blocks;
// events are published in the order they were enqueued.
type Worker struct {
	publisher EventPublisher
	config    Config
	events    chan Event

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

func NewWorker(publisher EventPublisher, cfg Config) *Worker {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	return &Worker{
		publisher: publisher,
		config:    cfg,
		events:    make(chan Event, cfg.BufferSize),
	}
}

// Enqueue schedules an event for publishing. It reports false when the
// buffer is full and the event was dropped.
func (w *Worker) Enqueue(event Event) bool {
	select {
	case w.events <- event:
		return true
	default:
		log.Warn().
			Str("event_type", string(event.Type)).
			Str("room_id", event.RoomID).
			Msg("room event buffer full, dropping event")
		return false
	}
}

// Start runs the worker until ctx is cancelled. Events still buffered at
// that point are flushed with a best-effort publish.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("room event worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	log.Info().Int("buffer_size", w.config.BufferSize).Msg("room event worker started")
	return nil
}

// Wait blocks until the worker has stopped.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			w.flush()
			log.Info().Msg("room event worker stopped")
			return
		case event := <-w.events:
			if err := w.publishWithRetry(ctx, event); err != nil {
				log.Error().
					Err(err).
					Str("event_id", event.ID.String()).
					Str("event_type", string(event.Type)).
					Msg("failed to publish room event")
			}
		}
	}
}

func (w *Worker) flush() {
	for {
		select {
		case event := <-w.events:
			ctx, cancel := context.WithTimeout(context.Background(), w.config.PublishTimeout)
			if err := w.publisher.Publish(ctx, event); err != nil {
				log.Warn().Err(err).Str("event_id", event.ID.String()).Msg("dropping room event on shutdown")
			}
			cancel()
		default:
			return
		}
	}
}

func (w *Worker) publishWithRetry(ctx context.Context, event Event) error {
	var lastErr error

	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.config.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := w.publishOnce(ctx, event); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Str("event_id", event.ID.String()).
				Int("attempt", attempt+1).
				Msg("failed to publish room event, retrying")
			continue
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (w *Worker) publishOnce(ctx context.Context, event Event) error {
	if w.config.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.PublishTimeout)
		defer cancel()
	}
	return w.publisher.Publish(ctx, event)
}
