package gateway

import (
	"context"
	"net/http"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pokerroom/go/internal/rooms"
	"github.com/mcdev12/pokerroom/go/internal/session"
)

// Service is the room gateway: WebSocket sessions, the live room store,
// the inactivity reaper and the REST routes around them.
type Service struct {
	store             *session.Store
	connectionManager *ConnectionManager
	hub               *Hub
	reaper            *Reaper
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler

	wg sync.WaitGroup
}

// Config holds configuration for the room gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	ReaperConfig     ReaperConfig
}

// DefaultConfig returns default configuration for the room gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		ReaperConfig:     DefaultReaperConfig(),
	}
}

// NewService wires the gateway. events may be nil to disable publishing.
func NewService(config Config, app *rooms.App, events EventSink, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	store := session.NewStore(clock, nil)
	connectionManager := NewConnectionManager(config.ConnectionConfig)

	opts := []HubOption{WithClock(clock)}
	if app != nil {
		opts = append(opts, WithRoomDirectory(app))
	}
	if events != nil {
		opts = append(opts, WithEventSink(events))
	}
	hub := NewHub(store, connectionManager, opts...)

	var stateHandler *StateHandler
	if app != nil {
		stateHandler = NewStateHandler(app, store)
	}

	return &Service{
		store:             store,
		connectionManager: connectionManager,
		hub:               hub,
		reaper:            NewReaper(store, clock, config.ReaperConfig),
		wsHandler:         NewWebSocketHandler(connectionManager),
		stateHandler:      stateHandler,
	}
}

// Start runs the dispatcher, the hub and the reaper until ctx is cancelled,
// then waits for them to stop.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting room gateway service")

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		s.connectionManager.Start(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.hub.Run(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.reaper.Run(ctx)
	}()

	<-ctx.Done()
	s.wg.Wait()

	log.Info().Msg("room gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and REST routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	if s.stateHandler != nil {
		s.stateHandler.RegisterStateRoutes(mux)
	}
	log.Info().Msg("room gateway routes registered")
}

// Store exposes the live room store.
func (s *Service) Store() *session.Store {
	return s.store
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ServiceStats {
	return ServiceStats{
		ConnectionStats: s.connectionManager.GetConnectionStats(),
		LiveRooms:       s.store.Len(),
	}
}

// ServiceStats is reported on /info.
type ServiceStats struct {
	ConnectionStats
	LiveRooms int `json:"live_rooms"`
}
