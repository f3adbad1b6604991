package gateway

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pokerroom/go/internal/session"
)

// ReaperConfig holds the sweep cadence and the idle threshold.
type ReaperConfig struct {
	Interval  time.Duration
	Threshold time.Duration
}

// DefaultReaperConfig checks every 30s for participants idle over a minute.
func DefaultReaperConfig() ReaperConfig {
	return ReaperConfig{
		Interval:  30 * time.Second,
		Threshold: 60 * time.Second,
	}
}

// Reaper removes participants that stopped sending anything. Hosts are never
// reaped; they leave explicitly or when their connection closes.
type Reaper struct {
	store  *session.Store
	clock  clockwork.Clock
	config ReaperConfig
}

func NewReaper(store *session.Store, clock clockwork.Clock, config ReaperConfig) *Reaper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultReaperConfig().Interval
	}
	if config.Threshold <= 0 {
		config.Threshold = DefaultReaperConfig().Threshold
	}
	return &Reaper{store: store, clock: clock, config: config}
}

// Run sweeps on every tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.config.Interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", r.config.Interval).
		Dur("threshold", r.config.Threshold).
		Msg("inactivity reaper started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("inactivity reaper stopped")
			return
		case <-ticker.Chan():
			r.Sweep()
		}
	}
}

// Sweep runs one pass over every live room and returns how many
// participants it removed. Each removal goes through the store like any
// other leave, so elections, broadcasts and room deletion follow normally.
func (r *Reaper) Sweep() int {
	cutoff := r.clock.Now().Add(-r.config.Threshold)
	reaped := 0

	for _, roomID := range r.store.RoomIDs() {
		for _, participantID := range r.store.StaleParticipants(roomID, cutoff) {
			res, err := r.store.ReapIfStale(roomID, participantID, cutoff)
			if err != nil {
				// Heartbeat, leave or kick got there first
				continue
			}
			reaped++
			log.Info().
				Str("room_id", roomID).
				Str("participant_id", participantID).
				Bool("room_deleted", res.Deleted).
				Msg("reaped inactive participant")
		}
	}

	if reaped > 0 {
		log.Debug().Int("reaped", reaped).Msg("reaper sweep finished")
	}
	return reaped
}
