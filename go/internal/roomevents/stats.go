package roomevents

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// seenCapacity bounds the event ids kept for redelivery checks. Redeliveries
// arrive within the consumer's ack wait, far fewer events than this.
const seenCapacity = 1 << 16

// Stats aggregates room events into running totals.
type Stats struct {
	mu sync.Mutex

	roomsCreated   int
	roomsDeleted   int
	hostChanges    int
	roundsRevealed int
	scoredRounds   int
	scoreSum       float64
	seen           *lru.Cache
}

// StatsSnapshot is a copy of the totals at one point in time
type StatsSnapshot struct {
	RoomsCreated   int      `json:"rooms_created"`
	RoomsDeleted   int      `json:"rooms_deleted"`
	HostChanges    int      `json:"host_changes"`
	RoundsRevealed int      `json:"rounds_revealed"`
	AverageScore   *float64 `json:"average_score,omitempty"`
}

func NewStats() *Stats {
	return newStats(seenCapacity)
}

func newStats(capacity int) *Stats {
	seen, err := lru.New(capacity)
	if err != nil {
		// Only a non-positive size fails
		panic(err)
	}
	return &Stats{seen: seen}
}

// Handle folds one event into the totals. Redelivered events are counted
// once.
func (s *Stats) Handle(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := event.ID.String()
	if s.seen.Contains(key) {
		return nil
	}

	switch event.Type {
	case EventRoomCreated:
		s.roomsCreated++
	case EventRoomDeleted:
		s.roomsDeleted++
	case EventHostChanged:
		s.hostChanges++
	case EventVotesRevealed:
		var p VotesRevealedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", event.Type, err)
		}
		s.roundsRevealed++
		if p.FinalScore != nil {
			s.scoredRounds++
			s.scoreSum += *p.FinalScore
		}
	default:
		// Newer gateways may publish types we do not track yet
	}

	s.seen.Add(key, struct{}{})
	return nil
}

func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		RoomsCreated:   s.roomsCreated,
		RoomsDeleted:   s.roomsDeleted,
		HostChanges:    s.hostChanges,
		RoundsRevealed: s.roundsRevealed,
	}
	if s.scoredRounds > 0 {
		avg := s.scoreSum / float64(s.scoredRounds)
		snap.AverageScore = &avg
	}
	return snap
}
