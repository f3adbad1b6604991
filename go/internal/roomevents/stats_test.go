package roomevents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStats_Handle(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	at := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	stats := NewStats()

	mustEvent := func(eventType EventType, payload interface{}) Event {
		e, err := NewEvent(eventType, "r1", payload, at)
		req.NoError(err)
		return e
	}
	three, eight := 3.0, 8.0

	created := mustEvent(EventRoomCreated, RoomCreatedPayload{RoomID: "r1", HostID: "a"})
	events := []Event{
		created,
		mustEvent(EventVotesRevealed, VotesRevealedPayload{RoomID: "r1", FinalScore: &three}),
		mustEvent(EventVotesRevealed, VotesRevealedPayload{RoomID: "r1", FinalScore: &eight}),
		// Only markers were voted
		mustEvent(EventVotesRevealed, VotesRevealedPayload{RoomID: "r1"}),
		mustEvent(EventHostChanged, HostChangedPayload{RoomID: "r1", HostID: "b", PreviousHostID: "a"}),
		mustEvent(EventRoomDeleted, RoomDeletedPayload{RoomID: "r1", Rounds: 3}),
		// Redelivery
		created,
	}
	for _, e := range events {
		req.NoError(stats.Handle(ctx, e))
	}

	snap := stats.Snapshot()
	req.Equal(1, snap.RoomsCreated)
	req.Equal(1, snap.RoomsDeleted)
	req.Equal(1, snap.HostChanges)
	req.Equal(3, snap.RoundsRevealed)
	req.NotNil(snap.AverageScore)
	req.InDelta(5.5, *snap.AverageScore, 0.0001)
}

func TestStats_BadRevealPayloadIsRetried(t *testing.T) {
	req := require.New(t)
	stats := NewStats()
	e := Event{Type: EventVotesRevealed, RoomID: "r1", Payload: []byte(`"nope"`)}

	req.Error(stats.Handle(context.Background(), e))
	req.Zero(stats.Snapshot().RoundsRevealed)
	req.Nil(stats.Snapshot().AverageScore)
}

func TestStats_RemembersOnlyRecentEvents(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	stats := newStats(2)

	events := make([]Event, 3)
	for i := range events {
		e, err := NewEvent(EventRoomCreated, "r1", RoomCreatedPayload{RoomID: "r1"}, time.Now())
		req.NoError(err)
		events[i] = e
		req.NoError(stats.Handle(ctx, e))
	}
	req.Equal(2, stats.seen.Len())

	// A recent redelivery is still recognized
	req.NoError(stats.Handle(ctx, events[2]))
	req.Equal(3, stats.Snapshot().RoomsCreated)

	// The oldest id was evicted, so it counts again
	req.NoError(stats.Handle(ctx, events[0]))
	req.Equal(4, stats.Snapshot().RoomsCreated)
	req.Equal(2, stats.seen.Len())
}
