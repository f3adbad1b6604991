package roomevents

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names a room lifecycle event. It is also the last token of the
// subject the event is published on.
type EventType string

const (
	EventRoomCreated   EventType = "RoomCreated"
	EventRoomDeleted   EventType = "RoomDeleted"
	EventVotesRevealed EventType = "VotesRevealed"
	EventHostChanged   EventType = "HostChanged"
)

// Event is one room event waiting to be published.
type Event struct {
	ID         uuid.UUID
	RoomID     string
	Type       EventType
	Payload    json.RawMessage
	OccurredAt time.Time
}

// NewEvent marshals payload into a fresh event.
func NewEvent(eventType EventType, roomID string, payload interface{}, at time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:         uuid.New(),
		RoomID:     roomID,
		Type:       eventType,
		Payload:    data,
		OccurredAt: at.UTC(),
	}, nil
}

// RoomCreatedPayload is the payload for a RoomCreated event
type RoomCreatedPayload struct {
	RoomID    string    `json:"room_id"`
	HostID    string    `json:"host_id"`
	Topic     string    `json:"topic"`
	CreatedAt time.Time `json:"created_at"`
}

// RoomDeletedPayload is the payload for a RoomDeleted event
type RoomDeletedPayload struct {
	RoomID       string    `json:"room_id"`
	Rounds       int       `json:"rounds"`
	DeletedAt    time.Time `json:"deleted_at"`
	LastLeaverID string    `json:"last_leaver_id"`
}

// VotesRevealedPayload is the payload for a VotesRevealed event
type VotesRevealedPayload struct {
	RoomID     string         `json:"room_id"`
	Topic      string         `json:"topic"`
	Votes      []RevealedVote `json:"votes"`
	FinalScore *float64       `json:"final_score,omitempty"`
	RevealedAt time.Time      `json:"revealed_at"`
}

// RevealedVote is one participant's vote at reveal time.
type RevealedVote struct {
	ParticipantID string  `json:"participant_id"`
	DisplayName   string  `json:"display_name"`
	Vote          *string `json:"vote"`
}

// HostChangedPayload is the payload for a HostChanged event
type HostChangedPayload struct {
	RoomID         string    `json:"room_id"`
	HostID         string    `json:"host_id"`
	PreviousHostID string    `json:"previous_host_id"`
	Reason         string    `json:"reason"`
	ChangedAt      time.Time `json:"changed_at"`
}
