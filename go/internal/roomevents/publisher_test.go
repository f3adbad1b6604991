package roomevents

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildMsg(t *testing.T) {
	req := require.New(t)

	at := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	event, err := NewEvent(EventHostChanged, "r1", HostChangedPayload{
		RoomID:         "r1",
		HostID:         "b",
		PreviousHostID: "a",
		Reason:         "disconnect",
		ChangedAt:      at,
	}, at)
	req.NoError(err)

	msg, err := buildMsg("rooms.events", event)
	req.NoError(err)

	req.Equal("rooms.events.HostChanged", msg.Subject)
	req.Equal("HostChanged", msg.Header.Get("Event-Type"))
	req.Equal("r1", msg.Header.Get("Room-ID"))
	req.Equal(event.ID.String(), msg.Header.Get("Event-ID"))

	var env struct {
		EventID   string          `json:"eventId"`
		EventType string          `json:"eventType"`
		RoomID    string          `json:"roomId"`
		Timestamp time.Time       `json:"timestamp"`
		Payload   json.RawMessage `json:"payload"`
	}
	req.NoError(json.Unmarshal(msg.Data, &env))
	req.Equal(event.ID.String(), env.EventID)
	req.Equal("HostChanged", env.EventType)
	req.True(at.Equal(env.Timestamp))
	req.JSONEq(`{"room_id":"r1","host_id":"b","previous_host_id":"a","reason":"disconnect","changed_at":"2026-05-04T10:30:00Z"}`, string(env.Payload))
}

func TestStreamConfig(t *testing.T) {
	cfg := DefaultJetStreamConfig()
	sc := streamConfig(cfg)

	require.Equal(t, "ROOM_EVENTS", sc.Name)
	require.Equal(t, []string{"rooms.events.>"}, sc.Subjects)
	require.True(t, isStreamConfigEqual(sc, streamConfig(cfg)))

	cfg.MaxAge = time.Hour
	require.False(t, isStreamConfigEqual(sc, streamConfig(cfg)))
}
