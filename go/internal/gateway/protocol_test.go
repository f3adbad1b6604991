package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcdev12/pokerroom/go/internal/models"
	"github.com/mcdev12/pokerroom/go/internal/session"
)

func TestParseInbound(t *testing.T) {
	req := require.New(t)

	msg, err := ParseInbound([]byte(`{"type":"submit_vote","roomId":"R1","participantId":"B","payload":5}`))
	req.NoError(err)
	req.Equal(MessageSubmitVote, msg.Type)
	req.Equal("R1", msg.RoomID)
	req.Equal("B", msg.ParticipantID)
	req.JSONEq(`5`, string(msg.Payload))

	_, err = ParseInbound([]byte(`not json`))
	req.ErrorIs(err, errInvalidMessage)

	_, err = ParseInbound([]byte(`{"roomId":"R1"}`))
	req.ErrorIs(err, errInvalidMessage)

	_, err = ParseInbound([]byte(fmt.Sprintf(`{"type":"heartbeat","roomId":"%s"}`, strings.Repeat("r", maxIDLength+1))))
	req.ErrorIs(err, errInvalidMessage)
}

func TestDecodeJoin(t *testing.T) {
	req := require.New(t)

	p, err := decodeJoin(&InboundMessage{Payload: json.RawMessage(`{"name":"  Alice "}`), ParticipantID: "A"})
	req.NoError(err)
	req.Equal("Alice", p.Name)
	req.Equal("A", p.ParticipantID, "envelope id is used when the payload has none")

	p, err = decodeJoin(&InboundMessage{Payload: json.RawMessage(`{"name":"Alice","participantId":"A2"}`), ParticipantID: "A"})
	req.NoError(err)
	req.Equal("A2", p.ParticipantID)

	_, err = decodeJoin(&InboundMessage{Payload: json.RawMessage(fmt.Sprintf(`{"name":%q}`, strings.Repeat("x", maxNameLength+1)))})
	req.ErrorIs(err, errInvalidName)

	_, err = decodeJoin(&InboundMessage{Payload: json.RawMessage(`[1,2]`)})
	req.ErrorIs(err, errInvalidMessage)
}

func TestDecodeVote(t *testing.T) {
	cases := []struct {
		raw     string
		want    *string
		wantErr bool
	}{
		{raw: `5`, want: strPtr("5")},
		{raw: `0.5`, want: strPtr("0.5")},
		{raw: `"13"`, want: strPtr("13")},
		{raw: `"?"`, want: strPtr("?")},
		{raw: `null`, want: nil},
		{raw: ``, want: nil},
		{raw: `true`, wantErr: true},
		{raw: `{"value":3}`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := decodeVote(json.RawMessage(tc.raw))
			if tc.wantErr {
				require.ErrorIs(t, err, session.ErrInvalidVote)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeReveal(t *testing.T) {
	require.NoError(t, decodeReveal(nil))
	require.NoError(t, decodeReveal(json.RawMessage(`true`)))
	require.ErrorIs(t, decodeReveal(json.RawMessage(`false`)), errInvalidMessage)
	require.ErrorIs(t, decodeReveal(json.RawMessage(`"yes"`)), errInvalidMessage)
}

func TestDecodeTopicAndKickTarget(t *testing.T) {
	req := require.New(t)

	topic, err := decodeTopic(json.RawMessage(`"Checkout flow"`))
	req.NoError(err)
	req.Equal("Checkout flow", topic)

	topic, err = decodeTopic(json.RawMessage(`{"topic":"Search"}`))
	req.NoError(err)
	req.Equal("Search", topic)

	_, err = decodeTopic(json.RawMessage(`42`))
	req.ErrorIs(err, errInvalidMessage)

	target, err := decodeKickTarget(json.RawMessage(`"B"`))
	req.NoError(err)
	req.Equal("B", target)

	target, err = decodeKickTarget(json.RawMessage(`{"participantId":"C"}`))
	req.NoError(err)
	req.Equal("C", target)

	_, err = decodeKickTarget(json.RawMessage(`""`))
	req.ErrorIs(err, errInvalidMessage)
}

func TestNewRoomView_MasksVotesUntilRevealed(t *testing.T) {
	req := require.New(t)

	room := &models.Room{
		ID:     "R1",
		HostID: "A",
		Participants: []*models.Participant{
			{ID: "A", DisplayName: "Alice", IsHost: true, Connected: true},
			{ID: "B", DisplayName: "Bob", Vote: strPtr("5"), Connected: true},
		},
		VoteHistory: []models.VoteHistoryEntry{{
			Topic:     "Login",
			Votes:     []models.HistoryVote{{ParticipantID: "B", DisplayName: "Bob", Vote: strPtr("3")}},
			Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		}},
	}

	view := NewRoomView(room)
	req.False(view.Participants[0].HasVoted)
	req.True(view.Participants[1].HasVoted)
	req.Nil(view.Participants[1].Vote, "vote leaked before reveal")
	req.Len(view.History, 1)
	req.Equal("3", *view.History[0].Votes[0].Vote)

	room.Revealed = true
	view = NewRoomView(room)
	req.Equal("5", *view.Participants[1].Vote)
}

func TestErrorCode(t *testing.T) {
	cases := map[error]string{
		errInvalidMessage:              CodeInvalidMessage,
		session.ErrInvalidID:           CodeInvalidMessage,
		errInvalidName:                 CodeInvalidName,
		session.ErrNameRequired:        CodeInvalidName,
		session.ErrInvalidVote:         CodeInvalidVote,
		session.ErrCannotKickSelf:      CodeCannotKickSelf,
		session.ErrNotHost:             CodeNotHost,
		session.ErrRoomNotFound:        CodeRoomNotFound,
		session.ErrParticipantNotFound: CodeParticipantNotFound,
		errNotJoined:                   CodeNotJoined,
		errStoreUnavailable:            CodeStoreUnavailable,
		errRateLimited:                 CodeRateLimited,
		errors.New("something else"):   CodeInternal,
	}
	cases[fmt.Errorf("wrapped: %w", errInvalidMessage)] = CodeInvalidMessage
	for err, want := range cases {
		require.Equal(t, want, errorCode(err), err.Error())
	}
}

func strPtr(s string) *string { return &s }
