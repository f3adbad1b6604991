package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/mcdev12/pokerroom/go/internal/models"
	"github.com/mcdev12/pokerroom/go/internal/session"
)

// MessageType identifies a message on the room socket.
type MessageType string

// Inbound message types
const (
	MessageJoinRoom    MessageType = "join_room"
	MessageInit        MessageType = "init"
	MessageSubmitVote  MessageType = "submit_vote"
	MessageRevealVotes MessageType = "reveal_votes"
	MessageResetVotes  MessageType = "reset_votes"
	MessageUpdateIssue MessageType = "update_issue"
	MessageKickUser    MessageType = "kick_user"
	MessageLeaveRoom   MessageType = "leave_room"
	MessageHeartbeat   MessageType = "heartbeat"
)

// Outbound message types. reveal_votes and reset_votes are echoed back with
// the same names as their requests.
const (
	MessageRoomState    MessageType = "room_state"
	MessageVotesUpdated MessageType = "votes_updated"
	MessageIssueUpdated MessageType = "issue_updated"
	MessageUserJoined   MessageType = "user_joined"
	MessageUserLeft     MessageType = "user_left"
	MessageHostChanged  MessageType = "host_changed"
	MessageKicked       MessageType = "kicked"
	MessageError        MessageType = "error"
	MessageHeartbeatAck MessageType = "heartbeat_ack"
)

// Error codes sent in error payloads
const (
	CodeInvalidMessage      = "invalid_message"
	CodeInvalidVote         = "invalid_vote"
	CodeInvalidName         = "invalid_name"
	CodeCannotKickSelf      = "cannot_kick_self"
	CodeNotHost             = "not_host"
	CodeRoomNotFound        = "room_not_found"
	CodeParticipantNotFound = "participant_not_found"
	CodeNotJoined           = "not_joined"
	CodeStoreUnavailable    = "store_unavailable"
	CodeSessionReplaced     = "session_replaced"
	CodeSessionExpired      = "session_expired"
	CodeRateLimited         = "rate_limited"
	CodeInternal            = "internal"
)

const (
	maxNameLength  = 64
	maxTopicLength = 256
	maxIDLength    = 128
)

// InboundMessage is the envelope every client message arrives in.
type InboundMessage struct {
	Type          MessageType     `json:"type"`
	RoomID        string          `json:"roomId"`
	ParticipantID string          `json:"participantId"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// OutboundMessage is the envelope every server message is sent in.
type OutboundMessage struct {
	Type          MessageType `json:"type"`
	RoomID        string      `json:"roomId,omitempty"`
	ParticipantID string      `json:"participantId,omitempty"`
	Payload       interface{} `json:"payload,omitempty"`
}

// JoinPayload is the payload of join_room and init.
type JoinPayload struct {
	Name          string `json:"name"`
	ParticipantID string `json:"participantId,omitempty"`
}

// ParticipantView is a participant as clients see it. Vote is only present
// once the room is revealed; before that HasVoted is all that leaks.
type ParticipantView struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"displayName"`
	IsHost      bool    `json:"isHost"`
	Connected   bool    `json:"connected"`
	HasVoted    bool    `json:"hasVoted"`
	Vote        *string `json:"vote,omitempty"`
}

// HistoryVoteView is one vote inside a history entry.
type HistoryVoteView struct {
	ParticipantID string  `json:"participantId"`
	DisplayName   string  `json:"displayName"`
	Vote          *string `json:"vote"`
}

// HistoryEntryView is a revealed round.
type HistoryEntryView struct {
	Topic      string            `json:"topic"`
	Votes      []HistoryVoteView `json:"votes"`
	FinalScore *float64          `json:"finalScore,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// RoomView is the snapshot broadcast after every accepted operation.
type RoomView struct {
	ID           string             `json:"id"`
	Topic        string             `json:"topic"`
	HostID       string             `json:"hostId"`
	Revealed     bool               `json:"revealed"`
	Participants []ParticipantView  `json:"participants"`
	History      []HistoryEntryView `json:"history"`
}

// RoomStatePayload is sent to a single connection after it joins.
type RoomStatePayload struct {
	Room     RoomView `json:"room"`
	You      string   `json:"you,omitempty"`
	YourVote *string  `json:"yourVote,omitempty"`
	Resumed  bool     `json:"resumed,omitempty"`
}

// RoomPayload carries only a snapshot.
type RoomPayload struct {
	Room RoomView `json:"room"`
}

// IssuePayload is the payload of issue_updated.
type IssuePayload struct {
	Topic string   `json:"topic"`
	Room  RoomView `json:"room"`
}

// RevealPayload is the payload of an outbound reveal_votes.
type RevealPayload struct {
	Entry *HistoryEntryView `json:"entry,omitempty"`
	Room  RoomView          `json:"room"`
}

// UserJoinedPayload is the payload of user_joined.
type UserJoinedPayload struct {
	ParticipantID string   `json:"participantId"`
	DisplayName   string   `json:"displayName"`
	Resumed       bool     `json:"resumed"`
	Room          RoomView `json:"room"`
}

// UserLeftPayload is the payload of user_left and kicked.
type UserLeftPayload struct {
	ParticipantID string   `json:"participantId"`
	Reason        string   `json:"reason"`
	Room          RoomView `json:"room"`
}

// HostChangedPayload is the payload of host_changed.
type HostChangedPayload struct {
	HostID         string   `json:"hostId"`
	PreviousHostID string   `json:"previousHostId"`
	Reason         string   `json:"reason"`
	Room           RoomView `json:"room"`
}

// KickedPayload is sent to the participant being removed.
type KickedPayload struct {
	ParticipantID string `json:"participantId"`
	KickedBy      string `json:"kickedBy"`
}

// ErrorPayload describes a rejected message.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// HeartbeatAckPayload echoes the server time.
type HeartbeatAckPayload struct {
	ServerTime time.Time `json:"serverTime"`
}

// errInvalidMessage marks malformed envelopes and payloads.
var errInvalidMessage = errors.New("invalid message")

// ParseInbound decodes an envelope.
func ParseInbound(data []byte) (*InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidMessage, err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: missing type", errInvalidMessage)
	}
	if len(msg.RoomID) > maxIDLength || len(msg.ParticipantID) > maxIDLength {
		return nil, fmt.Errorf("%w: id too long", errInvalidMessage)
	}
	return &msg, nil
}

func payloadIsEmpty(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decodeJoin reads a join payload. Both the envelope and the payload may
// carry the participant id; the payload wins.
func decodeJoin(msg *InboundMessage) (JoinPayload, error) {
	var p JoinPayload
	if !payloadIsEmpty(msg.Payload) {
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return p, fmt.Errorf("%w: join payload: %v", errInvalidMessage, err)
		}
	}
	if p.ParticipantID == "" {
		p.ParticipantID = msg.ParticipantID
	}
	p.Name = strings.TrimSpace(p.Name)
	if len([]rune(p.Name)) > maxNameLength {
		return p, errInvalidName
	}
	if len(p.ParticipantID) > maxIDLength {
		return p, fmt.Errorf("%w: participant id too long", errInvalidMessage)
	}
	return p, nil
}

var errInvalidName = errors.New("display name is too long")

// decodeVote accepts a JSON number, a string or null.
func decodeVote(raw json.RawMessage) (*string, error) {
	if payloadIsEmpty(raw) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, session.ErrInvalidVote
	}
	switch val := v.(type) {
	case json.Number:
		s := val.String()
		return &s, nil
	case string:
		return &val, nil
	default:
		return nil, session.ErrInvalidVote
	}
}

// decodeReveal accepts true or nothing. false is rejected: hiding votes again
// is what reset_votes is for.
func decodeReveal(raw json.RawMessage) error {
	if payloadIsEmpty(raw) {
		return nil
	}
	var reveal bool
	if err := json.Unmarshal(raw, &reveal); err != nil {
		return fmt.Errorf("%w: reveal payload must be a boolean", errInvalidMessage)
	}
	if !reveal {
		return fmt.Errorf("%w: use reset_votes to hide votes", errInvalidMessage)
	}
	return nil
}

func decodeTopic(raw json.RawMessage) (string, error) {
	var topic string
	if payloadIsEmpty(raw) {
		return "", nil
	}
	if err := json.Unmarshal(raw, &topic); err != nil {
		var obj struct {
			Topic string `json:"topic"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", fmt.Errorf("%w: issue payload must be a string", errInvalidMessage)
		}
		topic = obj.Topic
	}
	if len([]rune(topic)) > maxTopicLength {
		return "", fmt.Errorf("%w: issue is too long", errInvalidMessage)
	}
	return topic, nil
}

func decodeKickTarget(raw json.RawMessage) (string, error) {
	var target string
	if err := json.Unmarshal(raw, &target); err != nil {
		var obj struct {
			ParticipantID string `json:"participantId"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", fmt.Errorf("%w: kick payload must be a participant id", errInvalidMessage)
		}
		target = obj.ParticipantID
	}
	if target == "" {
		return "", fmt.Errorf("%w: kick target is required", errInvalidMessage)
	}
	return target, nil
}

// NewRoomView projects a room into its wire form, hiding vote values until
// the room is revealed.
func NewRoomView(room *models.Room) RoomView {
	view := RoomView{
		ID:       room.ID,
		Topic:    room.Topic,
		HostID:   room.HostID,
		Revealed: room.Revealed,
		Participants: lo.Map(room.Participants, func(p *models.Participant, _ int) ParticipantView {
			pv := ParticipantView{
				ID:          p.ID,
				DisplayName: p.DisplayName,
				IsHost:      p.IsHost,
				Connected:   p.Connected,
				HasVoted:    p.Vote != nil,
			}
			if room.Revealed {
				pv.Vote = p.Vote
			}
			return pv
		}),
		History: make([]HistoryEntryView, 0, len(room.VoteHistory)),
	}
	for i := range room.VoteHistory {
		view.History = append(view.History, newHistoryEntryView(&room.VoteHistory[i]))
	}
	return view
}

func newHistoryEntryView(entry *models.VoteHistoryEntry) HistoryEntryView {
	return HistoryEntryView{
		Topic: entry.Topic,
		Votes: lo.Map(entry.Votes, func(v models.HistoryVote, _ int) HistoryVoteView {
			return HistoryVoteView{
				ParticipantID: v.ParticipantID,
				DisplayName:   v.DisplayName,
				Vote:          v.Vote,
			}
		}),
		FinalScore: entry.FinalScore,
		Timestamp:  entry.Timestamp,
	}
}

// errorCode maps a failure onto the code sent to the client.
func errorCode(err error) string {
	switch {
	case errors.Is(err, errInvalidMessage), errors.Is(err, session.ErrInvalidID):
		return CodeInvalidMessage
	case errors.Is(err, errInvalidName), errors.Is(err, session.ErrNameRequired):
		return CodeInvalidName
	case errors.Is(err, session.ErrInvalidVote):
		return CodeInvalidVote
	case errors.Is(err, session.ErrCannotKickSelf):
		return CodeCannotKickSelf
	case errors.Is(err, session.ErrNotHost):
		return CodeNotHost
	case errors.Is(err, session.ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, session.ErrParticipantNotFound):
		return CodeParticipantNotFound
	case errors.Is(err, errNotJoined):
		return CodeNotJoined
	case errors.Is(err, errStoreUnavailable):
		return CodeStoreUnavailable
	case errors.Is(err, errRateLimited):
		return CodeRateLimited
	default:
		return CodeInternal
	}
}
