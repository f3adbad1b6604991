package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/mcdev12/pokerroom/go/internal/models"
	"github.com/mcdev12/pokerroom/go/internal/roomevents"
	"github.com/mcdev12/pokerroom/go/internal/rooms"
	"github.com/mcdev12/pokerroom/go/internal/session"
)

var (
	errNotJoined        = errors.New("join a room first")
	errAlreadyJoined    = errors.New("connection already joined another seat; leave first")
	errIdentityMismatch = errors.New("envelope does not match the joined seat")
	errStoreUnavailable = errors.New("room store unavailable")
	errRateLimited      = errors.New("too many messages, slow down")
)

// Removal reasons carried in user_left and host_changed payloads
const (
	ReasonLeft       = "left"
	ReasonKicked     = "kicked"
	ReasonInactive   = "inactive"
	ReasonDisconnect = "disconnect"
)

// RoomDirectory is the room metadata store consulted when a join names a
// room that is not live.
type RoomDirectory interface {
	Resolve(ctx context.Context, ref string) (*models.RoomRecord, error)
	EnsureRoom(ctx context.Context, id string) (*models.RoomRecord, error)
	Deactivate(ctx context.Context, id string) error
}

// EventSink accepts room events for publishing. Enqueue must not block.
type EventSink interface {
	Enqueue(event roomevents.Event) bool
}

// Hub turns client messages into room operations and room commits into
// outbound messages.
type Hub struct {
	store  *session.Store
	cm     *ConnectionManager
	rooms  RoomDirectory
	events EventSink
	clock  clockwork.Clock

	lookupTimeout time.Duration
	deletions     chan string
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithRoomDirectory wires the room metadata store.
func WithRoomDirectory(d RoomDirectory) HubOption {
	return func(h *Hub) { h.rooms = d }
}

// WithEventSink wires the room event publisher.
func WithEventSink(s EventSink) HubOption {
	return func(h *Hub) { h.events = s }
}

// WithClock replaces the real clock.
func WithClock(c clockwork.Clock) HubOption {
	return func(h *Hub) { h.clock = c }
}

// NewHub wires a hub between the store and the connection manager. It
// installs itself as the store's commit hook and the manager's handler.
func NewHub(store *session.Store, cm *ConnectionManager, opts ...HubOption) *Hub {
	h := &Hub{
		store:         store,
		cm:            cm,
		clock:         clockwork.NewRealClock(),
		lookupTimeout: 5 * time.Second,
		deletions:     make(chan string, 256),
	}
	for _, opt := range opts {
		opt(h)
	}
	store.SetCommitHook(h.onCommit)
	cm.SetHandler(h)
	cm.SetDropHandler(func(_ *Connection, participantID, roomID string) {
		h.disconnect(participantID, roomID)
	})
	return h
}

// Run deactivates metadata of deleted rooms until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case roomID := <-h.deletions:
			h.deactivate(ctx, roomID)
		}
	}
}

func (h *Hub) deactivate(ctx context.Context, roomID string) {
	if h.rooms == nil || h.store.Exists(roomID) {
		// Rejoined before we got here
		return
	}
	ctx, cancel := context.WithTimeout(ctx, h.lookupTimeout)
	defer cancel()
	if err := h.rooms.Deactivate(ctx, roomID); err != nil && !errors.Is(err, rooms.ErrNotFound) {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to deactivate room record")
	}
}

// HandleMessage processes one client frame.
func (h *Hub) HandleMessage(c *Connection, data []byte) {
	if !c.allow() {
		_, roomID := c.Binding()
		h.sendError(c, roomID, errRateLimited)
		return
	}

	msg, err := ParseInbound(data)
	if err != nil {
		h.sendError(c, "", err)
		return
	}

	participantID, roomID := c.Binding()
	if roomID != "" {
		// Any inbound traffic counts as liveness
		_ = h.store.Touch(roomID, participantID)
	}

	switch msg.Type {
	case MessageJoinRoom, MessageInit:
		h.handleJoin(c, msg)
		return
	case MessageHeartbeat:
		h.cm.SendTo(c, &OutboundMessage{
			Type:          MessageHeartbeatAck,
			RoomID:        roomID,
			ParticipantID: participantID,
			Payload:       HeartbeatAckPayload{ServerTime: h.clock.Now().UTC()},
		})
		return
	}

	if roomID == "" {
		h.sendError(c, msg.RoomID, errNotJoined)
		return
	}
	if !c.matches(msg) {
		h.sendError(c, roomID, fmt.Errorf("%w: %w", errInvalidMessage, errIdentityMismatch))
		return
	}

	switch msg.Type {
	case MessageSubmitVote:
		value, err := decodeVote(msg.Payload)
		if err == nil {
			_, err = h.store.Vote(roomID, participantID, value)
		}
		h.reply(c, roomID, err)

	case MessageRevealVotes:
		err := decodeReveal(msg.Payload)
		if err == nil {
			_, err = h.store.Reveal(roomID, participantID)
		}
		h.reply(c, roomID, err)

	case MessageResetVotes:
		_, err := h.store.Reset(roomID, participantID)
		h.reply(c, roomID, err)

	case MessageUpdateIssue:
		topic, err := decodeTopic(msg.Payload)
		if err == nil {
			_, err = h.store.SetTopic(roomID, participantID, topic)
		}
		h.reply(c, roomID, err)

	case MessageKickUser:
		target, err := decodeKickTarget(msg.Payload)
		if err == nil {
			_, err = h.store.Kick(roomID, participantID, target)
		}
		h.reply(c, roomID, err)

	case MessageLeaveRoom:
		_, err := h.store.Leave(roomID, participantID)
		h.cm.Unbind(c)
		h.reply(c, roomID, err)

	default:
		h.sendError(c, roomID, fmt.Errorf("%w: unknown type %q", errInvalidMessage, msg.Type))
	}
}

// HandlePong refreshes liveness on transport-level pongs.
func (h *Hub) HandlePong(c *Connection) {
	if participantID, roomID := c.Binding(); roomID != "" {
		_ = h.store.Touch(roomID, participantID)
	}
}

// HandleClose runs when the read side of a connection ends.
func (h *Hub) HandleClose(c *Connection) {
	participantID, roomID, wasBound := h.cm.Unregister(c)
	if wasBound {
		h.disconnect(participantID, roomID)
	}
}

func (h *Hub) disconnect(participantID, roomID string) {
	_, err := h.store.Disconnect(roomID, participantID)
	if err != nil && !errors.Is(err, session.ErrRoomNotFound) && !errors.Is(err, session.ErrParticipantNotFound) {
		log.Error().Err(err).Str("room_id", roomID).Str("participant_id", participantID).Msg("failed to apply disconnect")
	}
}

func (h *Hub) handleJoin(c *Connection, msg *InboundMessage) {
	payload, err := decodeJoin(msg)
	if err != nil {
		h.sendError(c, msg.RoomID, err)
		return
	}

	ref := msg.RoomID
	if ref == "" {
		ref = c.DefaultRoomID
	}
	if ref == "" {
		h.sendError(c, "", fmt.Errorf("%w: roomId is required", errInvalidMessage))
		return
	}
	participantID := payload.ParticipantID
	if participantID == "" {
		participantID = uuid.NewString()
	}

	roomID, topic, err := h.resolveRoom(ref)
	if err != nil {
		h.sendError(c, ref, err)
		return
	}

	boundParticipant, boundRoom := c.Binding()
	if boundRoom != "" && (boundRoom != roomID || boundParticipant != participantID) {
		h.sendError(c, boundRoom, fmt.Errorf("%w: %w", errInvalidMessage, errAlreadyJoined))
		return
	}

	// Bind first so the snapshot produced by the join reaches this connection
	if replaced := h.cm.Register(c, participantID, roomID); replaced != nil {
		log.Info().
			Str("room_id", roomID).
			Str("participant_id", participantID).
			Str("connection_id", replaced.ID).
			Msg("session resumed on a new connection, closing the old one")
		h.cm.SendAndClose(replaced, &OutboundMessage{
			Type:          MessageError,
			RoomID:        roomID,
			ParticipantID: participantID,
			Payload:       ErrorPayload{Message: "session resumed elsewhere", Code: CodeSessionReplaced},
		})
	}
	c.setRoomRef(ref)

	_, err = h.store.JoinRoom(session.JoinRequest{
		RoomID:        roomID,
		ParticipantID: participantID,
		DisplayName:   payload.Name,
		InitialTopic:  topic,
	})
	if err != nil {
		h.cm.Unbind(c)
		h.sendError(c, roomID, err)
	}
}

// resolveRoom maps the room a client asked for onto a live room id. Rooms
// that are not live are looked up by id, then by code, and created or
// reactivated on demand.
func (h *Hub) resolveRoom(ref string) (roomID, topic string, err error) {
	if h.rooms == nil || h.store.Exists(ref) {
		return ref, "", nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.lookupTimeout)
	defer cancel()

	rec, err := h.rooms.Resolve(ctx, ref)
	switch {
	case errors.Is(err, rooms.ErrNotFound):
		rec, err = h.rooms.EnsureRoom(ctx, ref)
	case err == nil && !rec.Active:
		// Coming back to a deactivated room reclaims its code when still free
		rec, err = h.rooms.EnsureRoom(ctx, rec.ID)
	}
	if err != nil {
		log.Error().Err(err).Str("room_ref", ref).Msg("room lookup failed")
		return "", "", fmt.Errorf("%w: %w", errStoreUnavailable, err)
	}
	return rec.ID, rec.Topic, nil
}

func (h *Hub) reply(c *Connection, roomID string, err error) {
	if err != nil {
		h.sendError(c, roomID, err)
	}
}

func (h *Hub) sendError(c *Connection, roomID string, err error) {
	code := errorCode(err)
	message := err.Error()
	switch code {
	case CodeInternal:
		message = "internal error"
	case CodeStoreUnavailable:
		message = errStoreUnavailable.Error()
	}

	participantID, _ := c.Binding()
	log.Debug().
		Err(err).
		Str("connection_id", c.ID).
		Str("room_id", roomID).
		Str("code", code).
		Msg("rejected client message")

	h.cm.SendTo(c, &OutboundMessage{
		Type:          MessageError,
		RoomID:        roomID,
		ParticipantID: participantID,
		Payload:       ErrorPayload{Message: message, Code: code},
	})
}

// onCommit runs under the room's lock for every applied operation. It only
// queues work: messages go to the dispatcher and events to the sink.
func (h *Hub) onCommit(res session.Result) {
	view := NewRoomView(res.Room)
	roomID := res.RoomID

	switch res.Op {
	case session.OpJoin:
		h.commitJoin(res, view)

	case session.OpVote:
		h.cm.Broadcast(roomID, &OutboundMessage{Type: MessageVotesUpdated, RoomID: roomID, ParticipantID: res.ActorID, Payload: RoomPayload{Room: view}}, "")

	case session.OpReveal:
		var entry *HistoryEntryView
		if res.History != nil {
			e := newHistoryEntryView(res.History)
			entry = &e
			h.emit(roomevents.EventVotesRevealed, roomID, revealedPayload(roomID, res.History))
		}
		h.cm.Broadcast(roomID, &OutboundMessage{Type: MessageRevealVotes, RoomID: roomID, ParticipantID: res.ActorID, Payload: RevealPayload{Entry: entry, Room: view}}, "")

	case session.OpReset:
		h.cm.Broadcast(roomID, &OutboundMessage{Type: MessageResetVotes, RoomID: roomID, ParticipantID: res.ActorID, Payload: RoomPayload{Room: view}}, "")

	case session.OpSetTopic:
		h.cm.Broadcast(roomID, &OutboundMessage{Type: MessageIssueUpdated, RoomID: roomID, ParticipantID: res.ActorID, Payload: IssuePayload{Topic: res.Room.Topic, Room: view}}, "")

	case session.OpLeave:
		if conn := h.cm.FindConnection(res.ActorID, roomID); conn != nil {
			h.cm.SendTo(conn, &OutboundMessage{Type: MessageUserLeft, RoomID: roomID, ParticipantID: res.ActorID, Payload: UserLeftPayload{ParticipantID: res.ActorID, Reason: ReasonLeft, Room: view}})
		}
		h.commitRemoval(res, view, ReasonLeft)

	case session.OpKick:
		if conn := h.cm.FindConnection(res.TargetID, roomID); conn != nil {
			h.cm.Unbind(conn)
			h.cm.SendAndClose(conn, &OutboundMessage{Type: MessageKicked, RoomID: roomID, ParticipantID: res.TargetID, Payload: KickedPayload{ParticipantID: res.TargetID, KickedBy: res.ActorID}})
		}
		h.cm.Broadcast(roomID, &OutboundMessage{Type: MessageKicked, RoomID: roomID, ParticipantID: res.ActorID, Payload: UserLeftPayload{ParticipantID: res.TargetID, Reason: ReasonKicked, Room: view}}, res.TargetID)

	case session.OpReap:
		if conn := h.cm.FindConnection(res.TargetID, roomID); conn != nil {
			h.cm.Unbind(conn)
			h.cm.SendAndClose(conn, &OutboundMessage{Type: MessageError, RoomID: roomID, ParticipantID: res.TargetID, Payload: ErrorPayload{Message: "session expired after inactivity", Code: CodeSessionExpired}})
		}
		h.commitRemoval(res, view, ReasonInactive)

	case session.OpDisconnect:
		if res.Removed != nil {
			h.commitRemoval(res, view, ReasonDisconnect)
			return
		}
		h.cm.Broadcast(roomID, &OutboundMessage{Type: MessageRoomState, RoomID: roomID, ParticipantID: res.ActorID, Payload: RoomStatePayload{Room: view}}, "")
	}
}

func (h *Hub) commitJoin(res session.Result, view RoomView) {
	roomID := res.RoomID
	p := res.Room.Participant(res.ActorID)

	if res.Created {
		h.emit(roomevents.EventRoomCreated, roomID, roomevents.RoomCreatedPayload{
			RoomID:    roomID,
			HostID:    res.Room.HostID,
			Topic:     res.Room.Topic,
			CreatedAt: res.Room.CreatedAt,
		})
	}

	if conn := h.cm.FindConnection(res.ActorID, roomID); conn != nil {
		state := RoomStatePayload{Room: view, You: res.ActorID, Resumed: res.Resumed}
		if p != nil {
			state.YourVote = p.Vote
		}
		h.cm.SendTo(conn, &OutboundMessage{Type: MessageRoomState, RoomID: roomID, ParticipantID: res.ActorID, Payload: state})
	}

	joined := UserJoinedPayload{ParticipantID: res.ActorID, Resumed: res.Resumed, Room: view}
	if p != nil {
		joined.DisplayName = p.DisplayName
	}
	h.cm.Broadcast(roomID, &OutboundMessage{Type: MessageUserJoined, RoomID: roomID, ParticipantID: res.ActorID, Payload: joined}, res.ActorID)
}

// commitRemoval announces a participant leaving by any path. Exactly one
// message goes to the room: host_changed when an election happened,
// user_left otherwise.
func (h *Hub) commitRemoval(res session.Result, view RoomView, reason string) {
	roomID := res.RoomID

	if res.Deleted {
		h.emit(roomevents.EventRoomDeleted, roomID, roomevents.RoomDeletedPayload{
			RoomID:       roomID,
			Rounds:       len(res.Room.VoteHistory),
			DeletedAt:    h.clock.Now().UTC(),
			LastLeaverID: res.TargetID,
		})
		select {
		case h.deletions <- roomID:
		default:
			log.Warn().Str("room_id", roomID).Msg("deletion queue full, room record left active")
		}
		return
	}

	if res.HostChanged() {
		h.emit(roomevents.EventHostChanged, roomID, roomevents.HostChangedPayload{
			RoomID:         roomID,
			HostID:         res.Room.HostID,
			PreviousHostID: res.PreviousHostID,
			Reason:         reason,
			ChangedAt:      h.clock.Now().UTC(),
		})
		h.cm.Broadcast(roomID, &OutboundMessage{Type: MessageHostChanged, RoomID: roomID, ParticipantID: res.TargetID, Payload: HostChangedPayload{
			HostID:         res.Room.HostID,
			PreviousHostID: res.PreviousHostID,
			Reason:         reason,
			Room:           view,
		}}, res.TargetID)
		return
	}

	h.cm.Broadcast(roomID, &OutboundMessage{Type: MessageUserLeft, RoomID: roomID, ParticipantID: res.TargetID, Payload: UserLeftPayload{
		ParticipantID: res.TargetID,
		Reason:        reason,
		Room:          view,
	}}, res.TargetID)
}

func (h *Hub) emit(eventType roomevents.EventType, roomID string, payload interface{}) {
	if h.events == nil {
		return
	}
	event, err := roomevents.NewEvent(eventType, roomID, payload, h.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build room event")
		return
	}
	h.events.Enqueue(event)
}

func revealedPayload(roomID string, entry *models.VoteHistoryEntry) roomevents.VotesRevealedPayload {
	votes := lo.Map(entry.Votes, func(v models.HistoryVote, _ int) roomevents.RevealedVote {
		return roomevents.RevealedVote{
			ParticipantID: v.ParticipantID,
			DisplayName:   v.DisplayName,
			Vote:          v.Vote,
		}
	})
	return roomevents.VotesRevealedPayload{
		RoomID:     roomID,
		Topic:      entry.Topic,
		Votes:      votes,
		FinalScore: entry.FinalScore,
		RevealedAt: entry.Timestamp,
	}
}
