package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

// BroadcastMessage is one unit of work for the dispatcher. With Target set
// only that connection receives Message; otherwise Recipients do, as long as
// they are still bound to RoomID when the message is delivered.
type BroadcastMessage struct {
	RoomID     string
	Message    *OutboundMessage
	Recipients []*Connection
	Target     *Connection
	// CloseAfter closes Target once Message is queued.
	CloseAfter bool
}

// DropFunc is told about connections the dispatcher gave up on. The seat is
// the one the connection held when it was dropped.
type DropFunc func(conn *Connection, participantID, roomID string)

// SetDropHandler wires the callback for connections dropped while broadcasting.
func (cm *ConnectionManager) SetDropHandler(fn DropFunc) {
	cm.onDrop = fn
}

// Start runs the dispatcher until ctx is cancelled. Messages are delivered in
// the order they were submitted.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager stopping")
			cm.closeAll()
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// Broadcast sends a message to every connection in a room except the one
// bound to excludeParticipantID, if given. Recipients are the connections
// bound when Broadcast is called.
func (cm *ConnectionManager) Broadcast(roomID string, message *OutboundMessage, excludeParticipantID string) {
	targets := cm.ConnectionsFor(roomID)
	recipients := targets[:0]
	for _, conn := range targets {
		if excludeParticipantID != "" {
			if pid, _ := conn.Binding(); pid == excludeParticipantID {
				continue
			}
		}
		recipients = append(recipients, conn)
	}
	cm.submit(BroadcastMessage{RoomID: roomID, Message: message, Recipients: recipients})
}

// SendTo queues a message for a single connection.
func (cm *ConnectionManager) SendTo(conn *Connection, message *OutboundMessage) {
	if conn == nil {
		return
	}
	cm.submit(BroadcastMessage{Message: message, Target: conn})
}

// SendAndClose queues a final message for a connection and then closes it.
func (cm *ConnectionManager) SendAndClose(conn *Connection, message *OutboundMessage) {
	if conn == nil {
		return
	}
	cm.submit(BroadcastMessage{Message: message, Target: conn, CloseAfter: true})
}

// submit queues a message for the dispatcher. Callers may hold a room lock,
// so a full queue is waited on for at most SubmitTimeout.
func (cm *ConnectionManager) submit(message BroadcastMessage) {
	select {
	case cm.broadcastCh <- message:
		return
	default:
	}

	timer := time.NewTimer(cm.config.SubmitTimeout)
	defer timer.Stop()
	select {
	case cm.broadcastCh <- message:
	case <-timer.C:
		log.Error().
			Str("room_id", message.RoomID).
			Str("message_type", string(message.Message.Type)).
			Dur("waited", cm.config.SubmitTimeout).
			Msg("broadcast channel full, dropping message")
	}
}

// handleBroadcast processes a broadcast message
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	// Marshal the message once
	data, err := json.Marshal(message.Message)
	if err != nil {
		log.Error().Err(err).Str("message_type", string(message.Message.Type)).Msg("failed to marshal message for broadcast")
		return
	}

	if message.Target != nil {
		cm.deliver(message.Target, data)
		if message.CloseAfter {
			cm.Unregister(message.Target)
		}
		return
	}

	delivered := 0
	for _, conn := range message.Recipients {
		// Left the room or closed since the message was submitted
		if _, roomID := conn.Binding(); roomID != message.RoomID {
			continue
		}
		if cm.deliver(conn, data) {
			delivered++
		}
	}

	log.Debug().
		Str("message_type", string(message.Message.Type)).
		Str("room_id", message.RoomID).
		Int("connections", delivered).
		Msg("message broadcasted")
}

// deliver enqueues data on one connection. A connection that cannot keep up
// is unregistered; the others are unaffected.
func (cm *ConnectionManager) deliver(conn *Connection, data []byte) bool {
	if conn.enqueue(data) {
		return true
	}

	participantID, roomID, wasBound := cm.Unregister(conn)
	log.Warn().
		Str("connection_id", conn.ID).
		Str("participant_id", participantID).
		Str("room_id", roomID).
		Msg("connection send buffer full or closed, dropping connection")
	if wasBound && cm.onDrop != nil {
		go cm.onDrop(conn, participantID, roomID)
	}
	return false
}

// closeAll closes every bound connection on shutdown.
func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, connections := range cm.roomConnections {
		for conn := range connections {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		cm.Unregister(conn)
	}
}
