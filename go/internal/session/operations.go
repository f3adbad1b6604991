package session

import (
	"errors"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/mcdev12/pokerroom/go/internal/models"
)

// JoinRequest carries a join. InitialTopic only applies when the join
// creates the room.
type JoinRequest struct {
	RoomID        string
	ParticipantID string
	DisplayName   string
	InitialTopic  string
}

// Join adds a participant to a room, creating the room when it does not exist.
// The first participant of a new room becomes its host. Joining again with a
// known id rebinds the existing entry and keeps its vote and host flag.
func (s *Store) Join(roomID, participantID, displayName string) (Result, error) {
	return s.JoinRoom(JoinRequest{RoomID: roomID, ParticipantID: participantID, DisplayName: displayName})
}

// JoinRoom is Join with room creation options.
func (s *Store) JoinRoom(req JoinRequest) (Result, error) {
	roomID, participantID := req.RoomID, req.ParticipantID
	if roomID == "" || participantID == "" {
		return Result{}, ErrInvalidID
	}
	displayName := strings.TrimSpace(req.DisplayName)

	return s.withRoom(roomID, true, func(cell *roomCell) (Result, error) {
		now := s.clock.Now()
		res := Result{Op: OpJoin, ActorID: participantID}

		if cell.room == nil {
			if displayName == "" {
				return Result{}, ErrNameRequired
			}
			cell.room = &models.Room{
				ID:        roomID,
				Topic:     strings.TrimSpace(req.InitialTopic),
				CreatedAt: now,
			}
			res.Created = true
		}
		room := cell.room

		if p := room.Participant(participantID); p != nil {
			if displayName != "" {
				p.DisplayName = displayName
			}
			p.Connected = true
			p.LastSeenAt = now
			res.Resumed = true
			return res, nil
		}

		if displayName == "" {
			return Result{}, ErrNameRequired
		}
		p := &models.Participant{
			ID:          participantID,
			DisplayName: displayName,
			Connected:   true,
			JoinedAt:    now,
			LastSeenAt:  now,
		}
		room.Participants = append(room.Participants, p)
		if room.HostID == "" {
			electHost(room)
		}
		return res, nil
	})
}

// Vote records a participant's vote. A nil value retracts it. Voting after the
// reveal, from an unknown participant or into a room that is gone is a no-op.
func (s *Store) Vote(roomID, participantID string, value *string) (Result, error) {
	if value != nil {
		v, err := NormalizeVote(*value)
		if err != nil {
			return Result{}, err
		}
		value = &v
	}

	res, err := s.withRoom(roomID, false, func(cell *roomCell) (Result, error) {
		room := cell.room
		res := Result{Op: OpVote, ActorID: participantID}

		p := room.Participant(participantID)
		if p == nil || room.Revealed {
			res.NoOp = true
			return res, nil
		}
		if sameVote(p.Vote, value) {
			res.NoOp = true
			return res, nil
		}

		p.Vote = value
		return res, nil
	})
	if errors.Is(err, ErrRoomNotFound) {
		return Result{Op: OpVote, ActorID: participantID, NoOp: true}, nil
	}
	return res, err
}

// Reveal exposes every vote and appends a history entry. Only the host may
// reveal; revealing an already revealed room changes nothing.
func (s *Store) Reveal(roomID, requesterID string) (Result, error) {
	return s.withRoom(roomID, false, func(cell *roomCell) (Result, error) {
		room := cell.room
		if err := requireHost(room, requesterID); err != nil {
			return Result{}, err
		}
		res := Result{Op: OpReveal, ActorID: requesterID}
		if room.Revealed {
			res.NoOp = true
			return res, nil
		}

		now := s.clock.Now()
		votes := make([]models.HistoryVote, 0, len(room.Participants))
		for _, p := range room.Participants {
			votes = append(votes, models.HistoryVote{
				ParticipantID: p.ID,
				DisplayName:   p.DisplayName,
				Vote:          copyVote(p.Vote),
			})
		}
		entry := models.VoteHistoryEntry{
			Topic:      room.Topic,
			Votes:      votes,
			FinalScore: finalScore(votes),
			Timestamp:  now,
		}

		room.Revealed = true
		room.VoteHistory = append(room.VoteHistory, entry)

		res.History = &entry
		return res, nil
	})
}

// Reset clears every vote and reopens voting. Host and topic are untouched.
// Resetting an already reset room yields the same snapshot.
func (s *Store) Reset(roomID, requesterID string) (Result, error) {
	return s.withRoom(roomID, false, func(cell *roomCell) (Result, error) {
		room := cell.room
		if err := requireHost(room, requesterID); err != nil {
			return Result{}, err
		}
		for _, p := range room.Participants {
			p.Vote = nil
		}
		room.Revealed = false
		return Result{Op: OpReset, ActorID: requesterID}, nil
	})
}

// SetTopic renames the issue being estimated. Host only.
func (s *Store) SetTopic(roomID, requesterID, topic string) (Result, error) {
	topic = strings.TrimSpace(topic)
	return s.withRoom(roomID, false, func(cell *roomCell) (Result, error) {
		room := cell.room
		if err := requireHost(room, requesterID); err != nil {
			return Result{}, err
		}
		room.Topic = topic
		return Result{Op: OpSetTopic, ActorID: requesterID}, nil
	})
}

// Leave removes a participant. The host's departure elects a successor and the
// last departure deletes the room.
func (s *Store) Leave(roomID, participantID string) (Result, error) {
	return s.withRoom(roomID, false, func(cell *roomCell) (Result, error) {
		removed, prevHost := removeParticipant(cell.room, participantID)
		if removed == nil {
			return Result{}, ErrParticipantNotFound
		}
		return Result{
			Op:             OpLeave,
			ActorID:        participantID,
			TargetID:       participantID,
			Removed:        removed,
			PreviousHostID: prevHost,
		}, nil
	})
}

// Kick removes another participant on the host's behalf.
func (s *Store) Kick(roomID, requesterID, targetID string) (Result, error) {
	return s.withRoom(roomID, false, func(cell *roomCell) (Result, error) {
		room := cell.room
		if err := requireHost(room, requesterID); err != nil {
			return Result{}, err
		}
		if targetID == requesterID {
			return Result{}, ErrCannotKickSelf
		}
		removed, prevHost := removeParticipant(room, targetID)
		if removed == nil {
			return Result{}, ErrParticipantNotFound
		}
		return Result{
			Op:             OpKick,
			ActorID:        requesterID,
			TargetID:       targetID,
			Removed:        removed,
			PreviousHostID: prevHost,
		}, nil
	})
}

// Disconnect handles a dropped transport. A host is removed at once so the
// room never waits on an absent host; anyone else is only marked offline and
// stays resumable until the reaper collects them.
func (s *Store) Disconnect(roomID, participantID string) (Result, error) {
	return s.withRoom(roomID, false, func(cell *roomCell) (Result, error) {
		room := cell.room
		p := room.Participant(participantID)
		if p == nil {
			return Result{}, ErrParticipantNotFound
		}
		res := Result{Op: OpDisconnect, ActorID: participantID, TargetID: participantID}

		if p.IsHost {
			removed, prevHost := removeParticipant(room, participantID)
			res.Removed = removed
			res.PreviousHostID = prevHost
			return res, nil
		}
		if !p.Connected {
			res.NoOp = true
			return res, nil
		}
		p.Connected = false
		return res, nil
	})
}

// Touch refreshes a participant's liveness without changing visible state.
func (s *Store) Touch(roomID, participantID string) error {
	_, err := s.withRoom(roomID, false, func(cell *roomCell) (Result, error) {
		p := cell.room.Participant(participantID)
		if p == nil {
			return Result{}, ErrParticipantNotFound
		}
		p.LastSeenAt = s.clock.Now()
		return Result{NoOp: true}, nil
	})
	return err
}

// StaleParticipants lists participants last seen before cutoff. A connected
// host is exempt; a host promoted while offline is not.
func (s *Store) StaleParticipants(roomID string, cutoff time.Time) []string {
	room, err := s.Get(roomID)
	if err != nil {
		return nil
	}
	return lo.FilterMap(room.Participants, func(p *models.Participant, _ int) (string, bool) {
		return p.ID, isStale(p, cutoff)
	})
}

// ReapIfStale removes a participant only if it is still stale at the moment
// the room is owned, so a heartbeat racing the sweep wins.
// It returns ErrParticipantNotFound when there was nothing to reap.
func (s *Store) ReapIfStale(roomID, participantID string, cutoff time.Time) (Result, error) {
	return s.withRoom(roomID, false, func(cell *roomCell) (Result, error) {
		p := cell.room.Participant(participantID)
		if p == nil || !isStale(p, cutoff) {
			return Result{}, ErrParticipantNotFound
		}
		removed, prevHost := removeParticipant(cell.room, participantID)
		return Result{
			Op:             OpReap,
			ActorID:        participantID,
			TargetID:       participantID,
			Removed:        removed,
			PreviousHostID: prevHost,
		}, nil
	})
}

func isStale(p *models.Participant, cutoff time.Time) bool {
	if p.IsHost && p.Connected {
		return false
	}
	return p.LastSeenAt.Before(cutoff)
}

func requireHost(room *models.Room, requesterID string) error {
	if room.Participant(requesterID) == nil {
		return ErrParticipantNotFound
	}
	if room.HostID != requesterID {
		return ErrNotHost
	}
	return nil
}

func sameVote(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyVote(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
