package session

import (
	"github.com/samber/lo"

	"github.com/mcdev12/pokerroom/go/internal/models"
)

// electHost promotes the earliest-joined participant that is still connected.
// Participants are stored in join order. When everyone is offline the first
// entry is promoted anyway; the reaper collects an offline host once it goes
// stale.
// It returns the new host id, or "" when the room is empty.
func electHost(room *models.Room) string {
	for _, p := range room.Participants {
		p.IsHost = false
	}
	if room.IsEmpty() {
		room.HostID = ""
		return ""
	}
	next, ok := lo.Find(room.Participants, func(p *models.Participant) bool {
		return p.Connected
	})
	if !ok {
		next = room.Participants[0]
	}
	next.IsHost = true
	room.HostID = next.ID
	return next.ID
}

// removeParticipant drops a participant and re-elects a host if needed.
// It is the single removal path shared by leave, kick, reap and host disconnect.
// The returned id is the previous host when an election happened.
func removeParticipant(room *models.Room, participantID string) (removed *models.Participant, previousHost string) {
	idx := room.IndexOf(participantID)
	if idx < 0 {
		return nil, ""
	}
	removed = room.Participants[idx]
	room.Participants = append(room.Participants[:idx], room.Participants[idx+1:]...)

	if removed.IsHost {
		previousHost = removed.ID
		electHost(room)
	}
	return removed, previousHost
}
