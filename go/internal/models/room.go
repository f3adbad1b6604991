package models

import (
	"time"
)

// Participant is a member of a live estimation room.
type Participant struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	IsHost      bool      `json:"is_host"`
	Vote        *string   `json:"vote,omitempty"` // nil means not yet voted
	Connected   bool      `json:"connected"`
	JoinedAt    time.Time `json:"joined_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// HistoryVote is one participant's vote captured at reveal time.
type HistoryVote struct {
	ParticipantID string  `json:"participant_id"`
	DisplayName   string  `json:"display_name"`
	Vote          *string `json:"vote"`
}

// VoteHistoryEntry is an immutable record appended on every reveal.
type VoteHistoryEntry struct {
	Topic      string        `json:"topic"`
	Votes      []HistoryVote `json:"votes"`
	FinalScore *float64      `json:"final_score,omitempty"` // mean of numeric votes
	Timestamp  time.Time     `json:"timestamp"`
}

// Room is the canonical in-memory state of one estimation session.
// Participants are kept in join order.
type Room struct {
	ID           string             `json:"id"`
	Topic        string             `json:"topic"`
	HostID       string             `json:"host_id"`
	Participants []*Participant     `json:"participants"`
	Revealed     bool               `json:"revealed"`
	VoteHistory  []VoteHistoryEntry `json:"vote_history"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Participant returns the participant with the given id, or nil.
func (r *Room) Participant(id string) *Participant {
	for _, p := range r.Participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// IndexOf returns the join-order position of a participant, or -1.
func (r *Room) IndexOf(id string) int {
	for i, p := range r.Participants {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// IsEmpty reports whether the room has no participants left.
func (r *Room) IsEmpty() bool {
	return len(r.Participants) == 0
}

// Clone returns a deep copy that is safe to hand to other goroutines.
func (r *Room) Clone() *Room {
	out := &Room{
		ID:        r.ID,
		Topic:     r.Topic,
		HostID:    r.HostID,
		Revealed:  r.Revealed,
		CreatedAt: r.CreatedAt,
	}

	out.Participants = make([]*Participant, len(r.Participants))
	for i, p := range r.Participants {
		cp := *p
		cp.Vote = cloneVote(p.Vote)
		out.Participants[i] = &cp
	}

	// History entries are immutable once appended, only the slice header is copied.
	out.VoteHistory = make([]VoteHistoryEntry, len(r.VoteHistory))
	copy(out.VoteHistory, r.VoteHistory)

	return out
}

func cloneVote(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}
