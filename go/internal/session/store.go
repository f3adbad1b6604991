package session

import (
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pokerroom/go/internal/models"
)

// Op names the state machine operation that produced a Result.
type Op string

const (
	OpJoin       Op = "join"
	OpVote       Op = "vote"
	OpReveal     Op = "reveal"
	OpReset      Op = "reset"
	OpSetTopic   Op = "set_topic"
	OpLeave      Op = "leave"
	OpKick       Op = "kick"
	OpDisconnect Op = "disconnect"
	OpReap       Op = "reap"
)

// Result describes one applied operation. Room is a deep copy taken at commit
// time and is safe to read from any goroutine.
type Result struct {
	Op       Op
	RoomID   string
	ActorID  string
	TargetID string
	Room     *models.Room

	NoOp    bool
	Created bool
	Deleted bool
	Resumed bool

	// PreviousHostID is set when the operation triggered a host election.
	PreviousHostID string
	// Removed is the participant taken out by leave, kick, reap or host disconnect.
	Removed *models.Participant
	// History is the entry appended by a reveal.
	History *models.VoteHistoryEntry
}

// HostChanged reports whether a new host was elected.
func (r Result) HostChanged() bool {
	return r.PreviousHostID != "" && !r.Deleted
}

// CommitFunc observes every committed, non no-op Result. It runs while the
// room is still owned by the caller, so commits for one room are observed in
// the order they were applied. It must not block and must not call back into
// the Store.
type CommitFunc func(Result)

// roomCell is the single owner of one room. Holding mu serializes every
// operation on that room.
type roomCell struct {
	mu      sync.Mutex
	room    *models.Room
	deleted bool
}

// Store holds every live room. Operations on the same room are applied one at
// a time in arrival order; different rooms never contend beyond the short
// lookup on the index map.
type Store struct {
	mu       sync.Mutex
	rooms    map[string]*roomCell
	clock    clockwork.Clock
	onCommit CommitFunc
}

// NewStore creates an empty store. A nil clock uses the real clock.
func NewStore(clock clockwork.Clock, onCommit CommitFunc) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		rooms:    make(map[string]*roomCell),
		clock:    clock,
		onCommit: onCommit,
	}
}

// SetCommitHook replaces the commit observer. It must be called before the
// store is shared between goroutines.
func (s *Store) SetCommitHook(fn CommitFunc) {
	s.onCommit = fn
}

// withRoom runs fn while owning the room. When create is set a missing room
// gets a fresh cell; fn is then responsible for initializing cell.room.
func (s *Store) withRoom(roomID string, create bool, fn func(cell *roomCell) (Result, error)) (Result, error) {
	for {
		s.mu.Lock()
		cell, ok := s.rooms[roomID]
		if !ok {
			if !create {
				s.mu.Unlock()
				return Result{}, ErrRoomNotFound
			}
			cell = &roomCell{}
			s.rooms[roomID] = cell
		}
		s.mu.Unlock()

		cell.mu.Lock()
		if cell.deleted {
			// Lost a race with the room's deletion; look it up again.
			cell.mu.Unlock()
			continue
		}
		if cell.room == nil && !create {
			cell.mu.Unlock()
			return Result{}, ErrRoomNotFound
		}

		res, err := fn(cell)
		if err != nil || res.NoOp {
			s.dropIfUninitialized(roomID, cell)
			cell.mu.Unlock()
			return res, err
		}

		res.RoomID = roomID
		if cell.room.IsEmpty() {
			res.Deleted = true
			s.deleteCell(roomID, cell)
		}
		res.Room = cell.room.Clone()

		if s.onCommit != nil {
			s.onCommit(res)
		}
		cell.mu.Unlock()
		return res, nil
	}
}

// deleteCell tears down a room's owner. Caller holds cell.mu.
func (s *Store) deleteCell(roomID string, cell *roomCell) {
	cell.deleted = true
	s.mu.Lock()
	if s.rooms[roomID] == cell {
		delete(s.rooms, roomID)
	}
	s.mu.Unlock()

	log.Debug().Str("room_id", roomID).Msg("room deleted")
}

// dropIfUninitialized removes a cell created for a join that did not commit.
func (s *Store) dropIfUninitialized(roomID string, cell *roomCell) {
	if cell.room == nil {
		s.deleteCell(roomID, cell)
	}
}

// Get returns a snapshot of a room.
func (s *Store) Get(roomID string) (*models.Room, error) {
	s.mu.Lock()
	cell, ok := s.rooms[roomID]
	s.mu.Unlock()
	if !ok {
		return nil, ErrRoomNotFound
	}

	cell.mu.Lock()
	defer cell.mu.Unlock()
	if cell.deleted || cell.room == nil {
		return nil, ErrRoomNotFound
	}
	return cell.room.Clone(), nil
}

// Exists reports whether a room is currently live.
func (s *Store) Exists(roomID string) bool {
	_, err := s.Get(roomID)
	return err == nil
}

// RoomIDs lists the live rooms in a stable order.
func (s *Store) RoomIDs() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Len returns the number of live rooms.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}
