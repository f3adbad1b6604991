package session

import "errors"

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrNotHost             = errors.New("only the host can do that")
	ErrInvalidVote         = errors.New("vote must be a number or a known marker")
	ErrNameRequired        = errors.New("display name is required to join")
	ErrCannotKickSelf      = errors.New("host cannot kick themselves")
	ErrInvalidID           = errors.New("room and participant ids are required")
)
