package rooms

import (
	"encoding/json"
	"errors"
)

var (
	// ErrNotFound means no room record matches.
	ErrNotFound = errors.New("room record not found")
	// ErrCodeTaken means another active room already uses the code.
	ErrCodeTaken = errors.New("room code already in use")
	// ErrValidation wraps request validation failures.
	ErrValidation = errors.New("validation failed")
)

// CreateRoomRequest represents the data needed to create a room record
type CreateRoomRequest struct {
	// ID is optional; a UUID is generated when empty.
	ID       string          `json:"id,omitempty" validate:"max=128"`
	Code     string          `json:"code,omitempty" validate:"omitempty,len=6,alphanum"`
	Name     string          `json:"name" validate:"max=64"`
	Topic    string          `json:"topic" validate:"max=256"`
	Settings json.RawMessage `json:"settings,omitempty" validate:"omitempty,json"`
}

// UpdateRoomRequest represents the fields that can be changed on a record.
// Nil fields are left as they are.
type UpdateRoomRequest struct {
	Name     *string         `json:"name,omitempty" validate:"omitempty,max=64"`
	Topic    *string         `json:"topic,omitempty" validate:"omitempty,max=256"`
	Settings json.RawMessage `json:"settings,omitempty" validate:"omitempty,json"`
	Active   *bool           `json:"active,omitempty"`
}
