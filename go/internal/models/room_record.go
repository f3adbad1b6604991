package models

import (
	"encoding/json"
	"time"
)

// RoomRecord is the persisted metadata of a room. Live participant and vote
// state never reaches the backing store.
type RoomRecord struct {
	ID        string          `json:"id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Topic     string          `json:"topic"`
	Settings  json.RawMessage `json:"settings,omitempty"` // JSONB stored as raw JSON
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
