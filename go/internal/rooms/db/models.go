package db

import (
	"time"

	"github.com/sqlc-dev/pqtype"
)

type Room struct {
	ID        string                `json:"id"`
	Code      string                `json:"code"`
	Name      string                `json:"name"`
	Topic     string                `json:"topic"`
	Settings  pqtype.NullRawMessage `json:"settings"`
	Active    bool                  `json:"active"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}
