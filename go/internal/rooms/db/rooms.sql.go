package db

import (
	"context"

	"github.com/sqlc-dev/pqtype"
)

const roomColumns = `id, code, name, topic, settings, active, created_at, updated_at`

func scanRoom(row interface{ Scan(dest ...interface{}) error }) (Room, error) {
	var i Room
	err := row.Scan(
		&i.ID,
		&i.Code,
		&i.Name,
		&i.Topic,
		&i.Settings,
		&i.Active,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createRoom = `-- name: CreateRoom :one
INSERT INTO rooms (id, code, name, topic, settings, active)
VALUES ($1, $2, $3, $4, $5, TRUE)
RETURNING ` + roomColumns

type CreateRoomParams struct {
	ID       string                `json:"id"`
	Code     string                `json:"code"`
	Name     string                `json:"name"`
	Topic    string                `json:"topic"`
	Settings pqtype.NullRawMessage `json:"settings"`
}

func (q *Queries) CreateRoom(ctx context.Context, arg CreateRoomParams) (Room, error) {
	row := q.db.QueryRowContext(ctx, createRoom,
		arg.ID,
		arg.Code,
		arg.Name,
		arg.Topic,
		arg.Settings,
	)
	return scanRoom(row)
}

const getRoom = `-- name: GetRoom :one
SELECT ` + roomColumns + ` FROM rooms
WHERE id = $1`

func (q *Queries) GetRoom(ctx context.Context, id string) (Room, error) {
	row := q.db.QueryRowContext(ctx, getRoom, id)
	return scanRoom(row)
}

const getRoomByCode = `-- name: GetRoomByCode :one
SELECT ` + roomColumns + ` FROM rooms
WHERE code = $1 AND active = TRUE`

func (q *Queries) GetRoomByCode(ctx context.Context, code string) (Room, error) {
	row := q.db.QueryRowContext(ctx, getRoomByCode, code)
	return scanRoom(row)
}

const getRoomForUpdate = `-- name: GetRoomForUpdate :one
SELECT ` + roomColumns + ` FROM rooms
WHERE id = $1
FOR UPDATE`

func (q *Queries) GetRoomForUpdate(ctx context.Context, id string) (Room, error) {
	row := q.db.QueryRowContext(ctx, getRoomForUpdate, id)
	return scanRoom(row)
}

const updateRoom = `-- name: UpdateRoom :one
UPDATE rooms
SET name = $2, topic = $3, settings = $4, active = $5, updated_at = NOW()
WHERE id = $1
RETURNING ` + roomColumns

type UpdateRoomParams struct {
	ID       string                `json:"id"`
	Name     string                `json:"name"`
	Topic    string                `json:"topic"`
	Settings pqtype.NullRawMessage `json:"settings"`
	Active   bool                  `json:"active"`
}

func (q *Queries) UpdateRoom(ctx context.Context, arg UpdateRoomParams) (Room, error) {
	row := q.db.QueryRowContext(ctx, updateRoom,
		arg.ID,
		arg.Name,
		arg.Topic,
		arg.Settings,
		arg.Active,
	)
	return scanRoom(row)
}

const deleteRoom = `-- name: DeleteRoom :execrows
DELETE FROM rooms
WHERE id = $1`

func (q *Queries) DeleteRoom(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteRoom, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
