package rooms

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/mcdev12/pokerroom/go/internal/models"
	"github.com/mcdev12/pokerroom/go/internal/rooms/db"
	"github.com/mcdev12/pokerroom/go/internal/sqlutil"
)

// uniqueViolation is the Postgres SQLSTATE for a unique index conflict.
const uniqueViolation = "23505"

// Querier defines what the repository needs from the database layer
type Querier interface {
	CreateRoom(ctx context.Context, arg db.CreateRoomParams) (db.Room, error)
	GetRoom(ctx context.Context, id string) (db.Room, error)
	GetRoomByCode(ctx context.Context, code string) (db.Room, error)
	UpdateRoom(ctx context.Context, arg db.UpdateRoomParams) (db.Room, error)
	DeleteRoom(ctx context.Context, id string) (int64, error)
}

// Repository implements room record access on Postgres
type Repository struct {
	queries Querier
	// conn enables read-modify-write updates inside a transaction. Without it
	// updates go straight through queries.
	conn *sql.DB
}

// NewRepository creates a repository over a querier
func NewRepository(querier Querier) *Repository {
	return &Repository{
		queries: querier,
	}
}

// NewPostgresRepository creates a repository bound to a database handle
func NewPostgresRepository(conn *sql.DB) *Repository {
	return &Repository{
		queries: db.New(conn),
		conn:    conn,
	}
}

// Create inserts a new room record
func (r *Repository) Create(ctx context.Context, req CreateRoomRequest) (*models.RoomRecord, error) {
	room, err := r.queries.CreateRoom(ctx, db.CreateRoomParams{
		ID:       req.ID,
		Code:     req.Code,
		Name:     req.Name,
		Topic:    req.Topic,
		Settings: sqlutil.ToNullRawMessage(req.Settings),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", translateErr(err))
	}
	return dbRoomToModel(room), nil
}

// FindByID retrieves a room record by id
func (r *Repository) FindByID(ctx context.Context, id string) (*models.RoomRecord, error) {
	room, err := r.queries.GetRoom(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", translateErr(err))
	}
	return dbRoomToModel(room), nil
}

// FindByCode retrieves an active room record by its join code
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.RoomRecord, error) {
	room, err := r.queries.GetRoomByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get room by code: %w", translateErr(err))
	}
	return dbRoomToModel(room), nil
}

// Update applies a partial update to a room record
func (r *Repository) Update(ctx context.Context, id string, req UpdateRoomRequest) (*models.RoomRecord, error) {
	if r.conn == nil {
		return r.update(ctx, r.queries, r.queries.GetRoom, id, req)
	}

	var out *models.RoomRecord
	err := sqlutil.Run(ctx, r.conn, func(tx *sql.Tx) *db.Queries {
		return db.New(tx)
	}, func(q *db.Queries) error {
		var err error
		out, err = r.update(ctx, q, q.GetRoomForUpdate, id, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) update(
	ctx context.Context,
	q Querier,
	load func(context.Context, string) (db.Room, error),
	id string,
	req UpdateRoomRequest,
) (*models.RoomRecord, error) {
	current, err := load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load room: %w", translateErr(err))
	}

	params := db.UpdateRoomParams{
		ID:       id,
		Name:     current.Name,
		Topic:    current.Topic,
		Settings: current.Settings,
		Active:   current.Active,
	}
	if req.Name != nil {
		params.Name = *req.Name
	}
	if req.Topic != nil {
		params.Topic = *req.Topic
	}
	if req.Settings != nil {
		params.Settings = sqlutil.ToNullRawMessage(req.Settings)
	}
	if req.Active != nil {
		params.Active = *req.Active
	}

	room, err := q.UpdateRoom(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to update room: %w", translateErr(err))
	}
	return dbRoomToModel(room), nil
}

// Delete removes a room record
func (r *Repository) Delete(ctx context.Context, id string) error {
	n, err := r.queries.DeleteRoom(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("failed to delete room: %w", ErrNotFound)
	}
	return nil
}

func translateErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrCodeTaken
	}
	return err
}

// dbRoomToModel converts a database room to the domain record
func dbRoomToModel(room db.Room) *models.RoomRecord {
	return &models.RoomRecord{
		ID:        room.ID,
		Code:      room.Code,
		Name:      room.Name,
		Topic:     room.Topic,
		Settings:  sqlutil.FromNullRawMessage(room.Settings),
		Active:    room.Active,
		CreatedAt: room.CreatedAt,
		UpdatedAt: room.UpdatedAt,
	}
}
