package rooms

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/pokerroom/go/internal/rooms/db"
)

func TestRepository_Create(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	q := new(MockQuerier)
	repo := NewRepository(q)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q.On("CreateRoom", ctx, db.CreateRoomParams{
		ID:       "r1",
		Code:     "ABC234",
		Name:     "Sprint 12",
		Settings: pqtype.NullRawMessage{RawMessage: json.RawMessage(`{"deck":"tshirt"}`), Valid: true},
	}).Return(db.Room{
		ID:        "r1",
		Code:      "ABC234",
		Name:      "Sprint 12",
		Settings:  pqtype.NullRawMessage{RawMessage: json.RawMessage(`{"deck":"tshirt"}`), Valid: true},
		Active:    true,
		CreatedAt: created,
		UpdatedAt: created,
	}, nil)

	rec, err := repo.Create(ctx, CreateRoomRequest{
		ID:       "r1",
		Code:     "ABC234",
		Name:     "Sprint 12",
		Settings: json.RawMessage(`{"deck":"tshirt"}`),
	})

	req.NoError(err)
	req.Equal("r1", rec.ID)
	req.True(rec.Active)
	req.JSONEq(`{"deck":"tshirt"}`, string(rec.Settings))
	req.Equal(created, rec.CreatedAt)
	q.AssertExpectations(t)
}

func TestRepository_TranslatesErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("no rows is not found", func(t *testing.T) {
		q := new(MockQuerier)
		q.On("GetRoom", ctx, "missing").Return(db.Room{}, sql.ErrNoRows)

		_, err := NewRepository(q).FindByID(ctx, "missing")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unique violation is code taken", func(t *testing.T) {
		q := new(MockQuerier)
		q.On("CreateRoom", ctx, mock.Anything).Return(db.Room{}, &pq.Error{Code: uniqueViolation})

		_, err := NewRepository(q).Create(ctx, CreateRoomRequest{ID: "r1", Code: "ABC234"})
		require.ErrorIs(t, err, ErrCodeTaken)
	})

	t.Run("other errors pass through", func(t *testing.T) {
		boom := errors.New("connection reset")
		q := new(MockQuerier)
		q.On("GetRoomByCode", ctx, "ABC234").Return(db.Room{}, boom)

		_, err := NewRepository(q).FindByCode(ctx, "ABC234")
		require.ErrorIs(t, err, boom)
		require.NotErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete of nothing is not found", func(t *testing.T) {
		q := new(MockQuerier)
		q.On("DeleteRoom", ctx, "r1").Return(int64(0), nil)

		require.ErrorIs(t, NewRepository(q).Delete(ctx, "r1"), ErrNotFound)
	})
}

func TestRepository_UpdateMergesFields(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	q := new(MockQuerier)
	repo := NewRepository(q)

	current := db.Room{
		ID:       "r1",
		Code:     "ABC234",
		Name:     "Sprint 12",
		Topic:    "Login page",
		Settings: pqtype.NullRawMessage{RawMessage: json.RawMessage(`{"deck":"fibonacci"}`), Valid: true},
		Active:   true,
	}
	q.On("GetRoom", ctx, "r1").Return(current, nil)

	// Given only the active flag changes
	inactive := false
	want := db.UpdateRoomParams{
		ID:       "r1",
		Name:     "Sprint 12",
		Topic:    "Login page",
		Settings: current.Settings,
		Active:   false,
	}
	updated := current
	updated.Active = false
	q.On("UpdateRoom", ctx, want).Return(updated, nil)

	// When
	rec, err := repo.Update(ctx, "r1", UpdateRoomRequest{Active: &inactive})

	// Then the other columns are written back untouched
	req.NoError(err)
	req.False(rec.Active)
	req.Equal("Login page", rec.Topic)
	q.AssertExpectations(t)
}
