package rooms

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_Lifecycle(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	repo := NewMemoryRepository(clock)

	rec, err := repo.Create(ctx, CreateRoomRequest{ID: "r1", Code: "ABC234", Name: "Sprint"})
	req.NoError(err)
	req.True(rec.Active)
	req.Equal(clock.Now(), rec.CreatedAt)

	byCode, err := repo.FindByCode(ctx, "ABC234")
	req.NoError(err)
	req.Equal("r1", byCode.ID)

	// Returned records are copies
	byCode.Name = "changed"
	again, err := repo.FindByID(ctx, "r1")
	req.NoError(err)
	req.Equal("Sprint", again.Name)

	clock.Advance(time.Minute)
	inactive := false
	updated, err := repo.Update(ctx, "r1", UpdateRoomRequest{Active: &inactive})
	req.NoError(err)
	req.False(updated.Active)
	req.Equal(clock.Now(), updated.UpdatedAt)

	// Inactive rooms free their code
	_, err = repo.FindByCode(ctx, "ABC234")
	req.ErrorIs(err, ErrNotFound)
	_, err = repo.Create(ctx, CreateRoomRequest{ID: "r2", Code: "ABC234"})
	req.NoError(err)

	// and cannot take it back while another room holds it
	active := true
	_, err = repo.Update(ctx, "r1", UpdateRoomRequest{Active: &active})
	req.ErrorIs(err, ErrCodeTaken)

	req.NoError(repo.Delete(ctx, "r1"))
	req.ErrorIs(repo.Delete(ctx, "r1"), ErrNotFound)
}

func TestMemoryRepository_DuplicateCode(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(nil)

	_, err := repo.Create(ctx, CreateRoomRequest{ID: "r1", Code: "ABC234"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, CreateRoomRequest{ID: "r2", Code: "ABC234"})
	require.ErrorIs(t, err, ErrCodeTaken)
}
