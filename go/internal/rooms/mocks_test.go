package rooms

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/mcdev12/pokerroom/go/internal/models"
	"github.com/mcdev12/pokerroom/go/internal/rooms/db"
)

// --- Querier ---

type MockQuerier struct {
	mock.Mock
}

func (m *MockQuerier) CreateRoom(ctx context.Context, arg db.CreateRoomParams) (db.Room, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(db.Room), args.Error(1)
}

func (m *MockQuerier) GetRoom(ctx context.Context, id string) (db.Room, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(db.Room), args.Error(1)
}

func (m *MockQuerier) GetRoomByCode(ctx context.Context, code string) (db.Room, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(db.Room), args.Error(1)
}

func (m *MockQuerier) UpdateRoom(ctx context.Context, arg db.UpdateRoomParams) (db.Room, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(db.Room), args.Error(1)
}

func (m *MockQuerier) DeleteRoom(ctx context.Context, id string) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

// --- RoomsRepository ---

type MockRoomsRepository struct {
	mock.Mock
}

func (m *MockRoomsRepository) Create(ctx context.Context, req CreateRoomRequest) (*models.RoomRecord, error) {
	args := m.Called(ctx, req)
	rec, _ := args.Get(0).(*models.RoomRecord)
	return rec, args.Error(1)
}

func (m *MockRoomsRepository) FindByID(ctx context.Context, id string) (*models.RoomRecord, error) {
	args := m.Called(ctx, id)
	rec, _ := args.Get(0).(*models.RoomRecord)
	return rec, args.Error(1)
}

func (m *MockRoomsRepository) FindByCode(ctx context.Context, code string) (*models.RoomRecord, error) {
	args := m.Called(ctx, code)
	rec, _ := args.Get(0).(*models.RoomRecord)
	return rec, args.Error(1)
}

func (m *MockRoomsRepository) Update(ctx context.Context, id string, req UpdateRoomRequest) (*models.RoomRecord, error) {
	args := m.Called(ctx, id, req)
	rec, _ := args.Get(0).(*models.RoomRecord)
	return rec, args.Error(1)
}

func (m *MockRoomsRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
