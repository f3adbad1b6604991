package rooms

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/pokerroom/go/internal/models"
)

// MemoryRepository keeps room records in process. It backs single-node
// deployments and tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	rooms map[string]*models.RoomRecord
	clock clockwork.Clock
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository(clock clockwork.Clock) *MemoryRepository {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryRepository{
		rooms: make(map[string]*models.RoomRecord),
		clock: clock,
	}
}

func (m *MemoryRepository) Create(_ context.Context, req CreateRoomRequest) (*models.RoomRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[req.ID]; ok {
		return nil, fmt.Errorf("failed to create room: duplicate id %q", req.ID)
	}
	if req.Code != "" && m.activeCodeLocked(req.Code) != nil {
		return nil, fmt.Errorf("failed to create room: %w", ErrCodeTaken)
	}

	now := m.clock.Now()
	rec := &models.RoomRecord{
		ID:        req.ID,
		Code:      req.Code,
		Name:      req.Name,
		Topic:     req.Topic,
		Settings:  req.Settings,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.rooms[rec.ID] = rec
	return copyRecord(rec), nil
}

func (m *MemoryRepository) FindByID(_ context.Context, id string) (*models.RoomRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.rooms[id]
	if !ok {
		return nil, fmt.Errorf("failed to get room: %w", ErrNotFound)
	}
	return copyRecord(rec), nil
}

func (m *MemoryRepository) FindByCode(_ context.Context, code string) (*models.RoomRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec := m.activeCodeLocked(code)
	if rec == nil {
		return nil, fmt.Errorf("failed to get room by code: %w", ErrNotFound)
	}
	return copyRecord(rec), nil
}

func (m *MemoryRepository) Update(_ context.Context, id string, req UpdateRoomRequest) (*models.RoomRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.rooms[id]
	if !ok {
		return nil, fmt.Errorf("failed to update room: %w", ErrNotFound)
	}
	if req.Active != nil && *req.Active && !rec.Active {
		if other := m.activeCodeLocked(rec.Code); other != nil && other.ID != id {
			return nil, fmt.Errorf("failed to update room: %w", ErrCodeTaken)
		}
	}
	if req.Name != nil {
		rec.Name = *req.Name
	}
	if req.Topic != nil {
		rec.Topic = *req.Topic
	}
	if req.Settings != nil {
		rec.Settings = req.Settings
	}
	if req.Active != nil {
		rec.Active = *req.Active
	}
	rec.UpdatedAt = m.clock.Now()
	return copyRecord(rec), nil
}

func (m *MemoryRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[id]; !ok {
		return fmt.Errorf("failed to delete room: %w", ErrNotFound)
	}
	delete(m.rooms, id)
	return nil
}

func (m *MemoryRepository) activeCodeLocked(code string) *models.RoomRecord {
	for _, rec := range m.rooms {
		if rec.Active && rec.Code == code {
			return rec
		}
	}
	return nil
}

func copyRecord(rec *models.RoomRecord) *models.RoomRecord {
	c := *rec
	if rec.Settings != nil {
		c.Settings = append([]byte(nil), rec.Settings...)
	}
	return &c
}
