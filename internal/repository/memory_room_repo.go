package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"codesync/internal/models"
)

// MemoryRoomRepository keeps rooms in process memory. Used with STORE=memory
// and in tests; contents are lost on restart.
type MemoryRoomRepository struct {
	mu    sync.RWMutex
	rooms map[string]*models.Room
	next  uint
}

func NewMemoryRoomRepository() *MemoryRoomRepository {
	return &MemoryRoomRepository{rooms: make(map[string]*models.Room)}
}

func (r *MemoryRoomRepository) Create(ctx context.Context) (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := &models.Room{}
	if err := room.BeforeCreate(nil); err != nil {
		return nil, err
	}
	for r.rooms[room.RoomID] != nil {
		room.RoomID = models.NewRoomID()
	}

	r.next++
	now := time.Now()
	room.ID = r.next
	room.CreatedAt = now
	room.UpdatedAt = now
	r.rooms[room.RoomID] = room

	copied := *room
	return &copied, nil
}

func (r *MemoryRoomRepository) GetByRoomID(ctx context.Context, roomID string) (*models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	copied := *room
	return &copied, nil
}

func (r *MemoryRoomRepository) UpdateCode(ctx context.Context, roomID, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	room.Code = code
	room.UpdatedAt = time.Now()
	return nil
}
