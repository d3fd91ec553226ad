package repository

import (
	"context"
	"errors"
	"fmt"

	"codesync/internal/models"

	"gorm.io/gorm"
)

// ErrRoomNotFound is returned when a room identifier is unknown
var ErrRoomNotFound = errors.New("room not found")

// RoomRepositoryImpl stores rooms in Postgres via GORM
type RoomRepositoryImpl struct {
	db *gorm.DB
}

// NewRoomRepository creates a new room repository
func NewRoomRepository(db *gorm.DB) *RoomRepositoryImpl {
	return &RoomRepositoryImpl{db: db}
}

// Create inserts a new room. The identifier and starter code come from the
// BeforeCreate hook.
func (r *RoomRepositoryImpl) Create(ctx context.Context) (*models.Room, error) {
	room := &models.Room{}
	if err := r.db.WithContext(ctx).Create(room).Error; err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	return room, nil
}

// GetByRoomID retrieves a room by its public identifier
func (r *RoomRepositoryImpl) GetByRoomID(ctx context.Context, roomID string) (*models.Room, error) {
	var room models.Room

	err := r.db.WithContext(ctx).First(&room, "room_id = ?", roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	return &room, nil
}

// UpdateCode replaces the persisted document of a room
func (r *RoomRepositoryImpl) UpdateCode(ctx context.Context, roomID, code string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Room{}).
		Where("room_id = ?", roomID).
		Update("code", code)

	if result.Error != nil {
		return fmt.Errorf("failed to update room code: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}

	return nil
}
