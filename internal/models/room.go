package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultRoomCode seeds every new room
const DefaultRoomCode = "# Start coding here..."

// Room is a collaborative editing room and its persisted document
type Room struct {
	ID        uint      `json:"-" gorm:"primaryKey"`
	RoomID    string    `json:"room_id" gorm:"type:varchar(36);uniqueIndex;not null"`
	Code      string    `json:"code" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns a short room identifier and the starter document
func (r *Room) BeforeCreate(tx *gorm.DB) error {
	if r.RoomID == "" {
		r.RoomID = NewRoomID()
	}
	if r.Code == "" {
		r.Code = DefaultRoomCode
	}
	return nil
}

// NewRoomID returns the first segment of a random UUID: 8 hex characters,
// short enough to read out loud and to match the /room/{id} deep link
func NewRoomID() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}
