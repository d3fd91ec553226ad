package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"codesync/internal/models"

	"github.com/redis/go-redis/v9"
)

const roomKeyPrefix = "codesync:room:"

// RedisRoomRepository stores each room as a hash under codesync:room:{id}.
// Used with STORE=redis.
type RedisRoomRepository struct {
	rdb *redis.Client
}

// NewRedisRoomRepository connects to addr and checks the connection
func NewRedisRoomRepository(ctx context.Context, addr string) (*RedisRoomRepository, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &RedisRoomRepository{rdb: rdb}, nil
}

func roomKey(roomID string) string {
	return roomKeyPrefix + roomID
}

func (r *RedisRoomRepository) Create(ctx context.Context) (*models.Room, error) {
	room := &models.Room{}
	if err := room.BeforeCreate(nil); err != nil {
		return nil, err
	}

	for {
		created, err := r.rdb.HSetNX(ctx, roomKey(room.RoomID), "code", room.Code).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to create room: %w", err)
		}
		if created {
			break
		}
		room.RoomID = models.NewRoomID()
	}

	now := time.Now()
	room.CreatedAt = now
	room.UpdatedAt = now
	stamp := strconv.FormatInt(now.UnixNano(), 10)
	if err := r.rdb.HSet(ctx, roomKey(room.RoomID), "created_at", stamp, "updated_at", stamp).Err(); err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	return room, nil
}

func (r *RedisRoomRepository) GetByRoomID(ctx context.Context, roomID string) (*models.Room, error) {
	fields, err := r.rdb.HGetAll(ctx, roomKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	code, ok := fields["code"]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}

	return &models.Room{
		RoomID:    roomID,
		Code:      code,
		CreatedAt: parseStamp(fields["created_at"]),
		UpdatedAt: parseStamp(fields["updated_at"]),
	}, nil
}

// UpdateCode replaces the document. Rooms are never deleted, so the
// existence check cannot race a removal.
func (r *RedisRoomRepository) UpdateCode(ctx context.Context, roomID, code string) error {
	n, err := r.rdb.Exists(ctx, roomKey(roomID)).Result()
	if err != nil {
		return fmt.Errorf("failed to update room code: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}

	stamp := strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := r.rdb.HSet(ctx, roomKey(roomID), "code", code, "updated_at", stamp).Err(); err != nil {
		return fmt.Errorf("failed to update room code: %w", err)
	}
	return nil
}

// Close releases the connection pool
func (r *RedisRoomRepository) Close() error {
	if err := r.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}

func parseStamp(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n)
}
