package api

import (
	"context"

	"codesync/internal/models"
	"codesync/internal/protocol"
)

// RoomRepository is what the handlers need from room persistence
type RoomRepository interface {
	Create(ctx context.Context) (*models.Room, error)
}

// SuggestionService produces inline code completions
type SuggestionService interface {
	Suggest(ctx context.Context, req protocol.SuggestionRequest) (*protocol.SuggestionResponse, error)
}

// RoomStats reports live connections per room
type RoomStats interface {
	Counts() map[string]int
}
