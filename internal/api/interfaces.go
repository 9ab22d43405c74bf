package api

import (
	"context"

	"mapsketch/internal/models"
	"mapsketch/internal/relay"
)

/*
LEARNING: CONSUMER-DRIVEN INTERFACES (Go Idiom)

This package (api/handlers) is the CONSUMER of the relay registry and the
session repository, so the interfaces live HERE and only list what the
handlers call. Tests pass small fakes instead of a live relay or database.
*/

// RoomDirectory is the read-only view of room membership the handlers need.
// relay.Registry satisfies it.
type RoomDirectory interface {
	Rooms() []relay.RoomStats
	Size(room string) int
}

// SessionHistory lists audited sessions for a room.
// repository.SessionRepositoryImpl satisfies it.
type SessionHistory interface {
	ListByRoom(ctx context.Context, room string, limit int) ([]*models.SessionRecord, error)
}
