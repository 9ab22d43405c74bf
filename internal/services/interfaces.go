package services

import (
	"context"
	"time"

	"mapsketch/internal/models"
)

/*
LEARNING: CONSUMER-DRIVEN INTERFACES

The services here only need a handful of repository methods, so they declare
exactly those. repository.SessionRepositoryImpl satisfies both without knowing
they exist, and the tests swap in an in-memory fake.
*/

// SessionWriter is what the audit pool needs from session storage
type SessionWriter interface {
	Opened(ctx context.Context, sessionID, remoteAddr string, at time.Time) error
	Bound(ctx context.Context, sessionID, room string, user models.UserInfo, at time.Time) error
	Closed(ctx context.Context, sessionID string, relayed int64, at time.Time) error
}

// SessionPruner is what the retention sweeper needs from session storage
type SessionPruner interface {
	DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
