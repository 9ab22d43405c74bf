package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mapsketch/internal/models"

	"gorm.io/gorm"
)

/*
LEARNING: CONNECTION AUDIT PERSISTENCE

The relay writes three rows-worth of facts per connection:
1. Opened: session id, remote address, connect time
2. Bound: room and announced user from the first message
3. Closed: disconnect time and how many messages were relayed

Per-message counting happens in memory and is flushed once at close, so
the hot relay path never waits on the database.
*/

// ErrSessionNotFound is returned when no audit row exists for a session id
var ErrSessionNotFound = errors.New("session record not found")

// SessionRepositoryImpl handles relay session audit storage
type SessionRepositoryImpl struct {
	db *gorm.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *gorm.DB) *SessionRepositoryImpl {
	return &SessionRepositoryImpl{db: db}
}

// Opened inserts the audit row for a freshly accepted connection
func (r *SessionRepositoryImpl) Opened(ctx context.Context, sessionID, remoteAddr string, at time.Time) error {
	record := &models.SessionRecord{
		ID:          sessionID,
		RemoteAddr:  remoteAddr,
		ConnectedAt: at,
	}

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to store session record: %w", err)
	}

	return nil
}

// Bound records the room a session was bound to by its first message
func (r *SessionRepositoryImpl) Bound(ctx context.Context, sessionID, room string, user models.UserInfo, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.SessionRecord{}).
		Where("id = ?", sessionID).
		Updates(map[string]any{
			"room":      room,
			"user_id":   user.ID,
			"user_name": user.Name,
			"bound_at":  at,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to bind session record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	return nil
}

// Closed stamps the disconnect time and the relayed message count
func (r *SessionRepositoryImpl) Closed(ctx context.Context, sessionID string, relayed int64, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.SessionRecord{}).
		Where("id = ?", sessionID).
		Updates(map[string]any{
			"messages_relayed": relayed,
			"disconnected_at":  at,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to close session record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	return nil
}

// Get retrieves a single session record
func (r *SessionRepositoryImpl) Get(ctx context.Context, sessionID string) (*models.SessionRecord, error) {
	var record models.SessionRecord

	err := r.db.WithContext(ctx).First(&record, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session record: %w", err)
	}

	return &record, nil
}

// ListByRoom returns the sessions that were bound to a room, newest first
func (r *SessionRepositoryImpl) ListByRoom(ctx context.Context, room string, limit int) ([]*models.SessionRecord, error) {
	var records []*models.SessionRecord

	err := r.db.WithContext(ctx).
		Where("room = ?", room).
		Order("connected_at DESC").
		Limit(limit).
		Find(&records).Error

	if err != nil {
		return nil, fmt.Errorf("failed to list session records: %w", err)
	}

	return records, nil
}

// CloseDangling marks every still-open record as closed.
// Called at startup: rows left open belong to a previous process that died.
func (r *SessionRepositoryImpl) CloseDangling(ctx context.Context, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SessionRecord{}).
		Where("disconnected_at IS NULL").
		Update("disconnected_at", at)

	if result.Error != nil {
		return 0, fmt.Errorf("failed to close dangling session records: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// DeleteClosedBefore removes closed records older than cutoff
// Call periodically to prevent unbounded growth
func (r *SessionRepositoryImpl) DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("disconnected_at IS NOT NULL AND disconnected_at < ?", cutoff).
		Delete(&models.SessionRecord{})

	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete old session records: %w", result.Error)
	}

	return result.RowsAffected, nil
}
