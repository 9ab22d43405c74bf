package models

import (
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

/*
LEARNING: SESSION AUDIT RECORDS

The relay keeps no message history. What it can record is the life of each
connection: when it opened, which room its first message bound it to, who it
announced itself as, how many messages it relayed and when it closed.
Message payloads are never stored.
*/

// SessionRecord is one relay connection as seen by the audit store
type SessionRecord struct {
	ID              string     `gorm:"type:varchar(27);primaryKey" json:"id"`
	RemoteAddr      string     `gorm:"type:varchar(255)" json:"remote_addr"`
	Room            string     `gorm:"type:varchar(255);index:idx_room_connected" json:"room"`
	UserID          string     `gorm:"type:varchar(64)" json:"user_id"`
	UserName        string     `gorm:"type:varchar(255)" json:"user_name"`
	MessagesRelayed int64      `gorm:"not null;default:0" json:"messages_relayed"`
	ConnectedAt     time.Time  `gorm:"index:idx_room_connected" json:"connected_at"`
	BoundAt         *time.Time `json:"bound_at,omitempty"`
	DisconnectedAt  *time.Time `json:"disconnected_at,omitempty"`
}

// BeforeCreate generates KSUID
func (s *SessionRecord) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = ksuid.New().String()
	}
	return nil
}

// TableName override
func (SessionRecord) TableName() string {
	return "relay_sessions"
}

// Open reports whether the session has not been closed yet
func (s *SessionRecord) Open() bool {
	return s.DisconnectedAt == nil
}
