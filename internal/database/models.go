package database

import (
	"time"
)

// MessageRecord is the persisted form of a transcript message. Quick replies
// and sources are stored as JSON text columns.
type MessageRecord struct {
	ID        string    `db:"id"`
	CreatedAt time.Time `db:"created_at"`

	SessionID    string    `db:"session_id"`
	Role         string    `db:"role"`
	Content      string    `db:"content"`
	Timestamp    time.Time `db:"timestamp"`
	QuickReplies string    `db:"quick_replies"`
	Sources      string    `db:"sources"`
}
