package database

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/reliefmatch/reliefmatch/internal/chat"
	"github.com/reliefmatch/reliefmatch/internal/reasoning"
)

// Store defines the transcript persistence interface. It satisfies
// chat.TranscriptStore so a session can record messages as they are
// appended.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// SaveMessage inserts one transcript message for a session.
	SaveMessage(ctx context.Context, sessionID string, msg *chat.Message) error

	// GetSessionMessages retrieves a session's transcript in insertion order.
	GetSessionMessages(ctx context.Context, sessionID string) ([]*chat.Message, error)

	// DeleteSessionMessages removes a session's transcript.
	DeleteSessionMessages(ctx context.Context, sessionID string) error

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) SaveMessage(ctx context.Context, sessionID string, msg *chat.Message) error {
	if msg == nil {
		return fmt.Errorf("cannot save nil message")
	}
	if sessionID == "" {
		return fmt.Errorf("message must belong to a session")
	}

	record, err := toRecord(sessionID, msg)
	if err != nil {
		return err
	}
	record.CreatedAt = time.Now().UTC()

	const query = `INSERT INTO messages
		(id, created_at, session_id, role, content, timestamp, quick_replies, sources)
		VALUES (:id, :created_at, :session_id, :role, :content, :timestamp, :quick_replies, :sources)`
	if _, err := s.db.NamedExecContext(ctx, query, record); err != nil {
		s.logger.ErrorContext(ctx, "Failed to save message",
			"session_id", sessionID, "message_id", msg.ID, "error", err)
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

func (s *sqlxStore) GetSessionMessages(ctx context.Context, sessionID string) ([]*chat.Message, error) {
	const query = `SELECT id, created_at, session_id, role, content, timestamp, quick_replies, sources
		FROM messages WHERE session_id = ? ORDER BY timestamp ASC, created_at ASC`

	var records []MessageRecord
	if err := s.db.SelectContext(ctx, &records, query, sessionID); err != nil {
		return nil, fmt.Errorf("failed to load session messages: %w", err)
	}

	messages := make([]*chat.Message, 0, len(records))
	for _, record := range records {
		msg, err := fromRecord(record)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping undecodable message record",
				"session_id", sessionID, "message_id", record.ID, "error", err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *sqlxStore) DeleteSessionMessages(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session messages: %w", err)
	}
	return nil
}

func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}

func toRecord(sessionID string, msg *chat.Message) (*MessageRecord, error) {
	quickReplies, err := json.Marshal(msg.QuickReplies)
	if err != nil {
		return nil, fmt.Errorf("failed to encode quick replies: %w", err)
	}
	sources, err := json.Marshal(msg.Sources)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sources: %w", err)
	}

	return &MessageRecord{
		ID:           msg.ID,
		SessionID:    sessionID,
		Role:         msg.Role,
		Content:      msg.Content,
		Timestamp:    msg.Timestamp,
		QuickReplies: string(quickReplies),
		Sources:      string(sources),
	}, nil
}

func fromRecord(record MessageRecord) (*chat.Message, error) {
	var quickReplies []string
	if err := json.Unmarshal([]byte(record.QuickReplies), &quickReplies); err != nil {
		return nil, fmt.Errorf("failed to decode quick replies: %w", err)
	}
	var sources []reasoning.Source
	if err := json.Unmarshal([]byte(record.Sources), &sources); err != nil {
		return nil, fmt.Errorf("failed to decode sources: %w", err)
	}

	return &chat.Message{
		ID:           record.ID,
		Role:         record.Role,
		Content:      record.Content,
		Timestamp:    record.Timestamp,
		QuickReplies: quickReplies,
		Sources:      sources,
	}, nil
}
