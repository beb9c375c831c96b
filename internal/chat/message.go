// Package chat implements the conversation session between a reader and the
// crisis assistant. A session owns the full user-visible transcript, a
// bounded history window sent to the reasoning backend for continuity, and
// the crisis context both are built from. Every turn produces a well-formed
// agent message, degrading to templated copy when the backend fails.
package chat

import (
	"time"

	"github.com/google/uuid"

	"github.com/reliefmatch/reliefmatch/internal/reasoning"
)

// Transcript roles.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Message is one turn in the user-visible transcript. Messages are created
// immutable and appended in call order; the transcript is never trimmed.
type Message struct {
	ID           string             `json:"id"`
	Role         string             `json:"role"`
	Content      string             `json:"content"`
	Timestamp    time.Time          `json:"timestamp"`
	QuickReplies []string           `json:"quickReplies"`
	Sources      []reasoning.Source `json:"sources"`
}

func newMessage(role, content string, quickReplies []string, sources []reasoning.Source) *Message {
	if quickReplies == nil {
		quickReplies = []string{}
	}
	if sources == nil {
		sources = []reasoning.Source{}
	}
	return &Message{
		ID:           uuid.NewString(),
		Role:         role,
		Content:      content,
		Timestamp:    time.Now().UTC(),
		QuickReplies: quickReplies,
		Sources:      sources,
	}
}
