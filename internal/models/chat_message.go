package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is one chat entry within a live session. Messages are
// append-only and totally ordered by (CreatedAt, ID).
type ChatMessage struct {
	ID                uuid.UUID `json:"id"`
	SessionID         uuid.UUID `json:"session_id"`
	SenderID          uuid.UUID `json:"sender_id"`
	SenderDisplayName string    `json:"sender_display_name"`
	Content           string    `json:"content"`
	CreatedAt         time.Time `json:"created_at"`
}

// Before reports whether m sorts before other under the (CreatedAt, ID) order.
func (m *ChatMessage) Before(other *ChatMessage) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID.String() < other.ID.String()
}
