package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStats tracks engagement metrics for one live session.
// PeakViewers is updated live by the realtime hub; the remaining
// counters are rolled up by the worker after the session ends.
type SessionStats struct {
	ID                uuid.UUID `json:"id"`
	SessionID         uuid.UUID `json:"session_id"`
	PeakViewers       int       `json:"peak_viewers"`
	UniqueViewers     int       `json:"unique_viewers"`
	TotalWatchSeconds int64     `json:"total_watch_seconds"`
	MessagesCount     int       `json:"messages_count"`
	HighlightsCount   int       `json:"highlights_count"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
