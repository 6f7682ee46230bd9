package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionState is the lifecycle state of a live-shopping broadcast.
type SessionState string

const (
	SessionScheduled SessionState = "scheduled"
	SessionLive      SessionState = "live"
	SessionEnded     SessionState = "ended" // terminal
)

// LiveSession represents one live-shopping broadcast and its metadata.
// StartedAt is set iff state is live or ended; EndedAt is set iff state is ended.
type LiveSession struct {
	ID                   uuid.UUID    `json:"id"`
	HostID               uuid.UUID    `json:"host_id"`
	Title                string       `json:"title"`
	State                SessionState `json:"state"`
	ScheduledAt          *time.Time   `json:"scheduled_at,omitempty"`
	StartedAt            *time.Time   `json:"started_at,omitempty"`
	EndedAt              *time.Time   `json:"ended_at,omitempty"`
	AllowChat            bool         `json:"allow_chat"`
	IsPublic             bool         `json:"is_public"`
	HighlightedProductID *uuid.UUID   `json:"highlighted_product_id,omitempty"`
	Catalog              []uuid.UUID  `json:"catalog"` // ordered product IDs presented in this session
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

// InCatalog reports whether productID is part of the session's catalog.
func (s *LiveSession) InCatalog(productID uuid.UUID) bool {
	for _, id := range s.Catalog {
		if id == productID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers never share the coordinator's mutable state.
func (s *LiveSession) Clone() *LiveSession {
	c := *s
	if s.ScheduledAt != nil {
		t := *s.ScheduledAt
		c.ScheduledAt = &t
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	if s.HighlightedProductID != nil {
		id := *s.HighlightedProductID
		c.HighlightedProductID = &id
	}
	c.Catalog = append([]uuid.UUID(nil), s.Catalog...)
	return &c
}
