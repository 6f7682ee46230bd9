package models

import (
	"time"

	"github.com/google/uuid"
)

// ParticipantRole distinguishes the broadcasting host from the audience.
type ParticipantRole string

const (
	ParticipantHost     ParticipantRole = "host"
	ParticipantAudience ParticipantRole = "audience"
)

// Participant is a user currently or formerly attached to a live session.
// At most one row per (session, user) has LeftAt unset. Rows are never
// deleted; they feed watch-time analytics after the session ends.
type Participant struct {
	ID        uuid.UUID       `json:"id"`
	SessionID uuid.UUID       `json:"session_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Role      ParticipantRole `json:"role"`
	JoinedAt  time.Time       `json:"joined_at"`
	LeftAt    *time.Time      `json:"left_at,omitempty"`
}

// Active reports whether the participant is currently joined.
func (p *Participant) Active() bool { return p.LeftAt == nil }
