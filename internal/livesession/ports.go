package livesession

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bazaar-live/backend/internal/models"
)

// PersistenceGateway is the durable storage capability the coordinator
// depends on. The pgx implementation lives in repository.go; tests use an
// in-memory fake.
type PersistenceGateway interface {
	SaveSession(ctx context.Context, s *models.LiveSession) error
	LoadSession(ctx context.Context, id uuid.UUID) (*models.LiveSession, error)

	// UpsertParticipant reopens the (session, user) participant row if one
	// exists, otherwise inserts it. At most one row per pair has left_at unset.
	UpsertParticipant(ctx context.Context, p *models.Participant) error
	// ActiveParticipant returns the open participant row for (session, user),
	// or nil when the user is not currently joined.
	ActiveParticipant(ctx context.Context, sessionID, userID uuid.UUID) (*models.Participant, error)
	// MarkLeft closes the open participant row, if any. Closing an already
	// closed (or absent) row is a no-op.
	MarkLeft(ctx context.Context, sessionID, userID uuid.UUID, at time.Time) error
	// CloseSession persists the terminal session state and closes every open
	// participant row in one transaction: either both land or neither does.
	CloseSession(ctx context.Context, s *models.LiveSession, at time.Time) error
	// CountActive counts open participant rows with the given role.
	CountActive(ctx context.Context, sessionID uuid.UUID, role models.ParticipantRole) (int, error)

	AppendChatMessage(ctx context.Context, m *models.ChatMessage) error
	ListChatMessages(ctx context.Context, sessionID uuid.UUID, limit int, before *time.Time) ([]models.ChatMessage, error)
}

// MediaTransport is the external real-time audio/video capability. The
// actual media plumbing (codecs, network resilience) is the SDK's problem;
// the coordinator only opens/closes channels and mints access tokens.
type MediaTransport interface {
	OpenChannel(ctx context.Context, sessionID uuid.UUID) error
	CloseChannel(ctx context.Context, sessionID uuid.UUID) error
	AccessToken(ctx context.Context, sessionID, userID uuid.UUID, role models.ParticipantRole) (string, error)
}

// Notifier receives session events for fan-out to connected viewers. The
// websocket hub implements it; the coordinator never talks to sockets
// directly.
type Notifier interface {
	NotifySession(sessionID uuid.UUID, event string, payload any)
}

// nopNotifier is used when no hub is wired (worker, tests).
type nopNotifier struct{}

func (nopNotifier) NotifySession(uuid.UUID, string, any) {}
