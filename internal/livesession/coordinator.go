package livesession

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bazaar-live/backend/internal/models"
)

const (
	// MaxChatContentLen caps chat message length after trimming.
	MaxChatContentLen = 2000

	// Broadcast event names, consumed by the websocket hub.
	EventSessionStarted     = "session_started"
	EventSessionEnded       = "session_ended"
	EventChatMessage        = "chat_message"
	EventProductHighlighted = "product_highlighted"
	EventHighlightCleared   = "highlight_cleared"
	EventViewerCount        = "viewer_count"
)

// HighlightHook is called after a product highlight is committed (e.g. for
// per-session highlight counters). It runs outside the session lock.
type HighlightHook func(sessionID, productID uuid.UUID)

// EndHook is called after a session end is committed (e.g. to enqueue
// post-session jobs or stop rotation). It runs outside the session lock,
// so it may block on work that calls back into the coordinator.
type EndHook func(sessionID uuid.UUID)

// JoinResult is returned by JoinSession: the session snapshot plus a media
// access token scoped to (session, user, role).
type JoinResult struct {
	Session          *models.LiveSession `json:"session"`
	ParticipantToken string              `json:"participant_token"`
	Role             models.ParticipantRole `json:"role"`
}

// Coordinator enforces session state transitions, participant admission,
// chat admission and ordering, and highlight signalling. All mutating
// operations on one session are serialized by a per-session mutex held
// across the persistence and transport calls; operations on different
// sessions run in parallel.
type Coordinator struct {
	store       PersistenceGateway
	media       MediaTransport
	notifier    Notifier
	locks       *keyedMutex
	logger      *zap.Logger
	onHighlight HighlightHook
	onEnd       EndHook
}

// NewCoordinator creates a live-session coordinator. notifier may be nil.
func NewCoordinator(store PersistenceGateway, media MediaTransport, notifier Notifier, logger *zap.Logger) *Coordinator {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:    store,
		media:    media,
		notifier: notifier,
		locks:    newKeyedMutex(),
		logger:   logger,
	}
}

// SetHighlightHook sets the callback invoked after each committed highlight.
func (c *Coordinator) SetHighlightHook(fn HighlightHook) { c.onHighlight = fn }

// SetEndHook sets the callback invoked after each committed session end.
func (c *Coordinator) SetEndHook(fn EndHook) { c.onEnd = fn }

// CreateParams are the inputs for CreateSession.
type CreateParams struct {
	HostID      uuid.UUID
	Title       string
	Catalog     []uuid.UUID
	ScheduledAt *time.Time // nil means go live now
	AllowChat   bool
	IsPublic    bool
}

// CreateSession creates a new session. With ScheduledAt set it is created
// in the scheduled state; without, the session goes live immediately and
// the media channel is opened for the host. If opening the channel fails
// the session is left in the scheduled state (scheduled for now) so the
// host can retry with StartSession.
func (c *Coordinator) CreateSession(ctx context.Context, p CreateParams) (*models.LiveSession, error) {
	if p.HostID == uuid.Nil {
		return nil, fmt.Errorf("%w: host id required", ErrValidation)
	}
	now := time.Now().UTC()
	if p.ScheduledAt != nil && !p.ScheduledAt.After(now) {
		return nil, ErrInvalidSchedule
	}

	s := &models.LiveSession{
		ID:        uuid.New(),
		HostID:    p.HostID,
		Title:     strings.TrimSpace(p.Title),
		AllowChat: p.AllowChat,
		IsPublic:  p.IsPublic,
		Catalog:   append([]uuid.UUID(nil), p.Catalog...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p.ScheduledAt != nil {
		t := p.ScheduledAt.UTC()
		s.State = models.SessionScheduled
		s.ScheduledAt = &t
	} else {
		s.State = models.SessionLive
		s.StartedAt = &now
	}

	if err := c.store.SaveSession(ctx, s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if s.State == models.SessionLive {
		if err := c.attachHost(ctx, s, now); err != nil {
			return nil, err
		}
	}
	c.logger.Info("session created",
		zap.String("session_id", s.ID.String()),
		zap.String("host_id", p.HostID.String()),
		zap.String("state", string(s.State)))
	return s.Clone(), nil
}

// StartSession transitions a scheduled session to live. Host only. Opens
// the media channel; on transport failure the state change is compensated
// back to scheduled and ErrMediaTransport is returned.
func (c *Coordinator) StartSession(ctx context.Context, sessionID, hostID uuid.UUID) (*models.LiveSession, error) {
	unlock := c.locks.Lock(sessionID)
	defer unlock()

	s, err := c.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.HostID != hostID {
		return nil, ErrForbidden
	}
	if s.State != models.SessionScheduled {
		return nil, fmt.Errorf("%w: cannot start a %s session", ErrInvalidState, s.State)
	}

	now := time.Now().UTC()
	prevScheduledAt := s.ScheduledAt
	s.State = models.SessionLive
	s.StartedAt = &now
	s.ScheduledAt = nil
	s.UpdatedAt = now
	if err := c.store.SaveSession(ctx, s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := c.attachHost(ctx, s, now); err != nil {
		// attachHost already rolled back; restore the original schedule.
		s.ScheduledAt = prevScheduledAt
		_ = c.store.SaveSession(ctx, s)
		return nil, err
	}

	c.notifier.NotifySession(sessionID, EventSessionStarted, s.Clone())
	c.logger.Info("session started", zap.String("session_id", sessionID.String()))
	return s.Clone(), nil
}

// attachHost registers the host participant and opens the media channel
// for an already-persisted live session. On failure it compensates: the
// session is persisted back to scheduled (scheduled for now) and the host
// row is closed.
func (c *Coordinator) attachHost(ctx context.Context, s *models.LiveSession, now time.Time) error {
	host := &models.Participant{
		ID:        uuid.New(),
		SessionID: s.ID,
		UserID:    s.HostID,
		Role:      models.ParticipantHost,
		JoinedAt:  now,
	}
	if err := c.store.UpsertParticipant(ctx, host); err != nil {
		c.rollbackToScheduled(ctx, s, now)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := c.media.OpenChannel(ctx, s.ID); err != nil {
		_ = c.store.MarkLeft(ctx, s.ID, s.HostID, now)
		c.rollbackToScheduled(ctx, s, now)
		c.logger.Warn("open channel failed, session rolled back",
			zap.String("session_id", s.ID.String()), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrMediaTransport, err)
	}
	return nil
}

func (c *Coordinator) rollbackToScheduled(ctx context.Context, s *models.LiveSession, now time.Time) {
	s.State = models.SessionScheduled
	s.StartedAt = nil
	if s.ScheduledAt == nil {
		t := now
		s.ScheduledAt = &t
	}
	s.UpdatedAt = now
	if err := c.store.SaveSession(ctx, s); err != nil {
		c.logger.Error("compensating rollback failed", zap.String("session_id", s.ID.String()), zap.Error(err))
	}
}

// EndSession transitions a live session to the terminal ended state. Host
// only. The state change and the roster close are committed together, then
// the media channel is closed. A channel-close failure is logged but never
// un-ends the session. The ended broadcast and the end hook fire after the
// session lock is released, so the hook may wait on goroutines that need
// the lock themselves (a rotation loop mid-highlight, for example).
func (c *Coordinator) EndSession(ctx context.Context, sessionID, hostID uuid.UUID) (*models.LiveSession, error) {
	s, err := c.endLocked(ctx, sessionID, hostID)
	if err != nil {
		return nil, err
	}
	c.notifier.NotifySession(sessionID, EventSessionEnded, s.Clone())
	if c.onEnd != nil {
		c.onEnd(sessionID)
	}
	c.logger.Info("session ended", zap.String("session_id", sessionID.String()))
	return s, nil
}

func (c *Coordinator) endLocked(ctx context.Context, sessionID, hostID uuid.UUID) (*models.LiveSession, error) {
	unlock := c.locks.Lock(sessionID)
	defer unlock()

	s, err := c.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.HostID != hostID {
		return nil, ErrForbidden
	}
	if s.State != models.SessionLive {
		return nil, fmt.Errorf("%w: cannot end a %s session", ErrInvalidState, s.State)
	}

	now := time.Now().UTC()
	s.State = models.SessionEnded
	s.EndedAt = &now
	s.HighlightedProductID = nil
	s.UpdatedAt = now
	if err := c.store.CloseSession(ctx, s, now); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := c.media.CloseChannel(ctx, sessionID); err != nil {
		c.logger.Warn("close channel failed", zap.String("session_id", sessionID.String()), zap.Error(err))
	}
	return s, nil
}

// JoinSession attaches a viewer to a scheduled (pre-lobby) or live session
// and returns a media access token. Re-joining while already joined is a
// no-op that mints a fresh token for the same open participant row.
func (c *Coordinator) JoinSession(ctx context.Context, sessionID, userID uuid.UUID) (*JoinResult, error) {
	unlock := c.locks.Lock(sessionID)
	defer unlock()

	s, err := c.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.State == models.SessionEnded {
		return nil, fmt.Errorf("%w: session has ended", ErrInvalidState)
	}

	role := models.ParticipantAudience
	if userID == s.HostID {
		role = models.ParticipantHost
	}

	existing, err := c.store.ActiveParticipant(ctx, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	now := time.Now().UTC()
	if existing == nil {
		p := &models.Participant{
			ID:        uuid.New(),
			SessionID: sessionID,
			UserID:    userID,
			Role:      role,
			JoinedAt:  now,
		}
		if err := c.store.UpsertParticipant(ctx, p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	} else {
		role = existing.Role
	}

	token, err := c.media.AccessToken(ctx, sessionID, userID, role)
	if err != nil {
		if existing == nil {
			// Compensate the roster change so a failed join has no effect.
			_ = c.store.MarkLeft(ctx, sessionID, userID, now)
		}
		return nil, fmt.Errorf("%w: %v", ErrMediaTransport, err)
	}

	if existing == nil {
		c.broadcastViewerCount(ctx, sessionID)
	}
	return &JoinResult{Session: s.Clone(), ParticipantToken: token, Role: role}, nil
}

// LeaveSession detaches a viewer. Leaving twice, or leaving without having
// joined, is a safe no-op.
func (c *Coordinator) LeaveSession(ctx context.Context, sessionID, userID uuid.UUID) error {
	unlock := c.locks.Lock(sessionID)
	defer unlock()

	if _, err := c.load(ctx, sessionID); err != nil {
		return err
	}
	if err := c.store.MarkLeft(ctx, sessionID, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.broadcastViewerCount(ctx, sessionID)
	return nil
}

// PostChatMessage validates and appends a chat message. Admission is
// serialized per session, so messages observed by any reader appear in
// non-decreasing (created_at, id) order.
func (c *Coordinator) PostChatMessage(ctx context.Context, sessionID, senderID uuid.UUID, senderName, content string) (*models.ChatMessage, error) {
	unlock := c.locks.Lock(sessionID)
	defer unlock()

	s, err := c.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.State == models.SessionEnded {
		return nil, fmt.Errorf("%w: session has ended", ErrInvalidState)
	}
	if !s.AllowChat {
		return nil, ErrChatDisabled
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: empty message", ErrValidation)
	}
	if len(content) > MaxChatContentLen {
		return nil, fmt.Errorf("%w: message exceeds %d characters", ErrValidation, MaxChatContentLen)
	}

	if senderID != s.HostID {
		p, err := c.store.ActiveParticipant(ctx, sessionID, senderID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if p == nil {
			return nil, fmt.Errorf("%w: sender is not a participant", ErrForbidden)
		}
	}

	// Time-ordered IDs break created_at ties in admission order, so readers
	// see one total (created_at, id) order per session.
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	m := &models.ChatMessage{
		ID:                id,
		SessionID:         sessionID,
		SenderID:          senderID,
		SenderDisplayName: senderName,
		Content:           content,
		CreatedAt:         time.Now().UTC(),
	}
	if err := c.store.AppendChatMessage(ctx, m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	c.notifier.NotifySession(sessionID, EventChatMessage, m)
	return m, nil
}

// HighlightProduct sets the single currently-featured product. Host only,
// live sessions only, and the product must belong to the session catalog.
// Replaces any previous highlight (last write wins). The highlight hook
// fires after the session lock is released; the broadcast stays inside so
// viewers observe highlights in commit order.
func (c *Coordinator) HighlightProduct(ctx context.Context, sessionID, hostID, productID uuid.UUID) (*models.LiveSession, error) {
	s, err := c.highlightLocked(ctx, sessionID, hostID, productID)
	if err != nil {
		return nil, err
	}
	if c.onHighlight != nil {
		c.onHighlight(sessionID, productID)
	}
	return s, nil
}

func (c *Coordinator) highlightLocked(ctx context.Context, sessionID, hostID, productID uuid.UUID) (*models.LiveSession, error) {
	unlock := c.locks.Lock(sessionID)
	defer unlock()

	s, err := c.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.HostID != hostID {
		return nil, ErrForbidden
	}
	if s.State != models.SessionLive {
		return nil, fmt.Errorf("%w: session is %s", ErrInvalidState, s.State)
	}
	if !s.InCatalog(productID) {
		return nil, fmt.Errorf("%w: product not in session catalog", ErrValidation)
	}

	id := productID
	s.HighlightedProductID = &id
	s.UpdatedAt = time.Now().UTC()
	if err := c.store.SaveSession(ctx, s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	c.notifier.NotifySession(sessionID, EventProductHighlighted, map[string]any{
		"session_id": sessionID,
		"product_id": productID,
	})
	return s.Clone(), nil
}

// ClearHighlight removes the current highlight, if any. Host only, live
// sessions only. The coordinator never auto-expires a highlight; timed
// clearing is the caller's job.
func (c *Coordinator) ClearHighlight(ctx context.Context, sessionID, hostID uuid.UUID) (*models.LiveSession, error) {
	unlock := c.locks.Lock(sessionID)
	defer unlock()

	s, err := c.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.HostID != hostID {
		return nil, ErrForbidden
	}
	if s.State != models.SessionLive {
		return nil, fmt.Errorf("%w: session is %s", ErrInvalidState, s.State)
	}

	s.HighlightedProductID = nil
	s.UpdatedAt = time.Now().UTC()
	if err := c.store.SaveSession(ctx, s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	c.notifier.NotifySession(sessionID, EventHighlightCleared, map[string]any{
		"session_id": sessionID,
	})
	return s.Clone(), nil
}

// GetSession returns a read snapshot of the session.
func (c *Coordinator) GetSession(ctx context.Context, sessionID uuid.UUID) (*models.LiveSession, error) {
	s, err := c.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// GetViewerCount returns the number of currently joined audience
// participants. It is a pure read: on transient storage failure it
// returns zero rather than an error.
func (c *Coordinator) GetViewerCount(ctx context.Context, sessionID uuid.UUID) int {
	n, err := c.store.CountActive(ctx, sessionID, models.ParticipantAudience)
	if err != nil {
		c.logger.Warn("viewer count read failed", zap.String("session_id", sessionID.String()), zap.Error(err))
		return 0
	}
	return n
}

// ListChatMessages returns up to limit messages for the session in
// (created_at, id) order, optionally only those created before the cursor.
func (c *Coordinator) ListChatMessages(ctx context.Context, sessionID uuid.UUID, limit int, before *time.Time) ([]models.ChatMessage, error) {
	if _, err := c.load(ctx, sessionID); err != nil {
		return nil, err
	}
	msgs, err := c.store.ListChatMessages(ctx, sessionID, limit, before)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return msgs, nil
}

func (c *Coordinator) load(ctx context.Context, sessionID uuid.UUID) (*models.LiveSession, error) {
	s, err := c.store.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if s == nil {
		return nil, ErrNotFound
	}
	return s, nil
}

func (c *Coordinator) broadcastViewerCount(ctx context.Context, sessionID uuid.UUID) {
	count, err := c.store.CountActive(ctx, sessionID, models.ParticipantAudience)
	if err != nil {
		return
	}
	c.notifier.NotifySession(sessionID, EventViewerCount, map[string]int{"count": count})
}
