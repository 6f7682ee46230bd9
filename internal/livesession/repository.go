package livesession

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazaar-live/backend/internal/models"
)

// Repository is the PostgreSQL PersistenceGateway.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a live-session repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const sessionUpsertSQL = `INSERT INTO live_sessions (id, host_id, title, state, scheduled_at, started_at, ended_at, allow_chat, is_public, highlighted_product_id, catalog, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (id) DO UPDATE SET
		state = EXCLUDED.state,
		scheduled_at = EXCLUDED.scheduled_at,
		started_at = EXCLUDED.started_at,
		ended_at = EXCLUDED.ended_at,
		highlighted_product_id = EXCLUDED.highlighted_product_id,
		catalog = EXCLUDED.catalog,
		updated_at = EXCLUDED.updated_at`

func sessionUpsertArgs(s *models.LiveSession) []any {
	return []any{
		s.ID, s.HostID, s.Title, s.State, s.ScheduledAt, s.StartedAt, s.EndedAt,
		s.AllowChat, s.IsPublic, s.HighlightedProductID, s.Catalog, s.CreatedAt, s.UpdatedAt,
	}
}

// SaveSession inserts or fully updates a session row.
func (r *Repository) SaveSession(ctx context.Context, s *models.LiveSession) error {
	_, err := r.pool.Exec(ctx, sessionUpsertSQL, sessionUpsertArgs(s)...)
	return err
}

// LoadSession returns a session by ID, or nil when absent.
func (r *Repository) LoadSession(ctx context.Context, id uuid.UUID) (*models.LiveSession, error) {
	const q = `SELECT id, host_id, title, state, scheduled_at, started_at, ended_at, allow_chat, is_public, highlighted_product_id, catalog, created_at, updated_at
		FROM live_sessions WHERE id = $1`
	var s models.LiveSession
	err := r.pool.QueryRow(ctx, q, id).Scan(&s.ID, &s.HostID, &s.Title, &s.State,
		&s.ScheduledAt, &s.StartedAt, &s.EndedAt, &s.AllowChat, &s.IsPublic,
		&s.HighlightedProductID, &s.Catalog, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// ListPublic returns public sessions that are scheduled or live, soonest
// first, for the storefront listing.
func (r *Repository) ListPublic(ctx context.Context, limit int) ([]models.LiveSession, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	const q = `SELECT id, host_id, title, state, scheduled_at, started_at, ended_at, allow_chat, is_public, highlighted_product_id, catalog, created_at, updated_at
		FROM live_sessions
		WHERE is_public AND state IN ('scheduled', 'live')
		ORDER BY state DESC, COALESCE(scheduled_at, started_at) ASC
		LIMIT $1`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.LiveSession
	for rows.Next() {
		var s models.LiveSession
		if err := rows.Scan(&s.ID, &s.HostID, &s.Title, &s.State, &s.ScheduledAt,
			&s.StartedAt, &s.EndedAt, &s.AllowChat, &s.IsPublic,
			&s.HighlightedProductID, &s.Catalog, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// UpsertParticipant reopens the open row for (session, user) or inserts a
// new one. The partial unique index on open rows makes double-joins safe.
func (r *Repository) UpsertParticipant(ctx context.Context, p *models.Participant) error {
	const q = `INSERT INTO participants (id, session_id, user_id, role, joined_at)
		SELECT $1, $2, $3, $4, $5
		WHERE NOT EXISTS (
			SELECT 1 FROM participants WHERE session_id = $2 AND user_id = $3 AND left_at IS NULL
		)`
	_, err := r.pool.Exec(ctx, q, p.ID, p.SessionID, p.UserID, p.Role, p.JoinedAt)
	return err
}

// ActiveParticipant returns the open participant row, or nil.
func (r *Repository) ActiveParticipant(ctx context.Context, sessionID, userID uuid.UUID) (*models.Participant, error) {
	const q = `SELECT id, session_id, user_id, role, joined_at, left_at
		FROM participants WHERE session_id = $1 AND user_id = $2 AND left_at IS NULL`
	var p models.Participant
	err := r.pool.QueryRow(ctx, q, sessionID, userID).Scan(&p.ID, &p.SessionID, &p.UserID, &p.Role, &p.JoinedAt, &p.LeftAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// MarkLeft closes the open participant row for (session, user), if any.
func (r *Repository) MarkLeft(ctx context.Context, sessionID, userID uuid.UUID, at time.Time) error {
	const q = `UPDATE participants SET left_at = $3 WHERE session_id = $1 AND user_id = $2 AND left_at IS NULL`
	_, err := r.pool.Exec(ctx, q, sessionID, userID, at)
	return err
}

// CloseSession writes the ended session and closes every open participant
// row in a single transaction, so a failure cannot leave an ended session
// with a live roster (or the other way around).
func (r *Repository) CloseSession(ctx context.Context, s *models.LiveSession, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, sessionUpsertSQL, sessionUpsertArgs(s)...); err != nil {
		return err
	}
	const q = `UPDATE participants SET left_at = $2 WHERE session_id = $1 AND left_at IS NULL`
	if _, err := tx.Exec(ctx, q, s.ID, at); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CountActive counts open participant rows with the given role.
func (r *Repository) CountActive(ctx context.Context, sessionID uuid.UUID, role models.ParticipantRole) (int, error) {
	const q = `SELECT COUNT(*) FROM participants WHERE session_id = $1 AND role = $2 AND left_at IS NULL`
	var n int
	err := r.pool.QueryRow(ctx, q, sessionID, role).Scan(&n)
	return n, err
}

// ParticipantAggregates holds roster rollups for a finished session.
type ParticipantAggregates struct {
	UniqueViewers     int
	TotalWatchSeconds int64
}

// GetParticipantAggregates returns distinct audience count and summed watch
// time for closed participant rows.
func (r *Repository) GetParticipantAggregates(ctx context.Context, sessionID uuid.UUID) (*ParticipantAggregates, error) {
	const q = `SELECT COUNT(DISTINCT user_id),
		COALESCE(SUM(GREATEST(0, EXTRACT(EPOCH FROM (left_at - joined_at))::BIGINT)), 0)
		FROM participants WHERE session_id = $1 AND role = 'audience' AND left_at IS NOT NULL`
	var a ParticipantAggregates
	if err := r.pool.QueryRow(ctx, q, sessionID).Scan(&a.UniqueViewers, &a.TotalWatchSeconds); err != nil {
		return nil, err
	}
	return &a, nil
}

// AppendChatMessage inserts a chat message. Messages are append-only.
func (r *Repository) AppendChatMessage(ctx context.Context, m *models.ChatMessage) error {
	const q = `INSERT INTO chat_messages (id, session_id, sender_id, sender_display_name, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, q, m.ID, m.SessionID, m.SenderID, m.SenderDisplayName, m.Content, m.CreatedAt)
	return err
}

// ListChatMessages returns messages in (created_at, id) order, optionally
// only those created before the cursor.
func (r *Repository) ListChatMessages(ctx context.Context, sessionID uuid.UUID, limit int, before *time.Time) ([]models.ChatMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const base = `SELECT id, session_id, sender_id, sender_display_name, content, created_at
		FROM chat_messages WHERE session_id = $1`
	var rows pgx.Rows
	var err error
	if before != nil {
		rows, err = r.pool.Query(ctx, base+` AND created_at < $2 ORDER BY created_at, id LIMIT $3`, sessionID, *before, limit)
	} else {
		rows, err = r.pool.Query(ctx, base+` ORDER BY created_at, id LIMIT $2`, sessionID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.SenderID, &m.SenderDisplayName, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// ListChatMessagesAfter pages forward through the transcript: messages
// strictly after the (created_at, id) cursor, oldest first. Used by the
// export worker to walk the full history in broadcast order.
func (r *Repository) ListChatMessagesAfter(ctx context.Context, sessionID uuid.UUID, limit int, afterAt time.Time, afterID uuid.UUID) ([]models.ChatMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const q = `SELECT id, session_id, sender_id, sender_display_name, content, created_at
		FROM chat_messages WHERE session_id = $1 AND (created_at, id) > ($2, $3)
		ORDER BY created_at, id LIMIT $4`
	rows, err := r.pool.Query(ctx, q, sessionID, afterAt, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.SenderID, &m.SenderDisplayName, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// CountChatMessages returns the message count for a session (stats rollup).
func (r *Repository) CountChatMessages(ctx context.Context, sessionID uuid.UUID) (int, error) {
	const q = `SELECT COUNT(*) FROM chat_messages WHERE session_id = $1`
	var n int
	err := r.pool.QueryRow(ctx, q, sessionID).Scan(&n)
	return n, err
}
