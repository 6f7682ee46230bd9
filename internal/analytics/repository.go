// Package analytics stores engagement metrics per live session.
// Peak viewers and highlight counts are written while the session runs;
// the worker fills in the remaining counters after it ends.
package analytics

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazaar-live/backend/internal/models"
)

// Repository handles session stats persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an analytics repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns the stats row for a session, or nil if none exists yet.
func (r *Repository) Get(ctx context.Context, sessionID uuid.UUID) (*models.SessionStats, error) {
	const q = `SELECT id, session_id, peak_viewers, unique_viewers, total_watch_seconds, messages_count, highlights_count, created_at, updated_at
		FROM session_stats WHERE session_id = $1`
	var s models.SessionStats
	err := r.pool.QueryRow(ctx, q, sessionID).Scan(&s.ID, &s.SessionID, &s.PeakViewers, &s.UniqueViewers,
		&s.TotalWatchSeconds, &s.MessagesCount, &s.HighlightsCount, &s.CreatedAt, &s.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdatePeakViewers raises peak_viewers if the current count exceeds it.
func (r *Repository) UpdatePeakViewers(ctx context.Context, sessionID uuid.UUID, current int) error {
	const q = `INSERT INTO session_stats (session_id, peak_viewers) VALUES ($1, $2)
		ON CONFLICT (session_id) DO UPDATE
		SET peak_viewers = GREATEST(session_stats.peak_viewers, EXCLUDED.peak_viewers), updated_at = NOW()`
	_, err := r.pool.Exec(ctx, q, sessionID, current)
	return err
}

// IncrementHighlights bumps highlights_count by one.
func (r *Repository) IncrementHighlights(ctx context.Context, sessionID uuid.UUID) error {
	const q = `INSERT INTO session_stats (session_id, highlights_count) VALUES ($1, 1)
		ON CONFLICT (session_id) DO UPDATE
		SET highlights_count = session_stats.highlights_count + 1, updated_at = NOW()`
	_, err := r.pool.Exec(ctx, q, sessionID)
	return err
}

// SetRollup writes the post-session counters computed by the worker.
func (r *Repository) SetRollup(ctx context.Context, sessionID uuid.UUID, uniqueViewers int, watchSeconds int64, messages int) error {
	const q = `INSERT INTO session_stats (session_id, unique_viewers, total_watch_seconds, messages_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO UPDATE
		SET unique_viewers = EXCLUDED.unique_viewers,
		    total_watch_seconds = EXCLUDED.total_watch_seconds,
		    messages_count = EXCLUDED.messages_count,
		    updated_at = NOW()`
	_, err := r.pool.Exec(ctx, q, sessionID, uniqueViewers, watchSeconds, messages)
	return err
}
