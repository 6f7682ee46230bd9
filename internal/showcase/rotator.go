// Package showcase auto-rotates the highlighted product during a live
// session: a per-session ticker walks the session's catalog and applies
// each product through the coordinator, so rotation obeys the same
// host/state/catalog rules as a manual highlight.
package showcase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bazaar-live/backend/internal/livesession"
	"github.com/bazaar-live/backend/internal/models"
)

// Highlighter is the coordinator surface the rotator drives.
type Highlighter interface {
	GetSession(ctx context.Context, sessionID uuid.UUID) (*models.LiveSession, error)
	HighlightProduct(ctx context.Context, sessionID, hostID, productID uuid.UUID) (*models.LiveSession, error)
}

// Rotator runs highlight rotation for a single session.
type Rotator struct {
	sessionID uuid.UUID
	hostID    uuid.UUID
	coord     Highlighter
	logger    *zap.Logger
	interval  time.Duration
	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewRotator creates a highlight rotator. hostID is the host the rotation
// acts as; the coordinator rejects it if that user is not the host.
func NewRotator(sessionID, hostID uuid.UUID, coord Highlighter, intervalSec int, logger *zap.Logger) *Rotator {
	if intervalSec <= 0 {
		intervalSec = 30
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rotator{
		sessionID: sessionID,
		hostID:    hostID,
		coord:     coord,
		logger:    logger,
		interval:  time.Duration(intervalSec) * time.Second,
		done:      make(chan struct{}),
	}
}

// Start begins the rotation loop. Call Stop() to release resources.
func (r *Rotator) Start() {
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.mu.Unlock()

	go r.run(ctx)
	r.logger.Info("highlight rotator started", zap.String("session_id", r.sessionID.String()), zap.Duration("interval", r.interval))
}

// Stop stops the rotation and releases resources.
func (r *Rotator) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.cancel = nil
	<-r.done
	r.logger.Info("highlight rotator stopped", zap.String("session_id", r.sessionID.String()))
}

func (r *Rotator) run(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var (
		catalog []uuid.UUID
		index   int
	)
	load := func() bool {
		s, err := r.coord.GetSession(ctx, r.sessionID)
		if err != nil {
			r.logger.Warn("highlight rotator load failed", zap.Error(err), zap.String("session_id", r.sessionID.String()))
			return !errors.Is(err, livesession.ErrNotFound)
		}
		if s.State != models.SessionLive {
			return false
		}
		catalog = s.Catalog
		index = 0
		return true
	}
	if !load() {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if len(catalog) == 0 {
				if !load() {
					return
				}
				continue
			}
			cur := catalog[index%len(catalog)]
			index++
			_, err := r.coord.HighlightProduct(ctx, r.sessionID, r.hostID, cur)
			if errors.Is(err, livesession.ErrInvalidState) || errors.Is(err, livesession.ErrNotFound) {
				// session ended; shut down quietly
				return
			}
			if err != nil {
				r.logger.Warn("highlight rotation failed", zap.Error(err),
					zap.String("session_id", r.sessionID.String()), zap.String("product_id", cur.String()))
			}
		}
	}
}
