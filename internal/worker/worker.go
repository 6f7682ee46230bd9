// Package worker runs post-session jobs: rolling engagement counters into
// the stats row and exporting the chat transcript to S3. Jobs are enqueued
// when a session ends and consumed from a Redis list with retry and DLQ.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bazaar-live/backend/internal/analytics"
	"github.com/bazaar-live/backend/internal/livesession"
	"github.com/bazaar-live/backend/internal/models"
	"github.com/bazaar-live/backend/pkg/queue"
	"github.com/bazaar-live/backend/pkg/storage"
)

// chatExportBatch is the page size when reading the transcript.
const chatExportBatch = 500

// Processor processes session post-processing jobs.
type Processor struct {
	sessions *livesession.Repository
	stats    *analytics.Repository
	s3       *storage.S3
	queue    *queue.Queue
	logger   *zap.Logger
}

// NewProcessor creates a session job processor. s3 may be nil; chat export
// jobs then fail and retry until configured.
func NewProcessor(sessions *livesession.Repository, stats *analytics.Repository, s3 *storage.S3, q *queue.Queue, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{sessions: sessions, stats: stats, s3: s3, queue: q, logger: logger}
}

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	var payload queue.SessionJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	switch job.Type {
	case queue.JobTypeStatsRollup:
		return p.rollupStats(ctx, payload)
	case queue.JobTypeChatExport:
		return p.exportChat(ctx, payload)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (p *Processor) rollupStats(ctx context.Context, payload queue.SessionJobPayload) error {
	agg, err := p.sessions.GetParticipantAggregates(ctx, payload.SessionID)
	if err != nil {
		return fmt.Errorf("participant aggregates: %w", err)
	}
	messages, err := p.sessions.CountChatMessages(ctx, payload.SessionID)
	if err != nil {
		return fmt.Errorf("count chat messages: %w", err)
	}
	if err := p.stats.SetRollup(ctx, payload.SessionID, agg.UniqueViewers, agg.TotalWatchSeconds, messages); err != nil {
		return fmt.Errorf("set rollup: %w", err)
	}
	p.logger.Info("session stats rolled up",
		zap.String("session_id", payload.SessionID.String()),
		zap.Int("unique_viewers", agg.UniqueViewers),
		zap.Int("messages", messages))
	return nil
}

// chatExport is the transcript document written to S3.
type chatExport struct {
	SessionID  string               `json:"session_id"`
	ExportedAt time.Time            `json:"exported_at"`
	Messages   []models.ChatMessage `json:"messages"`
}

func (p *Processor) exportChat(ctx context.Context, payload queue.SessionJobPayload) error {
	if p.s3 == nil {
		return fmt.Errorf("export storage not configured")
	}

	// Walk the transcript oldest-first with a (created_at, id) cursor.
	var (
		all     []models.ChatMessage
		afterAt time.Time
		afterID uuid.UUID
	)
	for {
		page, err := p.sessions.ListChatMessagesAfter(ctx, payload.SessionID, chatExportBatch, afterAt, afterID)
		if err != nil {
			return fmt.Errorf("list chat messages: %w", err)
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		last := page[len(page)-1]
		afterAt, afterID = last.CreatedAt, last.ID
		if len(page) < chatExportBatch {
			break
		}
	}

	doc := chatExport{
		SessionID:  payload.SessionID.String(),
		ExportedAt: time.Now().UTC(),
		Messages:   all,
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}

	key := storage.ChatExportKey(payload.SessionID.String())
	if _, err := p.s3.Upload(ctx, p.s3.ExportsBucket(), key, "application/json", bytes.NewReader(body), int64(len(body)), false); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	p.logger.Info("chat transcript exported",
		zap.String("session_id", payload.SessionID.String()),
		zap.String("s3_key", key),
		zap.Int("messages", len(all)))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("session worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
