package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"projectstream/internal/model"
	"projectstream/pkg/metrics"
	"projectstream/pkg/outbox"
)

type StreamEventRepository struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
	logger *zap.Logger
}

func NewStreamEventRepository(db *pgxpool.Pool, ob *outbox.Repository, logger *zap.Logger) *StreamEventRepository {
	return &StreamEventRepository{
		db:     db,
		outbox: ob,
		logger: logger,
	}
}

const eventColumns = `
    id, stream_id, event_type, importance, title, description,
    actor_id, actor_display, milestone_id, metadata, created_at
`

func scanEvent(row pgx.Row) (*model.StreamEvent, error) {
	var e model.StreamEvent
	err := row.Scan(
		&e.ID,
		&e.StreamID,
		&e.EventType,
		&e.Importance,
		&e.Title,
		&e.Description,
		&e.ActorID,
		&e.ActorDisplay,
		&e.MilestoneID,
		&e.Metadata,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Append inserts an immutable event and, in the same transaction, bumps the
// stream's cached event count, advances last_event_at, increments unread for
// the given subscriptions and writes any outbox messages. The stream row
// update serializes concurrent appends to the same stream.
func (r *StreamEventRepository) Append(ctx context.Context, e *model.StreamEvent, notifySubscriptionIDs []int64, msgs ...outbox.Message) error {
	start := time.Now()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	insert := `
        INSERT INTO stream_events (
            stream_id, event_type, importance, title, description,
            actor_id, actor_display, milestone_id, metadata
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id, created_at
    `
	err = tx.QueryRow(ctx, insert,
		e.StreamID,
		e.EventType,
		e.Importance,
		e.Title,
		e.Description,
		e.ActorID,
		e.ActorDisplay,
		e.MilestoneID,
		e.Metadata,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to insert stream event", zap.Error(err))
		return fmt.Errorf("insert stream event: %w", err)
	}

	_, err = tx.Exec(ctx, `
        UPDATE streams
        SET event_count = event_count + 1, last_event_at = $1, updated_at = NOW()
        WHERE id = $2
    `, e.CreatedAt, e.StreamID)
	if err != nil {
		r.logger.Error("Failed to bump stream counters", zap.Int64("stream_id", e.StreamID), zap.Error(err))
		return fmt.Errorf("bump stream counters: %w", err)
	}

	if len(notifySubscriptionIDs) > 0 {
		_, err = tx.Exec(ctx, `
            UPDATE stream_subscriptions
            SET unread_count = unread_count + 1, updated_at = NOW()
            WHERE id = ANY($1)
        `, notifySubscriptionIDs)
		if err != nil {
			r.logger.Error("Failed to increment unread counts", zap.Error(err))
			return fmt.Errorf("increment unread counts: %w", err)
		}
	}

	if len(msgs) > 0 {
		if err := r.outbox.InsertMessages(ctx, tx, msgs...); err != nil {
			return fmt.Errorf("insert outbox messages: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	metrics.RecordDBQueryDuration("append", "stream_events", time.Since(start))
	return nil
}

func (r *StreamEventRepository) ListByStream(ctx context.Context, streamID int64, limit int) ([]*model.StreamEvent, error) {
	query := `
        SELECT ` + eventColumns + `
        FROM stream_events
        WHERE stream_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2
    `
	return r.listQuery(ctx, query, streamID, limit)
}

// ListForFeed returns a stream's newest events at or above a minimum
// importance. Filtering before the limit means a qualifying old event is never
// pushed out by newer events below the threshold.
func (r *StreamEventRepository) ListForFeed(ctx context.Context, streamID int64, minImportance model.EventImportance, limit int) ([]*model.StreamEvent, error) {
	query := `
        SELECT ` + eventColumns + `
        FROM stream_events
        WHERE stream_id = $1 AND importance = ANY($2)
        ORDER BY created_at DESC, id DESC
        LIMIT $3
    `
	return r.listQuery(ctx, query, streamID, model.ImportanceLevelsAtLeast(minImportance), limit)
}

// CountByStream returns the true event count, the source of truth behind the
// stream's cache.
func (r *StreamEventRepository) CountByStream(ctx context.Context, streamID int64) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `
        SELECT COUNT(*) FROM stream_events WHERE stream_id = $1
    `, streamID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// Search runs a full-text match over event descriptions and titles, ranked by
// relevance then recency.
func (r *StreamEventRepository) Search(ctx context.Context, query string, limit int) ([]*model.StreamEvent, error) {
	sql := `
        SELECT ` + eventColumns + `
        FROM stream_events
        WHERE to_tsvector('english', coalesce(title, '') || ' ' || description)
              @@ websearch_to_tsquery('english', $1)
        ORDER BY ts_rank(
            to_tsvector('english', coalesce(title, '') || ' ' || description),
            websearch_to_tsquery('english', $1)
        ) DESC, created_at DESC
        LIMIT $2
    `
	return r.listQuery(ctx, sql, query, limit)
}

func (r *StreamEventRepository) listQuery(ctx context.Context, query string, args ...any) ([]*model.StreamEvent, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list stream events", zap.Error(err))
		return nil, fmt.Errorf("list stream events: %w", err)
	}
	defer rows.Close()

	var events []*model.StreamEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			r.logger.Error("Failed to scan stream event", zap.Error(err))
			return nil, fmt.Errorf("scan stream event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
