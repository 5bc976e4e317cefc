package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"projectstream/internal/model"
)

type StreamRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewStreamRepository(db *pgxpool.Pool, logger *zap.Logger) *StreamRepository {
	return &StreamRepository{
		db:     db,
		logger: logger,
	}
}

const streamColumns = `
    id, name, slug, description, stream_type, owner_kind, owner_id,
    is_active, is_public, event_count, subscriber_count,
    created_by, created_at, updated_at, last_event_at
`

func scanStream(row pgx.Row) (*model.Stream, error) {
	var s model.Stream
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Slug,
		&s.Description,
		&s.StreamType,
		&s.Owner.Kind,
		&s.Owner.ID,
		&s.IsActive,
		&s.IsPublic,
		&s.EventCount,
		&s.SubscriberCount,
		&s.CreatedBy,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.LastEventAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetOrCreateForOwner returns the stream owned by s.Owner, creating it with
// s's fields when absent. The unique index on (owner_kind, owner_id) makes
// concurrent creation race-free: one insert wins, everyone reads the same row.
func (r *StreamRepository) GetOrCreateForOwner(ctx context.Context, s *model.Stream) (bool, error) {
	insert := `
        INSERT INTO streams (name, slug, description, stream_type, owner_kind, owner_id,
                             is_active, is_public, created_by)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (owner_kind, owner_id) DO NOTHING
        RETURNING id, event_count, subscriber_count, created_at, updated_at, last_event_at
    `
	err := r.db.QueryRow(ctx, insert,
		s.Name,
		s.Slug,
		s.Description,
		s.StreamType,
		s.Owner.Kind,
		s.Owner.ID,
		s.IsActive,
		s.IsPublic,
		s.CreatedBy,
	).Scan(&s.ID, &s.EventCount, &s.SubscriberCount, &s.CreatedAt, &s.UpdatedAt, &s.LastEventAt)

	if err == nil {
		r.logger.Info("Stream created",
			zap.Int64("id", s.ID),
			zap.String("owner", s.Owner.String()),
		)
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.logger.Error("Failed to create stream", zap.Error(err))
		return false, fmt.Errorf("create stream: %w", err)
	}

	// Lost the race or the stream already existed; load it.
	existing, err := r.FindByOwner(ctx, s.Owner)
	if err != nil {
		return false, err
	}
	*s = *existing
	return false, nil
}

func (r *StreamRepository) FindByID(ctx context.Context, id int64) (*model.Stream, error) {
	query := `SELECT ` + streamColumns + ` FROM streams WHERE id = $1`

	s, err := scanStream(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: stream %d", model.ErrNotFound, id)
		}
		r.logger.Error("Failed to find stream", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("find stream: %w", err)
	}
	return s, nil
}

func (r *StreamRepository) FindByOwner(ctx context.Context, owner model.OwnerRef) (*model.Stream, error) {
	query := `SELECT ` + streamColumns + ` FROM streams WHERE owner_kind = $1 AND owner_id = $2`

	s, err := scanStream(r.db.QueryRow(ctx, query, owner.Kind, owner.ID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: stream for %s", model.ErrNotFound, owner)
		}
		r.logger.Error("Failed to find stream by owner", zap.String("owner", owner.String()), zap.Error(err))
		return nil, fmt.Errorf("find stream by owner: %w", err)
	}
	return s, nil
}

// RecomputeCounters rebuilds the denormalized event and subscriber counts
// from their source tables. The caches are derived values; this is the
// recovery path when they drift.
func (r *StreamRepository) RecomputeCounters(ctx context.Context, streamID int64) (*model.Stream, error) {
	query := `
        UPDATE streams s
        SET event_count = (SELECT COUNT(*) FROM stream_events e WHERE e.stream_id = s.id),
            subscriber_count = (SELECT COUNT(*) FROM stream_subscriptions sub
                                WHERE sub.stream_id = s.id AND sub.is_active),
            updated_at = NOW()
        WHERE s.id = $1
        RETURNING ` + streamColumns + `
    `
	s, err := scanStream(r.db.QueryRow(ctx, query, streamID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: stream %d", model.ErrNotFound, streamID)
		}
		r.logger.Error("Failed to recompute stream counters", zap.Int64("stream_id", streamID), zap.Error(err))
		return nil, fmt.Errorf("recompute counters: %w", err)
	}
	return s, nil
}

// UpdateSubscriberCount refreshes only the subscriber cache, used after
// subscribe/unsubscribe.
func (r *StreamRepository) UpdateSubscriberCount(ctx context.Context, streamID int64) error {
	_, err := r.db.Exec(ctx, `
        UPDATE streams s
        SET subscriber_count = (SELECT COUNT(*) FROM stream_subscriptions sub
                                WHERE sub.stream_id = s.id AND sub.is_active),
            updated_at = NOW()
        WHERE s.id = $1
    `, streamID)
	if err != nil {
		r.logger.Error("Failed to update subscriber count", zap.Int64("stream_id", streamID), zap.Error(err))
		return fmt.Errorf("update subscriber count: %w", err)
	}
	return nil
}
