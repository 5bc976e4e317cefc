package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"projectstream/internal/model"
)

type SubscriptionRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewSubscriptionRepository(db *pgxpool.Pool, logger *zap.Logger) *SubscriptionRepository {
	return &SubscriptionRepository{
		db:     db,
		logger: logger,
	}
}

const subscriptionColumns = `
    id, stream_id, user_id, subscription_type, is_active,
    notify_email, notify_push, notify_sms, min_importance,
    last_read_at, unread_count, created_at, updated_at
`

func scanSubscription(row pgx.Row) (*model.StreamSubscription, error) {
	var s model.StreamSubscription
	err := row.Scan(
		&s.ID,
		&s.StreamID,
		&s.UserID,
		&s.Type,
		&s.IsActive,
		&s.NotifyEmail,
		&s.NotifyPush,
		&s.NotifySMS,
		&s.MinImportance,
		&s.LastReadAt,
		&s.UnreadCount,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Upsert creates or updates the single subscription for (user, stream).
// The unique constraint makes subscribing idempotent: a second call updates
// settings last-write-wins instead of creating a duplicate row.
func (r *SubscriptionRepository) Upsert(ctx context.Context, s *model.StreamSubscription) (bool, error) {
	query := `
        INSERT INTO stream_subscriptions (
            stream_id, user_id, subscription_type, is_active,
            notify_email, notify_push, notify_sms, min_importance
        )
        VALUES ($1, $2, $3, TRUE, $4, $5, $6, $7)
        ON CONFLICT (user_id, stream_id) DO UPDATE
        SET subscription_type = EXCLUDED.subscription_type,
            is_active = TRUE,
            notify_email = EXCLUDED.notify_email,
            notify_push = EXCLUDED.notify_push,
            notify_sms = EXCLUDED.notify_sms,
            min_importance = EXCLUDED.min_importance,
            updated_at = NOW()
        RETURNING id, is_active, last_read_at, unread_count, created_at, updated_at,
                  (xmax = 0) AS inserted
    `
	var inserted bool
	err := r.db.QueryRow(ctx, query,
		s.StreamID,
		s.UserID,
		s.Type,
		s.NotifyEmail,
		s.NotifyPush,
		s.NotifySMS,
		s.MinImportance,
	).Scan(&s.ID, &s.IsActive, &s.LastReadAt, &s.UnreadCount, &s.CreatedAt, &s.UpdatedAt, &inserted)
	if err != nil {
		r.logger.Error("Failed to upsert subscription",
			zap.Int64("user_id", s.UserID),
			zap.Int64("stream_id", s.StreamID),
			zap.Error(err),
		)
		return false, fmt.Errorf("upsert subscription: %w", err)
	}

	return inserted, nil
}

func (r *SubscriptionRepository) FindByUserAndStream(ctx context.Context, userID, streamID int64) (*model.StreamSubscription, error) {
	query := `SELECT ` + subscriptionColumns + `
        FROM stream_subscriptions WHERE user_id = $1 AND stream_id = $2`

	s, err := scanSubscription(r.db.QueryRow(ctx, query, userID, streamID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: subscription user=%d stream=%d", model.ErrNotFound, userID, streamID)
		}
		r.logger.Error("Failed to find subscription", zap.Error(err))
		return nil, fmt.Errorf("find subscription: %w", err)
	}
	return s, nil
}

func (r *SubscriptionRepository) ListActiveByUser(ctx context.Context, userID int64) ([]*model.StreamSubscription, error) {
	query := `
        SELECT ` + subscriptionColumns + `
        FROM stream_subscriptions
        WHERE user_id = $1 AND is_active
        ORDER BY created_at DESC
    `
	return r.listQuery(ctx, query, userID)
}

func (r *SubscriptionRepository) ListActiveByStream(ctx context.Context, streamID int64) ([]*model.StreamSubscription, error) {
	query := `
        SELECT ` + subscriptionColumns + `
        FROM stream_subscriptions
        WHERE stream_id = $1 AND is_active
        ORDER BY created_at
    `
	return r.listQuery(ctx, query, streamID)
}

// MarkRead advances the read marker and zeroes the unread counter.
func (r *SubscriptionRepository) MarkRead(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE stream_subscriptions
        SET last_read_at = $1, unread_count = 0, updated_at = NOW()
        WHERE id = $2
    `, at, id)
	if err != nil {
		r.logger.Error("Failed to mark subscription read", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("mark read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: subscription %d", model.ErrNotFound, id)
	}
	return nil
}

// Deactivate soft-removes a subscription; the row stays so resubscribing
// preserves history.
func (r *SubscriptionRepository) Deactivate(ctx context.Context, userID, streamID int64) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE stream_subscriptions
        SET is_active = FALSE, updated_at = NOW()
        WHERE user_id = $1 AND stream_id = $2
    `, userID, streamID)
	if err != nil {
		r.logger.Error("Failed to deactivate subscription", zap.Error(err))
		return fmt.Errorf("deactivate subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: subscription user=%d stream=%d", model.ErrNotFound, userID, streamID)
	}
	return nil
}

func (r *SubscriptionRepository) listQuery(ctx context.Context, query string, args ...any) ([]*model.StreamSubscription, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list subscriptions", zap.Error(err))
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*model.StreamSubscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			r.logger.Error("Failed to scan subscription", zap.Error(err))
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}
