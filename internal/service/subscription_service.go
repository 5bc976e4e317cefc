package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"projectstream/internal/model"
)

// SubscriptionService owns a user's standing interests in streams and the
// dashboard built from them.
type SubscriptionService struct {
	streams    StreamStore
	subs       SubscriptionStore
	milestones MilestoneStore
	feed       *StreamService
	logger     *zap.Logger
}

func NewSubscriptionService(streams StreamStore, subs SubscriptionStore, milestones MilestoneStore, feed *StreamService, logger *zap.Logger) *SubscriptionService {
	return &SubscriptionService{
		streams:    streams,
		subs:       subs,
		milestones: milestones,
		feed:       feed,
		logger:     logger,
	}
}

type SubscribeInput struct {
	UserID   int64
	StreamID int64
	Type     model.SubscriptionType

	NotifyEmail bool
	NotifyPush  bool
	NotifySMS   bool

	MinImportance model.EventImportance
}

// Subscribe creates or replaces the user's subscription to a stream. Repeat
// calls are last-write-wins on type, importance threshold and channels; one
// row per (user, stream) always.
func (s *SubscriptionService) Subscribe(ctx context.Context, in SubscribeInput) (*model.StreamSubscription, error) {
	if _, err := s.streams.FindByID(ctx, in.StreamID); err != nil {
		return nil, err
	}
	if in.Type == "" {
		in.Type = model.SubscriptionFollow
	}
	if in.MinImportance == "" {
		in.MinImportance = model.ImportanceLow
	}

	sub := &model.StreamSubscription{
		StreamID:      in.StreamID,
		UserID:        in.UserID,
		Type:          in.Type,
		IsActive:      true,
		NotifyEmail:   in.NotifyEmail,
		NotifyPush:    in.NotifyPush,
		NotifySMS:     in.NotifySMS,
		MinImportance: in.MinImportance,
	}
	created, err := s.subs.Upsert(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("subscribe user %d to stream %d: %w", in.UserID, in.StreamID, err)
	}

	if err := s.streams.UpdateSubscriberCount(ctx, in.StreamID); err != nil {
		s.logger.Warn("Subscriber count update failed", zap.Int64("stream_id", in.StreamID), zap.Error(err))
	}

	if created {
		s.logger.Info("Subscription created",
			zap.Int64("user_id", in.UserID),
			zap.Int64("stream_id", in.StreamID),
			zap.String("type", string(in.Type)))
	}
	return sub, nil
}

// Unsubscribe deactivates the user's subscription. Missing subscriptions
// report ErrNotFound.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, userID, streamID int64) error {
	if err := s.subs.Deactivate(ctx, userID, streamID); err != nil {
		return err
	}
	if err := s.streams.UpdateSubscriberCount(ctx, streamID); err != nil {
		s.logger.Warn("Subscriber count update failed", zap.Int64("stream_id", streamID), zap.Error(err))
	}
	return nil
}

// MarkAsRead zeroes the unread counter of the user's subscription and stamps
// the read time.
func (s *SubscriptionService) MarkAsRead(ctx context.Context, userID, streamID int64) error {
	sub, err := s.subs.FindByUserAndStream(ctx, userID, streamID)
	if err != nil {
		return err
	}
	return s.subs.MarkRead(ctx, sub.ID, time.Now().UTC())
}

// Dashboard aggregates a user's subscription state and current workload.
type Dashboard struct {
	UserID            int64              `json:"user_id"`
	SubscriptionCount int                `json:"subscription_count"`
	TotalUnread       int64              `json:"total_unread"`
	RecentEvents      []FeedItem         `json:"recent_events"`
	OpenMilestones    []*model.Milestone `json:"open_milestones"`
}

// UserDashboard assembles the dashboard: active subscriptions with their
// unread totals, the newest feed items, and the user's open assigned
// milestones.
func (s *SubscriptionService) UserDashboard(ctx context.Context, userID int64, recentLimit int) (*Dashboard, error) {
	if recentLimit <= 0 {
		recentLimit = 10
	}

	subs, err := s.subs.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	d := &Dashboard{UserID: userID, SubscriptionCount: len(subs)}
	for _, sub := range subs {
		d.TotalUnread += sub.UnreadCount
	}

	d.RecentEvents, err = s.feed.UserFeed(ctx, userID, recentLimit)
	if err != nil {
		return nil, err
	}

	d.OpenMilestones, err = s.milestones.ListAssignedOpen(ctx, userID, recentLimit)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *SubscriptionService) ListForUser(ctx context.Context, userID int64) ([]*model.StreamSubscription, error) {
	return s.subs.ListActiveByUser(ctx, userID)
}
