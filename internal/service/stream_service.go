package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"projectstream/internal/model"
	"projectstream/pkg/metrics"
	"projectstream/pkg/outbox"
)

// StreamService owns stream lifecycle, event appends with subscriber fan-out,
// and feed assembly.
type StreamService struct {
	streams StreamStore
	events  EventStore
	subs    SubscriptionStore
	logger  *zap.Logger
}

func NewStreamService(streams StreamStore, events EventStore, subs SubscriptionStore, logger *zap.Logger) *StreamService {
	return &StreamService{
		streams: streams,
		events:  events,
		subs:    subs,
		logger:  logger,
	}
}

// AddEventInput carries everything needed to append one event.
type AddEventInput struct {
	Owner       model.OwnerRef
	EventType   model.EventType
	Importance  model.EventImportance
	Title       string
	Description string

	ActorID      *int64
	ActorDisplay string
	MilestoneID  *int64
	Metadata     map[string]any
}

// FeedItem is one event in a user's aggregated feed, annotated with the
// stream and subscription it came through.
type FeedItem struct {
	Event        *model.StreamEvent     `json:"event"`
	StreamID     int64                  `json:"stream_id"`
	StreamName   string                 `json:"stream_name"`
	StreamType   model.StreamType       `json:"stream_type"`
	Subscription model.SubscriptionType `json:"subscription_type"`
}

// GetOrCreateForObject returns the stream attached to owner, creating it when
// absent. Concurrent callers for the same owner converge on one stream.
func (s *StreamService) GetOrCreateForObject(ctx context.Context, owner model.OwnerRef, name string, createdBy *int64) (*model.Stream, error) {
	if !owner.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown owner kind %q", model.ErrIntegrity, owner.Kind)
	}

	stream := &model.Stream{
		Name:       name,
		Slug:       slugify(name),
		StreamType: model.StreamType(owner.Kind),
		Owner:      owner,
		IsActive:   true,
		CreatedBy:  createdBy,
	}
	created, err := s.streams.GetOrCreateForOwner(ctx, stream)
	if err != nil {
		return nil, fmt.Errorf("get or create stream for %s: %w", owner, err)
	}
	if created {
		s.logger.Info("Stream created",
			zap.Int64("stream_id", stream.ID),
			zap.String("owner", owner.String()))
	}
	return stream, nil
}

// AddEvent appends an immutable event to the owner's stream. The insert, the
// stream counter bump and the unread increments for every notified
// subscription commit in one transaction. Subscriptions whose threshold the
// event does not meet, and mutes, are skipped.
func (s *StreamService) AddEvent(ctx context.Context, in AddEventInput) (*model.StreamEvent, error) {
	if in.Importance == "" {
		in.Importance = model.ImportanceNormal
	}

	stream, err := s.GetOrCreateForObject(ctx, in.Owner, defaultStreamName(in.Owner), in.ActorID)
	if err != nil {
		return nil, err
	}

	event := &model.StreamEvent{
		StreamID:     stream.ID,
		EventType:    in.EventType,
		Importance:   in.Importance,
		Title:        in.Title,
		Description:  in.Description,
		ActorID:      in.ActorID,
		ActorDisplay: in.ActorDisplay,
		MilestoneID:  in.MilestoneID,
		Metadata:     in.Metadata,
	}

	notifyIDs, err := s.notifiableSubscriptions(ctx, stream.ID, in.Importance)
	if err != nil {
		return nil, err
	}

	msg := outbox.Message{
		AggregateType: "stream_event",
		RoutingKey:    "stream.event.added",
		Payload: map[string]any{
			"stream_id":   stream.ID,
			"event_type":  in.EventType,
			"importance":  in.Importance,
			"owner_kind":  in.Owner.Kind,
			"owner_id":    in.Owner.ID,
			"notified":    len(notifyIDs),
		},
	}

	if err := s.events.Append(ctx, event, notifyIDs, msg); err != nil {
		return nil, fmt.Errorf("append event to stream %d: %w", stream.ID, err)
	}

	metrics.RecordStreamEvent(string(stream.StreamType), string(in.Importance))
	s.logger.Info("Stream event appended",
		zap.Int64("stream_id", stream.ID),
		zap.String("event_type", string(in.EventType)),
		zap.String("importance", string(in.Importance)),
		zap.Int("notified", len(notifyIDs)))

	return event, nil
}

// notifiableSubscriptions returns the active subscriptions on streamID whose
// importance threshold the event meets. Mutes never notify.
func (s *StreamService) notifiableSubscriptions(ctx context.Context, streamID int64, importance model.EventImportance) ([]int64, error) {
	subs, err := s.subs.ListActiveByStream(ctx, streamID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions for stream %d: %w", streamID, err)
	}
	var ids []int64
	for _, sub := range subs {
		if sub.Type == model.SubscriptionMute {
			continue
		}
		if !importance.AtLeast(sub.MinImportance) {
			continue
		}
		ids = append(ids, sub.ID)
	}
	return ids, nil
}

// UserFeed assembles the newest events across all of the user's active
// subscriptions, each filtered by that subscription's own importance
// threshold. Muted streams are excluded.
func (s *StreamService) UserFeed(ctx context.Context, userID int64, limit int) ([]FeedItem, error) {
	start := time.Now()
	if limit <= 0 {
		limit = 50
	}

	subs, err := s.subs.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions for user %d: %w", userID, err)
	}

	var items []FeedItem
	for _, sub := range subs {
		if sub.Type == model.SubscriptionMute {
			continue
		}
		stream, err := s.streams.FindByID(ctx, sub.StreamID)
		if err != nil {
			return nil, err
		}
		events, err := s.events.ListForFeed(ctx, sub.StreamID, sub.MinImportance, limit)
		if err != nil {
			return nil, err
		}
		for _, e := range events {
			items = append(items, FeedItem{
				Event:        e,
				StreamID:     stream.ID,
				StreamName:   stream.Name,
				StreamType:   stream.StreamType,
				Subscription: sub.Type,
			})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Event.CreatedAt.Equal(items[j].Event.CreatedAt) {
			return items[i].Event.CreatedAt.After(items[j].Event.CreatedAt)
		}
		return items[i].Event.ID > items[j].Event.ID
	})
	if len(items) > limit {
		items = items[:limit]
	}

	metrics.FeedQueryDuration.Observe(time.Since(start).Seconds())
	return items, nil
}

// Stream returns one stream, resyncing its cached event count when it has
// drifted from the true row count.
func (s *StreamService) Stream(ctx context.Context, streamID int64) (*model.Stream, error) {
	stream, err := s.streams.FindByID(ctx, streamID)
	if err != nil {
		return nil, err
	}

	actual, err := s.events.CountByStream(ctx, streamID)
	if err != nil {
		return nil, fmt.Errorf("count events for stream %d: %w", streamID, err)
	}
	if actual != stream.EventCount {
		s.logger.Warn("Stream event count drifted, recomputing",
			zap.Int64("stream_id", streamID),
			zap.Int64("cached", stream.EventCount),
			zap.Int64("actual", actual))
		return s.streams.RecomputeCounters(ctx, streamID)
	}
	return stream, nil
}

// StreamEvents lists the newest events of one stream.
func (s *StreamService) StreamEvents(ctx context.Context, streamID int64, limit int) ([]*model.StreamEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	if _, err := s.streams.FindByID(ctx, streamID); err != nil {
		return nil, err
	}
	return s.events.ListByStream(ctx, streamID, limit)
}

// SearchEvents runs a full-text search over event titles and descriptions.
func (s *StreamService) SearchEvents(ctx context.Context, query string, limit int) ([]*model.StreamEvent, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", model.ErrInvalidRange)
	}
	if limit <= 0 {
		limit = 50
	}
	return s.events.Search(ctx, query, limit)
}

// RecomputeCounters resyncs a stream's denormalized event and subscriber
// counts from the underlying rows.
func (s *StreamService) RecomputeCounters(ctx context.Context, streamID int64) (*model.Stream, error) {
	stream, err := s.streams.RecomputeCounters(ctx, streamID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Stream counters recomputed",
		zap.Int64("stream_id", streamID),
		zap.Int64("event_count", stream.EventCount),
		zap.Int64("subscriber_count", stream.SubscriberCount))
	return stream, nil
}

func defaultStreamName(owner model.OwnerRef) string {
	return fmt.Sprintf("%s %d activity", owner.Kind, owner.ID)
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}
