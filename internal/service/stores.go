package service

import (
	"context"
	"time"

	"projectstream/internal/model"
	"projectstream/pkg/outbox"
)

// Store interfaces consumed by the services. The pgx repositories in
// internal/repository satisfy them; tests substitute in-memory fakes.

type ProjectStore interface {
	Insert(ctx context.Context, p *model.Project) error
	FindByID(ctx context.Context, id int64) (*model.Project, error)
	UpdateStatus(ctx context.Context, id int64, status model.ProjectStatus) error
}

type MilestoneStore interface {
	Insert(ctx context.Context, m *model.Milestone) error
	FindByID(ctx context.Context, id int64) (*model.Milestone, error)
	ListByProject(ctx context.Context, projectID int64) ([]*model.Milestone, error)
	ListByIDs(ctx context.Context, ids []int64) ([]*model.Milestone, error)
	ListDependents(ctx context.Context, id int64) ([]*model.Milestone, error)
	ListAssignedOpen(ctx context.Context, userID int64, limit int) ([]*model.Milestone, error)

	// Save persists the full milestone row and the given outbox messages in
	// one transaction.
	Save(ctx context.Context, m *model.Milestone, msgs ...outbox.Message) error
	AddDependency(ctx context.Context, milestoneID, dependsOnID int64) error
	SetStream(ctx context.Context, milestoneID, streamID int64) error
}

type StreamStore interface {
	// GetOrCreateForOwner fills s from the existing row for s.Owner, creating
	// it when absent. Returns true when a new stream was created.
	GetOrCreateForOwner(ctx context.Context, s *model.Stream) (bool, error)
	FindByID(ctx context.Context, id int64) (*model.Stream, error)
	FindByOwner(ctx context.Context, owner model.OwnerRef) (*model.Stream, error)
	RecomputeCounters(ctx context.Context, streamID int64) (*model.Stream, error)
	UpdateSubscriberCount(ctx context.Context, streamID int64) error
}

type EventStore interface {
	// Append inserts the event, bumps the stream's counters and the unread
	// count of the listed subscriptions, and writes the outbox messages, all
	// in one transaction.
	Append(ctx context.Context, e *model.StreamEvent, notifySubscriptionIDs []int64, msgs ...outbox.Message) error
	ListByStream(ctx context.Context, streamID int64, limit int) ([]*model.StreamEvent, error)
	// ListForFeed lists the newest events at or above minImportance, so the
	// threshold applies before the per-stream cap.
	ListForFeed(ctx context.Context, streamID int64, minImportance model.EventImportance, limit int) ([]*model.StreamEvent, error)
	CountByStream(ctx context.Context, streamID int64) (int64, error)
	Search(ctx context.Context, query string, limit int) ([]*model.StreamEvent, error)
}

type SubscriptionStore interface {
	// Upsert creates or replaces the (user, stream) subscription. Returns
	// true when a new row was inserted.
	Upsert(ctx context.Context, s *model.StreamSubscription) (bool, error)
	FindByUserAndStream(ctx context.Context, userID, streamID int64) (*model.StreamSubscription, error)
	ListActiveByUser(ctx context.Context, userID int64) ([]*model.StreamSubscription, error)
	ListActiveByStream(ctx context.Context, streamID int64) ([]*model.StreamSubscription, error)
	MarkRead(ctx context.Context, id int64, at time.Time) error
	Deactivate(ctx context.Context, userID, streamID int64) error
}

type CommentStore interface {
	Insert(ctx context.Context, c *model.MilestoneComment) error
	FindByID(ctx context.Context, id int64) (*model.MilestoneComment, error)
	ListByMilestone(ctx context.Context, milestoneID int64) ([]*model.MilestoneComment, error)
	UpdateContent(ctx context.Context, id int64, content string, editedAt time.Time) error
}
