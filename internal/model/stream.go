package model

import "time"

type StreamType string

const (
	StreamProject   StreamType = "project"
	StreamOrder     StreamType = "order"
	StreamUser      StreamType = "user"
	StreamSystem    StreamType = "system"
	StreamMilestone StreamType = "milestone"
	StreamProduct   StreamType = "product"
)

type EventType string

const (
	// Project events
	EventProjectCreated       EventType = "project_created"
	EventProjectUpdated       EventType = "project_updated"
	EventProjectStatusChanged EventType = "project_status_changed"
	EventProjectCompleted     EventType = "project_completed"

	// Milestone events
	EventMilestoneCreated   EventType = "milestone_created"
	EventMilestoneStarted   EventType = "milestone_started"
	EventMilestoneCompleted EventType = "milestone_completed"
	EventMilestoneDelayed   EventType = "milestone_delayed"
	EventMilestoneCancelled EventType = "milestone_cancelled"
	EventMilestoneUnblocked EventType = "milestone_unblocked"

	// Order events
	EventOrderCreated   EventType = "order_created"
	EventOrderConfirmed EventType = "order_confirmed"
	EventOrderPaid      EventType = "order_paid"
	EventOrderShipped   EventType = "order_shipped"
	EventOrderDelivered EventType = "order_delivered"
	EventOrderCancelled EventType = "order_cancelled"

	// Task events
	EventTaskCreated   EventType = "task_created"
	EventTaskAssigned  EventType = "task_assigned"
	EventTaskStarted   EventType = "task_started"
	EventTaskCompleted EventType = "task_completed"
	EventTaskCommented EventType = "task_commented"

	// System events
	EventSystemAlert EventType = "system_alert"
)

type EventImportance string

const (
	ImportanceLow      EventImportance = "low"
	ImportanceNormal   EventImportance = "normal"
	ImportanceHigh     EventImportance = "high"
	ImportanceCritical EventImportance = "critical"
)

var importanceRank = map[EventImportance]int{
	ImportanceLow:      1,
	ImportanceNormal:   2,
	ImportanceHigh:     3,
	ImportanceCritical: 4,
}

// Rank returns the ordering of an importance level. Unknown levels rank as
// normal so a bad row never hides everything.
func (i EventImportance) Rank() int {
	if r, ok := importanceRank[i]; ok {
		return r
	}
	return importanceRank[ImportanceNormal]
}

// AtLeast reports whether i meets a minimum importance threshold.
func (i EventImportance) AtLeast(min EventImportance) bool {
	return i.Rank() >= min.Rank()
}

// ImportanceLevelsAtLeast returns the levels meeting min, for pushing a
// threshold filter into a query.
func ImportanceLevelsAtLeast(min EventImportance) []string {
	levels := []EventImportance{ImportanceLow, ImportanceNormal, ImportanceHigh, ImportanceCritical}
	var out []string
	for _, level := range levels {
		if level.AtLeast(min) {
			out = append(out, string(level))
		}
	}
	return out
}

// Stream is an append-only event feed attached to exactly one owning entity.
type Stream struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	Description string     `json:"description"`
	StreamType  StreamType `json:"stream_type"`
	Owner       OwnerRef   `json:"owner"`
	IsActive    bool       `json:"is_active"`
	IsPublic    bool       `json:"is_public"`

	// Denormalized caches. Derived, recomputable; never the source of truth.
	EventCount      int64 `json:"event_count"`
	SubscriberCount int64 `json:"subscriber_count"`

	CreatedBy   *int64     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastEventAt *time.Time `json:"last_event_at"`
}

// StreamEvent is an immutable record of something that happened. There is no
// update or delete path.
type StreamEvent struct {
	ID          int64           `json:"id"`
	StreamID    int64           `json:"stream_id"`
	EventType   EventType       `json:"event_type"`
	Importance  EventImportance `json:"importance"`
	Title       string          `json:"title"`
	Description string          `json:"description"`

	ActorID      *int64 `json:"actor_id"`
	ActorDisplay string `json:"actor_display"`

	// MilestoneID links events raised on behalf of a milestone.
	MilestoneID *int64 `json:"milestone_id"`

	Metadata map[string]any `json:"metadata"`

	CreatedAt time.Time `json:"created_at"`
}

// IsRecent reports whether the event happened within the last 24 hours.
func (e *StreamEvent) IsRecent(now time.Time) bool {
	return now.Sub(e.CreatedAt) < 24*time.Hour
}
