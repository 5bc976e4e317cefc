package model

import "time"

type SubscriptionType string

const (
	SubscriptionFollow SubscriptionType = "follow"
	SubscriptionWatch  SubscriptionType = "watch"
	SubscriptionNotify SubscriptionType = "notify"
	SubscriptionMute   SubscriptionType = "mute"
)

// StreamSubscription is a user's standing interest in a stream. At most one
// subscription exists per (user, stream) pair.
type StreamSubscription struct {
	ID       int64            `json:"id"`
	StreamID int64            `json:"stream_id"`
	UserID   int64            `json:"user_id"`
	Type     SubscriptionType `json:"subscription_type"`
	IsActive bool             `json:"is_active"`

	NotifyEmail bool `json:"notify_email"`
	NotifyPush  bool `json:"notify_push"`
	NotifySMS   bool `json:"notify_sms"`

	// MinImportance filters which events surface for this subscription.
	MinImportance EventImportance `json:"min_importance"`

	LastReadAt  *time.Time `json:"last_read_at"`
	UnreadCount int64      `json:"unread_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
