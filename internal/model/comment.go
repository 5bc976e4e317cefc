package model

import "time"

// MilestoneComment is a threaded comment owned by a milestone. A parent must
// already exist and comments cannot be re-parented, so the thread is a tree.
type MilestoneComment struct {
	ID          int64  `json:"id"`
	MilestoneID int64  `json:"milestone_id"`
	AuthorID    int64  `json:"author_id"`
	Content     string `json:"content"`
	ParentID    *int64 `json:"parent_id"`

	IsEdited bool       `json:"is_edited"`
	EditedAt *time.Time `json:"edited_at"`

	CreatedAt time.Time `json:"created_at"`
}
