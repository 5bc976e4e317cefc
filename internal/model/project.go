package model

import "time"

type ProjectStatus string

const (
	ProjectDraft     ProjectStatus = "draft"
	ProjectActive    ProjectStatus = "active"
	ProjectOnHold    ProjectStatus = "on_hold"
	ProjectCompleted ProjectStatus = "completed"
	ProjectCancelled ProjectStatus = "cancelled"
)

// Project is the owning collaborator for milestones. The core only relies on
// its identity and status; everything else belongs to the application layer.
type Project struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	Status    ProjectStatus `json:"status"`
	OwnerID   *int64        `json:"owner_id"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
