package model

import "time"

type MilestoneStatus string

const (
	MilestonePending    MilestoneStatus = "pending"
	MilestonePlanned    MilestoneStatus = "planned"
	MilestoneInProgress MilestoneStatus = "in_progress"
	MilestoneCompleted  MilestoneStatus = "completed"
	MilestoneDelayed    MilestoneStatus = "delayed"
	MilestoneCancelled  MilestoneStatus = "cancelled"
	MilestoneOnHold     MilestoneStatus = "on_hold"
)

type MilestonePriority string

const (
	PriorityLow      MilestonePriority = "low"
	PriorityMedium   MilestonePriority = "medium"
	PriorityHigh     MilestonePriority = "high"
	PriorityCritical MilestonePriority = "critical"
)

// Milestone is a project checkpoint with planned/actual dates, progress and
// optional prerequisite milestones.
type Milestone struct {
	ID          int64             `json:"id"`
	ProjectID   int64             `json:"project_id"`
	Name        string            `json:"name"`
	Slug        string            `json:"slug"`
	Description string            `json:"description"`
	Status      MilestoneStatus   `json:"status"`
	Priority    MilestonePriority `json:"priority"`

	PlannedStartDate *time.Time `json:"planned_start_date"`
	PlannedEndDate   *time.Time `json:"planned_end_date"`
	ActualStartDate  *time.Time `json:"actual_start_date"`
	ActualEndDate    *time.Time `json:"actual_end_date"`

	// Progress is a percentage in [0,100]. 100 does not imply completed;
	// completion is an explicit action.
	Progress int `json:"progress"`

	Budget     *float64 `json:"budget"`
	ActualCost *float64 `json:"actual_cost"`

	AssignedTo *int64 `json:"assigned_to"`
	CreatedBy  *int64 `json:"created_by"`
	StreamID   *int64 `json:"stream_id"`

	// DependencyIDs lists milestones (same project) that must be completed
	// before this one can start.
	DependencyIDs []int64 `json:"dependency_ids"`

	Metadata map[string]any `json:"metadata"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// Overdue reports whether the milestone is past its planned end date without
// having been completed or cancelled. Always computed, never stored.
func (m *Milestone) Overdue(now time.Time) bool {
	if m.Status == MilestoneCompleted || m.Status == MilestoneCancelled {
		return false
	}
	if m.PlannedEndDate == nil {
		return false
	}
	return m.PlannedEndDate.Before(truncateToDay(now))
}

// DaysRemaining returns days until the planned end date, negative when past,
// or nil when no end date is planned.
func (m *Milestone) DaysRemaining(now time.Time) *int {
	if m.PlannedEndDate == nil {
		return nil
	}
	days := int(m.PlannedEndDate.Sub(truncateToDay(now)).Hours() / 24)
	return &days
}

// DurationDays returns the planned duration in days, or nil when either
// planned date is missing.
func (m *Milestone) DurationDays() *int {
	if m.PlannedStartDate == nil || m.PlannedEndDate == nil {
		return nil
	}
	days := int(m.PlannedEndDate.Sub(*m.PlannedStartDate).Hours() / 24)
	return &days
}

// ActualDurationDays returns elapsed days since the actual start, using the
// actual end when set and now otherwise.
func (m *Milestone) ActualDurationDays(now time.Time) *int {
	if m.ActualStartDate == nil {
		return nil
	}
	end := truncateToDay(now)
	if m.ActualEndDate != nil {
		end = *m.ActualEndDate
	}
	days := int(end.Sub(*m.ActualStartDate).Hours() / 24)
	return &days
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
