package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"projectstream/internal/analysis"
	"projectstream/internal/model"
	"projectstream/internal/workflow"
	"projectstream/pkg/metrics"
	"projectstream/pkg/outbox"
)

// MilestoneService owns milestone lifecycle: creation with an attached
// stream, dependency-gated starts, completion with unblock evaluation,
// progress tracking, comments and project-level analysis.
type MilestoneService struct {
	projects       ProjectStore
	milestones     MilestoneStore
	comments       CommentStore
	streams        *StreamService
	machine        *workflow.Machine
	projectMachine *workflow.Machine
	logger         *zap.Logger
}

func NewMilestoneService(projects ProjectStore, milestones MilestoneStore, comments CommentStore, streams *StreamService, logger *zap.Logger) (*MilestoneService, error) {
	machine, err := workflow.ForKind(workflow.KindMilestone)
	if err != nil {
		return nil, err
	}
	projectMachine, err := workflow.ForKind(workflow.KindProject)
	if err != nil {
		return nil, err
	}
	return &MilestoneService{
		projects:       projects,
		milestones:     milestones,
		comments:       comments,
		streams:        streams,
		machine:        machine,
		projectMachine: projectMachine,
		logger:         logger,
	}, nil
}

// milestoneState adapts a milestone to the workflow machine's storage.
type milestoneState struct {
	m *model.Milestone
}

func (s milestoneState) WorkflowState() State         { return State(s.m.Status) }
func (s milestoneState) SetWorkflowState(state State) { s.m.Status = model.MilestoneStatus(state) }

// State aliases the workflow state type so adapters read naturally.
type State = workflow.State

type CreateMilestoneInput struct {
	ProjectID   int64
	Name        string
	Description string
	Priority    model.MilestonePriority

	PlannedStartDate *time.Time
	PlannedEndDate   *time.Time
	Budget           *float64

	AssignedTo    *int64
	CreatedBy     *int64
	DependencyIDs []int64
	Metadata      map[string]any
}

// Create inserts a milestone in the pending state, attaches a dedicated
// stream, and records a creation event on it. Initial dependencies are
// validated against the project graph before the insert.
func (m *MilestoneService) Create(ctx context.Context, in CreateMilestoneInput) (*model.Milestone, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("%w: milestone name is required", model.ErrInvalidRange)
	}
	if in.Priority == "" {
		in.Priority = model.PriorityMedium
	}
	if _, err := m.projects.FindByID(ctx, in.ProjectID); err != nil {
		return nil, err
	}

	if len(in.DependencyIDs) > 0 {
		if err := m.checkDependencies(ctx, in.ProjectID, 0, in.DependencyIDs); err != nil {
			return nil, err
		}
	}

	milestone := &model.Milestone{
		ProjectID:        in.ProjectID,
		Name:             in.Name,
		Slug:             slugify(in.Name),
		Description:      in.Description,
		Status:           model.MilestonePending,
		Priority:         in.Priority,
		PlannedStartDate: in.PlannedStartDate,
		PlannedEndDate:   in.PlannedEndDate,
		Budget:           in.Budget,
		AssignedTo:       in.AssignedTo,
		CreatedBy:        in.CreatedBy,
		DependencyIDs:    in.DependencyIDs,
		Metadata:         in.Metadata,
	}
	if err := m.milestones.Insert(ctx, milestone); err != nil {
		return nil, err
	}

	stream, err := m.streams.GetOrCreateForObject(ctx,
		model.OwnerRef{Kind: model.OwnerMilestone, ID: milestone.ID},
		milestone.Name, in.CreatedBy)
	if err != nil {
		return nil, err
	}
	if err := m.milestones.SetStream(ctx, milestone.ID, stream.ID); err != nil {
		return nil, err
	}
	milestone.StreamID = &stream.ID

	if _, err := m.streams.AddEvent(ctx, AddEventInput{
		Owner:       model.OwnerRef{Kind: model.OwnerMilestone, ID: milestone.ID},
		EventType:   model.EventMilestoneCreated,
		Importance:  model.ImportanceNormal,
		Title:       fmt.Sprintf("Milestone %q created", milestone.Name),
		ActorID:     in.CreatedBy,
		MilestoneID: &milestone.ID,
	}); err != nil {
		m.logger.Warn("Creation event append failed", zap.Int64("milestone_id", milestone.ID), zap.Error(err))
	}

	m.logger.Info("Milestone created",
		zap.Int64("milestone_id", milestone.ID),
		zap.Int64("project_id", in.ProjectID),
		zap.Int("dependencies", len(in.DependencyIDs)))
	return milestone, nil
}

// Start moves a milestone into in_progress. Every dependency must already be
// completed; otherwise ErrDependencyNotSatisfied names the blockers and the
// milestone is untouched.
func (m *MilestoneService) Start(ctx context.Context, id int64, actorID *int64) (*model.Milestone, error) {
	milestone, err := m.milestones.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if blockers, err := m.unmetDependencies(ctx, milestone); err != nil {
		return nil, err
	} else if len(blockers) > 0 {
		return nil, fmt.Errorf("%w: milestone %d blocked by %v", model.ErrDependencyNotSatisfied, id, blockers)
	}

	from := milestone.Status
	if err := m.transition(ctx, milestone, model.MilestoneInProgress); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if milestone.ActualStartDate == nil {
		milestone.ActualStartDate = &now
	}

	msg := outbox.Message{
		AggregateType: "milestone",
		AggregateID:   &milestone.ID,
		RoutingKey:    "milestone.started",
		Payload: map[string]any{
			"milestone_id": milestone.ID,
			"project_id":   milestone.ProjectID,
			"from_status":  from,
			"actor_id":     actorID,
		},
	}
	if err := m.milestones.Save(ctx, milestone, msg); err != nil {
		return nil, err
	}

	m.logger.Info("Milestone started",
		zap.Int64("milestone_id", id),
		zap.String("from", string(from)))
	return milestone, nil
}

// Complete moves a milestone into completed, pins progress at 100 and stamps
// the completion. It returns the IDs of dependents this completion newly
// unblocked; for each, a milestone.unblocked message is queued. Unblocked
// milestones are reported, never auto-started.
func (m *MilestoneService) Complete(ctx context.Context, id int64, actorID *int64) (*model.Milestone, []int64, error) {
	milestone, err := m.milestones.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	from := milestone.Status
	if err := m.transition(ctx, milestone, model.MilestoneCompleted); err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	milestone.Progress = 100
	milestone.CompletedAt = &now
	if milestone.ActualEndDate == nil {
		milestone.ActualEndDate = &now
	}

	unblocked, err := m.newlyUnblocked(ctx, milestone)
	if err != nil {
		return nil, nil, err
	}

	msgs := []outbox.Message{{
		AggregateType: "milestone",
		AggregateID:   &milestone.ID,
		RoutingKey:    "milestone.completed",
		Payload: map[string]any{
			"milestone_id": milestone.ID,
			"project_id":   milestone.ProjectID,
			"name":         milestone.Name,
			"from_status":  from,
			"actor_id":     actorID,
			"unblocked":    unblocked,
		},
	}}
	for _, depID := range unblocked {
		depID := depID
		msgs = append(msgs, outbox.Message{
			AggregateType: "milestone",
			AggregateID:   &depID,
			RoutingKey:    "milestone.unblocked",
			Payload: map[string]any{
				"milestone_id": depID,
				"project_id":   milestone.ProjectID,
				"unblocked_by": milestone.ID,
			},
		})
	}

	if err := m.milestones.Save(ctx, milestone, msgs...); err != nil {
		return nil, nil, err
	}

	metrics.MilestoneUnblockedCount.Add(float64(len(unblocked)))
	m.logger.Info("Milestone completed",
		zap.Int64("milestone_id", id),
		zap.Int64s("unblocked", unblocked))
	return milestone, unblocked, nil
}

// UpdateProgress sets the progress percentage. Values outside [0,100] are
// rejected; 100 does not complete the milestone. Re-applying the current
// value is a no-op.
func (m *MilestoneService) UpdateProgress(ctx context.Context, id int64, progress int) (*model.Milestone, error) {
	if progress < 0 || progress > 100 {
		return nil, fmt.Errorf("%w: progress %d outside [0,100]", model.ErrInvalidRange, progress)
	}

	milestone, err := m.milestones.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if milestone.Status == model.MilestoneCompleted || milestone.Status == model.MilestoneCancelled {
		return nil, fmt.Errorf("%w: milestone %d is %s, progress is frozen",
			model.ErrInvalidTransition, id, milestone.Status)
	}
	if milestone.Progress == progress {
		return milestone, nil
	}

	milestone.Progress = progress
	if err := m.milestones.Save(ctx, milestone); err != nil {
		return nil, err
	}
	return milestone, nil
}

// ApplyTransition moves a milestone to an arbitrary legal target state, for
// the transitions with no dedicated operation (hold, delay, cancel).
func (m *MilestoneService) ApplyTransition(ctx context.Context, id int64, target model.MilestoneStatus) (*model.Milestone, error) {
	if target == model.MilestoneInProgress || target == model.MilestoneCompleted {
		return nil, fmt.Errorf("%w: %s requires its dedicated operation", model.ErrInvalidTransition, target)
	}
	milestone, err := m.milestones.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.transition(ctx, milestone, target); err != nil {
		return nil, err
	}
	if err := m.milestones.Save(ctx, milestone); err != nil {
		return nil, err
	}
	return milestone, nil
}

// AddDependency declares that milestoneID cannot start before dependsOnID
// completes. Both milestones must belong to the same project and the edge
// must not create a cycle.
func (m *MilestoneService) AddDependency(ctx context.Context, milestoneID, dependsOnID int64) error {
	milestone, err := m.milestones.FindByID(ctx, milestoneID)
	if err != nil {
		return err
	}
	if err := m.checkDependencies(ctx, milestone.ProjectID, milestoneID, []int64{dependsOnID}); err != nil {
		return err
	}
	if err := m.milestones.AddDependency(ctx, milestoneID, dependsOnID); err != nil {
		return err
	}
	m.logger.Info("Dependency added",
		zap.Int64("milestone_id", milestoneID),
		zap.Int64("depends_on", dependsOnID))
	return nil
}

// AddComment attaches a comment, optionally threaded under a parent that must
// belong to the same milestone.
func (m *MilestoneService) AddComment(ctx context.Context, milestoneID, authorID int64, content string, parentID *int64) (*model.MilestoneComment, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: empty comment", model.ErrInvalidRange)
	}
	if _, err := m.milestones.FindByID(ctx, milestoneID); err != nil {
		return nil, err
	}
	if parentID != nil {
		parent, err := m.comments.FindByID(ctx, *parentID)
		if err != nil {
			return nil, err
		}
		if parent.MilestoneID != milestoneID {
			return nil, fmt.Errorf("%w: parent comment %d belongs to milestone %d",
				model.ErrIntegrity, *parentID, parent.MilestoneID)
		}
	}

	comment := &model.MilestoneComment{
		MilestoneID: milestoneID,
		AuthorID:    authorID,
		Content:     content,
		ParentID:    parentID,
	}
	if err := m.comments.Insert(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// EditComment replaces a comment's content. Only the original author may
// edit, and the edit is stamped.
func (m *MilestoneService) EditComment(ctx context.Context, commentID, authorID int64, content string) error {
	if content == "" {
		return fmt.Errorf("%w: empty comment", model.ErrInvalidRange)
	}
	comment, err := m.comments.FindByID(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.AuthorID != authorID {
		return fmt.Errorf("%w: comment %d belongs to another author", model.ErrIntegrity, commentID)
	}
	return m.comments.UpdateContent(ctx, commentID, content, time.Now().UTC())
}

func (m *MilestoneService) Comments(ctx context.Context, milestoneID int64) ([]*model.MilestoneComment, error) {
	if _, err := m.milestones.FindByID(ctx, milestoneID); err != nil {
		return nil, err
	}
	return m.comments.ListByMilestone(ctx, milestoneID)
}

func (m *MilestoneService) Get(ctx context.Context, id int64) (*model.Milestone, error) {
	return m.milestones.FindByID(ctx, id)
}

// TimelineRow is one milestone in a project timeline with its derived fields.
type TimelineRow struct {
	Milestone     *model.Milestone `json:"milestone"`
	Overdue       bool             `json:"overdue"`
	DaysRemaining *int             `json:"days_remaining"`
}

// ProjectTimeline summarizes a project's milestone portfolio.
type ProjectTimeline struct {
	ProjectID       int64         `json:"project_id"`
	Total           int           `json:"total"`
	Completed       int           `json:"completed"`
	InProgress      int           `json:"in_progress"`
	OverdueCount    int           `json:"overdue_count"`
	AverageProgress float64       `json:"average_progress"`
	Rows            []TimelineRow `json:"rows"`
}

// Timeline returns per-milestone rows ordered as stored, with overdue and
// days-remaining computed against now.
func (m *MilestoneService) Timeline(ctx context.Context, projectID int64) (*ProjectTimeline, error) {
	if _, err := m.projects.FindByID(ctx, projectID); err != nil {
		return nil, err
	}
	milestones, err := m.milestones.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	tl := &ProjectTimeline{ProjectID: projectID, Total: len(milestones)}
	var progressSum int
	for _, ms := range milestones {
		switch ms.Status {
		case model.MilestoneCompleted:
			tl.Completed++
		case model.MilestoneInProgress:
			tl.InProgress++
		}
		overdue := ms.Overdue(now)
		if overdue {
			tl.OverdueCount++
		}
		progressSum += ms.Progress
		tl.Rows = append(tl.Rows, TimelineRow{
			Milestone:     ms,
			Overdue:       overdue,
			DaysRemaining: ms.DaysRemaining(now),
		})
	}
	if tl.Total > 0 {
		tl.AverageProgress = float64(progressSum) / float64(tl.Total)
	}
	return tl, nil
}

// CriticalPath computes the longest-duration dependency chain of a project.
func (m *MilestoneService) CriticalPath(ctx context.Context, projectID int64) (analysis.CriticalPath, error) {
	if _, err := m.projects.FindByID(ctx, projectID); err != nil {
		return analysis.CriticalPath{}, err
	}
	milestones, err := m.milestones.ListByProject(ctx, projectID)
	if err != nil {
		return analysis.CriticalPath{}, err
	}
	return analysis.Compute(milestones)
}

// projectState adapts a project to the workflow machine's storage.
type projectState struct {
	p *model.Project
}

func (s projectState) WorkflowState() State         { return State(s.p.Status) }
func (s projectState) SetWorkflowState(state State) { s.p.Status = model.ProjectStatus(state) }

// CreateProject registers a project in the draft state with a stream attached.
func (m *MilestoneService) CreateProject(ctx context.Context, name string, ownerID *int64) (*model.Project, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: project name is required", model.ErrInvalidRange)
	}
	project := &model.Project{
		Name:    name,
		Status:  model.ProjectDraft,
		OwnerID: ownerID,
	}
	if err := m.projects.Insert(ctx, project); err != nil {
		return nil, err
	}
	if _, err := m.streams.GetOrCreateForObject(ctx,
		model.OwnerRef{Kind: model.OwnerProject, ID: project.ID}, name, ownerID); err != nil {
		m.logger.Warn("Project stream creation failed", zap.Int64("project_id", project.ID), zap.Error(err))
	}
	m.logger.Info("Project created", zap.Int64("project_id", project.ID))
	return project, nil
}

// TransitionProject moves a project to a legal target state.
func (m *MilestoneService) TransitionProject(ctx context.Context, id int64, target model.ProjectStatus) (*model.Project, error) {
	project, err := m.projects.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	from := project.Status
	err = m.projectMachine.Apply(ctx, projectState{project}, State(target))
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	metrics.RecordTransition(string(workflow.KindProject), string(from), string(target), result)
	if err != nil {
		return nil, err
	}
	if err := m.projects.UpdateStatus(ctx, id, project.Status); err != nil {
		return nil, err
	}
	m.logger.Info("Project transitioned",
		zap.Int64("project_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(target)))
	return project, nil
}

// transition applies the workflow table and records the outcome.
func (m *MilestoneService) transition(ctx context.Context, milestone *model.Milestone, target model.MilestoneStatus) error {
	from := milestone.Status
	err := m.machine.Apply(ctx, milestoneState{milestone}, State(target))
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	metrics.RecordTransition(string(workflow.KindMilestone), string(from), string(target), result)
	return err
}

// unmetDependencies returns the dependency IDs that are not yet completed.
func (m *MilestoneService) unmetDependencies(ctx context.Context, milestone *model.Milestone) ([]int64, error) {
	if len(milestone.DependencyIDs) == 0 {
		return nil, nil
	}
	deps, err := m.milestones.ListByIDs(ctx, milestone.DependencyIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*model.Milestone, len(deps))
	for _, d := range deps {
		byID[d.ID] = d
	}
	var blockers []int64
	for _, depID := range milestone.DependencyIDs {
		dep, ok := byID[depID]
		if !ok || dep.Status != model.MilestoneCompleted {
			blockers = append(blockers, depID)
		}
	}
	return blockers, nil
}

// newlyUnblocked returns dependents of completed whose every dependency is
// now satisfied. completed's in-memory status is already "completed" here.
func (m *MilestoneService) newlyUnblocked(ctx context.Context, completed *model.Milestone) ([]int64, error) {
	dependents, err := m.milestones.ListDependents(ctx, completed.ID)
	if err != nil {
		return nil, err
	}
	var unblocked []int64
	for _, dep := range dependents {
		if dep.Status == model.MilestoneCompleted || dep.Status == model.MilestoneCancelled {
			continue
		}
		blockers, err := m.unmetDependenciesWith(ctx, dep, completed.ID)
		if err != nil {
			return nil, err
		}
		if len(blockers) == 0 {
			unblocked = append(unblocked, dep.ID)
		}
	}
	return unblocked, nil
}

// unmetDependenciesWith is unmetDependencies treating treatDoneID as already
// completed, for evaluating the effect of an uncommitted completion.
func (m *MilestoneService) unmetDependenciesWith(ctx context.Context, milestone *model.Milestone, treatDoneID int64) ([]int64, error) {
	blockers, err := m.unmetDependencies(ctx, milestone)
	if err != nil {
		return nil, err
	}
	out := blockers[:0]
	for _, id := range blockers {
		if id != treatDoneID {
			out = append(out, id)
		}
	}
	return out, nil
}

// checkDependencies validates candidate dependency edges: every dependency
// must exist in the same project and none may introduce a cycle. milestoneID
// is zero for a milestone that is not inserted yet.
func (m *MilestoneService) checkDependencies(ctx context.Context, projectID, milestoneID int64, dependencyIDs []int64) error {
	deps, err := m.milestones.ListByIDs(ctx, dependencyIDs)
	if err != nil {
		return err
	}
	byID := make(map[int64]*model.Milestone, len(deps))
	for _, d := range deps {
		byID[d.ID] = d
	}
	for _, depID := range dependencyIDs {
		if depID == milestoneID {
			return fmt.Errorf("%w: milestone %d cannot depend on itself", model.ErrIntegrity, depID)
		}
		dep, ok := byID[depID]
		if !ok {
			return fmt.Errorf("%w: dependency milestone %d", model.ErrNotFound, depID)
		}
		if dep.ProjectID != projectID {
			return fmt.Errorf("%w: dependency %d belongs to project %d",
				model.ErrIntegrity, depID, dep.ProjectID)
		}
	}

	if milestoneID == 0 {
		// New milestones cannot close a cycle; nothing depends on them yet.
		return nil
	}
	all, err := m.milestones.ListByProject(ctx, projectID)
	if err != nil {
		return err
	}
	for _, depID := range dependencyIDs {
		if err := analysis.ValidateAcyclic(all, depID, milestoneID); err != nil {
			return err
		}
	}
	return nil
}
