package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"projectstream/internal/model"
)

type milestoneFixture struct {
	projects   *fakeProjectStore
	milestones *fakeMilestoneStore
	comments   *fakeCommentStore
	streams    *fakeStreamStore
	events     *fakeEventStore
	subs       *fakeSubscriptionStore

	streamSvc *StreamService
	svc       *MilestoneService

	projectID int64
}

func newMilestoneFixture(t *testing.T) *milestoneFixture {
	t.Helper()

	f := &milestoneFixture{
		projects:   newFakeProjectStore(),
		milestones: newFakeMilestoneStore(),
		comments:   newFakeCommentStore(),
		streams:    newFakeStreamStore(),
		subs:       newFakeSubscriptionStore(),
	}
	f.events = newFakeEventStore(f.subs)
	f.streamSvc = NewStreamService(f.streams, f.events, f.subs, zap.NewNop())

	svc, err := NewMilestoneService(f.projects, f.milestones, f.comments, f.streamSvc, zap.NewNop())
	require.NoError(t, err)
	f.svc = svc

	project := &model.Project{Name: "rollout", Status: model.ProjectActive}
	require.NoError(t, f.projects.Insert(context.Background(), project))
	f.projectID = project.ID
	return f
}

func (f *milestoneFixture) create(t *testing.T, name string, deps ...int64) *model.Milestone {
	t.Helper()
	m, err := f.svc.Create(context.Background(), CreateMilestoneInput{
		ProjectID:     f.projectID,
		Name:          name,
		DependencyIDs: deps,
	})
	require.NoError(t, err)
	return m
}

func (f *milestoneFixture) mustStatus(t *testing.T, id int64, want model.MilestoneStatus) {
	t.Helper()
	m, err := f.milestones.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, want, m.Status)
}

func TestCreate_AttachesStreamAndCreationEvent(t *testing.T) {
	f := newMilestoneFixture(t)

	m := f.create(t, "Design Review")
	require.NotNil(t, m.StreamID)

	stream, err := f.streams.FindByOwner(context.Background(),
		model.OwnerRef{Kind: model.OwnerMilestone, ID: m.ID})
	require.NoError(t, err)
	assert.Equal(t, *m.StreamID, stream.ID)

	events := f.events.events[stream.ID]
	require.Len(t, events, 1)
	assert.Equal(t, model.EventMilestoneCreated, events[0].EventType)
}

func TestCreate_UnknownProject(t *testing.T) {
	f := newMilestoneFixture(t)

	_, err := f.svc.Create(context.Background(), CreateMilestoneInput{ProjectID: 999, Name: "x"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCreate_RejectsCrossProjectDependency(t *testing.T) {
	f := newMilestoneFixture(t)

	other := &model.Project{Name: "other", Status: model.ProjectActive}
	require.NoError(t, f.projects.Insert(context.Background(), other))
	foreign, err := f.svc.Create(context.Background(), CreateMilestoneInput{ProjectID: other.ID, Name: "foreign"})
	require.NoError(t, err)

	_, err = f.svc.Create(context.Background(), CreateMilestoneInput{
		ProjectID:     f.projectID,
		Name:          "local",
		DependencyIDs: []int64{foreign.ID},
	})
	assert.ErrorIs(t, err, model.ErrIntegrity)
}

func TestStart_BlockedUntilDependenciesComplete(t *testing.T) {
	f := newMilestoneFixture(t)

	a := f.create(t, "A")
	b := f.create(t, "B", a.ID)

	_, err := f.svc.Start(context.Background(), b.ID, nil)
	assert.ErrorIs(t, err, model.ErrDependencyNotSatisfied)
	f.mustStatus(t, b.ID, model.MilestonePending)

	// An in-progress dependency still blocks; only completed satisfies.
	_, err = f.svc.Start(context.Background(), a.ID, nil)
	require.NoError(t, err)
	_, err = f.svc.Start(context.Background(), b.ID, nil)
	assert.ErrorIs(t, err, model.ErrDependencyNotSatisfied)

	_, _, err = f.svc.Complete(context.Background(), a.ID, nil)
	require.NoError(t, err)

	started, err := f.svc.Start(context.Background(), b.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, model.MilestoneInProgress, started.Status)
	assert.NotNil(t, started.ActualStartDate)
}

func TestStart_EmitsOutboxMessage(t *testing.T) {
	f := newMilestoneFixture(t)

	a := f.create(t, "A")
	_, err := f.svc.Start(context.Background(), a.ID, nil)
	require.NoError(t, err)

	msgs := f.milestones.messagesByRoutingKey("milestone.started")
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].AggregateID)
	assert.Equal(t, a.ID, *msgs[0].AggregateID)
}

func TestStart_RejectedWhenRowChangedSinceRead(t *testing.T) {
	f := newMilestoneFixture(t)
	a := f.create(t, "A")

	// Another writer commits between the service's read and its save.
	f.milestones.beforeSave = func() {
		f.milestones.beforeSave = nil
		stored := f.milestones.milestones[a.ID]
		stored.Status = model.MilestoneInProgress
		stored.UpdatedAt = time.Now().UTC()
	}

	_, err := f.svc.Start(context.Background(), a.ID, nil)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	// The competing write stands and no duplicate start was recorded.
	f.mustStatus(t, a.ID, model.MilestoneInProgress)
	assert.Empty(t, f.milestones.messagesByRoutingKey("milestone.started"))
}

func TestStart_DoesNotClobberConcurrentProgressWrite(t *testing.T) {
	f := newMilestoneFixture(t)
	a := f.create(t, "A")

	f.milestones.beforeSave = func() {
		f.milestones.beforeSave = nil
		stored := f.milestones.milestones[a.ID]
		stored.Progress = 40
		stored.UpdatedAt = time.Now().UTC()
	}

	_, err := f.svc.Start(context.Background(), a.ID, nil)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	m, err := f.milestones.FindByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, m.Progress, "stale save must not overwrite the committed progress")
}

func TestComplete_ReportsUnblockedDependentsWithoutStartingThem(t *testing.T) {
	f := newMilestoneFixture(t)

	a := f.create(t, "A")
	b := f.create(t, "B", a.ID)
	c := f.create(t, "C", a.ID, b.ID)

	_, err := f.svc.Start(context.Background(), a.ID, nil)
	require.NoError(t, err)

	_, unblocked, err := f.svc.Complete(context.Background(), a.ID, nil)
	require.NoError(t, err)

	// B's only dependency is done; C still waits on B.
	assert.Equal(t, []int64{b.ID}, unblocked)
	f.mustStatus(t, b.ID, model.MilestonePending)
	f.mustStatus(t, c.ID, model.MilestonePending)

	msgs := f.milestones.messagesByRoutingKey("milestone.unblocked")
	require.Len(t, msgs, 1)
	assert.Equal(t, b.ID, *msgs[0].AggregateID)
}

func TestComplete_ForcesProgressAndStampsCompletion(t *testing.T) {
	f := newMilestoneFixture(t)

	a := f.create(t, "A")
	_, err := f.svc.Start(context.Background(), a.ID, nil)
	require.NoError(t, err)
	_, err = f.svc.UpdateProgress(context.Background(), a.ID, 40)
	require.NoError(t, err)

	done, _, err := f.svc.Complete(context.Background(), a.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 100, done.Progress)
	assert.NotNil(t, done.CompletedAt)
	assert.NotNil(t, done.ActualEndDate)
	assert.Equal(t, model.MilestoneCompleted, done.Status)
}

func TestComplete_RequiresLegalTransition(t *testing.T) {
	f := newMilestoneFixture(t)

	a := f.create(t, "A")
	// pending -> completed is not in the table.
	_, _, err := f.svc.Complete(context.Background(), a.ID, nil)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	f.mustStatus(t, a.ID, model.MilestonePending)
	assert.Empty(t, f.milestones.messagesByRoutingKey("milestone.completed"))
}

func TestUpdateProgress_RangeAndIdempotency(t *testing.T) {
	f := newMilestoneFixture(t)

	a := f.create(t, "A")
	_, err := f.svc.Start(context.Background(), a.ID, nil)
	require.NoError(t, err)

	_, err = f.svc.UpdateProgress(context.Background(), a.ID, -1)
	assert.ErrorIs(t, err, model.ErrInvalidRange)
	_, err = f.svc.UpdateProgress(context.Background(), a.ID, 101)
	assert.ErrorIs(t, err, model.ErrInvalidRange)

	m, err := f.svc.UpdateProgress(context.Background(), a.ID, 60)
	require.NoError(t, err)
	assert.Equal(t, 60, m.Progress)

	// Same value again is a no-op, not an error.
	m, err = f.svc.UpdateProgress(context.Background(), a.ID, 60)
	require.NoError(t, err)
	assert.Equal(t, 60, m.Progress)
}

func TestUpdateProgress_FullProgressDoesNotComplete(t *testing.T) {
	f := newMilestoneFixture(t)

	a := f.create(t, "A")
	_, err := f.svc.Start(context.Background(), a.ID, nil)
	require.NoError(t, err)

	m, err := f.svc.UpdateProgress(context.Background(), a.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, m.Progress)
	assert.Equal(t, model.MilestoneInProgress, m.Status)
	assert.Nil(t, m.CompletedAt)
}

func TestUpdateProgress_FrozenAfterCompletion(t *testing.T) {
	f := newMilestoneFixture(t)

	a := f.create(t, "A")
	_, err := f.svc.Start(context.Background(), a.ID, nil)
	require.NoError(t, err)
	_, _, err = f.svc.Complete(context.Background(), a.ID, nil)
	require.NoError(t, err)

	_, err = f.svc.UpdateProgress(context.Background(), a.ID, 50)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestAddDependency_RejectsCycle(t *testing.T) {
	f := newMilestoneFixture(t)

	a := f.create(t, "A")
	b := f.create(t, "B", a.ID)
	c := f.create(t, "C", b.ID)

	// c -> b -> a already; a depending on c closes the loop.
	err := f.svc.AddDependency(context.Background(), a.ID, c.ID)
	assert.ErrorIs(t, err, model.ErrIntegrity)

	// The graph is untouched.
	m, err := f.milestones.FindByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Empty(t, m.DependencyIDs)
}

func TestAddDependency_RejectsSelf(t *testing.T) {
	f := newMilestoneFixture(t)

	a := f.create(t, "A")
	err := f.svc.AddDependency(context.Background(), a.ID, a.ID)
	assert.ErrorIs(t, err, model.ErrIntegrity)
}

func TestAddDependency_OK(t *testing.T) {
	f := newMilestoneFixture(t)

	a := f.create(t, "A")
	b := f.create(t, "B")
	require.NoError(t, f.svc.AddDependency(context.Background(), b.ID, a.ID))

	m, err := f.milestones.FindByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID}, m.DependencyIDs)
}

func TestComments_ThreadingAndEditing(t *testing.T) {
	f := newMilestoneFixture(t)

	a := f.create(t, "A")
	root, err := f.svc.AddComment(context.Background(), a.ID, 7, "looks good", nil)
	require.NoError(t, err)

	reply, err := f.svc.AddComment(context.Background(), a.ID, 8, "agreed", &root.ID)
	require.NoError(t, err)
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, root.ID, *reply.ParentID)

	// Parent must belong to the same milestone.
	other := f.create(t, "B")
	_, err = f.svc.AddComment(context.Background(), other.ID, 7, "misplaced", &root.ID)
	assert.ErrorIs(t, err, model.ErrIntegrity)

	// Only the author edits.
	err = f.svc.EditComment(context.Background(), root.ID, 8, "hijacked")
	assert.ErrorIs(t, err, model.ErrIntegrity)
	require.NoError(t, f.svc.EditComment(context.Background(), root.ID, 7, "revised"))

	edited, err := f.comments.FindByID(context.Background(), root.ID)
	require.NoError(t, err)
	assert.True(t, edited.IsEdited)
	assert.Equal(t, "revised", edited.Content)
}

func TestTimeline_Stats(t *testing.T) {
	f := newMilestoneFixture(t)

	a := f.create(t, "A")
	f.create(t, "B", a.ID)

	overdueEnd := time.Now().UTC().AddDate(0, 0, -3)
	late, err := f.svc.Create(context.Background(), CreateMilestoneInput{
		ProjectID:      f.projectID,
		Name:           "Late",
		PlannedEndDate: &overdueEnd,
	})
	require.NoError(t, err)

	_, err = f.svc.Start(context.Background(), a.ID, nil)
	require.NoError(t, err)
	_, _, err = f.svc.Complete(context.Background(), a.ID, nil)
	require.NoError(t, err)
	_, err = f.svc.Start(context.Background(), late.ID, nil)
	require.NoError(t, err)

	tl, err := f.svc.Timeline(context.Background(), f.projectID)
	require.NoError(t, err)
	assert.Equal(t, 3, tl.Total)
	assert.Equal(t, 1, tl.Completed)
	assert.Equal(t, 1, tl.InProgress)
	assert.Equal(t, 1, tl.OverdueCount)
	assert.InDelta(t, 100.0/3, tl.AverageProgress, 0.01)
	assert.Len(t, tl.Rows, 3)
}

func TestCriticalPath_UsesDependencyGraph(t *testing.T) {
	f := newMilestoneFixture(t)

	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 4)
	a, err := f.svc.Create(context.Background(), CreateMilestoneInput{
		ProjectID:        f.projectID,
		Name:             "A",
		PlannedStartDate: &start,
		PlannedEndDate:   &end,
	})
	require.NoError(t, err)

	bStart := end
	bEnd := bStart.AddDate(0, 0, 6)
	b, err := f.svc.Create(context.Background(), CreateMilestoneInput{
		ProjectID:        f.projectID,
		Name:             "B",
		PlannedStartDate: &bStart,
		PlannedEndDate:   &bEnd,
		DependencyIDs:    []int64{a.ID},
	})
	require.NoError(t, err)

	cp, err := f.svc.CriticalPath(context.Background(), f.projectID)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, b.ID}, cp.MilestoneIDs)
	assert.Equal(t, 10, cp.TotalDays)
}

func TestCreateProject_DraftWithStream(t *testing.T) {
	f := newMilestoneFixture(t)

	project, err := f.svc.CreateProject(context.Background(), "Atlas", nil)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectDraft, project.Status)

	_, err = f.streams.FindByOwner(context.Background(),
		model.OwnerRef{Kind: model.OwnerProject, ID: project.ID})
	assert.NoError(t, err, "project gets a stream on creation")
}

func TestCreateProject_RequiresName(t *testing.T) {
	f := newMilestoneFixture(t)
	_, err := f.svc.CreateProject(context.Background(), "", nil)
	assert.ErrorIs(t, err, model.ErrInvalidRange)
}

func TestTransitionProject_Lifecycle(t *testing.T) {
	f := newMilestoneFixture(t)
	project, err := f.svc.CreateProject(context.Background(), "Atlas", nil)
	require.NoError(t, err)

	activated, err := f.svc.TransitionProject(context.Background(), project.ID, model.ProjectActive)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectActive, activated.Status)

	stored, err := f.projects.FindByID(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectActive, stored.Status)

	// draft is not reachable again once active
	_, err = f.svc.TransitionProject(context.Background(), project.ID, model.ProjectDraft)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}
