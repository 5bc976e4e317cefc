package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"projectstream/internal/model"
)

type subscriptionFixture struct {
	streams    *fakeStreamStore
	events     *fakeEventStore
	subs       *fakeSubscriptionStore
	milestones *fakeMilestoneStore

	streamSvc *StreamService
	svc       *SubscriptionService
}

func newSubscriptionFixture() *subscriptionFixture {
	f := &subscriptionFixture{
		streams:    newFakeStreamStore(),
		subs:       newFakeSubscriptionStore(),
		milestones: newFakeMilestoneStore(),
	}
	f.events = newFakeEventStore(f.subs)
	f.streamSvc = NewStreamService(f.streams, f.events, f.subs, zap.NewNop())
	f.svc = NewSubscriptionService(f.streams, f.subs, f.milestones, f.streamSvc, zap.NewNop())
	return f
}

func (f *subscriptionFixture) stream(t *testing.T, ownerID int64) *model.Stream {
	t.Helper()
	stream, err := f.streamSvc.GetOrCreateForObject(context.Background(),
		model.OwnerRef{Kind: model.OwnerProject, ID: ownerID}, "p", nil)
	require.NoError(t, err)
	return stream
}

func TestSubscribe_IdempotentLastWriteWins(t *testing.T) {
	f := newSubscriptionFixture()
	stream := f.stream(t, 1)

	first, err := f.svc.Subscribe(context.Background(), SubscribeInput{
		UserID:        42,
		StreamID:      stream.ID,
		Type:          model.SubscriptionFollow,
		MinImportance: model.ImportanceLow,
	})
	require.NoError(t, err)

	second, err := f.svc.Subscribe(context.Background(), SubscribeInput{
		UserID:        42,
		StreamID:      stream.ID,
		Type:          model.SubscriptionWatch,
		MinImportance: model.ImportanceHigh,
		NotifyEmail:   true,
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "repeat subscribe reuses the row")
	assert.Equal(t, model.SubscriptionWatch, second.Type)
	assert.Equal(t, model.ImportanceHigh, second.MinImportance)
	assert.True(t, second.NotifyEmail)

	subs, err := f.subs.ListActiveByUser(context.Background(), 42)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestSubscribe_Defaults(t *testing.T) {
	f := newSubscriptionFixture()
	stream := f.stream(t, 1)

	sub, err := f.svc.Subscribe(context.Background(), SubscribeInput{
		UserID:   42,
		StreamID: stream.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionFollow, sub.Type)
	assert.Equal(t, model.ImportanceLow, sub.MinImportance)
	assert.True(t, sub.IsActive)
}

func TestSubscribe_UnknownStream(t *testing.T) {
	f := newSubscriptionFixture()
	_, err := f.svc.Subscribe(context.Background(), SubscribeInput{UserID: 1, StreamID: 404})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestUnsubscribe_DeactivatesAndStopsDelivery(t *testing.T) {
	f := newSubscriptionFixture()
	stream := f.stream(t, 1)

	_, err := f.svc.Subscribe(context.Background(), SubscribeInput{UserID: 42, StreamID: stream.ID})
	require.NoError(t, err)
	require.NoError(t, f.svc.Unsubscribe(context.Background(), 42, stream.ID))

	subs, err := f.subs.ListActiveByUser(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, subs)

	// Events appended after deactivation notify nobody.
	_, err = f.streamSvc.AddEvent(context.Background(), AddEventInput{
		Owner:      model.OwnerRef{Kind: model.OwnerProject, ID: 1},
		EventType:  model.EventProjectUpdated,
		Importance: model.ImportanceCritical,
	})
	require.NoError(t, err)
	assert.Empty(t, f.events.lastNotified)

	// A second unsubscribe has nothing to deactivate.
	err = f.svc.Unsubscribe(context.Background(), 42, stream.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestResubscribeAfterUnsubscribe(t *testing.T) {
	f := newSubscriptionFixture()
	stream := f.stream(t, 1)

	_, err := f.svc.Subscribe(context.Background(), SubscribeInput{UserID: 42, StreamID: stream.ID})
	require.NoError(t, err)
	require.NoError(t, f.svc.Unsubscribe(context.Background(), 42, stream.ID))

	sub, err := f.svc.Subscribe(context.Background(), SubscribeInput{UserID: 42, StreamID: stream.ID})
	require.NoError(t, err)
	assert.True(t, sub.IsActive)
}

func TestMarkAsRead_ResetsUnread(t *testing.T) {
	f := newSubscriptionFixture()
	stream := f.stream(t, 1)

	_, err := f.svc.Subscribe(context.Background(), SubscribeInput{UserID: 42, StreamID: stream.ID})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.streamSvc.AddEvent(context.Background(), AddEventInput{
			Owner:     model.OwnerRef{Kind: model.OwnerProject, ID: 1},
			EventType: model.EventProjectUpdated,
		})
		require.NoError(t, err)
	}

	sub, err := f.subs.FindByUserAndStream(context.Background(), 42, stream.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, sub.UnreadCount)

	require.NoError(t, f.svc.MarkAsRead(context.Background(), 42, stream.ID))

	sub, err = f.subs.FindByUserAndStream(context.Background(), 42, stream.ID)
	require.NoError(t, err)
	assert.Zero(t, sub.UnreadCount)
	assert.NotNil(t, sub.LastReadAt)
}

func TestMarkAsRead_NoSubscription(t *testing.T) {
	f := newSubscriptionFixture()
	stream := f.stream(t, 1)
	err := f.svc.MarkAsRead(context.Background(), 42, stream.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestUserDashboard(t *testing.T) {
	f := newSubscriptionFixture()
	stream := f.stream(t, 1)

	_, err := f.svc.Subscribe(context.Background(), SubscribeInput{UserID: 42, StreamID: stream.ID})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := f.streamSvc.AddEvent(context.Background(), AddEventInput{
			Owner:     model.OwnerRef{Kind: model.OwnerProject, ID: 1},
			EventType: model.EventProjectUpdated,
		})
		require.NoError(t, err)
	}

	userID := int64(42)
	open := &model.Milestone{ProjectID: 1, Name: "open", Status: model.MilestoneInProgress, AssignedTo: &userID}
	done := &model.Milestone{ProjectID: 1, Name: "done", Status: model.MilestoneCompleted, AssignedTo: &userID}
	require.NoError(t, f.milestones.Insert(context.Background(), open))
	require.NoError(t, f.milestones.Insert(context.Background(), done))

	d, err := f.svc.UserDashboard(context.Background(), 42, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, d.SubscriptionCount)
	assert.EqualValues(t, 2, d.TotalUnread)
	assert.Len(t, d.RecentEvents, 2)
	require.Len(t, d.OpenMilestones, 1)
	assert.Equal(t, "open", d.OpenMilestones[0].Name)
}
