package service

import (
	"context"
	"fmt"
	"time"

	"projectstream/internal/model"
	"projectstream/pkg/outbox"
)

// In-memory store fakes. They mirror the repository semantics closely enough
// to drive the services: not-found errors, upsert behavior, counter bumps.

type fakeProjectStore struct {
	projects map[int64]*model.Project
	nextID   int64
}

func newFakeProjectStore() *fakeProjectStore {
	return &fakeProjectStore{projects: make(map[int64]*model.Project)}
}

func (f *fakeProjectStore) Insert(_ context.Context, p *model.Project) error {
	f.nextID++
	p.ID = f.nextID
	p.CreatedAt = time.Now().UTC()
	f.projects[p.ID] = p
	return nil
}

func (f *fakeProjectStore) FindByID(_ context.Context, id int64) (*model.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return nil, fmt.Errorf("%w: project %d", model.ErrNotFound, id)
	}
	return p, nil
}

func (f *fakeProjectStore) UpdateStatus(_ context.Context, id int64, status model.ProjectStatus) error {
	p, ok := f.projects[id]
	if !ok {
		return fmt.Errorf("%w: project %d", model.ErrNotFound, id)
	}
	p.Status = status
	return nil
}

type fakeMilestoneStore struct {
	milestones map[int64]*model.Milestone
	nextID     int64

	// savedMessages collects the outbox messages passed to Save, in order.
	savedMessages []outbox.Message

	// beforeSave, when set, runs at the top of Save; tests use it to commit
	// a competing write between a service's read and its save.
	beforeSave func()
}

func newFakeMilestoneStore() *fakeMilestoneStore {
	return &fakeMilestoneStore{milestones: make(map[int64]*model.Milestone)}
}

func (f *fakeMilestoneStore) Insert(_ context.Context, m *model.Milestone) error {
	f.nextID++
	m.ID = f.nextID
	m.CreatedAt = time.Now().UTC()
	copied := *m
	f.milestones[m.ID] = &copied
	return nil
}

func (f *fakeMilestoneStore) FindByID(_ context.Context, id int64) (*model.Milestone, error) {
	m, ok := f.milestones[id]
	if !ok {
		return nil, fmt.Errorf("%w: milestone %d", model.ErrNotFound, id)
	}
	copied := *m
	return &copied, nil
}

func (f *fakeMilestoneStore) ListByProject(_ context.Context, projectID int64) ([]*model.Milestone, error) {
	var out []*model.Milestone
	for id := int64(1); id <= f.nextID; id++ {
		if m, ok := f.milestones[id]; ok && m.ProjectID == projectID {
			copied := *m
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeMilestoneStore) ListByIDs(_ context.Context, ids []int64) ([]*model.Milestone, error) {
	var out []*model.Milestone
	for _, id := range ids {
		if m, ok := f.milestones[id]; ok {
			copied := *m
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeMilestoneStore) ListDependents(_ context.Context, id int64) ([]*model.Milestone, error) {
	var out []*model.Milestone
	for mid := int64(1); mid <= f.nextID; mid++ {
		m, ok := f.milestones[mid]
		if !ok {
			continue
		}
		for _, depID := range m.DependencyIDs {
			if depID == id {
				copied := *m
				out = append(out, &copied)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeMilestoneStore) ListAssignedOpen(_ context.Context, userID int64, limit int) ([]*model.Milestone, error) {
	var out []*model.Milestone
	for id := int64(1); id <= f.nextID; id++ {
		m, ok := f.milestones[id]
		if !ok || m.AssignedTo == nil || *m.AssignedTo != userID {
			continue
		}
		if m.Status == model.MilestoneCompleted || m.Status == model.MilestoneCancelled {
			continue
		}
		copied := *m
		out = append(out, &copied)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeMilestoneStore) Save(_ context.Context, m *model.Milestone, msgs ...outbox.Message) error {
	if f.beforeSave != nil {
		f.beforeSave()
	}
	stored, ok := f.milestones[m.ID]
	if !ok {
		return fmt.Errorf("%w: milestone %d", model.ErrNotFound, m.ID)
	}
	// Mirrors the repository's guarded update: a save carrying a stale
	// updated_at lost a race and is rejected.
	if !stored.UpdatedAt.Equal(m.UpdatedAt) {
		return fmt.Errorf("%w: milestone %d was modified concurrently", model.ErrInvalidTransition, m.ID)
	}
	m.UpdatedAt = time.Now().UTC()
	copied := *m
	f.milestones[m.ID] = &copied
	f.savedMessages = append(f.savedMessages, msgs...)
	return nil
}

func (f *fakeMilestoneStore) AddDependency(_ context.Context, milestoneID, dependsOnID int64) error {
	m, ok := f.milestones[milestoneID]
	if !ok {
		return fmt.Errorf("%w: milestone %d", model.ErrNotFound, milestoneID)
	}
	for _, id := range m.DependencyIDs {
		if id == dependsOnID {
			return nil
		}
	}
	m.DependencyIDs = append(m.DependencyIDs, dependsOnID)
	return nil
}

func (f *fakeMilestoneStore) SetStream(_ context.Context, milestoneID, streamID int64) error {
	m, ok := f.milestones[milestoneID]
	if !ok {
		return fmt.Errorf("%w: milestone %d", model.ErrNotFound, milestoneID)
	}
	m.StreamID = &streamID
	return nil
}

// messagesByRoutingKey filters collected outbox messages.
func (f *fakeMilestoneStore) messagesByRoutingKey(key string) []outbox.Message {
	var out []outbox.Message
	for _, msg := range f.savedMessages {
		if msg.RoutingKey == key {
			out = append(out, msg)
		}
	}
	return out
}

type fakeStreamStore struct {
	streams map[int64]*model.Stream
	byOwner map[model.OwnerRef]int64
	nextID  int64

	recomputes int
}

func newFakeStreamStore() *fakeStreamStore {
	return &fakeStreamStore{
		streams: make(map[int64]*model.Stream),
		byOwner: make(map[model.OwnerRef]int64),
	}
}

func (f *fakeStreamStore) GetOrCreateForOwner(_ context.Context, s *model.Stream) (bool, error) {
	if id, ok := f.byOwner[s.Owner]; ok {
		*s = *f.streams[id]
		return false, nil
	}
	f.nextID++
	s.ID = f.nextID
	s.CreatedAt = time.Now().UTC()
	copied := *s
	f.streams[s.ID] = &copied
	f.byOwner[s.Owner] = s.ID
	return true, nil
}

func (f *fakeStreamStore) FindByID(_ context.Context, id int64) (*model.Stream, error) {
	s, ok := f.streams[id]
	if !ok {
		return nil, fmt.Errorf("%w: stream %d", model.ErrNotFound, id)
	}
	copied := *s
	return &copied, nil
}

func (f *fakeStreamStore) FindByOwner(_ context.Context, owner model.OwnerRef) (*model.Stream, error) {
	id, ok := f.byOwner[owner]
	if !ok {
		return nil, fmt.Errorf("%w: stream for %s", model.ErrNotFound, owner)
	}
	return f.FindByID(nil, id)
}

func (f *fakeStreamStore) RecomputeCounters(_ context.Context, streamID int64) (*model.Stream, error) {
	s, ok := f.streams[streamID]
	if !ok {
		return nil, fmt.Errorf("%w: stream %d", model.ErrNotFound, streamID)
	}
	f.recomputes++
	copied := *s
	return &copied, nil
}

func (f *fakeStreamStore) UpdateSubscriberCount(_ context.Context, streamID int64) error {
	if _, ok := f.streams[streamID]; !ok {
		return fmt.Errorf("%w: stream %d", model.ErrNotFound, streamID)
	}
	return nil
}

type fakeEventStore struct {
	events map[int64][]*model.StreamEvent
	nextID int64

	subs *fakeSubscriptionStore

	// lastNotified records the subscription IDs passed to the latest Append.
	lastNotified []int64
	messages     []outbox.Message
}

func newFakeEventStore(subs *fakeSubscriptionStore) *fakeEventStore {
	return &fakeEventStore{events: make(map[int64][]*model.StreamEvent), subs: subs}
}

func (f *fakeEventStore) Append(_ context.Context, e *model.StreamEvent, notifySubscriptionIDs []int64, msgs ...outbox.Message) error {
	f.nextID++
	e.ID = f.nextID
	e.CreatedAt = time.Now().UTC().Add(time.Duration(f.nextID) * time.Millisecond)
	copied := *e
	f.events[e.StreamID] = append(f.events[e.StreamID], &copied)
	f.lastNotified = notifySubscriptionIDs
	f.messages = append(f.messages, msgs...)
	if f.subs != nil {
		for _, subID := range notifySubscriptionIDs {
			f.subs.incrementUnread(subID)
		}
	}
	return nil
}

func (f *fakeEventStore) ListByStream(_ context.Context, streamID int64, limit int) ([]*model.StreamEvent, error) {
	events := f.events[streamID]
	// Newest first, as the repository orders them.
	out := make([]*model.StreamEvent, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		copied := *events[i]
		out = append(out, &copied)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeEventStore) ListForFeed(_ context.Context, streamID int64, min model.EventImportance, limit int) ([]*model.StreamEvent, error) {
	events := f.events[streamID]
	out := make([]*model.StreamEvent, 0, limit)
	for i := len(events) - 1; i >= 0; i-- {
		if !events[i].Importance.AtLeast(min) {
			continue
		}
		copied := *events[i]
		out = append(out, &copied)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeEventStore) CountByStream(_ context.Context, streamID int64) (int64, error) {
	return int64(len(f.events[streamID])), nil
}

func (f *fakeEventStore) Search(_ context.Context, query string, limit int) ([]*model.StreamEvent, error) {
	return nil, nil
}

type fakeCommentStore struct {
	comments map[int64]*model.MilestoneComment
	nextID   int64
}

func newFakeCommentStore() *fakeCommentStore {
	return &fakeCommentStore{comments: make(map[int64]*model.MilestoneComment)}
}

func (f *fakeCommentStore) Insert(_ context.Context, c *model.MilestoneComment) error {
	f.nextID++
	c.ID = f.nextID
	c.CreatedAt = time.Now().UTC()
	copied := *c
	f.comments[c.ID] = &copied
	return nil
}

func (f *fakeCommentStore) FindByID(_ context.Context, id int64) (*model.MilestoneComment, error) {
	c, ok := f.comments[id]
	if !ok {
		return nil, fmt.Errorf("%w: comment %d", model.ErrNotFound, id)
	}
	copied := *c
	return &copied, nil
}

func (f *fakeCommentStore) ListByMilestone(_ context.Context, milestoneID int64) ([]*model.MilestoneComment, error) {
	var out []*model.MilestoneComment
	for id := int64(1); id <= f.nextID; id++ {
		if c, ok := f.comments[id]; ok && c.MilestoneID == milestoneID {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeCommentStore) UpdateContent(_ context.Context, id int64, content string, editedAt time.Time) error {
	c, ok := f.comments[id]
	if !ok {
		return fmt.Errorf("%w: comment %d", model.ErrNotFound, id)
	}
	c.Content = content
	c.IsEdited = true
	c.EditedAt = &editedAt
	return nil
}

type subKey struct {
	userID   int64
	streamID int64
}

type fakeSubscriptionStore struct {
	subs   map[subKey]*model.StreamSubscription
	nextID int64
}

func newFakeSubscriptionStore() *fakeSubscriptionStore {
	return &fakeSubscriptionStore{subs: make(map[subKey]*model.StreamSubscription)}
}

func (f *fakeSubscriptionStore) Upsert(_ context.Context, s *model.StreamSubscription) (bool, error) {
	key := subKey{s.UserID, s.StreamID}
	if existing, ok := f.subs[key]; ok {
		existing.Type = s.Type
		existing.IsActive = true
		existing.NotifyEmail = s.NotifyEmail
		existing.NotifyPush = s.NotifyPush
		existing.NotifySMS = s.NotifySMS
		existing.MinImportance = s.MinImportance
		existing.UpdatedAt = time.Now().UTC()
		*s = *existing
		return false, nil
	}
	f.nextID++
	s.ID = f.nextID
	s.CreatedAt = time.Now().UTC()
	copied := *s
	f.subs[key] = &copied
	return true, nil
}

func (f *fakeSubscriptionStore) FindByUserAndStream(_ context.Context, userID, streamID int64) (*model.StreamSubscription, error) {
	s, ok := f.subs[subKey{userID, streamID}]
	if !ok {
		return nil, fmt.Errorf("%w: subscription", model.ErrNotFound)
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSubscriptionStore) ListActiveByUser(_ context.Context, userID int64) ([]*model.StreamSubscription, error) {
	var out []*model.StreamSubscription
	for id := int64(1); id <= f.nextID; id++ {
		for _, s := range f.subs {
			if s.ID == id && s.UserID == userID && s.IsActive {
				copied := *s
				out = append(out, &copied)
			}
		}
	}
	return out, nil
}

func (f *fakeSubscriptionStore) ListActiveByStream(_ context.Context, streamID int64) ([]*model.StreamSubscription, error) {
	var out []*model.StreamSubscription
	for id := int64(1); id <= f.nextID; id++ {
		for _, s := range f.subs {
			if s.ID == id && s.StreamID == streamID && s.IsActive {
				copied := *s
				out = append(out, &copied)
			}
		}
	}
	return out, nil
}

func (f *fakeSubscriptionStore) MarkRead(_ context.Context, id int64, at time.Time) error {
	for _, s := range f.subs {
		if s.ID == id {
			s.UnreadCount = 0
			s.LastReadAt = &at
			return nil
		}
	}
	return fmt.Errorf("%w: subscription %d", model.ErrNotFound, id)
}

func (f *fakeSubscriptionStore) Deactivate(_ context.Context, userID, streamID int64) error {
	s, ok := f.subs[subKey{userID, streamID}]
	if !ok || !s.IsActive {
		return fmt.Errorf("%w: subscription", model.ErrNotFound)
	}
	s.IsActive = false
	return nil
}

func (f *fakeSubscriptionStore) incrementUnread(id int64) {
	for _, s := range f.subs {
		if s.ID == id {
			s.UnreadCount++
			return
		}
	}
}
