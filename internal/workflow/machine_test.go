package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projectstream/internal/model"
)

type fakeEntity struct {
	state State
}

func (e *fakeEntity) WorkflowState() State         { return e.state }
func (e *fakeEntity) SetWorkflowState(state State) { e.state = state }

func TestForKind_AllKindsRegistered(t *testing.T) {
	want := []Kind{KindQuote, KindInvoice, KindOrder, KindMilestone, KindProject}
	assert.ElementsMatch(t, want, Definitions())

	for _, kind := range want {
		m, err := ForKind(kind)
		require.NoError(t, err, "kind %s", kind)
		assert.Equal(t, kind, m.Kind())
	}
}

func TestForKind_UnknownKind(t *testing.T) {
	_, err := ForKind("spaceship")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestApply_LegalTransition(t *testing.T) {
	m, err := ForKind(KindMilestone)
	require.NoError(t, err)

	e := &fakeEntity{state: "pending"}
	require.NoError(t, m.Apply(context.Background(), e, "planned"))
	assert.Equal(t, State("planned"), e.state)
}

func TestApply_IllegalTransition(t *testing.T) {
	m, err := ForKind(KindMilestone)
	require.NoError(t, err)

	e := &fakeEntity{state: "pending"}
	err = m.Apply(context.Background(), e, "completed")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	assert.Equal(t, State("pending"), e.state, "state must not move on a rejected transition")
}

func TestApply_TerminalStateHasNoExits(t *testing.T) {
	m, err := ForKind(KindMilestone)
	require.NoError(t, err)

	e := &fakeEntity{state: "completed"}
	for _, target := range []State{"pending", "in_progress", "cancelled", "completed"} {
		err := m.Apply(context.Background(), e, target)
		assert.ErrorIs(t, err, model.ErrInvalidTransition, "completed -> %s", target)
	}
}

func TestApply_HooksRunInOrder(t *testing.T) {
	m, err := ForKind(KindQuote)
	require.NoError(t, err)

	var calls []string
	m.OnExit("draft", func(ctx context.Context, from, to State) error {
		calls = append(calls, fmt.Sprintf("exit:%s->%s", from, to))
		return nil
	})
	m.OnEnter("sent", func(ctx context.Context, from, to State) error {
		calls = append(calls, fmt.Sprintf("enter:%s->%s", from, to))
		return nil
	})

	e := &fakeEntity{state: "draft"}
	require.NoError(t, m.Apply(context.Background(), e, "sent"))
	assert.Equal(t, []string{"exit:draft->sent", "enter:draft->sent"}, calls)
}

func TestApply_EnterHookErrorAbortsCommit(t *testing.T) {
	m, err := ForKind(KindQuote)
	require.NoError(t, err)

	hookErr := errors.New("enter refused")
	m.OnEnter("sent", func(ctx context.Context, from, to State) error {
		return hookErr
	})

	e := &fakeEntity{state: "draft"}
	err = m.Apply(context.Background(), e, "sent")
	assert.ErrorIs(t, err, hookErr)
	assert.Equal(t, State("draft"), e.state, "failed transition must not move the entity")
}

func TestCanTransition(t *testing.T) {
	m, err := ForKind(KindOrder)
	require.NoError(t, err)

	assert.True(t, m.CanTransition("pending", "confirmed"))
	assert.True(t, m.CanTransition("shipped", "delivered"))
	assert.False(t, m.CanTransition("pending", "shipped"))
	assert.False(t, m.CanTransition("delivered", "pending"))
	assert.False(t, m.CanTransition("nonsense", "pending"))
}

func TestAllowedTargets(t *testing.T) {
	m, err := ForKind(KindMilestone)
	require.NoError(t, err)

	targets := m.AllowedTargets("in_progress")
	assert.ElementsMatch(t, []State{"completed", "delayed", "on_hold", "cancelled"}, targets)

	assert.Empty(t, m.AllowedTargets("completed"))
}

func TestMilestoneTable_DelayedRecovers(t *testing.T) {
	m, err := ForKind(KindMilestone)
	require.NoError(t, err)

	e := &fakeEntity{state: "in_progress"}
	require.NoError(t, m.Apply(context.Background(), e, "delayed"))
	require.NoError(t, m.Apply(context.Background(), e, "in_progress"))
	require.NoError(t, m.Apply(context.Background(), e, "completed"))
	assert.Equal(t, State("completed"), e.state)
}

func TestQuoteTable_FullLifecycle(t *testing.T) {
	m, err := ForKind(KindQuote)
	require.NoError(t, err)

	e := &fakeEntity{state: "draft"}
	require.NoError(t, m.Apply(context.Background(), e, "sent"))
	require.NoError(t, m.Apply(context.Background(), e, "accepted"))
	require.NoError(t, m.Apply(context.Background(), e, "converted"))

	err = m.Apply(context.Background(), e, "cancelled")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestInvoiceTable_OverduePaid(t *testing.T) {
	m, err := ForKind(KindInvoice)
	require.NoError(t, err)

	e := &fakeEntity{state: "issued"}
	require.NoError(t, m.Apply(context.Background(), e, "overdue"))
	require.NoError(t, m.Apply(context.Background(), e, "paid"))
	assert.Equal(t, State("paid"), e.state)
}
