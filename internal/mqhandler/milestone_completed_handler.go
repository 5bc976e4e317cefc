package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"projectstream/internal/model"
	"projectstream/internal/service"
	"projectstream/pkg/util"
)

const maxRetries = 5

// MilestoneCompletedHandler projects milestone completions onto the owning
// project's stream as high-importance events. Idempotent via redis dedup;
// poison messages stop retrying after maxRetries.
type MilestoneCompletedHandler struct {
	streams      *service.StreamService
	deduper      *util.Deduper
	retryCounter *util.RetryCounter
	logger       *zap.Logger
}

func NewMilestoneCompletedHandler(
	streams *service.StreamService,
	deduper *util.Deduper,
	retryCounter *util.RetryCounter,
	logger *zap.Logger,
) *MilestoneCompletedHandler {
	return &MilestoneCompletedHandler{
		streams:      streams,
		deduper:      deduper,
		retryCounter: retryCounter,
		logger:       logger,
	}
}

func (h *MilestoneCompletedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p struct {
		MilestoneID int64   `json:"milestone_id"`
		ProjectID   int64   `json:"project_id"`
		Name        string  `json:"name"`
		ActorID     *int64  `json:"actor_id"`
		Unblocked   []int64 `json:"unblocked"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal milestone.completed payload (non-retryable)",
			zap.Error(err),
			zap.String("raw_payload", string(raw)),
		)
		return fmt.Errorf("json_unmarshal_error: %w", err)
	}

	h.logger.Info("Handling milestone.completed event",
		zap.Int64("milestone_id", p.MilestoneID),
		zap.Int64("project_id", p.ProjectID),
		zap.Int("unblocked", len(p.Unblocked)),
	)

	if !h.deduper.AcquireOnce(ctx, "milestone_completed", p.MilestoneID) {
		return nil
	}

	retryCount, err := h.retryCounter.Bump(ctx, "milestone_completed", p.MilestoneID)
	if err != nil {
		h.logger.Warn("Failed to get retry count, continuing anyway",
			zap.Int64("milestone_id", p.MilestoneID),
			zap.Error(err),
		)
		retryCount = 1
	}

	_, err = h.streams.AddEvent(ctx, service.AddEventInput{
		Owner:       model.OwnerRef{Kind: model.OwnerProject, ID: p.ProjectID},
		EventType:   model.EventMilestoneCompleted,
		Importance:  model.ImportanceHigh,
		Title:       fmt.Sprintf("Milestone %q completed", p.Name),
		Description: fmt.Sprintf("Completion unblocked %d dependent milestone(s)", len(p.Unblocked)),
		ActorID:     p.ActorID,
		MilestoneID: &p.MilestoneID,
		Metadata: map[string]any{
			"unblocked": p.Unblocked,
		},
	})
	if err != nil {
		isRetryable, errType := util.IsRetryableError(err)
		h.logger.Error("Failed to append completion event",
			zap.Int64("milestone_id", p.MilestoneID),
			zap.String("error_type", errType),
			zap.Bool("retryable", isRetryable),
			zap.Int64("retry_count", retryCount),
			zap.Error(err),
		)
		if !util.ShouldRetry(retryCount, maxRetries, isRetryable) {
			h.retryCounter.Clear(ctx, "milestone_completed", p.MilestoneID)
			return nil
		}
		return err
	}

	h.retryCounter.Clear(ctx, "milestone_completed", p.MilestoneID)
	return nil
}
