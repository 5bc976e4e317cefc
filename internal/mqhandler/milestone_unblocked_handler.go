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

// MilestoneUnblockedHandler records on an unblocked milestone's own stream
// that every prerequisite is now completed, so watchers see it in their
// feeds. Starting the milestone remains an explicit action.
type MilestoneUnblockedHandler struct {
	streams      *service.StreamService
	deduper      *util.Deduper
	retryCounter *util.RetryCounter
	logger       *zap.Logger
}

func NewMilestoneUnblockedHandler(
	streams *service.StreamService,
	deduper *util.Deduper,
	retryCounter *util.RetryCounter,
	logger *zap.Logger,
) *MilestoneUnblockedHandler {
	return &MilestoneUnblockedHandler{
		streams:      streams,
		deduper:      deduper,
		retryCounter: retryCounter,
		logger:       logger,
	}
}

func (h *MilestoneUnblockedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p struct {
		MilestoneID int64 `json:"milestone_id"`
		ProjectID   int64 `json:"project_id"`
		UnblockedBy int64 `json:"unblocked_by"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal milestone.unblocked payload (non-retryable)",
			zap.Error(err),
			zap.String("raw_payload", string(raw)),
		)
		return fmt.Errorf("json_unmarshal_error: %w", err)
	}

	h.logger.Info("Handling milestone.unblocked event",
		zap.Int64("milestone_id", p.MilestoneID),
		zap.Int64("unblocked_by", p.UnblockedBy),
	)

	if !h.deduper.AcquireOnce(ctx, "milestone_unblocked", p.MilestoneID) {
		return nil
	}

	retryCount, err := h.retryCounter.Bump(ctx, "milestone_unblocked", p.MilestoneID)
	if err != nil {
		h.logger.Warn("Failed to get retry count, continuing anyway",
			zap.Int64("milestone_id", p.MilestoneID),
			zap.Error(err),
		)
		retryCount = 1
	}

	_, err = h.streams.AddEvent(ctx, service.AddEventInput{
		Owner:       model.OwnerRef{Kind: model.OwnerMilestone, ID: p.MilestoneID},
		EventType:   model.EventMilestoneUnblocked,
		Importance:  model.ImportanceNormal,
		Title:       "All prerequisites completed",
		Description: fmt.Sprintf("Unblocked by completion of milestone %d", p.UnblockedBy),
		MilestoneID: &p.MilestoneID,
		Metadata: map[string]any{
			"unblocked_by": p.UnblockedBy,
		},
	})
	if err != nil {
		isRetryable, errType := util.IsRetryableError(err)
		h.logger.Error("Failed to append unblocked event",
			zap.Int64("milestone_id", p.MilestoneID),
			zap.String("error_type", errType),
			zap.Bool("retryable", isRetryable),
			zap.Int64("retry_count", retryCount),
			zap.Error(err),
		)
		if !util.ShouldRetry(retryCount, maxRetries, isRetryable) {
			h.retryCounter.Clear(ctx, "milestone_unblocked", p.MilestoneID)
			return nil
		}
		return err
	}

	h.retryCounter.Clear(ctx, "milestone_unblocked", p.MilestoneID)
	return nil
}
