package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"projectstream/internal/model"
	"projectstream/internal/service"
)

type StreamHandler struct {
	streams *service.StreamService
	logger  *zap.Logger
}

func NewStreamHandler(streams *service.StreamService, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{streams: streams, logger: logger}
}

func limitQuery(c *gin.Context, fallback int) int {
	raw := c.Query("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}

type addEventRequest struct {
	OwnerKind   string `json:"owner_kind" binding:"required"`
	OwnerID     int64  `json:"owner_id" binding:"required"`
	EventType   string `json:"event_type" binding:"required"`
	Importance  string `json:"importance"`
	Title       string `json:"title"`
	Description string `json:"description"`

	ActorID      *int64         `json:"actor_id"`
	ActorDisplay string         `json:"actor_display"`
	MilestoneID  *int64         `json:"milestone_id"`
	Metadata     map[string]any `json:"metadata"`
}

func (h *StreamHandler) AddEvent(c *gin.Context) {
	var req addEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("AddEvent: invalid body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := h.streams.AddEvent(c.Request.Context(), service.AddEventInput{
		Owner:        model.OwnerRef{Kind: model.OwnerKind(req.OwnerKind), ID: req.OwnerID},
		EventType:    model.EventType(req.EventType),
		Importance:   model.EventImportance(req.Importance),
		Title:        req.Title,
		Description:  req.Description,
		ActorID:      req.ActorID,
		ActorDisplay: req.ActorDisplay,
		MilestoneID:  req.MilestoneID,
		Metadata:     req.Metadata,
	})
	if err != nil {
		h.logger.Error("AddEvent: failed",
			zap.String("owner_kind", req.OwnerKind),
			zap.Int64("owner_id", req.OwnerID),
			zap.Error(err),
		)
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"event": event})
}

func (h *StreamHandler) Get(c *gin.Context) {
	streamID, ok := parseID(c, "id")
	if !ok {
		return
	}
	stream, err := h.streams.Stream(c.Request.Context(), streamID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stream": stream})
}

func (h *StreamHandler) ListEvents(c *gin.Context) {
	streamID, ok := parseID(c, "id")
	if !ok {
		return
	}
	events, err := h.streams.StreamEvents(c.Request.Context(), streamID, limitQuery(c, 50))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *StreamHandler) Search(c *gin.Context) {
	query := c.Query("q")
	events, err := h.streams.SearchEvents(c.Request.Context(), query, limitQuery(c, 50))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *StreamHandler) Feed(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}

	items, err := h.streams.UserFeed(c.Request.Context(), userID, limitQuery(c, 50))
	if err != nil {
		h.logger.Error("Feed: failed", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"feed": items})
}

func (h *StreamHandler) RecomputeCounters(c *gin.Context) {
	streamID, ok := parseID(c, "id")
	if !ok {
		return
	}
	stream, err := h.streams.RecomputeCounters(c.Request.Context(), streamID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stream": stream})
}
