package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"projectstream/internal/model"
	"projectstream/internal/service"
)

type SubscriptionHandler struct {
	subs   *service.SubscriptionService
	logger *zap.Logger
}

func NewSubscriptionHandler(subs *service.SubscriptionService, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs, logger: logger}
}

type subscribeRequest struct {
	UserID   int64  `json:"user_id" binding:"required"`
	StreamID int64  `json:"stream_id" binding:"required"`
	Type     string `json:"subscription_type"`

	NotifyEmail bool `json:"notify_email"`
	NotifyPush  bool `json:"notify_push"`
	NotifySMS   bool `json:"notify_sms"`

	MinImportance string `json:"min_importance"`
}

func (h *SubscriptionHandler) Subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Subscribe: invalid body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.subs.Subscribe(c.Request.Context(), service.SubscribeInput{
		UserID:        req.UserID,
		StreamID:      req.StreamID,
		Type:          model.SubscriptionType(req.Type),
		NotifyEmail:   req.NotifyEmail,
		NotifyPush:    req.NotifyPush,
		NotifySMS:     req.NotifySMS,
		MinImportance: model.EventImportance(req.MinImportance),
	})
	if err != nil {
		h.logger.Error("Subscribe: failed",
			zap.Int64("user_id", req.UserID),
			zap.Int64("stream_id", req.StreamID),
			zap.Error(err),
		)
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

func (h *SubscriptionHandler) Unsubscribe(c *gin.Context) {
	var req struct {
		UserID   int64 `json:"user_id" binding:"required"`
		StreamID int64 `json:"stream_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.subs.Unsubscribe(c.Request.Context(), req.UserID, req.StreamID); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SubscriptionHandler) MarkAsRead(c *gin.Context) {
	var req struct {
		UserID   int64 `json:"user_id" binding:"required"`
		StreamID int64 `json:"stream_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.subs.MarkAsRead(c.Request.Context(), req.UserID, req.StreamID); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SubscriptionHandler) List(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}

	subs, err := h.subs.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}

func (h *SubscriptionHandler) Dashboard(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}

	dashboard, err := h.subs.UserDashboard(c.Request.Context(), userID, limitQuery(c, 10))
	if err != nil {
		h.logger.Error("Dashboard: failed", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"dashboard": dashboard})
}
