package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"projectstream/internal/model"
	"projectstream/internal/service"
)

type MilestoneHandler struct {
	milestones *service.MilestoneService
	logger     *zap.Logger
}

func NewMilestoneHandler(milestones *service.MilestoneService, logger *zap.Logger) *MilestoneHandler {
	return &MilestoneHandler{milestones: milestones, logger: logger}
}

func parseID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
		return 0, false
	}
	return id, true
}

type createMilestoneRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Priority    string `json:"priority"`

	PlannedStartDate *time.Time `json:"planned_start_date"`
	PlannedEndDate   *time.Time `json:"planned_end_date"`
	Budget           *float64   `json:"budget"`

	AssignedTo    *int64         `json:"assigned_to"`
	CreatedBy     *int64         `json:"created_by"`
	DependencyIDs []int64        `json:"dependency_ids"`
	Metadata      map[string]any `json:"metadata"`
}

func (h *MilestoneHandler) Create(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req createMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Create: invalid body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	milestone, err := h.milestones.Create(c.Request.Context(), service.CreateMilestoneInput{
		ProjectID:        projectID,
		Name:             req.Name,
		Description:      req.Description,
		Priority:         model.MilestonePriority(req.Priority),
		PlannedStartDate: req.PlannedStartDate,
		PlannedEndDate:   req.PlannedEndDate,
		Budget:           req.Budget,
		AssignedTo:       req.AssignedTo,
		CreatedBy:        req.CreatedBy,
		DependencyIDs:    req.DependencyIDs,
		Metadata:         req.Metadata,
	})
	if err != nil {
		h.logger.Error("Create: failed", zap.Int64("project_id", projectID), zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"milestone": milestone})
}

func (h *MilestoneHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	milestone, err := h.milestones.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	now := time.Now().UTC()
	c.JSON(http.StatusOK, gin.H{
		"milestone":      milestone,
		"overdue":        milestone.Overdue(now),
		"days_remaining": milestone.DaysRemaining(now),
	})
}

func (h *MilestoneHandler) Start(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req struct {
		ActorID *int64 `json:"actor_id"`
	}
	_ = c.ShouldBindJSON(&req)

	milestone, err := h.milestones.Start(c.Request.Context(), id, req.ActorID)
	if err != nil {
		h.logger.Warn("Start: rejected", zap.Int64("milestone_id", id), zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"milestone": milestone})
}

func (h *MilestoneHandler) Complete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req struct {
		ActorID *int64 `json:"actor_id"`
	}
	_ = c.ShouldBindJSON(&req)

	milestone, unblocked, err := h.milestones.Complete(c.Request.Context(), id, req.ActorID)
	if err != nil {
		h.logger.Warn("Complete: rejected", zap.Int64("milestone_id", id), zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"milestone": milestone,
		"unblocked": unblocked,
	})
}

func (h *MilestoneHandler) UpdateProgress(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Progress *int `json:"progress" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Progress == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "progress required"})
		return
	}

	milestone, err := h.milestones.UpdateProgress(c.Request.Context(), id, *req.Progress)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"milestone": milestone})
}

func (h *MilestoneHandler) Transition(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Target string `json:"target" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target required"})
		return
	}

	milestone, err := h.milestones.ApplyTransition(c.Request.Context(), id, model.MilestoneStatus(req.Target))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"milestone": milestone})
}

func (h *MilestoneHandler) AddDependency(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req struct {
		DependsOnID int64 `json:"depends_on_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "depends_on_id required"})
		return
	}

	if err := h.milestones.AddDependency(c.Request.Context(), id, req.DependsOnID); err != nil {
		h.logger.Warn("AddDependency: rejected",
			zap.Int64("milestone_id", id),
			zap.Int64("depends_on_id", req.DependsOnID),
			zap.Error(err),
		)
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *MilestoneHandler) ListComments(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	comments, err := h.milestones.Comments(c.Request.Context(), id)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

func (h *MilestoneHandler) AddComment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req struct {
		AuthorID int64  `json:"author_id" binding:"required"`
		Content  string `json:"content" binding:"required"`
		ParentID *int64 `json:"parent_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	comment, err := h.milestones.AddComment(c.Request.Context(), id, req.AuthorID, req.Content, req.ParentID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"comment": comment})
}

func (h *MilestoneHandler) EditComment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req struct {
		AuthorID int64  `json:"author_id" binding:"required"`
		Content  string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.milestones.EditComment(c.Request.Context(), id, req.AuthorID, req.Content); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *MilestoneHandler) CreateProject(c *gin.Context) {
	var req struct {
		Name    string `json:"name" binding:"required"`
		OwnerID *int64 `json:"owner_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project, err := h.milestones.CreateProject(c.Request.Context(), req.Name, req.OwnerID)
	if err != nil {
		h.logger.Error("CreateProject: failed", zap.String("name", req.Name), zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"project": project})
}

func (h *MilestoneHandler) TransitionProject(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Target string `json:"target" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target required"})
		return
	}

	project, err := h.milestones.TransitionProject(c.Request.Context(), id, model.ProjectStatus(req.Target))
	if err != nil {
		h.logger.Warn("TransitionProject: rejected", zap.Int64("project_id", id), zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

func (h *MilestoneHandler) Timeline(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}
	timeline, err := h.milestones.Timeline(c.Request.Context(), projectID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"timeline": timeline})
}

func (h *MilestoneHandler) CriticalPath(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}
	path, err := h.milestones.CriticalPath(c.Request.Context(), projectID)
	if err != nil {
		h.logger.Warn("CriticalPath: failed", zap.Int64("project_id", projectID), zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"critical_path": path})
}
