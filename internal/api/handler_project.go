package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mockupreview/internal/service/review"
)

type createProjectRequest struct {
	Name       string `json:"name" binding:"required"`
	OwnerID    string `json:"owner_id"`
	WorkflowID *int64 `json:"workflow_id"`
}

// CreateProject POST /projects；未指定 owner_id 时调用者即负责人
func (h *ReviewHandler) CreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	owner := req.OwnerID
	if owner == "" {
		owner = actorFrom(c).ID
	}

	project, err := h.svc.CreateProject(c.Request.Context(), req.Name, owner, req.WorkflowID)
	if err != nil {
		writeError(c, h.logger, "CreateProject", err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

type setWorkflowRequest struct {
	WorkflowID *int64 `json:"workflow_id"`
}

// SetProjectWorkflow PUT /projects/:id/workflow；workflow_id 为 null 表示取消分阶段评审
func (h *ReviewHandler) SetProjectWorkflow(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req setWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	project, err := h.svc.SetProjectWorkflow(c.Request.Context(), id, req.WorkflowID)
	if err != nil {
		writeError(c, h.logger, "SetProjectWorkflow", err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// ListReviewers GET /projects/:id/reviewers
func (h *ReviewHandler) ListReviewers(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	assignments, err := h.svc.ListAssignments(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, "ListReviewers", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviewers": assignments})
}

type assignRequest struct {
	ReviewerID   string `json:"reviewer_id" binding:"required"`
	ReviewerName string `json:"reviewer_name"`
}

// AssignReviewer POST /projects/:id/stages/:order/reviewers
func (h *ReviewHandler) AssignReviewer(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	order, ok := pathStage(c)
	if !ok {
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reviewer_id is required"})
		return
	}

	assignment, err := h.svc.Assign(c.Request.Context(), id, order, review.Actor{ID: req.ReviewerID, Name: req.ReviewerName})
	if err != nil {
		writeError(c, h.logger, "AssignReviewer", err)
		return
	}
	c.JSON(http.StatusCreated, assignment)
}

// UnassignReviewer DELETE /projects/:id/stages/:order/reviewers/:reviewer
func (h *ReviewHandler) UnassignReviewer(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	order, ok := pathStage(c)
	if !ok {
		return
	}

	if err := h.svc.Unassign(c.Request.Context(), id, order, c.Param("reviewer")); err != nil {
		writeError(c, h.logger, "UnassignReviewer", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// QuorumWarnings GET /projects/:id/quorum-warnings
func (h *ReviewHandler) QuorumWarnings(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	warnings, err := h.svc.ZeroQuorumStages(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, "QuorumWarnings", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"warnings": warnings})
}

type submitArtifactRequest struct {
	Title string `json:"title" binding:"required"`
}

// SubmitArtifact POST /projects/:id/artifacts
func (h *ReviewHandler) SubmitArtifact(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req submitArtifactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	result, err := h.svc.SubmitArtifact(c.Request.Context(), id, actorFrom(c), req.Title)
	if err != nil {
		writeError(c, h.logger, "SubmitArtifact", err)
		return
	}
	c.JSON(http.StatusCreated, result)
}
