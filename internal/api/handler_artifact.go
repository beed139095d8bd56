package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"mockupreview/internal/model"
	"mockupreview/internal/service/review"
)

type decisionRequest struct {
	Action string `json:"action" binding:"required"`
	Notes  string `json:"notes"`
}

// RecordDecision POST /artifacts/:id/stages/:order/decisions；评审人即调用者
func (h *ReviewHandler) RecordDecision(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	order, ok := pathStage(c)
	if !ok {
		return
	}
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action is required"})
		return
	}

	result, err := h.svc.RecordDecision(c.Request.Context(), review.DecisionRequest{
		ArtifactID: id,
		StageOrder: order,
		Reviewer:   actorFrom(c),
		Action:     model.Action(req.Action),
		Notes:      req.Notes,
	})
	if err != nil {
		writeError(c, h.logger, "RecordDecision", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type finalApprovalRequest struct {
	Notes string `json:"notes"`
}

// GrantFinalApproval POST /artifacts/:id/final-approval
func (h *ReviewHandler) GrantFinalApproval(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req finalApprovalRequest
	// body 可省略，但给了就必须是合法 JSON
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	approval, err := h.svc.GrantFinalApproval(c.Request.Context(), id, actorFrom(c), req.Notes)
	if err != nil {
		writeError(c, h.logger, "GrantFinalApproval", err)
		return
	}
	c.JSON(http.StatusCreated, approval)
}

// GetProgress GET /artifacts/:id/progress
func (h *ReviewHandler) GetProgress(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	view, err := h.svc.GetProgress(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, "GetProgress", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ListDecisions GET /artifacts/:id/decisions
func (h *ReviewHandler) ListDecisions(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	records, err := h.svc.ListDecisions(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, "ListDecisions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": records})
}

// Reconcile GET /artifacts/:id/reconcile
func (h *ReviewHandler) Reconcile(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	report, err := h.svc.Reconcile(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, "Reconcile", err)
		return
	}
	c.JSON(http.StatusOK, report)
}
