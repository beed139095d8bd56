package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mockupreview/internal/model"
	"mockupreview/internal/service/review"
)

// ReviewHandler 评审相关的 HTTP 接口
type ReviewHandler struct {
	svc    *review.Service
	logger *zap.Logger
}

func NewReviewHandler(svc *review.Service, logger *zap.Logger) *ReviewHandler {
	return &ReviewHandler{svc: svc, logger: logger}
}

// pathID 解析路径中的整数 id，失败时直接返回 400
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func pathStage(c *gin.Context) (int, bool) {
	order, err := strconv.Atoi(c.Param("order"))
	if err != nil || order <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stage order"})
		return 0, false
	}
	return order, true
}

type workflowRequest struct {
	Name   string        `json:"name"`
	Stages []model.Stage `json:"stages" binding:"required"`
}

// CreateWorkflow POST /workflows
func (h *ReviewHandler) CreateWorkflow(c *gin.Context) {
	var req workflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	wf, err := h.svc.CreateWorkflow(c.Request.Context(), req.Name, req.Stages)
	if err != nil {
		writeError(c, h.logger, "CreateWorkflow", err)
		return
	}
	c.JSON(http.StatusCreated, wf)
}

// ReviseWorkflow POST /workflows/:id/revisions
func (h *ReviewHandler) ReviseWorkflow(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req workflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	wf, err := h.svc.ReviseWorkflow(c.Request.Context(), id, req.Name, req.Stages)
	if err != nil {
		writeError(c, h.logger, "ReviseWorkflow", err)
		return
	}
	c.JSON(http.StatusCreated, wf)
}

// GetWorkflow GET /workflows/:id
func (h *ReviewHandler) GetWorkflow(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	wf, err := h.svc.GetWorkflow(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, "GetWorkflow", err)
		return
	}
	c.JSON(http.StatusOK, wf)
}

// LatestWorkflow GET /workflow-keys/:key/latest
func (h *ReviewHandler) LatestWorkflow(c *gin.Context) {
	wf, err := h.svc.LatestWorkflow(c.Request.Context(), c.Param("key"))
	if err != nil {
		writeError(c, h.logger, "LatestWorkflow", err)
		return
	}
	c.JSON(http.StatusOK, wf)
}
