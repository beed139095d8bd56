package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mockupreview/pkg/otel"
	"mockupreview/pkg/rbac"
)

// ReadinessCheck 就绪检查项，例如 db / mq
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	reviewHandler *ReviewHandler,
	adminHandler *AdminHandler,
	jwtSecret string,
	checks []ReadinessCheck,
	logger *zap.Logger,
) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), otel.GinMiddleware(), RequestLogger(logger))

	// Health endpoints
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		for _, check := range checks {
			if err := check.Check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": check.Name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Protected
	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		auth.POST("/workflows", RequirePermission(rbac.PermissionManageWorkflow), reviewHandler.CreateWorkflow)
		auth.GET("/workflows/:id", RequirePermission(rbac.PermissionReadReview), reviewHandler.GetWorkflow)
		auth.POST("/workflows/:id/revisions", RequirePermission(rbac.PermissionManageWorkflow), reviewHandler.ReviseWorkflow)
		auth.GET("/workflow-keys/:key/latest", RequirePermission(rbac.PermissionReadReview), reviewHandler.LatestWorkflow)

		auth.POST("/projects", RequirePermission(rbac.PermissionCreateProject), reviewHandler.CreateProject)
		auth.PUT("/projects/:id/workflow", RequirePermission(rbac.PermissionManageWorkflow), reviewHandler.SetProjectWorkflow)
		auth.GET("/projects/:id/reviewers", RequirePermission(rbac.PermissionReadReview), reviewHandler.ListReviewers)
		auth.POST("/projects/:id/stages/:order/reviewers", RequirePermission(rbac.PermissionManageReviewers), reviewHandler.AssignReviewer)
		auth.DELETE("/projects/:id/stages/:order/reviewers/:reviewer", RequirePermission(rbac.PermissionManageReviewers), reviewHandler.UnassignReviewer)
		auth.GET("/projects/:id/quorum-warnings", RequirePermission(rbac.PermissionReadReview), reviewHandler.QuorumWarnings)
		auth.POST("/projects/:id/artifacts", RequirePermission(rbac.PermissionSubmitArtifact), reviewHandler.SubmitArtifact)

		auth.GET("/artifacts/:id/progress", RequirePermission(rbac.PermissionReadReview), reviewHandler.GetProgress)
		auth.GET("/artifacts/:id/decisions", RequirePermission(rbac.PermissionReadReview), reviewHandler.ListDecisions)
		auth.GET("/artifacts/:id/reconcile", RequirePermission(rbac.PermissionReadReview), reviewHandler.Reconcile)
		auth.POST("/artifacts/:id/stages/:order/decisions", RequirePermission(rbac.PermissionDecide), reviewHandler.RecordDecision)
		auth.POST("/artifacts/:id/final-approval", RequirePermission(rbac.PermissionFinalApprove), reviewHandler.GrantFinalApproval)

		auth.POST("/admin/outbox/replay", RequirePermission(rbac.PermissionReplayOutbox), adminHandler.ReplayOutboxEvent)
		auth.POST("/admin/outbox/replay-failed", RequirePermission(rbac.PermissionReplayOutbox), adminHandler.ReplayFailedEvents)
	}

	return &Router{Engine: r}
}

// Server 包装 http.Server 以便优雅关闭
func (r *Router) Server(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
