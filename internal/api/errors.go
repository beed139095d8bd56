package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mockupreview/internal/service/review"
	"mockupreview/pkg/logger"
	"mockupreview/pkg/util"
)

// benignMessages 并发评审下的正常结果，用平和的措辞返回
var benignMessages = map[review.Kind]string{
	review.KindAlreadyDecided: "Your decision was already recorded.",
	review.KindStageNotActive: "This stage has already moved on; no action is needed.",
}

func statusForKind(k review.Kind) int {
	switch k {
	case review.KindNotAReviewer, review.KindNotProjectOwner:
		return http.StatusForbidden
	case review.KindNotFound:
		return http.StatusNotFound
	case review.KindAlreadyDecided,
		review.KindStageNotActive,
		review.KindAlreadyFinalized,
		review.KindDuplicateAssignment,
		review.KindNotAllStagesApproved,
		review.KindZeroQuorumStage:
		return http.StatusConflict
	case review.KindInvalidStage,
		review.KindMissingNotesOnRejection,
		review.KindInvalidWorkflow,
		review.KindInvalidAction:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeError 按错误类别返回；存储层的可重试错误返回 503
func writeError(c *gin.Context, l *zap.Logger, op string, err error) {
	log := logger.WithTrace(c.Request.Context(), l)

	if kind := review.KindOf(err); kind != "" {
		body := gin.H{"error": err.Error(), "kind": kind}
		if msg, ok := benignMessages[kind]; ok {
			body["error"] = msg
			body["benign"] = true
		}
		c.JSON(statusForKind(kind), body)
		return
	}

	retryable, errType := util.IsRetryableError(err)
	log.Error(op+" failed",
		zap.String("error_type", errType),
		zap.Bool("retryable", retryable),
		zap.Error(err),
	)
	if retryable {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":     "temporarily unavailable, please retry",
			"retryable": true,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
