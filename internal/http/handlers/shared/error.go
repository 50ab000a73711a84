package shared

import (
	"github.com/lipa-next/internal/http/response"
	"github.com/lipa-next/internal/logger"
	"github.com/lipa-next/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLog 提供携带 request_id 的日志实例。
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	if c.Request != nil {
		return logger.FromContext(c.Request.Context())
	}
	if requestID, ok := c.Get("request_id"); ok {
		if id, ok := requestID.(string); ok && id != "" {
			return logger.SW("request_id", id)
		}
	}
	return logger.S()
}

// RespondError 返回错误响应，并在有原始错误时记录日志。
func RespondError(c *gin.Context, code int, msg string, err error) {
	if err != nil {
		RequestLog(c).Errorw("handler_error",
			"code", code,
			"message", msg,
			"error", err,
		)
	}
	response.Error(c, code, msg)
}

// RespondServiceError 按错误分类返回对应业务码
func RespondServiceError(c *gin.Context, err error) {
	switch service.KindOf(err) {
	case service.KindNotFound:
		RespondError(c, response.CodeNotFound, err.Error(), nil)
	case service.KindInvalidInput:
		RespondError(c, response.CodeBadRequest, err.Error(), nil)
	case service.KindConflict:
		RespondError(c, response.CodeConflict, err.Error(), nil)
	default:
		RespondError(c, response.CodeInternal, "internal error", err)
	}
}
