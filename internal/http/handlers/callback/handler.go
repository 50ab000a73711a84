package callback

import (
	"errors"
	"io"
	"net/http"
	"strings"

	handlershared "github.com/lipa-next/internal/http/handlers/shared"
	"github.com/lipa-next/internal/provider"
	"github.com/lipa-next/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultMaxBodyBytes = 64 << 10
	defaultLogBodyBytes = 2048
)

// Handler 网关回调处理器
type Handler struct {
	*provider.Container
}

// New 创建回调处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func (h *Handler) maxBodyBytes() int64 {
	if h != nil && h.Container != nil && h.Config != nil && h.Config.Callback.MaxBodyBytes > 0 {
		return h.Config.Callback.MaxBodyBytes
	}
	return defaultMaxBodyBytes
}

func (h *Handler) logBodyBytes() int {
	if h != nil && h.Container != nil && h.Config != nil && h.Config.Callback.LogBodyBytes > 0 {
		return h.Config.Callback.LogBodyBytes
	}
	return defaultLogBodyBytes
}

// readBody 读取请求体，超出上限或读取失败时直接返回 400
func (h *Handler) readBody(c *gin.Context) ([]byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes())
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			requestLog(c).Warnw("callback_body_too_large", "limit", tooLarge.Limit)
			respondFailure(c, http.StatusBadRequest, "request body too large")
			return nil, false
		}
		requestLog(c).Warnw("callback_body_read_failed", "error", err)
		respondFailure(c, http.StatusBadRequest, "unable to read request body")
		return nil, false
	}
	return body, true
}

func (h *Handler) rawBodyForLog(body []byte) string {
	raw := strings.TrimSpace(string(body))
	limit := h.logBodyBytes()
	if len(raw) <= limit {
		return raw
	}
	return raw[:limit] + "...(truncated)"
}

// process 交给对账服务并映射 HTTP 应答
func (h *Handler) process(c *gin.Context, input service.ProcessInput) {
	log := requestLog(c)
	if h == nil || h.Container == nil || h.CallbackService == nil {
		log.Errorw("callback_service_unavailable")
		respondFailure(c, http.StatusInternalServerError, "callback service unavailable")
		return
	}
	result, err := h.CallbackService.Process(c.Request.Context(), input)
	if err != nil {
		if service.KindOf(err) == service.KindFatal {
			respondFailure(c, http.StatusInternalServerError, "internal error")
			return
		}
		respondFailure(c, http.StatusBadRequest, err.Error())
		return
	}
	log.Infow("callback_processed",
		"provider_txn_id", result.TransactionID,
		"tenant_id", result.TenantID,
		"target", string(result.TargetKind),
		"ledger", result.LedgerOutcome.String(),
		"ledger_skipped", result.LedgerSkipped,
		"effect", result.Effect,
	)
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"transactionId": result.TransactionID,
		"resultCode":    result.ResultCode,
		"resultDesc":    result.ResultDesc,
	})
}

func respondFailure(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"message": message,
	})
}
