package access

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lipa-next/internal/cache"
	handlershared "github.com/lipa-next/internal/http/handlers/shared"
	"github.com/lipa-next/internal/http/response"
	"github.com/lipa-next/internal/models"
	"github.com/lipa-next/internal/payment/callback"
	"github.com/lipa-next/internal/provider"
	"github.com/lipa-next/internal/repository"
	"github.com/lipa-next/internal/service"

	"github.com/gin-gonic/gin"
)

// Handler 接入控制器与内部查询接口
type Handler struct {
	*provider.Container
}

// New 创建查询处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}

// VoucherView 预付券查询结果
type VoucherView struct {
	Code             string       `json:"code"`
	Status           string       `json:"status"`
	Package          string       `json:"package"`
	Amount           models.Money `json:"amount"`
	PaymentReference string       `json:"payment_reference"`
	ExpiresAt        time.Time    `json:"expires_at"`
	UsageExpiresAt   time.Time    `json:"usage_expires_at"`
	LastUsedAt       *time.Time   `json:"last_used_at"`
}

func newVoucherView(voucher *models.Voucher) VoucherView {
	view := VoucherView{
		Code:             voucher.Code,
		Status:           voucher.Status,
		Amount:           voucher.Amount,
		PaymentReference: voucher.PaymentReference,
		ExpiresAt:        voucher.ExpiresAt,
		UsageExpiresAt:   service.UsageExpiry(voucher),
		LastUsedAt:       voucher.LastUsedAt,
	}
	if voucher.Package != nil {
		view.Package = voucher.Package.Name
	}
	return view
}

// GetVoucher 查询预付券（读取时惰性过期）
func (h *Handler) GetVoucher(c *gin.Context) {
	voucher, err := h.VoucherService.GetForAccess(c.Request.Context(), c.Param("code"))
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	if !handlershared.TenantAllowed(c, voucher.TenantID) {
		handlershared.RespondServiceError(c, service.ErrVoucherNotFound)
		return
	}
	response.Success(c, newVoucherView(voucher))
}

// UseVoucher 首次使用：ACTIVE -> USED
func (h *Handler) UseVoucher(c *gin.Context) {
	ctx := c.Request.Context()
	code := c.Param("code")
	current, err := h.VoucherService.GetForAccess(ctx, code)
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	if !handlershared.TenantAllowed(c, current.TenantID) {
		handlershared.RespondServiceError(c, service.ErrVoucherNotFound)
		return
	}
	voucher, err := h.VoucherService.MarkUsed(ctx, code)
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	response.Success(c, newVoucherView(voucher))
}

// ListTransactions 流水列表
func (h *Handler) ListTransactions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = handlershared.NormalizePagination(page, pageSize)

	from, err := parseTimeQuery(c.Query("from"), false)
	if err != nil {
		handlershared.RespondError(c, response.CodeBadRequest, "invalid from", nil)
		return
	}
	to, err := parseTimeQuery(c.Query("to"), true)
	if err != nil {
		handlershared.RespondError(c, response.CodeBadRequest, "invalid to", nil)
		return
	}

	filter := repository.TransactionListFilter{
		Page:          page,
		PageSize:      pageSize,
		TenantID:      handlershared.ContextTenantID(c),
		Provider:      strings.TrimSpace(c.Query("provider")),
		Status:        strings.TrimSpace(c.Query("status")),
		BillReference: strings.TrimSpace(c.Query("bill_reference")),
		Phone:         callback.NormalizePhone(c.Query("phone")),
		Search:        strings.TrimSpace(c.Query("search")),
		OccurredFrom:  from,
		OccurredTo:    to,
	}
	if raw := strings.TrimSpace(c.Query("tenant_id")); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			handlershared.RespondError(c, response.CodeBadRequest, "invalid tenant_id", nil)
			return
		}
		if !handlershared.TenantAllowed(c, uint(id)) {
			response.Forbidden(c, "tenant not allowed")
			return
		}
		filter.TenantID = uint(id)
	}

	records, total, err := h.LedgerService.List(filter)
	if err != nil {
		handlershared.RespondError(c, response.CodeInternal, "list transactions failed", err)
		return
	}
	response.SuccessWithPage(c, records, handlershared.BuildPagination(page, pageSize, total))
}

// GetTransaction 单条流水
func (h *Handler) GetTransaction(c *gin.Context) {
	record, err := h.LedgerService.GetByProviderTxnID(c.Param("txn_id"))
	if err != nil {
		handlershared.RespondError(c, response.CodeInternal, "get transaction failed", err)
		return
	}
	if record == nil || !handlershared.TenantAllowed(c, record.TenantID) {
		response.NotFound(c, "transaction not found")
		return
	}
	response.Success(c, record)
}

// Healthz 存活检查
func (h *Handler) Healthz(c *gin.Context) {
	ctx := c.Request.Context()
	if models.DB != nil {
		if sqlDB, err := models.DB.DB(); err == nil {
			if err := sqlDB.PingContext(ctx); err != nil {
				handlershared.RequestLog(c).Warnw("healthz_db_ping_failed", "error", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
	}
	// Redis 不可用时仅标记降级
	redisStatus := "disabled"
	if cache.Enabled() {
		redisStatus = "ok"
		if err := cache.Ping(ctx); err != nil {
			handlershared.RequestLog(c).Warnw("healthz_redis_ping_failed", "error", err)
			redisStatus = "degraded"
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "redis": redisStatus})
}

// parseTimeQuery 支持 RFC3339 与 2006-01-02（按东非时间），日期作为截止值时取当日结束
func parseTimeQuery(raw string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, callback.EAT)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
