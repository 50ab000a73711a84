package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lipa-next/internal/constants"
	"github.com/lipa-next/internal/logger"
	"github.com/lipa-next/internal/models"
	"github.com/lipa-next/internal/payment/callback"
	"github.com/lipa-next/internal/repository"
)

// VoucherOutcome 回调对预付券的处理结果
type VoucherOutcome struct {
	Voucher      *models.Voucher
	Transitioned bool
	Status       string
}

// VoucherService 预付券状态机
type VoucherService struct {
	voucherRepo repository.VoucherRepository
	notifier    Notifier
	now         func() time.Time
}

// NewVoucherService 创建预付券服务
func NewVoucherService(voucherRepo repository.VoucherRepository, notifier Notifier) *VoucherService {
	return &VoucherService{
		voucherRepo: voucherRepo,
		notifier:    notifier,
		now:         time.Now,
	}
}

// ApplyCallback PENDING 状态下按回调结果迁移为 ACTIVE 或 CANCELLED，其它状态忽略
func (s *VoucherService) ApplyCallback(ctx context.Context, voucher *models.Voucher, event *callback.Event) (*VoucherOutcome, error) {
	if voucher == nil {
		return nil, ErrVoucherNotFound
	}
	if event == nil {
		return nil, ErrMalformedCallback
	}
	log := logger.FromContext(ctx,
		"voucher_id", voucher.ID,
		"voucher_code", voucher.Code,
		"voucher_status", voucher.Status,
		"provider_txn_id", event.ProviderTxnID,
	)
	outcome := &VoucherOutcome{Voucher: voucher, Status: voucher.Status}
	if voucher.Status != constants.VoucherStatusPending {
		log.Infow("voucher_callback_ignored_not_pending")
		return outcome, nil
	}

	target := constants.VoucherStatusCancelled
	updates := map[string]interface{}{"status": target}
	if event.Success {
		target = constants.VoucherStatusActive
		updates["status"] = target
		updates["payment_reference"] = strings.TrimSpace(event.ProviderTxnID)
	}
	ok, err := s.voucherRepo.TransitionFromStatus(voucher.ID, []string{constants.VoucherStatusPending}, updates)
	if err != nil {
		log.Errorw("voucher_transition_failed", "target_status", target, "error", err)
		return nil, err
	}
	if !ok {
		log.Infow("voucher_transition_skipped_concurrent", "target_status", target)
		return outcome, nil
	}

	voucher.Status = target
	if event.Success {
		voucher.PaymentReference = strings.TrimSpace(event.ProviderTxnID)
	}
	outcome.Transitioned = true
	outcome.Status = target
	log.Infow("voucher_transitioned", "target_status", target)

	if event.Success && s.notifier != nil {
		phone := strings.TrimSpace(voucher.Phone)
		if phone == "" {
			phone = strings.TrimSpace(event.Phone)
		}
		packageName := ""
		if voucher.Package != nil {
			packageName = voucher.Package.Name
		}
		s.notifier.Notify(ctx, NotifyInput{
			Template: constants.SMSTemplateVoucherActivated,
			TenantID: voucher.TenantID,
			Phone:    phone,
			Dedupe:   event.ProviderTxnID,
			Variables: map[string]interface{}{
				"code":       voucher.Code,
				"package":    packageName,
				"amount":     models.NewMoneyFromDecimal(event.Amount).String(),
				"expires_at": displayTime(UsageExpiry(voucher)),
				"reference":  voucher.PaymentReference,
			},
		})
	}
	return outcome, nil
}

// GetForAccess 读取预付券并惰性过期：PENDING / ACTIVE 且已过期时改为 EXPIRED
func (s *VoucherService) GetForAccess(ctx context.Context, code string) (*models.Voucher, error) {
	voucher, err := s.voucherRepo.GetByCode(code)
	if err != nil {
		return nil, err
	}
	if voucher == nil {
		return nil, ErrVoucherNotFound
	}
	if !isVoucherExpirable(voucher.Status) || !voucher.ExpiresAt.Before(s.now()) {
		return voucher, nil
	}

	ok, err := s.voucherRepo.TransitionFromStatus(voucher.ID, []string{constants.VoucherStatusPending, constants.VoucherStatusActive}, map[string]interface{}{
		"status": constants.VoucherStatusExpired,
	})
	if err != nil {
		logger.FromContext(ctx).Errorw("voucher_lazy_expire_failed", "voucher_id", voucher.ID, "error", err)
		return nil, err
	}
	if !ok {
		// 并发修改过，以最新状态为准
		return s.voucherRepo.GetByCode(code)
	}
	logger.FromContext(ctx).Infow("voucher_lazy_expired", "voucher_id", voucher.ID, "previous_status", voucher.Status)
	voucher.Status = constants.VoucherStatusExpired
	return voucher, nil
}

// MarkUsed 接入控制器首次使用时调用：ACTIVE -> USED
func (s *VoucherService) MarkUsed(ctx context.Context, code string) (*models.Voucher, error) {
	voucher, err := s.GetForAccess(ctx, code)
	if err != nil {
		return nil, err
	}
	if voucher.Status != constants.VoucherStatusActive {
		return nil, fmt.Errorf("%w: %s", ErrVoucherStateInvalid, voucher.Status)
	}
	usedAt := s.now()
	ok, err := s.voucherRepo.TransitionFromStatus(voucher.ID, []string{constants.VoucherStatusActive}, map[string]interface{}{
		"status":       constants.VoucherStatusUsed,
		"last_used_at": usedAt,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: concurrent update", ErrVoucherStateInvalid)
	}
	voucher.Status = constants.VoucherStatusUsed
	voucher.LastUsedAt = &usedAt
	logger.FromContext(ctx).Infow("voucher_marked_used", "voucher_id", voucher.ID)
	return voucher, nil
}

// ExpireDue 定时清扫已过期的 ACTIVE 预付券；PENDING 券只在读取时惰性过期，迟到的支付回调仍可激活
func (s *VoucherService) ExpireDue(ctx context.Context) (int64, error) {
	affected, err := s.voucherRepo.ExpireDue(s.now(), []string{constants.VoucherStatusActive}, constants.VoucherStatusExpired)
	if err != nil {
		logger.FromContext(ctx).Errorw("voucher_expire_due_failed", "error", err)
		return 0, err
	}
	if affected > 0 {
		logger.FromContext(ctx).Infow("voucher_expire_due_done", "affected", affected)
	}
	return affected, nil
}

// UsageExpiry 展示用的使用截止时间：已使用过时为最近使用时间加套餐时长，否则为创建时的过期时间
func UsageExpiry(voucher *models.Voucher) time.Time {
	if voucher == nil {
		return time.Time{}
	}
	if voucher.LastUsedAt != nil && voucher.Package != nil {
		if duration, err := PackageDuration(voucher.Package); err == nil {
			return voucher.LastUsedAt.Add(duration)
		}
	}
	return voucher.ExpiresAt
}

func isVoucherExpirable(status string) bool {
	return status == constants.VoucherStatusPending || status == constants.VoucherStatusActive
}
