package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lipa-next/internal/constants"
	"github.com/lipa-next/internal/logger"
	"github.com/lipa-next/internal/payment/callback"
	"github.com/lipa-next/internal/payment/kopokopo"
	"github.com/lipa-next/internal/repository"

	"go.uber.org/zap"
)

// 回调派生效果
const (
	EffectNone                 = "none"
	EffectVoucherActivated     = "voucher_activated"
	EffectVoucherCancelled     = "voucher_cancelled"
	EffectVoucherUnchanged     = "voucher_unchanged"
	EffectSubscriptionExtended = "subscription_extended"
	EffectPaymentLinkCompleted = "payment_link_completed"
	EffectPaymentLinkUsed      = "payment_link_already_used"
	EffectSkipped              = "skipped"
)

// ProcessInput 回调处理参数
type ProcessInput struct {
	Event     *callback.Event
	RawBody   []byte
	Signature string
}

// ProcessResult 回调处理结果
type ProcessResult struct {
	TransactionID string
	ResultCode    string
	ResultDesc    string
	TenantID      uint
	TargetKind    TargetKind
	LedgerOutcome repository.RecordOutcome
	LedgerSkipped bool
	Effect        string
	EffectError   error
}

// CallbackService 回调对账编排：关联 -> 入账 -> 派生效果 -> 通知
type CallbackService struct {
	resolver      *CorrelationResolver
	accounts      *AccountResolver
	ledger        *LedgerService
	subscriptions *SubscriptionService
	vouchers      *VoucherService
	linkRepo      repository.PaymentLinkRepository
	now           func() time.Time
}

// NewCallbackService 创建回调对账服务
func NewCallbackService(
	resolver *CorrelationResolver,
	accounts *AccountResolver,
	ledger *LedgerService,
	subscriptions *SubscriptionService,
	vouchers *VoucherService,
	linkRepo repository.PaymentLinkRepository,
) *CallbackService {
	return &CallbackService{
		resolver:      resolver,
		accounts:      accounts,
		ledger:        ledger,
		subscriptions: subscriptions,
		vouchers:      vouchers,
		linkRepo:      linkRepo,
		now:           time.Now,
	}
}

// Process 处理规范化后的回调；仅入账失败（Fatal）与签名错误返回 error
func (s *CallbackService) Process(ctx context.Context, input ProcessInput) (*ProcessResult, error) {
	event := input.Event
	if event == nil {
		return nil, ErrMalformedCallback
	}
	log := logger.FromContext(ctx,
		"provider", event.Provider,
		"channel", event.Channel,
		"provider_txn_id", event.ProviderTxnID,
		"correlation_token", event.CorrelationToken,
		"business_id", event.GatewayBusinessID,
		"result_code", event.ResultCode,
	)
	result := &ProcessResult{
		TransactionID: event.ProviderTxnID,
		ResultCode:    event.ResultCode,
		ResultDesc:    event.ResultDesc,
		Effect:        EffectNone,
	}

	target, err := s.resolver.Resolve(ctx, event)
	if err != nil {
		switch KindOf(err) {
		case KindNotFound, KindConflict:
			// 无法归属运营方，不入账但正常应答
			log.Warnw("callback_tenant_unresolved", "error", err)
			result.LedgerSkipped = true
			result.Effect = EffectSkipped
			return result, nil
		default:
			log.Errorw("callback_resolve_failed", "error", err)
			return nil, fmt.Errorf("%w: resolve failed: %v", ErrLedgerWriteFailed, err)
		}
	}
	result.TenantID = target.TenantID
	result.TargetKind = target.Kind
	log = log.With("tenant_id", target.TenantID, "target", string(target.Kind))

	if err := s.verifySignature(ctx, target, event, input); err != nil {
		log.Warnw("callback_signature_rejected", "error", err)
		return nil, err
	}

	fillFromTarget(event, target)
	outcome, err := s.ledger.Record(ctx, LedgerInput{
		Event:         event,
		TenantID:      target.TenantID,
		BillReference: target.BillReference,
		BusinessID:    target.BusinessID(event),
		SourceType:    target.SourceType,
	})
	if err != nil {
		log.Errorw("callback_ledger_write_failed", "error", err)
		return nil, err
	}
	result.LedgerOutcome = outcome
	if outcome == repository.RecordDuplicate {
		log.Infow("callback_duplicate_skipped")
		return result, nil
	}
	log.Infow("callback_ledger_recorded", "bill_reference", target.BillReference)

	s.applyEffects(ctx, log, target, event, result)
	return result, nil
}

func (s *CallbackService) applyEffects(ctx context.Context, log *zap.SugaredLogger, target *Target, event *callback.Event, result *ProcessResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("callback_effect_panic", "panic", r)
			result.EffectError = fmt.Errorf("effect panic: %v", r)
		}
	}()

	switch target.Kind {
	case TargetVoucher:
		outcome, err := s.vouchers.ApplyCallback(ctx, target.Voucher, event)
		if err != nil {
			log.Warnw("callback_voucher_effect_failed", "error", err)
			result.EffectError = err
			return
		}
		switch {
		case !outcome.Transitioned:
			result.Effect = EffectVoucherUnchanged
		case outcome.Status == constants.VoucherStatusActive:
			result.Effect = EffectVoucherActivated
		default:
			result.Effect = EffectVoucherCancelled
		}
	case TargetPaymentLink:
		if !event.Success {
			return
		}
		marked, err := s.linkRepo.MarkUsed(target.Link.ID, s.now())
		if err != nil {
			log.Warnw("callback_payment_link_mark_failed", "payment_link_id", target.Link.ID, "error", err)
			result.EffectError = err
			return
		}
		if !marked {
			result.Effect = EffectPaymentLinkUsed
			return
		}
		result.Effect = EffectPaymentLinkCompleted
		s.extendSubscription(ctx, log, target, event, result)
	case TargetSubscriber:
		if !event.Success {
			return
		}
		s.extendSubscription(ctx, log, target, event, result)
	}
}

func (s *CallbackService) extendSubscription(ctx context.Context, log *zap.SugaredLogger, target *Target, event *callback.Event, result *ProcessResult) {
	_, err := s.subscriptions.ApplyPayment(ctx, ApplyPaymentInput{
		TenantID:   target.TenantID,
		Username:   target.BillReference,
		Subscriber: target.Subscriber,
		Amount:     event.Amount,
		Phone:      event.Phone,
		Reference:  event.ProviderTxnID,
	})
	if err != nil {
		log.Warnw("callback_subscription_effect_failed", "kind", KindOf(err).String(), "error", err)
		result.EffectError = err
		return
	}
	if result.Effect == EffectNone {
		result.Effect = EffectSubscriptionExtended
	}
}

func (s *CallbackService) verifySignature(ctx context.Context, target *Target, event *callback.Event, input ProcessInput) error {
	if event.Provider != constants.GatewayProviderKopokopo {
		return nil
	}
	gateway := target.Gateway
	if s.accounts != nil {
		var err error
		if gateway == nil {
			gateway, err = s.accounts.ResolveByTenant(ctx, target.TenantID, event.Provider)
		} else {
			gateway, err = s.accounts.Credentials(ctx, gateway)
		}
		if err != nil && !errors.Is(err, ErrUnknownTenant) {
			return fmt.Errorf("%w: gateway lookup failed: %v", ErrLedgerWriteFailed, err)
		}
	}
	if gateway == nil {
		return nil
	}
	cfg, err := kopokopo.ParseConfig(gateway.ConfigJSON)
	if err != nil || strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil
	}
	if err := kopokopo.VerifySignature(cfg.WebhookSecret, input.RawBody, input.Signature); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return nil
}

// fillFromTarget 失败的 STK 结果没有金额与手机号，使用关联实体补齐
func fillFromTarget(event *callback.Event, target *Target) {
	if event == nil || target == nil {
		return
	}
	if event.Amount.IsZero() {
		switch {
		case target.Voucher != nil && target.Voucher.Amount.IsPositive():
			event.Amount = target.Voucher.Amount.Decimal
		case target.Voucher != nil && target.Voucher.Package != nil:
			event.Amount = target.Voucher.Package.Price.Decimal
		case target.Link != nil:
			event.Amount = target.Link.Amount.Decimal
		}
	}
	if strings.TrimSpace(event.Phone) == "" {
		switch {
		case target.Voucher != nil:
			event.Phone = target.Voucher.Phone
		case target.Subscriber != nil:
			event.Phone = target.Subscriber.Phone
		}
	}
}
