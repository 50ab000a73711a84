package service

import (
	"context"
	"errors"
	"strings"

	"github.com/lipa-next/internal/constants"
	"github.com/lipa-next/internal/logger"
	"github.com/lipa-next/internal/models"
	"github.com/lipa-next/internal/payment/callback"
	"github.com/lipa-next/internal/repository"
)

// TargetKind 回调关联的业务实体类型
type TargetKind string

const (
	TargetVoucher     TargetKind = "voucher"
	TargetPaymentLink TargetKind = "payment_link"
	TargetSubscriber  TargetKind = "subscriber"
)

// Target 关联结果
type Target struct {
	Kind          TargetKind
	TenantID      uint
	Voucher       *models.Voucher
	Link          *models.PaymentLink
	Subscriber    *models.Subscriber
	BillReference string
	SourceType    string
	Gateway       *models.GatewayConfig
}

// BusinessID 返回入账使用的短码，优先使用回调自带的值
func (t *Target) BusinessID(event *callback.Event) string {
	if event != nil && strings.TrimSpace(event.GatewayBusinessID) != "" {
		return strings.TrimSpace(event.GatewayBusinessID)
	}
	if t != nil && t.Gateway != nil {
		return t.Gateway.BusinessID
	}
	return ""
}

// CorrelationResolver 按优先级匹配预付券、付款链接、订阅用户
type CorrelationResolver struct {
	voucherRepo    repository.VoucherRepository
	linkRepo       repository.PaymentLinkRepository
	subscriberRepo repository.SubscriberRepository
	accounts       *AccountResolver
}

// NewCorrelationResolver 创建关联解析器
func NewCorrelationResolver(
	voucherRepo repository.VoucherRepository,
	linkRepo repository.PaymentLinkRepository,
	subscriberRepo repository.SubscriberRepository,
	accounts *AccountResolver,
) *CorrelationResolver {
	return &CorrelationResolver{
		voucherRepo:    voucherRepo,
		linkRepo:       linkRepo,
		subscriberRepo: subscriberRepo,
		accounts:       accounts,
	}
}

// Resolve 解析回调影响的业务实体，三种策略互斥且按顺序尝试
func (r *CorrelationResolver) Resolve(ctx context.Context, event *callback.Event) (*Target, error) {
	if event == nil {
		return nil, ErrMalformedCallback
	}
	token := strings.TrimSpace(event.CorrelationToken)
	if token != "" {
		voucher, err := r.voucherRepo.GetByCorrelationToken(token)
		if err != nil {
			return nil, err
		}
		if voucher != nil {
			target := &Target{
				Kind:          TargetVoucher,
				TenantID:      voucher.TenantID,
				Voucher:       voucher,
				BillReference: voucher.Code,
				SourceType:    constants.AccessTypeVoucher,
			}
			r.attachGateway(ctx, target, event)
			return target, nil
		}

		link, err := r.linkRepo.GetByChargeRequestID(token)
		if err != nil {
			return nil, err
		}
		if link != nil {
			target := &Target{
				Kind:          TargetPaymentLink,
				TenantID:      link.TenantID,
				Link:          link,
				Subscriber:    link.Subscriber,
				BillReference: link.Subscriber.AccessUsername(),
				SourceType:    subscriberSourceType(link.Subscriber),
			}
			if target.BillReference == "" {
				target.BillReference = token
			}
			r.attachGateway(ctx, target, event)
			return target, nil
		}
	}

	gateway, err := r.accounts.ResolveByBusinessID(ctx, event.Provider, event.GatewayBusinessID)
	if err != nil {
		return nil, err
	}
	target := &Target{
		Kind:          TargetSubscriber,
		TenantID:      gateway.TenantID,
		Gateway:       gateway,
		BillReference: strings.TrimSpace(event.BillReference),
	}
	subscriber, err := r.lookupSubscriber(gateway.TenantID, target.BillReference, event.Phone)
	if err != nil {
		return nil, err
	}
	if subscriber != nil {
		target.Subscriber = subscriber
		target.SourceType = subscriberSourceType(subscriber)
		if target.BillReference == "" {
			target.BillReference = subscriber.AccessUsername()
		}
	}
	return target, nil
}

func (r *CorrelationResolver) lookupSubscriber(tenantID uint, billReference, phone string) (*models.Subscriber, error) {
	if billReference != "" {
		return r.subscriberRepo.GetByUsername(tenantID, billReference)
	}
	// Till 付款不带账单参考号，仅当手机号唯一命中时采用
	candidates, err := r.subscriberRepo.ListByPhone(tenantID, phone)
	if err != nil {
		return nil, err
	}
	if len(candidates) != 1 {
		return nil, nil
	}
	return &candidates[0], nil
}

func (r *CorrelationResolver) attachGateway(ctx context.Context, target *Target, event *callback.Event) {
	if r.accounts == nil || target.TenantID == 0 {
		return
	}
	gateway, err := r.accounts.ResolveByTenant(ctx, target.TenantID, event.Provider)
	if err != nil {
		if !errors.Is(err, ErrUnknownTenant) {
			logger.FromContext(ctx).Warnw("correlation_gateway_lookup_failed", "tenant_id", target.TenantID, "error", err)
		}
		return
	}
	target.Gateway = gateway
}

func subscriberSourceType(subscriber *models.Subscriber) string {
	if subscriber == nil {
		return ""
	}
	if subscriber.PPPoEUsername != "" {
		return constants.AccessTypePPPoE
	}
	if subscriber.HotspotUsername != "" {
		return constants.AccessTypeHotspot
	}
	return ""
}
