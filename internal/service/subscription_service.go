package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lipa-next/internal/constants"
	"github.com/lipa-next/internal/logger"
	"github.com/lipa-next/internal/models"
	"github.com/lipa-next/internal/repository"

	"github.com/shopspring/decimal"
)

var (
	minutesPerDay = decimal.NewFromInt(24 * 60)
	hoursPerDay   = decimal.NewFromInt(24)
	dayDuration   = decimal.NewFromInt(int64(24 * time.Hour))
)

// ApplyPaymentInput 订阅续期参数
type ApplyPaymentInput struct {
	TenantID   uint
	Username   string
	Subscriber *models.Subscriber // 已定位时直接使用
	Amount     decimal.Decimal
	Phone      string
	Reference  string // 网关流水号，用于短信去重
}

// ApplyPaymentResult 续期结果
type ApplyPaymentResult struct {
	Subscriber     *models.Subscriber
	ExtensionDays  decimal.Decimal
	PreviousExpiry *time.Time
	ExpiresAt      time.Time
}

// SubscriptionService 订阅续期服务
type SubscriptionService struct {
	subscriberRepo repository.SubscriberRepository
	notifier       Notifier
	policy         string
	now            func() time.Time
}

// NewSubscriptionService 创建订阅续期服务
func NewSubscriptionService(subscriberRepo repository.SubscriberRepository, notifier Notifier, policy string) *SubscriptionService {
	policy = strings.ToLower(strings.TrimSpace(policy))
	if policy != constants.ExtensionPolicyExtendFromExpiry {
		policy = constants.ExtensionPolicyResetFromNow
	}
	return &SubscriptionService{
		subscriberRepo: subscriberRepo,
		notifier:       notifier,
		policy:         policy,
		now:            time.Now,
	}
}

// DurationDays 将套餐时长换算为天数（月按 30 天，年按 365 天）
func DurationDays(duration int, unit string) (decimal.Decimal, error) {
	if duration <= 0 {
		return decimal.Zero, fmt.Errorf("%w: duration must be positive", ErrIncompleteConfiguration)
	}
	d := decimal.NewFromInt(int64(duration))
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case constants.DurationUnitMinute:
		return d.Div(minutesPerDay), nil
	case constants.DurationUnitHour:
		return d.Div(hoursPerDay), nil
	case constants.DurationUnitDay, "":
		return d, nil
	case constants.DurationUnitWeek:
		return d.Mul(decimal.NewFromInt(7)), nil
	case constants.DurationUnitMonth:
		return d.Mul(decimal.NewFromInt(30)), nil
	case constants.DurationUnitYear:
		return d.Mul(decimal.NewFromInt(365)), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: unknown duration unit %s", ErrIncompleteConfiguration, unit)
	}
}

// ExtensionDays 按付款金额折算续期天数，金额等于价格时直接取整包天数，不设上限
func ExtensionDays(amount, price, dayCount decimal.Decimal) decimal.Decimal {
	if amount.Equal(price) {
		return dayCount
	}
	if !price.GreaterThan(decimal.Zero) {
		return decimal.Zero
	}
	return dayCount.Mul(amount).Div(price)
}

// PackageDuration 套餐时长
func PackageDuration(pkg *models.ServicePackage) (time.Duration, error) {
	if pkg == nil {
		return 0, fmt.Errorf("%w: package missing", ErrIncompleteConfiguration)
	}
	days, err := DurationDays(pkg.Duration, pkg.DurationUnit)
	if err != nil {
		return 0, err
	}
	return daysToDuration(days), nil
}

func daysToDuration(days decimal.Decimal) time.Duration {
	return time.Duration(days.Mul(dayDuration).Round(0).IntPart())
}

// 到期时间上限（数据库时间列可表示范围）
var (
	maxExpiry        = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
	maxExtensionDays = decimal.NewFromInt(10000 * 366)
)

// addDays 整天按日历累加，不足一天的余数按时长累加
func addDays(base time.Time, days decimal.Decimal) time.Time {
	if !days.IsPositive() {
		return base
	}
	whole := days.Floor()
	if whole.GreaterThan(maxExtensionDays) {
		return maxExpiry.In(base.Location())
	}
	expiresAt := base.UTC().AddDate(0, 0, int(whole.IntPart())).Add(daysToDuration(days.Sub(whole)))
	if expiresAt.After(maxExpiry) {
		expiresAt = maxExpiry
	}
	return expiresAt.In(base.Location())
}

// ApplyPayment 根据付款金额延长订阅并置为 ACTIVE
func (s *SubscriptionService) ApplyPayment(ctx context.Context, input ApplyPaymentInput) (*ApplyPaymentResult, error) {
	log := logger.FromContext(ctx,
		"tenant_id", input.TenantID,
		"username", strings.TrimSpace(input.Username),
		"amount", input.Amount.String(),
		"reference", input.Reference,
	)

	subscriber := input.Subscriber
	if subscriber == nil {
		found, err := s.subscriberRepo.GetByUsername(input.TenantID, input.Username)
		if err != nil {
			log.Errorw("subscription_subscriber_fetch_failed", "error", err)
			return nil, err
		}
		subscriber = found
	}
	if subscriber == nil {
		log.Warnw("subscription_subscriber_not_found")
		return nil, ErrSubscriberNotFound
	}
	pkg := subscriber.Package
	if pkg == nil || !pkg.Price.IsPositive() || pkg.Duration <= 0 {
		log.Warnw("subscription_package_incomplete", "subscriber_id", subscriber.ID)
		return nil, fmt.Errorf("%w: subscriber %d", ErrIncompleteConfiguration, subscriber.ID)
	}
	dayCount, err := DurationDays(pkg.Duration, pkg.DurationUnit)
	if err != nil {
		log.Warnw("subscription_package_incomplete", "subscriber_id", subscriber.ID, "error", err)
		return nil, err
	}
	if !input.Amount.GreaterThan(decimal.Zero) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, input.Amount.String())
	}

	extension := ExtensionDays(input.Amount, pkg.Price.Decimal, dayCount)
	now := s.now()
	base := now
	if s.policy == constants.ExtensionPolicyExtendFromExpiry && subscriber.ExpiresAt != nil && subscriber.ExpiresAt.After(now) {
		base = *subscriber.ExpiresAt
	}
	expiresAt := addDays(base, extension)

	if err := s.subscriberRepo.UpdateExpiry(subscriber.ID, expiresAt, constants.SubscriberStatusActive); err != nil {
		log.Errorw("subscription_expiry_update_failed", "subscriber_id", subscriber.ID, "error", err)
		return nil, err
	}
	previous := subscriber.ExpiresAt
	subscriber.ExpiresAt = &expiresAt
	subscriber.Status = constants.SubscriberStatusActive
	log.Infow("subscription_extended",
		"subscriber_id", subscriber.ID,
		"extension_days", extension.StringFixed(4),
		"expires_at", expiresAt,
		"policy", s.policy,
	)

	if s.notifier != nil {
		phone := strings.TrimSpace(subscriber.Phone)
		if phone == "" {
			phone = strings.TrimSpace(input.Phone)
		}
		s.notifier.Notify(ctx, NotifyInput{
			Template: constants.SMSTemplateSubscriptionRenewed,
			TenantID: subscriber.TenantID,
			Phone:    phone,
			Dedupe:   input.Reference,
			Variables: map[string]interface{}{
				"name":       subscriber.Name,
				"username":   subscriber.AccessUsername(),
				"amount":     models.NewMoneyFromDecimal(input.Amount).String(),
				"package":    pkg.Name,
				"expires_at": displayTime(expiresAt),
				"reference":  input.Reference,
			},
		})
	}

	return &ApplyPaymentResult{
		Subscriber:     subscriber,
		ExtensionDays:  extension,
		PreviousExpiry: previous,
		ExpiresAt:      expiresAt,
	}, nil
}
