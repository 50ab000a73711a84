package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lipa-next/internal/cache"
	"github.com/lipa-next/internal/config"
	"github.com/lipa-next/internal/constants"
	"github.com/lipa-next/internal/logger"
	"github.com/lipa-next/internal/payment/callback"
	"github.com/lipa-next/internal/queue"
	"github.com/lipa-next/internal/repository"

	"github.com/hibiken/asynq"
)

// 双花括号优先匹配，其次单花括号
var smsTemplateVarPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}|\{([a-zA-Z0-9_]+)\}`)

var defaultSMSTemplates = map[string]string{
	constants.SMSTemplateSubscriptionRenewed: "Dear {{name}}, payment of KES {{amount}} for {{package}} received. Your internet is active until {{expires_at}}. Ref {{reference}}",
	constants.SMSTemplateVoucherActivated:    "Your voucher {{code}} for {{package}} is now active. Valid until {{expires_at}}. Ref {{reference}}",
}

// NotifyInput 短信通知参数
type NotifyInput struct {
	Template  string
	TenantID  uint
	Phone     string
	Dedupe    string // 去重引用（通常是网关流水号），为空时不去重
	Variables map[string]interface{}
}

// Notifier 尽力而为的通知，不向调用方返回错误
type Notifier interface {
	Notify(ctx context.Context, input NotifyInput)
}

// NotificationService 短信通知服务
type NotificationService struct {
	smsRepo     repository.SMSRepository
	queueClient *queue.Client
	sender      SMSSender
	cfg         config.NotificationConfig
}

// NewNotificationService 创建短信通知服务
func NewNotificationService(smsRepo repository.SMSRepository, queueClient *queue.Client, sender SMSSender, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		smsRepo:     smsRepo,
		queueClient: queueClient,
		sender:      sender,
		cfg:         cfg,
	}
}

// Notify 渲染模板并投递，任何失败只记录日志
func (s *NotificationService) Notify(ctx context.Context, input NotifyInput) {
	if s == nil || !s.cfg.Enabled {
		return
	}
	log := logger.FromContext(ctx,
		"template", input.Template,
		"tenant_id", input.TenantID,
		"dedupe", input.Dedupe,
	)
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("sms_notify_panic", "panic", r)
		}
	}()

	phone := callback.NormalizePhone(input.Phone)
	if phone == "" || input.TenantID == 0 {
		log.Debugw("sms_notify_skip_missing_target")
		return
	}

	body, err := s.resolveTemplate(input.TenantID, input.Template)
	if err != nil {
		log.Warnw("sms_template_fetch_failed", "error", err)
	}
	message := strings.TrimSpace(renderSMSTemplate(body, input.Variables))
	if message == "" {
		log.Warnw("sms_notify_skip_empty_message")
		return
	}

	if strings.TrimSpace(input.Dedupe) != "" {
		ok, err := s.acquireDedupe(ctx, input, phone)
		if err != nil {
			log.Warnw("sms_dedupe_failed", "error", err)
		}
		if err == nil && !ok {
			log.Infow("sms_notify_skip_duplicate")
			return
		}
	}

	payload := queue.SMSSendPayload{
		TenantID:  input.TenantID,
		Phone:     phone,
		Template:  input.Template,
		Message:   message,
		Reference: input.Dedupe,
	}
	if s.queueClient != nil && s.queueClient.Enabled() {
		maxRetry := s.cfg.MaxRetry
		if maxRetry <= 0 {
			maxRetry = 5
		}
		opts := []asynq.Option{asynq.MaxRetry(maxRetry)}
		if payload.Reference != "" {
			opts = append(opts, asynq.TaskID(buildSMSDedupeKey(input.TenantID, input.Template, phone, payload.Reference)))
		}
		err := s.queueClient.EnqueueSMSSend(ctx, payload, opts...)
		if err == nil {
			log.Infow("sms_notify_enqueued")
			return
		}
		log.Warnw("sms_notify_enqueue_failed", "error", err)
	}
	go s.deliverDetached(payload)
}

// Deliver 通过运营方短信通道发送（worker 与后台 goroutine 共用）
func (s *NotificationService) Deliver(ctx context.Context, payload queue.SMSSendPayload) error {
	if s == nil || s.sender == nil {
		return fmt.Errorf("%w: sender not configured", ErrNotificationFailed)
	}
	setting, err := s.smsRepo.GetActiveSetting(payload.TenantID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}
	if setting == nil {
		return fmt.Errorf("%w: tenant %d has no active sms setting", ErrNotificationFailed, payload.TenantID)
	}
	if err := s.sender.Send(ctx, setting, payload.Phone, payload.Message); err != nil {
		return fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}
	logger.FromContext(ctx).Infow("sms_delivered", "tenant_id", payload.TenantID, "template", payload.Template, "reference", payload.Reference)
	return nil
}

func (s *NotificationService) deliverDetached(payload queue.SMSSendPayload) {
	timeout := time.Duration(s.cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("sms_deliver_panic", "tenant_id", payload.TenantID, "panic", r)
		}
	}()
	if err := s.Deliver(ctx, payload); err != nil {
		logger.Warnw("sms_deliver_failed",
			"tenant_id", payload.TenantID,
			"template", payload.Template,
			"reference", payload.Reference,
			"error", err,
		)
	}
}

func (s *NotificationService) resolveTemplate(tenantID uint, name string) (string, error) {
	fallback := defaultSMSTemplates[name]
	if s.smsRepo == nil {
		return fallback, nil
	}
	tpl, err := s.smsRepo.GetTemplate(tenantID, name)
	if err != nil {
		return fallback, err
	}
	if tpl == nil || strings.TrimSpace(tpl.Body) == "" {
		return fallback, nil
	}
	return tpl.Body, nil
}

func (s *NotificationService) acquireDedupe(ctx context.Context, input NotifyInput, phone string) (bool, error) {
	ttl := time.Duration(s.cfg.DedupeTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return cache.SetNX(ctx, buildSMSDedupeKey(input.TenantID, input.Template, phone, input.Dedupe), "1", ttl)
}

func buildSMSDedupeKey(tenantID uint, template, phone, reference string) string {
	signature := fmt.Sprintf("%d|%s|%s|%s",
		tenantID,
		strings.ToLower(strings.TrimSpace(template)),
		strings.TrimSpace(phone),
		strings.TrimSpace(reference),
	)
	hash := sha1.Sum([]byte(signature))
	return "sms:dedupe:" + hex.EncodeToString(hash[:])
}

func renderSMSTemplate(template string, variables map[string]interface{}) string {
	template = strings.TrimSpace(template)
	if template == "" {
		return ""
	}
	return smsTemplateVarPattern.ReplaceAllStringFunc(template, func(matched string) string {
		submatch := smsTemplateVarPattern.FindStringSubmatch(matched)
		if len(submatch) != 3 {
			return matched
		}
		key := strings.TrimSpace(submatch[1])
		if key == "" {
			key = strings.TrimSpace(submatch[2])
		}
		value, ok := variables[key]
		if !ok || value == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprintf("%v", value))
	})
}

func displayTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(callback.EAT).Format("2006-01-02 15:04")
}
