package worker

import (
	"context"
	"errors"
	"strings"

	"github.com/lipa-next/internal/logger"
	"github.com/lipa-next/internal/provider"
	"github.com/lipa-next/internal/queue"

	"github.com/hibiken/asynq"
)

// smsDeliverer 短信投递
type smsDeliverer interface {
	Deliver(ctx context.Context, payload queue.SMSSendPayload) error
}

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
	sms smsDeliverer
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	consumer := &Consumer{
		Container: c,
	}
	if c != nil && c.NotificationService != nil {
		consumer.sms = c.NotificationService
	}
	return consumer
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskSMSSend, c.handleSMSSend)
}

func (c *Consumer) handleSMSSend(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_sms_send_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.ParseSMSSendPayload(task)
	if err != nil {
		logger.Warnw("worker_sms_send_unmarshal_failed", "error", err)
		// 载荷损坏不重试
		return errors.Join(err, asynq.SkipRetry)
	}
	if payload.TenantID == 0 || strings.TrimSpace(payload.Phone) == "" || strings.TrimSpace(payload.Message) == "" {
		logger.Debugw("worker_sms_send_skip_invalid_payload", "tenant_id", payload.TenantID, "template", payload.Template)
		return nil
	}
	if c.sms == nil {
		logger.Warnw("worker_sms_send_skip_notifier_nil", "tenant_id", payload.TenantID)
		return nil
	}
	if err := c.sms.Deliver(ctx, payload); err != nil {
		logger.Warnw("worker_sms_send_failed",
			"tenant_id", payload.TenantID,
			"template", payload.Template,
			"reference", payload.Reference,
			"error", err,
		)
		return err
	}
	return nil
}

func (c *Consumer) expireDueVouchers(ctx context.Context) {
	if c == nil || c.Container == nil || c.VoucherService == nil {
		return
	}
	if _, err := c.VoucherService.ExpireDue(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warnw("worker_voucher_expire_due_failed", "error", err)
	}
}
