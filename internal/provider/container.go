package provider

import (
	"errors"
	"time"

	"github.com/lipa-next/internal/cache"
	"github.com/lipa-next/internal/config"
	"github.com/lipa-next/internal/logger"
	"github.com/lipa-next/internal/models"
	"github.com/lipa-next/internal/queue"
	"github.com/lipa-next/internal/repository"
	"github.com/lipa-next/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	GatewayConfigRepo repository.GatewayConfigRepository
	SubscriberRepo    repository.SubscriberRepository
	VoucherRepo       repository.VoucherRepository
	PaymentLinkRepo   repository.PaymentLinkRepository
	TransactionRepo   repository.TransactionRepository
	SMSRepo           repository.SMSRepository

	// Services
	AccountResolver     *service.AccountResolver
	CorrelationResolver *service.CorrelationResolver
	LedgerService       *service.LedgerService
	NotificationService *service.NotificationService
	SubscriptionService *service.SubscriptionService
	VoucherService      *service.VoucherService
	CallbackService     *service.CallbackService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.GatewayConfigRepo = repository.NewGatewayConfigRepository(db)
	c.SubscriberRepo = repository.NewSubscriberRepository(db)
	c.VoucherRepo = repository.NewVoucherRepository(db)
	c.PaymentLinkRepo = repository.NewPaymentLinkRepository(db)
	c.TransactionRepo = repository.NewTransactionRepository(db)
	c.SMSRepo = repository.NewSMSRepository(db)
}

func (c *Container) initServices() {
	cfg := c.Config
	notifyTimeout := time.Duration(cfg.Notification.TimeoutSeconds) * time.Second

	c.NotificationService = service.NewNotificationService(c.SMSRepo, c.QueueClient, service.NewHTTPSMSSender(notifyTimeout), cfg.Notification)
	c.AccountResolver = service.NewAccountResolver(c.GatewayConfigRepo, time.Duration(cfg.Callback.ResolverCacheSeconds)*time.Second)
	c.CorrelationResolver = service.NewCorrelationResolver(c.VoucherRepo, c.PaymentLinkRepo, c.SubscriberRepo, c.AccountResolver)
	c.LedgerService = service.NewLedgerService(c.TransactionRepo, time.Duration(cfg.Callback.LedgerTimeoutSeconds)*time.Second)
	c.SubscriptionService = service.NewSubscriptionService(c.SubscriberRepo, c.NotificationService, cfg.Subscription.ExtensionPolicy)
	c.VoucherService = service.NewVoucherService(c.VoucherRepo, c.NotificationService)
	c.CallbackService = service.NewCallbackService(
		c.CorrelationResolver,
		c.AccountResolver,
		c.LedgerService,
		c.SubscriptionService,
		c.VoucherService,
		c.PaymentLinkRepo,
	)
}

// Close 释放队列客户端与缓存连接
func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if err := c.QueueClient.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := cache.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
