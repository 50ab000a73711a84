package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lipa-next/internal/config"
	"github.com/lipa-next/internal/logger"
	"github.com/lipa-next/internal/queue"

	"github.com/hibiken/asynq"
)

const voucherExpireInterval = time.Minute

// Service 异步队列服务，附带上网券过期巡检
type Service struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
	interval time.Duration

	cancel context.CancelFunc
	loops  sync.WaitGroup
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		server:   asynq.NewServer(opt, serverCfg),
		mux:      mux,
		consumer: consumer,
		interval: voucherExpireInterval,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	return "worker"
}

// Start 启动消费与巡检，阻塞直到 ctx 结束
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if err := s.server.Start(s.mux); err != nil {
		return err
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.loops.Add(1)
	go func() {
		defer s.loops.Done()
		s.runVoucherExpireLoop(loopCtx)
	}()

	<-ctx.Done()
	return nil
}

// Stop 停止巡检并等待在途任务结束
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	done := make(chan struct{})
	go func() {
		s.loops.Wait()
		s.server.Shutdown()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		logger.Warnw("worker_stop_timeout")
		return ctx.Err()
	}
}

func (s *Service) runVoucherExpireLoop(ctx context.Context) {
	if s.consumer == nil || s.consumer.Container == nil || s.consumer.VoucherService == nil {
		return
	}
	s.consumer.expireDueVouchers(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.consumer.expireDueVouchers(ctx)
		}
	}
}
