package app

import (
	"errors"

	"github.com/lipa-next/internal/config"
	"github.com/lipa-next/internal/logger"
	"github.com/lipa-next/internal/models"
	"github.com/lipa-next/internal/provider"
	"github.com/lipa-next/internal/router"
	"github.com/lipa-next/internal/worker"
)

// BuildRunner 按启动模式组装 HTTP 与 Worker 服务
func BuildRunner(cfg *config.Config, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	container := provider.NewContainer(cfg)
	var services []Service

	if mode == ModeAll || mode == ModeAPI {
		engine := router.SetupRouter(cfg, container)
		services = append(services, NewHTTPService(cfg.Server, engine))
	}

	switch {
	case mode == ModeWorker || (mode == ModeAll && cfg.Queue.Enabled):
		workerService, err := worker.NewService(&cfg.Queue, worker.NewConsumer(container))
		if err != nil {
			_ = container.Close()
			return nil, err
		}
		services = append(services, workerService)
	case mode == ModeAll:
		// 队列关闭时短信由后台协程直接投递
		logger.Infow("app_worker_skip_queue_disabled")
	}

	if len(services) == 0 {
		_ = container.Close()
		return nil, errors.New("no services initialized (check mode and config)")
	}

	runner := NewRunner(services...)
	runner.OnClose(container.Close)
	runner.OnClose(models.CloseDB)
	runner.OnClose(func() error {
		logger.Sync()
		return nil
	})
	return runner, nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts, err := normalizeOptions(opts)
	if err != nil {
		return err
	}
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}

	opts.Logger.Infow("app_start", "addr", opts.Config.Server.Addr(), "mode", opts.Mode)
	return RunWithOptions(runner, opts)
}
