package worker

import (
	"context"
	"errors"
	"time"

	"github.com/paytrack-next/internal/config"
	"github.com/paytrack-next/internal/logger"
	"github.com/paytrack-next/internal/queue"

	"github.com/hibiken/asynq"
)

const (
	defaultPaymentSweepInterval = 5 * time.Minute
)

// Service 异步队列服务
type Service struct {
	name          string
	server        *asynq.Server
	mux           *asynq.ServeMux
	consumer      *Consumer
	sweepInterval time.Duration
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
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:          "worker",
		server:        server,
		mux:           mux,
		consumer:      consumer,
		sweepInterval: consumer.sweepInterval(),
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if s.consumer != nil && s.consumer.PaymentService != nil {
		go s.runPaymentSweepLoop(ctx)
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

func (s *Service) runPaymentSweepLoop(ctx context.Context) {
	if s == nil || s.consumer == nil {
		return
	}
	interval := s.sweepInterval
	if interval <= 0 {
		interval = defaultPaymentSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.consumer.sweepPendingPayments(ctx)
		}
	}
}

func (c *Consumer) sweepPendingPayments(ctx context.Context) {
	if c == nil || c.PaymentService == nil {
		return
	}
	if _, err := c.PaymentService.SweepPending(ctx); err != nil {
		logger.Warnw("worker_payment_sweep_failed", "error", err)
	}
}

func (c *Consumer) sweepInterval() time.Duration {
	if c == nil || c.Container == nil || c.Config == nil || c.Config.Payment.SweepIntervalSeconds <= 0 {
		return defaultPaymentSweepInterval
	}
	return time.Duration(c.Config.Payment.SweepIntervalSeconds) * time.Second
}
