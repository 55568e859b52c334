package worker

import (
	"context"
	"errors"
	"time"

	"github.com/mixpitch-payouts/internal/config"
	"github.com/mixpitch-payouts/internal/logger"
	"github.com/mixpitch-payouts/internal/queue"

	"github.com/hibiken/asynq"
)

const defaultBatchInterval = time.Minute

// Service 异步队列服务
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
	interval time.Duration
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

	interval := defaultBatchInterval
	if consumer.Container != nil && consumer.Config != nil && consumer.Config.Payout.Processing.IntervalSeconds > 0 {
		interval = time.Duration(consumer.Config.Payout.Processing.IntervalSeconds) * time.Second
	}
	return &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
		interval: interval,
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
	if s.consumer != nil && s.consumer.ProcessorService != nil {
		go s.runPayoutBatchLoop(ctx)
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

// runPayoutBatchLoop 周期驱动打款批次：放款、重试、僵死回收
func (s *Service) runPayoutBatchLoop(ctx context.Context) {
	if s == nil || s.consumer == nil || s.consumer.ProcessorService == nil {
		return
	}
	processor := s.consumer.ProcessorService
	runOnce := func() {
		if _, err := processor.ReclaimStaleProcessing(ctx); err != nil {
			logger.Warnw("worker_payout_reclaim_stale_failed", "error", err)
		}
		if _, err := processor.ProcessScheduledPayouts(ctx); err != nil {
			logger.Warnw("worker_payout_batch_failed", "error", err)
		}
		if _, err := processor.ProcessRetryQueue(ctx); err != nil {
			logger.Warnw("worker_payout_retry_batch_failed", "error", err)
		}
	}
	runOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
