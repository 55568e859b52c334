package worker

import (
	"context"
	"encoding/json"

	"github.com/mixpitch-payouts/internal/logger"
	"github.com/mixpitch-payouts/internal/provider"
	"github.com/mixpitch-payouts/internal/queue"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskPayoutNotify, c.handlePayoutNotify)
}

func (c *Consumer) handlePayoutNotify(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_payout_notify_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.PayoutNotifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_payout_notify_unmarshal_failed", "error", err)
		return err
	}
	if c.NotificationService == nil {
		logger.Warnw("worker_payout_notify_skip_service_nil", "payout_id", payload.PayoutID)
		return nil
	}
	return c.NotificationService.HandlePayoutEvent(ctx, payload)
}
