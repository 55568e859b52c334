package service

import (
	"context"
	"strings"

	"github.com/mixpitch-payouts/internal/constants"
	"github.com/mixpitch-payouts/internal/logger"
	"github.com/mixpitch-payouts/internal/queue"
	"github.com/mixpitch-payouts/internal/repository"
)

// NotificationService 打款事件通知服务
// 消费队列里的打款事件，产出带上下文的通知日志，后续渠道在此挂接
type NotificationService struct {
	payoutRepo   repository.PayoutScheduleRepository
	producerRepo repository.ProducerRepository
}

// NewNotificationService 创建通知服务
func NewNotificationService(payoutRepo repository.PayoutScheduleRepository, producerRepo repository.ProducerRepository) *NotificationService {
	return &NotificationService{payoutRepo: payoutRepo, producerRepo: producerRepo}
}

// HandlePayoutEvent 处理一条打款事件
func (s *NotificationService) HandlePayoutEvent(_ context.Context, payload queue.PayoutNotifyPayload) error {
	if payload.PayoutID == 0 {
		logger.Debugw("payout_notify_skip_invalid_payload", "payout_id", payload.PayoutID)
		return nil
	}

	schedule, err := s.payoutRepo.GetByID(payload.PayoutID)
	if err != nil {
		logger.Warnw("payout_notify_fetch_payout_failed", "payout_id", payload.PayoutID, "error", err)
		return err
	}
	if schedule == nil {
		logger.Debugw("payout_notify_skip_payout_not_found", "payout_id", payload.PayoutID)
		return nil
	}

	producerEmail := ""
	producer, err := s.producerRepo.GetByID(schedule.ProducerID)
	if err != nil {
		logger.Warnw("payout_notify_fetch_producer_failed", "payout_id", payload.PayoutID, "producer_id", schedule.ProducerID, "error", err)
		return err
	}
	if producer != nil {
		producerEmail = strings.TrimSpace(producer.Email)
	}

	event := strings.TrimSpace(payload.Event)
	fields := []interface{}{
		"event", event,
		"payout_no", schedule.PayoutNo,
		"producer_id", schedule.ProducerID,
		"producer_email", producerEmail,
		"status", schedule.Status,
		"net_amount", schedule.NetAmount.String(),
	}
	if payload.Reason != "" {
		fields = append(fields, "reason", payload.Reason)
	}

	switch event {
	case constants.NotifyEventPayoutFailed, constants.NotifyEventAccountNotReady:
		logger.Warnw("payout_event_notified", fields...)
	default:
		logger.Infow("payout_event_notified", fields...)
	}
	return nil
}
