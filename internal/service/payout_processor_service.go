package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mixpitch-payouts/internal/config"
	"github.com/mixpitch-payouts/internal/constants"
	"github.com/mixpitch-payouts/internal/logger"
	"github.com/mixpitch-payouts/internal/models"
	"github.com/mixpitch-payouts/internal/payment"
	"github.com/mixpitch-payouts/internal/queue"
	"github.com/mixpitch-payouts/internal/repository"

	"github.com/google/uuid"
)

// PayoutProcessorService 批量打款执行服务
type PayoutProcessorService struct {
	payoutRepo  repository.PayoutScheduleRepository
	txnRepo     repository.TransactionRepository
	registry    *payment.Registry
	queueClient *queue.Client
	cfg         config.ProcessingConfig
	now         func() time.Time
}

// BatchError 批次内单笔失败样本
type BatchError struct {
	PayoutID uint   `json:"payout_id"`
	PayoutNo string `json:"payout_no"`
	Error    string `json:"error"`
}

// BatchResult 批次执行结果
type BatchResult struct {
	BatchID     string       `json:"batch_id"`
	Processed   int          `json:"processed"`
	Failed      int          `json:"failed"`
	Skipped     int          `json:"skipped"`
	TotalErrors int          `json:"total_errors"`
	Errors      []BatchError `json:"errors"`
}

// NewPayoutProcessorService 创建批量打款服务
func NewPayoutProcessorService(
	payoutRepo repository.PayoutScheduleRepository,
	txnRepo repository.TransactionRepository,
	registry *payment.Registry,
	queueClient *queue.Client,
	cfg config.ProcessingConfig,
) *PayoutProcessorService {
	return &PayoutProcessorService{
		payoutRepo:  payoutRepo,
		txnRepo:     txnRepo,
		registry:    registry,
		queueClient: queueClient,
		cfg:         cfg,
		now:         time.Now,
	}
}

// ProcessScheduledPayouts 处理所有冻结期已到的打款计划
// 单笔失败只影响该笔，不中断批次
func (s *PayoutProcessorService) ProcessScheduledPayouts(ctx context.Context) (*BatchResult, error) {
	now := s.now()
	result := &BatchResult{
		BatchID: uuid.NewString(),
		Errors:  make([]BatchError, 0),
	}

	ready, err := s.payoutRepo.ListReadyForRelease(now, s.batchSize())
	if err != nil {
		return nil, err
	}

	for i := range ready {
		if ctx.Err() != nil {
			break
		}
		schedule := &ready[i]
		claimed, err := s.payoutRepo.ClaimForProcessing(schedule.ID, now)
		if err != nil {
			s.recordFailure(result, schedule, err)
			continue
		}
		if !claimed {
			// 已被并发批次抢走或状态已变化
			result.Skipped++
			continue
		}
		if err := s.executeTransfer(ctx, schedule); err != nil {
			s.recordFailure(result, schedule, err)
			continue
		}
		result.Processed++
	}

	logger.Infow("payout_batch_finished",
		"batch_id", result.BatchID,
		"processed", result.Processed,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)
	return result, nil
}

// ProcessRetryQueue 自动重试可重试的失败打款
func (s *PayoutProcessorService) ProcessRetryQueue(ctx context.Context) (*BatchResult, error) {
	now := s.now()
	result := &BatchResult{
		BatchID: uuid.NewString(),
		Errors:  make([]BatchError, 0),
	}

	candidates, err := s.payoutRepo.ListRetryCandidates(s.maxAttempts(), s.batchSize())
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		if ctx.Err() != nil {
			break
		}
		schedule := &candidates[i]
		claimed, err := s.payoutRepo.ClaimFailedForRetry(schedule.ID, s.maxAttempts(), now)
		if err != nil {
			s.recordFailure(result, schedule, err)
			continue
		}
		if !claimed {
			result.Skipped++
			continue
		}
		if err := s.executeTransfer(ctx, schedule); err != nil {
			s.recordFailure(result, schedule, err)
			continue
		}
		result.Processed++
	}

	if result.Processed > 0 || result.Failed > 0 {
		logger.Infow("payout_retry_batch_finished",
			"batch_id", result.BatchID,
			"processed", result.Processed,
			"failed", result.Failed,
			"skipped", result.Skipped,
		)
	}
	return result, nil
}

// RetryFailedPayout 管理员手工重试一笔失败的打款
// 收款账户未就绪等人工跟进场景修复后从这里重新发起
func (s *PayoutProcessorService) RetryFailedPayout(ctx context.Context, id uint) (*models.PayoutSchedule, error) {
	schedule, err := s.payoutRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, ErrPayoutNotFound
	}
	if schedule.Status != constants.PayoutStatusFailed {
		return nil, ErrRetryNotAllowed
	}
	if schedule.AttemptCount >= s.maxAttempts() {
		return nil, ErrRetryNotAllowed
	}

	// 人工重试视为已处理完失败原因，恢复可重试标记
	if !schedule.Retryable {
		schedule.Retryable = true
		if err := s.payoutRepo.Update(schedule); err != nil {
			return nil, err
		}
	}

	claimed, err := s.payoutRepo.ClaimFailedForRetry(id, s.maxAttempts(), s.now())
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrRetryNotAllowed
	}

	if err := s.executeTransfer(ctx, schedule); err != nil {
		logger.Warnw("payout_manual_retry_failed", "payout_no", schedule.PayoutNo, "error", err)
	}
	return s.payoutRepo.GetByID(id)
}

// ReversePayout 撤回一笔已完成的打款，只记审计流水，不改打款终态
func (s *PayoutProcessorService) ReversePayout(ctx context.Context, id uint, reason string) (*models.Transaction, error) {
	schedule, err := s.payoutRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, ErrPayoutNotFound
	}
	if schedule.Status != constants.PayoutStatusCompleted || schedule.ProviderTransferRef == "" {
		return nil, ErrReverseNotAllowed
	}

	client, err := s.registry.Get(schedule.Provider)
	if err != nil {
		return nil, err
	}
	reverser, ok := client.(payment.ReversalClient)
	if !ok {
		return nil, ErrReverseNotSupported
	}

	reversalRef, err := reverser.CreateReversal(ctx, schedule.ProviderTransferRef, schedule.PayoutNo)
	if err != nil {
		logger.Warnw("payout_reversal_failed", "payout_no", schedule.PayoutNo, "error", err)
		return nil, err
	}

	txn := &models.Transaction{
		ProducerID:  schedule.ProducerID,
		PayoutID:    schedule.ID,
		Type:        constants.TransactionTypeReversal,
		Status:      constants.TransactionStatusCompleted,
		Currency:    schedule.Currency,
		Amount:      schedule.NetAmount,
		ProviderRef: reversalRef,
		Description: fmt.Sprintf("Reversal of payout %s: %s", schedule.PayoutNo, reason),
	}
	if err := s.txnRepo.Create(txn); err != nil {
		logger.Errorw("payout_reversal_ledger_write_failed", "payout_no", schedule.PayoutNo, "error", err)
		return nil, err
	}

	logger.Warnw("payout_reversed",
		"payout_no", schedule.PayoutNo,
		"reversal_ref", reversalRef,
		"reason", reason,
	)
	return txn, nil
}

// ReclaimStaleProcessing 把超时卡在处理中的打款重置为可重试失败
func (s *PayoutProcessorService) ReclaimStaleProcessing(ctx context.Context) (int64, error) {
	now := s.now()
	staleMinutes := s.cfg.StaleAfterMinutes
	if staleMinutes <= 0 {
		staleMinutes = 30
	}
	before := now.Add(-time.Duration(staleMinutes) * time.Minute)
	reclaimed, err := s.payoutRepo.ReclaimStaleProcessing(before, now)
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		logger.Warnw("payout_stale_processing_reclaimed", "count", reclaimed, "stale_after_minutes", staleMinutes)
	}
	return reclaimed, nil
}

// executeTransfer 执行单笔转账并落终态
func (s *PayoutProcessorService) executeTransfer(ctx context.Context, schedule *models.PayoutSchedule) error {
	now := s.now()
	client, err := s.registry.Get(schedule.Provider)
	if err != nil {
		s.markFailed(schedule, err, now)
		return err
	}

	// 收款账户未就绪时不发起转账，直接落账户未就绪失败
	if checker, ok := client.(payment.AccountChecker); ok {
		if err := checker.CheckAccountReady(ctx, schedule.AccountRef); err != nil {
			s.markFailed(schedule, err, now)
			return err
		}
	}

	transfer, err := client.CreateTransfer(ctx, payment.TransferInput{
		PayoutNo:    schedule.PayoutNo,
		AccountRef:  schedule.AccountRef,
		Amount:      schedule.NetAmount.String(),
		Currency:    schedule.Currency,
		Description: fmt.Sprintf("Payout %s for project %s", schedule.PayoutNo, schedule.ProjectRef),
		Metadata: map[string]string{
			"producer_id": fmt.Sprintf("%d", schedule.ProducerID),
			"source_ref":  schedule.SourceRef,
		},
	})
	if err != nil {
		s.markFailed(schedule, err, now)
		return err
	}

	if err := s.payoutRepo.MarkCompleted(schedule.ID, transfer.TransferRef, now); err != nil {
		return err
	}
	s.settleLedger(schedule, constants.TransactionStatusCompleted, transfer.TransferRef)

	logger.Infow("payout_completed",
		"payout_no", schedule.PayoutNo,
		"provider", schedule.Provider,
		"transfer_ref", transfer.TransferRef,
		"net_amount", schedule.NetAmount.String(),
	)
	s.notify(schedule.ID, constants.NotifyEventPayoutCompleted, "")
	return nil
}

// settleLedger 推进该打款的流水终态，缺行时补建（历史数据兜底）
func (s *PayoutProcessorService) settleLedger(schedule *models.PayoutSchedule, status, providerRef string) {
	affected, err := s.txnRepo.UpdateStatusByPayout(schedule.ID, constants.TransactionTypePayout, status, providerRef)
	if err != nil {
		// 打款状态已落库，流水失败只告警不回滚
		logger.Errorw("payout_ledger_update_failed", "payout_no", schedule.PayoutNo, "error", err)
		return
	}
	if affected > 0 {
		return
	}
	if err := s.txnRepo.Create(&models.Transaction{
		ProducerID:  schedule.ProducerID,
		PayoutID:    schedule.ID,
		Type:        constants.TransactionTypePayout,
		Status:      status,
		Currency:    schedule.Currency,
		Amount:      schedule.NetAmount,
		ProviderRef: providerRef,
		Description: fmt.Sprintf("Payout %s", schedule.PayoutNo),
	}); err != nil {
		logger.Errorw("payout_ledger_write_failed", "payout_no", schedule.PayoutNo, "error", err)
	}
}

func (s *PayoutProcessorService) markFailed(schedule *models.PayoutSchedule, cause error, now time.Time) {
	kind, retryable := payment.Classify(cause)
	if err := s.payoutRepo.MarkFailed(schedule.ID, kind, cause.Error(), retryable, now); err != nil {
		logger.Errorw("payout_mark_failed_error", "payout_no", schedule.PayoutNo, "error", err)
		return
	}
	s.settleLedger(schedule, constants.TransactionStatusFailed, "")
	logger.Warnw("payout_failed",
		"payout_no", schedule.PayoutNo,
		"provider", schedule.Provider,
		"failure_kind", kind,
		"retryable", retryable,
		"error", cause,
	)
	event := constants.NotifyEventPayoutFailed
	if kind == constants.FailureKindAccountNotReady {
		event = constants.NotifyEventAccountNotReady
	}
	s.notify(schedule.ID, event, cause.Error())
}

func (s *PayoutProcessorService) recordFailure(result *BatchResult, schedule *models.PayoutSchedule, cause error) {
	result.Failed++
	result.TotalErrors++
	limit := s.cfg.ErrorSampleLimit
	if limit <= 0 {
		limit = 50
	}
	if len(result.Errors) < limit {
		result.Errors = append(result.Errors, BatchError{
			PayoutID: schedule.ID,
			PayoutNo: schedule.PayoutNo,
			Error:    cause.Error(),
		})
	}
}

func (s *PayoutProcessorService) notify(payoutID uint, event, reason string) {
	if s.queueClient == nil {
		return
	}
	if err := s.queueClient.EnqueuePayoutNotify(queue.PayoutNotifyPayload{
		PayoutID: payoutID,
		Event:    event,
		Reason:   reason,
	}); err != nil {
		logger.Warnw("payout_notify_enqueue_failed", "payout_id", payoutID, "event", event, "error", err)
	}
}

func (s *PayoutProcessorService) batchSize() int {
	if s.cfg.BatchSize > 0 {
		return s.cfg.BatchSize
	}
	return 200
}

func (s *PayoutProcessorService) maxAttempts() int {
	if s.cfg.MaxAttempts > 0 {
		return s.cfg.MaxAttempts
	}
	return 3
}
