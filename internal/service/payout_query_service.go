package service

import (
	"context"
	"time"

	"github.com/mixpitch-payouts/internal/cache"
	"github.com/mixpitch-payouts/internal/constants"
	"github.com/mixpitch-payouts/internal/models"
	"github.com/mixpitch-payouts/internal/repository"
)

const payoutStatsCacheTTL = 45 * time.Second

// PayoutQueryService 打款查询与统计服务
type PayoutQueryService struct {
	payoutRepo repository.PayoutScheduleRepository
	txnRepo    repository.TransactionRepository
}

// NewPayoutQueryService 创建打款查询服务
func NewPayoutQueryService(payoutRepo repository.PayoutScheduleRepository, txnRepo repository.TransactionRepository) *PayoutQueryService {
	return &PayoutQueryService{payoutRepo: payoutRepo, txnRepo: txnRepo}
}

// PayoutStatsResponse 打款概览统计
type PayoutStatsResponse struct {
	Scheduled      int64            `json:"scheduled"`
	Processing     int64            `json:"processing"`
	Completed      int64            `json:"completed"`
	Failed         int64            `json:"failed"`
	Cancelled      int64            `json:"cancelled"`
	PendingRelease int64            `json:"pending_release"`
	ByWorkflow     map[string]int64 `json:"by_workflow"`
	PendingNet     string           `json:"pending_net"`
	CompletedNet   string           `json:"completed_net"`
	GeneratedAtUTC string           `json:"generated_at_utc"`
}

// ProducerEarningsResponse 制作人收入汇总
type ProducerEarningsResponse struct {
	ProducerID   uint                 `json:"producer_id"`
	TotalEarned  string               `json:"total_earned"`
	Transactions []models.Transaction `json:"transactions"`
	Total        int64                `json:"total"`
}

// ListPayouts 分页查询打款计划
func (s *PayoutQueryService) ListPayouts(filter repository.PayoutScheduleListFilter) ([]models.PayoutSchedule, int64, error) {
	return s.payoutRepo.List(filter)
}

// GetPayout 按 ID 查询打款计划
func (s *PayoutQueryService) GetPayout(id uint) (*models.PayoutSchedule, error) {
	schedule, err := s.payoutRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, ErrPayoutNotFound
	}
	return schedule, nil
}

// GetPayoutByNo 按打款单号查询
func (s *PayoutQueryService) GetPayoutByNo(payoutNo string) (*models.PayoutSchedule, error) {
	schedule, err := s.payoutRepo.GetByPayoutNo(payoutNo)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, ErrPayoutNotFound
	}
	return schedule, nil
}

// GetStats 获取打款概览统计，短缓存降低后台轮询压力
func (s *PayoutQueryService) GetStats(ctx context.Context, forceRefresh bool) (*PayoutStatsResponse, error) {
	cacheKey := "payout:stats:overview"
	if !forceRefresh {
		var cached PayoutStatsResponse
		hit, cacheErr := cache.GetJSON(ctx, cacheKey, &cached)
		if cacheErr == nil && hit {
			return &cached, nil
		}
	}

	counts, err := s.payoutRepo.CountByStatus()
	if err != nil {
		return nil, err
	}
	byWorkflow, err := s.payoutRepo.CountByWorkflow()
	if err != nil {
		return nil, err
	}
	pendingRelease, err := s.payoutRepo.CountPendingRelease(time.Now())
	if err != nil {
		return nil, err
	}
	pendingNet, err := s.payoutRepo.SumNetByStatus(constants.PayoutStatusScheduled)
	if err != nil {
		return nil, err
	}
	completedNet, err := s.payoutRepo.SumNetByStatus(constants.PayoutStatusCompleted)
	if err != nil {
		return nil, err
	}

	response := &PayoutStatsResponse{
		Scheduled:      counts[constants.PayoutStatusScheduled],
		Processing:     counts[constants.PayoutStatusProcessing],
		Completed:      counts[constants.PayoutStatusCompleted],
		Failed:         counts[constants.PayoutStatusFailed],
		Cancelled:      counts[constants.PayoutStatusCancelled],
		PendingRelease: pendingRelease,
		ByWorkflow:     byWorkflow,
		PendingNet:     pendingNet.String(),
		CompletedNet:   completedNet.String(),
		GeneratedAtUTC: time.Now().UTC().Format(time.RFC3339),
	}
	_ = cache.SetJSON(ctx, cacheKey, response, payoutStatsCacheTTL)
	return response, nil
}

// GetProducerEarnings 查询制作人收入流水与累计到账
func (s *PayoutQueryService) GetProducerEarnings(producerID uint, page, pageSize int) (*ProducerEarningsResponse, error) {
	total, err := s.txnRepo.SumAmountByProducer(producerID, constants.TransactionTypePayout, constants.TransactionStatusCompleted)
	if err != nil {
		return nil, err
	}
	transactions, count, err := s.txnRepo.List(repository.TransactionListFilter{
		Page:       page,
		PageSize:   pageSize,
		ProducerID: producerID,
	})
	if err != nil {
		return nil, err
	}
	return &ProducerEarningsResponse{
		ProducerID:   producerID,
		TotalEarned:  total.String(),
		Transactions: transactions,
		Total:        count,
	}, nil
}
