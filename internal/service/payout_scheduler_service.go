package service

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/mixpitch-payouts/internal/constants"
	"github.com/mixpitch-payouts/internal/logger"
	"github.com/mixpitch-payouts/internal/models"
	"github.com/mixpitch-payouts/internal/queue"
	"github.com/mixpitch-payouts/internal/repository"

	"gorm.io/gorm"
)

// PayoutSchedulerService 打款计划编排服务
type PayoutSchedulerService struct {
	payoutRepo   repository.PayoutScheduleRepository
	producerRepo repository.ProducerRepository
	txnRepo      repository.TransactionRepository
	calculator   *PayoutCalculator
	holdPolicy   *HoldPolicyEvaluator
	queueClient  *queue.Client
	now          func() time.Time
}

// SchedulePayoutInput 创建打款计划输入
type SchedulePayoutInput struct {
	ProducerID   uint
	ProjectRef   string
	SourceRef    string
	WorkflowType string
	GrossAmount  models.Money
	Currency     string
	Metadata     models.JSON
}

// ContestWinnerInput 比赛获奖者打款输入
type ContestWinnerInput struct {
	ProducerID  uint
	SourceRef   string
	GrossAmount models.Money
}

// ContestBatchResult 比赛批量建计划结果
type ContestBatchResult struct {
	Scheduled []models.PayoutSchedule `json:"scheduled"`
	Skipped   int                     `json:"skipped"`
}

// NewPayoutSchedulerService 创建打款计划服务
func NewPayoutSchedulerService(
	payoutRepo repository.PayoutScheduleRepository,
	producerRepo repository.ProducerRepository,
	txnRepo repository.TransactionRepository,
	calculator *PayoutCalculator,
	holdPolicy *HoldPolicyEvaluator,
	queueClient *queue.Client,
) *PayoutSchedulerService {
	return &PayoutSchedulerService{
		payoutRepo:   payoutRepo,
		producerRepo: producerRepo,
		txnRepo:      txnRepo,
		calculator:   calculator,
		holdPolicy:   holdPolicy,
		queueClient:  queueClient,
		now:          time.Now,
	}
}

// SchedulePayout 为一笔已入账的源支付创建打款计划（按源支付标识幂等）
func (s *PayoutSchedulerService) SchedulePayout(input SchedulePayoutInput) (*models.PayoutSchedule, bool, error) {
	sourceRef := strings.TrimSpace(input.SourceRef)
	if sourceRef == "" {
		return nil, false, ErrSourceRefRequired
	}
	workflow := normalizeWorkflowType(input.WorkflowType)
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "USD"
	}

	producer, err := s.producerRepo.GetByID(input.ProducerID)
	if err != nil {
		return nil, false, err
	}
	if producer == nil {
		return nil, false, ErrProducerNotFound
	}
	if producer.Status != constants.ProducerStatusActive {
		return nil, false, ErrProducerDisabled
	}

	// 幂等：同一源支付只建一条计划
	existing, err := s.payoutRepo.GetBySourceRef(sourceRef)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	breakdown, err := s.calculator.CalculateWithDefault(input.GrossAmount, producer.CommissionRate)
	if err != nil {
		return nil, false, err
	}

	now := s.now()
	schedule := &models.PayoutSchedule{
		PayoutNo:         generatePayoutNo(),
		ProducerID:       producer.ID,
		ProjectRef:       strings.TrimSpace(input.ProjectRef),
		SourceRef:        sourceRef,
		WorkflowType:     workflow,
		Provider:         producer.PayoutProvider,
		AccountRef:       producer.ProviderAccountRef(),
		Currency:         currency,
		GrossAmount:      breakdown.GrossAmount,
		CommissionRate:   breakdown.CommissionRate,
		CommissionAmount: breakdown.CommissionAmount,
		NetAmount:        breakdown.NetAmount,
		Status:           constants.PayoutStatusScheduled,
		HoldReleaseAt:    s.holdPolicy.ReleaseAt(workflow, now),
		Retryable:        true,
		Metadata:         input.Metadata,
	}

	// 计划与待结算流水同事务落库
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.payoutRepo.WithTx(tx).Create(schedule); err != nil {
			return err
		}
		return s.txnRepo.WithTx(tx).Create(&models.Transaction{
			ProducerID:  schedule.ProducerID,
			PayoutID:    schedule.ID,
			Type:        constants.TransactionTypePayout,
			Status:      constants.TransactionStatusPending,
			Currency:    schedule.Currency,
			Amount:      schedule.NetAmount,
			Description: fmt.Sprintf("Payout %s", schedule.PayoutNo),
		})
	})
	if err != nil {
		// 并发下唯一索引冲突时回落到已存在的计划
		if existing, lookupErr := s.payoutRepo.GetBySourceRef(sourceRef); lookupErr == nil && existing != nil {
			return existing, false, nil
		}
		return nil, false, err
	}

	logger.Infow("payout_scheduled",
		"payout_no", schedule.PayoutNo,
		"producer_id", schedule.ProducerID,
		"workflow", schedule.WorkflowType,
		"net_amount", schedule.NetAmount.String(),
		"hold_release_at", schedule.HoldReleaseAt,
	)
	s.notify(schedule.ID, constants.NotifyEventPayoutScheduled, "")
	return schedule, true, nil
}

// ScheduleContestBatch 比赛开奖后批量创建获奖者打款计划
// 单个获奖者失败不影响其他人，已存在的计划计入 Skipped
func (s *PayoutSchedulerService) ScheduleContestBatch(projectRef string, winners []ContestWinnerInput) (*ContestBatchResult, error) {
	result := &ContestBatchResult{Scheduled: make([]models.PayoutSchedule, 0, len(winners))}
	for _, winner := range winners {
		// 非现金奖项金额为零，不建打款计划
		if !winner.GrossAmount.IsPositive() {
			result.Skipped++
			continue
		}
		schedule, created, err := s.SchedulePayout(SchedulePayoutInput{
			ProducerID:   winner.ProducerID,
			ProjectRef:   projectRef,
			SourceRef:    winner.SourceRef,
			WorkflowType: constants.WorkflowTypeContest,
			GrossAmount:  winner.GrossAmount,
			Currency:     "USD",
		})
		if err != nil {
			logger.Warnw("contest_payout_schedule_failed",
				"project_ref", projectRef,
				"producer_id", winner.ProducerID,
				"error", err,
			)
			result.Skipped++
			continue
		}
		if !created {
			result.Skipped++
			continue
		}
		result.Scheduled = append(result.Scheduled, *schedule)
	}
	return result, nil
}

// CancelPayout 取消尚未进入处理的打款计划
// 取消与流水作废同事务，锁行读避免与批量打款竞态
func (s *PayoutSchedulerService) CancelPayout(id uint, reason string) (*models.PayoutSchedule, error) {
	reason = strings.TrimSpace(reason)
	var payoutNo string
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		payoutTx := s.payoutRepo.WithTx(tx)
		schedule, err := payoutTx.GetByIDForUpdate(id)
		if err != nil {
			return err
		}
		if schedule == nil {
			return ErrPayoutNotFound
		}
		if schedule.IsTerminal() {
			return ErrCancelNotAllowed
		}
		payoutNo = schedule.PayoutNo

		cancelled, err := payoutTx.MarkCancelled(id, reason, s.now())
		if err != nil {
			return err
		}
		if !cancelled {
			return ErrCancelNotAllowed
		}
		_, err = s.txnRepo.WithTx(tx).UpdateStatusByPayout(id, constants.TransactionTypePayout, constants.TransactionStatusCancelled, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Infow("payout_cancelled", "payout_no", payoutNo, "reason", reason)
	s.notify(id, constants.NotifyEventPayoutCancelled, reason)
	return s.payoutRepo.GetByID(id)
}

// BypassHold 管理员跳过冻结期，提前放款
func (s *PayoutSchedulerService) BypassHold(id uint, adminID uint, reason string) (*models.PayoutSchedule, error) {
	if !s.holdPolicy.AllowBypass() {
		return nil, ErrBypassNotAllowed
	}
	reason = strings.TrimSpace(reason)
	if s.holdPolicy.RequireBypassReason() && reason == "" {
		return nil, ErrBypassReasonRequired
	}

	var payoutNo string
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		payoutTx := s.payoutRepo.WithTx(tx)
		schedule, err := payoutTx.GetByIDForUpdate(id)
		if err != nil {
			return err
		}
		if schedule == nil {
			return ErrPayoutNotFound
		}
		if schedule.IsTerminal() {
			return ErrBypassNotAllowed
		}
		payoutNo = schedule.PayoutNo

		now := s.now()
		applied, err := payoutTx.ApplyHoldBypass(id, s.holdPolicy.BypassReleaseAt(now), reason, adminID, now)
		if err != nil {
			return err
		}
		if !applied {
			return ErrBypassNotAllowed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Warnw("payout_hold_bypassed",
		"payout_no", payoutNo,
		"admin_id", adminID,
		"reason", reason,
	)
	return s.payoutRepo.GetByID(id)
}

func (s *PayoutSchedulerService) notify(payoutID uint, event, reason string) {
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

func normalizeWorkflowType(workflowType string) string {
	switch strings.ToLower(strings.TrimSpace(workflowType)) {
	case constants.WorkflowTypeContest:
		return constants.WorkflowTypeContest
	case constants.WorkflowTypeClientManagement:
		return constants.WorkflowTypeClientManagement
	case constants.WorkflowTypeDirectHire:
		return constants.WorkflowTypeDirectHire
	default:
		return constants.WorkflowTypeStandard
	}
}

func generatePayoutNo() string {
	now := time.Now().Format("20060102150405")
	return fmt.Sprintf("PO%s%s", now, randNumeric(6))
}

func randNumeric(length int) string {
	var b strings.Builder
	for i := 0; i < length; i++ {
		b.WriteByte(byte('0' + rand.Intn(10)))
	}
	return b.String()
}
