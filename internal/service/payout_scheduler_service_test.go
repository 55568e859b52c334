package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/mixpitch-payouts/internal/config"
	"github.com/mixpitch-payouts/internal/constants"
	"github.com/mixpitch-payouts/internal/models"
	"github.com/mixpitch-payouts/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupSchedulerTest(t *testing.T) (*PayoutSchedulerService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:payout_scheduler_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Producer{},
		&models.PayoutSchedule{},
		&models.Transaction{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	holdCfg := config.HoldConfig{
		Enabled:     true,
		DefaultDays: 7,
		WorkflowDays: map[string]int{
			constants.WorkflowTypeStandard: 7,
			constants.WorkflowTypeContest:  0,
		},
		ProcessingTime:      "09:00",
		AllowAdminBypass:    true,
		RequireBypassReason: true,
	}
	svc := NewPayoutSchedulerService(
		repository.NewPayoutScheduleRepository(db),
		repository.NewProducerRepository(db),
		repository.NewTransactionRepository(db),
		NewPayoutCalculator(decimal.RequireFromString("0.10")),
		NewHoldPolicyEvaluator(holdCfg),
		nil,
	)
	svc.now = func() time.Time {
		return time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	}
	return svc, db
}

func createTestProducer(t *testing.T, db *gorm.DB, email string) *models.Producer {
	t.Helper()
	producer := &models.Producer{
		Email:           email,
		DisplayName:     "Test Producer",
		Status:          constants.ProducerStatusActive,
		PayoutProvider:  constants.PayoutProviderStripe,
		StripeAccountID: "acct_test_1",
	}
	if err := db.Create(producer).Error; err != nil {
		t.Fatalf("create producer failed: %v", err)
	}
	return producer
}

func TestSchedulePayoutCreatesBreakdown(t *testing.T) {
	svc, db := setupSchedulerTest(t)
	producer := createTestProducer(t, db, "producer1@example.com")

	schedule, created, err := svc.SchedulePayout(SchedulePayoutInput{
		ProducerID:   producer.ID,
		ProjectRef:   "project-1",
		SourceRef:    "pay_breakdown_1",
		WorkflowType: constants.WorkflowTypeStandard,
		GrossAmount:  models.NewMoneyFromDecimal(decimal.RequireFromString("100.00")),
		Currency:     "usd",
	})
	if err != nil {
		t.Fatalf("SchedulePayout failed: %v", err)
	}
	if !created {
		t.Fatalf("expected a new schedule to be created")
	}
	if schedule.PayoutNo == "" {
		t.Fatalf("expected payout_no to be generated")
	}
	if schedule.Status != constants.PayoutStatusScheduled {
		t.Fatalf("expected status scheduled, got %s", schedule.Status)
	}
	if schedule.Currency != "USD" {
		t.Fatalf("expected currency normalized to USD, got %s", schedule.Currency)
	}
	if got := schedule.CommissionAmount.String(); got != "10.00" {
		t.Fatalf("expected commission 10.00, got %s", got)
	}
	if got := schedule.NetAmount.String(); got != "90.00" {
		t.Fatalf("expected net 90.00, got %s", got)
	}
	if !schedule.Retryable {
		t.Fatalf("expected new schedule to be retryable")
	}
	if schedule.AccountRef != "acct_test_1" {
		t.Fatalf("expected account ref from producer, got %s", schedule.AccountRef)
	}

	// 标准流程：7 天冻结期，固定在每日放款时间
	want := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)
	if !schedule.HoldReleaseAt.Equal(want) {
		t.Fatalf("expected release at %v, got %v", want, schedule.HoldReleaseAt)
	}

	// 建计划同时落一条待结算流水
	var txn models.Transaction
	if err := db.Where("payout_id = ?", schedule.ID).First(&txn).Error; err != nil {
		t.Fatalf("load ledger row failed: %v", err)
	}
	if txn.Status != constants.TransactionStatusPending {
		t.Fatalf("expected pending ledger row, got %s", txn.Status)
	}
	if got := txn.Amount.String(); got != "90.00" {
		t.Fatalf("expected ledger amount 90.00, got %s", got)
	}
}

func TestSchedulePayoutIdempotentBySourceRef(t *testing.T) {
	svc, db := setupSchedulerTest(t)
	producer := createTestProducer(t, db, "producer2@example.com")

	input := SchedulePayoutInput{
		ProducerID:  producer.ID,
		ProjectRef:  "project-2",
		SourceRef:   "pay_idem_1",
		GrossAmount: models.NewMoneyFromDecimal(decimal.RequireFromString("50.00")),
	}
	first, created, err := svc.SchedulePayout(input)
	if err != nil {
		t.Fatalf("first SchedulePayout failed: %v", err)
	}
	if !created {
		t.Fatalf("expected first call to create")
	}

	second, created, err := svc.SchedulePayout(input)
	if err != nil {
		t.Fatalf("second SchedulePayout failed: %v", err)
	}
	if created {
		t.Fatalf("expected second call to reuse existing schedule")
	}
	if second.ID != first.ID {
		t.Fatalf("expected same schedule, got %d and %d", first.ID, second.ID)
	}

	var count int64
	db.Model(&models.PayoutSchedule{}).Where("source_ref = ?", "pay_idem_1").Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly one schedule, got %d", count)
	}
}

func TestSchedulePayoutUsesProducerCommissionRate(t *testing.T) {
	svc, db := setupSchedulerTest(t)
	producer := createTestProducer(t, db, "producer3@example.com")
	rate := decimal.RequireFromString("0.0825")
	producer.CommissionRate = &rate
	if err := db.Save(producer).Error; err != nil {
		t.Fatalf("save producer failed: %v", err)
	}

	schedule, _, err := svc.SchedulePayout(SchedulePayoutInput{
		ProducerID:  producer.ID,
		SourceRef:   "pay_rate_1",
		GrossAmount: models.NewMoneyFromDecimal(decimal.RequireFromString("99.99")),
	})
	if err != nil {
		t.Fatalf("SchedulePayout failed: %v", err)
	}
	if got := schedule.CommissionAmount.String(); got != "8.25" {
		t.Fatalf("expected commission 8.25, got %s", got)
	}
	if got := schedule.NetAmount.String(); got != "91.74" {
		t.Fatalf("expected net 91.74, got %s", got)
	}
}

func TestSchedulePayoutContestIsImmediate(t *testing.T) {
	svc, db := setupSchedulerTest(t)
	producer := createTestProducer(t, db, "producer4@example.com")

	schedule, _, err := svc.SchedulePayout(SchedulePayoutInput{
		ProducerID:   producer.ID,
		SourceRef:    "pay_contest_1",
		WorkflowType: constants.WorkflowTypeContest,
		GrossAmount:  models.NewMoneyFromDecimal(decimal.RequireFromString("200.00")),
	})
	if err != nil {
		t.Fatalf("SchedulePayout failed: %v", err)
	}
	if schedule.HoldReleaseAt.After(svc.now()) {
		t.Fatalf("expected contest payout released immediately, got %v", schedule.HoldReleaseAt)
	}
}

func TestSchedulePayoutValidation(t *testing.T) {
	svc, db := setupSchedulerTest(t)
	producer := createTestProducer(t, db, "producer5@example.com")

	if _, _, err := svc.SchedulePayout(SchedulePayoutInput{
		ProducerID:  producer.ID,
		SourceRef:   "  ",
		GrossAmount: models.NewMoneyFromDecimal(decimal.RequireFromString("10.00")),
	}); err != ErrSourceRefRequired {
		t.Fatalf("expected ErrSourceRefRequired, got %v", err)
	}

	if _, _, err := svc.SchedulePayout(SchedulePayoutInput{
		ProducerID:  9999,
		SourceRef:   "pay_missing_producer",
		GrossAmount: models.NewMoneyFromDecimal(decimal.RequireFromString("10.00")),
	}); err != ErrProducerNotFound {
		t.Fatalf("expected ErrProducerNotFound, got %v", err)
	}

	producer.Status = constants.ProducerStatusDisabled
	if err := db.Save(producer).Error; err != nil {
		t.Fatalf("save producer failed: %v", err)
	}
	if _, _, err := svc.SchedulePayout(SchedulePayoutInput{
		ProducerID:  producer.ID,
		SourceRef:   "pay_disabled_producer",
		GrossAmount: models.NewMoneyFromDecimal(decimal.RequireFromString("10.00")),
	}); err != ErrProducerDisabled {
		t.Fatalf("expected ErrProducerDisabled, got %v", err)
	}

	if _, _, err := svc.SchedulePayout(SchedulePayoutInput{
		ProducerID:  producer.ID,
		SourceRef:   "pay_zero_amount",
		GrossAmount: models.NewMoneyFromDecimal(decimal.Zero),
	}); err == nil {
		t.Fatalf("expected error for non-positive gross amount")
	}
}

func TestScheduleContestBatch(t *testing.T) {
	svc, db := setupSchedulerTest(t)
	first := createTestProducer(t, db, "winner1@example.com")
	second := createTestProducer(t, db, "winner2@example.com")

	winners := []ContestWinnerInput{
		{ProducerID: first.ID, SourceRef: "contest_prize_1", GrossAmount: models.NewMoneyFromDecimal(decimal.RequireFromString("500.00"))},
		{ProducerID: second.ID, SourceRef: "contest_prize_2", GrossAmount: models.NewMoneyFromDecimal(decimal.RequireFromString("250.00"))},
		{ProducerID: 9999, SourceRef: "contest_prize_3", GrossAmount: models.NewMoneyFromDecimal(decimal.RequireFromString("100.00"))},
		// 非现金奖项金额为零，直接跳过
		{ProducerID: first.ID, SourceRef: "contest_prize_4", GrossAmount: models.NewMoneyFromDecimal(decimal.Zero)},
	}
	result, err := svc.ScheduleContestBatch("contest-project-1", winners)
	if err != nil {
		t.Fatalf("ScheduleContestBatch failed: %v", err)
	}
	if len(result.Scheduled) != 2 {
		t.Fatalf("expected 2 scheduled, got %d", len(result.Scheduled))
	}
	if result.Skipped != 2 {
		t.Fatalf("expected 2 skipped, got %d", result.Skipped)
	}

	// 重复开奖：全部命中幂等
	again, err := svc.ScheduleContestBatch("contest-project-1", winners[:2])
	if err != nil {
		t.Fatalf("repeated ScheduleContestBatch failed: %v", err)
	}
	if len(again.Scheduled) != 0 || again.Skipped != 2 {
		t.Fatalf("expected all winners skipped on repeat, got %d scheduled %d skipped", len(again.Scheduled), again.Skipped)
	}
}

func TestCancelPayout(t *testing.T) {
	svc, db := setupSchedulerTest(t)
	producer := createTestProducer(t, db, "cancel@example.com")

	schedule, _, err := svc.SchedulePayout(SchedulePayoutInput{
		ProducerID:  producer.ID,
		SourceRef:   "pay_cancel_1",
		GrossAmount: models.NewMoneyFromDecimal(decimal.RequireFromString("30.00")),
	})
	if err != nil {
		t.Fatalf("SchedulePayout failed: %v", err)
	}

	cancelled, err := svc.CancelPayout(schedule.ID, "project refunded")
	if err != nil {
		t.Fatalf("CancelPayout failed: %v", err)
	}
	if cancelled.Status != constants.PayoutStatusCancelled {
		t.Fatalf("expected status cancelled, got %s", cancelled.Status)
	}
	if cancelled.CancelReason != "project refunded" {
		t.Fatalf("expected cancel reason recorded, got %q", cancelled.CancelReason)
	}

	var txn models.Transaction
	if err := db.Where("payout_id = ?", schedule.ID).First(&txn).Error; err != nil {
		t.Fatalf("load ledger row failed: %v", err)
	}
	if txn.Status != constants.TransactionStatusCancelled {
		t.Fatalf("expected ledger row cancelled, got %s", txn.Status)
	}

	// 已终态不可再取消
	if _, err := svc.CancelPayout(schedule.ID, "again"); err != ErrCancelNotAllowed {
		t.Fatalf("expected ErrCancelNotAllowed, got %v", err)
	}
}

func TestBypassHold(t *testing.T) {
	svc, db := setupSchedulerTest(t)
	producer := createTestProducer(t, db, "bypass@example.com")

	schedule, _, err := svc.SchedulePayout(SchedulePayoutInput{
		ProducerID:  producer.ID,
		SourceRef:   "pay_bypass_1",
		GrossAmount: models.NewMoneyFromDecimal(decimal.RequireFromString("80.00")),
	})
	if err != nil {
		t.Fatalf("SchedulePayout failed: %v", err)
	}

	if _, err := svc.BypassHold(schedule.ID, 1, ""); err != ErrBypassReasonRequired {
		t.Fatalf("expected ErrBypassReasonRequired, got %v", err)
	}

	bypassed, err := svc.BypassHold(schedule.ID, 1, "client dispute resolved")
	if err != nil {
		t.Fatalf("BypassHold failed: %v", err)
	}
	if !bypassed.HoldBypassed {
		t.Fatalf("expected hold_bypassed flag set")
	}
	if bypassed.BypassReason != "client dispute resolved" {
		t.Fatalf("expected bypass reason recorded, got %q", bypassed.BypassReason)
	}
	if bypassed.BypassAdminID == nil || *bypassed.BypassAdminID != 1 {
		t.Fatalf("expected bypass admin recorded")
	}
	if bypassed.HoldReleaseAt.After(schedule.HoldReleaseAt) {
		t.Fatalf("expected bypass to move release earlier")
	}
}
