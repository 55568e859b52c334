package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mixpitch-payouts/internal/config"
	"github.com/mixpitch-payouts/internal/constants"
	"github.com/mixpitch-payouts/internal/models"
	"github.com/mixpitch-payouts/internal/payment"
	"github.com/mixpitch-payouts/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type stubTransferClient struct {
	name  string
	calls int
	fail  func(input payment.TransferInput) error
}

func (c *stubTransferClient) Name() string {
	return c.name
}

func (c *stubTransferClient) CreateTransfer(_ context.Context, input payment.TransferInput) (*payment.TransferResult, error) {
	c.calls++
	if c.fail != nil {
		if err := c.fail(input); err != nil {
			return nil, err
		}
	}
	return &payment.TransferResult{TransferRef: "tr_" + input.PayoutNo, Status: "paid"}, nil
}

type stubCheckedClient struct {
	stubTransferClient
	checks   int
	checkErr error
}

func (c *stubCheckedClient) CheckAccountReady(_ context.Context, _ string) error {
	c.checks++
	return c.checkErr
}

type stubReversibleClient struct {
	stubTransferClient
	reversals int
}

func (c *stubReversibleClient) CreateReversal(_ context.Context, transferRef, _ string) (string, error) {
	c.reversals++
	return "rev_" + transferRef, nil
}

func setupProcessorTest(t *testing.T) (*PayoutProcessorService, *stubTransferClient, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:payout_processor_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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

	stub := &stubTransferClient{name: constants.PayoutProviderStripe}
	registry := payment.NewRegistry()
	registry.Register(stub)

	svc := NewPayoutProcessorService(
		repository.NewPayoutScheduleRepository(db),
		repository.NewTransactionRepository(db),
		registry,
		nil,
		config.ProcessingConfig{
			BatchSize:         10,
			MaxAttempts:       3,
			ErrorSampleLimit:  2,
			StaleAfterMinutes: 30,
		},
	)
	return svc, stub, db
}

func createReadySchedule(t *testing.T, db *gorm.DB, suffix string) *models.PayoutSchedule {
	t.Helper()
	schedule := &models.PayoutSchedule{
		PayoutNo:         "PO-" + suffix,
		ProducerID:       1,
		ProjectRef:       "project-" + suffix,
		SourceRef:        "pay_" + suffix,
		WorkflowType:     constants.WorkflowTypeStandard,
		Provider:         constants.PayoutProviderStripe,
		AccountRef:       "acct_test",
		Currency:         "USD",
		GrossAmount:      models.NewMoneyFromDecimal(decimal.RequireFromString("100.00")),
		CommissionRate:   decimal.RequireFromString("0.10"),
		CommissionAmount: models.NewMoneyFromDecimal(decimal.RequireFromString("10.00")),
		NetAmount:        models.NewMoneyFromDecimal(decimal.RequireFromString("90.00")),
		Status:           constants.PayoutStatusScheduled,
		HoldReleaseAt:    time.Now().Add(-time.Hour),
		Retryable:        true,
	}
	if err := db.Create(schedule).Error; err != nil {
		t.Fatalf("create schedule failed: %v", err)
	}
	return schedule
}

func reloadSchedule(t *testing.T, db *gorm.DB, id uint) *models.PayoutSchedule {
	t.Helper()
	var schedule models.PayoutSchedule
	if err := db.First(&schedule, id).Error; err != nil {
		t.Fatalf("reload schedule failed: %v", err)
	}
	return &schedule
}

func TestProcessScheduledPayoutsCompletesBatch(t *testing.T) {
	svc, stub, db := setupProcessorTest(t)
	first := createReadySchedule(t, db, "batch1")
	second := createReadySchedule(t, db, "batch2")

	result, err := svc.ProcessScheduledPayouts(context.Background())
	if err != nil {
		t.Fatalf("ProcessScheduledPayouts failed: %v", err)
	}
	if result.Processed != 2 || result.Failed != 0 {
		t.Fatalf("expected 2 processed 0 failed, got %d/%d", result.Processed, result.Failed)
	}
	if result.BatchID == "" {
		t.Fatalf("expected batch id")
	}
	if stub.calls != 2 {
		t.Fatalf("expected 2 transfer calls, got %d", stub.calls)
	}

	for _, id := range []uint{first.ID, second.ID} {
		got := reloadSchedule(t, db, id)
		if got.Status != constants.PayoutStatusCompleted {
			t.Fatalf("expected completed, got %s", got.Status)
		}
		if got.ProviderTransferRef == "" {
			t.Fatalf("expected provider transfer ref recorded")
		}
		if got.CompletedAt == nil {
			t.Fatalf("expected completed_at set")
		}
	}

	// 每笔成功打款落一条净额流水
	var txns []models.Transaction
	if err := db.Find(&txns).Error; err != nil {
		t.Fatalf("load transactions failed: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("expected 2 ledger rows, got %d", len(txns))
	}
	for _, txn := range txns {
		if txn.Type != constants.TransactionTypePayout {
			t.Fatalf("expected payout transaction, got %s", txn.Type)
		}
		if got := txn.Amount.String(); got != "90.00" {
			t.Fatalf("expected ledger amount 90.00, got %s", got)
		}
	}
}

func TestProcessScheduledPayoutsFailureIsolation(t *testing.T) {
	svc, stub, db := setupProcessorTest(t)
	good := createReadySchedule(t, db, "iso_good")
	bad := createReadySchedule(t, db, "iso_bad")

	stub.fail = func(input payment.TransferInput) error {
		if input.PayoutNo == bad.PayoutNo {
			return fmt.Errorf("%w: card_declined", payment.ErrProcessorDeclined)
		}
		return nil
	}

	result, err := svc.ProcessScheduledPayouts(context.Background())
	if err != nil {
		t.Fatalf("ProcessScheduledPayouts failed: %v", err)
	}
	if result.Processed != 1 || result.Failed != 1 {
		t.Fatalf("expected 1 processed 1 failed, got %d/%d", result.Processed, result.Failed)
	}
	if len(result.Errors) != 1 || result.Errors[0].PayoutNo != bad.PayoutNo {
		t.Fatalf("expected failure sample for %s, got %+v", bad.PayoutNo, result.Errors)
	}

	gotGood := reloadSchedule(t, db, good.ID)
	if gotGood.Status != constants.PayoutStatusCompleted {
		t.Fatalf("expected good payout completed, got %s", gotGood.Status)
	}

	gotBad := reloadSchedule(t, db, bad.ID)
	if gotBad.Status != constants.PayoutStatusFailed {
		t.Fatalf("expected bad payout failed, got %s", gotBad.Status)
	}
	if gotBad.FailureKind != constants.FailureKindDeclined {
		t.Fatalf("expected failure kind declined, got %s", gotBad.FailureKind)
	}
	if gotBad.Retryable {
		t.Fatalf("expected declined payout not retryable")
	}
	if gotBad.ProviderTransferRef != "" {
		t.Fatalf("failed payout must not carry a transfer ref")
	}
}

func TestProcessScheduledPayoutsAccountNotReady(t *testing.T) {
	svc, stub, db := setupProcessorTest(t)
	schedule := createReadySchedule(t, db, "not_ready")

	stub.fail = func(payment.TransferInput) error {
		return fmt.Errorf("%w: account_invalid", payment.ErrAccountNotReady)
	}

	if _, err := svc.ProcessScheduledPayouts(context.Background()); err != nil {
		t.Fatalf("ProcessScheduledPayouts failed: %v", err)
	}

	got := reloadSchedule(t, db, schedule.ID)
	if got.FailureKind != constants.FailureKindAccountNotReady {
		t.Fatalf("expected account_not_ready, got %s", got.FailureKind)
	}
	if got.Retryable {
		t.Fatalf("account_not_ready must wait for manual follow-up")
	}
}

// 账户就绪预检失败时不发起转账请求
func TestProcessScheduledPayoutsSkipsTransferWhenAccountNotReady(t *testing.T) {
	svc, _, db := setupProcessorTest(t)
	checked := &stubCheckedClient{
		stubTransferClient: stubTransferClient{name: constants.PayoutProviderStripe},
		checkErr:           fmt.Errorf("%w: payouts disabled", payment.ErrAccountNotReady),
	}
	svc.registry.Register(checked)
	schedule := createReadySchedule(t, db, "precheck")

	result, err := svc.ProcessScheduledPayouts(context.Background())
	if err != nil {
		t.Fatalf("ProcessScheduledPayouts failed: %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("expected 1 failed, got %d", result.Failed)
	}
	if checked.checks != 1 {
		t.Fatalf("expected 1 readiness check, got %d", checked.checks)
	}
	if checked.calls != 0 {
		t.Fatalf("expected no transfer request, got %d", checked.calls)
	}

	got := reloadSchedule(t, db, schedule.ID)
	if got.Status != constants.PayoutStatusFailed {
		t.Fatalf("expected status failed, got %s", got.Status)
	}
	if got.FailureKind != constants.FailureKindAccountNotReady {
		t.Fatalf("expected account_not_ready, got %s", got.FailureKind)
	}
	if got.Retryable {
		t.Fatalf("account_not_ready must wait for manual follow-up")
	}

	// 账户修复后人工重试走完整转账
	checked.checkErr = nil
	if _, err := svc.RetryFailedPayout(context.Background(), schedule.ID); err != nil {
		t.Fatalf("RetryFailedPayout failed: %v", err)
	}
	got = reloadSchedule(t, db, schedule.ID)
	if got.Status != constants.PayoutStatusCompleted {
		t.Fatalf("expected status completed after retry, got %s", got.Status)
	}
	if checked.calls != 1 {
		t.Fatalf("expected 1 transfer request after retry, got %d", checked.calls)
	}
}

func TestProcessRetryQueueRecoversTimeout(t *testing.T) {
	svc, stub, db := setupProcessorTest(t)
	schedule := createReadySchedule(t, db, "retry_timeout")

	stub.fail = func(payment.TransferInput) error {
		return fmt.Errorf("%w: gateway timeout", payment.ErrNetworkTimeout)
	}
	if _, err := svc.ProcessScheduledPayouts(context.Background()); err != nil {
		t.Fatalf("ProcessScheduledPayouts failed: %v", err)
	}

	got := reloadSchedule(t, db, schedule.ID)
	if got.Status != constants.PayoutStatusFailed || !got.Retryable {
		t.Fatalf("expected retryable failure, got status=%s retryable=%v", got.Status, got.Retryable)
	}
	if got.FailureKind != constants.FailureKindTimeout {
		t.Fatalf("expected timeout failure kind, got %s", got.FailureKind)
	}

	// 网络恢复后自动重试成功
	stub.fail = nil
	result, err := svc.ProcessRetryQueue(context.Background())
	if err != nil {
		t.Fatalf("ProcessRetryQueue failed: %v", err)
	}
	if result.Processed != 1 {
		t.Fatalf("expected 1 retried, got %d", result.Processed)
	}

	got = reloadSchedule(t, db, schedule.ID)
	if got.Status != constants.PayoutStatusCompleted {
		t.Fatalf("expected completed after retry, got %s", got.Status)
	}
	if got.AttemptCount != 2 {
		t.Fatalf("expected attempt count 2, got %d", got.AttemptCount)
	}
	if got.FailureKind != "" {
		t.Fatalf("expected failure kind cleared, got %s", got.FailureKind)
	}
}

func TestProcessRetryQueueRespectsMaxAttempts(t *testing.T) {
	svc, stub, db := setupProcessorTest(t)
	schedule := createReadySchedule(t, db, "retry_exhaust")

	stub.fail = func(payment.TransferInput) error {
		return fmt.Errorf("%w: gateway timeout", payment.ErrNetworkTimeout)
	}
	if _, err := svc.ProcessScheduledPayouts(context.Background()); err != nil {
		t.Fatalf("ProcessScheduledPayouts failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := svc.ProcessRetryQueue(context.Background()); err != nil {
			t.Fatalf("ProcessRetryQueue failed: %v", err)
		}
	}

	got := reloadSchedule(t, db, schedule.ID)
	if got.AttemptCount != 3 {
		t.Fatalf("expected attempts exhausted at 3, got %d", got.AttemptCount)
	}

	// 次数用尽后不再自动重试
	result, err := svc.ProcessRetryQueue(context.Background())
	if err != nil {
		t.Fatalf("ProcessRetryQueue failed: %v", err)
	}
	if result.Processed != 0 || result.Skipped != 0 {
		t.Fatalf("expected exhausted payout to be ignored, got %+v", result)
	}
	if stub.calls != 3 {
		t.Fatalf("expected exactly 3 transfer attempts, got %d", stub.calls)
	}
}

func TestRetryFailedPayoutManual(t *testing.T) {
	svc, stub, db := setupProcessorTest(t)
	schedule := createReadySchedule(t, db, "manual_retry")

	stub.fail = func(payment.TransferInput) error {
		return fmt.Errorf("%w: account_invalid", payment.ErrAccountNotReady)
	}
	if _, err := svc.ProcessScheduledPayouts(context.Background()); err != nil {
		t.Fatalf("ProcessScheduledPayouts failed: %v", err)
	}

	// 自动重试不碰人工跟进的失败
	result, err := svc.ProcessRetryQueue(context.Background())
	if err != nil {
		t.Fatalf("ProcessRetryQueue failed: %v", err)
	}
	if result.Processed != 0 {
		t.Fatalf("expected no automatic retry, got %d", result.Processed)
	}

	// 账户修复后管理员手工重试
	stub.fail = nil
	retried, err := svc.RetryFailedPayout(context.Background(), schedule.ID)
	if err != nil {
		t.Fatalf("RetryFailedPayout failed: %v", err)
	}
	if retried.Status != constants.PayoutStatusCompleted {
		t.Fatalf("expected completed after manual retry, got %s", retried.Status)
	}

	if _, err := svc.RetryFailedPayout(context.Background(), schedule.ID); err != ErrRetryNotAllowed {
		t.Fatalf("expected ErrRetryNotAllowed for completed payout, got %v", err)
	}
	if _, err := svc.RetryFailedPayout(context.Background(), 9999); err != ErrPayoutNotFound {
		t.Fatalf("expected ErrPayoutNotFound, got %v", err)
	}
}

func TestProcessScheduledPayoutsErrorSampleLimit(t *testing.T) {
	svc, stub, db := setupProcessorTest(t)
	for i := 0; i < 3; i++ {
		createReadySchedule(t, db, fmt.Sprintf("sample%d", i))
	}
	stub.fail = func(payment.TransferInput) error {
		return fmt.Errorf("%w: card_declined", payment.ErrProcessorDeclined)
	}

	result, err := svc.ProcessScheduledPayouts(context.Background())
	if err != nil {
		t.Fatalf("ProcessScheduledPayouts failed: %v", err)
	}
	if result.TotalErrors != 3 {
		t.Fatalf("expected 3 total errors, got %d", result.TotalErrors)
	}
	if len(result.Errors) != 2 {
		t.Fatalf("expected sample capped at 2, got %d", len(result.Errors))
	}
	for _, sample := range result.Errors {
		if !strings.Contains(sample.Error, "card_declined") {
			t.Fatalf("expected declined sample, got %q", sample.Error)
		}
	}
}

func TestReclaimStaleProcessing(t *testing.T) {
	svc, _, db := setupProcessorTest(t)
	stale := createReadySchedule(t, db, "stale")
	fresh := createReadySchedule(t, db, "fresh")

	staleAt := time.Now().Add(-2 * time.Hour)
	freshAt := time.Now().Add(-time.Minute)
	db.Model(&models.PayoutSchedule{}).Where("id = ?", stale.ID).
		Updates(map[string]interface{}{"status": constants.PayoutStatusProcessing, "processing_at": staleAt})
	db.Model(&models.PayoutSchedule{}).Where("id = ?", fresh.ID).
		Updates(map[string]interface{}{"status": constants.PayoutStatusProcessing, "processing_at": freshAt})

	reclaimed, err := svc.ReclaimStaleProcessing(context.Background())
	if err != nil {
		t.Fatalf("ReclaimStaleProcessing failed: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected 1 reclaimed, got %d", reclaimed)
	}

	gotStale := reloadSchedule(t, db, stale.ID)
	if gotStale.Status != constants.PayoutStatusFailed {
		t.Fatalf("expected stale payout failed, got %s", gotStale.Status)
	}
	if gotStale.FailureKind != constants.FailureKindStale {
		t.Fatalf("expected stale failure kind, got %s", gotStale.FailureKind)
	}
	if !gotStale.Retryable {
		t.Fatalf("expected stale payout retryable")
	}

	gotFresh := reloadSchedule(t, db, fresh.ID)
	if gotFresh.Status != constants.PayoutStatusProcessing {
		t.Fatalf("expected fresh payout untouched, got %s", gotFresh.Status)
	}
}

func TestReversePayout(t *testing.T) {
	svc, _, db := setupProcessorTest(t)
	schedule := createReadySchedule(t, db, "reverse")

	// 未完成的打款不能撤回
	if _, err := svc.ReversePayout(context.Background(), schedule.ID, "dispute"); err != ErrReverseNotAllowed {
		t.Fatalf("expected ErrReverseNotAllowed, got %v", err)
	}

	if _, err := svc.ProcessScheduledPayouts(context.Background()); err != nil {
		t.Fatalf("ProcessScheduledPayouts failed: %v", err)
	}

	// 默认注册的客户端不支持撤回
	if _, err := svc.ReversePayout(context.Background(), schedule.ID, "dispute"); err != ErrReverseNotSupported {
		t.Fatalf("expected ErrReverseNotSupported, got %v", err)
	}

	reversible := &stubReversibleClient{stubTransferClient: stubTransferClient{name: constants.PayoutProviderStripe}}
	svc.registry.Register(reversible)

	txn, err := svc.ReversePayout(context.Background(), schedule.ID, "dispute")
	if err != nil {
		t.Fatalf("ReversePayout failed: %v", err)
	}
	if reversible.reversals != 1 {
		t.Fatalf("expected 1 reversal call, got %d", reversible.reversals)
	}
	if txn.Type != constants.TransactionTypeReversal {
		t.Fatalf("expected reversal transaction, got %s", txn.Type)
	}
	if txn.ProviderRef != "rev_tr_"+schedule.PayoutNo {
		t.Fatalf("unexpected reversal ref: %s", txn.ProviderRef)
	}

	// 打款本身保持完成态，撤回只追加流水
	got := reloadSchedule(t, db, schedule.ID)
	if got.Status != constants.PayoutStatusCompleted {
		t.Fatalf("expected schedule still completed, got %s", got.Status)
	}
}

func TestProcessScheduledPayoutsUnknownProvider(t *testing.T) {
	svc, _, db := setupProcessorTest(t)
	schedule := createReadySchedule(t, db, "unknown_provider")
	db.Model(&models.PayoutSchedule{}).Where("id = ?", schedule.ID).Update("provider", "wise")

	result, err := svc.ProcessScheduledPayouts(context.Background())
	if err != nil {
		t.Fatalf("ProcessScheduledPayouts failed: %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("expected 1 failed, got %d", result.Failed)
	}

	got := reloadSchedule(t, db, schedule.ID)
	if got.Status != constants.PayoutStatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.Retryable {
		t.Fatalf("unknown provider failure must not auto-retry")
	}
}
