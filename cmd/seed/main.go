package main

import (
	"fmt"
	"time"

	"github.com/mixpitch-payouts/internal/config"
	"github.com/mixpitch-payouts/internal/constants"
	"github.com/mixpitch-payouts/internal/logger"
	"github.com/mixpitch-payouts/internal/models"

	"github.com/shopspring/decimal"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 添加演示制作人
	customRate := decimal.NewFromFloat(0.0825)
	producers := []models.Producer{
		{
			Email:           "marcus@example.com",
			DisplayName:     "Marcus Beats",
			Status:          constants.ProducerStatusActive,
			PayoutProvider:  constants.PayoutProviderStripe,
			StripeAccountID: "acct_demo_marcus",
		},
		{
			Email:          "yuki@example.com",
			DisplayName:    "Yuki Sound",
			Status:         constants.ProducerStatusActive,
			CommissionRate: &customRate,
			PayoutProvider: constants.PayoutProviderPayPal,
			PayPalEmail:    "yuki.payouts@example.com",
		},
		{
			Email:           "dmitri@example.com",
			DisplayName:     "Dmitri Mixes",
			Status:          constants.ProducerStatusDisabled,
			PayoutProvider:  constants.PayoutProviderStripe,
			StripeAccountID: "acct_demo_dmitri",
		},
	}

	producerIDs := map[string]uint{}
	for _, producer := range producers {
		var existing models.Producer
		if err := models.DB.Where("email = ?", producer.Email).First(&existing).Error; err != nil {
			if err := models.DB.Create(&producer).Error; err != nil {
				stdLog.Printf("Failed to create producer %s: %v", producer.Email, err)
				continue
			}
			stdLog.Printf("Created producer: %s", producer.Email)
			producerIDs[producer.Email] = producer.ID
			continue
		}
		stdLog.Printf("Producer already exists: %s", existing.Email)
		producerIDs[existing.Email] = existing.ID
	}

	// 添加演示打款计划（一条待放款、一条已完成）
	now := time.Now().UTC()
	rate := decimal.NewFromFloat(cfg.Payout.DefaultCommissionRate)
	schedules := []models.PayoutSchedule{
		demoSchedule(producerIDs["marcus@example.com"], "PO-SEED-0001", "proj_demo_aurora", "inv_seed_0001",
			constants.WorkflowTypeStandard, "acct_demo_marcus", "", constants.PayoutStatusScheduled,
			decimal.NewFromFloat(250.00), rate, now.Add(72*time.Hour)),
		demoSchedule(producerIDs["yuki@example.com"], "PO-SEED-0002", "proj_demo_contest", "inv_seed_0002",
			constants.WorkflowTypeContest, "yuki.payouts@example.com", "tr_seed_0002", constants.PayoutStatusCompleted,
			decimal.NewFromFloat(500.00), customRate, now.Add(-24*time.Hour)),
	}
	for i := range schedules {
		schedule := &schedules[i]
		if schedule.ProducerID == 0 {
			continue
		}
		var existing models.PayoutSchedule
		if err := models.DB.Where("source_ref = ?", schedule.SourceRef).First(&existing).Error; err != nil {
			if schedule.Status == constants.PayoutStatusCompleted {
				completedAt := now.Add(-2 * time.Hour)
				schedule.CompletedAt = &completedAt
				schedule.AttemptCount = 1
			}
			if err := models.DB.Create(schedule).Error; err != nil {
				stdLog.Printf("Failed to create payout %s: %v", schedule.PayoutNo, err)
				continue
			}
			stdLog.Printf("Created payout: %s (%s)", schedule.PayoutNo, schedule.Status)

			txnStatus := constants.TransactionStatusPending
			if schedule.Status == constants.PayoutStatusCompleted {
				txnStatus = constants.TransactionStatusCompleted
			}
			txn := models.Transaction{
				ProducerID:  schedule.ProducerID,
				PayoutID:    schedule.ID,
				Type:        constants.TransactionTypePayout,
				Status:      txnStatus,
				Currency:    schedule.Currency,
				Amount:      schedule.NetAmount,
				ProviderRef: schedule.ProviderTransferRef,
				Description: fmt.Sprintf("Payout %s", schedule.PayoutNo),
			}
			if err := models.DB.Create(&txn).Error; err != nil {
				stdLog.Printf("Failed to create transaction for %s: %v", schedule.PayoutNo, err)
			}
			continue
		}
		stdLog.Printf("Payout already exists: %s", existing.PayoutNo)
	}

	stdLog.Printf("Seed finished")
}

func demoSchedule(producerID uint, payoutNo, projectRef, sourceRef, workflow, accountRef, transferRef, status string,
	gross, rate decimal.Decimal, releaseAt time.Time) models.PayoutSchedule {
	commission := gross.Mul(rate).Round(2)
	net := gross.Sub(commission)
	provider := constants.PayoutProviderStripe
	if workflow == constants.WorkflowTypeContest {
		provider = constants.PayoutProviderPayPal
	}
	schedule := models.PayoutSchedule{
		PayoutNo:            payoutNo,
		ProducerID:          producerID,
		ProjectRef:          projectRef,
		SourceRef:           sourceRef,
		WorkflowType:        workflow,
		Provider:            provider,
		AccountRef:          accountRef,
		Currency:            "USD",
		GrossAmount:         models.NewMoneyFromDecimal(gross),
		CommissionRate:      rate,
		CommissionAmount:    models.NewMoneyFromDecimal(commission),
		NetAmount:           models.NewMoneyFromDecimal(net),
		Status:              status,
		HoldReleaseAt:       releaseAt,
		ProviderTransferRef: transferRef,
		Retryable:           true,
	}
	return schedule
}
