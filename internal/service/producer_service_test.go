package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mixpitch-payouts/internal/constants"
	"github.com/mixpitch-payouts/internal/models"
	"github.com/mixpitch-payouts/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupProducerTest(t *testing.T) (*ProducerService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:producer_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Producer{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewProducerService(repository.NewProducerRepository(db)), db
}

func TestCreateProducerNormalizesInput(t *testing.T) {
	svc, _ := setupProducerTest(t)

	rate := decimal.RequireFromString("0.0825")
	producer, err := svc.CreateProducer(ProducerInput{
		Email:           "  Marcus@Example.COM ",
		DisplayName:     "  Marcus Beats ",
		Status:          "ACTIVE",
		CommissionRate:  &rate,
		PayoutProvider:  "PayPal",
		PayPalEmail:     "Marcus.Payouts@Example.com",
		StripeAccountID: " acct_123 ",
	})
	if err != nil {
		t.Fatalf("create producer failed: %v", err)
	}
	if producer.Email != "marcus@example.com" {
		t.Fatalf("email should be lowercased, got %s", producer.Email)
	}
	if producer.DisplayName != "Marcus Beats" {
		t.Fatalf("display name should be trimmed, got %q", producer.DisplayName)
	}
	if producer.Status != constants.ProducerStatusActive {
		t.Fatalf("status want active got %s", producer.Status)
	}
	if producer.PayoutProvider != constants.PayoutProviderPayPal {
		t.Fatalf("provider want paypal got %s", producer.PayoutProvider)
	}
	if producer.PayPalEmail != "marcus.payouts@example.com" {
		t.Fatalf("paypal email should be lowercased, got %s", producer.PayPalEmail)
	}
	if producer.CommissionRate == nil || !producer.CommissionRate.Equal(rate) {
		t.Fatalf("commission rate mismatch: %v", producer.CommissionRate)
	}
}

func TestCreateProducerValidation(t *testing.T) {
	svc, _ := setupProducerTest(t)

	if _, err := svc.CreateProducer(ProducerInput{Email: "   "}); !errors.Is(err, ErrProducerEmailRequired) {
		t.Fatalf("blank email want ErrProducerEmailRequired got %v", err)
	}

	if _, err := svc.CreateProducer(ProducerInput{Email: "dup@example.com"}); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if _, err := svc.CreateProducer(ProducerInput{Email: "DUP@example.com"}); !errors.Is(err, ErrProducerEmailTaken) {
		t.Fatalf("duplicate email want ErrProducerEmailTaken got %v", err)
	}

	badRate := decimal.RequireFromString("1.5")
	if _, err := svc.CreateProducer(ProducerInput{Email: "rate@example.com", CommissionRate: &badRate}); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("rate above 1 want ErrInvalidRate got %v", err)
	}
}

func TestUpdateProducerPartial(t *testing.T) {
	svc, _ := setupProducerTest(t)

	created, err := svc.CreateProducer(ProducerInput{
		Email:           "partial@example.com",
		DisplayName:     "Before",
		StripeAccountID: "acct_before",
	})
	if err != nil {
		t.Fatalf("create producer failed: %v", err)
	}

	updated, err := svc.UpdateProducer(created.ID, ProducerInput{
		Status: "disabled",
	})
	if err != nil {
		t.Fatalf("update producer failed: %v", err)
	}
	if updated.Status != constants.ProducerStatusDisabled {
		t.Fatalf("status want disabled got %s", updated.Status)
	}
	if updated.DisplayName != "Before" {
		t.Fatalf("display name should be untouched, got %s", updated.DisplayName)
	}
	if updated.StripeAccountID != "acct_before" {
		t.Fatalf("stripe account should be untouched, got %s", updated.StripeAccountID)
	}

	if _, err := svc.UpdateProducer(9999, ProducerInput{Status: "disabled"}); !errors.Is(err, ErrProducerNotFound) {
		t.Fatalf("missing producer want ErrProducerNotFound got %v", err)
	}
}

func TestListProducersFilters(t *testing.T) {
	svc, _ := setupProducerTest(t)

	seed := []ProducerInput{
		{Email: "alpha@example.com", DisplayName: "Alpha Audio"},
		{Email: "beta@example.com", DisplayName: "Beta Beats", Status: "disabled"},
		{Email: "gamma@example.com", DisplayName: "Gamma Grooves", PayoutProvider: "paypal", PayPalEmail: "gamma@pp.example.com"},
	}
	for _, input := range seed {
		if _, err := svc.CreateProducer(input); err != nil {
			t.Fatalf("seed producer %s failed: %v", input.Email, err)
		}
	}

	rows, total, err := svc.ListProducers(repository.ProducerListFilter{Page: 1, PageSize: 10, Status: constants.ProducerStatusDisabled})
	if err != nil {
		t.Fatalf("list by status failed: %v", err)
	}
	if total != 1 || len(rows) != 1 || rows[0].Email != "beta@example.com" {
		t.Fatalf("status filter want beta got total=%d rows=%+v", total, rows)
	}

	rows, total, err = svc.ListProducers(repository.ProducerListFilter{Page: 1, PageSize: 10, Keyword: "gamma"})
	if err != nil {
		t.Fatalf("list by keyword failed: %v", err)
	}
	if total != 1 || rows[0].Email != "gamma@example.com" {
		t.Fatalf("keyword filter want gamma got total=%d", total)
	}

	rows, total, err = svc.ListProducers(repository.ProducerListFilter{Page: 1, PageSize: 10, Provider: constants.PayoutProviderPayPal})
	if err != nil {
		t.Fatalf("list by provider failed: %v", err)
	}
	if total != 1 || rows[0].Email != "gamma@example.com" {
		t.Fatalf("provider filter want gamma got total=%d", total)
	}
}
