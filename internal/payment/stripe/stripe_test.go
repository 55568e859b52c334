package stripe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mixpitch-payouts/internal/payment"
)

func TestNewNormalizesConfig(t *testing.T) {
	client, err := New(Config{SecretKey: " sk_test_123 "})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if client.cfg.SecretKey != "sk_test_123" {
		t.Fatalf("unexpected secret key: %s", client.cfg.SecretKey)
	}
	if client.cfg.APIBaseURL != defaultAPIBaseURL {
		t.Fatalf("unexpected default api base url: %s", client.cfg.APIBaseURL)
	}

	if _, err := New(Config{}); !errors.Is(err, payment.ErrConfigInvalid) {
		t.Fatalf("expected config invalid, got %v", err)
	}
}

func TestCreateTransferSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transfers" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Idempotency-Key"); got != "PO-1001" {
			t.Fatalf("unexpected idempotency key: %s", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form failed: %v", err)
		}
		if got := r.PostForm.Get("amount"); got != "9000" {
			t.Fatalf("unexpected minor amount: %s", got)
		}
		if got := r.PostForm.Get("destination"); got != "acct_123" {
			t.Fatalf("unexpected destination: %s", got)
		}
		if got := r.PostForm.Get("currency"); got != "usd" {
			t.Fatalf("unexpected currency: %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"tr_test_1","object":"transfer"}`))
	}))
	defer server.Close()

	client, err := New(Config{SecretKey: "sk_test", APIBaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	result, err := client.CreateTransfer(context.Background(), payment.TransferInput{
		PayoutNo:   "PO-1001",
		AccountRef: "acct_123",
		Amount:     "90.00",
		Currency:   "USD",
	})
	if err != nil {
		t.Fatalf("create transfer failed: %v", err)
	}
	if result.TransferRef != "tr_test_1" {
		t.Fatalf("unexpected transfer ref: %s", result.TransferRef)
	}
}

func TestCreateTransferAccountErrors(t *testing.T) {
	client, err := New(Config{SecretKey: "sk_test"})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}

	// 缺少账户直接判定账户未就绪，不发请求
	_, err = client.CreateTransfer(context.Background(), payment.TransferInput{
		PayoutNo: "PO-1",
		Amount:   "10.00",
		Currency: "USD",
	})
	if !errors.Is(err, payment.ErrAccountNotReady) {
		t.Fatalf("expected account not ready, got %v", err)
	}
}

func TestCreateTransferDeclined(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"balance_insufficient","message":"Insufficient funds"}}`))
	}))
	defer server.Close()

	client, err := New(Config{SecretKey: "sk_test", APIBaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	_, err = client.CreateTransfer(context.Background(), payment.TransferInput{
		PayoutNo:   "PO-1",
		AccountRef: "acct_123",
		Amount:     "10.00",
		Currency:   "USD",
	})
	if !errors.Is(err, payment.ErrProcessorDeclined) {
		t.Fatalf("expected declined, got %v", err)
	}
}

func TestCreateTransferAccountInvalidCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"account_invalid","message":"No such destination"}}`))
	}))
	defer server.Close()

	client, err := New(Config{SecretKey: "sk_test", APIBaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	_, err = client.CreateTransfer(context.Background(), payment.TransferInput{
		PayoutNo:   "PO-1",
		AccountRef: "acct_gone",
		Amount:     "10.00",
		Currency:   "USD",
	})
	if !errors.Is(err, payment.ErrAccountNotReady) {
		t.Fatalf("expected account not ready, got %v", err)
	}
}

func TestCreateReversal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transfers/tr_test_1/reversals" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Idempotency-Key"); got != "rev_PO-1001" {
			t.Fatalf("unexpected idempotency key: %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"trr_test_1","object":"transfer_reversal"}`))
	}))
	defer server.Close()

	client, err := New(Config{SecretKey: "sk_test", APIBaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	reversalRef, err := client.CreateReversal(context.Background(), "tr_test_1", "PO-1001")
	if err != nil {
		t.Fatalf("CreateReversal failed: %v", err)
	}
	if reversalRef != "trr_test_1" {
		t.Fatalf("unexpected reversal ref: %s", reversalRef)
	}

	if _, err := client.CreateReversal(context.Background(), " ", "PO-1001"); !errors.Is(err, payment.ErrConfigInvalid) {
		t.Fatalf("expected config invalid for empty transfer ref, got %v", err)
	}
}

func TestCheckAccountReady(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/v1/accounts/acct_ok" {
			_, _ = w.Write([]byte(`{"id":"acct_ok","payouts_enabled":true}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"acct_pending","payouts_enabled":false}`))
	}))
	defer server.Close()

	client, err := New(Config{SecretKey: "sk_test", APIBaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if err := client.CheckAccountReady(context.Background(), "acct_ok"); err != nil {
		t.Fatalf("expected ready account, got %v", err)
	}
	err = client.CheckAccountReady(context.Background(), "acct_pending")
	if !errors.Is(err, payment.ErrAccountNotReady) {
		t.Fatalf("expected account not ready, got %v", err)
	}
}

func TestToMinorAmount(t *testing.T) {
	minor, err := toMinorAmount("90.00", "USD")
	if err != nil {
		t.Fatalf("usd amount failed: %v", err)
	}
	if minor != 9000 {
		t.Fatalf("usd minor want 9000 got %d", minor)
	}

	minor, err = toMinorAmount("500", "JPY")
	if err != nil {
		t.Fatalf("jpy amount failed: %v", err)
	}
	if minor != 500 {
		t.Fatalf("jpy minor want 500 got %d", minor)
	}

	if _, err := toMinorAmount("0", "USD"); err == nil {
		t.Fatalf("expected zero amount rejected")
	}
	if _, err := toMinorAmount("1.005", "USD"); err == nil {
		t.Fatalf("expected sub-minor precision rejected")
	}
}
