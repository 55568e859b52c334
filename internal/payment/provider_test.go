package payment

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mixpitch-payouts/internal/constants"
)

type stubClient struct {
	name string
}

func (s *stubClient) Name() string { return s.name }

func (s *stubClient) CreateTransfer(ctx context.Context, input TransferInput) (*TransferResult, error) {
	return &TransferResult{TransferRef: "stub"}, nil
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubClient{name: "Stripe"})
	registry.Register(&stubClient{name: "paypal"})

	client, err := registry.Get("stripe")
	if err != nil {
		t.Fatalf("get stripe failed: %v", err)
	}
	if client == nil {
		t.Fatalf("expected stripe client")
	}

	if _, err := registry.Get("wise"); !errors.Is(err, ErrProviderUnknown) {
		t.Fatalf("expected provider unknown, got %v", err)
	}

	names := registry.Names()
	if len(names) != 2 || names[0] != "paypal" || names[1] != "stripe" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err       error
		kind      string
		retryable bool
	}{
		{fmt.Errorf("wrap: %w", ErrNetworkTimeout), constants.FailureKindTimeout, true},
		{fmt.Errorf("wrap: %w", ErrProcessorDeclined), constants.FailureKindDeclined, false},
		{fmt.Errorf("wrap: %w", ErrAccountNotReady), constants.FailureKindAccountNotReady, false},
		{errors.New("unmapped"), constants.FailureKindDeclined, false},
	}
	for _, tc := range cases {
		kind, retryable := Classify(tc.err)
		if kind != tc.kind || retryable != tc.retryable {
			t.Fatalf("classify %v: want (%s,%v) got (%s,%v)", tc.err, tc.kind, tc.retryable, kind, retryable)
		}
	}
}
