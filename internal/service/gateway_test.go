package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/paytrack-next/internal/payment/phonepe"

	"github.com/shopspring/decimal"
)

func newTestRetryingGateway(next PaymentGateway, policy GatewayPolicy) (*RetryingGateway, *[]time.Duration) {
	gateway := NewRetryingGateway(next, policy)
	var sleeps []time.Duration
	gateway.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return gateway, &sleeps
}

func TestRetryingGatewayRetriesQueryOnUnavailable(t *testing.T) {
	fake := &fakeGateway{}
	calls := 0
	fake.query = func(context.Context, string) (GatewayStatus, error) {
		calls++
		if calls < 3 {
			return GatewayStatus{}, fmt.Errorf("%w: timeout", ErrGatewayUnavailable)
		}
		return GatewayStatus{RawState: "COMPLETED"}, nil
	}
	gateway, sleeps := newTestRetryingGateway(fake, GatewayPolicy{QueryMaxRetries: 5, Backoff: 100 * time.Millisecond})

	status, err := gateway.QueryStatus(context.Background(), "txn-1")
	if err != nil {
		t.Fatalf("query should succeed on third attempt: %v", err)
	}
	if status.RawState != "COMPLETED" {
		t.Fatalf("unexpected state: %s", status.RawState)
	}
	if calls != 3 {
		t.Fatalf("retries must be capped at 2, got %d calls", calls)
	}
	if len(*sleeps) != 2 || (*sleeps)[0] != 100*time.Millisecond || (*sleeps)[1] != 200*time.Millisecond {
		t.Fatalf("unexpected backoff: %v", *sleeps)
	}
}

func TestRetryingGatewayGivesUpAfterRetries(t *testing.T) {
	fake := &fakeGateway{}
	fake.query = func(context.Context, string) (GatewayStatus, error) {
		return GatewayStatus{}, fmt.Errorf("%w: down", ErrGatewayUnavailable)
	}
	gateway, _ := newTestRetryingGateway(fake, DefaultGatewayPolicy())
	if _, err := gateway.QueryStatus(context.Background(), "txn-1"); !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected gateway unavailable, got %v", err)
	}
	if fake.queryCalls != 3 {
		t.Fatalf("expected 3 calls, got %d", fake.queryCalls)
	}
}

func TestRetryingGatewayDoesNotRetryNotFound(t *testing.T) {
	fake := &fakeGateway{}
	fake.query = func(context.Context, string) (GatewayStatus, error) {
		return GatewayStatus{}, ErrGatewayNotFound
	}
	gateway, _ := newTestRetryingGateway(fake, DefaultGatewayPolicy())
	if _, err := gateway.QueryStatus(context.Background(), "txn-1"); !errors.Is(err, ErrGatewayNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if fake.queryCalls != 1 {
		t.Fatalf("not found must not be retried, got %d calls", fake.queryCalls)
	}
}

func TestRetryingGatewayDoesNotRetryInitiateByDefault(t *testing.T) {
	fake := &fakeGateway{}
	fake.initiate = func(context.Context, string, decimal.Decimal, string) (GatewayCheckout, error) {
		return GatewayCheckout{}, fmt.Errorf("%w: 503", ErrGatewayUnavailable)
	}
	gateway, _ := newTestRetryingGateway(fake, DefaultGatewayPolicy())
	if _, err := gateway.Initiate(context.Background(), "txn-1", decimal.NewFromInt(10), "https://r"); !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected gateway unavailable, got %v", err)
	}
	if len(fake.initiateCalls) != 1 {
		t.Fatalf("initiate must be called once, got %d", len(fake.initiateCalls))
	}
}

func TestRetryingGatewayAppliesTimeout(t *testing.T) {
	fake := &fakeGateway{}
	fake.query = func(ctx context.Context, _ string) (GatewayStatus, error) {
		deadline, ok := ctx.Deadline()
		if !ok {
			return GatewayStatus{}, errors.New("missing deadline")
		}
		if time.Until(deadline) > 8*time.Second {
			return GatewayStatus{}, errors.New("deadline too far")
		}
		return GatewayStatus{RawState: "PENDING"}, nil
	}
	gateway, _ := newTestRetryingGateway(fake, GatewayPolicy{})
	if _, err := gateway.QueryStatus(context.Background(), "txn-1"); err != nil {
		t.Fatalf("query failed: %v", err)
	}
}

type fakePhonePeClient struct {
	payInput  phonepe.PayInput
	payResult *phonepe.PayResult
	payErr    error
	status    *phonepe.OrderStatus
	statusErr error
}

func (c *fakePhonePeClient) Pay(_ context.Context, input phonepe.PayInput) (*phonepe.PayResult, error) {
	c.payInput = input
	return c.payResult, c.payErr
}

func (c *fakePhonePeClient) OrderStatus(context.Context, string) (*phonepe.OrderStatus, error) {
	return c.status, c.statusErr
}

func TestPhonePeGatewayInitiateConvertsAmount(t *testing.T) {
	client := &fakePhonePeClient{payResult: &phonepe.PayResult{OrderID: "OMO1", State: "PENDING", RedirectURL: "https://mercury/checkout"}}
	gateway := &PhonePeGateway{client: client}

	checkout, err := gateway.Initiate(context.Background(), "txn-1", decimal.RequireFromString("199.50"), "https://r")
	if err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	if client.payInput.AmountMinor != 19950 || client.payInput.MerchantOrderID != "txn-1" {
		t.Fatalf("unexpected pay input: %+v", client.payInput)
	}
	if checkout.GatewayOrderID != "OMO1" || checkout.CheckoutURL != "https://mercury/checkout" {
		t.Fatalf("unexpected checkout: %+v", checkout)
	}

	if _, err := gateway.Initiate(context.Background(), "txn-2", decimal.RequireFromString("1.005"), "https://r"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestPhonePeGatewayMapsErrors(t *testing.T) {
	client := &fakePhonePeClient{statusErr: fmt.Errorf("%w: 404", phonepe.ErrOrderNotFound)}
	gateway := &PhonePeGateway{client: client}
	if _, err := gateway.QueryStatus(context.Background(), "txn-1"); !errors.Is(err, ErrGatewayNotFound) {
		t.Fatalf("expected gateway not found, got %v", err)
	}

	client.statusErr = fmt.Errorf("%w: 502", phonepe.ErrRequestFailed)
	if _, err := gateway.QueryStatus(context.Background(), "txn-1"); !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected gateway unavailable, got %v", err)
	}

	client.statusErr = nil
	client.status = &phonepe.OrderStatus{OrderID: "OMO1", State: "COMPLETED", AmountMinor: 19950}
	status, err := gateway.QueryStatus(context.Background(), "txn-1")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	amount := status.Amount()
	if amount == nil || amount.StringFixed(2) != "199.50" {
		t.Fatalf("unexpected amount: %v", amount)
	}
}
