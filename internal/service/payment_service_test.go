package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/paytrack-next/internal/constants"
	"github.com/paytrack-next/internal/models"
	"github.com/paytrack-next/internal/payment/phonepe"
	"github.com/paytrack-next/internal/repository"

	"github.com/shopspring/decimal"
)

func webhookBody(txn, state string, amount int64) []byte {
	return []byte(fmt.Sprintf(`{"type":"checkout.order.completed","payload":{"merchantOrderId":%q,"orderId":"OMO-%s","state":%q,"amount":%d}}`, txn, txn, state, amount))
}

func TestCreatePaymentAssignsTransactionIDBeforeInitiate(t *testing.T) {
	env := setupServiceTest(t, ReconcilerOptions{})
	store := env.createStore(t, "https://shop.example.com/")
	order := env.createOrder(t, "PT-SVC-001", 5, &store.ID)

	var seenRedirect string
	env.gateway.initiate = func(_ context.Context, txn string, amount decimal.Decimal, redirectURL string) (GatewayCheckout, error) {
		persisted, err := env.paymentRepo.GetByTransactionID(txn)
		if err != nil || persisted == nil {
			return GatewayCheckout{}, errors.New("payment must be persisted before initiate")
		}
		if persisted.Status != constants.PaymentStatusPending {
			return GatewayCheckout{}, errors.New("payment must be pending before initiate")
		}
		if !amount.Equal(decimal.RequireFromString("199.50")) {
			return GatewayCheckout{}, errors.New("unexpected amount")
		}
		seenRedirect = redirectURL
		return GatewayCheckout{GatewayOrderID: "OMO-1", CheckoutURL: "https://mercury.example.com/pay/1", State: "PENDING"}, nil
	}

	result, err := env.svc.CreatePayment(CreatePaymentInput{
		UserID:  5,
		OrderID: order.ID,
		StoreID: &store.ID,
		Amount:  decimal.RequireFromString("199.50"),
		Context: context.Background(),
	})
	if err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	payment := result.Payment
	if payment.TransactionID == "" || payment.TransactionID == constants.PlaceholderTransactionID {
		t.Fatalf("transaction id not assigned: %q", payment.TransactionID)
	}
	if len(env.gateway.initiateCalls) != 1 || env.gateway.initiateCalls[0] != payment.TransactionID {
		t.Fatalf("gateway must receive the local transaction id: %v", env.gateway.initiateCalls)
	}
	wantRedirect := fmt.Sprintf("https://shop.example.com/checkout/payment-success?transaction_id=%s&order_id=%d", payment.TransactionID, order.ID)
	if seenRedirect != wantRedirect || payment.RedirectURL != wantRedirect {
		t.Fatalf("unexpected redirect: %s", seenRedirect)
	}

	stored := env.reload(t, payment.TransactionID)
	if stored.PaymentURL != "https://mercury.example.com/pay/1" || stored.GatewayOrderID != "OMO-1" {
		t.Fatalf("checkout not persisted: %+v", stored)
	}
	if stored.Status != constants.PaymentStatusPending || stored.Platform != constants.PlatformWeb {
		t.Fatalf("unexpected stored payment: %+v", stored)
	}
	if len(env.scheduler.polls) != 1 || env.scheduler.polls[0].Attempt != 1 || env.scheduler.polls[0].Delay != time.Minute {
		t.Fatalf("status poll not scheduled: %+v", env.scheduler.polls)
	}
}

func TestCreatePaymentGatewayFailureKeepsPending(t *testing.T) {
	env := setupServiceTest(t, ReconcilerOptions{})
	order := env.createOrder(t, "PT-SVC-002", 5, nil)
	env.gateway.initiate = func(context.Context, string, decimal.Decimal, string) (GatewayCheckout, error) {
		return GatewayCheckout{}, fmt.Errorf("%w: timeout", ErrGatewayUnavailable)
	}

	result, err := env.svc.CreatePayment(CreatePaymentInput{
		UserID:  5,
		OrderID: order.ID,
		Amount:  decimal.RequireFromString("199.50"),
	})
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected gateway unavailable, got %v", err)
	}
	if result == nil || result.Payment == nil {
		t.Fatalf("result should carry the pending payment")
	}
	stored := env.reload(t, result.Payment.TransactionID)
	if stored.Status != constants.PaymentStatusPending || stored.PaymentURL != "" {
		t.Fatalf("failed initiate must leave pending without url: %+v", stored)
	}
	if env.notificationCount() != 0 {
		t.Fatalf("failed initiate must not notify")
	}
}

func TestCreatePaymentInfersMobileAndSkipsGatewayForCOD(t *testing.T) {
	env := setupServiceTest(t, ReconcilerOptions{})
	order := env.createOrder(t, "PT-SVC-003", 5, nil)

	result, err := env.svc.CreatePayment(CreatePaymentInput{
		UserID:    5,
		OrderID:   order.ID,
		Amount:    decimal.RequireFromString("20.00"),
		UserAgent: "okhttp/4.9 react-native",
	})
	if err != nil {
		t.Fatalf("create mobile payment failed: %v", err)
	}
	if result.Payment.Platform != constants.PlatformMobile {
		t.Fatalf("platform should be inferred as mobile, got %s", result.Payment.Platform)
	}
	if !strings.HasPrefix(result.Payment.RedirectURL, "naigaonmarketapp://payment?transaction_id=") {
		t.Fatalf("mobile redirect should be a deep link: %s", result.Payment.RedirectURL)
	}

	cod, err := env.svc.CreatePayment(CreatePaymentInput{
		UserID:        5,
		OrderID:       order.ID,
		Amount:        decimal.RequireFromString("20.00"),
		PaymentMethod: "COD",
		DeviceInfo:    map[string]interface{}{"os": "ios"},
	})
	if err != nil {
		t.Fatalf("create cod payment failed: %v", err)
	}
	if cod.Payment.PaymentMethod != constants.PaymentMethodCOD || cod.Payment.PaymentURL != "" {
		t.Fatalf("unexpected cod payment: %+v", cod.Payment)
	}
	if cod.Payment.Platform != constants.PlatformMobile || cod.Payment.DeviceInfo["os"] != "ios" {
		t.Fatalf("device info should imply mobile: %+v", cod.Payment)
	}
	if len(env.gateway.initiateCalls) != 1 {
		t.Fatalf("cod must skip the gateway, got %d initiate calls", len(env.gateway.initiateCalls))
	}
}

func TestCreatePaymentValidation(t *testing.T) {
	env := setupServiceTest(t, ReconcilerOptions{})
	order := env.createOrder(t, "PT-SVC-004", 5, nil)
	missingStore := uint(999)

	cases := []struct {
		name  string
		input CreatePaymentInput
		want  error
	}{
		{"zero amount", CreatePaymentInput{UserID: 5, OrderID: order.ID, Amount: decimal.Zero}, ErrInvalidAmount},
		{"too precise", CreatePaymentInput{UserID: 5, OrderID: order.ID, Amount: decimal.RequireFromString("1.234")}, ErrInvalidAmount},
		{"bad method", CreatePaymentInput{UserID: 5, OrderID: order.ID, Amount: decimal.NewFromInt(1), PaymentMethod: "card"}, ErrInvalidPaymentMethod},
		{"bad platform", CreatePaymentInput{UserID: 5, OrderID: order.ID, Amount: decimal.NewFromInt(1), Platform: "tv"}, ErrInvalidPlatform},
		{"foreign order", CreatePaymentInput{UserID: 6, OrderID: order.ID, Amount: decimal.NewFromInt(1)}, ErrOrderNotFound},
		{"missing order", CreatePaymentInput{UserID: 5, OrderID: 12345, Amount: decimal.NewFromInt(1)}, ErrOrderNotFound},
		{"missing store", CreatePaymentInput{UserID: 5, OrderID: order.ID, StoreID: &missingStore, Amount: decimal.NewFromInt(1)}, ErrStoreNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.svc.CreatePayment(tc.input); !errors.Is(err, tc.want) {
				t.Fatalf("want %v got %v", tc.want, err)
			}
		})
	}
	if len(env.gateway.initiateCalls) != 0 {
		t.Fatalf("invalid requests must not reach the gateway")
	}
}

func TestHandleWebhookRequiresAuthorization(t *testing.T) {
	env := setupServiceTest(t, ReconcilerOptions{})
	order := env.createOrder(t, "PT-SVC-005", 5, nil)
	env.createPayment(t, order, "txn-hook", constants.PaymentStatusPending, constants.PlatformWeb)

	_, err := env.svc.HandleWebhook(WebhookInput{
		Authorization: "SHA256 deadbeef",
		Body:          webhookBody("txn-hook", "COMPLETED", 19950),
	})
	if !errors.Is(err, ErrWebhookUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if env.reload(t, "txn-hook").Status != constants.PaymentStatusPending {
		t.Fatalf("unauthenticated webhook must not mutate state")
	}
	if env.notificationCount() != 0 {
		t.Fatalf("unauthenticated webhook must not notify")
	}
}

func TestHandleWebhookAppliesAndDeduplicates(t *testing.T) {
	env := setupServiceTest(t, ReconcilerOptions{})
	order := env.createOrder(t, "PT-SVC-006", 5, nil)
	env.createPayment(t, order, "txn-hook-ok", constants.PaymentStatusPending, constants.PlatformWeb)
	auth := "SHA256 " + phonepe.WebhookDigest(testWebhookUser, testWebhookPassword)

	result, err := env.svc.HandleWebhook(WebhookInput{Authorization: auth, Body: webhookBody("txn-hook-ok", "COMPLETED", 19950)})
	if err != nil {
		t.Fatalf("webhook failed: %v", err)
	}
	if result.Status != constants.PaymentStatusCompleted || !result.NotificationSent {
		t.Fatalf("unexpected webhook result: %+v", result)
	}
	result, err = env.svc.HandleWebhook(WebhookInput{Authorization: auth, Body: webhookBody("txn-hook-ok", "COMPLETED", 19950)})
	if err != nil {
		t.Fatalf("duplicate webhook failed: %v", err)
	}
	if result.Outcome != constants.ReconcileOutcomeUnchanged || result.NotificationSent {
		t.Fatalf("duplicate webhook must be a no-op: %+v", result)
	}
	if env.legacy.count() != 1 {
		t.Fatalf("expected one notification, got %d", env.legacy.count())
	}
	if env.legacy.last().Message != "Payment of ₹199.50 for Transaction ID txn-hook-ok was successful!" {
		t.Fatalf("unexpected message: %s", env.legacy.last().Message)
	}
}

func TestHandleWebhookUnknownTransactionSendsLegacyNotification(t *testing.T) {
	env := setupServiceTest(t, ReconcilerOptions{})
	auth := phonepe.WebhookDigest(testWebhookUser, testWebhookPassword)

	result, err := env.svc.HandleWebhook(WebhookInput{Authorization: auth, Body: webhookBody("txn-ghost", "FAILED", 5000)})
	if err != nil {
		t.Fatalf("unknown transaction should not error: %v", err)
	}
	if result.Outcome != constants.ReconcileOutcomeNotFound || !result.NotificationSent {
		t.Fatalf("unexpected result: %+v", result)
	}
	if env.legacy.last().Message != "Payment of ₹50.00 for Transaction ID txn-ghost failed. Please try again." {
		t.Fatalf("unexpected legacy message: %s", env.legacy.last().Message)
	}
}

func TestHandleWebhookRejectsMalformedPayload(t *testing.T) {
	env := setupServiceTest(t, ReconcilerOptions{})
	auth := phonepe.WebhookDigest(testWebhookUser, testWebhookPassword)
	if _, err := env.svc.HandleWebhook(WebhookInput{Authorization: auth, Body: []byte(`{"payload":`)}); !errors.Is(err, ErrWebhookPayloadInvalid) {
		t.Fatalf("expected payload invalid, got %v", err)
	}
}

func TestHandleMobileCallbackUsesGatewayTruth(t *testing.T) {
	env := setupServiceTest(t, ReconcilerOptions{})
	order := env.createOrder(t, "PT-SVC-007", 5, nil)
	env.createPayment(t, order, "txn-cb", constants.PaymentStatusPending, constants.PlatformMobile)
	env.gateway.setQueryState("FAILED", 19950)

	result, err := env.svc.HandleMobileCallback(MobileCallbackInput{
		TransactionID: "txn-cb",
		Status:        "SUCCESS",
	})
	if err != nil {
		t.Fatalf("callback failed: %v", err)
	}
	if result.Payment.Status != constants.PaymentStatusFailed || !result.Updated {
		t.Fatalf("gateway truth must win: %+v", result.Payment)
	}
	if env.reload(t, "txn-cb").Status != constants.PaymentStatusFailed {
		t.Fatalf("stored status should be failed")
	}
	if env.push.count() != 1 || env.push.last().Level != constants.NotifyLevelFailed {
		t.Fatalf("expected one failed push notification")
	}

	result, err = env.svc.HandleMobileCallback(MobileCallbackInput{TransactionID: "txn-cb", Status: "FAILED"})
	if err != nil || result.Updated {
		t.Fatalf("repeat callback should report up to date: result=%+v err=%v", result, err)
	}
}

func TestHandleMobileCallbackErrors(t *testing.T) {
	env := setupServiceTest(t, ReconcilerOptions{})
	order := env.createOrder(t, "PT-SVC-008", 5, nil)
	cod := env.createPayment(t, order, "txn-cod", constants.PaymentStatusPending, constants.PlatformMobile)
	if err := env.db.Model(&models.Payment{}).Where("id = ?", cod.ID).Update("payment_method", constants.PaymentMethodCOD).Error; err != nil {
		t.Fatalf("mark cod failed: %v", err)
	}

	if _, err := env.svc.HandleMobileCallback(MobileCallbackInput{TransactionID: "missing"}); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := env.svc.HandleMobileCallback(MobileCallbackInput{TransactionID: "txn-cod"}); !errors.Is(err, ErrPaymentMethodNotSupported) {
		t.Fatalf("expected not supported, got %v", err)
	}
	if _, err := env.svc.HandleMobileCallback(MobileCallbackInput{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestVerifyPayment(t *testing.T) {
	env := setupServiceTest(t, ReconcilerOptions{})
	order := env.createOrder(t, "PT-SVC-009", 5, nil)
	env.createPayment(t, order, "txn-verify", constants.PaymentStatusPending, constants.PlatformWeb)

	result, err := env.svc.VerifyPayment(context.Background(), "txn-verify")
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if result.Changed || result.Payment.Status != constants.PaymentStatusPending {
		t.Fatalf("pending gateway state should not change record: %+v", result)
	}

	env.gateway.setQueryState("COMPLETED", 19950)
	result, err = env.svc.VerifyPayment(context.Background(), "txn-verify")
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !result.Changed || result.Payment.Status != constants.PaymentStatusCompleted || !result.NotificationSent {
		t.Fatalf("verify should complete payment: %+v", result)
	}

	if _, err := env.svc.VerifyPayment(context.Background(), "missing"); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	env.gateway.query = func(context.Context, string) (GatewayStatus, error) {
		return GatewayStatus{}, ErrGatewayUnavailable
	}
	if _, err := env.svc.VerifyPayment(context.Background(), "txn-verify"); !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected gateway unavailable, got %v", err)
	}
}

func TestListPayments(t *testing.T) {
	env := setupServiceTest(t, ReconcilerOptions{})
	mine := env.createOrder(t, "PT-SVC-010", 5, nil)
	other := env.createOrder(t, "PT-SVC-011", 6, nil)
	env.createPayment(t, mine, "txn-list-1", constants.PaymentStatusPending, constants.PlatformWeb)
	env.createPayment(t, mine, "txn-list-2", constants.PaymentStatusCompleted, constants.PlatformMobile)
	env.createPayment(t, other, "txn-list-3", constants.PaymentStatusPending, constants.PlatformWeb)

	payments, total, page, pageSize, err := env.svc.ListPayments(ListPaymentsInput{UserID: 5})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 2 || len(payments) != 2 || page != 1 || pageSize != constants.DefaultPaymentPageSize {
		t.Fatalf("unexpected list: total=%d len=%d page=%d size=%d", total, len(payments), page, pageSize)
	}
	if payments[0].TransactionID != "txn-list-2" {
		t.Fatalf("default ordering should be newest first, got %s", payments[0].TransactionID)
	}

	payments, total, _, _, err = env.svc.ListPayments(ListPaymentsInput{UserID: 5, Platform: "mobile", PageSize: 500})
	if err != nil || total != 1 || payments[0].TransactionID != "txn-list-2" {
		t.Fatalf("platform filter failed: total=%d err=%v", total, err)
	}

	if _, _, _, _, err := env.svc.ListPayments(ListPaymentsInput{UserID: 5, Ordering: "password"}); !errors.Is(err, ErrInvalidOrdering) {
		t.Fatalf("expected invalid ordering, got %v", err)
	}
	if _, _, _, _, err := env.svc.ListPayments(ListPaymentsInput{UserID: 5, Status: "paid"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStatsUsesCache(t *testing.T) {
	env := setupServiceTest(t, ReconcilerOptions{})
	order := env.createOrder(t, "PT-SVC-012", 5, nil)
	env.createPayment(t, order, "txn-stats-1", constants.PaymentStatusPending, constants.PlatformWeb)
	env.createPayment(t, order, "txn-stats-2", constants.PaymentStatusPending, constants.PlatformWeb)

	rows, err := env.svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Count != 2 || rows[0].TotalAmount.String() != "399.00" {
		t.Fatalf("unexpected stats: %+v", rows)
	}
	if env.statsCache.sets != 1 {
		t.Fatalf("stats should be cached")
	}

	env.statsCache.rows = []repository.PaymentStatRow{{Platform: "cached", Count: 9}}
	rows, err = env.svc.Stats(context.Background())
	if err != nil || len(rows) != 1 || rows[0].Platform != "cached" {
		t.Fatalf("cached stats should be served: %+v err=%v", rows, err)
	}
}

func TestPollStatusReschedulesWhilePending(t *testing.T) {
	env := setupServiceTest(t, ReconcilerOptions{})
	order := env.createOrder(t, "PT-SVC-013", 5, nil)
	env.createPayment(t, order, "txn-poll", constants.PaymentStatusPending, constants.PlatformWeb)

	if err := env.svc.PollStatus(context.Background(), "txn-poll", 1); err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if len(env.scheduler.polls) != 1 || env.scheduler.polls[0].Attempt != 2 {
		t.Fatalf("pending payment should be polled again: %+v", env.scheduler.polls)
	}

	if err := env.svc.PollStatus(context.Background(), "txn-poll", 3); err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if len(env.scheduler.polls) != 1 {
		t.Fatalf("poll attempts must stop at max: %+v", env.scheduler.polls)
	}

	env.gateway.setQueryState("COMPLETED", 19950)
	if err := env.svc.PollStatus(context.Background(), "txn-poll", 2); err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if env.reload(t, "txn-poll").Status != constants.PaymentStatusCompleted {
		t.Fatalf("poll should complete payment")
	}
	if len(env.scheduler.polls) != 1 {
		t.Fatalf("completed payment must not be rescheduled")
	}
}

func TestSweepPendingReconcilesStalePayments(t *testing.T) {
	env := setupServiceTest(t, ReconcilerOptions{})
	order := env.createOrder(t, "PT-SVC-014", 5, nil)
	stale := env.createPayment(t, order, "txn-sweep-stale", constants.PaymentStatusPending, constants.PlatformWeb)
	env.createPayment(t, order, "txn-sweep-fresh", constants.PaymentStatusPending, constants.PlatformWeb)
	old := time.Now().Add(-time.Hour)
	if err := env.db.Model(&models.Payment{}).Where("id = ?", stale.ID).Update("created_at", old).Error; err != nil {
		t.Fatalf("age payment failed: %v", err)
	}
	env.gateway.setQueryState("COMPLETED", 19950)

	result, err := env.svc.SweepPending(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if result.Checked != 1 || result.Applied != 1 || result.Failed != 0 {
		t.Fatalf("unexpected sweep result: %+v", result)
	}
	if env.reload(t, "txn-sweep-fresh").Status != constants.PaymentStatusPending {
		t.Fatalf("fresh payment should be left to the poller")
	}
}
