package service

import (
	"context"
	"testing"

	"github.com/paytrack-next/internal/constants"
	"github.com/paytrack-next/internal/models"

	"github.com/shopspring/decimal"
)

func TestBuildPaymentNotificationMessages(t *testing.T) {
	amount := decimal.RequireFromString("199.5")
	cases := []struct {
		status  string
		level   string
		message string
	}{
		{constants.PaymentStatusCompleted, constants.NotifyLevelSuccess, "Payment of ₹199.50 for Transaction ID txn-1 was successful!"},
		{constants.PaymentStatusFailed, constants.NotifyLevelFailed, "Payment of ₹199.50 for Transaction ID txn-1 failed. Please try again."},
		{constants.PaymentStatusPending, constants.NotifyLevelPending, "Payment of ₹199.50 for Transaction ID txn-1 is still processing."},
		{constants.PaymentStatusRefunded, constants.NotifyLevelRefunded, "Payment of ₹199.50 for Transaction ID txn-1 has been refunded."},
	}
	for _, tc := range cases {
		notification := BuildPaymentNotification("txn-1", tc.status, amount)
		if notification.Level != tc.level || notification.Message != tc.message {
			t.Fatalf("status %s: unexpected notification %+v", tc.status, notification)
		}
	}
}

func TestDispatcherRoutesByPlatform(t *testing.T) {
	push := &recordingSender{}
	legacy := &recordingSender{}
	dispatcher := NewDispatcher(push, legacy)
	amount := decimal.RequireFromString("10.00")

	mobile := &models.Payment{
		ID:            1,
		OrderID:       3,
		TransactionID: "txn-mobile",
		Platform:      constants.PlatformMobile,
		DeviceInfo:    models.JSON{"os": "android"},
		Order:         &models.Order{ID: 3, UserID: 9},
	}
	if !dispatcher.Dispatch(context.Background(), mobile, constants.PaymentStatusCompleted, amount) {
		t.Fatalf("mobile dispatch should succeed")
	}
	if push.count() != 1 || legacy.count() != 0 {
		t.Fatalf("mobile payment must use push sender: push=%d legacy=%d", push.count(), legacy.count())
	}
	sent := push.last()
	if sent.Channel != constants.NotifyChannelPush || sent.UserID != 9 || sent.DeviceInfo["os"] != "android" {
		t.Fatalf("unexpected push notification: %+v", sent)
	}

	web := &models.Payment{ID: 2, TransactionID: "txn-web", Platform: constants.PlatformWeb}
	if !dispatcher.Dispatch(context.Background(), web, constants.PaymentStatusFailed, amount) {
		t.Fatalf("web dispatch should succeed")
	}
	if legacy.count() != 1 || legacy.last().Channel != constants.NotifyChannelLegacy {
		t.Fatalf("web payment must use legacy sender")
	}
}

func TestDispatcherReportsSenderFailure(t *testing.T) {
	legacy := &recordingSender{err: errSenderDown}
	dispatcher := NewDispatcher(nil, legacy)
	payment := &models.Payment{TransactionID: "txn-1", Platform: constants.PlatformWeb}
	if dispatcher.Dispatch(context.Background(), payment, constants.PaymentStatusCompleted, decimal.NewFromInt(1)) {
		t.Fatalf("failed sender must report false")
	}
	mobile := &models.Payment{TransactionID: "txn-2", Platform: constants.PlatformMobile}
	if dispatcher.Dispatch(context.Background(), mobile, constants.PaymentStatusCompleted, decimal.NewFromInt(1)) {
		t.Fatalf("missing push sender must report false")
	}
	if dispatcher.DispatchLegacy(context.Background(), "txn-3", constants.PaymentStatusCompleted, decimal.NewFromInt(1)) {
		t.Fatalf("legacy dispatch with failing sender must report false")
	}
}

func TestLogSenderRejectsEmptyMessage(t *testing.T) {
	if err := (LogSender{}).Send(context.Background(), PaymentNotification{}); err == nil {
		t.Fatalf("empty message should be rejected")
	}
	notification := BuildPaymentNotification("txn-1", constants.PaymentStatusCompleted, decimal.NewFromInt(5))
	if err := (LogSender{}).Send(context.Background(), notification); err != nil {
		t.Fatalf("log sender failed: %v", err)
	}
}
