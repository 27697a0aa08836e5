package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paytrack-next/internal/config"
	"github.com/paytrack-next/internal/provider"
	"github.com/paytrack-next/internal/queue"
	"github.com/paytrack-next/internal/service"

	"github.com/hibiken/asynq"
)

type recordingDelivery struct {
	sent []service.PaymentNotification
	err  error
}

func (d *recordingDelivery) Send(_ context.Context, notification service.PaymentNotification) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, notification)
	return nil
}

func TestHandlePaymentNotifyDelivers(t *testing.T) {
	delivery := &recordingDelivery{}
	consumer := NewConsumer(&provider.Container{Delivery: delivery})

	task, err := queue.NewPaymentNotifyTask(queue.PaymentNotifyPayload{
		Channel:       "push",
		TransactionID: "txn-1",
		Status:        "completed",
		Level:         "success",
		Amount:        "199.50",
		Message:       "Payment of ₹199.50 for Transaction ID txn-1 was successful!",
	})
	if err != nil {
		t.Fatalf("new task failed: %v", err)
	}
	if err := consumer.handlePaymentNotify(context.Background(), task); err != nil {
		t.Fatalf("handle notify failed: %v", err)
	}
	if len(delivery.sent) != 1 || delivery.sent[0].Channel != "push" || delivery.sent[0].Amount != "199.50" {
		t.Fatalf("unexpected delivery: %+v", delivery.sent)
	}
}

func TestHandlePaymentNotifyErrors(t *testing.T) {
	delivery := &recordingDelivery{err: errors.New("push down")}
	consumer := NewConsumer(&provider.Container{Delivery: delivery})

	if err := consumer.handlePaymentNotify(context.Background(), asynq.NewTask(queue.TaskPaymentNotify, []byte("{"))); err == nil {
		t.Fatalf("malformed payload should fail")
	}
	empty, _ := queue.NewPaymentNotifyTask(queue.PaymentNotifyPayload{})
	if err := consumer.handlePaymentNotify(context.Background(), empty); err != nil {
		t.Fatalf("empty payload should be skipped: %v", err)
	}
	task, _ := queue.NewPaymentNotifyTask(queue.PaymentNotifyPayload{TransactionID: "txn-1", Message: "hi"})
	if err := consumer.handlePaymentNotify(context.Background(), task); err == nil {
		t.Fatalf("delivery failure should be returned for retry")
	}
}

func TestHandlePaymentStatusPollSkipsWithoutService(t *testing.T) {
	consumer := NewConsumer(&provider.Container{})
	task, _ := queue.NewPaymentStatusPollTask(queue.PaymentStatusPollPayload{TransactionID: "txn-1", Attempt: 1})
	if err := consumer.handlePaymentStatusPoll(context.Background(), task); err != nil {
		t.Fatalf("poll without service should be skipped: %v", err)
	}
	if err := consumer.handlePaymentStatusPoll(context.Background(), asynq.NewTask(queue.TaskPaymentStatusPoll, []byte("x"))); err == nil {
		t.Fatalf("malformed payload should fail")
	}
}

func TestSweepInterval(t *testing.T) {
	if got := NewConsumer(&provider.Container{}).sweepInterval(); got != defaultPaymentSweepInterval {
		t.Fatalf("unexpected default interval: %s", got)
	}
	cfg := &config.Config{Payment: config.PaymentConfig{SweepIntervalSeconds: 90}}
	if got := NewConsumer(&provider.Container{Config: cfg}).sweepInterval(); got != 90*time.Second {
		t.Fatalf("unexpected interval: %s", got)
	}
}

func TestNewServiceRequiresQueue(t *testing.T) {
	if _, err := NewService(&config.QueueConfig{Enabled: false}, NewConsumer(&provider.Container{})); err == nil {
		t.Fatalf("disabled queue should fail")
	}
}
