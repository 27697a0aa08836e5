package worker

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/paytrack-next/internal/logger"
	"github.com/paytrack-next/internal/provider"
	"github.com/paytrack-next/internal/queue"
	"github.com/paytrack-next/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskPaymentNotify, c.handlePaymentNotify)
	mux.HandleFunc(queue.TaskPaymentStatusPoll, c.handlePaymentStatusPoll)
}

func (c *Consumer) handlePaymentNotify(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_payment_notify_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.PaymentNotifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_payment_notify_unmarshal_failed", "error", err)
		return err
	}
	if strings.TrimSpace(payload.TransactionID) == "" || strings.TrimSpace(payload.Message) == "" {
		logger.Debugw("worker_payment_notify_skip_invalid_payload", "transaction_id", payload.TransactionID)
		return nil
	}
	if c.Delivery == nil {
		logger.Warnw("worker_payment_notify_skip_delivery_nil", "transaction_id", payload.TransactionID)
		return nil
	}
	if err := c.Delivery.Send(ctx, service.NotificationFromPayload(payload)); err != nil {
		logger.Warnw("worker_payment_notify_send_failed",
			"transaction_id", payload.TransactionID,
			"channel", payload.Channel,
			"status", payload.Status,
			"error", err,
		)
		return err
	}
	return nil
}

func (c *Consumer) handlePaymentStatusPoll(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_payment_status_poll_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.PaymentStatusPollPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_payment_status_poll_unmarshal_failed", "error", err)
		return err
	}
	if strings.TrimSpace(payload.TransactionID) == "" {
		logger.Debugw("worker_payment_status_poll_skip_invalid_payload")
		return nil
	}
	if c.PaymentService == nil {
		logger.Warnw("worker_payment_status_poll_skip_service_nil", "transaction_id", payload.TransactionID)
		return nil
	}
	if err := c.PaymentService.PollStatus(ctx, payload.TransactionID, payload.Attempt); err != nil {
		logger.Warnw("worker_payment_status_poll_failed",
			"transaction_id", payload.TransactionID,
			"attempt", payload.Attempt,
			"error", err,
		)
		return err
	}
	return nil
}
