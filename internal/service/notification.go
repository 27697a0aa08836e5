package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/paytrack-next/internal/constants"
	"github.com/paytrack-next/internal/logger"
	"github.com/paytrack-next/internal/models"
	"github.com/paytrack-next/internal/queue"

	"github.com/shopspring/decimal"
)

// PaymentNotification 支付状态通知内容
type PaymentNotification struct {
	Channel       string
	Platform      string
	PaymentID     uint
	OrderID       uint
	UserID        uint
	TransactionID string
	Status        string
	Level         string
	Amount        string
	Message       string
	DeviceInfo    map[string]interface{}
}

// NotificationSender 通知投递边界
type NotificationSender interface {
	Send(ctx context.Context, notification PaymentNotification) error
}

// Dispatcher 按平台路由支付状态通知：移动端推送，其余走站内通知
type Dispatcher struct {
	push   NotificationSender
	legacy NotificationSender
}

// NewDispatcher 创建通知分发器
func NewDispatcher(push, legacy NotificationSender) *Dispatcher {
	return &Dispatcher{push: push, legacy: legacy}
}

// Dispatch 为一次已提交的状态变更发送通知，返回是否投递成功
func (d *Dispatcher) Dispatch(ctx context.Context, payment *models.Payment, status string, amount decimal.Decimal) bool {
	if d == nil || payment == nil {
		return false
	}
	notification := BuildPaymentNotification(payment.TransactionID, status, amount)
	notification.Platform = payment.Platform
	notification.PaymentID = payment.ID
	notification.OrderID = payment.OrderID
	if payment.Order != nil {
		notification.UserID = payment.Order.UserID
	}
	sender := d.legacy
	notification.Channel = constants.NotifyChannelLegacy
	if payment.Platform == constants.PlatformMobile {
		sender = d.push
		notification.Channel = constants.NotifyChannelPush
		if len(payment.DeviceInfo) > 0 {
			notification.DeviceInfo = map[string]interface{}(payment.DeviceInfo)
		}
	}
	return d.send(ctx, sender, notification)
}

// DispatchLegacy 仅凭回调内容发送站内通知，用于找不到本地记录的回调
func (d *Dispatcher) DispatchLegacy(ctx context.Context, transactionID, status string, amount decimal.Decimal) bool {
	if d == nil {
		return false
	}
	notification := BuildPaymentNotification(transactionID, status, amount)
	notification.Channel = constants.NotifyChannelLegacy
	return d.send(ctx, d.legacy, notification)
}

func (d *Dispatcher) send(ctx context.Context, sender NotificationSender, notification PaymentNotification) bool {
	log := logger.FromContext(ctx,
		"transaction_id", notification.TransactionID,
		"status", notification.Status,
		"channel", notification.Channel,
	)
	if sender == nil {
		log.Warnw("payment_notification_failed", "error", "sender not configured")
		return false
	}
	if err := sender.Send(ctx, notification); err != nil {
		log.Warnw("payment_notification_failed", "error", err)
		return false
	}
	log.Debugw("payment_notification_dispatched")
	return true
}

// BuildPaymentNotification 生成通知文案与级别
func BuildPaymentNotification(transactionID, status string, amount decimal.Decimal) PaymentNotification {
	notification := PaymentNotification{
		TransactionID: transactionID,
		Status:        status,
		Amount:        amount.StringFixed(2),
	}
	prefix := fmt.Sprintf("Payment of ₹%s for Transaction ID %s", notification.Amount, transactionID)
	switch status {
	case constants.PaymentStatusCompleted:
		notification.Level = constants.NotifyLevelSuccess
		notification.Message = prefix + " was successful!"
	case constants.PaymentStatusFailed:
		notification.Level = constants.NotifyLevelFailed
		notification.Message = prefix + " failed. Please try again."
	case constants.PaymentStatusRefunded:
		notification.Level = constants.NotifyLevelRefunded
		notification.Message = prefix + " has been refunded."
	default:
		notification.Level = constants.NotifyLevelPending
		notification.Message = prefix + " is still processing."
	}
	return notification
}

// QueueSender 通过异步队列投递通知
type QueueSender struct {
	client *queue.Client
}

// NewQueueSender 创建队列投递
func NewQueueSender(client *queue.Client) *QueueSender {
	return &QueueSender{client: client}
}

// Send 推送通知任务
func (s *QueueSender) Send(_ context.Context, notification PaymentNotification) error {
	if s == nil || s.client == nil {
		return queue.ErrQueueDisabled
	}
	return s.client.EnqueuePaymentNotify(queue.PaymentNotifyPayload{
		Channel:       notification.Channel,
		Platform:      notification.Platform,
		PaymentID:     notification.PaymentID,
		OrderID:       notification.OrderID,
		UserID:        notification.UserID,
		TransactionID: notification.TransactionID,
		Status:        notification.Status,
		Level:         notification.Level,
		Amount:        notification.Amount,
		Message:       notification.Message,
		DeviceInfo:    notification.DeviceInfo,
	})
}

// NotificationFromPayload 将队列载荷还原为通知
func NotificationFromPayload(payload queue.PaymentNotifyPayload) PaymentNotification {
	return PaymentNotification{
		Channel:       payload.Channel,
		Platform:      payload.Platform,
		PaymentID:     payload.PaymentID,
		OrderID:       payload.OrderID,
		UserID:        payload.UserID,
		TransactionID: payload.TransactionID,
		Status:        payload.Status,
		Level:         payload.Level,
		Amount:        payload.Amount,
		Message:       payload.Message,
		DeviceInfo:    payload.DeviceInfo,
	}
}

// LogSender 将通知写入日志，作为未接入推送服务时的投递端
type LogSender struct{}

// Send 记录通知
func (LogSender) Send(ctx context.Context, notification PaymentNotification) error {
	if strings.TrimSpace(notification.Message) == "" {
		return fmt.Errorf("%w: empty notification message", ErrValidation)
	}
	logger.FromContext(ctx,
		"channel", notification.Channel,
		"user_id", notification.UserID,
		"transaction_id", notification.TransactionID,
		"level", notification.Level,
	).Infow("payment_notification_delivered", "message", notification.Message)
	return nil
}
