package queue

import (
	"encoding/json"
	"errors"

	"github.com/paytrack-next/internal/constants"

	"github.com/hibiken/asynq"
)

// ErrQueueDisabled 队列未启用
var ErrQueueDisabled = errors.New("queue disabled")

const (
	// TaskPaymentNotify 支付状态通知任务
	TaskPaymentNotify = constants.TaskPaymentNotify
	// TaskPaymentStatusPoll 支付状态轮询任务
	TaskPaymentStatusPoll = constants.TaskPaymentStatusPoll
)

// PaymentNotifyPayload 支付状态通知任务载荷
type PaymentNotifyPayload struct {
	Channel       string                 `json:"channel"` // push / legacy
	Platform      string                 `json:"platform"`
	PaymentID     uint                   `json:"payment_id,omitempty"`
	OrderID       uint                   `json:"order_id,omitempty"`
	UserID        uint                   `json:"user_id,omitempty"`
	TransactionID string                 `json:"transaction_id"`
	Status        string                 `json:"status"`
	Level         string                 `json:"level"`
	Amount        string                 `json:"amount"`
	Message       string                 `json:"message"`
	DeviceInfo    map[string]interface{} `json:"device_info,omitempty"`
}

// PaymentStatusPollPayload 支付状态轮询任务载荷
type PaymentStatusPollPayload struct {
	TransactionID string `json:"transaction_id"`
	Attempt       int    `json:"attempt"`
}

// NewPaymentNotifyTask 创建支付状态通知任务
func NewPaymentNotifyTask(payload PaymentNotifyPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentNotify, body), nil
}

// NewPaymentStatusPollTask 创建支付状态轮询任务
func NewPaymentStatusPollTask(payload PaymentStatusPollPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentStatusPoll, body), nil
}
