package service

import (
	"context"
	"time"

	"github.com/paytrack-next/internal/queue"
)

// StatusPollScheduler 安排延迟的支付状态轮询
type StatusPollScheduler interface {
	SchedulePoll(ctx context.Context, transactionID string, attempt int, delay time.Duration) error
}

// QueuePollScheduler 基于异步队列的轮询调度
type QueuePollScheduler struct {
	client *queue.Client
}

// NewQueuePollScheduler 创建轮询调度
func NewQueuePollScheduler(client *queue.Client) *QueuePollScheduler {
	return &QueuePollScheduler{client: client}
}

// SchedulePoll 推送延迟轮询任务
func (s *QueuePollScheduler) SchedulePoll(_ context.Context, transactionID string, attempt int, delay time.Duration) error {
	if s == nil || s.client == nil {
		return queue.ErrQueueDisabled
	}
	return s.client.EnqueuePaymentStatusPoll(queue.PaymentStatusPollPayload{
		TransactionID: transactionID,
		Attempt:       attempt,
	}, delay)
}
