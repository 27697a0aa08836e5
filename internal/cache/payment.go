package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/paytrack-next/internal/logger"
	"github.com/paytrack-next/internal/repository"
	"github.com/paytrack-next/internal/service"
)

const (
	paymentStatsKey        = "payment:stats"
	defaultPaymentStatsTTL = 30 * time.Second
)

// UserOrderListKey 用户订单列表缓存键
func UserOrderListKey(userID uint) string {
	return fmt.Sprintf("user:%d:orders", userID)
}

// UserPaymentListKey 用户支付列表缓存键
func UserPaymentListKey(userID uint) string {
	return fmt.Sprintf("user:%d:payments", userID)
}

// PaymentStatsCache 支付统计缓存
type PaymentStatsCache struct {
	ttl time.Duration
}

// NewPaymentStatsCache 创建支付统计缓存
func NewPaymentStatsCache(ttl time.Duration) *PaymentStatsCache {
	if ttl <= 0 {
		ttl = defaultPaymentStatsTTL
	}
	return &PaymentStatsCache{ttl: ttl}
}

// GetPaymentStats 读取缓存的统计
func (c *PaymentStatsCache) GetPaymentStats(ctx context.Context) ([]repository.PaymentStatRow, bool, error) {
	var rows []repository.PaymentStatRow
	ok, err := GetJSON(ctx, paymentStatsKey, &rows)
	if err != nil || !ok {
		return nil, false, err
	}
	return rows, true, nil
}

// SetPaymentStats 写入统计缓存
func (c *PaymentStatsCache) SetPaymentStats(ctx context.Context, rows []repository.PaymentStatRow) error {
	return SetJSON(ctx, paymentStatsKey, rows, c.ttl)
}

// PaymentCacheInvalidator 支付状态变更后清理相关缓存
type PaymentCacheInvalidator struct{}

// NewPaymentCacheInvalidator 创建缓存清理监听
func NewPaymentCacheInvalidator() *PaymentCacheInvalidator {
	return &PaymentCacheInvalidator{}
}

// OnPaymentTransition 清理订单所属用户的列表缓存与统计缓存
func (PaymentCacheInvalidator) OnPaymentTransition(ctx context.Context, event service.TransitionEvent) {
	keys := []string{paymentStatsKey}
	if event.Order != nil {
		keys = append(keys, UserOrderListKey(event.Order.UserID), UserPaymentListKey(event.Order.UserID))
	}
	if err := Del(ctx, keys...); err != nil {
		transactionID := ""
		if event.Payment != nil {
			transactionID = event.Payment.TransactionID
		}
		logger.FromContext(ctx, "transaction_id", transactionID).Warnw("payment_cache_invalidate_failed", "error", err)
	}
}
