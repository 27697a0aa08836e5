package service

import (
	"strings"

	"github.com/paytrack-next/internal/constants"
)

// 支付状态迁移表，终态 failed/refunded 不允许再迁出
var paymentTransitions = map[string]map[string]struct{}{
	constants.PaymentStatusPending: {
		constants.PaymentStatusCompleted: {},
		constants.PaymentStatusFailed:    {},
		constants.PaymentStatusRefunded:  {},
	},
	constants.PaymentStatusCompleted: {
		constants.PaymentStatusRefunded: {},
	},
}

// CanTransition 判断支付状态是否允许从 from 迁移到 to
func CanTransition(from, to string) bool {
	targets, ok := paymentTransitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// IsValidPaymentStatus 判断是否为已知支付状态
func IsValidPaymentStatus(status string) bool {
	switch status {
	case constants.PaymentStatusPending,
		constants.PaymentStatusCompleted,
		constants.PaymentStatusFailed,
		constants.PaymentStatusRefunded:
		return true
	}
	return false
}

var gatewayStateMapping = map[string]string{
	"COMPLETED":                constants.PaymentStatusCompleted,
	"SUCCESS":                  constants.PaymentStatusCompleted,
	"PAYMENT_SUCCESS":          constants.PaymentStatusCompleted,
	"CHECKOUT_ORDER_COMPLETED": constants.PaymentStatusCompleted,
	"FAILED":                   constants.PaymentStatusFailed,
	"FAILURE":                  constants.PaymentStatusFailed,
	"DECLINED":                 constants.PaymentStatusFailed,
	"EXPIRED":                  constants.PaymentStatusFailed,
	"CANCELLED":                constants.PaymentStatusFailed,
	"PAYMENT_ERROR":            constants.PaymentStatusFailed,
	"CHECKOUT_ORDER_FAILED":    constants.PaymentStatusFailed,
	"REFUNDED":                 constants.PaymentStatusRefunded,
	"REFUND_COMPLETED":         constants.PaymentStatusRefunded,
	"PG_REFUND_COMPLETED":      constants.PaymentStatusRefunded,
	"PENDING":                  constants.PaymentStatusPending,
	"INITIATED":                constants.PaymentStatusPending,
	"PROCESSING":               constants.PaymentStatusPending,
}

// NormalizeGatewayState 将网关原始状态映射为本地状态，未识别时返回 (pending, false)
func NormalizeGatewayState(raw string) (string, bool) {
	// 事件类型形如 checkout.order.completed
	key := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), ".", "_"))
	if status, ok := gatewayStateMapping[key]; ok {
		return status, true
	}
	return constants.PaymentStatusPending, false
}
