package service

import "errors"

// 校验类错误，统一映射为 400
var (
	ErrValidation           = errors.New("validation failed")
	ErrPaymentInvalid       = errors.New("payment request invalid")
	ErrInvalidAmount        = errors.New("invalid payment amount")
	ErrInvalidPlatform      = errors.New("invalid platform")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrInvalidOrdering      = errors.New("invalid ordering")
	ErrOrderNotFound        = errors.New("order not found")
	ErrStoreNotFound        = errors.New("store not found")
)

// 网关回调错误
var (
	ErrWebhookUnauthorized   = errors.New("webhook unauthorized")
	ErrWebhookPayloadInvalid = errors.New("webhook payload invalid")
)

// 支付与对账错误
var (
	ErrPaymentNotFound           = errors.New("payment not found")
	ErrGatewayUnavailable        = errors.New("payment gateway unavailable")
	ErrGatewayNotFound           = errors.New("payment not found at gateway")
	ErrIllegalTransition         = errors.New("illegal payment status transition")
	ErrAmountMismatch            = errors.New("payment amount mismatch")
	ErrPaymentMethodNotSupported = errors.New("payment method not supported")
	ErrInternal                  = errors.New("internal error")
)
