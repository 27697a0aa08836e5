package public

import (
	"errors"

	"github.com/paytrack-next/internal/http/response"
	"github.com/paytrack-next/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	msg    string
}

// matchMappedError 返回第一条命中的映射规则。
func matchMappedError(err error, rules []mappedHandlerError) (mappedHandlerError, bool) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			return rule, true
		}
	}
	return mappedHandlerError{}, false
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackMsg string) {
	if rule, ok := matchMappedError(err, rules); ok {
		requestLog(c).Infow("payment_request_rejected", "code", rule.code, "error", err)
		respondError(c, rule.code, rule.msg, nil)
		return
	}
	respondError(c, fallbackCode, fallbackMsg, err)
}

func concatMappedHandlerErrors(groups ...[]mappedHandlerError) []mappedHandlerError {
	total := 0
	for _, group := range groups {
		total += len(group)
	}
	result := make([]mappedHandlerError, 0, total)
	for _, group := range groups {
		result = append(result, group...)
	}
	return result
}

var paymentValidationErrorRules = []mappedHandlerError{
	{target: service.ErrInvalidAmount, code: response.CodeBadRequest, msg: "Invalid amount"},
	{target: service.ErrInvalidPlatform, code: response.CodeBadRequest, msg: "Invalid platform"},
	{target: service.ErrInvalidPaymentMethod, code: response.CodeBadRequest, msg: "Invalid payment method"},
	{target: service.ErrInvalidOrdering, code: response.CodeBadRequest, msg: "Invalid ordering"},
	{target: service.ErrPaymentInvalid, code: response.CodeBadRequest, msg: "Invalid payment request"},
	{target: service.ErrValidation, code: response.CodeBadRequest, msg: "Invalid request"},
}

var paymentLookupErrorRules = []mappedHandlerError{
	{target: service.ErrOrderNotFound, code: response.CodeNotFound, msg: "Order not found"},
	{target: service.ErrStoreNotFound, code: response.CodeNotFound, msg: "Store not found"},
	{target: service.ErrPaymentNotFound, code: response.CodeNotFound, msg: "Payment not found"},
	{target: service.ErrGatewayNotFound, code: response.CodeNotFound, msg: "Payment not found at gateway"},
}

var paymentGatewayErrorRules = []mappedHandlerError{
	{target: service.ErrIllegalTransition, code: response.CodeConflict, msg: "Payment status transition not allowed"},
	{target: service.ErrAmountMismatch, code: response.CodeConflict, msg: "Payment amount mismatch"},
	{target: service.ErrGatewayUnavailable, code: response.CodeBadGateway, msg: "Payment gateway unavailable"},
}

var paymentErrorRules = concatMappedHandlerErrors(
	paymentValidationErrorRules,
	paymentLookupErrorRules,
	paymentGatewayErrorRules,
)
