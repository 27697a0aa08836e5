package public

import (
	"errors"

	handlershared "github.com/paytrack-next/internal/http/handlers/shared"
	"github.com/paytrack-next/internal/http/response"
	"github.com/paytrack-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// CreatePaymentRequest 创建支付请求
type CreatePaymentRequest struct {
	OrderID       uint                   `json:"order_id" binding:"required"`
	Amount        decimal.Decimal        `json:"amount"`
	StoreID       *uint                  `json:"estore_id"`
	PaymentMethod string                 `json:"payment_method"`
	Platform      string                 `json:"platform"`
	DeviceInfo    map[string]interface{} `json:"device_info"`
}

// PaymentListQuery 支付列表查询参数
type PaymentListQuery struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Status   string `form:"status"`
	Platform string `form:"platform"`
	Ordering string `form:"ordering"`
}

// VerifyPaymentQuery 主动查询参数
type VerifyPaymentQuery struct {
	TransactionID string `form:"transaction_id" binding:"required"`
}

// CreatePayment 创建支付记录并返回收银台地址
func (h *Handler) CreatePayment(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "Invalid request", err)
		return
	}

	result, err := h.PaymentService.CreatePayment(service.CreatePaymentInput{
		UserID:        uid,
		OrderID:       req.OrderID,
		StoreID:       req.StoreID,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		Platform:      req.Platform,
		UserAgent:     c.GetHeader("User-Agent"),
		DeviceInfo:    req.DeviceInfo,
		Context:       c.Request.Context(),
	})
	if err != nil {
		// 记录已落库但网关下单失败时，返回交易号供客户端后续查询
		if result != nil && result.Payment != nil && errors.Is(err, service.ErrGatewayUnavailable) {
			handlershared.RespondErrorWithData(c, response.CodeBadGateway, "Payment gateway unavailable", gin.H{
				"transaction_id": result.Payment.TransactionID,
				"status":         result.Payment.Status,
			}, err)
			return
		}
		respondWithMappedError(c, err, paymentErrorRules, response.CodeInternal, "Failed to create payment")
		return
	}

	response.Success(c, result.Payment)
}

// ListPayments 查询当前用户的支付记录
func (h *Handler) ListPayments(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	var query PaymentListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, response.CodeBadRequest, "Invalid request", err)
		return
	}

	payments, total, page, pageSize, err := h.PaymentService.ListPayments(service.ListPaymentsInput{
		UserID:   uid,
		Page:     query.Page,
		PageSize: query.PageSize,
		Status:   query.Status,
		Platform: query.Platform,
		Ordering: query.Ordering,
	})
	if err != nil {
		respondWithMappedError(c, err, paymentValidationErrorRules, response.CodeInternal, "Failed to fetch payments")
		return
	}

	response.SuccessWithPage(c, payments, handlershared.BuildPagination(page, pageSize, total))
}

// PaymentStats 按平台与状态汇总支付
func (h *Handler) PaymentStats(c *gin.Context) {
	rows, err := h.PaymentService.Stats(c.Request.Context())
	if err != nil {
		respondError(c, response.CodeInternal, "Failed to fetch payment stats", err)
		return
	}
	response.Success(c, rows)
}

// VerifyPayment 以网关查询结果刷新支付状态
func (h *Handler) VerifyPayment(c *gin.Context) {
	var query VerifyPaymentQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, response.CodeBadRequest, "transaction_id is required", nil)
		return
	}

	result, err := h.PaymentService.VerifyPayment(c.Request.Context(), query.TransactionID)
	if err != nil {
		respondWithMappedError(c, err, paymentErrorRules, response.CodeInternal, "Failed to verify payment")
		return
	}

	response.Success(c, gin.H{
		"payment":           result.Payment,
		"outcome":           result.Outcome,
		"changed":           result.Changed,
		"notification_sent": result.NotificationSent,
	})
}
