package public

import (
	"errors"
	"net/http"

	"github.com/paytrack-next/internal/models"
	"github.com/paytrack-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// MobileCallbackRequest 移动端支付完成回跳上报
type MobileCallbackRequest struct {
	TransactionID string           `json:"transaction_id" binding:"required"`
	Status        string           `json:"status"`
	Amount        *decimal.Decimal `json:"amount"`
	OrderID       uint             `json:"order_id"`
	Platform      string           `json:"platform"`
}

// MobilePaymentCallback 移动端回跳，以网关查询结果为准刷新状态
func (h *Handler) MobilePaymentCallback(c *gin.Context) {
	var req MobileCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		requestLog(c).Warnw("payment_mobile_callback_invalid", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request"})
		return
	}
	requestLog(c).Infow("payment_mobile_callback_received",
		"transaction_id", req.TransactionID,
		"status", req.Status,
		"client_ip", c.ClientIP(),
	)

	result, err := h.PaymentService.HandleMobileCallback(service.MobileCallbackInput{
		TransactionID: req.TransactionID,
		Status:        req.Status,
		Amount:        req.Amount,
		OrderID:       req.OrderID,
		Platform:      req.Platform,
		Context:       c.Request.Context(),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPaymentNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Payment not found"})
		case errors.Is(err, service.ErrPaymentMethodNotSupported):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Payment method not supported"})
		case errors.Is(err, service.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request"})
		default:
			requestLog(c).Errorw("payment_mobile_callback_failed", "transaction_id", req.TransactionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error processing payment callback"})
		}
		return
	}

	message := "Payment status already up to date"
	if result.Updated {
		message = "Payment status updated successfully"
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  result.Payment.Status,
		"message": message,
		"payment": callbackPaymentView(result.Payment),
	})
}

func callbackPaymentView(payment *models.Payment) gin.H {
	return gin.H{
		"id":             payment.ID,
		"transaction_id": payment.TransactionID,
		"status":         payment.Status,
		"amount":         payment.Amount,
		"order_id":       payment.OrderID,
	}
}
