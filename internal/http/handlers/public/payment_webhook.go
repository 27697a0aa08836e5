package public

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/paytrack-next/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	webhookBodyLimit       = 1 << 20
	callbackLogValueLimit  = 4096
	webhookFailureResponse = "Error processing webhook"
)

// PhonePeWebhook 接收网关状态回调
func (h *Handler) PhonePeWebhook(c *gin.Context) {
	defer func() {
		if recovered := recover(); recovered != nil {
			requestLog(c).Errorw("payment_webhook_panic", "panic", recovered)
			c.JSON(http.StatusOK, gin.H{"success": false, "message": webhookFailureResponse})
		}
	}()

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, webhookBodyLimit))
	if err != nil {
		requestLog(c).Warnw("payment_webhook_read_body_failed", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}
	requestLog(c).Infow("payment_webhook_received",
		"client_ip", c.ClientIP(),
		"content_type", strings.TrimSpace(c.GetHeader("Content-Type")),
		"raw_body", truncateCallbackLogValue(string(body)),
	)

	result, err := h.PaymentService.HandleWebhook(service.WebhookInput{
		Authorization: c.GetHeader("Authorization"),
		Body:          body,
		Context:       c.Request.Context(),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrWebhookUnauthorized):
			requestLog(c).Warnw("payment_webhook_unauthorized", "client_ip", c.ClientIP())
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization"})
		case errors.Is(err, service.ErrWebhookPayloadInvalid):
			requestLog(c).Warnw("payment_webhook_payload_invalid", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		case errors.Is(err, service.ErrIllegalTransition), errors.Is(err, service.ErrAmountMismatch):
			requestLog(c).Warnw("payment_webhook_transition_rejected", "error", err)
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "Status transition rejected"})
		default:
			requestLog(c).Errorw("payment_webhook_failed", "error", err)
			c.JSON(http.StatusOK, gin.H{"success": false, "message": webhookFailureResponse})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"message":           "Webhook received",
		"notification_sent": result.NotificationSent,
		"status":            result.Status,
	})
}

func truncateCallbackLogValue(raw string) string {
	if len(raw) <= callbackLogValueLimit {
		return raw
	}
	cut := callbackLogValueLimit
	for cut > 0 && !utf8.RuneStart(raw[cut]) {
		cut--
	}
	return raw[:cut] + "...(truncated)"
}
