package phonepe

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

var (
	ErrWebhookConfigInvalid  = errors.New("phonepe webhook credentials missing")
	ErrWebhookPayloadInvalid = errors.New("phonepe webhook payload invalid")
)

// WebhookAuthenticator 校验回调 Authorization 头：sha256(username:password) 的十六进制摘要。
type WebhookAuthenticator struct {
	expected []byte
}

// WebhookEvent 回调事件。
type WebhookEvent struct {
	Type            string
	MerchantOrderID string
	OrderID         string
	State           string
	AmountMinor     int64
	HasAmount       bool
	PaymentDetails  []interface{}
	Raw             map[string]interface{}
}

// WebhookDigest 计算回调凭证摘要。
func WebhookDigest(username, password string) string {
	sum := sha256.Sum256([]byte(username + ":" + password))
	return hex.EncodeToString(sum[:])
}

// NewWebhookAuthenticator 预先计算期望摘要。
func NewWebhookAuthenticator(username, password string) (*WebhookAuthenticator, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return nil, ErrWebhookConfigInvalid
	}
	return &WebhookAuthenticator{expected: []byte(WebhookDigest(username, password))}, nil
}

// Verify 以定长比较校验请求头，兼容 "SHA256 <digest>" 形式。
func (a *WebhookAuthenticator) Verify(authorization string) bool {
	if a == nil || len(a.expected) == 0 {
		return false
	}
	received := strings.TrimSpace(authorization)
	if len(received) > 7 && strings.EqualFold(received[:7], "SHA256 ") {
		received = strings.TrimSpace(received[7:])
	}
	received = strings.ToLower(received)
	if len(received) != len(a.expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(received), a.expected) == 1
}

// ParseWebhookEvent 解析回调请求体。
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: body is empty", ErrWebhookPayloadInvalid)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: body is not json", ErrWebhookPayloadInvalid)
	}
	payload, ok := raw["payload"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: payload is missing", ErrWebhookPayloadInvalid)
	}

	event := &WebhookEvent{
		Type:            strings.TrimSpace(readString(raw, "type")),
		MerchantOrderID: strings.TrimSpace(readString(payload, "merchantOrderId")),
		OrderID:         strings.TrimSpace(readString(payload, "orderId")),
		State:           strings.TrimSpace(readString(payload, "state")),
		Raw:             raw,
	}
	if details, ok := payload["paymentDetails"].([]interface{}); ok {
		event.PaymentDetails = details
	}
	if value, exists := payload["amount"]; exists && value != nil {
		amount, err := cast.ToInt64E(value)
		if err != nil || amount < 0 {
			return nil, fmt.Errorf("%w: amount is invalid", ErrWebhookPayloadInvalid)
		}
		event.AmountMinor = amount
		event.HasAmount = true
	}
	if event.TransactionID() == "" {
		return nil, fmt.Errorf("%w: order id is missing", ErrWebhookPayloadInvalid)
	}
	if event.EffectiveState() == "" {
		return nil, fmt.Errorf("%w: state is missing", ErrWebhookPayloadInvalid)
	}
	return event, nil
}

// TransactionID 本地交易号：优先商户订单号，其次 orderId。
func (e *WebhookEvent) TransactionID() string {
	if e == nil {
		return ""
	}
	if e.MerchantOrderID != "" {
		return e.MerchantOrderID
	}
	return e.OrderID
}

// EffectiveState 优先使用 payload.state，缺省时退回事件类型。
func (e *WebhookEvent) EffectiveState() string {
	if e == nil {
		return ""
	}
	if e.State != "" {
		return e.State
	}
	return e.Type
}
