package service

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/paytrack-next/internal/constants"
)

// RedirectConfig 回跳地址配置
type RedirectConfig struct {
	MobileDeepLinkBase string
	WebFallbackBaseURL string
	WebSuccessPath     string
}

// RedirectInput 回跳地址计算参数
type RedirectInput struct {
	Platform        string
	TransactionID   string
	OrderID         uint
	StoreWebsiteURL string
}

// ResolveRedirectURL 按平台计算支付完成后的回跳地址
func ResolveRedirectURL(input RedirectInput, cfg RedirectConfig) string {
	transactionID := strings.TrimSpace(input.TransactionID)
	if transactionID == "" {
		transactionID = constants.PlaceholderTransactionID
	}
	encoded := fmt.Sprintf("transaction_id=%s&order_id=%d", url.QueryEscape(transactionID), input.OrderID)

	if strings.TrimSpace(input.Platform) == constants.PlatformMobile {
		base := strings.TrimSpace(cfg.MobileDeepLinkBase)
		if base == "" {
			base = "naigaonmarketapp://payment"
		}
		return base + "?" + encoded
	}

	base := normalizeWebBase(input.StoreWebsiteURL)
	if base == "" {
		base = normalizeWebBase(cfg.WebFallbackBaseURL)
	}
	if base == "" {
		base = "https://nm.thelearningsetu.in"
	}
	path := strings.TrimSpace(cfg.WebSuccessPath)
	if path == "" {
		path = "/checkout/payment-success"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path + "?" + encoded
}

func normalizeWebBase(raw string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if base == "" {
		return ""
	}
	if strings.HasPrefix(base, "http://") {
		return "https://" + strings.TrimPrefix(base, "http://")
	}
	if !strings.HasPrefix(base, "https://") {
		return "https://" + base
	}
	return base
}
