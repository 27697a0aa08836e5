package phonepe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cast"
	"golang.org/x/sync/singleflight"
)

var (
	ErrConfigInvalid   = errors.New("phonepe config invalid")
	ErrAuthFailed      = errors.New("phonepe auth failed")
	ErrRequestFailed   = errors.New("phonepe request failed")
	ErrResponseInvalid = errors.New("phonepe response invalid")
	ErrOrderNotFound   = errors.New("phonepe order not found")
)

const (
	EnvSandbox    = "SANDBOX"
	EnvProduction = "PRODUCTION"

	sandboxBaseURL     = "https://api-preprod.phonepe.com/apis/pg-sandbox"
	sandboxOAuthURL    = "https://api-preprod.phonepe.com/apis/pg-sandbox/v1/oauth/token"
	productionBaseURL  = "https://api.phonepe.com/apis/pg"
	productionOAuthURL = "https://api.phonepe.com/apis/identity-manager/v1/oauth/token"

	defaultTimeout     = 8 * time.Second
	tokenRefreshMargin = time.Minute
	maxErrorBodyBytes  = 512
)

// Config PhonePe 标准收银台配置。
type Config struct {
	ClientID      string
	ClientSecret  string
	ClientVersion string
	Env           string
	BaseURL       string
	OAuthURL      string
	Timeout       time.Duration
}

// PayInput 发起支付输入，金额为最小货币单位（派萨）。
type PayInput struct {
	MerchantOrderID string
	AmountMinor     int64
	RedirectURL     string
}

// PayResult 发起支付返回。
type PayResult struct {
	OrderID     string
	State       string
	RedirectURL string
	ExpireAt    *time.Time
}

// OrderStatus 订单状态查询结果。
type OrderStatus struct {
	OrderID         string
	MerchantOrderID string
	State           string
	AmountMinor     int64
	Raw             map[string]interface{}
}

// Client PhonePe HTTP 客户端，缓存 OAuth token。
type Client struct {
	cfg        Config
	httpClient *http.Client
	group      singleflight.Group
	now        func() time.Time

	mu        sync.Mutex
	token     string
	tokenType string
	expiresAt time.Time
}

// NewClient 创建客户端，httpClient 为空时使用带超时的默认客户端。
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	cfg.normalize()
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, httpClient: httpClient, now: time.Now}, nil
}

// ValidateConfig 校验配置。
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return fmt.Errorf("%w: client_id is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return fmt.Errorf("%w: client_secret is required", ErrConfigInvalid)
	}
	if cfg.Env != EnvSandbox && cfg.Env != EnvProduction {
		return fmt.Errorf("%w: env must be SANDBOX or PRODUCTION", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return fmt.Errorf("%w: base_url is invalid", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(cfg.OAuthURL); err != nil {
		return fmt.Errorf("%w: oauth_url is invalid", ErrConfigInvalid)
	}
	return nil
}

func (c *Config) normalize() {
	c.ClientID = strings.TrimSpace(c.ClientID)
	c.ClientSecret = strings.TrimSpace(c.ClientSecret)
	c.ClientVersion = strings.TrimSpace(c.ClientVersion)
	if c.ClientVersion == "" {
		c.ClientVersion = "1"
	}
	c.Env = strings.ToUpper(strings.TrimSpace(c.Env))
	if c.Env == "" {
		c.Env = EnvSandbox
	}
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.OAuthURL = strings.TrimSpace(c.OAuthURL)
	switch c.Env {
	case EnvProduction:
		if c.BaseURL == "" {
			c.BaseURL = productionBaseURL
		}
		if c.OAuthURL == "" {
			c.OAuthURL = productionOAuthURL
		}
	default:
		if c.BaseURL == "" {
			c.BaseURL = sandboxBaseURL
		}
		if c.OAuthURL == "" {
			c.OAuthURL = sandboxOAuthURL
		}
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}

// Pay 创建标准收银台订单。
func (c *Client) Pay(ctx context.Context, input PayInput) (*PayResult, error) {
	input.MerchantOrderID = strings.TrimSpace(input.MerchantOrderID)
	if input.MerchantOrderID == "" || input.AmountMinor <= 0 {
		return nil, fmt.Errorf("%w: pay input is invalid", ErrConfigInvalid)
	}

	payload := map[string]interface{}{
		"merchantOrderId": input.MerchantOrderID,
		"amount":          input.AmountMinor,
		"paymentFlow": map[string]interface{}{
			"type": "PG_CHECKOUT",
			"merchantUrls": map[string]string{
				"redirectUrl": strings.TrimSpace(input.RedirectURL),
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request failed", ErrRequestFailed)
	}

	raw, err := c.call(ctx, http.MethodPost, "/checkout/v2/pay", body)
	if err != nil {
		return nil, err
	}

	result := &PayResult{
		OrderID:     strings.TrimSpace(readString(raw, "orderId")),
		State:       strings.TrimSpace(readString(raw, "state")),
		RedirectURL: strings.TrimSpace(readString(raw, "redirectUrl")),
	}
	if expireAt, err := cast.ToInt64E(raw["expireAt"]); err == nil && expireAt > 0 {
		parsed := time.UnixMilli(expireAt)
		result.ExpireAt = &parsed
	}
	if result.RedirectURL == "" {
		return nil, fmt.Errorf("%w: missing redirect url", ErrResponseInvalid)
	}
	return result, nil
}

// OrderStatus 查询订单状态。
func (c *Client) OrderStatus(ctx context.Context, merchantOrderID string) (*OrderStatus, error) {
	merchantOrderID = strings.TrimSpace(merchantOrderID)
	if merchantOrderID == "" {
		return nil, fmt.Errorf("%w: merchant order id is empty", ErrConfigInvalid)
	}

	endpoint := "/checkout/v2/order/" + url.PathEscape(merchantOrderID) + "/status"
	raw, err := c.call(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	status := &OrderStatus{
		OrderID:         strings.TrimSpace(readString(raw, "orderId")),
		MerchantOrderID: merchantOrderID,
		State:           strings.TrimSpace(readString(raw, "state")),
		Raw:             raw,
	}
	if amount, err := cast.ToInt64E(raw["amount"]); err == nil {
		status.AmountMinor = amount
	}
	if status.State == "" {
		return nil, fmt.Errorf("%w: missing order state", ErrResponseInvalid)
	}
	return status, nil
}

// call 发送带鉴权的请求，token 失效时刷新后重试一次
func (c *Client) call(ctx context.Context, method, endpoint string, body []byte) (map[string]interface{}, error) {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.accessToken(ctx)
		if err != nil {
			return nil, err
		}
		respBody, statusCode, err := c.doRequest(ctx, method, c.cfg.BaseURL+endpoint, token, body)
		if err != nil {
			return nil, err
		}
		if statusCode == http.StatusUnauthorized && attempt == 0 {
			c.invalidateToken(token)
			continue
		}
		return decodeResponse(respBody, statusCode)
	}
	return nil, fmt.Errorf("%w: token rejected", ErrAuthFailed)
}

func decodeResponse(respBody []byte, statusCode int) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &raw); err != nil && statusCode < 300 {
			return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
		}
	}
	if statusCode >= 200 && statusCode < 300 {
		if raw == nil {
			return nil, fmt.Errorf("%w: empty response", ErrResponseInvalid)
		}
		return raw, nil
	}

	code := strings.ToUpper(strings.TrimSpace(readString(raw, "code")))
	switch {
	case statusCode == http.StatusNotFound, code == "ORDER_NOT_FOUND", code == "INVALID_MERCHANT_ORDER_ID":
		return nil, fmt.Errorf("%w: status %d code %s", ErrOrderNotFound, statusCode, code)
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrAuthFailed, statusCode)
	case statusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrRequestFailed, statusCode)
	default:
		return nil, fmt.Errorf("%w: status %d code %s body %s", ErrResponseInvalid, statusCode, code, truncate(respBody))
	}
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && c.now().Add(tokenRefreshMargin).Before(c.expiresAt) {
		token := c.tokenType + " " + c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	// 并发请求共用一次刷新
	value, err, _ := c.group.Do("token", func() (interface{}, error) {
		return c.fetchToken(ctx)
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

func (c *Client) fetchToken(ctx context.Context) (string, error) {
	values := url.Values{}
	values.Set("client_id", c.cfg.ClientID)
	values.Set("client_version", c.cfg.ClientVersion)
	values.Set("client_secret", c.cfg.ClientSecret)
	values.Set("grant_type", "client_credentials")

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OAuthURL, strings.NewReader(values.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: build token request failed", ErrAuthFailed)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: request token failed: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read token response failed", ErrRequestFailed)
	}
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: token status %d", ErrRequestFailed, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: token status %d", ErrAuthFailed, resp.StatusCode)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode token response failed", ErrAuthFailed)
	}
	token := strings.TrimSpace(readString(parsed, "access_token"))
	if token == "" {
		return "", fmt.Errorf("%w: access_token is empty", ErrAuthFailed)
	}
	tokenType := strings.TrimSpace(readString(parsed, "token_type"))
	if tokenType == "" {
		tokenType = "O-Bearer"
	}
	expiresAt := c.now().Add(tokenRefreshMargin * 5)
	if epoch, err := cast.ToInt64E(parsed["expires_at"]); err == nil && epoch > 0 {
		expiresAt = time.Unix(epoch, 0)
	}

	c.mu.Lock()
	c.token = token
	c.tokenType = tokenType
	c.expiresAt = expiresAt
	c.mu.Unlock()
	return tokenType + " " + token, nil
}

func (c *Client) invalidateToken(header string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokenType+" "+c.token == header {
		c.token = ""
		c.expiresAt = time.Time{}
	}
}

func (c *Client) doRequest(ctx context.Context, method, endpoint, token string, body []byte) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: http request failed: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response failed", ErrRequestFailed)
	}
	return respBody, resp.StatusCode, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

func readString(raw map[string]interface{}, key string) string {
	if raw == nil {
		return ""
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return ""
	}
	return cast.ToString(value)
}

func truncate(body []byte) string {
	if len(body) <= maxErrorBodyBytes {
		return string(body)
	}
	return string(body[:maxErrorBodyBytes]) + "...(truncated)"
}
