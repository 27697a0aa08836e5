package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paytrack-next/internal/logger"
	"github.com/paytrack-next/internal/models"
	"github.com/paytrack-next/internal/payment/phonepe"

	"github.com/shopspring/decimal"
)

// GatewayCheckout 网关下单结果
type GatewayCheckout struct {
	GatewayOrderID string
	CheckoutURL    string
	State          string
}

// GatewayStatus 网关状态查询结果
type GatewayStatus struct {
	GatewayOrderID string
	RawState       string
	AmountMinor    int64
	HasAmount      bool
}

// Amount 返回主单位金额
func (s GatewayStatus) Amount() *decimal.Decimal {
	if !s.HasAmount {
		return nil
	}
	amount := models.FromMinorUnits(s.AmountMinor)
	return &amount
}

// PaymentGateway 支付网关适配接口，商户订单号即本地交易号
type PaymentGateway interface {
	Initiate(ctx context.Context, transactionID string, amount decimal.Decimal, redirectURL string) (GatewayCheckout, error)
	QueryStatus(ctx context.Context, transactionID string) (GatewayStatus, error)
}

// GatewayPolicy 网关调用策略
type GatewayPolicy struct {
	Timeout          time.Duration
	QueryMaxRetries  int
	CreateMaxRetries int
	Backoff          time.Duration
}

// DefaultGatewayPolicy 默认网关调用策略
func DefaultGatewayPolicy() GatewayPolicy {
	return GatewayPolicy{
		Timeout:          8 * time.Second,
		QueryMaxRetries:  2,
		CreateMaxRetries: 0,
		Backoff:          300 * time.Millisecond,
	}
}

// RetryingGateway 为网关调用增加超时与重试
type RetryingGateway struct {
	next   PaymentGateway
	policy GatewayPolicy
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetryingGateway 创建带策略的网关
func NewRetryingGateway(next PaymentGateway, policy GatewayPolicy) *RetryingGateway {
	if policy.Timeout <= 0 {
		policy.Timeout = 8 * time.Second
	}
	if policy.QueryMaxRetries < 0 {
		policy.QueryMaxRetries = 0
	}
	if policy.QueryMaxRetries > 2 {
		policy.QueryMaxRetries = 2
	}
	if policy.CreateMaxRetries < 0 {
		policy.CreateMaxRetries = 0
	}
	return &RetryingGateway{next: next, policy: policy, sleep: sleepContext}
}

// Initiate 发起支付，下单有远端副作用，默认不重试
func (g *RetryingGateway) Initiate(ctx context.Context, transactionID string, amount decimal.Decimal, redirectURL string) (GatewayCheckout, error) {
	var result GatewayCheckout
	err := g.retry(ctx, "initiate", transactionID, g.policy.CreateMaxRetries, func(callCtx context.Context) error {
		var callErr error
		result, callErr = g.next.Initiate(callCtx, transactionID, amount, redirectURL)
		return callErr
	})
	return result, err
}

// QueryStatus 查询支付状态，仅在网关不可用时重试
func (g *RetryingGateway) QueryStatus(ctx context.Context, transactionID string) (GatewayStatus, error) {
	var result GatewayStatus
	err := g.retry(ctx, "query_status", transactionID, g.policy.QueryMaxRetries, func(callCtx context.Context) error {
		var callErr error
		result, callErr = g.next.QueryStatus(callCtx, transactionID)
		return callErr
	})
	return result, err
}

func (g *RetryingGateway) retry(ctx context.Context, op, transactionID string, retries int, call func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			if sleepErr := g.sleep(ctx, time.Duration(attempt)*g.policy.Backoff); sleepErr != nil {
				return fmt.Errorf("%w: %v", ErrGatewayUnavailable, sleepErr)
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, g.policy.Timeout)
		err = call(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrGatewayUnavailable) {
			return err
		}
		logger.FromContext(ctx,
			"op", op,
			"transaction_id", transactionID,
			"attempt", attempt+1,
		).Warnw("payment_gateway_call_failed", "error", err)
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// phonePeClient PhonePe 客户端能力
type phonePeClient interface {
	Pay(ctx context.Context, input phonepe.PayInput) (*phonepe.PayResult, error)
	OrderStatus(ctx context.Context, merchantOrderID string) (*phonepe.OrderStatus, error)
}

// PhonePeGateway PhonePe 网关适配
type PhonePeGateway struct {
	client phonePeClient
}

// NewPhonePeGateway 创建 PhonePe 网关适配
func NewPhonePeGateway(client *phonepe.Client) *PhonePeGateway {
	return &PhonePeGateway{client: client}
}

// Initiate 发起标准收银台支付
func (g *PhonePeGateway) Initiate(ctx context.Context, transactionID string, amount decimal.Decimal, redirectURL string) (GatewayCheckout, error) {
	if !amount.IsPositive() {
		return GatewayCheckout{}, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	minor, err := models.ToMinorUnits(amount)
	if err != nil {
		return GatewayCheckout{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	result, err := g.client.Pay(ctx, phonepe.PayInput{
		MerchantOrderID: strings.TrimSpace(transactionID),
		AmountMinor:     minor,
		RedirectURL:     redirectURL,
	})
	if err != nil {
		return GatewayCheckout{}, mapPhonePeError(err)
	}
	if strings.TrimSpace(result.RedirectURL) == "" {
		return GatewayCheckout{}, fmt.Errorf("%w: empty checkout url", ErrGatewayUnavailable)
	}
	return GatewayCheckout{
		GatewayOrderID: result.OrderID,
		CheckoutURL:    result.RedirectURL,
		State:          result.State,
	}, nil
}

// QueryStatus 查询订单状态
func (g *PhonePeGateway) QueryStatus(ctx context.Context, transactionID string) (GatewayStatus, error) {
	status, err := g.client.OrderStatus(ctx, strings.TrimSpace(transactionID))
	if err != nil {
		return GatewayStatus{}, mapPhonePeError(err)
	}
	return GatewayStatus{
		GatewayOrderID: status.OrderID,
		RawState:       status.State,
		AmountMinor:    status.AmountMinor,
		HasAmount:      status.AmountMinor > 0,
	}, nil
}

func mapPhonePeError(err error) error {
	if err == nil {
		return nil
	}
	// 除订单不存在外均视为网关暂不可用（超时、鉴权、5xx、响应异常）
	if errors.Is(err, phonepe.ErrOrderNotFound) {
		return fmt.Errorf("%w: %v", ErrGatewayNotFound, err)
	}
	return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
}

// UnavailableGateway 网关未配置时的占位实现，所有调用返回网关不可用
type UnavailableGateway struct {
	reason error
}

// NewUnavailableGateway 创建占位网关
func NewUnavailableGateway(reason error) *UnavailableGateway {
	return &UnavailableGateway{reason: reason}
}

// Initiate 返回网关不可用
func (g *UnavailableGateway) Initiate(context.Context, string, decimal.Decimal, string) (GatewayCheckout, error) {
	return GatewayCheckout{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, g.reason)
}

// QueryStatus 返回网关不可用
func (g *UnavailableGateway) QueryStatus(context.Context, string) (GatewayStatus, error) {
	return GatewayStatus{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, g.reason)
}
