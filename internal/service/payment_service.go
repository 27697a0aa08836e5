package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paytrack-next/internal/constants"
	"github.com/paytrack-next/internal/logger"
	"github.com/paytrack-next/internal/models"
	"github.com/paytrack-next/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatsCache 支付统计缓存
type PaymentStatsCache interface {
	GetPaymentStats(ctx context.Context) ([]repository.PaymentStatRow, bool, error)
	SetPaymentStats(ctx context.Context, rows []repository.PaymentStatRow) error
}

// WebhookVerifier 网关回调鉴权
type WebhookVerifier interface {
	Verify(authorization string) bool
}

// PaymentSettings 支付业务参数
type PaymentSettings struct {
	Redirect        RedirectConfig
	PollDelay       time.Duration
	PollMaxAttempts int
	SweepMinAge     time.Duration
	SweepMaxAge     time.Duration
	SweepBatchSize  int
}

// PaymentService 支付服务
type PaymentService struct {
	paymentRepo repository.PaymentRepository
	orderRepo   repository.OrderRepository
	storeRepo   repository.StoreRepository
	gateway     PaymentGateway
	reconciler  *Reconciler
	dispatcher  *Dispatcher
	webhookAuth WebhookVerifier
	scheduler   StatusPollScheduler
	statsCache  PaymentStatsCache
	settings    PaymentSettings
	now         func() time.Time
}

// NewPaymentService 创建支付服务
func NewPaymentService(paymentRepo repository.PaymentRepository, orderRepo repository.OrderRepository, storeRepo repository.StoreRepository, gateway PaymentGateway, reconciler *Reconciler, dispatcher *Dispatcher, webhookAuth WebhookVerifier, scheduler StatusPollScheduler, statsCache PaymentStatsCache, settings PaymentSettings) *PaymentService {
	if settings.PollMaxAttempts < 0 {
		settings.PollMaxAttempts = 0
	}
	if settings.SweepBatchSize <= 0 {
		settings.SweepBatchSize = 50
	}
	return &PaymentService{
		paymentRepo: paymentRepo,
		orderRepo:   orderRepo,
		storeRepo:   storeRepo,
		gateway:     gateway,
		reconciler:  reconciler,
		dispatcher:  dispatcher,
		webhookAuth: webhookAuth,
		scheduler:   scheduler,
		statsCache:  statsCache,
		settings:    settings,
		now:         time.Now,
	}
}

// CreatePaymentInput 创建支付请求
type CreatePaymentInput struct {
	UserID        uint
	OrderID       uint
	StoreID       *uint
	Amount        decimal.Decimal
	PaymentMethod string
	Platform      string
	UserAgent     string
	DeviceInfo    map[string]interface{}
	Context       context.Context
}

// CreatePaymentResult 创建支付结果
type CreatePaymentResult struct {
	Payment *models.Payment
}

// CreatePayment 创建支付记录并向网关下单
func (s *PaymentService) CreatePayment(input CreatePaymentInput) (*CreatePaymentResult, error) {
	ctx := input.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if input.OrderID == 0 {
		return nil, fmt.Errorf("%w: order_id is required", ErrPaymentInvalid)
	}
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if !models.HasMinorUnitPrecision(input.Amount) {
		return nil, fmt.Errorf("%w: at most 2 decimal places", ErrInvalidAmount)
	}
	method := strings.ToLower(strings.TrimSpace(input.PaymentMethod))
	if method == "" {
		method = constants.PaymentMethodGateway
	}
	if method != constants.PaymentMethodGateway && method != constants.PaymentMethodCOD {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPaymentMethod, method)
	}
	platform, err := resolvePlatform(input.Platform, input.UserAgent, input.DeviceInfo)
	if err != nil {
		return nil, err
	}

	order, err := s.orderRepo.GetByID(input.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil || order.UserID != input.UserID {
		return nil, ErrOrderNotFound
	}
	storeID := input.StoreID
	if storeID == nil {
		storeID = order.StoreID
	}
	var store *models.Store
	if storeID != nil {
		store, err = s.storeRepo.GetByID(*storeID)
		if err != nil {
			return nil, err
		}
		if store == nil {
			return nil, ErrStoreNotFound
		}
	}

	transactionID := uuid.NewString()
	redirect := RedirectInput{Platform: platform, TransactionID: transactionID, OrderID: order.ID}
	if store != nil {
		redirect.StoreWebsiteURL = store.WebsiteURL
	}
	payment := &models.Payment{
		OrderID:        order.ID,
		StoreID:        storeID,
		PaymentMethod:  method,
		PaymentGateway: constants.PaymentGatewayPhonePe,
		Amount:         models.NewMoneyFromDecimal(input.Amount),
		Status:         constants.PaymentStatusPending,
		TransactionID:  transactionID,
		RedirectURL:    ResolveRedirectURL(redirect, s.settings.Redirect),
		Platform:       platform,
	}
	if platform == constants.PlatformMobile && len(input.DeviceInfo) > 0 {
		payment.DeviceInfo = models.JSON(input.DeviceInfo)
	}
	if err := s.paymentRepo.Create(payment); err != nil {
		return nil, err
	}
	payment.Order = order

	log := logger.FromContext(ctx,
		"transaction_id", transactionID,
		"order_id", order.ID,
		"platform", platform,
		"payment_method", method,
	)
	log.Infow("payment_created", "amount", payment.Amount.String())
	if !payment.IsGateway() {
		return &CreatePaymentResult{Payment: payment}, nil
	}

	checkout, err := s.gateway.Initiate(ctx, transactionID, input.Amount, payment.RedirectURL)
	if err != nil {
		log.Errorw("payment_gateway_initiate_failed", "error", err)
		if errors.Is(err, ErrInvalidAmount) {
			return &CreatePaymentResult{Payment: payment}, err
		}
		if !errors.Is(err, ErrGatewayUnavailable) {
			err = fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		return &CreatePaymentResult{Payment: payment}, err
	}
	if err := s.paymentRepo.UpdateCheckout(payment.ID, checkout.GatewayOrderID, checkout.CheckoutURL); err != nil {
		log.Errorw("payment_checkout_persist_failed", "error", err)
		return &CreatePaymentResult{Payment: payment}, err
	}
	payment.GatewayOrderID = checkout.GatewayOrderID
	payment.PaymentURL = checkout.CheckoutURL
	log.Infow("payment_gateway_initiated", "gateway_order_id", checkout.GatewayOrderID)

	if status, recognized := NormalizeGatewayState(checkout.State); recognized && status != constants.PaymentStatusPending {
		result, err := s.reconciler.Apply(ctx, ReconcileInput{
			TransactionID: transactionID,
			RawState:      checkout.State,
			Channel:       constants.ReconcileChannelCreate,
		})
		if err == nil && result.Payment != nil {
			payment.Status = result.Payment.Status
			payment.PaymentDate = result.Payment.PaymentDate
		}
	}
	if payment.Status == constants.PaymentStatusPending {
		s.schedulePoll(ctx, transactionID, 1)
	}
	return &CreatePaymentResult{Payment: payment}, nil
}

// ListPaymentsInput 支付列表查询参数
type ListPaymentsInput struct {
	UserID   uint
	Page     int
	PageSize int
	Status   string
	Platform string
	Ordering string
}

// ListPayments 查询当前用户订单下的支付记录
func (s *PaymentService) ListPayments(input ListPaymentsInput) ([]models.Payment, int64, int, int, error) {
	page, pageSize := normalizePagination(input.Page, input.PageSize)
	ordering := strings.TrimSpace(input.Ordering)
	if ordering == "" {
		ordering = constants.DefaultPaymentOrdering
	}
	if _, ok := repository.ResolvePaymentOrdering(ordering); !ok {
		return nil, 0, page, pageSize, fmt.Errorf("%w: %s", ErrInvalidOrdering, ordering)
	}
	status := strings.ToLower(strings.TrimSpace(input.Status))
	if status != "" && !IsValidPaymentStatus(status) {
		return nil, 0, page, pageSize, fmt.Errorf("%w: unknown status %s", ErrValidation, status)
	}
	platform := strings.ToLower(strings.TrimSpace(input.Platform))
	if platform != "" && !isValidPlatform(platform) {
		return nil, 0, page, pageSize, fmt.Errorf("%w: %s", ErrInvalidPlatform, platform)
	}
	payments, total, err := s.paymentRepo.List(repository.PaymentListFilter{
		Page:     page,
		PageSize: pageSize,
		UserID:   input.UserID,
		Status:   status,
		Platform: platform,
		Ordering: ordering,
	})
	if err != nil {
		return nil, 0, page, pageSize, err
	}
	return payments, total, page, pageSize, nil
}

// VerifyResult 主动查询结果
type VerifyResult struct {
	Payment          *models.Payment
	Outcome          string
	Changed          bool
	NotificationSent bool
}

// VerifyPayment 向网关查询最新状态并对账，客户端声明的状态不参与写入
func (s *PaymentService) VerifyPayment(ctx context.Context, transactionID string) (*VerifyResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, fmt.Errorf("%w: transaction_id is required", ErrValidation)
	}
	payment, err := s.paymentRepo.GetByTransactionID(transactionID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	if !payment.IsGateway() {
		return &VerifyResult{Payment: payment, Outcome: constants.ReconcileOutcomeUnchanged}, nil
	}
	result, err := s.reconcileFromGateway(ctx, transactionID, constants.ReconcileChannelVerify)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{
		Payment:          result.Payment,
		Outcome:          result.Outcome,
		Changed:          result.Changed(),
		NotificationSent: result.NotificationSent,
	}, nil
}

// MobileCallbackInput 移动端支付回跳上报
type MobileCallbackInput struct {
	TransactionID string
	Status        string
	Amount        *decimal.Decimal
	OrderID       uint
	Platform      string
	Context       context.Context
}

// MobileCallbackResult 移动端回跳处理结果
type MobileCallbackResult struct {
	Payment *models.Payment
	Updated bool
}

// HandleMobileCallback 处理移动端回跳，以网关查询结果为准
func (s *PaymentService) HandleMobileCallback(input MobileCallbackInput) (*MobileCallbackResult, error) {
	ctx := input.Context
	if ctx == nil {
		ctx = context.Background()
	}
	transactionID := strings.TrimSpace(input.TransactionID)
	if transactionID == "" {
		return nil, fmt.Errorf("%w: transaction_id is required", ErrValidation)
	}
	payment, err := s.paymentRepo.GetByTransactionID(transactionID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	if !payment.IsGateway() {
		return nil, ErrPaymentMethodNotSupported
	}
	log := logger.FromContext(ctx, "transaction_id", transactionID, "channel", constants.ReconcileChannelCallback)
	if input.OrderID != 0 && input.OrderID != payment.OrderID {
		log.Warnw("payment_callback_order_mismatch", "reported_order_id", input.OrderID, "order_id", payment.OrderID)
	}
	if input.Amount != nil && !input.Amount.Equal(payment.Amount.Decimal) {
		log.Warnw("payment_callback_amount_mismatch", "reported_amount", input.Amount.StringFixed(2), "amount", payment.Amount.String())
	}

	result, err := s.reconcileFromGateway(ctx, transactionID, constants.ReconcileChannelCallback)
	if err != nil {
		return nil, err
	}
	asserted, _ := NormalizeGatewayState(input.Status)
	if strings.TrimSpace(input.Status) != "" && asserted != result.Payment.Status {
		log.Warnw("payment_callback_status_mismatch",
			"reported_status", input.Status,
			"verified_status", result.Payment.Status,
		)
	}
	return &MobileCallbackResult{Payment: result.Payment, Updated: result.Changed()}, nil
}

// WebhookInput 网关回调输入
type WebhookInput struct {
	Authorization string
	Body          []byte
	Context       context.Context
}

// WebhookResult 网关回调处理结果
type WebhookResult struct {
	Outcome          string
	Status           string
	NotificationSent bool
	Payment          *models.Payment
}

// HandleWebhook 鉴权、解析回调并交给对账引擎
func (s *PaymentService) HandleWebhook(input WebhookInput) (*WebhookResult, error) {
	ctx := input.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if s.webhookAuth == nil || !s.webhookAuth.Verify(input.Authorization) {
		return nil, ErrWebhookUnauthorized
	}
	event, err := parseWebhookBody(input.Body)
	if err != nil {
		return nil, err
	}
	transactionID := event.TransactionID()
	rawState := event.EffectiveState()
	var amount *decimal.Decimal
	if event.HasAmount {
		value := models.FromMinorUnits(event.AmountMinor)
		amount = &value
	}
	log := logger.FromContext(ctx, "transaction_id", transactionID, "event_type", event.Type)
	log.Infow("payment_webhook_received", "state", rawState)

	result, err := s.reconciler.Apply(ctx, ReconcileInput{
		TransactionID: transactionID,
		RawState:      rawState,
		Channel:       constants.ReconcileChannelWebhook,
		Amount:        amount,
	})
	if errors.Is(err, ErrPaymentNotFound) {
		status, _ := NormalizeGatewayState(rawState)
		notifyAmount := decimal.Zero
		if amount != nil {
			notifyAmount = *amount
		}
		sent := s.dispatcher.DispatchLegacy(context.WithoutCancel(ctx), transactionID, status, notifyAmount)
		return &WebhookResult{Outcome: constants.ReconcileOutcomeNotFound, Status: status, NotificationSent: sent}, nil
	}
	if err != nil {
		return nil, err
	}
	return &WebhookResult{
		Outcome:          result.Outcome,
		Status:           result.Payment.Status,
		NotificationSent: result.NotificationSent,
		Payment:          result.Payment,
	}, nil
}

// Stats 按平台与状态统计支付
func (s *PaymentService) Stats(ctx context.Context) ([]repository.PaymentStatRow, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.statsCache != nil {
		rows, ok, err := s.statsCache.GetPaymentStats(ctx)
		if err != nil {
			logger.FromContext(ctx).Warnw("payment_stats_cache_get_failed", "error", err)
		} else if ok {
			return rows, nil
		}
	}
	rows, err := s.paymentRepo.Stats()
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []repository.PaymentStatRow{}
	}
	if s.statsCache != nil {
		if err := s.statsCache.SetPaymentStats(ctx, rows); err != nil {
			logger.FromContext(ctx).Warnw("payment_stats_cache_set_failed", "error", err)
		}
	}
	return rows, nil
}

// PollStatus 处理延迟轮询，仍待支付时安排下一轮
func (s *PaymentService) PollStatus(ctx context.Context, transactionID string, attempt int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.FromContext(ctx, "transaction_id", transactionID, "attempt", attempt)
	payment, err := s.paymentRepo.GetByTransactionID(transactionID)
	if err != nil {
		return err
	}
	if payment == nil {
		log.Warnw("payment_poll_record_missing")
		return nil
	}
	if !payment.IsGateway() || payment.Status != constants.PaymentStatusPending {
		return nil
	}
	result, err := s.reconcileFromGateway(ctx, transactionID, constants.ReconcileChannelPoll)
	if err != nil && !errors.Is(err, ErrGatewayUnavailable) {
		log.Warnw("payment_poll_failed", "error", err)
		return nil
	}
	if err == nil && result.Payment != nil && result.Payment.Status != constants.PaymentStatusPending {
		return nil
	}
	if attempt >= s.settings.PollMaxAttempts {
		log.Infow("payment_poll_exhausted")
		return nil
	}
	s.schedulePoll(ctx, transactionID, attempt+1)
	return nil
}

// SweepResult 批量对账结果
type SweepResult struct {
	Checked int
	Applied int
	Failed  int
}

// SweepPending 对长时间未完成的网关支付批量查询对账
func (s *PaymentService) SweepPending(ctx context.Context) (*SweepResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	now := s.now()
	minAge := s.settings.SweepMinAge
	if minAge <= 0 {
		minAge = 10 * time.Minute
	}
	maxAge := s.settings.SweepMaxAge
	if maxAge <= 0 {
		maxAge = 48 * time.Hour
	}
	payments, err := s.paymentRepo.ListStalePending(now.Add(-minAge), now.Add(-maxAge), s.settings.SweepBatchSize)
	if err != nil {
		return nil, err
	}
	result := &SweepResult{}
	for _, payment := range payments {
		if ctx.Err() != nil {
			break
		}
		result.Checked++
		reconciled, err := s.reconcileFromGateway(ctx, payment.TransactionID, constants.ReconcileChannelSweep)
		if err != nil {
			result.Failed++
			logger.FromContext(ctx, "transaction_id", payment.TransactionID).Warnw("payment_sweep_item_failed", "error", err)
			continue
		}
		if reconciled.Changed() {
			result.Applied++
		}
	}
	if result.Checked > 0 {
		logger.FromContext(ctx).Infow("payment_sweep_completed",
			"checked", result.Checked,
			"applied", result.Applied,
			"failed", result.Failed,
		)
	}
	return result, nil
}

func (s *PaymentService) reconcileFromGateway(ctx context.Context, transactionID, channel string) (*ReconcileResult, error) {
	status, err := s.gateway.QueryStatus(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	return s.reconciler.Apply(ctx, ReconcileInput{
		TransactionID: transactionID,
		RawState:      status.RawState,
		Channel:       channel,
		Amount:        status.Amount(),
	})
}

func (s *PaymentService) schedulePoll(ctx context.Context, transactionID string, attempt int) {
	if s.scheduler == nil || attempt > s.settings.PollMaxAttempts {
		return
	}
	delay := s.settings.PollDelay
	if delay <= 0 {
		delay = time.Minute
	}
	if err := s.scheduler.SchedulePoll(ctx, transactionID, attempt, delay*time.Duration(attempt)); err != nil {
		logger.FromContext(ctx, "transaction_id", transactionID).Warnw("payment_poll_schedule_failed", "attempt", attempt, "error", err)
	}
}

func resolvePlatform(platform, userAgent string, deviceInfo map[string]interface{}) (string, error) {
	platform = strings.ToLower(strings.TrimSpace(platform))
	if platform == "" {
		if strings.Contains(strings.ToLower(userAgent), "react-native") || len(deviceInfo) > 0 {
			return constants.PlatformMobile, nil
		}
		return constants.PlatformWeb, nil
	}
	if !isValidPlatform(platform) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPlatform, platform)
	}
	return platform, nil
}

func isValidPlatform(platform string) bool {
	switch platform {
	case constants.PlatformWeb, constants.PlatformMobile, constants.PlatformAPI:
		return true
	}
	return false
}

func normalizePagination(page, pageSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = constants.DefaultPaymentPageSize
	}
	if pageSize > constants.MaxPaymentPageSize {
		pageSize = constants.MaxPaymentPageSize
	}
	return page, pageSize
}
