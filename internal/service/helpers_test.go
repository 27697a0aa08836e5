package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/paytrack-next/internal/constants"
	"github.com/paytrack-next/internal/models"
	"github.com/paytrack-next/internal/payment/phonepe"
	"github.com/paytrack-next/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	testWebhookUser     = "hook-user"
	testWebhookPassword = "hook-pass"
)

type fakeGateway struct {
	mu            sync.Mutex
	initiateCalls []string
	queryCalls    int
	initiate      func(ctx context.Context, transactionID string, amount decimal.Decimal, redirectURL string) (GatewayCheckout, error)
	query         func(ctx context.Context, transactionID string) (GatewayStatus, error)
}

func (g *fakeGateway) Initiate(ctx context.Context, transactionID string, amount decimal.Decimal, redirectURL string) (GatewayCheckout, error) {
	g.mu.Lock()
	g.initiateCalls = append(g.initiateCalls, transactionID)
	fn := g.initiate
	g.mu.Unlock()
	if fn != nil {
		return fn(ctx, transactionID, amount, redirectURL)
	}
	return GatewayCheckout{
		GatewayOrderID: "OMO-" + transactionID,
		CheckoutURL:    "https://mercury.example.com/checkout/" + transactionID,
		State:          "PENDING",
	}, nil
}

func (g *fakeGateway) QueryStatus(ctx context.Context, transactionID string) (GatewayStatus, error) {
	g.mu.Lock()
	g.queryCalls++
	fn := g.query
	g.mu.Unlock()
	if fn != nil {
		return fn(ctx, transactionID)
	}
	return GatewayStatus{RawState: "PENDING"}, nil
}

func (g *fakeGateway) setQueryState(state string, amountMinor int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.query = func(context.Context, string) (GatewayStatus, error) {
		return GatewayStatus{RawState: state, AmountMinor: amountMinor, HasAmount: amountMinor > 0}, nil
	}
}

type recordingSender struct {
	mu            sync.Mutex
	notifications []PaymentNotification
	err           error
}

func (s *recordingSender) Send(_ context.Context, notification PaymentNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.notifications = append(s.notifications, notification)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notifications)
}

func (s *recordingSender) last() PaymentNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.notifications) == 0 {
		return PaymentNotification{}
	}
	return s.notifications[len(s.notifications)-1]
}

type recordingListener struct {
	mu     sync.Mutex
	events []TransitionEvent
}

func (l *recordingListener) OnPaymentTransition(_ context.Context, event TransitionEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *recordingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

type scheduledPoll struct {
	TransactionID string
	Attempt       int
	Delay         time.Duration
}

type recordingScheduler struct {
	mu    sync.Mutex
	polls []scheduledPoll
}

func (s *recordingScheduler) SchedulePoll(_ context.Context, transactionID string, attempt int, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls = append(s.polls, scheduledPoll{TransactionID: transactionID, Attempt: attempt, Delay: delay})
	return nil
}

type memoryStatsCache struct {
	rows []repository.PaymentStatRow
	hit  bool
	sets int
}

func (c *memoryStatsCache) GetPaymentStats(context.Context) ([]repository.PaymentStatRow, bool, error) {
	return c.rows, c.hit, nil
}

func (c *memoryStatsCache) SetPaymentStats(_ context.Context, rows []repository.PaymentStatRow) error {
	c.rows = rows
	c.hit = true
	c.sets++
	return nil
}

type serviceTestEnv struct {
	db          *gorm.DB
	paymentRepo *repository.GormPaymentRepository
	orderRepo   *repository.GormOrderRepository
	storeRepo   *repository.GormStoreRepository
	eventRepo   *repository.GormPaymentEventRepository
	gateway     *fakeGateway
	push        *recordingSender
	legacy      *recordingSender
	listener    *recordingListener
	scheduler   *recordingScheduler
	statsCache  *memoryStatsCache
	reconciler  *Reconciler
	svc         *PaymentService
}

func setupServiceTest(t *testing.T, options ReconcilerOptions) *serviceTestEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:payment_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	env := &serviceTestEnv{
		db:          db,
		paymentRepo: repository.NewPaymentRepository(db),
		orderRepo:   repository.NewOrderRepository(db),
		storeRepo:   repository.NewStoreRepository(db),
		eventRepo:   repository.NewPaymentEventRepository(db),
		gateway:     &fakeGateway{},
		push:        &recordingSender{},
		legacy:      &recordingSender{},
		listener:    &recordingListener{},
		scheduler:   &recordingScheduler{},
		statsCache:  &memoryStatsCache{},
	}
	dispatcher := NewDispatcher(env.push, env.legacy)
	env.reconciler = NewReconciler(db, env.paymentRepo, env.orderRepo, env.eventRepo, dispatcher, options, env.listener)
	auth, err := phonepe.NewWebhookAuthenticator(testWebhookUser, testWebhookPassword)
	if err != nil {
		t.Fatalf("new webhook authenticator failed: %v", err)
	}
	env.svc = NewPaymentService(
		env.paymentRepo,
		env.orderRepo,
		env.storeRepo,
		env.gateway,
		env.reconciler,
		dispatcher,
		auth,
		env.scheduler,
		env.statsCache,
		PaymentSettings{
			Redirect: RedirectConfig{
				MobileDeepLinkBase: "naigaonmarketapp://payment",
				WebFallbackBaseURL: "https://nm.thelearningsetu.in",
				WebSuccessPath:     "/checkout/payment-success",
			},
			PollDelay:       time.Minute,
			PollMaxAttempts: 3,
			SweepMinAge:     10 * time.Minute,
			SweepMaxAge:     48 * time.Hour,
			SweepBatchSize:  10,
		},
	)
	return env
}

func (e *serviceTestEnv) createStore(t *testing.T, websiteURL string) *models.Store {
	t.Helper()
	store := &models.Store{Name: "Naigaon Market", WebsiteURL: websiteURL}
	if err := e.storeRepo.Create(store); err != nil {
		t.Fatalf("create store failed: %v", err)
	}
	return store
}

func (e *serviceTestEnv) createOrder(t *testing.T, orderNo string, userID uint, storeID *uint) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderNo:       orderNo,
		UserID:        userID,
		StoreID:       storeID,
		TotalAmount:   models.NewMoneyFromDecimal(decimal.RequireFromString("199.50")),
		PaymentStatus: constants.PaymentStatusPending,
	}
	if err := e.orderRepo.Create(order); err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return order
}

func (e *serviceTestEnv) createPayment(t *testing.T, order *models.Order, txn, status, platform string) *models.Payment {
	t.Helper()
	payment := &models.Payment{
		OrderID:        order.ID,
		StoreID:        order.StoreID,
		PaymentMethod:  constants.PaymentMethodGateway,
		PaymentGateway: constants.PaymentGatewayPhonePe,
		Amount:         models.NewMoneyFromDecimal(decimal.RequireFromString("199.50")),
		Status:         status,
		TransactionID:  txn,
		Platform:       platform,
	}
	if err := e.paymentRepo.Create(payment); err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	return payment
}

func (e *serviceTestEnv) reload(t *testing.T, txn string) *models.Payment {
	t.Helper()
	payment, err := e.paymentRepo.GetByTransactionID(txn)
	if err != nil {
		t.Fatalf("reload payment failed: %v", err)
	}
	if payment == nil {
		t.Fatalf("payment %s not found", txn)
	}
	return payment
}

func (e *serviceTestEnv) notificationCount() int {
	return e.push.count() + e.legacy.count()
}

var errSenderDown = errors.New("sender down")
