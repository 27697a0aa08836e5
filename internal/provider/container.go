package provider

import (
	"net/http"
	"time"

	"github.com/paytrack-next/internal/cache"
	"github.com/paytrack-next/internal/config"
	"github.com/paytrack-next/internal/logger"
	"github.com/paytrack-next/internal/models"
	"github.com/paytrack-next/internal/payment/phonepe"
	"github.com/paytrack-next/internal/queue"
	"github.com/paytrack-next/internal/repository"
	"github.com/paytrack-next/internal/service"

	"gorm.io/gorm"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	OrderRepo        repository.OrderRepository
	StoreRepo        repository.StoreRepository
	PaymentRepo      repository.PaymentRepository
	PaymentEventRepo repository.PaymentEventRepository

	// Payment
	Gateway        service.PaymentGateway
	Dispatcher     *service.Dispatcher
	Reconciler     *service.Reconciler
	PaymentService *service.PaymentService

	// Delivery 通知最终投递端，由 worker 消费队列任务后调用
	Delivery service.NotificationSender
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories(models.DB)

	// 2. 初始化 Services
	c.initServices(models.DB)

	return c
}

func (c *Container) initRepositories(db *gorm.DB) {
	c.OrderRepo = repository.NewOrderRepository(db)
	c.StoreRepo = repository.NewStoreRepository(db)
	c.PaymentRepo = repository.NewPaymentRepository(db)
	c.PaymentEventRepo = repository.NewPaymentEventRepository(db)
}

func (c *Container) initServices(db *gorm.DB) {
	c.Gateway = c.buildGateway()
	c.Delivery = service.LogSender{}

	// 队列可用时异步投递，否则直接写日志
	var sender service.NotificationSender = c.Delivery
	var scheduler service.StatusPollScheduler
	if c.QueueClient.Enabled() {
		sender = service.NewQueueSender(c.QueueClient)
		scheduler = service.NewQueuePollScheduler(c.QueueClient)
	}
	c.Dispatcher = service.NewDispatcher(sender, sender)

	c.Reconciler = service.NewReconciler(
		db,
		c.PaymentRepo,
		c.OrderRepo,
		c.PaymentEventRepo,
		c.Dispatcher,
		service.ReconcilerOptions{BlockOnAmountMismatch: c.Config.Payment.BlockOnAmountMismatch},
		cache.NewPaymentCacheInvalidator(),
	)

	var webhookAuth service.WebhookVerifier
	auth, err := phonepe.NewWebhookAuthenticator(c.Config.Webhook.Username, c.Config.Webhook.Password)
	if err != nil {
		logger.Warnw("provider_webhook_auth_unconfigured", "error", err)
	} else {
		webhookAuth = auth
	}

	paymentCfg := c.Config.Payment
	c.PaymentService = service.NewPaymentService(
		c.PaymentRepo,
		c.OrderRepo,
		c.StoreRepo,
		c.Gateway,
		c.Reconciler,
		c.Dispatcher,
		webhookAuth,
		scheduler,
		cache.NewPaymentStatsCache(seconds(paymentCfg.StatsCacheTTLSeconds)),
		service.PaymentSettings{
			Redirect: service.RedirectConfig{
				MobileDeepLinkBase: paymentCfg.MobileDeepLinkBase,
				WebFallbackBaseURL: paymentCfg.WebFallbackBaseURL,
				WebSuccessPath:     paymentCfg.WebSuccessPath,
			},
			PollDelay:       seconds(paymentCfg.PollDelaySeconds),
			PollMaxAttempts: paymentCfg.PollMaxAttempts,
			SweepMinAge:     seconds(paymentCfg.SweepMinAgeSeconds),
			SweepMaxAge:     time.Duration(paymentCfg.SweepMaxAgeHours) * time.Hour,
			SweepBatchSize:  paymentCfg.SweepBatchSize,
		},
	)
}

func (c *Container) buildGateway() service.PaymentGateway {
	phonePeCfg := c.Config.PhonePe
	client, err := phonepe.NewClient(phonepe.Config{
		ClientID:      phonePeCfg.ClientID,
		ClientSecret:  phonePeCfg.ClientSecret,
		ClientVersion: phonePeCfg.ClientVersion,
		Env:           phonePeCfg.Env,
		BaseURL:       phonePeCfg.BaseURL,
		OAuthURL:      phonePeCfg.OAuthURL,
		Timeout:       phonePeCfg.Timeout(),
	}, &http.Client{Timeout: phonePeCfg.Timeout()})
	if err != nil {
		logger.Errorw("provider_init_phonepe_failed", "error", err)
		return service.NewUnavailableGateway(err)
	}
	return service.NewRetryingGateway(service.NewPhonePeGateway(client), service.GatewayPolicy{
		Timeout:          phonePeCfg.Timeout(),
		QueryMaxRetries:  phonePeCfg.QueryMaxRetries,
		CreateMaxRetries: phonePeCfg.CreateMaxRetries,
		Backoff:          phonePeCfg.RetryBackoff(),
	})
}

// Close 释放队列与缓存连接
func (c *Container) Close() {
	if c == nil {
		return
	}
	if err := c.QueueClient.Close(); err != nil {
		logger.Warnw("provider_close_queue_client_failed", "error", err)
	}
	if err := cache.Close(); err != nil {
		logger.Warnw("provider_close_redis_failed", "error", err)
	}
}

func seconds(value int) time.Duration {
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}
