package router

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/paytrack-next/internal/cache"
	"github.com/paytrack-next/internal/config"
	publichandlers "github.com/paytrack-next/internal/http/handlers/public"
	"github.com/paytrack-next/internal/logger"
	"github.com/paytrack-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "pt"
	}
	redisClient := cache.Client()
	paymentLimit := cfg.Security.PaymentRateLimit
	verifyRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:payment_verify", redisPrefix),
		WindowSeconds: paymentLimit.WindowSeconds,
		MaxRequests:   paymentLimit.MaxRequests,
		BlockSeconds:  paymentLimit.BlockSeconds,
		Message:       "Too many payment verification requests",
	}
	callbackRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:payment_callback", redisPrefix),
		WindowSeconds: paymentLimit.WindowSeconds,
		MaxRequests:   paymentLimit.MaxRequests,
		BlockSeconds:  paymentLimit.BlockSeconds,
		Message:       "Too many payment callbacks",
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	apiV1 := r.Group("/api/v1")
	{
		payments := apiV1.Group("/payments")
		{
			// 客户端与网关回调（无需用户鉴权）
			payments.GET("/verify", RateLimitMiddleware(redisClient, verifyRule, KeyByIPAndQuery("transaction_id")), publicHandler.VerifyPayment)
			payments.POST("/mobile-callback", RateLimitMiddleware(redisClient, callbackRule, KeyByIPAndJSONField("transaction_id")), publicHandler.MobilePaymentCallback)
			payments.POST("/webhook", publicHandler.PhonePeWebhook)
		}

		// 用户接口（需鉴权）
		user := apiV1.Group("")
		user.Use(UserJWTAuthMiddleware(cfg.UserJWT))
		{
			user.POST("/payments", publicHandler.CreatePayment)
			user.GET("/payments", publicHandler.ListPayments)
			user.GET("/payments/stats", publicHandler.PaymentStats)
		}
	}

	// 健康检查
	r.GET("/health", func(ctx *gin.Context) {
		status := gin.H{"status": "ok"}
		if cache.Enabled() {
			if err := cache.Ping(ctx.Request.Context()); err != nil {
				status["redis"] = "unavailable"
			} else {
				status["redis"] = "ok"
			}
		}
		ctx.JSON(http.StatusOK, status)
	})

	return r
}
