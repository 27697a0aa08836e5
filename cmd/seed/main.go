package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/paytrack-next/internal/config"
	"github.com/paytrack-next/internal/constants"
	"github.com/paytrack-next/internal/logger"
	"github.com/paytrack-next/internal/models"
	"github.com/paytrack-next/internal/service"

	"github.com/shopspring/decimal"
)

func main() {
	var userID uint
	var orderCount int
	flag.UintVar(&userID, "user", 1, "演示用户 ID")
	flag.IntVar(&orderCount, "orders", 3, "生成的演示订单数量")
	flag.Parse()

	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 添加店铺
	stores := []models.Store{
		{Name: "Naigaon Market", WebsiteURL: "https://nm.thelearningsetu.in"},
		{Name: "Naigaon Market (staging)", WebsiteURL: "http://staging.thelearningsetu.in/"},
	}
	for i := range stores {
		var existing models.Store
		if err := models.DB.Where("name = ?", stores[i].Name).First(&existing).Error; err == nil {
			stores[i] = existing
			stdLog.Printf("Store already exists: %s", existing.Name)
			continue
		}
		if err := models.DB.Create(&stores[i]).Error; err != nil {
			stdLog.Printf("Failed to create store %s: %v", stores[i].Name, err)
			continue
		}
		stdLog.Printf("Created store: %s (id=%d)", stores[i].Name, stores[i].ID)
	}

	// 添加订单
	amounts := []string{"199.50", "49.00", "1250.75", "10.00", "899.99"}
	stamp := time.Now().Format("20060102150405")
	for i := 0; i < orderCount; i++ {
		store := stores[i%len(stores)]
		order := models.Order{
			OrderNo:       fmt.Sprintf("PT%s%03d", stamp, i+1),
			UserID:        userID,
			TotalAmount:   models.NewMoneyFromDecimal(decimal.RequireFromString(amounts[i%len(amounts)])),
			PaymentStatus: constants.PaymentStatusPending,
		}
		if store.ID != 0 {
			storeID := store.ID
			order.StoreID = &storeID
		}
		if err := models.DB.Create(&order).Error; err != nil {
			stdLog.Printf("Failed to create order %s: %v", order.OrderNo, err)
			continue
		}
		stdLog.Printf("Created order: %s (id=%d, amount=%s)", order.OrderNo, order.ID, order.TotalAmount.String())
	}

	// 生成演示用户令牌
	if cfg.UserJWT.SecretKey != "" {
		token, err := service.IssueUserToken(cfg.UserJWT.SecretKey, cfg.UserJWT.Issuer, userID, 24*time.Hour)
		if err != nil {
			stdLog.Printf("Failed to issue demo token: %v", err)
		} else {
			stdLog.Printf("Demo user %d token: %s", userID, token)
		}
	}

	stdLog.Println("Seed completed")
}
