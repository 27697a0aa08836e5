package models

import (
	"strings"

	"github.com/paytrack-next/internal/logger"
)

// InitDefaultStore 初始化默认店铺，已有店铺时不做处理
func InitDefaultStore(name, websiteURL string) error {
	var count int64
	if err := DB.Model(&Store{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = "Default Store"
	}
	store := Store{
		Name:       name,
		WebsiteURL: strings.TrimSpace(websiteURL),
	}
	if err := DB.Create(&store).Error; err != nil {
		return err
	}
	logger.Infow("default_store_created", "store_id", store.ID, "website_url", store.WebsiteURL)
	return nil
}
