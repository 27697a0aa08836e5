package models

import "time"

// Store 店铺（外部协作方，仅保留支付所需字段）
type Store struct {
	ID         uint      `gorm:"primarykey" json:"id"`         // 主键
	Name       string    `gorm:"not null" json:"name"`         // 店铺名称
	WebsiteURL string    `gorm:"type:text" json:"website_url"` // 店铺站点，用于生成支付回跳地址
	CreatedAt  time.Time `gorm:"index" json:"created_at"`      // 创建时间
	UpdatedAt  time.Time `gorm:"index" json:"updated_at"`      // 更新时间
}

// TableName 指定表名
func (Store) TableName() string {
	return "stores"
}
