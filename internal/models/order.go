package models

import "time"

// Order 订单（外部协作方），PaymentStatus 为支付状态的冗余副本
type Order struct {
	ID            uint      `gorm:"primarykey" json:"id"`                                      // 主键
	OrderNo       string    `gorm:"uniqueIndex;not null" json:"order_no"`                      // 订单编号
	UserID        uint      `gorm:"index;not null" json:"user_id"`                             // 用户ID
	StoreID       *uint     `gorm:"index" json:"store_id,omitempty"`                           // 店铺ID
	TotalAmount   Money     `gorm:"type:decimal(20,2);not null;default:0" json:"total_amount"` // 订单金额
	PaymentStatus string    `gorm:"index;not null;default:pending" json:"payment_status"`      // 支付状态（与支付记录同步）
	CreatedAt     time.Time `gorm:"index" json:"created_at"`                                   // 创建时间
	UpdatedAt     time.Time `gorm:"index" json:"updated_at"`                                   // 更新时间
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}
