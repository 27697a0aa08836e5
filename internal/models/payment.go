package models

import (
	"time"

	"github.com/paytrack-next/internal/constants"
)

// Payment 支付记录，状态只允许由对账引擎修改，记录永不删除
type Payment struct {
	ID             uint       `gorm:"primarykey" json:"id"`                                             // 主键
	OrderID        uint       `gorm:"index;not null" json:"order_id"`                                   // 订单ID
	StoreID        *uint      `gorm:"index" json:"estore_id"`                                           // 店铺ID（店铺删除后置空）
	PaymentMethod  string     `gorm:"type:varchar(16);not null;default:pg" json:"payment_method"`       // 支付方式（pg/cod）
	PaymentGateway string     `gorm:"type:varchar(32);not null;default:PhonePe" json:"payment_gateway"` // 支付网关
	Amount         Money      `gorm:"type:decimal(20,2);not null" json:"amount"`                        // 支付金额
	Status         string     `gorm:"type:varchar(16);index;not null" json:"status"`                    // 支付状态
	TransactionID  string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_id"`      // 本地交易号（网关商户订单号）
	GatewayOrderID string     `gorm:"type:varchar(128);index" json:"gateway_order_id,omitempty"`        // 网关侧订单号
	PaymentURL     string     `gorm:"type:text" json:"payment_url"`                                     // 收银台地址
	RedirectURL    string     `gorm:"type:text" json:"redirect_url"`                                    // 支付完成回跳地址
	Platform       string     `gorm:"type:varchar(16);index;not null;default:web" json:"platform"`      // 客户端平台
	DeviceInfo     JSON       `gorm:"type:json" json:"device_info,omitempty"`                           // 移动端设备信息
	PaymentDate    *time.Time `gorm:"index" json:"payment_date"`                                        // 支付完成时间
	CreatedAt      time.Time  `gorm:"index" json:"created"`                                             // 创建时间
	UpdatedAt      time.Time  `gorm:"index" json:"updated"`                                             // 更新时间

	Order *Order `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"-"`
	Store *Store `gorm:"foreignKey:StoreID;constraint:OnDelete:SET NULL" json:"-"`
}

// TableName 指定表名
func (Payment) TableName() string {
	return "payments"
}

// IsGateway 是否需要经过支付网关
func (p *Payment) IsGateway() bool {
	return p != nil && p.PaymentMethod == constants.PaymentMethodGateway
}
