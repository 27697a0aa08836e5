package models

import "time"

// PaymentEvent 支付对账审计记录
type PaymentEvent struct {
	ID             uint      `gorm:"primarykey" json:"id"`                                  // 主键
	PaymentID      uint      `gorm:"index" json:"payment_id"`                               // 支付记录ID（未匹配时为 0）
	TransactionID  string    `gorm:"type:varchar(64);index;not null" json:"transaction_id"` // 交易号
	Channel        string    `gorm:"type:varchar(32);index;not null" json:"channel"`        // 来源渠道
	RawState       string    `gorm:"type:varchar(64)" json:"raw_state"`                     // 网关原始状态
	FromStatus     string    `gorm:"type:varchar(16)" json:"from_status"`                   // 变更前状态
	ToStatus       string    `gorm:"type:varchar(16)" json:"to_status"`                     // 目标状态
	Outcome        string    `gorm:"type:varchar(16);index;not null" json:"outcome"`        // 对账结果
	Amount         *Money    `gorm:"type:decimal(20,2)" json:"amount,omitempty"`            // 回调携带金额
	AmountMismatch bool      `gorm:"not null;default:false" json:"amount_mismatch"`         // 金额是否不一致
	CreatedAt      time.Time `gorm:"index" json:"created_at"`                               // 创建时间
}

// TableName 指定表名
func (PaymentEvent) TableName() string {
	return "payment_events"
}
