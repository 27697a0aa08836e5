package repository

import "github.com/paytrack-next/internal/models"

// PaymentListFilter 查询支付列表的过滤条件
type PaymentListFilter struct {
	Page     int
	PageSize int
	UserID   uint
	Status   string
	Platform string
	Ordering string
}

// PaymentStatRow 支付统计行
type PaymentStatRow struct {
	Platform    string       `json:"platform"`
	Status      string       `json:"status"`
	Count       int64        `json:"count"`
	TotalAmount models.Money `json:"total_amount"`
}
