package repository

import (
	"strings"

	"gorm.io/gorm"
)

// paymentOrderingColumns 允许排序的支付字段
var paymentOrderingColumns = map[string]string{
	"id":         "payments.id",
	"created":    "payments.created_at",
	"created_at": "payments.created_at",
	"updated":    "payments.updated_at",
	"updated_at": "payments.updated_at",
	"amount":     "payments.amount",
	"status":     "payments.status",
}

// applyPagination 应用分页参数，统一处理非法页码与偏移量。
func applyPagination(query *gorm.DB, page, pageSize int) *gorm.DB {
	if query == nil || pageSize <= 0 {
		return query
	}
	if page < 1 {
		page = 1
	}
	return query.Limit(pageSize).Offset((page - 1) * pageSize)
}

// ResolvePaymentOrdering 将 ordering 参数（如 -created_at）转换为排序子句
func ResolvePaymentOrdering(ordering string) (string, bool) {
	ordering = strings.TrimSpace(ordering)
	direction := "asc"
	if strings.HasPrefix(ordering, "-") {
		direction = "desc"
		ordering = strings.TrimPrefix(ordering, "-")
	}
	column, ok := paymentOrderingColumns[strings.ToLower(ordering)]
	if !ok {
		return "", false
	}
	return column + " " + direction, true
}
