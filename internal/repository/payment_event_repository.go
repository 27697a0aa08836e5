package repository

import (
	"github.com/paytrack-next/internal/models"

	"gorm.io/gorm"
)

// PaymentEventRepository 对账审计数据访问接口
type PaymentEventRepository interface {
	Create(event *models.PaymentEvent) error
	ListByTransactionID(transactionID string) ([]models.PaymentEvent, error)
	WithTx(tx *gorm.DB) *GormPaymentEventRepository
}

// GormPaymentEventRepository GORM 实现
type GormPaymentEventRepository struct {
	db *gorm.DB
}

// NewPaymentEventRepository 创建对账审计仓库
func NewPaymentEventRepository(db *gorm.DB) *GormPaymentEventRepository {
	return &GormPaymentEventRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPaymentEventRepository) WithTx(tx *gorm.DB) *GormPaymentEventRepository {
	if tx == nil {
		return r
	}
	return &GormPaymentEventRepository{db: tx}
}

// Create 写入审计记录
func (r *GormPaymentEventRepository) Create(event *models.PaymentEvent) error {
	return r.db.Create(event).Error
}

// ListByTransactionID 按交易号查询审计记录
func (r *GormPaymentEventRepository) ListByTransactionID(transactionID string) ([]models.PaymentEvent, error) {
	var events []models.PaymentEvent
	if err := r.db.Where("transaction_id = ?", transactionID).Order("id asc").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
