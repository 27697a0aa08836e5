package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/paytrack-next/internal/constants"
	"github.com/paytrack-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentRepository 支付数据访问接口
type PaymentRepository interface {
	Create(payment *models.Payment) error
	GetByID(id uint) (*models.Payment, error)
	GetByTransactionID(transactionID string) (*models.Payment, error)
	GetByTransactionIDForUpdate(transactionID string) (*models.Payment, error)
	TransitionStatus(id uint, from, to string, at time.Time) (bool, error)
	UpdateCheckout(id uint, gatewayOrderID, paymentURL string) error
	List(filter PaymentListFilter) ([]models.Payment, int64, error)
	ListStalePending(createdBefore, createdAfter time.Time, limit int) ([]models.Payment, error)
	Stats() ([]PaymentStatRow, error)
	WithTx(tx *gorm.DB) *GormPaymentRepository
}

// GormPaymentRepository GORM 实现
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository 创建支付仓库
func NewPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPaymentRepository) WithTx(tx *gorm.DB) *GormPaymentRepository {
	if tx == nil {
		return r
	}
	return &GormPaymentRepository{db: tx}
}

// Create 创建支付记录
func (r *GormPaymentRepository) Create(payment *models.Payment) error {
	return r.db.Omit(clause.Associations).Create(payment).Error
}

// GetByID 根据 ID 获取支付记录
func (r *GormPaymentRepository) GetByID(id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.First(&payment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// GetByTransactionID 根据本地交易号获取支付记录（附带订单）
func (r *GormPaymentRepository) GetByTransactionID(transactionID string) (*models.Payment, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, nil
	}
	var payment models.Payment
	result := r.db.Preload("Order").Where("transaction_id = ?", transactionID).Limit(1).Find(&payment)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &payment, nil
}

// GetByTransactionIDForUpdate 加行锁读取支付记录，需在事务内调用
func (r *GormPaymentRepository) GetByTransactionIDForUpdate(transactionID string) (*models.Payment, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, nil
	}
	var payment models.Payment
	if err := forUpdate(r.db).
		Where("transaction_id = ?", transactionID).
		First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// TransitionStatus 以旧状态为条件更新支付状态，返回是否命中
func (r *GormPaymentRepository) TransitionStatus(id uint, from, to string, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": at,
	}
	if to == constants.PaymentStatusCompleted {
		updates["payment_date"] = at
	}
	result := r.db.Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// UpdateCheckout 记录网关下单结果，不涉及支付状态
func (r *GormPaymentRepository) UpdateCheckout(id uint, gatewayOrderID, paymentURL string) error {
	return r.db.Model(&models.Payment{}).Where("id = ?", id).Updates(map[string]interface{}{
		"gateway_order_id": strings.TrimSpace(gatewayOrderID),
		"payment_url":      strings.TrimSpace(paymentURL),
		"updated_at":       time.Now(),
	}).Error
}

// List 分页查询支付记录
func (r *GormPaymentRepository) List(filter PaymentListFilter) ([]models.Payment, int64, error) {
	query := r.db.Model(&models.Payment{})
	if filter.UserID != 0 {
		query = query.Joins("JOIN orders ON orders.id = payments.order_id").
			Where("orders.user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("payments.status = ?", filter.Status)
	}
	if filter.Platform != "" {
		query = query.Where("payments.platform = ?", filter.Platform)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	orderBy, ok := ResolvePaymentOrdering(filter.Ordering)
	if !ok {
		orderBy, _ = ResolvePaymentOrdering(constants.DefaultPaymentOrdering)
	}
	query = applyPagination(query.Select("payments.*").Order(orderBy), filter.Page, filter.PageSize)

	var payments []models.Payment
	if err := query.Find(&payments).Error; err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// ListStalePending 查询创建时间落在区间内、仍待支付的网关支付
func (r *GormPaymentRepository) ListStalePending(createdBefore, createdAfter time.Time, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	var payments []models.Payment
	if err := r.db.Where("status = ? AND payment_method = ? AND created_at < ? AND created_at > ?",
		constants.PaymentStatusPending,
		constants.PaymentMethodGateway,
		createdBefore,
		createdAfter,
	).Order("id asc").Limit(limit).Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// Stats 按平台与状态聚合支付数量与金额
func (r *GormPaymentRepository) Stats() ([]PaymentStatRow, error) {
	var rows []PaymentStatRow
	if err := r.db.Model(&models.Payment{}).
		Select("platform, status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total_amount").
		Group("platform, status").
		Order("platform asc, status asc").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
