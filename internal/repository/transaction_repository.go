package repository

import (
	"errors"
	"strings"

	"github.com/mixpitch-payouts/internal/models"

	"gorm.io/gorm"
)

// TransactionRepository 资金流水数据访问接口
type TransactionRepository interface {
	Create(txn *models.Transaction) error
	GetByID(id uint) (*models.Transaction, error)
	GetByPayoutID(payoutID uint, txnType string) (*models.Transaction, error)
	GetByProviderRef(providerRef string) (*models.Transaction, error)
	UpdateStatusByPayout(payoutID uint, txnType, status, providerRef string) (int64, error)
	List(filter TransactionListFilter) ([]models.Transaction, int64, error)
	SumAmountByProducer(producerID uint, txnType, status string) (models.Money, error)
	WithTx(tx *gorm.DB) *GormTransactionRepository
}

// GormTransactionRepository GORM 资金流水仓储实现
type GormTransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository 创建资金流水仓储
func NewTransactionRepository(db *gorm.DB) *GormTransactionRepository {
	return &GormTransactionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormTransactionRepository) WithTx(tx *gorm.DB) *GormTransactionRepository {
	if tx == nil {
		return r
	}
	return &GormTransactionRepository{db: tx}
}

// Create 创建资金流水
func (r *GormTransactionRepository) Create(txn *models.Transaction) error {
	return r.db.Create(txn).Error
}

// GetByID 按ID获取资金流水
func (r *GormTransactionRepository) GetByID(id uint) (*models.Transaction, error) {
	if id == 0 {
		return nil, nil
	}
	var txn models.Transaction
	if err := r.db.First(&txn, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

// GetByPayoutID 按打款计划获取指定类型的资金流水
func (r *GormTransactionRepository) GetByPayoutID(payoutID uint, txnType string) (*models.Transaction, error) {
	if payoutID == 0 {
		return nil, nil
	}
	query := r.db.Where("payout_id = ?", payoutID)
	if txnType != "" {
		query = query.Where("type = ?", txnType)
	}
	var txn models.Transaction
	if err := query.First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

// UpdateStatusByPayout 按打款计划推进资金流水状态
func (r *GormTransactionRepository) UpdateStatusByPayout(payoutID uint, txnType, status, providerRef string) (int64, error) {
	if payoutID == 0 {
		return 0, nil
	}
	updates := map[string]interface{}{"status": status}
	if providerRef != "" {
		updates["provider_ref"] = providerRef
	}
	query := r.db.Model(&models.Transaction{}).Where("payout_id = ?", payoutID)
	if txnType != "" {
		query = query.Where("type = ?", txnType)
	}
	result := query.Updates(updates)
	return result.RowsAffected, result.Error
}

// GetByProviderRef 按提供方流水号获取资金流水
func (r *GormTransactionRepository) GetByProviderRef(providerRef string) (*models.Transaction, error) {
	providerRef = strings.TrimSpace(providerRef)
	if providerRef == "" {
		return nil, nil
	}
	var txn models.Transaction
	if err := r.db.Where("provider_ref = ?", providerRef).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

// List 分页查询资金流水
func (r *GormTransactionRepository) List(filter TransactionListFilter) ([]models.Transaction, int64, error) {
	query := r.db.Model(&models.Transaction{})
	if filter.ProducerID != 0 {
		query = query.Where("producer_id = ?", filter.ProducerID)
	}
	if filter.PayoutID != 0 {
		query = query.Where("payout_id = ?", filter.PayoutID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var txns []models.Transaction
	if err := query.Order("id desc").Find(&txns).Error; err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

// SumAmountByProducer 按制作人汇总资金流水金额
func (r *GormTransactionRepository) SumAmountByProducer(producerID uint, txnType, status string) (models.Money, error) {
	query := r.db.Model(&models.Transaction{}).Where("producer_id = ?", producerID)
	if txnType != "" {
		query = query.Where("type = ?", txnType)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var sum models.Money
	if err := query.Select("COALESCE(SUM(amount), 0)").Scan(&sum).Error; err != nil {
		return models.Money{}, err
	}
	return sum, nil
}
