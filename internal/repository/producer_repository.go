package repository

import (
	"errors"
	"strings"

	"github.com/mixpitch-payouts/internal/models"

	"gorm.io/gorm"
)

// ProducerRepository 制作人数据访问接口
type ProducerRepository interface {
	Create(producer *models.Producer) error
	GetByID(id uint) (*models.Producer, error)
	GetByEmail(email string) (*models.Producer, error)
	GetByIDs(ids []uint) ([]models.Producer, error)
	Update(producer *models.Producer) error
	List(filter ProducerListFilter) ([]models.Producer, int64, error)
}

// GormProducerRepository GORM 制作人仓储实现
type GormProducerRepository struct {
	db *gorm.DB
}

// NewProducerRepository 创建制作人仓储
func NewProducerRepository(db *gorm.DB) *GormProducerRepository {
	return &GormProducerRepository{db: db}
}

// Create 创建制作人
func (r *GormProducerRepository) Create(producer *models.Producer) error {
	return r.db.Create(producer).Error
}

// GetByID 按ID获取制作人
func (r *GormProducerRepository) GetByID(id uint) (*models.Producer, error) {
	if id == 0 {
		return nil, nil
	}
	var producer models.Producer
	if err := r.db.First(&producer, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &producer, nil
}

// GetByEmail 按邮箱获取制作人
func (r *GormProducerRepository) GetByEmail(email string) (*models.Producer, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, nil
	}
	var producer models.Producer
	if err := r.db.Where("email = ?", email).First(&producer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &producer, nil
}

// GetByIDs 批量获取制作人
func (r *GormProducerRepository) GetByIDs(ids []uint) ([]models.Producer, error) {
	if len(ids) == 0 {
		return []models.Producer{}, nil
	}
	var producers []models.Producer
	if err := r.db.Where("id IN ?", ids).Find(&producers).Error; err != nil {
		return nil, err
	}
	return producers, nil
}

// Update 更新制作人
func (r *GormProducerRepository) Update(producer *models.Producer) error {
	return r.db.Save(producer).Error
}

// List 分页查询制作人
func (r *GormProducerRepository) List(filter ProducerListFilter) ([]models.Producer, int64, error) {
	query := r.db.Model(&models.Producer{})
	if filter.Keyword != "" {
		if condition, args := buildKeywordCondition(r.db, filter.Keyword, "email", "display_name"); condition != "" {
			query = query.Where(condition, args...)
		}
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Provider != "" {
		query = query.Where("payout_provider = ?", filter.Provider)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var producers []models.Producer
	if err := query.Order("id desc").Find(&producers).Error; err != nil {
		return nil, 0, err
	}
	return producers, total, nil
}
