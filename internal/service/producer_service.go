package service

import (
	"errors"
	"strings"

	"github.com/mixpitch-payouts/internal/constants"
	"github.com/mixpitch-payouts/internal/models"
	"github.com/mixpitch-payouts/internal/repository"

	"github.com/shopspring/decimal"
)

var (
	ErrProducerEmailRequired = errors.New("producer email is required")
	ErrProducerEmailTaken    = errors.New("producer email already registered")
)

// ProducerService 制作人账户管理服务
type ProducerService struct {
	producerRepo repository.ProducerRepository
}

// NewProducerService 创建制作人服务
func NewProducerService(producerRepo repository.ProducerRepository) *ProducerService {
	return &ProducerService{producerRepo: producerRepo}
}

// ProducerInput 制作人创建与更新输入
type ProducerInput struct {
	Email           string
	DisplayName     string
	Status          string
	CommissionRate  *decimal.Decimal
	PayoutProvider  string
	StripeAccountID string
	PayPalEmail     string
}

// CreateProducer 创建制作人账户
func (s *ProducerService) CreateProducer(input ProducerInput) (*models.Producer, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, ErrProducerEmailRequired
	}
	existing, err := s.producerRepo.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrProducerEmailTaken
	}
	if err := validateCommissionRate(input.CommissionRate); err != nil {
		return nil, err
	}

	producer := &models.Producer{
		Email:           email,
		DisplayName:     strings.TrimSpace(input.DisplayName),
		Status:          normalizeProducerStatus(input.Status),
		CommissionRate:  input.CommissionRate,
		PayoutProvider:  normalizeProvider(input.PayoutProvider),
		StripeAccountID: strings.TrimSpace(input.StripeAccountID),
		PayPalEmail:     strings.ToLower(strings.TrimSpace(input.PayPalEmail)),
	}
	if err := s.producerRepo.Create(producer); err != nil {
		return nil, err
	}
	return producer, nil
}

// UpdateProducer 更新制作人账户
func (s *ProducerService) UpdateProducer(id uint, input ProducerInput) (*models.Producer, error) {
	producer, err := s.producerRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if producer == nil {
		return nil, ErrProducerNotFound
	}
	if err := validateCommissionRate(input.CommissionRate); err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(input.DisplayName); name != "" {
		producer.DisplayName = name
	}
	if input.Status != "" {
		producer.Status = normalizeProducerStatus(input.Status)
	}
	if input.CommissionRate != nil {
		producer.CommissionRate = input.CommissionRate
	}
	if input.PayoutProvider != "" {
		producer.PayoutProvider = normalizeProvider(input.PayoutProvider)
	}
	if ref := strings.TrimSpace(input.StripeAccountID); ref != "" {
		producer.StripeAccountID = ref
	}
	if email := strings.ToLower(strings.TrimSpace(input.PayPalEmail)); email != "" {
		producer.PayPalEmail = email
	}
	if err := s.producerRepo.Update(producer); err != nil {
		return nil, err
	}
	return producer, nil
}

// GetProducer 查询制作人
func (s *ProducerService) GetProducer(id uint) (*models.Producer, error) {
	producer, err := s.producerRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if producer == nil {
		return nil, ErrProducerNotFound
	}
	return producer, nil
}

// ListProducers 分页查询制作人
func (s *ProducerService) ListProducers(filter repository.ProducerListFilter) ([]models.Producer, int64, error) {
	return s.producerRepo.List(filter)
}

func validateCommissionRate(rate *decimal.Decimal) error {
	if rate == nil {
		return nil
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return ErrInvalidRate
	}
	return nil
}

func normalizeProducerStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case constants.ProducerStatusDisabled:
		return constants.ProducerStatusDisabled
	default:
		return constants.ProducerStatusActive
	}
}

func normalizeProvider(provider string) string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case constants.PayoutProviderPayPal:
		return constants.PayoutProviderPayPal
	default:
		return constants.PayoutProviderStripe
	}
}
