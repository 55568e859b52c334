package admin

import (
	"errors"
	"strconv"
	"strings"

	"github.com/mixpitch-payouts/internal/http/response"
	"github.com/mixpitch-payouts/internal/repository"
	"github.com/mixpitch-payouts/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ProducerRequest 制作人创建与更新请求
type ProducerRequest struct {
	Email           string `json:"email"`
	DisplayName     string `json:"display_name"`
	Status          string `json:"status"`
	CommissionRate  string `json:"commission_rate"`
	PayoutProvider  string `json:"payout_provider"`
	StripeAccountID string `json:"stripe_account_id"`
	PayPalEmail     string `json:"paypal_email"`
}

func (r ProducerRequest) toServiceInput() (service.ProducerInput, error) {
	input := service.ProducerInput{
		Email:           r.Email,
		DisplayName:     r.DisplayName,
		Status:          r.Status,
		PayoutProvider:  r.PayoutProvider,
		StripeAccountID: r.StripeAccountID,
		PayPalEmail:     r.PayPalEmail,
	}
	if raw := strings.TrimSpace(r.CommissionRate); raw != "" {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return input, err
		}
		input.CommissionRate = &rate
	}
	return input, nil
}

// GetAdminProducers 获取制作人列表 (Admin)
func (h *Handler) GetAdminProducers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	producers, total, err := h.ProducerService.ListProducers(repository.ProducerListFilter{
		Page:     page,
		PageSize: pageSize,
		Status:   strings.TrimSpace(c.Query("status")),
		Keyword:  strings.TrimSpace(c.Query("search")),
		Provider: strings.TrimSpace(c.Query("provider")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "producer list failed", err)
		return
	}

	pagination := response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
	response.SuccessWithPage(c, producers, pagination)
}

// GetAdminProducer 获取制作人详情 (Admin)
func (h *Handler) GetAdminProducer(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	producer, err := h.ProducerService.GetProducer(id)
	if err != nil {
		if errors.Is(err, service.ErrProducerNotFound) {
			respondError(c, response.CodeNotFound, "producer not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "producer fetch failed", err)
		return
	}
	response.Success(c, producer)
}

// CreateAdminProducer 创建制作人 (Admin)
func (h *Handler) CreateAdminProducer(c *gin.Context) {
	var req ProducerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	input, err := req.toServiceInput()
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid commission rate", nil)
		return
	}

	producer, err := h.ProducerService.CreateProducer(input)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProducerEmailRequired):
			respondError(c, response.CodeBadRequest, "producer email is required", nil)
		case errors.Is(err, service.ErrProducerEmailTaken):
			respondError(c, response.CodeBadRequest, "producer email already registered", nil)
		case errors.Is(err, service.ErrInvalidRate):
			respondError(c, response.CodeBadRequest, "commission rate must be between 0 and 1", nil)
		default:
			respondError(c, response.CodeInternal, "producer create failed", err)
		}
		return
	}
	response.Success(c, producer)
}

// UpdateAdminProducer 更新制作人 (Admin)
func (h *Handler) UpdateAdminProducer(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req ProducerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	input, err := req.toServiceInput()
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid commission rate", nil)
		return
	}

	producer, err := h.ProducerService.UpdateProducer(id, input)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProducerNotFound):
			respondError(c, response.CodeNotFound, "producer not found", nil)
		case errors.Is(err, service.ErrInvalidRate):
			respondError(c, response.CodeBadRequest, "commission rate must be between 0 and 1", nil)
		default:
			respondError(c, response.CodeInternal, "producer update failed", err)
		}
		return
	}
	response.Success(c, producer)
}

// GetAdminProducerEarnings 获取制作人收入流水 (Admin)
func (h *Handler) GetAdminProducerEarnings(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	earnings, err := h.QueryService.GetProducerEarnings(id, page, pageSize)
	if err != nil {
		respondError(c, response.CodeInternal, "producer earnings fetch failed", err)
		return
	}
	response.Success(c, earnings)
}
