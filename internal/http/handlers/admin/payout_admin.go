package admin

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/mixpitch-payouts/internal/http/response"
	"github.com/mixpitch-payouts/internal/models"
	"github.com/mixpitch-payouts/internal/repository"
	"github.com/mixpitch-payouts/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// GetAdminPayouts 获取打款计划列表 (Admin)
func (h *Handler) GetAdminPayouts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	filter := repository.PayoutScheduleListFilter{
		Page:         page,
		PageSize:     pageSize,
		PayoutNo:     strings.TrimSpace(c.Query("payout_no")),
		ProjectRef:   strings.TrimSpace(c.Query("project_ref")),
		Status:       strings.TrimSpace(c.Query("status")),
		WorkflowType: strings.TrimSpace(c.Query("workflow_type")),
		Provider:     strings.TrimSpace(c.Query("provider")),
	}
	if producerID, err := strconv.ParseUint(c.Query("producer_id"), 10, 64); err == nil {
		filter.ProducerID = uint(producerID)
	}
	if raw := strings.TrimSpace(c.Query("min_net_amount")); raw != "" {
		if amount, err := decimal.NewFromString(raw); err == nil {
			filter.MinNetAmount = &amount
		}
	}
	if from, ok := parseTimeQuery(c.Query("release_from")); ok {
		filter.ReleaseFrom = &from
	}
	if to, ok := parseTimeQuery(c.Query("release_to")); ok {
		filter.ReleaseTo = &to
	}
	if from, ok := parseTimeQuery(c.Query("created_from")); ok {
		filter.CreatedFrom = &from
	}
	if to, ok := parseTimeQuery(c.Query("created_to")); ok {
		filter.CreatedTo = &to
	}

	payouts, total, err := h.QueryService.ListPayouts(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "payout list failed", err)
		return
	}

	pagination := response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
	response.SuccessWithPage(c, payouts, pagination)
}

// GetAdminPayout 获取打款计划详情 (Admin)
func (h *Handler) GetAdminPayout(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	payout, err := h.QueryService.GetPayout(id)
	if err != nil {
		if errors.Is(err, service.ErrPayoutNotFound) {
			respondError(c, response.CodeNotFound, "payout not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "payout fetch failed", err)
		return
	}
	response.Success(c, payout)
}

// GetAdminPayoutStats 获取打款统计 (Admin)
func (h *Handler) GetAdminPayoutStats(c *gin.Context) {
	forceRefresh := c.Query("refresh") == "1"
	stats, err := h.QueryService.GetStats(c.Request.Context(), forceRefresh)
	if err != nil {
		respondError(c, response.CodeInternal, "payout stats failed", err)
		return
	}
	response.Success(c, stats)
}

// SchedulePayoutRequest 创建打款计划请求
type SchedulePayoutRequest struct {
	ProducerID   uint   `json:"producer_id" binding:"required"`
	ProjectRef   string `json:"project_ref"`
	SourceRef    string `json:"source_ref" binding:"required"`
	WorkflowType string `json:"workflow_type"`
	GrossAmount  string `json:"gross_amount" binding:"required"`
	Currency     string `json:"currency"`
}

// CreateAdminPayout 创建打款计划 (Admin)
func (h *Handler) CreateAdminPayout(c *gin.Context) {
	var req SchedulePayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	gross, err := decimal.NewFromString(strings.TrimSpace(req.GrossAmount))
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid gross amount", nil)
		return
	}

	payout, created, err := h.SchedulerService.SchedulePayout(service.SchedulePayoutInput{
		ProducerID:   req.ProducerID,
		ProjectRef:   req.ProjectRef,
		SourceRef:    req.SourceRef,
		WorkflowType: req.WorkflowType,
		GrossAmount:  models.NewMoneyFromDecimal(gross),
		Currency:     req.Currency,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProducerNotFound):
			respondError(c, response.CodeNotFound, "producer not found", nil)
		case errors.Is(err, service.ErrProducerDisabled):
			respondError(c, response.CodeBadRequest, "producer is disabled", nil)
		case errors.Is(err, service.ErrSourceRefRequired),
			errors.Is(err, service.ErrInvalidAmount),
			errors.Is(err, service.ErrInvalidRate):
			respondError(c, response.CodeBadRequest, err.Error(), nil)
		default:
			respondError(c, response.CodeInternal, "payout schedule failed", err)
		}
		return
	}
	response.Success(c, gin.H{"payout": payout, "created": created})
}

// ContestWinnerRequest 比赛获奖者分账条目
type ContestWinnerRequest struct {
	ProducerID  uint   `json:"producer_id" binding:"required"`
	SourceRef   string `json:"source_ref" binding:"required"`
	GrossAmount string `json:"gross_amount" binding:"required"`
}

// ContestBatchRequest 比赛批量建计划请求
type ContestBatchRequest struct {
	ProjectRef string                 `json:"project_ref" binding:"required"`
	Winners    []ContestWinnerRequest `json:"winners" binding:"required,min=1"`
}

// ScheduleAdminContestBatch 比赛结束后批量创建获奖者打款计划 (Admin)
func (h *Handler) ScheduleAdminContestBatch(c *gin.Context) {
	var req ContestBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}

	winners := make([]service.ContestWinnerInput, 0, len(req.Winners))
	for _, winner := range req.Winners {
		gross, err := decimal.NewFromString(strings.TrimSpace(winner.GrossAmount))
		if err != nil {
			respondError(c, response.CodeBadRequest, "invalid gross amount", nil)
			return
		}
		winners = append(winners, service.ContestWinnerInput{
			ProducerID:  winner.ProducerID,
			SourceRef:   winner.SourceRef,
			GrossAmount: models.NewMoneyFromDecimal(gross),
		})
	}

	result, err := h.SchedulerService.ScheduleContestBatch(req.ProjectRef, winners)
	if err != nil {
		respondError(c, response.CodeInternal, "contest batch failed", err)
		return
	}
	response.Success(c, result)
}

// TriggerAdminPayoutBatch 手工触发一次打款批次 (Admin)
func (h *Handler) TriggerAdminPayoutBatch(c *gin.Context) {
	result, err := h.ProcessorService.ProcessScheduledPayouts(c.Request.Context())
	if err != nil {
		respondError(c, response.CodeInternal, "payout batch failed", err)
		return
	}
	response.Success(c, result)
}

// RetryAdminPayout 手工重试失败打款 (Admin)
func (h *Handler) RetryAdminPayout(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	payout, err := h.ProcessorService.RetryFailedPayout(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPayoutNotFound):
			respondError(c, response.CodeNotFound, "payout not found", nil)
		case errors.Is(err, service.ErrRetryNotAllowed):
			respondError(c, response.CodeBadRequest, "payout is not eligible for retry", nil)
		default:
			respondError(c, response.CodeInternal, "payout retry failed", err)
		}
		return
	}
	response.Success(c, payout)
}

// PayoutReasonRequest 带原因的打款操作请求
type PayoutReasonRequest struct {
	Reason string `json:"reason"`
}

// CancelAdminPayout 取消打款计划 (Admin)
func (h *Handler) CancelAdminPayout(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req PayoutReasonRequest
	_ = c.ShouldBindJSON(&req)

	payout, err := h.SchedulerService.CancelPayout(id, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPayoutNotFound):
			respondError(c, response.CodeNotFound, "payout not found", nil)
		case errors.Is(err, service.ErrCancelNotAllowed):
			respondError(c, response.CodeBadRequest, "only scheduled payouts can be cancelled", nil)
		default:
			respondError(c, response.CodeInternal, "payout cancel failed", err)
		}
		return
	}
	response.Success(c, payout)
}

// BypassAdminPayoutHold 跳过冻结期提前放款 (Admin)
func (h *Handler) BypassAdminPayoutHold(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	var req PayoutReasonRequest
	_ = c.ShouldBindJSON(&req)

	payout, err := h.SchedulerService.BypassHold(id, adminID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPayoutNotFound):
			respondError(c, response.CodeNotFound, "payout not found", nil)
		case errors.Is(err, service.ErrBypassNotAllowed):
			respondError(c, response.CodeBadRequest, "hold bypass is not allowed", nil)
		case errors.Is(err, service.ErrBypassReasonRequired):
			respondError(c, response.CodeBadRequest, "hold bypass reason is required", nil)
		default:
			respondError(c, response.CodeInternal, "hold bypass failed", err)
		}
		return
	}
	response.Success(c, payout)
}

// ReverseAdminPayout 撤回已完成的打款 (Admin)
func (h *Handler) ReverseAdminPayout(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req PayoutReasonRequest
	_ = c.ShouldBindJSON(&req)

	txn, err := h.ProcessorService.ReversePayout(c.Request.Context(), id, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPayoutNotFound):
			respondError(c, response.CodeNotFound, "payout not found", nil)
		case errors.Is(err, service.ErrReverseNotAllowed):
			respondError(c, response.CodeBadRequest, "only completed payouts can be reversed", nil)
		case errors.Is(err, service.ErrReverseNotSupported):
			respondError(c, response.CodeBadRequest, "provider does not support reversal", nil)
		default:
			respondError(c, response.CodeInternal, "payout reversal failed", err)
		}
		return
	}
	response.Success(c, txn)
}

func parseIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "invalid id", nil)
		return 0, false
	}
	return uint(id), true
}

func parseTimeQuery(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed, true
	}
	if parsed, err := time.Parse("2006-01-02", raw); err == nil {
		return parsed, true
	}
	return time.Time{}, false
}
