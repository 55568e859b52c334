package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/mixpitch-payouts/internal/constants"
	"github.com/mixpitch-payouts/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PayoutScheduleRepository 打款计划数据访问接口
type PayoutScheduleRepository interface {
	Create(schedule *models.PayoutSchedule) error
	GetByID(id uint) (*models.PayoutSchedule, error)
	GetByIDForUpdate(id uint) (*models.PayoutSchedule, error)
	GetByPayoutNo(payoutNo string) (*models.PayoutSchedule, error)
	GetBySourceRef(sourceRef string) (*models.PayoutSchedule, error)
	Update(schedule *models.PayoutSchedule) error
	List(filter PayoutScheduleListFilter) ([]models.PayoutSchedule, int64, error)
	ListReadyForRelease(now time.Time, limit int) ([]models.PayoutSchedule, error)
	ListRetryCandidates(maxAttempts int, limit int) ([]models.PayoutSchedule, error)
	ClaimForProcessing(id uint, now time.Time) (bool, error)
	ClaimFailedForRetry(id uint, maxAttempts int, now time.Time) (bool, error)
	MarkCompleted(id uint, transferRef string, now time.Time) error
	MarkFailed(id uint, kind, reason string, retryable bool, now time.Time) error
	MarkCancelled(id uint, reason string, now time.Time) (bool, error)
	ApplyHoldBypass(id uint, releaseAt time.Time, reason string, adminID uint, now time.Time) (bool, error)
	ReclaimStaleProcessing(before time.Time, now time.Time) (int64, error)
	CountByStatus() (map[string]int64, error)
	CountByWorkflow() (map[string]int64, error)
	CountPendingRelease(now time.Time) (int64, error)
	SumNetByStatus(status string) (models.Money, error)
	WithTx(tx *gorm.DB) *GormPayoutScheduleRepository
}

// GormPayoutScheduleRepository GORM 打款计划仓储实现
type GormPayoutScheduleRepository struct {
	db *gorm.DB
}

// NewPayoutScheduleRepository 创建打款计划仓储
func NewPayoutScheduleRepository(db *gorm.DB) *GormPayoutScheduleRepository {
	return &GormPayoutScheduleRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPayoutScheduleRepository) WithTx(tx *gorm.DB) *GormPayoutScheduleRepository {
	if tx == nil {
		return r
	}
	return &GormPayoutScheduleRepository{db: tx}
}

// Create 创建打款计划
func (r *GormPayoutScheduleRepository) Create(schedule *models.PayoutSchedule) error {
	return r.db.Create(schedule).Error
}

// GetByID 按ID获取打款计划
func (r *GormPayoutScheduleRepository) GetByID(id uint) (*models.PayoutSchedule, error) {
	if id == 0 {
		return nil, nil
	}
	var schedule models.PayoutSchedule
	if err := r.db.First(&schedule, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &schedule, nil
}

// GetByIDForUpdate 按ID加行锁获取打款计划，需在事务内调用
func (r *GormPayoutScheduleRepository) GetByIDForUpdate(id uint) (*models.PayoutSchedule, error) {
	if id == 0 {
		return nil, nil
	}
	query := r.db
	if supportsRowLock(r.db) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var schedule models.PayoutSchedule
	if err := query.First(&schedule, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &schedule, nil
}

// GetByPayoutNo 按打款单号获取打款计划
func (r *GormPayoutScheduleRepository) GetByPayoutNo(payoutNo string) (*models.PayoutSchedule, error) {
	payoutNo = strings.TrimSpace(payoutNo)
	if payoutNo == "" {
		return nil, nil
	}
	var schedule models.PayoutSchedule
	if err := r.db.Where("payout_no = ?", payoutNo).First(&schedule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &schedule, nil
}

// GetBySourceRef 按源支付事件标识获取打款计划（幂等查询）
func (r *GormPayoutScheduleRepository) GetBySourceRef(sourceRef string) (*models.PayoutSchedule, error) {
	sourceRef = strings.TrimSpace(sourceRef)
	if sourceRef == "" {
		return nil, nil
	}
	var schedule models.PayoutSchedule
	if err := r.db.Where("source_ref = ?", sourceRef).First(&schedule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &schedule, nil
}

// Update 更新打款计划
func (r *GormPayoutScheduleRepository) Update(schedule *models.PayoutSchedule) error {
	return r.db.Save(schedule).Error
}

// List 分页查询打款计划
func (r *GormPayoutScheduleRepository) List(filter PayoutScheduleListFilter) ([]models.PayoutSchedule, int64, error) {
	query := r.db.Model(&models.PayoutSchedule{})

	if filter.PayoutNo != "" {
		if condition, args := buildKeywordCondition(r.db, filter.PayoutNo, "payout_no"); condition != "" {
			query = query.Where(condition, args...)
		}
	}
	if filter.ProducerID != 0 {
		query = query.Where("producer_id = ?", filter.ProducerID)
	}
	if filter.ProjectRef != "" {
		query = query.Where("project_ref = ?", filter.ProjectRef)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.WorkflowType != "" {
		query = query.Where("workflow_type = ?", filter.WorkflowType)
	}
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	if filter.MinNetAmount != nil {
		query = query.Where("net_amount >= ?", *filter.MinNetAmount)
	}
	if filter.ReleaseFrom != nil {
		query = query.Where("hold_release_at >= ?", *filter.ReleaseFrom)
	}
	if filter.ReleaseTo != nil {
		query = query.Where("hold_release_at <= ?", *filter.ReleaseTo)
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

	var schedules []models.PayoutSchedule
	if err := query.Order("id desc").Find(&schedules).Error; err != nil {
		return nil, 0, err
	}
	return schedules, total, nil
}

// ListReadyForRelease 查询冻结期已到、可进入批量打款的计划
func (r *GormPayoutScheduleRepository) ListReadyForRelease(now time.Time, limit int) ([]models.PayoutSchedule, error) {
	query := r.db.
		Where("status = ?", constants.PayoutStatusScheduled).
		Where("hold_release_at <= ?", now).
		Order("hold_release_at asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var schedules []models.PayoutSchedule
	if err := query.Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

// ListRetryCandidates 查询可自动重试的失败计划
func (r *GormPayoutScheduleRepository) ListRetryCandidates(maxAttempts int, limit int) ([]models.PayoutSchedule, error) {
	query := r.db.
		Where("status = ?", constants.PayoutStatusFailed).
		Where("retryable = ?", true).
		Where("attempt_count < ?", maxAttempts).
		Order("failed_at asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var schedules []models.PayoutSchedule
	if err := query.Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

// ClaimForProcessing 抢占式进入处理中（条件更新，可避免并发重复打款）
func (r *GormPayoutScheduleRepository) ClaimForProcessing(id uint, now time.Time) (bool, error) {
	if id == 0 {
		return false, nil
	}
	result := r.db.Model(&models.PayoutSchedule{}).
		Where("id = ? AND status = ?", id, constants.PayoutStatusScheduled).
		Where("hold_release_at <= ?", now).
		Updates(map[string]interface{}{
			"status":         constants.PayoutStatusProcessing,
			"processing_at":  now,
			"attempt_count":  gorm.Expr("attempt_count + 1"),
			"failure_kind":   "",
			"failure_reason": "",
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ClaimFailedForRetry 抢占式把失败计划拉回处理中（次数受限）
func (r *GormPayoutScheduleRepository) ClaimFailedForRetry(id uint, maxAttempts int, now time.Time) (bool, error) {
	if id == 0 {
		return false, nil
	}
	result := r.db.Model(&models.PayoutSchedule{}).
		Where("id = ? AND status = ?", id, constants.PayoutStatusFailed).
		Where("retryable = ?", true).
		Where("attempt_count < ?", maxAttempts).
		Updates(map[string]interface{}{
			"status":         constants.PayoutStatusProcessing,
			"processing_at":  now,
			"attempt_count":  gorm.Expr("attempt_count + 1"),
			"failure_kind":   "",
			"failure_reason": "",
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkCompleted 标记打款完成
func (r *GormPayoutScheduleRepository) MarkCompleted(id uint, transferRef string, now time.Time) error {
	return r.db.Model(&models.PayoutSchedule{}).
		Where("id = ? AND status = ?", id, constants.PayoutStatusProcessing).
		Updates(map[string]interface{}{
			"status":                constants.PayoutStatusCompleted,
			"provider_transfer_ref": transferRef,
			"completed_at":          now,
		}).Error
}

// MarkFailed 标记打款失败（记录失败分类与是否可重试）
func (r *GormPayoutScheduleRepository) MarkFailed(id uint, kind, reason string, retryable bool, now time.Time) error {
	return r.db.Model(&models.PayoutSchedule{}).
		Where("id = ? AND status = ?", id, constants.PayoutStatusProcessing).
		Updates(map[string]interface{}{
			"status":         constants.PayoutStatusFailed,
			"failure_kind":   kind,
			"failure_reason": reason,
			"retryable":      retryable,
			"failed_at":      now,
		}).Error
}

// MarkCancelled 取消打款计划（仅限 scheduled 状态）
func (r *GormPayoutScheduleRepository) MarkCancelled(id uint, reason string, now time.Time) (bool, error) {
	if id == 0 {
		return false, nil
	}
	result := r.db.Model(&models.PayoutSchedule{}).
		Where("id = ? AND status = ?", id, constants.PayoutStatusScheduled).
		Updates(map[string]interface{}{
			"status":        constants.PayoutStatusCancelled,
			"cancel_reason": reason,
			"cancelled_at":  now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ApplyHoldBypass 管理员跳过冻结期（仅限 scheduled 状态，记录审计字段）
func (r *GormPayoutScheduleRepository) ApplyHoldBypass(id uint, releaseAt time.Time, reason string, adminID uint, now time.Time) (bool, error) {
	if id == 0 {
		return false, nil
	}
	result := r.db.Model(&models.PayoutSchedule{}).
		Where("id = ? AND status = ?", id, constants.PayoutStatusScheduled).
		Updates(map[string]interface{}{
			"hold_release_at": releaseAt,
			"hold_bypassed":   true,
			"bypass_reason":   reason,
			"bypass_admin_id": adminID,
			"bypassed_at":     now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ReclaimStaleProcessing 回收卡死在处理中的计划（批量置为可重试失败）
func (r *GormPayoutScheduleRepository) ReclaimStaleProcessing(before time.Time, now time.Time) (int64, error) {
	result := r.db.Model(&models.PayoutSchedule{}).
		Where("status = ?", constants.PayoutStatusProcessing).
		Where("processing_at IS NOT NULL AND processing_at < ?", before).
		Updates(map[string]interface{}{
			"status":         constants.PayoutStatusFailed,
			"failure_kind":   constants.FailureKindStale,
			"failure_reason": "processing timed out, reclaimed by sweeper",
			"retryable":      true,
			"failed_at":      now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// CountByStatus 按状态统计打款计划数量
func (r *GormPayoutScheduleRepository) CountByStatus() (map[string]int64, error) {
	type row struct {
		Status string
		Total  int64
	}
	var rows []row
	if err := r.db.Model(&models.PayoutSchedule{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, item := range rows {
		counts[item.Status] = item.Total
	}
	return counts, nil
}

// CountByWorkflow 按流程类型统计打款计划数量
func (r *GormPayoutScheduleRepository) CountByWorkflow() (map[string]int64, error) {
	type row struct {
		WorkflowType string
		Total        int64
	}
	var rows []row
	if err := r.db.Model(&models.PayoutSchedule{}).
		Select("workflow_type, COUNT(*) AS total").
		Group("workflow_type").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, item := range rows {
		counts[item.WorkflowType] = item.Total
	}
	return counts, nil
}

// CountPendingRelease 统计冻结期未到、等待放款的计划数量
func (r *GormPayoutScheduleRepository) CountPendingRelease(now time.Time) (int64, error) {
	var total int64
	err := r.db.Model(&models.PayoutSchedule{}).
		Where("status = ? AND hold_release_at > ?", constants.PayoutStatusScheduled, now).
		Count(&total).Error
	return total, err
}

// SumNetByStatus 按状态汇总净打款金额
func (r *GormPayoutScheduleRepository) SumNetByStatus(status string) (models.Money, error) {
	var sum models.Money
	err := r.db.Model(&models.PayoutSchedule{}).
		Where("status = ?", status).
		Select("COALESCE(SUM(net_amount), 0)").
		Scan(&sum).Error
	if err != nil {
		return models.Money{}, err
	}
	return sum, nil
}
