package service

import (
	"strconv"
	"strings"
	"time"

	"github.com/mixpitch-payouts/internal/config"
)

const defaultProcessingHour = 9

// HoldPolicyEvaluator 打款冻结期策略
type HoldPolicyEvaluator struct {
	cfg config.HoldConfig
}

// NewHoldPolicyEvaluator 创建冻结期策略
func NewHoldPolicyEvaluator(cfg config.HoldConfig) *HoldPolicyEvaluator {
	return &HoldPolicyEvaluator{cfg: cfg}
}

// Enabled 冻结期是否启用
func (h *HoldPolicyEvaluator) Enabled() bool {
	return h.cfg.Enabled
}

// AllowBypass 是否允许管理员跳过冻结期
func (h *HoldPolicyEvaluator) AllowBypass() bool {
	return h.cfg.AllowAdminBypass
}

// RequireBypassReason 跳过冻结期是否必须填写原因
func (h *HoldPolicyEvaluator) RequireBypassReason() bool {
	return h.cfg.RequireBypassReason
}

// HoldDays 按流程类型取冻结天数
func (h *HoldPolicyEvaluator) HoldDays(workflowType string) int {
	key := strings.ToLower(strings.TrimSpace(workflowType))
	if days, ok := h.cfg.WorkflowDays[key]; ok {
		if days < 0 {
			return 0
		}
		return days
	}
	if h.cfg.DefaultDays < 0 {
		return 0
	}
	return h.cfg.DefaultDays
}

// ReleaseAt 计算冻结期结束时间
// 冻结关闭或天数为零时立即可打款，但始终不早于最小冻结小时数
func (h *HoldPolicyEvaluator) ReleaseAt(workflowType string, now time.Time) time.Time {
	release := now
	if h.cfg.Enabled {
		if days := h.HoldDays(workflowType); days > 0 {
			if h.cfg.BusinessDaysOnly {
				release = addBusinessDays(now, days)
			} else {
				release = now.AddDate(0, 0, days)
			}
			hour, minute := h.processingClock()
			release = time.Date(release.Year(), release.Month(), release.Day(), hour, minute, 0, 0, release.Location())
		}
	}
	return h.applyMinimumHold(now, release)
}

// BypassReleaseAt 管理员跳过冻结期后的放款时间
func (h *HoldPolicyEvaluator) BypassReleaseAt(now time.Time) time.Time {
	return h.applyMinimumHold(now, now)
}

func (h *HoldPolicyEvaluator) applyMinimumHold(now, release time.Time) time.Time {
	if h.cfg.MinimumHoldHours <= 0 {
		return release
	}
	floor := now.Add(time.Duration(h.cfg.MinimumHoldHours) * time.Hour)
	if release.Before(floor) {
		return floor
	}
	return release
}

func (h *HoldPolicyEvaluator) processingClock() (int, int) {
	raw := strings.TrimSpace(h.cfg.ProcessingTime)
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return defaultProcessingHour, 0
	}
	hour, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || hour < 0 || hour > 23 {
		return defaultProcessingHour, 0
	}
	minute, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || minute < 0 || minute > 59 {
		return hour, 0
	}
	return hour, minute
}

// addBusinessDays 按工作日累加天数（跳过周六日）
func addBusinessDays(from time.Time, days int) time.Time {
	current := from
	for added := 0; added < days; {
		current = current.AddDate(0, 0, 1)
		if wd := current.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		added++
	}
	return current
}
