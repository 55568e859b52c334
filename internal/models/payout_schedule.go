package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/shopspring/decimal"
)

// PayoutSchedule 打款计划表（一条源支付事件对应一条计划）
type PayoutSchedule struct {
	ID         uint   `gorm:"primarykey" json:"id"`                            // 主键
	PayoutNo   string `gorm:"uniqueIndex;not null" json:"payout_no"`           // 打款单号
	ProducerID uint   `gorm:"index;not null" json:"producer_id"`               // 收款制作人ID
	ProjectRef string `gorm:"index" json:"project_ref"`                        // 关联项目标识
	SourceRef  string `gorm:"uniqueIndex;not null" json:"source_ref"`          // 源支付事件标识（幂等键）

	WorkflowType string `gorm:"index;not null" json:"workflow_type"` // 流程类型（standard/contest/client_management/direct_hire）
	Provider     string `gorm:"not null" json:"provider"`            // 打款提供方（stripe/paypal）
	AccountRef   string `gorm:"not null" json:"account_ref"`         // 提供方收款账户标识

	Currency         string          `gorm:"not null" json:"currency"`                           // 币种
	GrossAmount      Money           `gorm:"type:decimal(20,2);not null" json:"gross_amount"`    // 总金额
	CommissionRate   decimal.Decimal `gorm:"type:decimal(6,4);not null" json:"commission_rate"`  // 佣金比例（0~1 小数）
	CommissionAmount Money           `gorm:"type:decimal(20,2);not null" json:"commission_amount"` // 平台佣金
	NetAmount        Money           `gorm:"type:decimal(20,2);not null" json:"net_amount"`      // 净打款金额

	Status        string     `gorm:"index;not null" json:"status"`          // 状态（scheduled/processing/completed/failed/cancelled）
	HoldReleaseAt time.Time  `gorm:"index;not null" json:"hold_release_at"` // 冻结期结束时间（此后可打款）
	ProcessingAt  *time.Time `gorm:"index" json:"processing_at"`            // 进入处理中的时间
	CompletedAt   *time.Time `json:"completed_at"`                          // 完成时间
	FailedAt      *time.Time `json:"failed_at"`                             // 最近失败时间
	CancelledAt   *time.Time `json:"cancelled_at"`                          // 取消时间

	ProviderTransferRef string `gorm:"index" json:"provider_transfer_ref"` // 提供方转账流水号

	AttemptCount  int    `gorm:"not null;default:0" json:"attempt_count"`       // 已尝试次数
	Retryable     bool   `gorm:"not null" json:"retryable"`                     // 失败后是否允许自动重试（落库时显式赋值）
	FailureKind   string `gorm:"index" json:"failure_kind"`                     // 失败分类（timeout/declined/account_not_ready/stale）
	FailureReason string `gorm:"type:text" json:"failure_reason"`               // 失败原因描述
	CancelReason  string `gorm:"type:text" json:"cancel_reason"`                // 取消原因

	HoldBypassed  bool       `gorm:"not null;default:false" json:"hold_bypassed"` // 是否管理员跳过冻结期
	BypassReason  string     `gorm:"type:text" json:"bypass_reason"`              // 跳过原因
	BypassAdminID *uint      `json:"bypass_admin_id"`                             // 操作管理员ID
	BypassedAt    *time.Time `json:"bypassed_at"`                                 // 跳过时间

	Metadata  JSON           `gorm:"type:json" json:"metadata"` // 附加元数据
	CreatedAt time.Time      `gorm:"index" json:"created_at"`   // 创建时间
	UpdatedAt time.Time      `gorm:"index" json:"updated_at"`   // 更新时间
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`            // 软删除时间
}

// TableName 指定表名
func (PayoutSchedule) TableName() string {
	return "payout_schedules"
}

// IsTerminal 是否已终态（完成/取消）
func (p *PayoutSchedule) IsTerminal() bool {
	return p.Status == "completed" || p.Status == "cancelled"
}
