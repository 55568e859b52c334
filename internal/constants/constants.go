package constants

// 分账计划状态常量
const (
	PayoutStatusScheduled  = "scheduled"
	PayoutStatusProcessing = "processing"
	PayoutStatusCompleted  = "completed"
	PayoutStatusFailed     = "failed"
	PayoutStatusCancelled  = "cancelled"
)

// 项目协作流程类型常量
const (
	WorkflowTypeStandard         = "standard"
	WorkflowTypeContest          = "contest"
	WorkflowTypeClientManagement = "client_management"
	WorkflowTypeDirectHire       = "direct_hire"
)

// 打款提供方常量
const (
	PayoutProviderStripe = "stripe"
	PayoutProviderPayPal = "paypal"
)

// 资金流水类型与状态常量
const (
	TransactionTypePayout   = "payout"
	TransactionTypeReversal = "reversal"

	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
	TransactionStatusCancelled = "cancelled"
)

// 制作人账号状态常量
const (
	ProducerStatusActive   = "active"
	ProducerStatusDisabled = "disabled"
)

// 通知事件类型常量
const (
	NotifyEventPayoutScheduled = "payout_scheduled"
	NotifyEventPayoutCompleted = "payout_completed"
	NotifyEventPayoutFailed    = "payout_failed"
	NotifyEventPayoutCancelled = "payout_cancelled"
	NotifyEventAccountNotReady = "payout_account_not_ready"
)

// 异步任务常量
const (
	QueueDefault     = "default"
	QueueCritical    = "critical"
	TaskPayoutNotify = "payout:notify"
)

// 打款失败分类常量
const (
	FailureKindTimeout         = "network_timeout"
	FailureKindDeclined        = "processor_declined"
	FailureKindAccountNotReady = "account_not_ready"
	FailureKindStale           = "processing_stale"
)
