package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayoutScheduleListFilter 查询打款计划列表的过滤条件
type PayoutScheduleListFilter struct {
	Page         int
	PageSize     int
	PayoutNo     string
	ProducerID   uint
	ProjectRef   string
	Status       string
	WorkflowType string
	Provider     string
	MinNetAmount *decimal.Decimal
	ReleaseFrom  *time.Time
	ReleaseTo    *time.Time
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
}

// TransactionListFilter 查询资金流水列表的过滤条件
type TransactionListFilter struct {
	Page        int
	PageSize    int
	ProducerID  uint
	PayoutID    uint
	Type        string
	Status      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// ProducerListFilter 查询制作人列表的过滤条件
type ProducerListFilter struct {
	Page     int
	PageSize int
	Keyword  string
	Status   string
	Provider string
}
