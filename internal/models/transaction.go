package models

import (
	"time"

	"gorm.io/gorm"
)

// Transaction 资金流水表（每次打款成功/冲正记一条）
type Transaction struct {
	ID          uint           `gorm:"primarykey" json:"id"`                       // 主键
	ProducerID  uint           `gorm:"index;not null" json:"producer_id"`          // 制作人ID
	PayoutID    uint           `gorm:"index;not null" json:"payout_id"`            // 打款计划ID
	Type        string         `gorm:"index;not null" json:"type"`                 // 类型（payout/reversal）
	Status      string         `gorm:"index;not null" json:"status"`               // 状态（pending/completed/failed/cancelled）
	Currency    string         `gorm:"not null" json:"currency"`                   // 币种
	Amount      Money          `gorm:"type:decimal(20,2);not null" json:"amount"`  // 变动金额（打款为净额）
	ProviderRef string         `gorm:"index" json:"provider_ref"`                  // 提供方流水号
	Description string         `gorm:"type:text" json:"description"`               // 描述
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`                    // 创建时间
	UpdatedAt   time.Time      `json:"updated_at"`                                 // 更新时间
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`                             // 软删除时间
}

// TableName 指定表名
func (Transaction) TableName() string {
	return "transactions"
}
