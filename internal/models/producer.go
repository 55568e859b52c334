package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/shopspring/decimal"
)

// Producer 制作人（收款方）表
type Producer struct {
	ID              uint             `gorm:"primarykey" json:"id"`                          // 主键
	Email           string           `gorm:"uniqueIndex;not null" json:"email"`             // 邮箱
	DisplayName     string           `gorm:"not null" json:"display_name"`                  // 展示名称
	Status          string           `gorm:"index;not null;default:active" json:"status"`   // 状态（active/disabled）
	CommissionRate  *decimal.Decimal `gorm:"type:decimal(6,4)" json:"commission_rate"`      // 个人佣金比例（0~1 小数，空则用默认）
	PayoutProvider  string           `gorm:"not null;default:stripe" json:"payout_provider"` // 打款提供方（stripe/paypal）
	StripeAccountID string           `gorm:"index" json:"stripe_account_id"`                // Stripe Connect 账户ID
	PayPalEmail     string           `json:"paypal_email"`                                  // PayPal 收款邮箱
	CreatedAt       time.Time        `gorm:"index" json:"created_at"`                       // 创建时间
	UpdatedAt       time.Time        `json:"updated_at"`                                    // 更新时间
	DeletedAt       gorm.DeletedAt   `gorm:"index" json:"-"`                                // 软删除时间
}

// TableName 指定表名
func (Producer) TableName() string {
	return "producers"
}

// EffectiveCommissionRate 生效佣金比例（个人覆盖，否则用默认）
func (p *Producer) EffectiveCommissionRate(defaultRate decimal.Decimal) decimal.Decimal {
	if p.CommissionRate != nil {
		return *p.CommissionRate
	}
	return defaultRate
}

// ProviderAccountRef 当前提供方下的收款账户标识
func (p *Producer) ProviderAccountRef() string {
	switch p.PayoutProvider {
	case "paypal":
		return p.PayPalEmail
	default:
		return p.StripeAccountID
	}
}
