package service

import (
	"github.com/mixpitch-payouts/internal/models"

	"github.com/shopspring/decimal"
)

// PayoutBreakdown 金额拆分结果
type PayoutBreakdown struct {
	GrossAmount      models.Money    `json:"gross_amount"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	CommissionAmount models.Money    `json:"commission_amount"`
	NetAmount        models.Money    `json:"net_amount"`
}

// PayoutCalculator 打款金额计算器
type PayoutCalculator struct {
	defaultRate decimal.Decimal
}

// NewPayoutCalculator 创建金额计算器
func NewPayoutCalculator(defaultRate decimal.Decimal) *PayoutCalculator {
	return &PayoutCalculator{defaultRate: defaultRate}
}

// DefaultRate 默认佣金比例
func (c *PayoutCalculator) DefaultRate() decimal.Decimal {
	return c.defaultRate
}

// Calculate 按比例拆分总金额为佣金与净额
// 佣金按分四舍五入，净额 = 总额 - 佣金，保证两者相加不差一分钱
// 总额为零合法，拆分结果均为零（非现金奖项在上游已被跳过）
func (c *PayoutCalculator) Calculate(gross models.Money, rate decimal.Decimal) (*PayoutBreakdown, error) {
	if gross.IsNegative() {
		return nil, ErrInvalidAmount
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, ErrInvalidRate
	}

	commission := models.NewMoneyFromDecimal(gross.Decimal.Mul(rate).Round(2))
	net := gross.Sub(commission)
	return &PayoutBreakdown{
		GrossAmount:      gross,
		CommissionRate:   rate,
		CommissionAmount: commission,
		NetAmount:        net,
	}, nil
}

// CalculateWithDefault 未指定比例时按默认比例拆分
func (c *PayoutCalculator) CalculateWithDefault(gross models.Money, rate *decimal.Decimal) (*PayoutBreakdown, error) {
	effective := c.defaultRate
	if rate != nil {
		effective = *rate
	}
	return c.Calculate(gross, effective)
}
