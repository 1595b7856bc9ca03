// Package cashback holds the ledger operations: accumulation, redemption,
// sale reversal and expiry. Every function works on a repository.CashbackStore
// that the caller has already bound to an open database transaction.
package cashback

import (
	"fmt"

	"github.com/shopspring/decimal"

	"cashback-ledger/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// ComputeAccumulatedValue returns the cashback in cents earned by a sale.
// Sales under minimumSaleValue and unknown rule types earn nothing.
func ComputeAccumulatedValue(ruleType domain.AccumulationRuleType, ruleValue decimal.Decimal, minimumSaleValue, saleValue int64) int64 {
	if saleValue < minimumSaleValue {
		return 0
	}
	switch ruleType {
	case domain.AccumulationFixed:
		return ruleValue.IntPart()
	case domain.AccumulationPercentage:
		return percentOf(saleValue, ruleValue)
	default:
		return 0
	}
}

// RedemptionCap returns the largest redemption the program allows for a sale.
// limited is false when the program has no limit.
func RedemptionCap(limitType domain.RedemptionLimitType, limitValue decimal.Decimal, saleValue int64) (maxValue int64, limited bool, err error) {
	switch limitType {
	case domain.RedemptionLimitFixed:
		return limitValue.IntPart(), true, nil
	case domain.RedemptionLimitPercentage:
		if saleValue <= 0 {
			return 0, false, domain.BadRequest("O valor da venda é obrigatório para calcular o limite de resgate.")
		}
		return percentOf(saleValue, limitValue), true, nil
	default:
		return 0, false, nil
	}
}

// FormatBRL renders cents as "R$ 8.00".
func FormatBRL(cents int64) string {
	return fmt.Sprintf("R$ %s", decimal.New(cents, -2).StringFixed(2))
}

// percentOf floors to whole cents.
func percentOf(cents int64, percent decimal.Decimal) int64 {
	return decimal.NewFromInt(cents).Mul(percent).Div(hundred).Floor().IntPart()
}
