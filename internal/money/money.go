// Package money содержит преобразование денежных сумм между основными и
// минимальными единицами валюты для платёжного процессинга.
package money

import "github.com/shopspring/decimal"

// Currency — единственная валюта системы (ISO 4217).
const Currency = "INR"

var hundred = decimal.NewFromInt(100)

// ToMinorUnits переводит сумму в рупиях в целое число пайс.
// Сначала сумма округляется до двух знаков half-up, затем умножается на 100
// и усекается до целого. Двухшаговое округление обязательно: наивное
// округление cost*100 расходится на одну минимальную единицу для граничных
// значений вида 19.995.
func ToMinorUnits(cost decimal.Decimal) int64 {
	return RoundToMajor(cost).Mul(hundred).IntPart()
}

// FromMinorUnits переводит число пайс обратно в сумму в рупиях.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(hundred)
}

// RoundToMajor округляет сумму в рупиях до двух знаков half-up.
func RoundToMajor(cost decimal.Decimal) decimal.Decimal {
	return cost.Round(2)
}
