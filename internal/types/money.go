// README: Monetary helpers shared by order totals and line items.
package types

import "math"

// moneyEpsilon absorbs float noise below half a minor unit.
const moneyEpsilon = 0.005

// RoundMoney rounds an amount to two decimal places.
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

// AmountsEqual reports whether two amounts match to the minor unit.
func AmountsEqual(a, b float64) bool {
	return math.Abs(a-b) < moneyEpsilon
}
