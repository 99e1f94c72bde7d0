package utils

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// RoundMoney rounds a monetary value to 2 decimal places.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// MergeIntSlices merges and de-duplicates id slices.
func MergeIntSlices(slices ...[]int) []int {
	merged := make([]int, 0)
	for _, s := range slices {
		merged = append(merged, s...)
	}
	return lo.Uniq(merged)
}

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}
