package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func newQuantityLine(taken int64, price int64) *DebtLine {
	line := &DebtLine{
		Kind:      DebtLineKindQuantity,
		QtyTaken:  decimal.NewFromInt(taken),
		UnitPrice: decimal.NewFromInt(price),
		Status:    DebtLineStatusActive,
	}
	line.Recompute()
	return line
}

func TestRecomputeFreshLine(t *testing.T) {
	line := newQuantityLine(10, 1500)

	assert.True(t, line.CurrentDebtQty.Equal(decimal.NewFromInt(10)))
	assert.True(t, line.CurrentDebtValue.Equal(decimal.NewFromInt(15000)))
	assert.Equal(t, DebtLineStatusActive, line.Status)
	assert.True(t, line.Open())
}

func TestRecomputePartialReturn(t *testing.T) {
	line := newQuantityLine(10, 1500)
	line.QtyReturned = decimal.NewFromInt(4)
	line.Recompute()

	assert.True(t, line.CurrentDebtQty.Equal(decimal.NewFromInt(6)))
	assert.True(t, line.CurrentDebtValue.Equal(decimal.NewFromInt(9000)))
	assert.Equal(t, DebtLineStatusPartiallyReturned, line.Status)
	assert.True(t, line.Open())
}

func TestRecomputeAllCountersCombine(t *testing.T) {
	line := newQuantityLine(10, 1500)
	line.QtyReturned = decimal.NewFromInt(3)
	line.QtyInstalled = decimal.NewFromInt(4)
	line.QtySettled = decimal.NewFromInt(2)
	line.Recompute()

	assert.True(t, line.CurrentDebtQty.Equal(decimal.NewFromInt(1)))
	assert.True(t, line.CurrentDebtValue.Equal(decimal.NewFromInt(1500)))
	assert.Equal(t, DebtLineStatusPartiallyReturned, line.Status)
}

func TestRecomputeFullySettled(t *testing.T) {
	line := newQuantityLine(10, 1500)
	line.QtyReturned = decimal.NewFromInt(10)
	line.Recompute()

	assert.True(t, line.CurrentDebtQty.IsZero())
	assert.True(t, line.CurrentDebtValue.IsZero())
	assert.Equal(t, DebtLineStatusFullySettled, line.Status)
	assert.False(t, line.Open())
}

func TestRecomputeClampsNegativeQty(t *testing.T) {
	// Rounding residue from a value-based settlement can push the running
	// counters past qty_taken; the derived qty clamps at zero.
	line := newQuantityLine(10, 1500)
	line.QtySettled = decimal.RequireFromString("10.0001")
	line.Recompute()

	assert.True(t, line.CurrentDebtQty.IsZero())
	assert.True(t, line.CurrentDebtValue.IsZero())
	assert.Equal(t, DebtLineStatusFullySettled, line.Status)
}

func TestRecomputeWrittenOffIsSticky(t *testing.T) {
	line := newQuantityLine(10, 1500)
	line.Status = DebtLineStatusWrittenOff
	line.QtyReturned = decimal.NewFromInt(10)
	line.Recompute()

	assert.Equal(t, DebtLineStatusWrittenOff, line.Status)
	assert.False(t, line.Open())
}

func TestRecomputeRoundsValueToCents(t *testing.T) {
	line := &DebtLine{
		Kind:      DebtLineKindQuantity,
		QtyTaken:  decimal.RequireFromString("3.333"),
		UnitPrice: decimal.RequireFromString("1.005"),
		Status:    DebtLineStatusActive,
	}
	line.Recompute()

	// 3.333 * 1.005 = 3.349665 -> 3.35
	assert.True(t, line.CurrentDebtValue.Equal(decimal.RequireFromString("3.35")),
		"got %s", line.CurrentDebtValue)
}

func TestUnitLineFullReturnSettles(t *testing.T) {
	unitId := 7
	line := &DebtLine{
		Kind:          DebtLineKindUnit,
		TrackedUnitId: &unitId,
		QtyTaken:      decimal.NewFromInt(1),
		UnitPrice:     decimal.NewFromInt(45000),
		Status:        DebtLineStatusActive,
	}
	line.Recompute()
	assert.True(t, line.CurrentDebtValue.Equal(decimal.NewFromInt(45000)))

	line.QtyReturned = line.QtyTaken
	line.Recompute()
	assert.Equal(t, DebtLineStatusFullySettled, line.Status)
	assert.True(t, line.CurrentDebtValue.IsZero())
}
