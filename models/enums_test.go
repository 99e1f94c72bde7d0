package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnitStatusKnown(t *testing.T) {
	for status := range knownUnitStatuses {
		assert.True(t, status.Known(), "expected %q to be known", status)
	}
	assert.False(t, UnitStatus("broken").Known())
	assert.False(t, UnitStatus("").Known())
}

func TestUnitStatusTerminal(t *testing.T) {
	terminal := []UnitStatus{UnitStatusWrittenOff, UnitStatusScrap, UnitStatusReturnedToSupplier, UnitStatusLost}
	for _, status := range terminal {
		assert.True(t, status.IsTerminal(), "expected %q to be terminal", status)
	}
	nonTerminal := []UnitStatus{UnitStatusAvailable, UnitStatusInTransit, UnitStatusLoaned, UnitStatusInstalled, UnitStatusDamaged, UnitStatusInRepair, UnitStatusAwaitingReturnToSupplier}
	for _, status := range nonTerminal {
		assert.False(t, status.IsTerminal(), "expected %q to be non-terminal", status)
	}
}

func TestUnitStatusGuards(t *testing.T) {
	assert.True(t, UnitStatusAvailable.CanCheckout())
	assert.False(t, UnitStatusLoaned.CanCheckout())
	assert.False(t, UnitStatusDamaged.CanCheckout())

	assert.True(t, UnitStatusLoaned.CanReturn())
	assert.True(t, UnitStatusInTransit.CanReturn())
	assert.False(t, UnitStatusAvailable.CanReturn())
	assert.False(t, UnitStatusInstalled.CanReturn())

	assert.True(t, UnitStatusAvailable.CanInstall())
	assert.True(t, UnitStatusLoaned.CanInstall())
	assert.True(t, UnitStatusInTransit.CanInstall())
	assert.False(t, UnitStatusInstalled.CanInstall())
	assert.False(t, UnitStatusDamaged.CanInstall())

	assert.True(t, UnitStatusDamaged.CanRepair())
	assert.False(t, UnitStatusLoaned.CanRepair())
}

func TestReturnDispositions(t *testing.T) {
	valid := []UnitStatus{UnitStatusAvailable, UnitStatusDamaged, UnitStatusScrap, UnitStatusLost}
	for _, status := range valid {
		assert.True(t, status.IsDisposition(), "expected %q to be a disposition", status)
	}
	invalid := []UnitStatus{UnitStatusLoaned, UnitStatusInstalled, UnitStatusInRepair, UnitStatusWrittenOff, UnitStatus("broken")}
	for _, status := range invalid {
		assert.False(t, status.IsDisposition(), "expected %q not to be a disposition", status)
	}
}

func TestSettlementTypeKnown(t *testing.T) {
	for _, typ := range []SettlementType{SettlementTypeAdhoc, SettlementTypeDaily, SettlementTypeWeekly, SettlementTypeMonthly} {
		assert.True(t, typ.Known())
	}
	assert.False(t, SettlementType("yearly").Known())
}
