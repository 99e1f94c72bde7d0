package models

import (
	"context"
	"testing"

	"github.com/mmdatafocus/isp_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

// NOTE: These tests are intentionally DB-free. They exercise the validation
// and state-machine contracts that fire before any row is touched; the happy
// paths are covered by the integration tests.

func TestReceiveTrackedUnitsRequiresIdentifier(t *testing.T) {
	_, err := ReceiveTrackedUnits(context.Background(), &NewTrackedUnitReceipt{
		AssetTypeId: 1,
		WarehouseId: 1,
		Units: []NewTrackedUnit{
			{SerialNumber: "ONT00000001"},
			{SerialNumber: "  ", MacAddress: ""},
		},
	})
	assert.ErrorIs(t, err, utils.ErrValidation)
}

func TestTransitionUnitStatusRejectsUnknownStatus(t *testing.T) {
	unit := &TrackedUnit{ID: 1, Status: UnitStatusAvailable}
	err := TransitionUnitStatus(context.Background(), nil, unit, UnitStatus("melted"), "tester", "", nil)
	assert.ErrorIs(t, err, utils.ErrInvalidState)
	assert.Equal(t, UnitStatusAvailable, unit.Status)
}

func TestTransitionUnitStatusRejectsTerminalOrigin(t *testing.T) {
	for _, from := range []UnitStatus{UnitStatusLost, UnitStatusScrap, UnitStatusWrittenOff, UnitStatusReturnedToSupplier} {
		unit := &TrackedUnit{ID: 2, Status: from, LockVersion: 3}
		err := TransitionUnitStatus(context.Background(), nil, unit, UnitStatusAvailable, "tester", "", nil)
		assert.ErrorIs(t, err, utils.ErrInvalidState, "from %s", from)
		assert.Equal(t, from, unit.Status)
		assert.Equal(t, 3, unit.LockVersion)
	}
}

func TestAdjustUnitLengthRejectsNegative(t *testing.T) {
	unit := &TrackedUnit{ID: 3, InitialLength: decimal.NewFromInt(1000), CurrentLength: decimal.NewFromInt(700)}
	err := AdjustUnitLengthTx(nil, unit, decimal.NewFromInt(-1), "stock audit", "tester")
	assert.ErrorIs(t, err, utils.ErrValidation)
	assert.True(t, unit.CurrentLength.Equal(decimal.NewFromInt(700)))
}

func TestAdjustUnitLengthRejectsExceedingInitial(t *testing.T) {
	unit := &TrackedUnit{ID: 3, InitialLength: decimal.NewFromInt(1000), CurrentLength: decimal.NewFromInt(700)}
	err := AdjustUnitLengthTx(nil, unit, decimal.NewFromInt(1001), "stock audit", "tester")
	assert.ErrorIs(t, err, utils.ErrValidation)
	assert.True(t, unit.CurrentLength.Equal(decimal.NewFromInt(700)))
}

func TestAdjustUnitLengthRequiresReason(t *testing.T) {
	unit := &TrackedUnit{ID: 3, InitialLength: decimal.NewFromInt(1000), CurrentLength: decimal.NewFromInt(700)}
	err := AdjustUnitLengthTx(nil, unit, decimal.NewFromInt(500), "", "tester")
	assert.ErrorIs(t, err, utils.ErrValidation)
}
