package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/isp_backend/config"
	"github.com/mmdatafocus/isp_backend/models"
	"github.com/mmdatafocus/isp_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// NewReturnLine is one returned line. Quantity lines carry Qty; tracked-unit
// lines carry Disposition, the condition the unit came back in.
type NewReturnLine struct {
	DebtLineId  int               `json:"debt_line_id" binding:"required"`
	Qty         decimal.Decimal   `json:"qty"`
	Disposition models.UnitStatus `json:"disposition"`
}

type NewReturn struct {
	TechnicianId int             `json:"technician_id" binding:"required"`
	WarehouseId  int             `json:"warehouse_id" binding:"required"` // destination
	Lines        []NewReturnLine `json:"lines" binding:"required"`
	Notes        string          `json:"notes"`
}

// ProcessReturn takes inventory back from a technician. Quantity lines flow
// back into the destination warehouse's stock counter; tracked units
// transition to the reported disposition. All-or-nothing.
func ProcessReturn(ctx context.Context, logger *logrus.Logger, input *NewReturn) ([]*models.DebtLine, error) {
	if len(input.Lines) == 0 {
		return nil, fmt.Errorf("%w: at least one return line is required", utils.ErrValidation)
	}

	technician, err := models.GetTechnician(ctx, input.TechnicianId)
	if err != nil {
		config.LogError(logger, "returnWorkflow.go", "ProcessReturn", "GetTechnician", input.TechnicianId, err)
		return nil, err
	}

	actor, _ := utils.GetUserNameFromContext(ctx)
	db := config.GetDB()

	updated := make([]*models.DebtLine, 0, len(input.Lines))
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireTechnicianCustodyLock(tx, technician.ID); err != nil {
			return err
		}
		defer ReleaseTechnicianCustodyLock(tx, technician.ID)

		if err := models.ValidateWarehouseExists(tx, input.WarehouseId); err != nil {
			return err
		}

		for _, lineInput := range input.Lines {
			line, err := processReturnLine(ctx, tx, technician.ID, input.WarehouseId, lineInput, actor)
			if err != nil {
				config.LogError(logger, "returnWorkflow.go", "ProcessReturn", "processReturnLine", lineInput, err)
				return err
			}
			updated = append(updated, line)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func processReturnLine(ctx context.Context, tx *gorm.DB, technicianId int, warehouseId int, input NewReturnLine, actor string) (*models.DebtLine, error) {
	line, err := models.LockDebtLine(tx, input.DebtLineId)
	if err != nil {
		return nil, err
	}
	if line.TechnicianId != technicianId {
		return nil, fmt.Errorf("%w: debt line %d does not belong to technician %d", utils.ErrValidation, line.ID, technicianId)
	}
	if !line.Open() {
		return nil, fmt.Errorf("%w: debt line %d is %s", utils.ErrInvalidState, line.ID, line.Status)
	}

	switch line.Kind {
	case models.DebtLineKindQuantity:
		if !input.Qty.IsPositive() {
			return nil, fmt.Errorf("%w: quantity must be positive for debt line %d", utils.ErrValidation, line.ID)
		}
		if input.Qty.GreaterThan(line.CurrentDebtQty) {
			return nil, fmt.Errorf("%w: returning %s, outstanding %s (debt line %d)",
				utils.ErrInsufficientDebtBalance, input.Qty, line.CurrentDebtQty, line.ID)
		}
		if err := models.ReturnStockToWarehouse(tx, line.AssetTypeId, line.WarehouseId, warehouseId, input.Qty); err != nil {
			return nil, err
		}
		line.QtyReturned = line.QtyReturned.Add(input.Qty)

	case models.DebtLineKindUnit:
		if !input.Disposition.IsDisposition() {
			return nil, fmt.Errorf("%w: %q is not a valid return disposition", utils.ErrValidation, input.Disposition)
		}
		if line.TrackedUnitId == nil {
			return nil, fmt.Errorf("%w: debt line %d has no tracked unit", utils.ErrInvalidState, line.ID)
		}
		unit, err := models.GetTrackedUnitTx(tx, *line.TrackedUnitId)
		if err != nil {
			return nil, err
		}
		if !unit.Status.CanReturn() {
			return nil, fmt.Errorf("%w: unit %d is %s", utils.ErrInvalidState, unit.ID, unit.Status)
		}
		// Only a unit coming back usable re-enters the warehouse.
		var destWarehouse *int
		if input.Disposition == models.UnitStatusAvailable {
			destWarehouse = &warehouseId
		}
		notes := fmt.Sprintf("returned against debt line #%d", line.ID)
		if err := models.TransitionUnitStatus(ctx, tx, unit, input.Disposition, actor, notes, destWarehouse); err != nil {
			return nil, err
		}
		line.QtyReturned = line.QtyTaken

	default:
		return nil, fmt.Errorf("%w: unknown debt line kind %q", utils.ErrInvalidState, line.Kind)
	}

	line.Recompute()
	if err := line.SaveDerived(tx); err != nil {
		return nil, err
	}
	return line, nil
}
