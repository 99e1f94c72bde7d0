package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/isp_backend/config"
	"github.com/mmdatafocus/isp_backend/models"
	"github.com/mmdatafocus/isp_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// NewCheckoutLine is one requested line: either a quantity of a non-tracked
// asset type or one specific tracked unit. Exactly one of Qty/TrackedUnitId
// is set depending on the asset type's tracking config.
type NewCheckoutLine struct {
	AssetTypeId   int             `json:"asset_type_id" binding:"required"`
	Qty           decimal.Decimal `json:"qty"`
	TrackedUnitId int             `json:"tracked_unit_id"`
}

type NewCheckout struct {
	TechnicianId int               `json:"technician_id" binding:"required"`
	WarehouseId  int               `json:"warehouse_id" binding:"required"`
	Lines        []NewCheckoutLine `json:"lines" binding:"required"`
	Notes        string            `json:"notes"`
}

// ProcessCheckout hands inventory to a technician: stock counters drop (or
// units go loaned) and one debt line per request line opens. All-or-nothing:
// any failing line rolls back the whole request.
//
// The debt ceiling is a soft gate: exceeding it flags the checkout for the
// approval workflow but never blocks it.
func ProcessCheckout(ctx context.Context, logger *logrus.Logger, input *NewCheckout) (*models.Checkout, error) {
	if len(input.Lines) == 0 {
		return nil, fmt.Errorf("%w: at least one checkout line is required", utils.ErrValidation)
	}

	technician, err := models.GetTechnician(ctx, input.TechnicianId)
	if err != nil {
		config.LogError(logger, "checkoutWorkflow.go", "ProcessCheckout", "GetTechnician", input.TechnicianId, err)
		return nil, err
	}

	actor, _ := utils.GetUserNameFromContext(ctx)
	db := config.GetDB()

	var checkout models.Checkout
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireTechnicianCustodyLock(tx, technician.ID); err != nil {
			return err
		}
		defer ReleaseTechnicianCustodyLock(tx, technician.ID)

		if err := models.ValidateWarehouseExists(tx, input.WarehouseId); err != nil {
			return err
		}

		// Pre-existing debt, read under the custody lock so the ceiling
		// comparison cannot race another checkout for the same technician.
		preexistingDebt, err := models.TechnicianOpenDebtTotal(tx, technician.ID)
		if err != nil {
			return err
		}

		checkout = models.Checkout{
			TechnicianId: technician.ID,
			WarehouseId:  input.WarehouseId,
			Notes:        input.Notes,
			CreatedBy:    actor,
			ExceedsLimit: utils.NewFalse(),
		}
		if err := tx.Create(&checkout).Error; err != nil {
			return err
		}

		totalValue := decimal.Zero
		for _, lineInput := range input.Lines {
			line, err := processCheckoutLine(ctx, tx, &checkout, input.WarehouseId, lineInput, actor)
			if err != nil {
				config.LogError(logger, "checkoutWorkflow.go", "ProcessCheckout", "processCheckoutLine", lineInput, err)
				return err
			}
			totalValue = totalValue.Add(line.CurrentDebtValue)
		}
		totalValue = utils.RoundMoney(totalValue)

		exceedsLimit := false
		ceiling := technician.EffectiveDebtCeiling()
		if ceiling.IsPositive() && preexistingDebt.Add(totalValue).GreaterThan(ceiling) {
			exceedsLimit = true
		}

		if err := tx.Model(&models.Checkout{}).Where("id = ?", checkout.ID).Updates(map[string]interface{}{
			"total_value":   totalValue,
			"exceeds_limit": exceedsLimit,
		}).Error; err != nil {
			return err
		}
		checkout.TotalValue = totalValue
		checkout.ExceedsLimit = &exceedsLimit

		if exceedsLimit {
			payload := map[string]interface{}{
				"checkout_id":      checkout.ID,
				"technician_id":    technician.ID,
				"technician_name":  technician.Name,
				"checkout_value":   totalValue,
				"preexisting_debt": preexistingDebt,
				"debt_ceiling":     ceiling,
			}
			if _, err := models.PublishToNotification(ctx, tx, models.EventTypeCheckoutExceedsLimit, checkout.ID, models.EventReferenceTypeCheckout, actor, payload); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return models.GetCheckout(ctx, checkout.ID)
}

func processCheckoutLine(ctx context.Context, tx *gorm.DB, checkout *models.Checkout, warehouseId int, input NewCheckoutLine, actor string) (*models.DebtLine, error) {
	assetType, err := models.GetAssetTypeTx(tx, input.AssetTypeId)
	if err != nil {
		return nil, err
	}

	line := models.DebtLine{
		CheckoutId:   checkout.ID,
		TechnicianId: checkout.TechnicianId,
		AssetTypeId:  assetType.ID,
		WarehouseId:  warehouseId,
		UnitPrice:    assetType.UnitPrice,
	}

	if assetType.Tracked() {
		if input.TrackedUnitId == 0 {
			return nil, fmt.Errorf("%w: asset type %q requires a tracked unit id", utils.ErrValidation, assetType.Name)
		}
		unit, err := models.GetTrackedUnitTx(tx, input.TrackedUnitId)
		if err != nil {
			return nil, err
		}
		if unit.AssetTypeId != assetType.ID {
			return nil, fmt.Errorf("%w: unit %d does not belong to asset type %q", utils.ErrUnitNotAvailable, unit.ID, assetType.Name)
		}
		if !unit.Status.CanCheckout() {
			return nil, fmt.Errorf("%w: unit %d is %s", utils.ErrUnitNotAvailable, unit.ID, unit.Status)
		}
		if unit.WarehouseId == nil || *unit.WarehouseId != warehouseId {
			return nil, fmt.Errorf("%w: unit %d is not at warehouse %d", utils.ErrUnitNotAvailable, unit.ID, warehouseId)
		}
		if err := models.TransitionUnitStatus(ctx, tx, unit, models.UnitStatusLoaned, actor, fmt.Sprintf("checkout #%d", checkout.ID), nil); err != nil {
			return nil, err
		}
		unitId := unit.ID
		line.Kind = models.DebtLineKindUnit
		line.TrackedUnitId = &unitId
		line.QtyTaken = decimal.NewFromInt(1)
	} else {
		if !input.Qty.IsPositive() {
			return nil, fmt.Errorf("%w: quantity must be positive for asset type %q", utils.ErrValidation, assetType.Name)
		}
		if err := models.DecrementAvailableStock(tx, assetType.ID, warehouseId, input.Qty); err != nil {
			return nil, err
		}
		line.Kind = models.DebtLineKindQuantity
		line.QtyTaken = input.Qty
	}

	line.Recompute()
	if err := tx.Create(&line).Error; err != nil {
		return nil, err
	}
	return &line, nil
}

// ApproveCheckout attaches the approver to a flagged checkout. Approval is
// post-hoc metadata; nothing is blocked while it is missing.
func ApproveCheckout(ctx context.Context, checkoutId int, approvedBy string) (*models.Checkout, error) {
	if approvedBy == "" {
		return nil, fmt.Errorf("%w: approver is required", utils.ErrValidation)
	}
	checkout, err := models.GetCheckout(ctx, checkoutId)
	if err != nil {
		return nil, err
	}
	if checkout.ExceedsLimit == nil || !*checkout.ExceedsLimit {
		return nil, fmt.Errorf("%w: checkout %d is not flagged for approval", utils.ErrValidation, checkoutId)
	}
	now := time.Now().UTC()
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&models.Checkout{}).Where("id = ?", checkoutId).Updates(map[string]interface{}{
		"approved_by": approvedBy,
		"approved_at": now,
	}).Error; err != nil {
		return nil, err
	}
	checkout.ApprovedBy = &approvedBy
	checkout.ApprovedAt = &now
	return checkout, nil
}
