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

// NewInstallation discharges part or all of a debt line into a customer-site
// fixture. Quantity lines carry Qty; cable lines carry LengthInstalled;
// non-cable tracked units need neither, the whole unit goes in.
type NewInstallation struct {
	TechnicianId      int             `json:"technician_id" binding:"required"`
	DebtLineId        int             `json:"debt_line_id" binding:"required"`
	CustomerId        int             `json:"customer_id" binding:"required"`
	ServiceLocationId int             `json:"service_location_id"`
	TicketId          int             `json:"ticket_id"`
	Qty               decimal.Decimal `json:"qty"`
	LengthInstalled   decimal.Decimal `json:"length_installed"`
}

// ProcessInstallation converts outstanding debt into an installed asset
// record. Tracked units transition to installed; cable drums additionally
// get a length audit for the consumed footage, and their value is pro-rated
// against the type's standard unit length.
func ProcessInstallation(ctx context.Context, logger *logrus.Logger, input *NewInstallation) (*models.InstalledAssetRecord, error) {
	technician, err := models.GetTechnician(ctx, input.TechnicianId)
	if err != nil {
		config.LogError(logger, "installationWorkflow.go", "ProcessInstallation", "GetTechnician", input.TechnicianId, err)
		return nil, err
	}

	actor, _ := utils.GetUserNameFromContext(ctx)
	db := config.GetDB()

	var record models.InstalledAssetRecord
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireTechnicianCustodyLock(tx, technician.ID); err != nil {
			return err
		}
		defer ReleaseTechnicianCustodyLock(tx, technician.ID)

		line, err := models.LockDebtLine(tx, input.DebtLineId)
		if err != nil {
			return err
		}
		if line.TechnicianId != technician.ID {
			return fmt.Errorf("%w: debt line %d does not belong to technician %d", utils.ErrValidation, line.ID, technician.ID)
		}
		if !line.Open() {
			return fmt.Errorf("%w: debt line %d is %s", utils.ErrInvalidState, line.ID, line.Status)
		}

		assetType, err := models.GetAssetTypeTx(tx, line.AssetTypeId)
		if err != nil {
			return err
		}

		record = models.InstalledAssetRecord{
			DebtLineId:        line.ID,
			AssetTypeId:       line.AssetTypeId,
			CustomerId:        input.CustomerId,
			ServiceLocationId: input.ServiceLocationId,
			TicketId:          input.TicketId,
			Status:            models.InstalledAssetStatusInstalled,
			InstalledBy:       actor,
		}

		switch line.Kind {
		case models.DebtLineKindQuantity:
			if !input.Qty.IsPositive() {
				return fmt.Errorf("%w: installed quantity must be positive", utils.ErrValidation)
			}
			if input.Qty.GreaterThan(line.CurrentDebtQty) {
				return fmt.Errorf("%w: installing %s, outstanding %s (debt line %d)",
					utils.ErrInsufficientDebtBalance, input.Qty, line.CurrentDebtQty, line.ID)
			}
			line.QtyInstalled = line.QtyInstalled.Add(input.Qty)
			record.QtyInstalled = input.Qty
			record.ValueAtInstall = utils.RoundMoney(input.Qty.Mul(line.UnitPrice))

		case models.DebtLineKindUnit:
			if line.TrackedUnitId == nil {
				return fmt.Errorf("%w: debt line %d has no tracked unit", utils.ErrInvalidState, line.ID)
			}
			unit, err := models.GetTrackedUnitTx(tx, *line.TrackedUnitId)
			if err != nil {
				return err
			}
			if !unit.Status.CanInstall() {
				return fmt.Errorf("%w: unit %d is %s", utils.ErrUnitNotInstallable, unit.ID, unit.Status)
			}
			record.TrackedUnitId = line.TrackedUnitId
			record.QtyInstalled = line.QtyTaken

			if assetType.LengthBased() {
				if !input.LengthInstalled.IsPositive() {
					return fmt.Errorf("%w: installed length must be positive for asset type %q", utils.ErrValidation, assetType.Name)
				}
				if input.LengthInstalled.GreaterThan(unit.CurrentLength) {
					return fmt.Errorf("%w: installing %s, drum has %s remaining (unit %d)",
						utils.ErrUnitNotInstallable, input.LengthInstalled, unit.CurrentLength, unit.ID)
				}
				if !assetType.StandardUnitLength.IsPositive() {
					return fmt.Errorf("%w: asset type %q has no standard unit length", utils.ErrValidation, assetType.Name)
				}
				newLength := unit.CurrentLength.Sub(input.LengthInstalled)
				if err := models.AdjustUnitLengthTx(tx, unit, newLength, "installed at customer site", actor); err != nil {
					return err
				}
				record.LengthInstalled = input.LengthInstalled
				record.ValueAtInstall = utils.RoundMoney(
					input.LengthInstalled.Mul(line.UnitPrice).Div(assetType.StandardUnitLength))
			} else {
				record.ValueAtInstall = utils.RoundMoney(line.QtyTaken.Mul(line.UnitPrice))
			}

			notes := fmt.Sprintf("installed for customer #%d (debt line #%d)", input.CustomerId, line.ID)
			if err := models.TransitionUnitStatus(ctx, tx, unit, models.UnitStatusInstalled, actor, notes, nil); err != nil {
				return err
			}
			line.QtyInstalled = line.QtyTaken

		default:
			return fmt.Errorf("%w: unknown debt line kind %q", utils.ErrInvalidState, line.Kind)
		}

		line.Recompute()
		if err := line.SaveDerived(tx); err != nil {
			return err
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}
