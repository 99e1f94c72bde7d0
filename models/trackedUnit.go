package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/mmdatafocus/isp_backend/config"
	"github.com/mmdatafocus/isp_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TrackedUnit is one physically identifiable item of a catalog type that
// tracks individual units. Cable drums additionally carry a remaining length.
// Units are never deleted; terminal statuses end their lifecycle.
type TrackedUnit struct {
	ID            int             `gorm:"primary_key" json:"id"`
	AssetTypeId   int             `gorm:"index;not null" json:"asset_type_id"`
	ReceiptLineId int             `gorm:"index;default:0" json:"receipt_line_id"`
	QrCode        string          `gorm:"size:100;uniqueIndex:uniq_unit_qr,where:qr_code != ''" json:"qr_code"`
	SerialNumber  string          `gorm:"size:100;index" json:"serial_number"`
	MacAddress    string          `gorm:"size:50;index" json:"mac_address"`
	Status        UnitStatus      `gorm:"size:40;index;not null;default:'available'" json:"status"`
	WarehouseId   *int            `gorm:"index" json:"warehouse_id"` // nil once outside a warehouse
	InitialLength decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"initial_length"`
	CurrentLength decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"current_length"`
	LockVersion   int             `gorm:"not null;default:0" json:"lock_version"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// UnitStatusChange is the immutable audit record for every status transition.
type UnitStatusChange struct {
	ID            int        `gorm:"primary_key" json:"id"`
	TrackedUnitId int        `gorm:"index;not null" json:"tracked_unit_id"`
	OldStatus     UnitStatus `gorm:"size:40;not null" json:"old_status"`
	NewStatus     UnitStatus `gorm:"size:40;not null" json:"new_status"`
	Actor         string     `gorm:"size:100;not null" json:"actor"`
	Notes         string     `gorm:"type:text" json:"notes"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// UnitLengthChange is the immutable audit record for every cable length
// adjustment. Exactly one record explains each change of current_length.
type UnitLengthChange struct {
	ID            int             `gorm:"primary_key" json:"id"`
	TrackedUnitId int             `gorm:"index;not null" json:"tracked_unit_id"`
	OldLength     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"old_length"`
	NewLength     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"new_length"`
	Delta         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"delta"`
	Reason        string          `gorm:"size:255;not null" json:"reason"`
	Actor         string          `gorm:"size:100;not null" json:"actor"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewTrackedUnit struct {
	SerialNumber  string          `json:"serial_number"`
	MacAddress    string          `json:"mac_address"`
	InitialLength decimal.Decimal `json:"initial_length"`
}

type NewTrackedUnitReceipt struct {
	AssetTypeId   int              `json:"asset_type_id" binding:"required"`
	WarehouseId   int              `json:"warehouse_id" binding:"required"`
	ReceiptLineId int              `json:"receipt_line_id"`
	Units         []NewTrackedUnit `json:"units" binding:"required"`
}

func GetTrackedUnit(ctx context.Context, id int) (*TrackedUnit, error) {
	var unit TrackedUnit
	db := config.GetDB()
	if err := db.WithContext(ctx).First(&unit, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: tracked unit %d", utils.ErrorRecordNotFound, id)
		}
		return nil, err
	}
	return &unit, nil
}

func GetTrackedUnitTx(tx *gorm.DB, id int) (*TrackedUnit, error) {
	var unit TrackedUnit
	if err := tx.First(&unit, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: tracked unit %d", utils.ErrorRecordNotFound, id)
		}
		return nil, err
	}
	return &unit, nil
}

// ReceiveTrackedUnits creates units in `available` at the receiving
// warehouse. Receiving is the only place units come into existence. Every
// unit must arrive with at least one hard identifier (serial or mac); the
// QR code is issued later through AssignUnitIdentifier.
func ReceiveTrackedUnits(ctx context.Context, input *NewTrackedUnitReceipt) ([]*TrackedUnit, error) {
	if len(input.Units) == 0 {
		return nil, fmt.Errorf("%w: at least one unit is required", utils.ErrValidation)
	}
	for i, u := range input.Units {
		if strings.TrimSpace(u.SerialNumber) == "" && strings.TrimSpace(u.MacAddress) == "" {
			return nil, fmt.Errorf("%w: unit %d requires a serial number or mac address", utils.ErrValidation, i+1)
		}
	}

	db := config.GetDB()
	assetType, err := GetAssetType(ctx, input.AssetTypeId)
	if err != nil {
		return nil, err
	}
	if !assetType.Tracked() {
		return nil, fmt.Errorf("%w: asset type %q does not track individual units", utils.ErrValidation, assetType.Name)
	}

	created := make([]*TrackedUnit, 0, len(input.Units))
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ValidateWarehouseExists(tx, input.WarehouseId); err != nil {
			return err
		}
		for _, u := range input.Units {
			initialLength := decimal.Zero
			if assetType.LengthBased() {
				if !u.InitialLength.IsPositive() {
					return fmt.Errorf("%w: length-based unit requires a positive initial length", utils.ErrValidation)
				}
				initialLength = u.InitialLength
			}
			warehouseId := input.WarehouseId
			unit := TrackedUnit{
				AssetTypeId:   input.AssetTypeId,
				ReceiptLineId: input.ReceiptLineId,
				SerialNumber:  u.SerialNumber,
				MacAddress:    u.MacAddress,
				Status:        UnitStatusAvailable,
				WarehouseId:   &warehouseId,
				InitialLength: initialLength,
				CurrentLength: initialLength,
			}
			if err := tx.Create(&unit).Error; err != nil {
				return err
			}
			created = append(created, &unit)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// TransitionUnitStatus moves a unit to newStatus inside the caller's
// transaction. The lock_version check makes concurrent transitions on the
// same unit mutually exclusive; losers get ErrConcurrencyConflict and must
// retry the whole operation.
func TransitionUnitStatus(ctx context.Context, tx *gorm.DB, unit *TrackedUnit, newStatus UnitStatus, actor string, notes string, warehouseId *int) error {
	if !newStatus.Known() {
		return fmt.Errorf("%w: unknown status %q", utils.ErrInvalidState, newStatus)
	}
	if unit.Status.IsTerminal() {
		return fmt.Errorf("%w: unit %d is %s", utils.ErrInvalidState, unit.ID, unit.Status)
	}

	updates := map[string]interface{}{
		"status":       newStatus,
		"lock_version": gorm.Expr("lock_version + 1"),
	}
	if warehouseId != nil {
		updates["warehouse_id"] = *warehouseId
	} else if newStatus != UnitStatusAvailable && newStatus != UnitStatusInRepair {
		// Outside a warehouse once loaned/installed/terminal.
		updates["warehouse_id"] = nil
	}

	result := tx.Model(&TrackedUnit{}).
		Where("id = ? AND lock_version = ?", unit.ID, unit.LockVersion).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: tracked unit %d was modified concurrently", utils.ErrConcurrencyConflict, unit.ID)
	}

	change := UnitStatusChange{
		TrackedUnitId: unit.ID,
		OldStatus:     unit.Status,
		NewStatus:     newStatus,
		Actor:         actor,
		Notes:         notes,
	}
	if err := tx.Create(&change).Error; err != nil {
		return err
	}

	if _, err := PublishToNotification(ctx, tx, EventTypeUnitStatusChanged, unit.ID, EventReferenceTypeTrackedUnit, actor, &change); err != nil {
		return err
	}

	unit.Status = newStatus
	unit.LockVersion++
	if warehouseId != nil {
		unit.WarehouseId = warehouseId
	}
	return nil
}

// AdjustUnitLength records a cable length audit. Independent of status: a
// cable can be audited while loaned or installed. current_length only moves
// through here, so every change has exactly one audit record.
func AdjustUnitLength(ctx context.Context, unitId int, newLength decimal.Decimal, reason string, actor string) (*TrackedUnit, error) {
	db := config.GetDB()
	var unit *TrackedUnit
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		unit, err = GetTrackedUnitTx(tx, unitId)
		if err != nil {
			return err
		}
		return AdjustUnitLengthTx(tx, unit, newLength, reason, actor)
	})
	if err != nil {
		return nil, err
	}
	return unit, nil
}

// AdjustUnitLengthTx is the in-transaction variant used when a length change
// must commit atomically with other custody mutations.
func AdjustUnitLengthTx(tx *gorm.DB, unit *TrackedUnit, newLength decimal.Decimal, reason string, actor string) error {
	if newLength.IsNegative() {
		return fmt.Errorf("%w: length cannot be negative", utils.ErrValidation)
	}
	if newLength.GreaterThan(unit.InitialLength) {
		return fmt.Errorf("%w: length %s exceeds initial length %s", utils.ErrValidation, newLength, unit.InitialLength)
	}
	if reason == "" {
		return fmt.Errorf("%w: length adjustment requires a reason", utils.ErrValidation)
	}
	assetType, err := GetAssetTypeTx(tx, unit.AssetTypeId)
	if err != nil {
		return err
	}
	if !assetType.LengthBased() {
		return fmt.Errorf("%w: unit %d is not length-based", utils.ErrValidation, unit.ID)
	}

	result := tx.Model(&TrackedUnit{}).
		Where("id = ? AND lock_version = ?", unit.ID, unit.LockVersion).
		Updates(map[string]interface{}{
			"current_length": newLength,
			"lock_version":   gorm.Expr("lock_version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: tracked unit %d was modified concurrently", utils.ErrConcurrencyConflict, unit.ID)
	}

	change := UnitLengthChange{
		TrackedUnitId: unit.ID,
		OldLength:     unit.CurrentLength,
		NewLength:     newLength,
		Delta:         newLength.Sub(unit.CurrentLength),
		Reason:        reason,
		Actor:         actor,
	}
	if err := tx.Create(&change).Error; err != nil {
		return err
	}

	unit.CurrentLength = newLength
	unit.LockVersion++
	return nil
}

// AssignUnitIdentifier issues the unit's QR code: at most one per unit,
// globally unique, retry-until-unique. A redis lock serializes issuance
// across instances so concurrent printers never race on the same code.
func AssignUnitIdentifier(ctx context.Context, unitId int) (*TrackedUnit, error) {
	db := config.GetDB()

	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, "unit-identifier-issuance", 10*time.Second, &redislock.Options{
			RetryStrategy: redislock.LinearBackoff(100 * time.Millisecond),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: identifier issuance is busy", utils.ErrConcurrencyConflict)
		}
		defer lock.Release(ctx)
	}

	var unit *TrackedUnit
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		unit, err = GetTrackedUnitTx(tx, unitId)
		if err != nil {
			return err
		}
		if unit.QrCode != "" {
			return fmt.Errorf("%w: unit %d already has identifier %s", utils.ErrValidation, unit.ID, unit.QrCode)
		}

		for attempt := 0; attempt < 10; attempt++ {
			code := generateUnitIdentifier()
			var count int64
			if err := tx.Model(&TrackedUnit{}).Where("qr_code = ?", code).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			if err := tx.Model(&TrackedUnit{}).Where("id = ?", unit.ID).Update("qr_code", code).Error; err != nil {
				return err
			}
			unit.QrCode = code
			return nil
		}
		return fmt.Errorf("%w: could not generate a unique identifier", utils.ErrConcurrencyConflict)
	})
	if err != nil {
		return nil, err
	}
	return unit, nil
}

func generateUnitIdentifier() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "QR-" + strings.ToUpper(raw[:12])
}

func GetUnitStatusChanges(ctx context.Context, unitId int) ([]*UnitStatusChange, error) {
	var changes []*UnitStatusChange
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("tracked_unit_id = ?", unitId).Order("id ASC").Find(&changes).Error; err != nil {
		return nil, err
	}
	return changes, nil
}

func GetUnitLengthChanges(ctx context.Context, unitId int) ([]*UnitLengthChange, error) {
	var changes []*UnitLengthChange
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("tracked_unit_id = ?", unitId).Order("id ASC").Find(&changes).Error; err != nil {
		return nil, err
	}
	return changes, nil
}
