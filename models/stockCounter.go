package models

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/isp_backend/config"
	"github.com/mmdatafocus/isp_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockCounter holds total/available quantities for a non-tracked asset
// type at one warehouse. This is the hot row: concurrent checkouts against
// the same (asset type, warehouse) pair serialize on it via FOR UPDATE.
// Invariant: 0 <= available_qty <= total_qty.
type StockCounter struct {
	ID            int             `gorm:"primary_key" json:"id"`
	AssetTypeId   int             `gorm:"index:uniq_stock_counter,unique;not null" json:"asset_type_id"`
	WarehouseId   int             `gorm:"index:uniq_stock_counter,unique;not null" json:"warehouse_id"`
	TotalQty      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_qty"`
	AvailableQty  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"available_qty"`
	WrittenOffQty decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"written_off_qty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// lockStockCounter loads the counter row FOR UPDATE inside the caller's
// transaction, creating it on first touch.
func lockStockCounter(tx *gorm.DB, assetTypeId int, warehouseId int) (*StockCounter, error) {
	counter := StockCounter{
		AssetTypeId: assetTypeId,
		WarehouseId: warehouseId,
	}
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("asset_type_id = ? AND warehouse_id = ?", assetTypeId, warehouseId).
		FirstOrCreate(&counter)
	if result.Error != nil {
		return nil, result.Error
	}
	return &counter, nil
}

// DecrementAvailableStock takes qty out of available (checkout). The WHERE
// guard keeps available_qty from ever going negative even if two
// transactions interleave.
func DecrementAvailableStock(tx *gorm.DB, assetTypeId int, warehouseId int, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", utils.ErrValidation)
	}
	counter, err := lockStockCounter(tx, assetTypeId, warehouseId)
	if err != nil {
		return err
	}
	if counter.AvailableQty.LessThan(qty) {
		return fmt.Errorf("%w: requested %s, available %s (asset_type=%d warehouse=%d)",
			utils.ErrInsufficientStock, qty, counter.AvailableQty, assetTypeId, warehouseId)
	}
	result := tx.Exec(
		"UPDATE stock_counters SET available_qty = available_qty - ? WHERE id = ? AND available_qty >= ?",
		qty, counter.ID, qty,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: requested %s no longer available (asset_type=%d warehouse=%d)",
			utils.ErrInsufficientStock, qty, assetTypeId, warehouseId)
	}
	return nil
}

// IncrementAvailableStock puts qty back into available (return). The WHERE
// guard keeps available_qty from exceeding total_qty.
func IncrementAvailableStock(tx *gorm.DB, assetTypeId int, warehouseId int, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", utils.ErrValidation)
	}
	counter, err := lockStockCounter(tx, assetTypeId, warehouseId)
	if err != nil {
		return err
	}
	result := tx.Exec(
		"UPDATE stock_counters SET available_qty = available_qty + ? WHERE id = ? AND available_qty + ? <= total_qty",
		qty, counter.ID, qty,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: returning %s would exceed total quantity (asset_type=%d warehouse=%d)",
			utils.ErrValidation, qty, assetTypeId, warehouseId)
	}
	return nil
}

// ReturnStockToWarehouse puts returned quantity back into stock at the
// destination warehouse. Returning to the origin is a plain available
// increment; returning elsewhere also moves the quantity's share of
// total_qty so available <= total holds at both warehouses.
func ReturnStockToWarehouse(tx *gorm.DB, assetTypeId int, originWarehouseId int, destWarehouseId int, qty decimal.Decimal) error {
	if destWarehouseId == originWarehouseId {
		return IncrementAvailableStock(tx, assetTypeId, originWarehouseId, qty)
	}

	origin, err := lockStockCounter(tx, assetTypeId, originWarehouseId)
	if err != nil {
		return err
	}
	result := tx.Exec(
		"UPDATE stock_counters SET total_qty = total_qty - ? WHERE id = ? AND total_qty - ? >= available_qty",
		qty, origin.ID, qty,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: origin warehouse %d cannot release %s of asset_type %d",
			utils.ErrValidation, originWarehouseId, qty, assetTypeId)
	}

	dest, err := lockStockCounter(tx, assetTypeId, destWarehouseId)
	if err != nil {
		return err
	}
	return tx.Exec(
		"UPDATE stock_counters SET total_qty = total_qty + ?, available_qty = available_qty + ? WHERE id = ?",
		qty, qty, dest.ID,
	).Error
}

// ReceiveStock adds received quantity to both total and available.
func ReceiveStock(ctx context.Context, assetTypeId int, warehouseId int, qty decimal.Decimal) (*StockCounter, error) {
	if !qty.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive", utils.ErrValidation)
	}

	assetType, err := GetAssetType(ctx, assetTypeId)
	if err != nil {
		return nil, err
	}
	if assetType.Tracked() {
		return nil, fmt.Errorf("%w: asset type %q tracks individual units; receive tracked units instead", utils.ErrValidation, assetType.Name)
	}

	db := config.GetDB()
	var counter *StockCounter
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ValidateWarehouseExists(tx, warehouseId); err != nil {
			return err
		}
		var err error
		counter, err = lockStockCounter(tx, assetTypeId, warehouseId)
		if err != nil {
			return err
		}
		if err := tx.Exec(
			"UPDATE stock_counters SET total_qty = total_qty + ?, available_qty = available_qty + ? WHERE id = ?",
			qty, qty, counter.ID,
		).Error; err != nil {
			return err
		}
		return tx.First(counter, counter.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return counter, nil
}

// WriteOffStock removes quantity from available and total permanently,
// recording it in written_off_qty so conservation still balances.
func WriteOffStock(ctx context.Context, assetTypeId int, warehouseId int, qty decimal.Decimal) (*StockCounter, error) {
	if !qty.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive", utils.ErrValidation)
	}

	db := config.GetDB()
	var counter *StockCounter
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		counter, err = lockStockCounter(tx, assetTypeId, warehouseId)
		if err != nil {
			return err
		}
		if counter.AvailableQty.LessThan(qty) {
			return fmt.Errorf("%w: cannot write off %s, available %s", utils.ErrInsufficientStock, qty, counter.AvailableQty)
		}
		if err := tx.Exec(
			"UPDATE stock_counters SET total_qty = total_qty - ?, available_qty = available_qty - ?, written_off_qty = written_off_qty + ? WHERE id = ? AND available_qty >= ?",
			qty, qty, qty, counter.ID, qty,
		).Error; err != nil {
			return err
		}
		return tx.First(counter, counter.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return counter, nil
}

func GetStockCounter(ctx context.Context, assetTypeId int, warehouseId int) (*StockCounter, error) {
	var counter StockCounter
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("asset_type_id = ? AND warehouse_id = ?", assetTypeId, warehouseId).
		First(&counter).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return &StockCounter{AssetTypeId: assetTypeId, WarehouseId: warehouseId}, nil
		}
		return nil, err
	}
	return &counter, nil
}

func GetWarehouseStock(ctx context.Context, warehouseId int) ([]*StockCounter, error) {
	var counters []*StockCounter
	db := config.GetDB()
	if err := db.WithContext(ctx).
		Where("warehouse_id = ?", warehouseId).
		Not("total_qty = 0").
		Find(&counters).Error; err != nil {
		return nil, err
	}
	return counters, nil
}
