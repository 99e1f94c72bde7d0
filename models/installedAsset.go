package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/isp_backend/config"
	"github.com/mmdatafocus/isp_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InstalledAssetRecord is the terminal artifact of discharging a debt line
// into a customer-site fixture. Immutable once created except the status
// hook (removed/replaced) used by the field app.
type InstalledAssetRecord struct {
	ID                int                  `gorm:"primary_key" json:"id"`
	DebtLineId        int                  `gorm:"index;not null" json:"debt_line_id"`
	TrackedUnitId     *int                 `gorm:"index" json:"tracked_unit_id"`
	AssetTypeId       int                  `gorm:"index;not null" json:"asset_type_id"`
	CustomerId        int                  `gorm:"index;not null" json:"customer_id"`
	ServiceLocationId int                  `gorm:"index" json:"service_location_id"`
	TicketId          int                  `gorm:"index" json:"ticket_id"`
	QtyInstalled      decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"qty_installed"`
	LengthInstalled   decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"length_installed"`
	ValueAtInstall    decimal.Decimal      `gorm:"type:decimal(20,2);not null" json:"value_at_install"`
	Status            InstalledAssetStatus `gorm:"size:20;index;not null;default:'installed'" json:"status"`
	InstalledBy       string               `gorm:"size:100" json:"installed_by"`
	CreatedAt         time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetInstalledAssetRecord(ctx context.Context, id int) (*InstalledAssetRecord, error) {
	var record InstalledAssetRecord
	db := config.GetDB()
	if err := db.WithContext(ctx).First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: installed asset record %d", utils.ErrorRecordNotFound, id)
		}
		return nil, err
	}
	return &record, nil
}

func GetCustomerInstalledAssets(ctx context.Context, customerId int) ([]*InstalledAssetRecord, error) {
	var records []*InstalledAssetRecord
	db := config.GetDB()
	if err := db.WithContext(ctx).
		Where("customer_id = ?", customerId).
		Order("id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// MarkInstalledAssetStatus is the removed/replaced hook. The only allowed
// moves are installed -> removed and installed -> replaced.
func MarkInstalledAssetStatus(ctx context.Context, id int, status InstalledAssetStatus) (*InstalledAssetRecord, error) {
	if status != InstalledAssetStatusRemoved && status != InstalledAssetStatusReplaced {
		return nil, fmt.Errorf("%w: installed asset status can only move to removed or replaced", utils.ErrValidation)
	}
	db := config.GetDB()
	record, err := GetInstalledAssetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status != InstalledAssetStatusInstalled {
		return nil, fmt.Errorf("%w: installed asset record %d is already %s", utils.ErrInvalidState, id, record.Status)
	}
	if err := db.WithContext(ctx).Model(record).Update("status", status).Error; err != nil {
		return nil, err
	}
	record.Status = status
	return record, nil
}
