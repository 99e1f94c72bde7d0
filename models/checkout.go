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

// Checkout groups the debt lines of one checkout request and carries the
// debt-ceiling soft gate: exceeds_limit never blocks the operation, it is
// recorded for the approval workflow to pick up afterwards.
type Checkout struct {
	ID           int             `gorm:"primary_key" json:"id"`
	TechnicianId int             `gorm:"index;not null" json:"technician_id"`
	WarehouseId  int             `gorm:"index;not null" json:"warehouse_id"`
	TotalValue   decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_value"`
	ExceedsLimit *bool           `gorm:"not null;default:false;index" json:"exceeds_limit"`
	ApprovedBy   *string         `gorm:"size:100" json:"approved_by"`
	ApprovedAt   *time.Time      `json:"approved_at"`
	Notes        string          `gorm:"type:text" json:"notes"`
	CreatedBy    string          `gorm:"size:100" json:"created_by"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	DebtLines []DebtLine `gorm:"foreignkey:CheckoutId" json:"debt_lines"`
}

func GetCheckout(ctx context.Context, id int) (*Checkout, error) {
	var checkout Checkout
	db := config.GetDB()
	if err := db.WithContext(ctx).Preload("DebtLines").First(&checkout, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: checkout %d", utils.ErrorRecordNotFound, id)
		}
		return nil, err
	}
	return &checkout, nil
}

// GetUnapprovedFlaggedCheckouts lists checkouts that exceeded the debt
// ceiling and still lack an approver.
func GetUnapprovedFlaggedCheckouts(ctx context.Context) ([]*Checkout, error) {
	var checkouts []*Checkout
	db := config.GetDB()
	if err := db.WithContext(ctx).
		Where("exceeds_limit = true AND approved_by IS NULL").
		Order("id ASC").
		Find(&checkouts).Error; err != nil {
		return nil, err
	}
	return checkouts, nil
}
