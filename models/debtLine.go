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
	"gorm.io/gorm/clause"
)

// DebtLine is one outstanding custody record: inventory a technician has
// taken but not yet returned, installed, or paid off. Kind selects the
// variant: quantity lines consume StockCounter, unit lines reference exactly
// one TrackedUnit (qty_taken is always 1). Lines are never deleted.
//
// Derived fields:
//
//	current_debt_qty   = qty_taken - qty_returned - qty_installed - qty_settled
//	current_debt_value = round2(current_debt_qty * unit_price)
//
// qty_settled carries the portion a settlement paid off, converted back to
// quantity via the unit price snapshot.
type DebtLine struct {
	ID               int             `gorm:"primary_key" json:"id"`
	CheckoutId       int             `gorm:"index;not null" json:"checkout_id"`
	TechnicianId     int             `gorm:"index;not null" json:"technician_id"`
	AssetTypeId      int             `gorm:"index;not null" json:"asset_type_id"`
	WarehouseId      int             `gorm:"index;not null" json:"warehouse_id"` // origin warehouse
	Kind             DebtLineKind    `gorm:"type:enum('Q','U');not null" json:"kind"`
	TrackedUnitId    *int            `gorm:"index" json:"tracked_unit_id"`
	QtyTaken         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty_taken"`
	QtyReturned      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty_returned"`
	QtyInstalled     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty_installed"`
	QtySettled       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty_settled"`
	UnitPrice        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"` // snapshot at checkout
	CurrentDebtQty   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"current_debt_qty"`
	CurrentDebtValue decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"current_debt_value"`
	Status           DebtLineStatus  `gorm:"size:30;index;not null;default:'active'" json:"status"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Recompute refreshes the derived fields from the running quantities.
// written_off is sticky; every other status is derived.
func (l *DebtLine) Recompute() {
	l.CurrentDebtQty = l.QtyTaken.Sub(l.QtyReturned).Sub(l.QtyInstalled).Sub(l.QtySettled)
	if l.CurrentDebtQty.IsNegative() {
		l.CurrentDebtQty = decimal.Zero
	}
	l.CurrentDebtValue = utils.RoundMoney(l.CurrentDebtQty.Mul(l.UnitPrice))

	if l.Status == DebtLineStatusWrittenOff {
		return
	}
	switch {
	case !l.CurrentDebtQty.IsPositive():
		l.Status = DebtLineStatusFullySettled
	case l.CurrentDebtQty.LessThan(l.QtyTaken):
		l.Status = DebtLineStatusPartiallyReturned
	default:
		l.Status = DebtLineStatusActive
	}
}

// Open reports whether the line can still absorb returns/installs/settlements.
func (l *DebtLine) Open() bool {
	return l.Status == DebtLineStatusActive || l.Status == DebtLineStatusPartiallyReturned
}

// SaveDerived persists the running counters and derived fields after a
// Recompute, inside the caller's transaction.
func (l *DebtLine) SaveDerived(tx *gorm.DB) error {
	return tx.Model(&DebtLine{}).Where("id = ?", l.ID).Updates(map[string]interface{}{
		"qty_returned":       l.QtyReturned,
		"qty_installed":      l.QtyInstalled,
		"qty_settled":        l.QtySettled,
		"current_debt_qty":   l.CurrentDebtQty,
		"current_debt_value": l.CurrentDebtValue,
		"status":             l.Status,
	}).Error
}

// LockDebtLine loads the line FOR UPDATE inside the caller's transaction so
// concurrent returns/settlements on the same line serialize.
func LockDebtLine(tx *gorm.DB, id int) (*DebtLine, error) {
	var line DebtLine
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&line, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: debt line %d", utils.ErrorRecordNotFound, id)
		}
		return nil, err
	}
	return &line, nil
}

func GetDebtLine(ctx context.Context, id int) (*DebtLine, error) {
	var line DebtLine
	db := config.GetDB()
	if err := db.WithContext(ctx).First(&line, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: debt line %d", utils.ErrorRecordNotFound, id)
		}
		return nil, err
	}
	return &line, nil
}

// GetTechnicianDebtLines backs the field app's "what do I owe" view.
func GetTechnicianDebtLines(ctx context.Context, technicianId int, openOnly bool) ([]*DebtLine, error) {
	var lines []*DebtLine
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("technician_id = ?", technicianId)
	if openOnly {
		dbCtx = dbCtx.Where("status IN ?", []DebtLineStatus{DebtLineStatusActive, DebtLineStatusPartiallyReturned})
	}
	if err := dbCtx.Order("id ASC").Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

// GetTechnicianDebtTotal sums the outstanding debt value for one technician.
func GetTechnicianDebtTotal(ctx context.Context, technicianId int) (decimal.Decimal, error) {
	db := config.GetDB()
	return TechnicianOpenDebtTotal(db.WithContext(ctx), technicianId)
}

func TechnicianOpenDebtTotal(tx *gorm.DB, technicianId int) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := tx.Model(&DebtLine{}).
		Select("COALESCE(SUM(current_debt_value), 0)").
		Where("technician_id = ?", technicianId).
		Where("status IN ?", []DebtLineStatus{DebtLineStatusActive, DebtLineStatusPartiallyReturned}).
		Scan(&total).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return total, nil
}
