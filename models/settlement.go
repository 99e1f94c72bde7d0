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

// Settlement closes debt value for one technician against a payment split.
// Immutable after creation except status; reversal is representable but has
// no workflow yet.
type Settlement struct {
	ID              int              `gorm:"primary_key" json:"id"`
	TechnicianId    int              `gorm:"index;not null" json:"technician_id"`
	Type            SettlementType   `gorm:"size:20;not null" json:"type"`
	TotalDebtAmount decimal.Decimal  `gorm:"type:decimal(20,2);not null" json:"total_debt_amount"`
	SalaryDeduction decimal.Decimal  `gorm:"type:decimal(20,2);not null" json:"salary_deduction"`
	CashPayment     decimal.Decimal  `gorm:"type:decimal(20,2);not null" json:"cash_payment"`
	RemainingDebt   decimal.Decimal  `gorm:"type:decimal(20,2);not null" json:"remaining_debt"`
	Status          SettlementStatus `gorm:"size:20;index;not null;default:'pending'" json:"status"`
	CreatedBy       string           `gorm:"size:100" json:"created_by"`
	CreatedAt       time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time        `gorm:"autoUpdateTime" json:"updated_at"`

	Items []SettlementItem `gorm:"foreignkey:SettlementId" json:"items"`
}

// SettlementItem records the portion of the payment applied to one debt line.
type SettlementItem struct {
	ID              int             `gorm:"primary_key" json:"id"`
	SettlementId    int             `gorm:"index;not null" json:"settlement_id"`
	DebtLineId      int             `gorm:"index;not null" json:"debt_line_id"`
	DebtValueBefore decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"debt_value_before"`
	AllocatedValue  decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"allocated_value"`
	AllocatedQty    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"allocated_qty"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func GetSettlement(ctx context.Context, id int) (*Settlement, error) {
	var settlement Settlement
	db := config.GetDB()
	if err := db.WithContext(ctx).Preload("Items").First(&settlement, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: settlement %d", utils.ErrorRecordNotFound, id)
		}
		return nil, err
	}
	return &settlement, nil
}

func GetTechnicianSettlements(ctx context.Context, technicianId int) ([]*Settlement, error) {
	var settlements []*Settlement
	db := config.GetDB()
	if err := db.WithContext(ctx).
		Where("technician_id = ?", technicianId).
		Order("id DESC").
		Find(&settlements).Error; err != nil {
		return nil, err
	}
	return settlements, nil
}
