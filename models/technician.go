package models

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mmdatafocus/isp_backend/config"
	"github.com/mmdatafocus/isp_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Technician is the custody counterpart: the employee holding inventory in
// the field. Employee master data (contacts, roles, salary) lives in the
// HR module; only the custody-relevant slice is modeled here.
type Technician struct {
	ID          int             `gorm:"primary_key" json:"id"`
	EmployeeId  int             `gorm:"index;not null" json:"employee_id"`
	Name        string          `gorm:"size:100;not null" json:"name" binding:"required"`
	DebtCeiling decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"debt_ceiling"` // 0 = use DEBT_CEILING_DEFAULT
	IsActive    *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewTechnician struct {
	EmployeeId  int             `json:"employee_id"`
	Name        string          `json:"name" binding:"required"`
	DebtCeiling decimal.Decimal `json:"debt_ceiling"`
}

func CreateTechnician(ctx context.Context, input *NewTechnician) (*Technician, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("%w: technician name is required", utils.ErrValidation)
	}
	technician := Technician{
		EmployeeId:  input.EmployeeId,
		Name:        input.Name,
		DebtCeiling: input.DebtCeiling,
		IsActive:    utils.NewTrue(),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&technician).Error; err != nil {
		return nil, err
	}
	return &technician, nil
}

func GetTechnician(ctx context.Context, id int) (*Technician, error) {
	var technician Technician
	db := config.GetDB()
	if err := db.WithContext(ctx).First(&technician, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: technician %d", utils.ErrorRecordNotFound, id)
		}
		return nil, err
	}
	return &technician, nil
}

// EffectiveDebtCeiling resolves the per-technician ceiling, falling back to
// DEBT_CEILING_DEFAULT. Zero means no ceiling is enforced.
func (t *Technician) EffectiveDebtCeiling() decimal.Decimal {
	if t.DebtCeiling.IsPositive() {
		return t.DebtCeiling
	}
	def := os.Getenv("DEBT_CEILING_DEFAULT")
	if def == "" {
		return decimal.Zero
	}
	ceiling, err := decimal.NewFromString(def)
	if err != nil {
		return decimal.Zero
	}
	return ceiling
}
