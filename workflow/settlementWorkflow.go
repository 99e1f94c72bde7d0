package workflow

import (
	"context"
	"fmt"
	"sort"

	"github.com/mmdatafocus/isp_backend/config"
	"github.com/mmdatafocus/isp_backend/models"
	"github.com/mmdatafocus/isp_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type NewSettlement struct {
	TechnicianId    int                   `json:"technician_id" binding:"required"`
	DebtLineIds     []int                 `json:"debt_line_ids" binding:"required"`
	Type            models.SettlementType `json:"type" binding:"required"`
	SalaryDeduction decimal.Decimal       `json:"salary_deduction"`
	CashPayment     decimal.Decimal       `json:"cash_payment"`
}

// SettlementAllocation is one line's share of the payment.
type SettlementAllocation struct {
	DebtLineId      int
	DebtValueBefore decimal.Decimal
	AllocatedValue  decimal.Decimal
}

// AllocateSettlement splits payment across lines greedily: largest debt value
// first, ties broken by id ascending. Deterministic so reruns and replicas
// agree on the split.
func AllocateSettlement(lines []*models.DebtLine, payment decimal.Decimal) []SettlementAllocation {
	ordered := make([]*models.DebtLine, len(lines))
	copy(ordered, lines)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CurrentDebtValue.Equal(ordered[j].CurrentDebtValue) {
			return ordered[i].CurrentDebtValue.GreaterThan(ordered[j].CurrentDebtValue)
		}
		return ordered[i].ID < ordered[j].ID
	})

	allocations := make([]SettlementAllocation, 0, len(ordered))
	remaining := payment
	for _, line := range ordered {
		if !remaining.IsPositive() {
			break
		}
		alloc := decimal.Min(remaining, line.CurrentDebtValue)
		if !alloc.IsPositive() {
			continue
		}
		allocations = append(allocations, SettlementAllocation{
			DebtLineId:      line.ID,
			DebtValueBefore: line.CurrentDebtValue,
			AllocatedValue:  alloc,
		})
		remaining = remaining.Sub(alloc)
	}
	return allocations
}

// ProcessSettlement closes debt value for one technician against a payment
// split. Every referenced line must be open and owned by the technician; the
// payment may not exceed the lines' combined value.
func ProcessSettlement(ctx context.Context, logger *logrus.Logger, input *NewSettlement) (*models.Settlement, error) {
	if len(input.DebtLineIds) == 0 {
		return nil, fmt.Errorf("%w: at least one debt line is required", utils.ErrValidation)
	}
	if !input.Type.Known() {
		return nil, fmt.Errorf("%w: unknown settlement type %q", utils.ErrValidation, input.Type)
	}
	if input.SalaryDeduction.IsNegative() || input.CashPayment.IsNegative() {
		return nil, fmt.Errorf("%w: payment amounts cannot be negative", utils.ErrValidation)
	}
	payment := input.SalaryDeduction.Add(input.CashPayment)
	if !payment.IsPositive() {
		return nil, fmt.Errorf("%w: settlement payment must be positive", utils.ErrValidation)
	}

	technician, err := models.GetTechnician(ctx, input.TechnicianId)
	if err != nil {
		config.LogError(logger, "settlementWorkflow.go", "ProcessSettlement", "GetTechnician", input.TechnicianId, err)
		return nil, err
	}

	actor, _ := utils.GetUserNameFromContext(ctx)
	db := config.GetDB()

	var settlement models.Settlement
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireTechnicianCustodyLock(tx, technician.ID); err != nil {
			return err
		}
		defer ReleaseTechnicianCustodyLock(tx, technician.ID)

		lines := make([]*models.DebtLine, 0, len(input.DebtLineIds))
		linesById := make(map[int]*models.DebtLine, len(input.DebtLineIds))
		totalDebt := decimal.Zero
		for _, id := range utils.MergeIntSlices(input.DebtLineIds) {
			line, err := models.LockDebtLine(tx, id)
			if err != nil {
				return err
			}
			if line.TechnicianId != technician.ID {
				return fmt.Errorf("%w: debt line %d does not belong to technician %d", utils.ErrValidation, line.ID, technician.ID)
			}
			if !line.Open() {
				return fmt.Errorf("%w: debt line %d is %s", utils.ErrInvalidState, line.ID, line.Status)
			}
			lines = append(lines, line)
			linesById[line.ID] = line
			totalDebt = totalDebt.Add(line.CurrentDebtValue)
		}

		if payment.GreaterThan(totalDebt) {
			return fmt.Errorf("%w: payment %s exceeds outstanding debt %s",
				utils.ErrOverpayment, payment, totalDebt)
		}

		settlement = models.Settlement{
			TechnicianId:    technician.ID,
			Type:            input.Type,
			TotalDebtAmount: utils.RoundMoney(totalDebt),
			SalaryDeduction: utils.RoundMoney(input.SalaryDeduction),
			CashPayment:     utils.RoundMoney(input.CashPayment),
			RemainingDebt:   utils.RoundMoney(totalDebt.Sub(payment)),
			Status:          models.SettlementStatusCompleted,
			CreatedBy:       actor,
		}
		if err := tx.Create(&settlement).Error; err != nil {
			return err
		}

		for _, alloc := range AllocateSettlement(lines, payment) {
			line := linesById[alloc.DebtLineId]

			// Exact payoff zeroes the quantity outright so no rounding
			// residue keeps a paid-off line open.
			var qtyDelta decimal.Decimal
			if alloc.AllocatedValue.Equal(line.CurrentDebtValue) {
				qtyDelta = line.CurrentDebtQty
			} else {
				qtyDelta = alloc.AllocatedValue.DivRound(line.UnitPrice, 4)
			}
			line.QtySettled = line.QtySettled.Add(qtyDelta)
			line.Recompute()
			if err := line.SaveDerived(tx); err != nil {
				return err
			}

			item := models.SettlementItem{
				SettlementId:    settlement.ID,
				DebtLineId:      line.ID,
				DebtValueBefore: alloc.DebtValueBefore,
				AllocatedValue:  alloc.AllocatedValue,
				AllocatedQty:    qtyDelta,
			}
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
		}

		payload := map[string]interface{}{
			"settlement_id":    settlement.ID,
			"technician_id":    technician.ID,
			"technician_name":  technician.Name,
			"settlement_type":  settlement.Type,
			"total_debt":       settlement.TotalDebtAmount,
			"salary_deduction": settlement.SalaryDeduction,
			"cash_payment":     settlement.CashPayment,
			"remaining_debt":   settlement.RemainingDebt,
		}
		if _, err := models.PublishToNotification(ctx, tx, models.EventTypeDebtSettled, settlement.ID, models.EventReferenceTypeSettlement, actor, payload); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return models.GetSettlement(ctx, settlement.ID)
}
