package service

import (
	"time"

	"github.com/noah-isme/sis-billing-api/internal/models"
	appErrors "github.com/noah-isme/sis-billing-api/pkg/errors"
)

// Payment plan contracts: installment count and discount in basis points.
// Unknown kinds fall back to the full plan.
var planContracts = map[models.PaymentPlanKind]struct {
	installments int
	discountBP   int64
}{
	models.PlanFull:      {installments: 1, discountBP: 500},
	models.PlanSemestral: {installments: 2, discountBP: 300},
	models.PlanQuarterly: {installments: 4, discountBP: 0},
	models.PlanMonthly:   {installments: 10, discountBP: 0},
}

// ComputeFeeBreakdown derives a fee breakdown from a grade-level fee schedule.
// A nil schedule yields an all-zero breakdown; a missing fee record is a valid
// business state, not an error. All arithmetic is integer minor currency units.
func ComputeFeeBreakdown(fee *models.GradeLevelFee, discountPercent int64) models.FeeBreakdown {
	if fee == nil {
		return models.FeeBreakdown{}
	}
	total := fee.TuitionFee + fee.MiscFee + fee.LaboratoryFee
	discount := total * discountPercent / 100
	return models.FeeBreakdown{
		Tuition:       fee.TuitionFee,
		Miscellaneous: fee.MiscFee,
		Laboratory:    fee.LaboratoryFee,
		Discount:      discount,
		Total:         total - discount,
	}
}

// BuildPaymentPlan generates the installment schedule for a plan kind. The
// schedule amounts always sum exactly to the discounted total; the integer
// remainder of an even split lands on the first installment.
func BuildPaymentPlan(totalAmount int64, kind models.PaymentPlanKind, now time.Time) models.PaymentPlan {
	contract, ok := planContracts[kind]
	if !ok {
		kind = models.PlanFull
		contract = planContracts[models.PlanFull]
	}

	discount := totalAmount * contract.discountBP / 10000
	totalDue := totalAmount - discount

	n := int64(contract.installments)
	base := totalDue / n
	remainder := totalDue % n

	schedule := make([]models.Installment, contract.installments)
	for i := range schedule {
		amount := base
		if i == 0 {
			amount += remainder
		}
		schedule[i] = models.Installment{
			Sequence: i + 1,
			DueDate:  installmentDueDate(kind, now, i),
			Amount:   amount,
		}
	}

	return models.PaymentPlan{
		Kind:         kind,
		Installments: contract.installments,
		DiscountRate: float64(contract.discountBP) / 10000,
		TotalDue:     totalDue,
		Schedule:     schedule,
	}
}

func installmentDueDate(kind models.PaymentPlanKind, now time.Time, index int) time.Time {
	switch kind {
	case models.PlanSemestral:
		if index == 0 {
			return now.AddDate(0, 0, 30)
		}
		return now.AddDate(0, 6, 0)
	case models.PlanQuarterly:
		if index == 0 {
			return now.AddDate(0, 0, 30)
		}
		return now.AddDate(0, 3*index, 0)
	case models.PlanMonthly:
		return now.AddDate(0, index+1, 0)
	default:
		return now.AddDate(0, 0, 30)
	}
}

// DerivePaymentStatus is the single source of truth for payment status:
// PAID when nothing remains, PARTIAL when something was paid, else PENDING.
func DerivePaymentStatus(netAmount, amountPaid int64) models.PaymentStatus {
	balance := netAmount - amountPaid
	if balance <= 0 {
		return models.PaymentStatusPaid
	}
	if amountPaid > 0 {
		return models.PaymentStatusPartial
	}
	return models.PaymentStatusPending
}

// ComputeDiscount validates a discount request against the enrollment total and
// returns the discount amount in minor units.
func ComputeDiscount(totalAmount int64, kind models.DiscountType, value int64) (int64, error) {
	if value < 0 {
		return 0, appErrors.Clone(appErrors.ErrInvalidDiscount, "discount value must not be negative")
	}
	switch kind {
	case models.DiscountTypePercentage:
		if value > 100 {
			return 0, appErrors.Clone(appErrors.ErrInvalidDiscount, "percentage discount must not exceed 100")
		}
		return totalAmount * value / 100, nil
	case models.DiscountTypeFixed:
		return value, nil
	default:
		return 0, appErrors.Clone(appErrors.ErrInvalidDiscount, "unknown discount kind")
	}
}

// applyPaymentAmounts rolls a payment into the enrollment monetary snapshot.
func applyPaymentAmounts(netAmount, amountPaid, payment int64) (newPaid, newBalance int64, status models.PaymentStatus) {
	newPaid = amountPaid + payment
	newBalance = netAmount - newPaid
	if newBalance < 0 {
		newBalance = 0
	}
	return newPaid, newBalance, DerivePaymentStatus(netAmount, newPaid)
}
