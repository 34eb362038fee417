package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sis-billing-api/internal/models"
	appErrors "github.com/noah-isme/sis-billing-api/pkg/errors"
)

func TestComputeFeeBreakdown(t *testing.T) {
	fee := &models.GradeLevelFee{TuitionFee: 2000000, MiscFee: 500000, LaboratoryFee: 0}

	breakdown := ComputeFeeBreakdown(fee, 0)
	assert.Equal(t, int64(2000000), breakdown.Tuition)
	assert.Equal(t, int64(500000), breakdown.Miscellaneous)
	assert.Equal(t, int64(0), breakdown.Discount)
	assert.Equal(t, int64(2500000), breakdown.Total)
}

func TestComputeFeeBreakdownWithDiscount(t *testing.T) {
	fee := &models.GradeLevelFee{TuitionFee: 2000000, MiscFee: 500000, LaboratoryFee: 300000}

	breakdown := ComputeFeeBreakdown(fee, 10)
	assert.Equal(t, int64(280000), breakdown.Discount)
	assert.Equal(t, int64(2520000), breakdown.Total)
}

func TestComputeFeeBreakdownMissingSchedule(t *testing.T) {
	breakdown := ComputeFeeBreakdown(nil, 25)
	assert.Equal(t, models.FeeBreakdown{}, breakdown)
}

func TestComputeFeeBreakdownIdempotent(t *testing.T) {
	fee := &models.GradeLevelFee{TuitionFee: 1234567, MiscFee: 89, LaboratoryFee: 101}
	assert.Equal(t, ComputeFeeBreakdown(fee, 7), ComputeFeeBreakdown(fee, 7))
}

func TestBuildPaymentPlanFull(t *testing.T) {
	now := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)

	plan := BuildPaymentPlan(100000, models.PlanFull, now)
	require.Len(t, plan.Schedule, 1)
	assert.Equal(t, int64(95000), plan.Schedule[0].Amount)
	assert.Equal(t, 0.05, plan.DiscountRate)
	assert.Equal(t, now.AddDate(0, 0, 30), plan.Schedule[0].DueDate)
}

func TestBuildPaymentPlanQuarterly(t *testing.T) {
	now := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)

	plan := BuildPaymentPlan(2500000, models.PlanQuarterly, now)
	require.Len(t, plan.Schedule, 4)
	for _, inst := range plan.Schedule {
		assert.Equal(t, int64(625000), inst.Amount)
	}
	assert.Equal(t, now.AddDate(0, 0, 30), plan.Schedule[0].DueDate)
	assert.Equal(t, now.AddDate(0, 3, 0), plan.Schedule[1].DueDate)
	assert.Equal(t, now.AddDate(0, 6, 0), plan.Schedule[2].DueDate)
	assert.Equal(t, now.AddDate(0, 9, 0), plan.Schedule[3].DueDate)
}

func TestBuildPaymentPlanSemestral(t *testing.T) {
	now := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)

	plan := BuildPaymentPlan(1000000, models.PlanSemestral, now)
	require.Len(t, plan.Schedule, 2)
	assert.Equal(t, int64(970000), plan.TotalDue)
	assert.Equal(t, int64(485000), plan.Schedule[0].Amount)
	assert.Equal(t, int64(485000), plan.Schedule[1].Amount)
	assert.Equal(t, now.AddDate(0, 6, 0), plan.Schedule[1].DueDate)
}

func TestBuildPaymentPlanMonthly(t *testing.T) {
	now := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)

	plan := BuildPaymentPlan(1000001, models.PlanMonthly, now)
	require.Len(t, plan.Schedule, 10)
	assert.Equal(t, int64(100001), plan.Schedule[0].Amount)
	for i := 1; i < 10; i++ {
		assert.Equal(t, int64(100000), plan.Schedule[i].Amount)
		assert.Equal(t, now.AddDate(0, i+1, 0), plan.Schedule[i].DueDate)
	}
}

func TestBuildPaymentPlanUnknownKindFallsBackToFull(t *testing.T) {
	now := time.Now()

	plan := BuildPaymentPlan(200000, models.PaymentPlanKind("BIWEEKLY"), now)
	assert.Equal(t, models.PlanFull, plan.Kind)
	require.Len(t, plan.Schedule, 1)
	assert.Equal(t, int64(190000), plan.Schedule[0].Amount)
}

func TestBuildPaymentPlanSumInvariant(t *testing.T) {
	now := time.Now()
	kinds := []models.PaymentPlanKind{models.PlanFull, models.PlanSemestral, models.PlanQuarterly, models.PlanMonthly}
	totals := []int64{0, 1, 99, 100000, 2500075, 999999999}

	for _, kind := range kinds {
		for _, total := range totals {
			plan := BuildPaymentPlan(total, kind, now)
			var sum int64
			for _, inst := range plan.Schedule {
				sum += inst.Amount
			}
			assert.Equal(t, plan.TotalDue, sum, "kind=%s total=%d", kind, total)
		}
	}
}

func TestDerivePaymentStatus(t *testing.T) {
	cases := []struct {
		name string
		net  int64
		paid int64
		want models.PaymentStatus
	}{
		{"nothing paid", 2500000, 0, models.PaymentStatusPending},
		{"partially paid", 2500000, 1, models.PaymentStatusPartial},
		{"almost paid", 2500000, 2499999, models.PaymentStatusPartial},
		{"exactly paid", 2500075, 2500075, models.PaymentStatusPaid},
		{"overpaid", 2500000, 3000000, models.PaymentStatusPaid},
		{"zero net", 0, 0, models.PaymentStatusPaid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DerivePaymentStatus(tc.net, tc.paid))
		})
	}
}

func TestComputeDiscount(t *testing.T) {
	amount, err := ComputeDiscount(2500000, models.DiscountTypePercentage, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(250000), amount)

	amount, err = ComputeDiscount(2500000, models.DiscountTypeFixed, 123456)
	require.NoError(t, err)
	assert.Equal(t, int64(123456), amount)
}

func TestComputeDiscountInvalid(t *testing.T) {
	_, err := ComputeDiscount(2500000, models.DiscountTypePercentage, -5)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidDiscount))

	_, err = ComputeDiscount(2500000, models.DiscountType("LOYALTY"), 5)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidDiscount))

	_, err = ComputeDiscount(2500000, models.DiscountTypePercentage, 101)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidDiscount))
}

func TestApplyPaymentAmountsBalanceInvariant(t *testing.T) {
	net := int64(2500075)
	var paid int64
	payments := []int64{500000, 1000000, 1000075}

	for _, p := range payments {
		var balance int64
		var status models.PaymentStatus
		paid, balance, status = applyPaymentAmounts(net, paid, p)
		expected := net - paid
		if expected < 0 {
			expected = 0
		}
		assert.Equal(t, expected, balance)
		if balance == 0 {
			assert.Equal(t, models.PaymentStatusPaid, status)
		}
	}
	assert.Equal(t, net, paid)
}
