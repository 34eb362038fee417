package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sis-billing-api/internal/models"
	appErrors "github.com/noah-isme/sis-billing-api/pkg/errors"
)

type mockFeeScheduleRepo struct {
	fees map[string]*models.GradeLevelFee
}

func newMockFeeScheduleRepo() *mockFeeScheduleRepo {
	return &mockFeeScheduleRepo{fees: make(map[string]*models.GradeLevelFee)}
}

func (m *mockFeeScheduleRepo) List(ctx context.Context, filter models.GradeLevelFeeFilter) ([]models.GradeLevelFee, int, error) {
	var out []models.GradeLevelFee
	for _, f := range m.fees {
		out = append(out, *f)
	}
	return out, len(out), nil
}

func (m *mockFeeScheduleRepo) FindByID(ctx context.Context, id string) (*models.GradeLevelFee, error) {
	if f, ok := m.fees[id]; ok {
		copy := *f
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockFeeScheduleRepo) FindActive(ctx context.Context, gradeLevel int, periodID string) (*models.GradeLevelFee, error) {
	for _, f := range m.fees {
		if f.GradeLevel == gradeLevel && f.PeriodID == periodID && f.Active {
			copy := *f
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockFeeScheduleRepo) Create(ctx context.Context, fee *models.GradeLevelFee) error {
	for _, f := range m.fees {
		if f.GradeLevel == fee.GradeLevel && f.PeriodID == fee.PeriodID {
			f.Active = false
		}
	}
	fee.ID = "fee-" + fee.SchoolYear
	copy := *fee
	m.fees[fee.ID] = &copy
	return nil
}

func (m *mockFeeScheduleRepo) Update(ctx context.Context, fee *models.GradeLevelFee) error {
	copy := *fee
	m.fees[fee.ID] = &copy
	return nil
}

func (m *mockFeeScheduleRepo) Delete(ctx context.Context, id string) error {
	delete(m.fees, id)
	return nil
}

func TestFeeScheduleServiceCreateSupersedesActive(t *testing.T) {
	repo := newMockFeeScheduleRepo()
	repo.fees["fee-old"] = &models.GradeLevelFee{
		ID: "fee-old", GradeLevel: 1, PeriodID: "per-1", SchoolYear: "2025-2026",
		TuitionFee: 1800000, Active: true,
	}
	svc := NewFeeScheduleService(repo, nil, nil, nil)

	fee, err := svc.Create(context.Background(), UpsertFeeScheduleRequest{
		GradeLevel: 1,
		PeriodID:   "per-1",
		SchoolYear: "2026-2027",
		TuitionFee: 2000000,
		MiscFee:    500000,
	})
	require.NoError(t, err)
	assert.True(t, fee.Active)
	assert.False(t, repo.fees["fee-old"].Active)

	active, err := repo.FindActive(context.Background(), 1, "per-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2000000), active.TuitionFee)
}

func TestFeeScheduleServiceCreateValidates(t *testing.T) {
	svc := NewFeeScheduleService(newMockFeeScheduleRepo(), nil, nil, nil)

	_, err := svc.Create(context.Background(), UpsertFeeScheduleRequest{
		GradeLevel: 13,
		PeriodID:   "per-1",
		SchoolYear: "2026-2027",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestFeeScheduleServiceUpdate(t *testing.T) {
	repo := newMockFeeScheduleRepo()
	repo.fees["fee-1"] = &models.GradeLevelFee{
		ID: "fee-1", GradeLevel: 2, PeriodID: "per-1", SchoolYear: "2026-2027",
		TuitionFee: 2100000, Active: true,
	}
	svc := NewFeeScheduleService(repo, nil, nil, nil)

	fee, err := svc.Update(context.Background(), "fee-1", UpsertFeeScheduleRequest{
		GradeLevel: 2,
		PeriodID:   "per-1",
		SchoolYear: "2026-2027",
		TuitionFee: 2200000,
		MiscFee:    550000,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2200000), fee.TuitionFee)
	assert.Equal(t, int64(550000), fee.MiscFee)
}

func TestFeeScheduleServiceGetNotFound(t *testing.T) {
	svc := NewFeeScheduleService(newMockFeeScheduleRepo(), nil, nil, nil)

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
