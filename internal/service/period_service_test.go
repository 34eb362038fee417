package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sis-billing-api/internal/models"
	appErrors "github.com/noah-isme/sis-billing-api/pkg/errors"
)

type mockPeriodRepo struct {
	periods map[string]*models.EnrollmentPeriod
}

func newMockPeriodRepo() *mockPeriodRepo {
	return &mockPeriodRepo{periods: make(map[string]*models.EnrollmentPeriod)}
}

func (m *mockPeriodRepo) List(ctx context.Context, filter models.EnrollmentPeriodFilter) ([]models.EnrollmentPeriod, int, error) {
	var out []models.EnrollmentPeriod
	for _, p := range m.periods {
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (m *mockPeriodRepo) FindByID(ctx context.Context, id string) (*models.EnrollmentPeriod, error) {
	if p, ok := m.periods[id]; ok {
		copy := *p
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPeriodRepo) FindActive(ctx context.Context) (*models.EnrollmentPeriod, error) {
	for _, p := range m.periods {
		if p.Active {
			copy := *p
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockPeriodRepo) Create(ctx context.Context, period *models.EnrollmentPeriod) error {
	period.ID = fmt.Sprintf("per-%d", len(m.periods)+1)
	copy := *period
	m.periods[period.ID] = &copy
	return nil
}

func (m *mockPeriodRepo) Update(ctx context.Context, period *models.EnrollmentPeriod) error {
	copy := *period
	m.periods[period.ID] = &copy
	return nil
}

func (m *mockPeriodRepo) SetActive(ctx context.Context, id string) error {
	for _, p := range m.periods {
		p.Active = p.ID == id
	}
	return nil
}

func TestPeriodServiceActivateDeactivatesOthers(t *testing.T) {
	repo := newMockPeriodRepo()
	now := time.Now().UTC()
	repo.periods["per-1"] = &models.EnrollmentPeriod{ID: "per-1", SchoolYear: "2025-2026", Active: true, StartDate: now.AddDate(-1, 0, 0), EndDate: now.AddDate(0, -6, 0)}
	repo.periods["per-2"] = &models.EnrollmentPeriod{ID: "per-2", SchoolYear: "2026-2027", StartDate: now.AddDate(0, -1, 0), EndDate: now.AddDate(0, 2, 0)}
	svc := NewPeriodService(repo, nil, nil)

	period, err := svc.Activate(context.Background(), "per-2")
	require.NoError(t, err)
	assert.True(t, period.Active)
	assert.False(t, repo.periods["per-1"].Active)

	active, err := svc.Active(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "per-2", active.ID)
}

func TestPeriodServiceActiveNone(t *testing.T) {
	svc := NewPeriodService(newMockPeriodRepo(), nil, nil)

	_, err := svc.Active(context.Background())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestPeriodServiceCreateValidatesWindow(t *testing.T) {
	svc := NewPeriodService(newMockPeriodRepo(), nil, nil)
	now := time.Now().UTC()

	_, err := svc.Create(context.Background(), UpsertPeriodRequest{
		Name:       "SY 2026-2027 Regular",
		SchoolYear: "2026-2027",
		StartDate:  now,
		EndDate:    now.AddDate(0, 0, -1),
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestPeriodServiceCreate(t *testing.T) {
	repo := newMockPeriodRepo()
	svc := NewPeriodService(repo, nil, nil)
	now := time.Now().UTC()

	period, err := svc.Create(context.Background(), UpsertPeriodRequest{
		Name:             "SY 2026-2027 Regular",
		SchoolYear:       "2026-2027",
		StartDate:        now,
		EndDate:          now.AddDate(0, 3, 0),
		AcceptsNew:       true,
		AcceptsReturning: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, period.ID)
	assert.False(t, period.Active)
	assert.True(t, period.Open(now.AddDate(0, 1, 0)))
}
