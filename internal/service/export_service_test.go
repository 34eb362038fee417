package service

import (
	"bytes"
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sis-billing-api/internal/models"
	appErrors "github.com/noah-isme/sis-billing-api/pkg/errors"
	"github.com/noah-isme/sis-billing-api/pkg/storage"
)

type mockExportEnrollments struct {
	detail  *models.EnrollmentDetail
	list    []models.EnrollmentDetail
	summary *models.CollectionsSummary
}

func (m *mockExportEnrollments) List(_ context.Context, _ models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return m.list, len(m.list), nil
}

func (m *mockExportEnrollments) FindDetailByID(_ context.Context, id string) (*models.EnrollmentDetail, error) {
	if m.detail == nil || m.detail.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.detail, nil
}

func (m *mockExportEnrollments) CollectionsSummary(_ context.Context, _ string) (*models.CollectionsSummary, error) {
	return m.summary, nil
}

type mockExportPayments struct {
	payments []models.Payment
}

func (m *mockExportPayments) ListByEnrollment(_ context.Context, _ string) ([]models.Payment, error) {
	return m.payments, nil
}

func exportDetailFixture() *models.EnrollmentDetail {
	return &models.EnrollmentDetail{
		Enrollment: models.Enrollment{
			ID:            "enr-1",
			ReferenceCode: "ENR-2026-000001",
			SchoolYear:    "2026-2027",
			GradeLevel:    6,
			Status:        models.EnrollmentStatusEnrolled,
			PaymentStatus: models.PaymentStatusPartial,
			TuitionFee:    2000000,
			MiscFee:       500000,
			TotalAmount:   2500000,
			NetAmount:     2500000,
			AmountPaid:    500000,
			Balance:       2000000,
		},
		StudentName:  "Maria Santos",
		StudentLRN:   "136742090021",
		GuardianName: "Jose Santos",
		PeriodName:   "SY 2026-2027 Regular",
	}
}

func newExportFixture(t *testing.T) (*ExportService, *mockExportEnrollments) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)

	detail := exportDetailFixture()
	enrollments := &mockExportEnrollments{
		detail: detail,
		list:   []models.EnrollmentDetail{*detail},
		summary: &models.CollectionsSummary{
			SchoolYear:       "2026-2027",
			EnrollmentCount:  1,
			TotalBilled:      2500000,
			TotalCollected:   500000,
			TotalOutstanding: 2000000,
		},
	}
	payments := &mockExportPayments{payments: []models.Payment{
		{ID: "pay-1", EnrollmentID: "enr-1", Amount: 500000, Method: models.PaymentMethodCash, ReceivedAt: time.Now().UTC()},
	}}

	svc := NewExportService(enrollments, payments, store, signer, ExportConfig{APIPrefix: "/api/v1"}, nil)
	return svc, enrollments
}

func TestExportServiceInvoice(t *testing.T) {
	svc, _ := newExportFixture(t)

	payload, filename, err := svc.Invoice(context.Background(), "enr-1")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(payload, []byte("%PDF")))
	assert.Equal(t, "invoice_ENR-2026-000001.pdf", filename)
}

func TestExportServiceInvoiceUnknownEnrollment(t *testing.T) {
	svc, _ := newExportFixture(t)

	_, _, err := svc.Invoice(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestExportServiceCollectionsReportLifecycle(t *testing.T) {
	svc, _ := newExportFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.StartQueue(ctx)
	defer svc.StopQueue()

	result, err := svc.RequestCollectionsReport(context.Background(), "2026-2027", ReportFormatCSV)
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)
	assert.Contains(t, result.URL, "/api/v1/export/")

	jobID, relPath, _, err := svc.ParseToken(result.Token, false)
	require.NoError(t, err)
	assert.Equal(t, result.JobID, jobID)
	assert.Equal(t, result.RelativePath, relPath)

	require.Eventually(t, func() bool {
		file, err := svc.Open(relPath)
		if err != nil {
			return false
		}
		defer file.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond, "report file was not rendered in time")

	file, err := svc.Open(relPath)
	require.NoError(t, err)
	defer file.Close()
	buf := make([]byte, 4096)
	n, _ := file.Read(buf)
	content := string(buf[:n])
	assert.Contains(t, content, "ENR-2026-000001")
	assert.Contains(t, content, "TOTAL")
}

func TestExportServiceCollectionsReportValidation(t *testing.T) {
	svc, _ := newExportFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.StartQueue(ctx)
	defer svc.StopQueue()

	_, err := svc.RequestCollectionsReport(context.Background(), "", ReportFormatCSV)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.RequestCollectionsReport(context.Background(), "2026-2027", ReportFormat("xlsx"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestExportServiceDownloadBeforeRender(t *testing.T) {
	svc, _ := newExportFixture(t)

	_, err := svc.Open("collections_2026-2027_never_rendered.csv")
	require.Error(t, err)
}
