package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sis-billing-api/internal/models"
	appErrors "github.com/noah-isme/sis-billing-api/pkg/errors"
	"github.com/noah-isme/sis-billing-api/pkg/export"
	"github.com/noah-isme/sis-billing-api/pkg/jobs"
	"github.com/noah-isme/sis-billing-api/pkg/storage"
)

// ReportFormat enumerates supported export encodings.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

type exportEnrollmentReader interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	CollectionsSummary(ctx context.Context, schoolYear string) (*models.CollectionsSummary, error)
}

type exportPaymentReader interface {
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Payment, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures metadata for a requested report file.
type ExportResult struct {
	JobID        string
	RelativePath string
	Token        string
	URL          string
	Format       ReportFormat
	ExpiresAt    time.Time
}

type collectionsReportPayload struct {
	SchoolYear string
	Format     ReportFormat
	RelPath    string
}

// ExportService renders invoices and collections reports. Collections reports
// are generated on a background queue; the signed download URL is handed out
// immediately and serves the file once the worker has written it.
type ExportService struct {
	enrollments exportEnrollmentReader
	payments    exportPaymentReader
	storage     fileStorage
	csv         csvRenderer
	pdf         pdfRenderer
	signer      *storage.SignedURLSigner
	queue       *jobs.Queue
	logger      *zap.Logger
	cfg         ExportConfig
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
	RenderInvoice(inv export.Invoice) ([]byte, error)
}

// NewExportService constructs an ExportService. The returned service owns its
// render queue; call StartQueue before requesting reports and StopQueue on
// shutdown.
func NewExportService(enrollments exportEnrollmentReader, payments exportPaymentReader, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	s := &ExportService{
		enrollments: enrollments,
		payments:    payments,
		storage:     store,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		signer:      signer,
		logger:      logger,
		cfg:         cfg,
	}
	s.queue = jobs.NewQueue("reports", s.handleReportJob, jobs.QueueConfig{
		Workers:    2,
		MaxRetries: 2,
		Logger:     logger,
	})
	return s
}

// StartQueue starts the background render workers.
func (s *ExportService) StartQueue(ctx context.Context) {
	s.queue.Start(ctx)
}

// StopQueue drains and stops the background render workers.
func (s *ExportService) StopQueue() {
	s.queue.Stop()
}

// Invoice renders a PDF invoice for an enrollment including its payment
// ledger. The bytes are returned inline; invoices are not persisted.
func (s *ExportService) Invoice(ctx context.Context, enrollmentID string) ([]byte, string, error) {
	detail, err := s.enrollments.FindDetailByID(ctx, enrollmentID)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}
	payments, err := s.payments.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payments")
	}

	inv := export.Invoice{
		ReferenceCode: detail.ReferenceCode,
		IssuedAt:      time.Now().UTC(),
		BilledTo:      detail.GuardianName,
		StudentName:   detail.StudentName,
		StudentLRN:    detail.StudentLRN,
		SchoolYear:    detail.SchoolYear,
		GradeLevel:    detail.GradeLevel,
		Lines: []export.InvoiceLine{
			{Description: "Tuition Fee", Amount: detail.TuitionFee},
			{Description: "Miscellaneous Fee", Amount: detail.MiscFee},
			{Description: "Laboratory Fee", Amount: detail.LaboratoryFee},
		},
		Total:      detail.TotalAmount,
		Discount:   detail.TotalAmount - detail.NetAmount,
		NetAmount:  detail.NetAmount,
		AmountPaid: detail.AmountPaid,
		Balance:    detail.Balance,
	}
	for _, p := range payments {
		label := string(p.Method)
		if p.RefundOf != nil {
			label = label + " (refund)"
		}
		inv.Payments = append(inv.Payments, export.InvoicePayment{
			ReceivedAt:  p.ReceivedAt,
			Description: label,
			ReferenceNo: p.ReferenceNo,
			Amount:      p.Amount,
		})
	}

	payload, err := s.pdf.RenderInvoice(inv)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render invoice")
	}
	filename := fmt.Sprintf("invoice_%s.pdf", sanitizeFilename(detail.ReferenceCode))
	return payload, filename, nil
}

// RequestCollectionsReport enqueues generation of a collections report and
// returns the signed download URL right away.
func (s *ExportService) RequestCollectionsReport(ctx context.Context, schoolYear string, format ReportFormat) (*ExportResult, error) {
	if schoolYear == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "school year is required")
	}
	switch format {
	case ReportFormatCSV, ReportFormatPDF:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", format))
	}

	jobID := uuid.NewString()
	timestamp := time.Now().UTC().Format("20060102_150405")
	relPath := fmt.Sprintf("collections_%s_%s.%s", sanitizeFilename(schoolYear), timestamp, format)

	token, expiresAt, err := s.signer.Generate(jobID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
	}

	if err := s.queue.Enqueue(jobs.Job{
		ID:   jobID,
		Type: "collections_report",
		Payload: collectionsReportPayload{
			SchoolYear: schoolYear,
			Format:     format,
			RelPath:    relPath,
		},
	}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return &ExportResult{
		JobID:        jobID,
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to a stored report file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Cleanup removes report files older than ttl (defaults to ResultTTL).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) handleReportJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(collectionsReportPayload)
	if !ok {
		return errors.New("unexpected report payload")
	}

	dataset, title, err := s.buildCollectionsDataset(ctx, payload.SchoolYear)
	if err != nil {
		return err
	}

	var rendered []byte
	switch payload.Format {
	case ReportFormatCSV:
		rendered, err = s.csv.Render(dataset)
	case ReportFormatPDF:
		rendered, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", payload.Format)
	}
	if err != nil {
		return err
	}

	if _, err := s.storage.Save(payload.RelPath, rendered); err != nil {
		return err
	}
	s.logger.Info("collections report generated",
		zap.String("job_id", job.ID),
		zap.String("school_year", payload.SchoolYear),
		zap.String("path", payload.RelPath))
	return nil
}

func (s *ExportService) buildCollectionsDataset(ctx context.Context, schoolYear string) (export.Dataset, string, error) {
	enrollments, _, err := s.enrollments.List(ctx, models.EnrollmentFilter{
		SchoolYear: schoolYear,
		Page:       1,
		PageSize:   10000,
	})
	if err != nil {
		return export.Dataset{}, "", err
	}
	summary, err := s.enrollments.CollectionsSummary(ctx, schoolYear)
	if err != nil {
		return export.Dataset{}, "", err
	}

	headers := []string{"Reference", "Student", "LRN", "Grade", "Status", "Net Amount", "Amount Paid", "Balance", "Payment Status"}
	rows := make([]map[string]string, 0, len(enrollments)+1)
	for _, e := range enrollments {
		rows = append(rows, map[string]string{
			"Reference":      e.ReferenceCode,
			"Student":        e.StudentName,
			"LRN":            e.StudentLRN,
			"Grade":          fmt.Sprintf("%d", e.GradeLevel),
			"Status":         string(e.Status),
			"Net Amount":     export.FormatAmount(e.NetAmount),
			"Amount Paid":    export.FormatAmount(e.AmountPaid),
			"Balance":        export.FormatAmount(e.Balance),
			"Payment Status": string(e.PaymentStatus),
		})
	}
	rows = append(rows, map[string]string{
		"Reference":   "TOTAL",
		"Student":     fmt.Sprintf("%d enrollments", summary.EnrollmentCount),
		"Net Amount":  export.FormatAmount(summary.TotalBilled),
		"Amount Paid": export.FormatAmount(summary.TotalCollected),
		"Balance":     export.FormatAmount(summary.TotalOutstanding),
	})

	title := fmt.Sprintf("Collections Report %s", schoolYear)
	return export.Dataset{Headers: headers, Rows: rows}, title, nil
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
