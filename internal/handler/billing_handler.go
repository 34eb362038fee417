package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sis-billing-api/internal/middleware"
	"github.com/noah-isme/sis-billing-api/internal/models"
	"github.com/noah-isme/sis-billing-api/internal/service"
	appErrors "github.com/noah-isme/sis-billing-api/pkg/errors"
	"github.com/noah-isme/sis-billing-api/pkg/response"
)

// BillingHandler exposes fee calculation, payment and reporting endpoints.
type BillingHandler struct {
	billing *service.BillingService
	exports *service.ExportService
}

// NewBillingHandler constructs BillingHandler.
func NewBillingHandler(billing *service.BillingService, exports *service.ExportService) *BillingHandler {
	return &BillingHandler{billing: billing, exports: exports}
}

// CalculateFees godoc
// @Summary Compute the fee breakdown for a grade level
// @Tags Billing
// @Produce json
// @Param gradeLevel query int true "Grade level"
// @Param periodId query string true "Enrollment period ID"
// @Param discountPercent query int false "Discount percent"
// @Success 200 {object} response.Envelope
// @Router /billing/fees [get]
func (h *BillingHandler) CalculateFees(c *gin.Context) {
	gradeLevel, err := strconv.Atoi(c.Query("gradeLevel"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "gradeLevel must be an integer"))
		return
	}
	periodID := c.Query("periodId")
	if periodID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "periodId is required"))
		return
	}
	discount, _ := strconv.ParseInt(c.DefaultQuery("discountPercent", "0"), 10, 64)

	breakdown, cached, err := h.billing.CalculateFees(c.Request.Context(), gradeLevel, periodID, discount)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, breakdown, nil, middleware.ExtractMeta(c))
}

type planRequest struct {
	TotalAmount int64                  `json:"total_amount" binding:"required"`
	Kind        models.PaymentPlanKind `json:"kind" binding:"required"`
}

// PaymentPlan godoc
// @Summary Quote an installment schedule
// @Tags Billing
// @Accept json
// @Produce json
// @Param payload body planRequest true "Plan payload"
// @Success 200 {object} response.Envelope
// @Router /billing/plan [post]
func (h *BillingHandler) PaymentPlan(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	plan := h.billing.PaymentPlan(req.TotalAmount, req.Kind)
	response.JSON(c, http.StatusOK, plan, nil)
}

// RecordPayment godoc
// @Summary Record a payment against an enrollment
// @Tags Billing
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.RecordPaymentRequest true "Payment payload"
// @Success 201 {object} response.Envelope
// @Router /enrollments/{id}/payments [post]
func (h *BillingHandler) RecordPayment(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, ""))
		return
	}
	var req service.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	detail, err := h.billing.RecordPayment(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

// ListPayments godoc
// @Summary List the payment ledger for an enrollment
// @Tags Billing
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/payments [get]
func (h *BillingHandler) ListPayments(c *gin.Context) {
	payments, err := h.billing.Payments(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, nil)
}

// Refund godoc
// @Summary Refund a recorded payment
// @Tags Billing
// @Produce json
// @Param paymentId path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Router /payments/{paymentId}/refund [post]
func (h *BillingHandler) Refund(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, ""))
		return
	}
	detail, err := h.billing.Refund(c.Request.Context(), c.Param("paymentId"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// ApplyDiscount godoc
// @Summary Apply a discount to an enrollment
// @Tags Billing
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.ApplyDiscountRequest true "Discount payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/discount [put]
func (h *BillingHandler) ApplyDiscount(c *gin.Context) {
	var req service.ApplyDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	detail, err := h.billing.ApplyDiscount(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Invoice godoc
// @Summary Download the PDF statement of account for an enrollment
// @Tags Billing
// @Produce application/pdf
// @Param id path string true "Enrollment ID"
// @Success 200 {file} binary
// @Router /enrollments/{id}/invoice [get]
func (h *BillingHandler) Invoice(c *gin.Context) {
	payload, filename, err := h.exports.Invoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", payload)
}

// CollectionsSummary godoc
// @Summary Collections summary for a school year
// @Tags Billing
// @Produce json
// @Param schoolYear query string true "School year"
// @Success 200 {object} response.Envelope
// @Router /billing/collections [get]
func (h *BillingHandler) CollectionsSummary(c *gin.Context) {
	summary, err := h.billing.CollectionsSummary(c.Request.Context(), c.Query("schoolYear"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

type collectionsReportRequest struct {
	SchoolYear string `json:"school_year" binding:"required"`
	Format     string `json:"format" binding:"required"`
}

// RequestCollectionsReport godoc
// @Summary Generate a collections report file
// @Tags Billing
// @Accept json
// @Produce json
// @Param payload body collectionsReportRequest true "Report payload"
// @Success 202 {object} response.Envelope
// @Router /billing/collections/report [post]
func (h *BillingHandler) RequestCollectionsReport(c *gin.Context) {
	var req collectionsReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.exports.RequestCollectionsReport(c.Request.Context(), req.SchoolYear, service.ReportFormat(strings.ToLower(req.Format)))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{
		"job_id":     result.JobID,
		"url":        result.URL,
		"format":     result.Format,
		"expires_at": result.ExpiresAt,
	}, nil)
}

// DownloadExport godoc
// @Summary Download a generated report by signed token
// @Tags Billing
// @Produce application/octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Router /export/{token} [get]
func (h *BillingHandler) DownloadExport(c *gin.Context) {
	_, relPath, _, err := h.exports.ParseToken(c.Param("token"), false)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token"))
		return
	}
	file, err := h.exports.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "report is not ready yet"))
		return
	}
	defer file.Close() //nolint:errcheck

	contentType := "text/csv"
	if strings.HasSuffix(relPath, ".pdf") {
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", relPath))
	c.Header("Content-Type", contentType)
	c.File(file.Name())
}
