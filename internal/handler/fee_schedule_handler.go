package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sis-billing-api/internal/models"
	"github.com/noah-isme/sis-billing-api/internal/service"
	appErrors "github.com/noah-isme/sis-billing-api/pkg/errors"
	"github.com/noah-isme/sis-billing-api/pkg/response"
)

// FeeScheduleHandler exposes grade-level fee schedule endpoints.
type FeeScheduleHandler struct {
	fees *service.FeeScheduleService
}

// NewFeeScheduleHandler constructs FeeScheduleHandler.
func NewFeeScheduleHandler(fees *service.FeeScheduleService) *FeeScheduleHandler {
	return &FeeScheduleHandler{fees: fees}
}

// List godoc
// @Summary List fee schedules
// @Tags Fees
// @Produce json
// @Param gradeLevel query int false "Filter by grade level"
// @Param periodId query string false "Filter by period"
// @Param schoolYear query string false "Filter by school year"
// @Param active query bool false "Filter by active"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /fees [get]
func (h *FeeScheduleHandler) List(c *gin.Context) {
	var filter models.GradeLevelFeeFilter
	if grade, err := strconv.Atoi(c.Query("gradeLevel")); err == nil {
		filter.GradeLevel = grade
	}
	filter.PeriodID = c.Query("periodId")
	filter.SchoolYear = c.Query("schoolYear")
	if raw := c.Query("active"); raw != "" {
		if active, err := strconv.ParseBool(raw); err == nil {
			filter.Active = &active
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	fees, pagination, err := h.fees.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fees, pagination)
}

// Get godoc
// @Summary Get fee schedule
// @Tags Fees
// @Produce json
// @Param id path string true "Fee schedule ID"
// @Success 200 {object} response.Envelope
// @Router /fees/{id} [get]
func (h *FeeScheduleHandler) Get(c *gin.Context) {
	fee, err := h.fees.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fee, nil)
}

// Create godoc
// @Summary Publish a fee schedule
// @Tags Fees
// @Accept json
// @Produce json
// @Param payload body service.UpsertFeeScheduleRequest true "Fee schedule payload"
// @Success 201 {object} response.Envelope
// @Router /fees [post]
func (h *FeeScheduleHandler) Create(c *gin.Context) {
	var req service.UpsertFeeScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	fee, err := h.fees.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, fee)
}

// Update godoc
// @Summary Update a fee schedule
// @Tags Fees
// @Accept json
// @Produce json
// @Param id path string true "Fee schedule ID"
// @Param payload body service.UpsertFeeScheduleRequest true "Fee schedule payload"
// @Success 200 {object} response.Envelope
// @Router /fees/{id} [put]
func (h *FeeScheduleHandler) Update(c *gin.Context) {
	var req service.UpsertFeeScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	fee, err := h.fees.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fee, nil)
}

// Delete godoc
// @Summary Delete a fee schedule
// @Tags Fees
// @Produce json
// @Param id path string true "Fee schedule ID"
// @Success 204 {object} response.Envelope
// @Router /fees/{id} [delete]
func (h *FeeScheduleHandler) Delete(c *gin.Context) {
	if err := h.fees.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
