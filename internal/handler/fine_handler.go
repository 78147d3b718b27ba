package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campushq/library-api/internal/models"
	"github.com/campushq/library-api/internal/service"
	"github.com/campushq/library-api/pkg/response"
)

// FineHandler exposes fine endpoints.
type FineHandler struct {
	fines *service.FineService
}

// NewFineHandler constructs FineHandler.
func NewFineHandler(fines *service.FineService) *FineHandler {
	return &FineHandler{fines: fines}
}

// List godoc
// @Summary List fines
// @Tags Fines
// @Produce json
// @Param student_id query string false "Filter by student"
// @Param status query string false "UNPAID, PAID or WAIVED"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /fines [get]
func (h *FineHandler) List(c *gin.Context) {
	var filter models.FineFilter
	filter.StudentID = c.Query("student_id")
	if status := strings.ToUpper(c.Query("status")); status != "" {
		s := models.FineStatus(status)
		filter.Status = &s
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	fines, pagination, err := h.fines.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fines, pagination)
}

// Pay godoc
// @Summary Settle a fine as paid
// @Tags Fines
// @Produce json
// @Param id path string true "Fine ID"
// @Success 200 {object} response.Envelope
// @Router /fines/{id}/pay [post]
func (h *FineHandler) Pay(c *gin.Context) {
	fine, err := h.fines.Pay(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fine, nil)
}

// Waive godoc
// @Summary Waive a fine
// @Tags Fines
// @Produce json
// @Param id path string true "Fine ID"
// @Success 200 {object} response.Envelope
// @Router /fines/{id}/waive [post]
func (h *FineHandler) Waive(c *gin.Context) {
	fine, err := h.fines.Waive(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fine, nil)
}

// Sweep godoc
// @Summary Run the overdue sweep immediately
// @Tags Fines
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /fines/sweep [post]
func (h *FineHandler) Sweep(c *gin.Context) {
	created, err := h.fines.Sweep(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"fines_created": created}, nil)
}
