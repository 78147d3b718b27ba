package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campushq/library-api/internal/models"
	"github.com/campushq/library-api/internal/service"
	appErrors "github.com/campushq/library-api/pkg/errors"
	"github.com/campushq/library-api/pkg/response"
)

// BookingHandler exposes resource booking endpoints.
type BookingHandler struct {
	bookings *service.BookingService
}

// NewBookingHandler constructs BookingHandler.
func NewBookingHandler(bookings *service.BookingService) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

// List godoc
// @Summary List resource bookings
// @Tags Bookings
// @Produce json
// @Param student_id query string false "Filter by student"
// @Param resource_type query string false "SEAT, COMPUTER or STUDY_ROOM"
// @Param resource_id query string false "Filter by resource"
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Param status query string false "ACTIVE, CANCELLED or COMPLETED"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /bookings [get]
func (h *BookingHandler) List(c *gin.Context) {
	var filter models.BookingFilter
	filter.StudentID = c.Query("student_id")
	filter.ResourceID = c.Query("resource_id")
	if raw := strings.ToUpper(c.Query("resource_type")); raw != "" {
		rt := models.ResourceType(raw)
		filter.ResourceType = &rt
	}
	if raw := strings.ToUpper(c.Query("status")); raw != "" {
		s := models.BookingStatus(raw)
		filter.Status = &s
	}
	if raw := c.Query("from"); raw != "" {
		if from, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.DateFrom = &from
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.DateTo = &to
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	bookings, pagination, err := h.bookings.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bookings, pagination)
}

// Create godoc
// @Summary Reserve a seat, computer or study room
// @Tags Bookings
// @Accept json
// @Produce json
// @Param payload body service.CreateBookingRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Router /bookings [post]
func (h *BookingHandler) Create(c *gin.Context) {
	var req service.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleStudent && claims.StudentID != "" {
		req.StudentID = claims.StudentID
	}
	booking, err := h.bookings.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, booking)
}

// Cancel godoc
// @Summary Cancel an active booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 204
// @Router /bookings/{id} [delete]
func (h *BookingHandler) Cancel(c *gin.Context) {
	if err := h.bookings.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
