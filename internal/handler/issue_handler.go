package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campushq/library-api/internal/models"
	"github.com/campushq/library-api/internal/service"
	appErrors "github.com/campushq/library-api/pkg/errors"
	"github.com/campushq/library-api/pkg/response"
)

// IssueHandler exposes loan endpoints.
type IssueHandler struct {
	issues *service.IssueService
}

// NewIssueHandler constructs IssueHandler.
func NewIssueHandler(issues *service.IssueService) *IssueHandler {
	return &IssueHandler{issues: issues}
}

// List godoc
// @Summary List loans
// @Tags Issues
// @Produce json
// @Param student_id query string false "Filter by student"
// @Param book_id query string false "Filter by book"
// @Param status query string false "ISSUED, RETURNED or OVERDUE"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /issues [get]
func (h *IssueHandler) List(c *gin.Context) {
	var filter models.IssueFilter
	filter.StudentID = c.Query("student_id")
	filter.BookID = c.Query("book_id")
	if status := strings.ToUpper(c.Query("status")); status != "" {
		s := models.IssueStatus(status)
		filter.Status = &s
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	issues, pagination, err := h.issues.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issues, pagination)
}

// Issue godoc
// @Summary Lend a copy to a student
// @Tags Issues
// @Accept json
// @Produce json
// @Param payload body service.IssueBookRequest true "Issue payload"
// @Success 201 {object} response.Envelope
// @Router /issues [post]
func (h *IssueHandler) Issue(c *gin.Context) {
	var req service.IssueBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	issue, err := h.issues.Issue(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, issue)
}

// Return godoc
// @Summary Close a loan and release the copy
// @Tags Issues
// @Produce json
// @Param id path string true "Issue ID"
// @Success 200 {object} response.Envelope
// @Router /issues/{id}/return [post]
func (h *IssueHandler) Return(c *gin.Context) {
	issue, err := h.issues.Return(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issue, nil)
}
