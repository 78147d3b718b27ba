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

// BookHandler exposes catalog endpoints.
type BookHandler struct {
	books *service.BookService
}

// NewBookHandler constructs BookHandler.
func NewBookHandler(books *service.BookService) *BookHandler {
	return &BookHandler{books: books}
}

// List godoc
// @Summary List catalog titles
// @Tags Books
// @Produce json
// @Param search query string false "Search by title, author or ISBN"
// @Param category query string false "Filter by category"
// @Param available query bool false "Only titles with free copies"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /books [get]
func (h *BookHandler) List(c *gin.Context) {
	var filter models.BookFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Category = c.Query("category")
	filter.AvailableOnly = c.Query("available") == "true"
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	books, pagination, err := h.books.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, books, pagination)
}

// Get godoc
// @Summary Get one title
// @Tags Books
// @Produce json
// @Param id path string true "Book ID"
// @Success 200 {object} response.Envelope
// @Router /books/{id} [get]
func (h *BookHandler) Get(c *gin.Context) {
	book, err := h.books.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, book, nil)
}

// Create godoc
// @Summary Add a title to the catalog
// @Tags Books
// @Accept json
// @Produce json
// @Param payload body service.CreateBookRequest true "Book payload"
// @Success 201 {object} response.Envelope
// @Router /books [post]
func (h *BookHandler) Create(c *gin.Context) {
	var req service.CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	book, err := h.books.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, book)
}

// Update godoc
// @Summary Update a title
// @Tags Books
// @Accept json
// @Produce json
// @Param id path string true "Book ID"
// @Param payload body service.UpdateBookRequest true "Book payload"
// @Success 200 {object} response.Envelope
// @Router /books/{id} [put]
func (h *BookHandler) Update(c *gin.Context) {
	var req service.UpdateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	book, err := h.books.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, book, nil)
}

// Delete godoc
// @Summary Remove a title with no copies on loan
// @Tags Books
// @Produce json
// @Param id path string true "Book ID"
// @Success 204
// @Router /books/{id} [delete]
func (h *BookHandler) Delete(c *gin.Context) {
	if err := h.books.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
