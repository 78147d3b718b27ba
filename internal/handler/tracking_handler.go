package handler

import (
	"io"
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

// TrackingHandler exposes the presence tracking endpoints.
type TrackingHandler struct {
	tracking  *service.TrackingService
	analytics *service.AnalyticsService
	exports   *service.ExportService
}

// NewTrackingHandler constructs TrackingHandler.
func NewTrackingHandler(tracking *service.TrackingService, analytics *service.AnalyticsService, exports *service.ExportService) *TrackingHandler {
	return &TrackingHandler{tracking: tracking, analytics: analytics, exports: exports}
}

// UpdateLocation godoc
// @Summary Process a GPS location sample
// @Tags Tracking
// @Accept json
// @Produce json
// @Param payload body service.UpdateLocationRequest true "Location sample"
// @Success 200 {object} response.Envelope
// @Router /tracking/location [post]
func (h *TrackingHandler) UpdateLocation(c *gin.Context) {
	var req service.UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	// Students may only report their own position.
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleStudent {
		if claims.StudentID == "" {
			response.Error(c, appErrors.ErrForbidden)
			return
		}
		req.StudentID = claims.StudentID
		req.RegisterNumber = ""
	}
	result, err := h.tracking.UpdateLocation(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// GrantPermission godoc
// @Summary Record tracking consent for a student
// @Tags Tracking
// @Accept json
// @Produce json
// @Param payload body service.PermissionRequest true "Consent payload"
// @Success 201 {object} response.Envelope
// @Router /tracking/permission [post]
func (h *TrackingHandler) GrantPermission(c *gin.Context) {
	var req service.PermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleStudent {
		if claims.StudentID == "" {
			response.Error(c, appErrors.ErrForbidden)
			return
		}
		req.StudentID = claims.StudentID
		req.RegisterNumber = ""
	}
	req.IPAddress = c.ClientIP()
	req.UserAgent = c.Request.UserAgent()

	perm, err := h.tracking.GrantPermission(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, perm)
}

// GetGeofence godoc
// @Summary Get the active geofence
// @Tags Tracking
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /tracking/geofence [get]
func (h *TrackingHandler) GetGeofence(c *gin.Context) {
	fence, err := h.tracking.ActiveGeofence(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fence, nil)
}

// SetGeofence godoc
// @Summary Replace the active geofence
// @Tags Tracking
// @Accept json
// @Produce json
// @Param payload body service.GeofenceRequest true "Geofence payload"
// @Success 200 {object} response.Envelope
// @Router /tracking/geofence [put]
func (h *TrackingHandler) SetGeofence(c *gin.Context) {
	var req service.GeofenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	fence, err := h.tracking.SetGeofence(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fence, nil)
}

// Occupancy godoc
// @Summary Current occupancy count and roster
// @Tags Tracking
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /tracking/occupancy [get]
func (h *TrackingHandler) Occupancy(c *gin.Context) {
	snapshot, err := h.tracking.CurrentOccupancy(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshot, nil)
}

// RebuildOccupancy godoc
// @Summary Rebuild the live occupancy table from the ledger
// @Tags Tracking
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /tracking/occupancy/rebuild [post]
func (h *TrackingHandler) RebuildOccupancy(c *gin.Context) {
	restored, err := h.tracking.RebuildLive(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"restored": restored}, nil)
}

// Logs godoc
// @Summary List occupancy ledger events
// @Tags Tracking
// @Produce json
// @Param student_id query string false "Filter by student"
// @Param kind query string false "entry or exit"
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /tracking/logs [get]
func (h *TrackingHandler) Logs(c *gin.Context) {
	filter, err := logFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	events, pagination, err := h.tracking.Logs(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, pagination)
}

// ExportLogs godoc
// @Summary Export the occupancy ledger as CSV or PDF
// @Tags Tracking
// @Produce text/csv,application/pdf
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /tracking/logs/export [get]
func (h *TrackingHandler) ExportLogs(c *gin.Context) {
	filter, err := logFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	result, err := h.exports.OccupancyLog(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+result.Filename)
	c.Data(http.StatusOK, result.ContentType, result.Data)
}

// ArchiveLogs godoc
// @Summary Store an export and return a signed download token
// @Tags Tracking
// @Produce json
// @Param format query string false "csv or pdf"
// @Success 201 {object} response.Envelope
// @Router /tracking/logs/export/archive [post]
func (h *TrackingHandler) ArchiveLogs(c *gin.Context) {
	filter, err := logFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	archived, err := h.exports.ArchiveOccupancyLog(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, archived)
}

// DownloadArchive godoc
// @Summary Download an archived export by signed token
// @Tags Tracking
// @Produce text/csv,application/pdf
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Router /tracking/exports/{token} [get]
func (h *TrackingHandler) DownloadArchive(c *gin.Context) {
	file, err := h.exports.OpenArchive(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Reader.Close()

	c.Header("Content-Disposition", "attachment; filename="+file.Filename)
	c.Header("Content-Type", file.ContentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, file.Reader); err != nil {
		c.Abort()
	}
}

// Analytics godoc
// @Summary Daily occupancy analytics
// @Tags Tracking
// @Produce json
// @Param date query string false "Day in YYYY-MM-DD, defaults to today"
// @Success 200 {object} response.Envelope
// @Router /tracking/analytics [get]
func (h *TrackingHandler) Analytics(c *gin.Context) {
	day := time.Now().UTC()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
			return
		}
		day = parsed
	}
	analytics, fromCache, err := h.analytics.Daily(c.Request.Context(), day)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, analytics, nil, map[string]interface{}{"cached": fromCache})
}

func logFilterFromQuery(c *gin.Context) (models.OccupancyLogFilter, error) {
	var filter models.OccupancyLogFilter
	filter.StudentID = c.Query("student_id")
	if kind := strings.ToLower(c.Query("kind")); kind != "" {
		k := models.OccupancyEventKind(kind)
		if k != models.EventEntry && k != models.EventExit {
			return filter, appErrors.Clone(appErrors.ErrValidation, "kind must be entry or exit")
		}
		filter.Kind = &k
	}
	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "from must be RFC3339")
		}
		filter.DateFrom = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "to must be RFC3339")
		}
		filter.DateTo = &to
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	return filter, nil
}
