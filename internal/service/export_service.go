package service

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campushq/library-api/internal/models"
	appErrors "github.com/campushq/library-api/pkg/errors"
	"github.com/campushq/library-api/pkg/export"
)

type exportEventRepository interface {
	ListEvents(ctx context.Context, filter models.OccupancyLogFilter) ([]models.OccupancyEventRecord, int, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type archiveStore interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (io.ReadCloser, error)
}

type archiveSigner interface {
	Sign(filename string) (string, time.Time, error)
	Verify(token string) (string, error)
}

// ExportFormat selects the rendered file type.
type ExportFormat string

const (
	FormatCSV ExportFormat = "csv"
	FormatPDF ExportFormat = "pdf"
)

// ExportResult carries a rendered document.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ArchiveResult references a stored export and its signed download token.
type ArchiveResult struct {
	Filename  string    `json:"filename"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ArchiveFile is an opened archive ready to stream to the client.
type ArchiveFile struct {
	Filename    string
	ContentType string
	Reader      io.ReadCloser
}

// ExportService renders occupancy ledgers as downloadable documents.
type ExportService struct {
	events exportEventRepository
	csv    csvRenderer
	pdf    pdfRenderer
	store  archiveStore
	signer archiveSigner
	logger *zap.Logger
	now    nowFunc
}

// NewExportService constructs an ExportService. Store and signer may be nil,
// which disables archived downloads while leaving inline exports working.
func NewExportService(events exportEventRepository, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer, store archiveStore, signer archiveSigner) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{events: events, csv: csv, pdf: pdf, store: store, signer: signer, logger: logger, now: utcNow}
}

// OccupancyLog renders the filtered ledger in the requested format.
func (s *ExportService) OccupancyLog(ctx context.Context, filter models.OccupancyLogFilter, format ExportFormat) (*ExportResult, error) {
	format = ExportFormat(strings.ToLower(string(format)))
	if format != FormatCSV && format != FormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	// Exports are bounded to keep PDFs manageable.
	if filter.PageSize <= 0 || filter.PageSize > 5000 {
		filter.PageSize = 5000
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	events, _, err := s.events.ListEvents(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load occupancy events")
	}

	dataset := export.Dataset{
		Headers: []string{"Recorded At", "Student", "Register No", "Department", "Event", "Duration (min)"},
	}
	for _, ev := range events {
		duration := ""
		if ev.DurationMinutes != nil {
			duration = strconv.Itoa(*ev.DurationMinutes)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Recorded At":    ev.RecordedAt.Format(time.RFC3339),
			"Student":        ev.StudentName,
			"Register No":    ev.RegisterNumber,
			"Department":     ev.Department,
			"Event":          string(ev.Kind),
			"Duration (min)": duration,
		})
	}

	stamp := s.now().Format("20060102-150405")
	result := &ExportResult{}
	switch format {
	case FormatCSV:
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		result.Data = data
		result.ContentType = "text/csv"
		result.Filename = fmt.Sprintf("occupancy-log-%s.csv", stamp)
	case FormatPDF:
		data, err := s.pdf.Render(dataset, "Library Occupancy Log")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		result.Data = data
		result.ContentType = "application/pdf"
		result.Filename = fmt.Sprintf("occupancy-log-%s.pdf", stamp)
	}

	s.logger.Info("occupancy log exported",
		zap.String("format", string(format)),
		zap.Int("rows", len(dataset.Rows)))
	return result, nil
}

// ArchiveOccupancyLog renders the ledger, stores the file, and returns a
// signed token the caller can redeem later without a session.
func (s *ExportService) ArchiveOccupancyLog(ctx context.Context, filter models.OccupancyLogFilter, format ExportFormat) (*ArchiveResult, error) {
	if s.store == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "export archiving is not enabled")
	}

	rendered, err := s.OccupancyLog(ctx, filter, format)
	if err != nil {
		return nil, err
	}

	filename, err := s.store.Save(rendered.Filename, rendered.Data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export archive")
	}

	token, expiresAt, err := s.signer.Sign(filename)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
	}

	s.logger.Info("occupancy log archived", zap.String("filename", filename))
	return &ArchiveResult{Filename: filename, Token: token, ExpiresAt: expiresAt}, nil
}

// OpenArchive redeems a download token. Invalid, tampered, and expired
// tokens all surface as not found so the response leaks nothing about
// which archives exist.
func (s *ExportService) OpenArchive(token string) (*ArchiveFile, error) {
	if s.store == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "archive not found")
	}

	filename, err := s.signer.Verify(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "archive not found")
	}

	reader, err := s.store.Open(filename)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "archive not found")
	}

	contentType := "text/csv"
	if strings.HasSuffix(filename, ".pdf") {
		contentType = "application/pdf"
	}
	return &ArchiveFile{Filename: filename, ContentType: contentType, Reader: reader}, nil
}
