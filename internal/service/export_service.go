package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/insite-net/partage-api/internal/dto"
	"github.com/insite-net/partage-api/internal/models"
	appErrors "github.com/insite-net/partage-api/pkg/errors"
	"github.com/insite-net/partage-api/pkg/export"
)

// ExportFormat selects the rendered file type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

var submissionExportHeaders = []string{
	"Date", "Entreprise", "Ville", "Département", "Type", "Description", "GPS", "Audio", "Vidéo",
}

type submissionRowSource interface {
	ExportRows(ctx context.Context, query dto.SubmissionListQuery) ([]models.Submission, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportFile is a rendered export ready to be streamed.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders the admin submission list as CSV or PDF.
type ExportService struct {
	rows     submissionRowSource
	csv      csvRenderer
	pdf      pdfRenderer
	logger   *zap.Logger
	location *time.Location
	now      func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(rows submissionRowSource, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		loc = time.UTC
	}
	return &ExportService{rows: rows, csv: csv, pdf: pdf, logger: logger, location: loc, now: time.Now}
}

// Export renders every submission matching query in the requested format.
func (s *ExportService) Export(ctx context.Context, query dto.SubmissionListQuery, format ExportFormat) (*ExportFile, error) {
	format = ExportFormat(strings.ToLower(string(format)))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	submissions, err := s.rows.ExportRows(ctx, query)
	if err != nil {
		return nil, err
	}
	dataset := s.dataset(submissions)

	var (
		payload     []byte
		contentType string
	)
	switch format {
	case ExportFormatPDF:
		title := fmt.Sprintf("Projets reçus au %s", s.now().In(s.location).Format("02/01/2006"))
		payload, err = s.pdf.Render(dataset, title)
		contentType = "application/pdf"
	default:
		payload, err = s.csv.Render(dataset)
		contentType = "text/csv; charset=utf-8"
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	s.logger.Info("submissions exported", zap.String("format", string(format)), zap.Int("rows", len(submissions)))
	return &ExportFile{
		Filename:    fmt.Sprintf("projets_%s.%s", s.now().UTC().Format("20060102_150405"), format),
		ContentType: contentType,
		Data:        payload,
	}, nil
}

func (s *ExportService) dataset(submissions []models.Submission) export.Dataset {
	rows := make([]map[string]string, 0, len(submissions))
	for i := range submissions {
		sub := &submissions[i]
		gps := ""
		if sub.HasLocation() {
			gps = formatCoordinate(*sub.Latitude) + ", " + formatCoordinate(*sub.Longitude)
		}
		rows = append(rows, map[string]string{
			"Date":        sub.CreatedAt.In(s.location).Format("02/01/2006 15:04"),
			"Entreprise":  sub.Company,
			"Ville":       deref(sub.City),
			"Département": deref(sub.Department),
			"Type":        sub.ProjectType.Label(),
			"Description": strings.Join(strings.Fields(deref(sub.Message)), " "),
			"GPS":         gps,
			"Audio":       yesNo(sub.HasAudio()),
			"Vidéo":       yesNo(sub.HasVideo()),
		})
	}
	return export.Dataset{Headers: submissionExportHeaders, Rows: rows}
}

func formatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func yesNo(v bool) string {
	if v {
		return "Oui"
	}
	return "Non"
}
