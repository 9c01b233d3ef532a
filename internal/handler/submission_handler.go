package handler

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/insite-net/partage-api/internal/dto"
	"github.com/insite-net/partage-api/internal/middleware"
	"github.com/insite-net/partage-api/internal/models"
	"github.com/insite-net/partage-api/internal/service"
	appErrors "github.com/insite-net/partage-api/pkg/errors"
	"github.com/insite-net/partage-api/pkg/response"
)

type submissionService interface {
	Intake(ctx context.Context, in dto.SubmissionIntake) (*dto.SubmissionIntakeResponse, error)
	List(ctx context.Context, query dto.SubmissionListQuery) ([]models.Submission, *models.Pagination, error)
	Companies(ctx context.Context) ([]string, bool, error)
	Get(ctx context.Context, id string) (*dto.SubmissionDetail, error)
	Update(ctx context.Context, id string, req dto.UpdateSubmissionRequest) (*models.Submission, error)
	Delete(ctx context.Context, id string) error
	Archive(ctx context.Context, id string) (*dto.ArchiveDownloadResponse, error)
}

type submissionExporter interface {
	Export(ctx context.Context, query dto.SubmissionListQuery, format service.ExportFormat) (*service.ExportFile, error)
}

// SubmissionHandler serves the public intake form and the admin review endpoints.
type SubmissionHandler struct {
	service  submissionService
	exporter submissionExporter
}

// NewSubmissionHandler constructs the handler.
func NewSubmissionHandler(svc submissionService, exporter submissionExporter) *SubmissionHandler {
	return &SubmissionHandler{service: svc, exporter: exporter}
}

// Create godoc
// @Summary Submit a project
// @Description Stores the form, its photos and recordings, builds the archive and notifies the office by email.
// @Tags Submissions
// @Accept multipart/form-data
// @Produce json
// @Param entreprise formData string true "Company"
// @Param ville formData string false "City"
// @Param departement formData string false "Department"
// @Param typeProjet formData string false "neuf or renovation"
// @Param description formData string false "Description"
// @Param latitude formData number false "Latitude"
// @Param longitude formData number false "Longitude"
// @Param accuracy formData number false "GPS accuracy in metres"
// @Param audioDuration formData integer false "Audio duration in seconds"
// @Param videoDuration formData integer false "Video duration in seconds"
// @Param files formData file true "Photos"
// @Param audio formData file false "Audio recording"
// @Param video formData file false "Video recording"
// @Success 201 {object} dto.SubmissionIntakeResponse
// @Failure 400 {object} response.FailureBody
// @Failure 502 {object} response.FailureBody
// @Router /submissions [post]
func (h *SubmissionHandler) Create(c *gin.Context) {
	var form dto.SubmissionForm
	if err := c.ShouldBind(&form); err != nil {
		response.Failure(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid form data"))
		return
	}
	multipartForm, err := c.MultipartForm()
	if err != nil {
		response.Failure(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "multipart form expected"))
		return
	}

	intake := dto.SubmissionIntake{Form: form}
	for _, field := range []string{"files", "files[]"} {
		for _, fh := range multipartForm.File[field] {
			intake.Files = append(intake.Files, toUpload(fh))
		}
	}
	if fhs := multipartForm.File["audio"]; len(fhs) > 0 {
		upload := toUpload(fhs[0])
		intake.Audio = &upload
	}
	if fhs := multipartForm.File["video"]; len(fhs) > 0 {
		upload := toUpload(fhs[0])
		intake.Video = &upload
	}

	res, err := h.service.Intake(c.Request.Context(), intake)
	if err != nil {
		response.Failure(c, err)
		return
	}
	response.Plain(c, http.StatusCreated, res)
}

func toUpload(fh *multipart.FileHeader) dto.Upload {
	return dto.Upload{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open:        fh.Open,
	}
}

// List godoc
// @Summary List submissions
// @Tags Submissions
// @Produce json
// @Security BearerAuth
// @Param entreprise query []string false "Company filter, repeated or comma separated"
// @Param q query string false "Search in company, city and description"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/submissions [get]
func (h *SubmissionHandler) List(c *gin.Context) {
	var query dto.SubmissionListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query parameters"))
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination, middleware.ExtractMeta(c))
}

// Companies godoc
// @Summary List distinct companies
// @Tags Submissions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/companies [get]
func (h *SubmissionHandler) Companies(c *gin.Context) {
	companies, cached, err := h.service.Companies(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, companies, nil, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get a submission with its photos
// @Tags Submissions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/submissions/{id} [get]
func (h *SubmissionHandler) Get(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Update godoc
// @Summary Edit a submission
// @Tags Submissions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Param payload body dto.UpdateSubmissionRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/submissions/{id} [put]
func (h *SubmissionHandler) Update(c *gin.Context) {
	var req dto.UpdateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload"))
		return
	}
	updated, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// Delete godoc
// @Summary Delete a submission and its files
// @Tags Submissions
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /admin/submissions/{id} [delete]
func (h *SubmissionHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Archive godoc
// @Summary Build the archive and return a download link
// @Tags Submissions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /admin/submissions/{id}/archive [post]
func (h *SubmissionHandler) Archive(c *gin.Context) {
	res, err := h.service.Archive(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Export godoc
// @Summary Export submissions
// @Tags Submissions
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param format query string false "csv or pdf"
// @Param entreprise query []string false "Company filter"
// @Param q query string false "Search"
// @Success 200 {file} binary
// @Router /admin/submissions/export [get]
func (h *SubmissionHandler) Export(c *gin.Context) {
	var query dto.SubmissionListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query parameters"))
		return
	}
	file, err := h.exporter.Export(c.Request.Context(), query, service.ExportFormat(c.DefaultQuery("format", string(service.ExportFormatCSV))))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
