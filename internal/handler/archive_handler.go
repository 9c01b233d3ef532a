package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/insite-net/partage-api/internal/dto"
	"github.com/insite-net/partage-api/internal/models"
	"github.com/insite-net/partage-api/internal/service"
	appErrors "github.com/insite-net/partage-api/pkg/errors"
	"github.com/insite-net/partage-api/pkg/response"
)

type archiveBuilder interface {
	Build(ctx context.Context, submissionID, city, department string) (*models.ArchiveResult, error)
	Download(ctx context.Context, token string) (*service.ArchiveDownload, error)
}

type archiveJobs interface {
	CreateJob(ctx context.Context, req dto.CreateArchiveRequest, actorID string) (*dto.ArchiveJobResponse, error)
	GetStatus(ctx context.Context, id string) (*dto.ArchiveJobStatusResponse, error)
}

// ArchiveHandler exposes archive builds, background jobs and signed downloads.
type ArchiveHandler struct {
	archives archiveBuilder
	jobs     archiveJobs
}

// NewArchiveHandler constructs the handler.
func NewArchiveHandler(archives archiveBuilder, jobs archiveJobs) *ArchiveHandler {
	return &ArchiveHandler{archives: archives, jobs: jobs}
}

// CreateArchive godoc
// @Summary Build the ZIP archive of a submission
// @Description Gathers photos, audio and video of a submission into one ZIP stored under archives/.
// @Tags Archives
// @Accept json
// @Produce json
// @Param payload body dto.CreateArchiveRequest true "Archive request"
// @Success 200 {object} dto.CreateArchiveResponse
// @Failure 400 {object} response.FailureBody
// @Failure 404 {object} response.FailureBody
// @Failure 500 {object} response.FailureBody
// @Failure 502 {object} response.FailureBody
// @Router /create-archive [post]
func (h *ArchiveHandler) CreateArchive(c *gin.Context) {
	var req dto.CreateArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Failure(c, appErrors.Wrap(err, appErrors.ErrInvalidRequest.Code, appErrors.ErrInvalidRequest.Status, "Invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.SubmissionID) == "" {
		response.Failure(c, appErrors.ErrInvalidRequest)
		return
	}

	result, err := h.archives.Build(c.Request.Context(), strings.TrimSpace(req.SubmissionID), value(req.City), value(req.Department))
	if err != nil {
		response.Failure(c, err)
		return
	}
	response.Plain(c, http.StatusOK, dto.NewCreateArchiveResponse(result))
}

// CreateJob godoc
// @Summary Queue an archive build
// @Tags Archives
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateArchiveRequest true "Archive request"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /archives/jobs [post]
func (h *ArchiveHandler) CreateJob(c *gin.Context) {
	var req dto.CreateArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInvalidRequest.Code, appErrors.ErrInvalidRequest.Status, "invalid archive payload"))
		return
	}
	actorID := ""
	if claims := claimsFromContext(c); claims != nil {
		actorID = claims.UserID
	}
	job, err := h.jobs.CreateJob(c.Request.Context(), req, actorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// JobStatus godoc
// @Summary Get archive job status
// @Tags Archives
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /archives/jobs/{id} [get]
func (h *ArchiveHandler) JobStatus(c *gin.Context) {
	status, err := h.jobs.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Download godoc
// @Summary Download an archive through a signed link
// @Tags Archives
// @Produce application/zip
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /downloads/{token} [get]
func (h *ArchiveHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, err := h.archives.Download(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Header("Cache-Control", "private, no-store")
	c.Data(http.StatusOK, file.MimeType, file.Data)
}

func value(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
