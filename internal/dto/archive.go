package dto

import "github.com/insite-net/partage-api/internal/models"

// CreateArchiveRequest is the create-archive payload.
type CreateArchiveRequest struct {
	SubmissionID string  `json:"submissionId"`
	City         *string `json:"ville"`
	Department   *string `json:"departement"`
}

// CreateArchiveResponse is the flat success body of create-archive.
type CreateArchiveResponse struct {
	Success      bool                 `json:"success"`
	ArchiveName  string               `json:"archiveName"`
	ArchiveURL   string               `json:"archiveUrl"`
	FilesCount   int                  `json:"filesCount"`
	SkippedFiles []models.SkippedFile `json:"skippedFiles,omitempty"`
}

// NewCreateArchiveResponse maps a build result onto the public contract.
func NewCreateArchiveResponse(result *models.ArchiveResult) CreateArchiveResponse {
	return CreateArchiveResponse{
		Success:      true,
		ArchiveName:  result.ArchiveName,
		ArchiveURL:   result.ArchiveURL,
		FilesCount:   result.FilesCount,
		SkippedFiles: result.SkippedFiles,
	}
}

// ArchiveJobResponse is returned after enqueueing a build.
type ArchiveJobResponse struct {
	ID           string                  `json:"id"`
	SubmissionID string                  `json:"submissionId"`
	Status       models.ArchiveJobStatus `json:"status"`
}

// ArchiveJobStatusResponse exposes job progress and, when finished, the result.
type ArchiveJobStatusResponse struct {
	ID           string                  `json:"id"`
	SubmissionID string                  `json:"submissionId"`
	Status       models.ArchiveJobStatus `json:"status"`
	Attempts     int                     `json:"attempts"`
	ArchiveName  *string                 `json:"archiveName,omitempty"`
	ArchiveURL   *string                 `json:"archiveUrl,omitempty"`
	FilesCount   int                     `json:"filesCount"`
	SkippedFiles []models.SkippedFile    `json:"skippedFiles,omitempty"`
	Error        *string                 `json:"error,omitempty"`
}

// ArchiveDownloadResponse carries a short-lived download link for a built archive.
type ArchiveDownloadResponse struct {
	CreateArchiveResponse
	DownloadURL string `json:"downloadUrl"`
	ExpiresAt   string `json:"expiresAt"`
}
