package dto

import (
	"mime/multipart"

	"github.com/insite-net/partage-api/internal/models"
)

// SubmissionForm is the multipart intake form.
type SubmissionForm struct {
	Company       string   `form:"entreprise" validate:"required,max=200"`
	City          string   `form:"ville" validate:"max=120"`
	Department    string   `form:"departement" validate:"max=10"`
	ProjectType   string   `form:"typeProjet" validate:"omitempty,oneof=neuf renovation"`
	Description   string   `form:"description" validate:"max=5000"`
	Latitude      *float64 `form:"latitude" validate:"omitempty,latitude"`
	Longitude     *float64 `form:"longitude" validate:"omitempty,longitude"`
	Accuracy      *float64 `form:"accuracy" validate:"omitempty,gte=0"`
	AudioDuration *int     `form:"audioDuration" validate:"omitempty,gte=0"`
	VideoDuration *int     `form:"videoDuration" validate:"omitempty,gte=0"`
}

// Upload is one file received from the intake form.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (multipart.File, error)
}

// SubmissionIntake bundles the form and its uploads.
type SubmissionIntake struct {
	Form  SubmissionForm
	Files []Upload
	Audio *Upload
	Video *Upload
}

// SubmissionIntakeResponse is returned after a successful intake.
type SubmissionIntakeResponse struct {
	Success       bool                 `json:"success"`
	SubmissionID  string               `json:"submissionId"`
	FilesUploaded int                  `json:"filesUploaded"`
	UploadedFiles []string             `json:"uploadedFiles"`
	ArchiveURL    *string              `json:"archiveUrl,omitempty"`
	EmailID       string               `json:"emailId,omitempty"`
	SkippedFiles  []models.SkippedFile `json:"skippedFiles,omitempty"`
}

// UpdateSubmissionRequest is the admin edit payload.
type UpdateSubmissionRequest struct {
	Company     *string `json:"entreprise" validate:"omitempty,min=1,max=200"`
	City        *string `json:"ville" validate:"omitempty,max=120"`
	Department  *string `json:"departement" validate:"omitempty,max=10"`
	ProjectType *string `json:"type_projet" validate:"omitempty,oneof=neuf renovation"`
	Message     *string `json:"message" validate:"omitempty,max=5000"`
}

// SubmissionListQuery captures admin list query parameters.
type SubmissionListQuery struct {
	Companies []string `form:"entreprise"`
	Search    string   `form:"q"`
	Page      int      `form:"page"`
	PageSize  int      `form:"page_size"`
}

// SubmissionDetail is one submission with its photo files.
type SubmissionDetail struct {
	models.Submission
	Files []models.StoredFile `json:"files"`
}
