package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ArchiveJobStatus captures background build lifecycle states.
type ArchiveJobStatus string

const (
	ArchiveJobQueued     ArchiveJobStatus = "QUEUED"
	ArchiveJobProcessing ArchiveJobStatus = "PROCESSING"
	ArchiveJobFinished   ArchiveJobStatus = "FINISHED"
	ArchiveJobFailed     ArchiveJobStatus = "FAILED"
)

// Terminal reports whether the job will not change state again.
func (s ArchiveJobStatus) Terminal() bool {
	return s == ArchiveJobFinished || s == ArchiveJobFailed
}

// ArchiveJob is a persisted asynchronous archive build.
type ArchiveJob struct {
	ID           string           `db:"id" json:"id"`
	SubmissionID string           `db:"submission_id" json:"submissionId"`
	City         *string          `db:"ville" json:"ville,omitempty"`
	Department   *string          `db:"departement" json:"departement,omitempty"`
	Status       ArchiveJobStatus `db:"status" json:"status"`
	ArchiveName  *string          `db:"archive_name" json:"archiveName,omitempty"`
	ArchiveURL   *string          `db:"archive_url" json:"archiveUrl,omitempty"`
	FilesCount   int              `db:"files_count" json:"filesCount"`
	SkippedFiles SkippedFiles     `db:"skipped_files" json:"skippedFiles,omitempty"`
	ErrorMessage *string          `db:"error_message" json:"error,omitempty"`
	Attempts     int              `db:"attempts" json:"attempts"`
	CreatedBy    *string          `db:"created_by" json:"createdBy,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updatedAt"`
	FinishedAt   *time.Time       `db:"finished_at" json:"finishedAt,omitempty"`
}

// SkippedFiles is stored as a JSONB array.
type SkippedFiles []SkippedFile

// Value marshals the manifest for persistence.
func (s SkippedFiles) Value() (driver.Value, error) {
	if s == nil {
		s = SkippedFiles{}
	}
	data, err := json.Marshal([]SkippedFile(s))
	if err != nil {
		return nil, fmt.Errorf("marshal skipped files: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB manifest.
func (s *SkippedFiles) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for SkippedFiles", value)
	}
	if len(data) == 0 {
		*s = nil
		return nil
	}
	var items []SkippedFile
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("unmarshal skipped files: %w", err)
	}
	*s = items
	return nil
}
