package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/insite-net/partage-api/internal/models"
)

const archiveJobColumns = `id, submission_id, ville, departement, status, archive_name, archive_url, files_count, skipped_files, error_message, attempts, created_by, created_at, updated_at, finished_at`

// ArchiveJobRepository persists asynchronous archive builds.
type ArchiveJobRepository struct {
	db *sqlx.DB
}

// NewArchiveJobRepository constructs the repository.
func NewArchiveJobRepository(db *sqlx.DB) *ArchiveJobRepository {
	return &ArchiveJobRepository{db: db}
}

// Create inserts a new job row with generated defaults.
func (r *ArchiveJobRepository) Create(ctx context.Context, job *models.ArchiveJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ArchiveJobQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	job.UpdatedAt = job.CreatedAt
	const query = `INSERT INTO archive_jobs (` + archiveJobColumns + `)
VALUES (:id, :submission_id, :ville, :departement, :status, :archive_name, :archive_url, :files_count, :skipped_files, :error_message, :attempts, :created_by, :created_at, :updated_at, :finished_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create archive job: %w", err)
	}
	return nil
}

// GetByID returns a job row by its identifier.
func (r *ArchiveJobRepository) GetByID(ctx context.Context, id string) (*models.ArchiveJob, error) {
	const query = `SELECT ` + archiveJobColumns + ` FROM archive_jobs WHERE id = $1`
	var job models.ArchiveJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get archive job: %w", err)
	}
	return &job, nil
}

// UpdateArchiveJobParams defines the mutable fields.
type UpdateArchiveJobParams struct {
	Status       *models.ArchiveJobStatus
	ArchiveName  *string
	ArchiveURL   *string
	FilesCount   *int
	SkippedFiles *models.SkippedFiles
	ErrorMessage *string
	Attempts     *int
	FinishedAt   *time.Time
}

// Update persists the provided changes for a job row.
func (r *ArchiveJobRepository) Update(ctx context.Context, id string, params UpdateArchiveJobParams) error {
	set := make([]string, 0, 9)
	args := make([]interface{}, 0, 10)
	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.ArchiveName != nil {
		add("archive_name", *params.ArchiveName)
	}
	if params.ArchiveURL != nil {
		add("archive_url", *params.ArchiveURL)
	}
	if params.FilesCount != nil {
		add("files_count", *params.FilesCount)
	}
	if params.SkippedFiles != nil {
		add("skipped_files", *params.SkippedFiles)
	}
	if params.ErrorMessage != nil {
		add("error_message", *params.ErrorMessage)
	}
	if params.Attempts != nil {
		add("attempts", *params.Attempts)
	}
	if params.FinishedAt != nil {
		add("finished_at", *params.FinishedAt)
	}
	if len(set) == 0 {
		return nil
	}
	add("updated_at", time.Now().UTC())

	args = append(args, id)
	query := fmt.Sprintf("UPDATE archive_jobs SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update archive job: %w", err)
	}
	return nil
}

// ListPending fetches queued or interrupted jobs for recovery after a restart.
func (r *ArchiveJobRepository) ListPending(ctx context.Context, limit int) ([]models.ArchiveJob, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT ` + archiveJobColumns + ` FROM archive_jobs WHERE status IN ('QUEUED', 'PROCESSING') ORDER BY created_at ASC LIMIT $1`
	var jobs []models.ArchiveJob
	if err := r.db.SelectContext(ctx, &jobs, query, limit); err != nil {
		return nil, fmt.Errorf("list pending archive jobs: %w", err)
	}
	return jobs, nil
}

// DeleteFinishedBefore purges terminal jobs finished before cutoff and returns the count.
func (r *ArchiveJobRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM archive_jobs WHERE status IN ('FINISHED', 'FAILED') AND finished_at IS NOT NULL AND finished_at < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete finished archive jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
