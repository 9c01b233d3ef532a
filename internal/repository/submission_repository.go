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

const submissionColumns = `id, entreprise, ville, departement, type_projet, message, latitude, longitude, location_accuracy, audio_description_url, audio_duration, video_url, video_duration, created_at, updated_at`

// SubmissionRepository persists file_submissions rows.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository creates a new instance of SubmissionRepository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create inserts a submission, generating its id and timestamps when missing.
func (r *SubmissionRepository) Create(ctx context.Context, s *models.Submission) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.ProjectType == "" {
		s.ProjectType = models.ProjectTypeNew
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = s.CreatedAt
	const query = `INSERT INTO file_submissions (` + submissionColumns + `)
VALUES (:id, :entreprise, :ville, :departement, :type_projet, :message, :latitude, :longitude, :location_accuracy, :audio_description_url, :audio_duration, :video_url, :video_duration, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, s); err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// GetByID returns a submission; sql.ErrNoRows is returned unwrapped-compatible when absent.
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	const query = `SELECT ` + submissionColumns + ` FROM file_submissions WHERE id = $1`
	var s models.Submission
	if err := r.db.GetContext(ctx, &s, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return &s, nil
}

// List returns submissions newest first with the total count for the filter.
func (r *SubmissionRepository) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error) {
	var conditions []string
	var args []interface{}

	if len(filter.Companies) > 0 {
		placeholders := make([]string, 0, len(filter.Companies))
		for _, company := range filter.Companies {
			args = append(args, company)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		conditions = append(conditions, fmt.Sprintf("entreprise IN (%s)", strings.Join(placeholders, ", ")))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		pos := len(args)
		conditions = append(conditions, fmt.Sprintf("(entreprise ILIKE $%d OR ville ILIKE $%d OR message ILIKE $%d)", pos, pos, pos))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	if size > 200 {
		size = 200
	}

	query := fmt.Sprintf("SELECT %s FROM file_submissions%s ORDER BY created_at DESC LIMIT %d OFFSET %d", submissionColumns, where, size, (page-1)*size)
	var items []models.Submission
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM file_submissions"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}
	return items, total, nil
}

// ListCompanies returns the distinct company names, sorted.
func (r *SubmissionRepository) ListCompanies(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT entreprise FROM file_submissions ORDER BY entreprise`
	var companies []string
	if err := r.db.SelectContext(ctx, &companies, query); err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	return companies, nil
}

// Update applies the non-nil fields. sql.ErrNoRows is returned when the row does not exist.
func (r *SubmissionRepository) Update(ctx context.Context, id string, update models.SubmissionUpdate) error {
	set := make([]string, 0, 6)
	args := make([]interface{}, 0, 7)

	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.Company != nil {
		add("entreprise", *update.Company)
	}
	if update.City != nil {
		add("ville", *update.City)
	}
	if update.Department != nil {
		add("departement", *update.Department)
	}
	if update.ProjectType != nil {
		add("type_projet", *update.ProjectType)
	}
	if update.Message != nil {
		add("message", *update.Message)
	}
	if len(set) == 0 {
		return nil
	}
	add("updated_at", time.Now().UTC())

	args = append(args, id)
	query := fmt.Sprintf("UPDATE file_submissions SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	return requireAffected(res)
}

// Delete removes the row. sql.ErrNoRows is returned when the row does not exist.
func (r *SubmissionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM file_submissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
