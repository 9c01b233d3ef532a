package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insite-net/partage-api/internal/dto"
	"github.com/insite-net/partage-api/internal/models"
	"github.com/insite-net/partage-api/internal/repository"
	appErrors "github.com/insite-net/partage-api/pkg/errors"
	"github.com/insite-net/partage-api/pkg/jobs"
)

// ArchiveJobType tags archive builds on the shared queue.
const ArchiveJobType = "archive.build"

type archiveJobStore interface {
	Create(ctx context.Context, job *models.ArchiveJob) error
	GetByID(ctx context.Context, id string) (*models.ArchiveJob, error)
	Update(ctx context.Context, id string, params repository.UpdateArchiveJobParams) error
	ListPending(ctx context.Context, limit int) ([]models.ArchiveJob, error)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
	Len() int
}

type archiveBuilder interface {
	Build(ctx context.Context, submissionID, city, department string) (*models.ArchiveResult, error)
}

// ArchiveJobServiceConfig governs recovery and cleanup.
type ArchiveJobServiceConfig struct {
	Retention       time.Duration
	CleanupInterval time.Duration
}

// ArchiveJobService persists asynchronous archive builds and hands them to the queue.
type ArchiveJobService struct {
	repo        archiveJobStore
	submissions archiveSubmissionReader
	queue       jobDispatcher
	metrics     *MetricsService
	logger      *zap.Logger
	cfg         ArchiveJobServiceConfig
}

// NewArchiveJobService constructs the job service.
func NewArchiveJobService(repo archiveJobStore, submissions archiveSubmissionReader, queue jobDispatcher, metrics *MetricsService, logger *zap.Logger, cfg ArchiveJobServiceConfig) *ArchiveJobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	return &ArchiveJobService{
		repo:        repo,
		submissions: submissions,
		queue:       queue,
		metrics:     metrics,
		logger:      logger,
		cfg:         cfg,
	}
}

// CreateJob validates the submission, records a QUEUED job and enqueues it.
func (s *ArchiveJobService) CreateJob(ctx context.Context, req dto.CreateArchiveRequest, actorID string) (*dto.ArchiveJobResponse, error) {
	if req.SubmissionID == "" {
		return nil, appErrors.ErrInvalidRequest
	}
	if _, err := uuid.Parse(req.SubmissionID); err != nil {
		return nil, appErrors.ErrSubmissionNotFound
	}
	if _, err := s.submissions.GetByID(ctx, req.SubmissionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrSubmissionNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}

	job := &models.ArchiveJob{
		SubmissionID: req.SubmissionID,
		City:         req.City,
		Department:   req.Department,
		Status:       models.ArchiveJobQueued,
	}
	if actorID != "" {
		job.CreatedBy = &actorID
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create archive job")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: ArchiveJobType}); err != nil {
		msg := err.Error()
		failed := models.ArchiveJobFailed
		now := time.Now().UTC()
		if updateErr := s.repo.Update(ctx, job.ID, repository.UpdateArchiveJobParams{Status: &failed, ErrorMessage: &msg, FinishedAt: &now}); updateErr != nil {
			s.logger.Warn("failed to mark unqueued job failed", zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		if errors.Is(err, jobs.ErrQueueFull) {
			return nil, appErrors.ErrQueueFull
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue archive job")
	}
	s.metrics.SetQueuedJobs(s.queue.Len())

	return &dto.ArchiveJobResponse{ID: job.ID, SubmissionID: job.SubmissionID, Status: job.Status}, nil
}

// GetStatus returns the job state.
func (s *ArchiveJobService) GetStatus(ctx context.Context, id string) (*dto.ArchiveJobStatusResponse, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "archive job not found")
	}
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "archive job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load archive job")
	}
	return &dto.ArchiveJobStatusResponse{
		ID:           job.ID,
		SubmissionID: job.SubmissionID,
		Status:       job.Status,
		Attempts:     job.Attempts,
		ArchiveName:  job.ArchiveName,
		ArchiveURL:   job.ArchiveURL,
		FilesCount:   job.FilesCount,
		SkippedFiles: job.SkippedFiles,
		Error:        job.ErrorMessage,
	}, nil
}

// RecoverPendingJobs re-enqueues jobs left QUEUED or PROCESSING by a previous process.
func (s *ArchiveJobService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListPending(ctx, 100)
	if err != nil {
		s.logger.Warn("failed to recover archive jobs", zap.Error(err))
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: ArchiveJobType, Attempt: job.Attempts}); err != nil {
			s.logger.Warn("failed to requeue archive job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	if len(pending) > 0 {
		s.logger.Info("recovered archive jobs", zap.Int("count", len(pending)))
	}
}

// StartCleanup purges old terminal jobs periodically until ctx is done.
func (s *ArchiveJobService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup(ctx)
			}
		}
	}()
}

// Cleanup deletes terminal jobs older than the retention window.
func (s *ArchiveJobService) Cleanup(ctx context.Context) {
	removed, err := s.repo.DeleteFinishedBefore(ctx, time.Now().UTC().Add(-s.cfg.Retention))
	if err != nil {
		s.logger.Warn("archive job cleanup failed", zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Info("purged archive jobs", zap.Int64("count", removed))
	}
}

// ArchiveWorker executes queued archive jobs.
type ArchiveWorker struct {
	repo       archiveJobStore
	builder    archiveBuilder
	metrics    *MetricsService
	logger     *zap.Logger
	maxRetries int
	queueLen   func() int
}

// NewArchiveWorker constructs a worker. maxRetries must match the queue's retry budget.
func NewArchiveWorker(repo archiveJobStore, builder archiveBuilder, maxRetries int, metrics *MetricsService, logger *zap.Logger) *ArchiveWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &ArchiveWorker{repo: repo, builder: builder, metrics: metrics, logger: logger, maxRetries: maxRetries}
}

// ObserveQueue lets the worker publish the queue depth after each job.
func (w *ArchiveWorker) ObserveQueue(length func() int) {
	w.queueLen = length
}

// Handle processes one queue job.
func (w *ArchiveWorker) Handle(ctx context.Context, job jobs.Job) error {
	if w.queueLen != nil {
		defer func() { w.metrics.SetQueuedJobs(w.queueLen()) }()
	}

	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return jobs.Permanent(err)
		}
		return err
	}
	if record.Status.Terminal() {
		return nil
	}

	processing := models.ArchiveJobProcessing
	attempts := job.Attempt + 1
	if err := w.repo.Update(ctx, job.ID, repository.UpdateArchiveJobParams{Status: &processing, Attempts: &attempts}); err != nil {
		return err
	}

	result, err := w.builder.Build(ctx, record.SubmissionID, deref(record.City), deref(record.Department))
	if err != nil {
		permanent := isPermanentArchiveError(err)
		msg := appErrors.FromError(err).Message
		if permanent || job.Attempt >= w.maxRetries {
			failed := models.ArchiveJobFailed
			now := time.Now().UTC()
			if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateArchiveJobParams{
				Status:       &failed,
				ErrorMessage: &msg,
				FinishedAt:   &now,
			}); updateErr != nil {
				w.logger.Warn("failed to mark archive job failed", zap.String("job_id", job.ID), zap.Error(updateErr))
			}
		} else {
			queued := models.ArchiveJobQueued
			if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateArchiveJobParams{
				Status:       &queued,
				ErrorMessage: &msg,
			}); updateErr != nil {
				w.logger.Warn("failed to mark archive job queued", zap.String("job_id", job.ID), zap.Error(updateErr))
			}
		}
		if permanent {
			return jobs.Permanent(err)
		}
		return err
	}

	finished := models.ArchiveJobFinished
	now := time.Now().UTC()
	skipped := models.SkippedFiles(result.SkippedFiles)
	clear := ""
	if err := w.repo.Update(ctx, job.ID, repository.UpdateArchiveJobParams{
		Status:       &finished,
		ArchiveName:  &result.ArchiveName,
		ArchiveURL:   &result.ArchiveURL,
		FilesCount:   &result.FilesCount,
		SkippedFiles: &skipped,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Warn("failed to mark archive job finished", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	return nil
}

// isPermanentArchiveError reports failures that a retry cannot fix.
func isPermanentArchiveError(err error) bool {
	return errors.Is(err, appErrors.ErrInvalidRequest) ||
		errors.Is(err, appErrors.ErrSubmissionNotFound) ||
		errors.Is(err, appErrors.ErrNoFilesFound) ||
		errors.Is(err, appErrors.ErrArchiveEmpty)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
