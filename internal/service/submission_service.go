package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insite-net/partage-api/internal/dto"
	"github.com/insite-net/partage-api/internal/models"
	"github.com/insite-net/partage-api/pkg/cache"
	appErrors "github.com/insite-net/partage-api/pkg/errors"
	"github.com/insite-net/partage-api/pkg/storage"
)

const defaultRecordingExt = "webm"

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

type submissionStore interface {
	Create(ctx context.Context, s *models.Submission) error
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error)
	ListCompanies(ctx context.Context) ([]string, error)
	Update(ctx context.Context, id string, update models.SubmissionUpdate) error
	Delete(ctx context.Context, id string) error
}

type submissionArchiver interface {
	Build(ctx context.Context, submissionID, city, department string) (*models.ArchiveResult, error)
	DownloadLink(submissionID string, result *models.ArchiveResult) (*ArchiveLink, error)
	DeleteArchive(ctx context.Context, submissionID, city, department string) error
}

type submissionNotifier interface {
	NotifySubmission(ctx context.Context, notice SubmissionNotice) (string, error)
}

// SubmissionServiceConfig bounds intake uploads.
type SubmissionServiceConfig struct {
	MaxFileBytes int64
	MaxFiles     int
	CompaniesTTL time.Duration
}

// SubmissionService handles project intake and admin review.
type SubmissionService struct {
	repo      submissionStore
	files     storage.ObjectStore
	media     storage.ObjectStore
	archives  submissionArchiver
	notifier  submissionNotifier
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       SubmissionServiceConfig
	now       func() time.Time
}

// NewSubmissionService constructs the submission service.
func NewSubmissionService(repo submissionStore, files, media storage.ObjectStore, archives submissionArchiver, notifier submissionNotifier, cacheSvc *CacheService, validate *validator.Validate, logger *zap.Logger, cfg SubmissionServiceConfig) *SubmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 50
	}
	if cfg.CompaniesTTL <= 0 {
		cfg.CompaniesTTL = 10 * time.Minute
	}
	return &SubmissionService{
		repo:      repo,
		files:     files,
		media:     media,
		archives:  archives,
		notifier:  notifier,
		cache:     cacheSvc,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

func companiesCacheKey() string {
	return cache.Key("companies")
}

// Intake stores a new submission with its media, builds the archive and notifies the team.
func (s *SubmissionService) Intake(ctx context.Context, in dto.SubmissionIntake) (*dto.SubmissionIntakeResponse, error) {
	form := in.Form
	form.Company = strings.TrimSpace(form.Company)
	if form.Company == "" {
		return nil, appErrors.ErrMissingFields
	}
	if len(in.Files) == 0 {
		return nil, appErrors.ErrNoFilesProvided
	}
	if len(in.Files) > s.cfg.MaxFiles {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d files per submission", s.cfg.MaxFiles))
	}
	if err := s.validator.Struct(form); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	projectType := models.ProjectType(form.ProjectType)
	if projectType == "" {
		projectType = models.ProjectTypeNew
	}
	submission := &models.Submission{
		Company:          form.Company,
		City:             optional(form.City),
		Department:       optional(form.Department),
		ProjectType:      projectType,
		Message:          optional(form.Description),
		Latitude:         form.Latitude,
		Longitude:        form.Longitude,
		LocationAccuracy: form.Accuracy,
	}

	if in.Audio != nil {
		if url := s.uploadRecording(ctx, *in.Audio, "audio"); url != "" {
			submission.AudioURL = &url
			submission.AudioDuration = form.AudioDuration
		}
	}
	if in.Video != nil {
		if url := s.uploadRecording(ctx, *in.Video, "video"); url != "" {
			submission.VideoURL = &url
			submission.VideoDuration = form.VideoDuration
		}
	}

	if err := s.repo.Create(ctx, submission); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "Failed to save submission")
	}
	s.cache.Invalidate(ctx, companiesCacheKey())

	photos, skipped := s.uploadPhotos(ctx, submission.ID, in.Files)

	var archive *models.ArchiveResult
	if result, err := s.archives.Build(ctx, submission.ID, form.City, form.Department); err != nil {
		s.logger.Error("archive build failed after intake", zap.String("submission_id", submission.ID), zap.Error(err))
	} else {
		archive = result
	}

	emailID, err := s.notifier.NotifySubmission(ctx, SubmissionNotice{Submission: submission, Photos: photos, Archive: archive})
	if err != nil {
		return nil, err
	}

	uploaded := make([]string, 0, len(photos))
	for _, photo := range photos {
		uploaded = append(uploaded, photo.Name)
	}
	resp := &dto.SubmissionIntakeResponse{
		Success:       true,
		SubmissionID:  submission.ID,
		FilesUploaded: len(photos),
		UploadedFiles: uploaded,
		EmailID:       emailID,
		SkippedFiles:  skipped,
	}
	if archive != nil {
		resp.ArchiveURL = &archive.ArchiveURL
	}
	return resp, nil
}

// uploadRecording stores a recording in the media bucket and returns its public URL, or "" on failure.
func (s *SubmissionService) uploadRecording(ctx context.Context, upload dto.Upload, kind string) string {
	data, err := s.readUpload(upload)
	if err != nil {
		s.logger.Warn("unreadable recording", zap.String("kind", kind), zap.Error(err))
		return ""
	}
	key := fmt.Sprintf("%d_%s.%s", s.now().UnixMilli(), kind, recordingExt(upload))
	contentType := upload.ContentType
	if contentType == "" {
		contentType = kind + "/" + defaultRecordingExt
	}
	if err := s.media.Upload(ctx, key, data, contentType, false); err != nil {
		s.logger.Warn("recording upload failed", zap.String("kind", kind), zap.String("key", key), zap.Error(err))
		return ""
	}
	return s.media.PublicURL(key)
}

func (s *SubmissionService) uploadPhotos(ctx context.Context, submissionID string, uploads []dto.Upload) ([]models.StoredFile, []models.SkippedFile) {
	photos := make([]models.StoredFile, 0, len(uploads))
	var skipped []models.SkippedFile
	used := make(map[string]struct{}, len(uploads))

	for _, upload := range uploads {
		sanitized := SanitizeFileName(upload.Name)
		data, err := s.readUpload(upload)
		if err != nil {
			s.logger.Warn("unreadable photo", zap.String("submission_id", submissionID), zap.String("file", upload.Name), zap.Error(err))
			skipped = append(skipped, models.SkippedFile{Name: upload.Name, Reason: err.Error()})
			continue
		}

		ts := s.now().UnixMilli()
		key := fmt.Sprintf("%s%d_%s", models.SubmissionPhotoPrefix(submissionID), ts, sanitized)
		for {
			if _, dup := used[key]; !dup {
				break
			}
			ts++
			key = fmt.Sprintf("%s%d_%s", models.SubmissionPhotoPrefix(submissionID), ts, sanitized)
		}
		used[key] = struct{}{}

		contentType := upload.ContentType
		if contentType == "" {
			contentType = storage.ContentTypeFor(sanitized)
		}
		if err := s.files.Upload(ctx, key, data, contentType, false); err != nil {
			s.logger.Warn("photo upload failed", zap.String("submission_id", submissionID), zap.String("key", key), zap.Error(err))
			skipped = append(skipped, models.SkippedFile{Name: upload.Name, Source: key, Reason: err.Error()})
			continue
		}
		photos = append(photos, models.StoredFile{
			Name: upload.Name,
			Path: key,
			Size: int64(len(data)),
			URL:  s.files.PublicURL(key),
		})
	}
	return photos, skipped
}

func (s *SubmissionService) readUpload(upload dto.Upload) ([]byte, error) {
	if upload.Open == nil {
		return nil, fmt.Errorf("upload %s has no content", upload.Name)
	}
	if s.cfg.MaxFileBytes > 0 && upload.Size > s.cfg.MaxFileBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", s.cfg.MaxFileBytes)
	}
	file, err := upload.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", upload.Name, err)
	}
	defer file.Close()

	var reader io.Reader = file
	if s.cfg.MaxFileBytes > 0 {
		reader = io.LimitReader(file, s.cfg.MaxFileBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", upload.Name, err)
	}
	if s.cfg.MaxFileBytes > 0 && int64(len(data)) > s.cfg.MaxFileBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", s.cfg.MaxFileBytes)
	}
	return data, nil
}

// SanitizeFileName maps every char outside [a-zA-Z0-9._-] to '_'.
func SanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	return unsafeFileChars.ReplaceAllString(name, "_")
}

// recordingExt picks the file extension from the upload name, then its content type.
func recordingExt(upload dto.Upload) string {
	if ext := strings.TrimPrefix(path.Ext(upload.Name), "."); ext != "" && !unsafeFileChars.MatchString(ext) {
		return strings.ToLower(ext)
	}
	if mediaType, _, err := mime.ParseMediaType(upload.ContentType); err == nil {
		if i := strings.IndexByte(mediaType, '/'); i >= 0 && i < len(mediaType)-1 {
			sub := mediaType[i+1:]
			if !unsafeFileChars.MatchString(sub) {
				return sub
			}
		}
	}
	return defaultRecordingExt
}

// List returns submissions newest first with pagination metadata.
func (s *SubmissionService) List(ctx context.Context, query dto.SubmissionListQuery) ([]models.Submission, *models.Pagination, error) {
	filter := models.SubmissionFilter{
		Companies: splitCompanies(query.Companies),
		Search:    query.Search,
		Page:      query.Page,
		PageSize:  query.PageSize,
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	if size > 200 {
		size = 200
	}
	if items == nil {
		items = []models.Submission{}
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// splitCompanies accepts repeated and comma separated values.
func splitCompanies(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Companies lists distinct company names. cached reports whether the list came from Redis.
func (s *SubmissionService) Companies(ctx context.Context) (companies []string, cached bool, err error) {
	if s.cache.Get(ctx, companiesCacheKey(), &companies) {
		return companies, true, nil
	}
	companies, err = s.repo.ListCompanies(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list companies")
	}
	if companies == nil {
		companies = []string{}
	}
	s.cache.Set(ctx, companiesCacheKey(), companies, s.cfg.CompaniesTTL)
	return companies, false, nil
}

// Get returns a submission with its photo files.
func (s *SubmissionService) Get(ctx context.Context, id string) (*dto.SubmissionDetail, error) {
	submission, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	objects, err := s.files.List(ctx, submission.PhotoPrefix())
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrStorageRead)
	}
	files := make([]models.StoredFile, 0, len(objects))
	for _, obj := range objects {
		files = append(files, models.StoredFile{
			Name:      obj.Name,
			Path:      obj.Key,
			Size:      obj.Size,
			URL:       s.files.PublicURL(obj.Key),
			UpdatedAt: obj.UpdatedAt,
		})
	}
	return &dto.SubmissionDetail{Submission: *submission, Files: files}, nil
}

// Update edits the admin-editable fields and returns the new state.
func (s *SubmissionService) Update(ctx context.Context, id string, req dto.UpdateSubmissionRequest) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	update := models.SubmissionUpdate{
		Company:    trimmed(req.Company),
		City:       req.City,
		Department: req.Department,
		Message:    req.Message,
	}
	if req.ProjectType != nil {
		pt := models.ProjectType(*req.ProjectType)
		update.ProjectType = &pt
	}
	if update.Company != nil && *update.Company == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "entreprise cannot be empty")
	}
	if update.Empty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no fields to update")
	}

	before, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, id, update); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrSubmissionNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update submission")
	}
	if update.Company != nil {
		s.cache.Invalidate(ctx, companiesCacheKey())
	}

	after, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	// A renamed archive would orphan the previous object.
	if deref(before.City) != deref(after.City) || deref(before.Department) != deref(after.Department) {
		if err := s.archives.DeleteArchive(ctx, id, deref(before.City), deref(before.Department)); err != nil {
			s.logger.Warn("failed to delete stale archive", zap.String("submission_id", id), zap.Error(err))
		}
	}
	return after, nil
}

// Delete removes the submission's photos, recordings and archive, then the row.
func (s *SubmissionService) Delete(ctx context.Context, id string) error {
	submission, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	objects, err := s.files.List(ctx, submission.PhotoPrefix())
	if err != nil {
		return appErrors.WrapAs(err, appErrors.ErrStorageRead)
	}
	if len(objects) > 0 {
		keys := make([]string, 0, len(objects))
		for _, obj := range objects {
			keys = append(keys, obj.Key)
		}
		if err := s.files.Delete(ctx, keys...); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete files")
		}
	}

	var mediaKeys []string
	for _, rawURL := range []*string{submission.AudioURL, submission.VideoURL} {
		if rawURL == nil || *rawURL == "" {
			continue
		}
		if key, ok := s.media.KeyForURL(*rawURL); ok {
			mediaKeys = append(mediaKeys, key)
		} else {
			s.logger.Warn("recording not in media bucket, leaving it", zap.String("submission_id", id), zap.String("url", *rawURL))
		}
	}
	if len(mediaKeys) > 0 {
		if err := s.media.Delete(ctx, mediaKeys...); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete recordings")
		}
	}

	if err := s.archives.DeleteArchive(ctx, id, deref(submission.City), deref(submission.Department)); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrSubmissionNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete submission")
	}
	s.cache.Invalidate(ctx, companiesCacheKey())
	s.logger.Info("submission deleted", zap.String("submission_id", id), zap.Int("files", len(objects)))
	return nil
}

// Archive builds the submission's archive and signs a download link for it.
func (s *SubmissionService) Archive(ctx context.Context, id string) (*dto.ArchiveDownloadResponse, error) {
	submission, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	result, err := s.archives.Build(ctx, id, deref(submission.City), deref(submission.Department))
	if err != nil {
		return nil, err
	}
	link, err := s.archives.DownloadLink(id, result)
	if err != nil {
		return nil, err
	}
	return &dto.ArchiveDownloadResponse{
		CreateArchiveResponse: dto.NewCreateArchiveResponse(result),
		DownloadURL:           link.URL,
		ExpiresAt:             link.ExpiresAt.UTC().Format(time.RFC3339),
	}, nil
}

// ExportRows returns every submission matching query, newest first.
func (s *SubmissionService) ExportRows(ctx context.Context, query dto.SubmissionListQuery) ([]models.Submission, error) {
	filter := models.SubmissionFilter{Companies: splitCompanies(query.Companies), Search: query.Search, PageSize: 200}
	var all []models.Submission
	for page := 1; ; page++ {
		filter.Page = page
		items, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
		}
		all = append(all, items...)
		if len(items) < filter.PageSize || len(all) >= total {
			return all, nil
		}
	}
}

func (s *SubmissionService) load(ctx context.Context, id string) (*models.Submission, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, appErrors.ErrSubmissionNotFound
	}
	submission, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrSubmissionNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return submission, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

