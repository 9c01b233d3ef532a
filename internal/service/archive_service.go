package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/insite-net/partage-api/internal/models"
	appErrors "github.com/insite-net/partage-api/pkg/errors"
	"github.com/insite-net/partage-api/pkg/export"
	"github.com/insite-net/partage-api/pkg/storage"
)

const (
	audioEntryStem   = "audio_description"
	videoEntryStem   = "video"
	archiveMediaType = "application/zip"
)

type archiveSubmissionReader interface {
	GetByID(ctx context.Context, id string) (*models.Submission, error)
}

type mediaFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

type archiveSignedURLSigner interface {
	Generate(subject, key string) (string, time.Time, error)
	Parse(token string) (subject, key string, expiresAt time.Time, err error)
}

// ArchiveServiceConfig tunes fetch fan-out and compression.
type ArchiveServiceConfig struct {
	FetchConcurrency int
	CompressionLevel int
	MaxFileSizeBytes int64
	FetchTimeout     time.Duration
	APIPrefix        string
}

// ArchiveDownload is a ready-to-stream archive.
type ArchiveDownload struct {
	Filename  string
	MimeType  string
	Data      []byte
	ExpiresAt time.Time
}

// ArchiveLink is a signed download link for a built archive.
type ArchiveLink struct {
	URL       string
	ExpiresAt time.Time
}

// ArchiveService packages a submission's photos and recordings into a ZIP stored next to them.
type ArchiveService struct {
	submissions archiveSubmissionReader
	files       storage.ObjectStore
	media       mediaFetcher
	signer      archiveSignedURLSigner
	zipper      *export.ZipBuilder
	metrics     *MetricsService
	logger      *zap.Logger
	cfg         ArchiveServiceConfig
	now         func() time.Time
}

// NewArchiveService constructs the service with defaults.
func NewArchiveService(submissions archiveSubmissionReader, files storage.ObjectStore, media mediaFetcher, signer archiveSignedURLSigner, metrics *MetricsService, logger *zap.Logger, cfg ArchiveServiceConfig) *ArchiveService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 4
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &ArchiveService{
		submissions: submissions,
		files:       files,
		media:       media,
		signer:      signer,
		zipper:      export.NewZipBuilder(cfg.CompressionLevel),
		metrics:     metrics,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// archiveSource is one file to fetch, already assigned its entry name.
type archiveSource struct {
	name   string
	key    string
	url    string
	source string
}

// Build gathers the submission's files, zips them and uploads the archive to
// archives/<name>.zip, overwriting any previous build. city and department only
// affect the archive name; empty values fall back to projet_<id8>.
func (s *ArchiveService) Build(ctx context.Context, submissionID, city, department string) (result *models.ArchiveResult, err error) {
	start := s.now()
	defer func() {
		outcome := ArchiveOutcomeSuccess
		files, skipped := 0, 0
		var size int64
		if err != nil {
			outcome = ArchiveOutcomeFailure
		} else {
			files, skipped, size = result.FilesCount, len(result.SkippedFiles), result.SizeBytes
		}
		s.metrics.ObserveArchiveBuild(outcome, time.Since(start), files, skipped, size)
	}()

	if submissionID == "" {
		return nil, appErrors.ErrInvalidRequest
	}
	if _, parseErr := uuid.Parse(submissionID); parseErr != nil {
		return nil, appErrors.ErrSubmissionNotFound
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrSubmissionNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}

	objects, err := s.files.List(ctx, submission.PhotoPrefix())
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrStorageRead)
	}
	if len(objects) == 0 && !submission.HasAudio() && !submission.HasVideo() {
		return nil, appErrors.ErrNoFilesFound
	}

	sources := s.plan(submission, objects)
	entries, skipped, err := s.fetchAll(ctx, sources)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		s.logger.Warn("archive has no downloadable files",
			zap.String("submission_id", submissionID),
			zap.Int("skipped", len(skipped)),
		)
		return nil, appErrors.ErrArchiveEmpty
	}

	payload, err := s.zipper.Build(entries, s.now())
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrArchiveBuild)
	}

	name := export.ArchiveName(submissionID, city, department)
	key := export.ArchivePath(name)
	if err := s.files.Upload(ctx, key, payload, archiveMediaType, true); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrStorageWrite)
	}

	s.logger.Info("archive uploaded",
		zap.String("submission_id", submissionID),
		zap.String("archive", key),
		zap.Int("files", len(entries)),
		zap.Int("skipped", len(skipped)),
		zap.Int("bytes", len(payload)),
	)

	return &models.ArchiveResult{
		ArchiveName:  name,
		ArchivePath:  key,
		ArchiveURL:   s.files.PublicURL(key),
		FilesCount:   len(entries),
		SizeBytes:    int64(len(payload)),
		SkippedFiles: skipped,
	}, nil
}

// plan assigns entry names before any download so that naming never depends on fetch order.
func (s *ArchiveService) plan(submission *models.Submission, objects []storage.Object) []archiveSource {
	taken := make(map[string]struct{}, len(objects)+2)
	sources := make([]archiveSource, 0, len(objects)+2)
	if submission.HasAudio() {
		name := export.UniqueName(audioEntryStem+"."+export.MediaExt(*submission.AudioURL), taken)
		sources = append(sources, archiveSource{name: name, url: *submission.AudioURL, source: *submission.AudioURL})
	}
	if submission.HasVideo() {
		name := export.UniqueName(videoEntryStem+"."+export.MediaExt(*submission.VideoURL), taken)
		sources = append(sources, archiveSource{name: name, url: *submission.VideoURL, source: *submission.VideoURL})
	}
	for _, obj := range objects {
		sources = append(sources, archiveSource{name: export.UniqueName(obj.Name, taken), key: obj.Key, source: obj.Key})
	}
	return sources
}

func (s *ArchiveService) fetchAll(ctx context.Context, sources []archiveSource) ([]export.ZipEntry, []models.SkippedFile, error) {
	results := make([][]byte, len(sources))
	failures := make([]error, len(sources))

	var g errgroup.Group
	g.SetLimit(s.cfg.FetchConcurrency)
	for i := range sources {
		i := i
		g.Go(func() error {
			data, err := s.fetch(ctx, sources[i])
			if err != nil {
				failures[i] = err
				return nil
			}
			results[i] = data
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "archive build cancelled")
	}

	var entries []export.ZipEntry
	var skipped []models.SkippedFile
	for i, src := range sources {
		if failures[i] != nil {
			s.logger.Warn("skipping archive file",
				zap.String("file", src.name),
				zap.String("source", src.source),
				zap.Error(failures[i]),
			)
			skipped = append(skipped, models.SkippedFile{Name: src.name, Source: src.source, Reason: failures[i].Error()})
			continue
		}
		entries = append(entries, export.ZipEntry{Name: src.name, Data: results[i]})
	}
	return entries, skipped, nil
}

func (s *ArchiveService) fetch(ctx context.Context, src archiveSource) ([]byte, error) {
	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}
	var (
		data []byte
		err  error
	)
	if src.url != "" {
		if s.media == nil {
			return nil, fmt.Errorf("no media fetcher configured")
		}
		data, err = s.media.Fetch(ctx, src.url)
	} else {
		data, err = s.files.Download(ctx, src.key)
	}
	if err != nil {
		return nil, err
	}
	if s.cfg.MaxFileSizeBytes > 0 && int64(len(data)) > s.cfg.MaxFileSizeBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", s.cfg.MaxFileSizeBytes)
	}
	return data, nil
}

// DownloadLink signs a short-lived link to a built archive.
func (s *ArchiveService) DownloadLink(submissionID string, result *models.ArchiveResult) (*ArchiveLink, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	token, expiresAt, err := s.signer.Generate(submissionID, result.ArchivePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	return &ArchiveLink{URL: s.cfg.APIPrefix + "/downloads/" + token, ExpiresAt: expiresAt}, nil
}

// Download resolves a signed token and reads the archive it points to.
func (s *ArchiveService) Download(ctx context.Context, token string) (*ArchiveDownload, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	_, key, expiresAt, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.ErrDownloadLinkExpired
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download token")
	}
	data, err := s.files.Download(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "archive not found")
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrStorageRead)
	}
	return &ArchiveDownload{
		Filename:  path.Base(key),
		MimeType:  archiveMediaType,
		Data:      data,
		ExpiresAt: expiresAt,
	}, nil
}

// DeleteArchive removes every archive built for a submission: the one named after
// city and department, plus any archive whose name ends with the submission's short
// id (the projet_ fallback or a location passed to create-archive). Missing objects are ignored.
func (s *ArchiveService) DeleteArchive(ctx context.Context, submissionID, city, department string) error {
	current := export.ArchivePath(export.ArchiveName(submissionID, city, department))
	keys := []string{current}

	objects, err := s.files.List(ctx, export.ArchivePrefix)
	if err != nil {
		return appErrors.WrapAs(err, appErrors.ErrStorageRead)
	}
	suffix := "_" + export.ShortID(submissionID) + ".zip"
	for _, obj := range objects {
		if obj.Key != current && strings.HasSuffix(obj.Name, suffix) {
			keys = append(keys, obj.Key)
		}
	}

	if err := s.files.Delete(ctx, keys...); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete archive")
	}
	return nil
}
