package service

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insite-net/partage-api/internal/models"
	appErrors "github.com/insite-net/partage-api/pkg/errors"
	"github.com/insite-net/partage-api/pkg/storage"
)

const testSubmissionID = "abcdef12-3456-7890-abcd-ef1234567890"

type submissionReaderStub struct {
	items map[string]*models.Submission
	calls int
	err   error
}

func (s *submissionReaderStub) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if item, ok := s.items[id]; ok {
		copy := *item
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

type objectStoreStub struct {
	mu        sync.Mutex
	bucket    string
	objects   map[string][]byte
	failing   map[string]error
	listErr   error
	uploadErr error
	uploads   map[string][]byte
	upserts   []bool
	deleted   []string
	calls     int
}

func newObjectStoreStub() *objectStoreStub {
	return &objectStoreStub{
		bucket:  "construction-files",
		objects: make(map[string][]byte),
		failing: make(map[string]error),
		uploads: make(map[string][]byte),
	}
}

func (s *objectStoreStub) Bucket() string { return s.bucket }

func (s *objectStoreStub) List(ctx context.Context, prefix string) ([]storage.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []storage.Object
	for key, data := range s.objects {
		rest := strings.TrimPrefix(key, prefix)
		if !strings.HasPrefix(key, prefix) || strings.Contains(rest, "/") {
			continue
		}
		out = append(out, storage.Object{Key: key, Name: rest, Size: int64(len(data))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *objectStoreStub) Download(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err, ok := s.failing[key]; ok {
		return nil, err
	}
	if data, ok := s.objects[key]; ok {
		return data, nil
	}
	if data, ok := s.uploads[key]; ok {
		return data, nil
	}
	return nil, storage.ErrObjectNotFound
}

func (s *objectStoreStub) Upload(ctx context.Context, key string, data []byte, contentType string, upsert bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.uploadErr != nil {
		return s.uploadErr
	}
	s.uploads[key] = data
	s.upserts = append(s.upserts, upsert)
	return nil
}

func (s *objectStoreStub) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.deleted = append(s.deleted, keys...)
	for _, key := range keys {
		delete(s.objects, key)
		delete(s.uploads, key)
	}
	return nil
}

func (s *objectStoreStub) PublicURL(key string) string {
	return "https://cdn.example.com/" + s.bucket + "/" + key
}

func (s *objectStoreStub) KeyForURL(rawURL string) (string, bool) {
	prefix := "https://cdn.example.com/" + s.bucket + "/"
	if !strings.HasPrefix(rawURL, prefix) {
		return "", false
	}
	return strings.TrimPrefix(rawURL, prefix), true
}

type mediaFetcherStub struct {
	mu      sync.Mutex
	payload map[string][]byte
	calls   int
}

func (f *mediaFetcherStub) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if data, ok := f.payload[rawURL]; ok {
		return data, nil
	}
	return nil, errors.New("http 503")
}

type signerStub struct {
	expired bool
}

func (s *signerStub) Generate(subject, key string) (string, time.Time, error) {
	return subject + "|" + key, time.Unix(1700000000, 0), nil
}

func (s *signerStub) Parse(token string) (string, string, time.Time, error) {
	if s.expired {
		return "", "", time.Time{}, storage.ErrTokenExpired
	}
	parts := strings.SplitN(token, "|", 2)
	if len(parts) != 2 {
		return "", "", time.Time{}, errors.New("malformed")
	}
	return parts[0], parts[1], time.Unix(1700000000, 0), nil
}

func strPtr(s string) *string { return &s }

func newArchiveFixture(sub *models.Submission) (*ArchiveService, *submissionReaderStub, *objectStoreStub, *mediaFetcherStub) {
	subs := &submissionReaderStub{items: map[string]*models.Submission{}}
	if sub != nil {
		subs.items[sub.ID] = sub
	}
	files := newObjectStoreStub()
	media := &mediaFetcherStub{payload: map[string][]byte{}}
	svc := NewArchiveService(subs, files, media, &signerStub{}, NewMetricsService(), nil, ArchiveServiceConfig{FetchConcurrency: 2})
	return svc, subs, files, media
}

func zipNames(t *testing.T, data []byte) []string {
	t.Helper()
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	names := make([]string, 0, len(reader.File))
	for _, f := range reader.File {
		assert.Equal(t, zip.Deflate, f.Method)
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestArchiveBuildPacksPhotosAndRecordings(t *testing.T) {
	sub := &models.Submission{
		ID:       testSubmissionID,
		Company:  "Dupont BTP",
		AudioURL: strPtr("https://media.example.com/1700000000_audio.webm?token=x"),
		VideoURL: strPtr("https://media.example.com/clip"),
	}
	svc, _, files, media := newArchiveFixture(sub)
	files.objects[testSubmissionID+"/a.jpg"] = []byte("photo-a")
	files.objects[testSubmissionID+"/b.png"] = []byte("photo-b")
	media.payload[*sub.AudioURL] = []byte("audio")
	media.payload[*sub.VideoURL] = []byte("video")

	result, err := svc.Build(context.Background(), testSubmissionID, "Lyon", "69")
	require.NoError(t, err)

	assert.Equal(t, "Lyon_69_abcdef12", result.ArchiveName)
	assert.Equal(t, "archives/Lyon_69_abcdef12.zip", result.ArchivePath)
	assert.Equal(t, "https://cdn.example.com/construction-files/archives/Lyon_69_abcdef12.zip", result.ArchiveURL)
	assert.Equal(t, 4, result.FilesCount)
	assert.Empty(t, result.SkippedFiles)

	uploaded, ok := files.uploads[result.ArchivePath]
	require.True(t, ok)
	assert.Equal(t, []bool{true}, files.upserts)
	assert.Equal(t, []string{"a.jpg", "audio_description.webm", "b.png", "video.mp4"}, zipNames(t, uploaded))
}

func TestArchiveBuildFallbackName(t *testing.T) {
	sub := &models.Submission{ID: testSubmissionID}
	svc, _, files, _ := newArchiveFixture(sub)
	files.objects[testSubmissionID+"/a.jpg"] = []byte("a")

	result, err := svc.Build(context.Background(), testSubmissionID, "", "69")
	require.NoError(t, err)
	assert.Equal(t, "projet_abcdef12", result.ArchiveName)

	result, err = svc.Build(context.Background(), testSubmissionID, "Saint-Étienne", "42")
	require.NoError(t, err)
	assert.Equal(t, "Saint_Etienne_42_abcdef12", result.ArchiveName)
}

func TestArchiveBuildIsIdempotent(t *testing.T) {
	sub := &models.Submission{ID: testSubmissionID}
	svc, _, files, _ := newArchiveFixture(sub)
	files.objects[testSubmissionID+"/a.jpg"] = []byte("a")

	first, err := svc.Build(context.Background(), testSubmissionID, "Lyon", "69")
	require.NoError(t, err)
	second, err := svc.Build(context.Background(), testSubmissionID, "Lyon", "69")
	require.NoError(t, err)

	assert.Equal(t, first.ArchivePath, second.ArchivePath)
	assert.Equal(t, first.ArchiveURL, second.ArchiveURL)
	assert.Len(t, files.uploads, 1)
	assert.Equal(t, []bool{true, true}, files.upserts)
}

func TestArchiveBuildSkipsFailedDownloads(t *testing.T) {
	sub := &models.Submission{ID: testSubmissionID}
	svc, _, files, _ := newArchiveFixture(sub)
	for _, name := range []string{"1.jpg", "2.jpg", "3.jpg", "4.jpg", "5.jpg"} {
		files.objects[testSubmissionID+"/"+name] = []byte(name)
	}
	files.failing[testSubmissionID+"/3.jpg"] = errors.New("connection reset")

	result, err := svc.Build(context.Background(), testSubmissionID, "", "")
	require.NoError(t, err)
	assert.Equal(t, 4, result.FilesCount)
	require.Len(t, result.SkippedFiles, 1)
	assert.Equal(t, models.SkippedFile{Name: "3.jpg", Source: testSubmissionID + "/3.jpg", Reason: "connection reset"}, result.SkippedFiles[0])
	assert.Equal(t, []string{"1.jpg", "2.jpg", "4.jpg", "5.jpg"}, zipNames(t, files.uploads[result.ArchivePath]))
}

func TestArchiveBuildAllDownloadsFailed(t *testing.T) {
	sub := &models.Submission{ID: testSubmissionID, AudioURL: strPtr("https://elsewhere.example.com/a.m4a")}
	svc, _, files, media := newArchiveFixture(sub)
	files.objects[testSubmissionID+"/a.jpg"] = []byte("a")
	files.failing[testSubmissionID+"/a.jpg"] = errors.New("boom")

	_, err := svc.Build(context.Background(), testSubmissionID, "Lyon", "69")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrArchiveEmpty)
	assert.Empty(t, files.uploads)
	assert.Equal(t, 1, media.calls)
}

func TestArchiveBuildUnknownSubmission(t *testing.T) {
	svc, subs, files, media := newArchiveFixture(nil)

	_, err := svc.Build(context.Background(), testSubmissionID, "", "")
	assert.ErrorIs(t, err, appErrors.ErrSubmissionNotFound)
	assert.Equal(t, 1, subs.calls)
	assert.Zero(t, files.calls)
	assert.Zero(t, media.calls)
}

func TestArchiveBuildRejectsBadIdentifiers(t *testing.T) {
	svc, subs, files, _ := newArchiveFixture(nil)

	_, err := svc.Build(context.Background(), "", "", "")
	assert.ErrorIs(t, err, appErrors.ErrInvalidRequest)

	_, err = svc.Build(context.Background(), "not-a-uuid", "", "")
	assert.ErrorIs(t, err, appErrors.ErrSubmissionNotFound)
	assert.Zero(t, subs.calls)
	assert.Zero(t, files.calls)
}

func TestArchiveBuildNoFiles(t *testing.T) {
	sub := &models.Submission{ID: testSubmissionID}
	svc, _, files, _ := newArchiveFixture(sub)

	_, err := svc.Build(context.Background(), testSubmissionID, "", "")
	assert.ErrorIs(t, err, appErrors.ErrNoFilesFound)
	assert.Empty(t, files.uploads)
}

func TestArchiveBuildRecordingsOnly(t *testing.T) {
	sub := &models.Submission{ID: testSubmissionID, AudioURL: strPtr("https://media.example.com/a")}
	svc, _, files, media := newArchiveFixture(sub)
	media.payload[*sub.AudioURL] = []byte("audio")

	result, err := svc.Build(context.Background(), testSubmissionID, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesCount)
	assert.Equal(t, []string{"audio_description.mp4"}, zipNames(t, files.uploads[result.ArchivePath]))
}

func TestArchiveBuildStorageErrors(t *testing.T) {
	sub := &models.Submission{ID: testSubmissionID}
	svc, _, files, _ := newArchiveFixture(sub)
	files.listErr = errors.New("list failed")

	_, err := svc.Build(context.Background(), testSubmissionID, "", "")
	assert.ErrorIs(t, err, appErrors.ErrStorageRead)

	files.listErr = nil
	files.objects[testSubmissionID+"/a.jpg"] = []byte("a")
	files.uploadErr = errors.New("denied")

	_, err = svc.Build(context.Background(), testSubmissionID, "", "")
	assert.ErrorIs(t, err, appErrors.ErrStorageWrite)
	assert.Contains(t, err.Error(), "denied")
}

func TestArchiveBuildLookupFailure(t *testing.T) {
	svc, subs, _, _ := newArchiveFixture(nil)
	subs.err = errors.New("db down")

	_, err := svc.Build(context.Background(), testSubmissionID, "", "")
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestArchiveBuildDisambiguatesDuplicateNames(t *testing.T) {
	svc := &ArchiveService{}
	sub := &models.Submission{ID: testSubmissionID, VideoURL: strPtr("https://x/v.mov")}
	sources := svc.plan(sub, []storage.Object{
		{Key: testSubmissionID + "/video.mov", Name: "video.mov"},
		{Key: testSubmissionID + "/a.jpg", Name: "a.jpg"},
		{Key: testSubmissionID + "/sub/a.jpg", Name: "a.jpg"},
	})

	names := make([]string, 0, len(sources))
	for _, src := range sources {
		names = append(names, src.name)
	}
	assert.Equal(t, []string{"video.mov", "video_2.mov", "a.jpg", "a_2.jpg"}, names)
}

func TestArchiveDownloadLinkRoundTrip(t *testing.T) {
	sub := &models.Submission{ID: testSubmissionID}
	svc, _, files, _ := newArchiveFixture(sub)
	files.objects[testSubmissionID+"/a.jpg"] = []byte("a")

	result, err := svc.Build(context.Background(), testSubmissionID, "Lyon", "69")
	require.NoError(t, err)

	link, err := svc.DownloadLink(testSubmissionID, result)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(link.URL, "/api/v1/downloads/"))

	download, err := svc.Download(context.Background(), strings.TrimPrefix(link.URL, "/api/v1/downloads/"))
	require.NoError(t, err)
	assert.Equal(t, "Lyon_69_abcdef12.zip", download.Filename)
	assert.Equal(t, "application/zip", download.MimeType)
	assert.Equal(t, files.uploads[result.ArchivePath], download.Data)
}

func TestArchiveDownloadExpired(t *testing.T) {
	svc, _, _, _ := newArchiveFixture(nil)
	svc.signer = &signerStub{expired: true}

	_, err := svc.Download(context.Background(), "anything")
	assert.ErrorIs(t, err, appErrors.ErrDownloadLinkExpired)
}

func TestArchiveDeleteArchive(t *testing.T) {
	svc, _, files, _ := newArchiveFixture(nil)

	require.NoError(t, svc.DeleteArchive(context.Background(), testSubmissionID, "Lyon", "69"))
	assert.Equal(t, []string{"archives/Lyon_69_abcdef12.zip"}, files.deleted)
}

func TestArchiveDeleteArchiveSweepsEveryNameForSubmission(t *testing.T) {
	sub := &models.Submission{ID: testSubmissionID, City: strPtr("Lyon"), Department: strPtr("69")}
	svc, _, files, _ := newArchiveFixture(sub)
	files.objects[testSubmissionID+"/a.jpg"] = []byte("a")

	fallback, err := svc.Build(context.Background(), testSubmissionID, "", "")
	require.NoError(t, err)
	assert.Equal(t, "archives/projet_abcdef12.zip", fallback.ArchivePath)
	other, err := svc.Build(context.Background(), testSubmissionID, "Paris", "75")
	require.NoError(t, err)
	for key, data := range files.uploads {
		files.objects[key] = data
	}
	files.objects["archives/Lyon_69_99999999.zip"] = []byte("other submission")

	require.NoError(t, svc.DeleteArchive(context.Background(), testSubmissionID, "Lyon", "69"))
	assert.ElementsMatch(t, []string{
		"archives/Lyon_69_abcdef12.zip",
		"archives/projet_abcdef12.zip",
		"archives/Paris_75_abcdef12.zip",
	}, files.deleted)
	assert.NotContains(t, files.objects, fallback.ArchivePath)
	assert.NotContains(t, files.objects, other.ArchivePath)
	assert.NotContains(t, files.uploads, fallback.ArchivePath)
	assert.Contains(t, files.objects, "archives/Lyon_69_99999999.zip")
}

func TestArchiveDeleteArchiveListFailure(t *testing.T) {
	svc, _, files, _ := newArchiveFixture(nil)
	files.listErr = errors.New("bucket offline")

	err := svc.DeleteArchive(context.Background(), testSubmissionID, "Lyon", "69")
	assert.ErrorIs(t, err, appErrors.ErrStorageRead)
	assert.Empty(t, files.deleted)
}

func TestArchiveBuildCancelled(t *testing.T) {
	sub := &models.Submission{ID: testSubmissionID}
	svc, _, files, _ := newArchiveFixture(sub)
	files.objects[testSubmissionID+"/a.jpg"] = []byte("a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Build(ctx, testSubmissionID, "Lyon", "69")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	assert.Equal(t, "archive build cancelled", appErrors.FromError(err).Message)
	assert.Empty(t, files.uploads)
}

func TestArchiveBuildRecordsMetrics(t *testing.T) {
	sub := &models.Submission{ID: testSubmissionID}
	svc, _, files, _ := newArchiveFixture(sub)
	files.objects[testSubmissionID+"/a.jpg"] = []byte("a")
	files.objects[testSubmissionID+"/b.jpg"] = []byte("b")
	files.failing[testSubmissionID+"/b.jpg"] = errors.New("timeout")

	_, err := svc.Build(context.Background(), testSubmissionID, "", "")
	require.NoError(t, err)
	_, err = svc.Build(context.Background(), "", "", "")
	require.Error(t, err)

	snapshot := svc.metrics.Snapshot()
	assert.EqualValues(t, 1, snapshot.ArchivesBuilt)
	assert.EqualValues(t, 1, snapshot.ArchivesFailed)
	assert.EqualValues(t, 1, snapshot.FilesSkipped)
}
