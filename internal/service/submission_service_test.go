package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"mime/multipart"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insite-net/partage-api/internal/dto"
	"github.com/insite-net/partage-api/internal/models"
	appErrors "github.com/insite-net/partage-api/pkg/errors"
)

type memFile struct {
	*bytes.Reader
}

func (memFile) Close() error { return nil }

func upload(name, contentType string, data []byte) dto.Upload {
	return dto.Upload{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Open: func() (multipart.File, error) {
			return memFile{bytes.NewReader(data)}, nil
		},
	}
}

type submissionRepoStub struct {
	items     map[string]*models.Submission
	companies []string
	listCalls int
	filter    models.SubmissionFilter
	deleted   []string
}

func newSubmissionRepoStub() *submissionRepoStub {
	return &submissionRepoStub{items: map[string]*models.Submission{}}
}

func (r *submissionRepoStub) Create(ctx context.Context, s *models.Submission) error {
	if s.ID == "" {
		s.ID = testSubmissionID
	}
	copy := *s
	r.items[s.ID] = &copy
	return nil
}

func (r *submissionRepoStub) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	item, ok := r.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *item
	return &copy, nil
}

func (r *submissionRepoStub) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error) {
	r.filter = filter
	var out []models.Submission
	for _, item := range r.items {
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r *submissionRepoStub) ListCompanies(ctx context.Context) ([]string, error) {
	r.listCalls++
	return r.companies, nil
}

func (r *submissionRepoStub) Update(ctx context.Context, id string, update models.SubmissionUpdate) error {
	item, ok := r.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	if update.Company != nil {
		item.Company = *update.Company
	}
	if update.City != nil {
		item.City = update.City
	}
	if update.Department != nil {
		item.Department = update.Department
	}
	if update.ProjectType != nil {
		item.ProjectType = *update.ProjectType
	}
	if update.Message != nil {
		item.Message = update.Message
	}
	return nil
}

func (r *submissionRepoStub) Delete(ctx context.Context, id string) error {
	if _, ok := r.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.items, id)
	r.deleted = append(r.deleted, id)
	return nil
}

type archiverStub struct {
	result  *models.ArchiveResult
	err     error
	built   [][]string
	removed [][]string
}

func (a *archiverStub) Build(ctx context.Context, submissionID, city, department string) (*models.ArchiveResult, error) {
	a.built = append(a.built, []string{submissionID, city, department})
	return a.result, a.err
}

func (a *archiverStub) DownloadLink(submissionID string, result *models.ArchiveResult) (*ArchiveLink, error) {
	return &ArchiveLink{URL: "/api/v1/downloads/tok", ExpiresAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}, nil
}

func (a *archiverStub) DeleteArchive(ctx context.Context, submissionID, city, department string) error {
	a.removed = append(a.removed, []string{submissionID, city, department})
	return nil
}

type notifierStub struct {
	notices []SubmissionNotice
	err     error
}

func (n *notifierStub) NotifySubmission(ctx context.Context, notice SubmissionNotice) (string, error) {
	n.notices = append(n.notices, notice)
	if n.err != nil {
		return "", n.err
	}
	return "email-42", nil
}

type submissionFixture struct {
	svc      *SubmissionService
	repo     *submissionRepoStub
	files    *objectStoreStub
	media    *objectStoreStub
	archiver *archiverStub
	notifier *notifierStub
}

func newSubmissionFixture() *submissionFixture {
	f := &submissionFixture{
		repo:     newSubmissionRepoStub(),
		files:    newObjectStoreStub(),
		media:    newObjectStoreStub(),
		archiver: &archiverStub{result: &models.ArchiveResult{ArchiveName: "Lyon_69_abcdef12", ArchiveURL: "https://cdn.example.com/construction-files/archives/Lyon_69_abcdef12.zip", FilesCount: 2}},
		notifier: &notifierStub{},
	}
	f.media.bucket = "audio-recordings"
	f.svc = NewSubmissionService(f.repo, f.files, f.media, f.archiver, f.notifier, nil, nil, nil, SubmissionServiceConfig{MaxFileBytes: 1 << 20})
	f.svc.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return f
}

func TestIntakeStoresEverything(t *testing.T) {
	f := newSubmissionFixture()
	lat, lon := 45.76, 4.83
	duration := 12

	resp, err := f.svc.Intake(context.Background(), dto.SubmissionIntake{
		Form: dto.SubmissionForm{
			Company:       " Dupont BTP ",
			City:          "Lyon",
			Department:    "69",
			ProjectType:   "renovation",
			Latitude:      &lat,
			Longitude:     &lon,
			AudioDuration: &duration,
		},
		Files: []dto.Upload{
			upload("toit (1).jpg", "image/jpeg", []byte("a")),
			upload("toit (1).jpg", "image/jpeg", []byte("b")),
		},
		Audio: &dto.Upload{Name: "blob", ContentType: "audio/webm;codecs=opus", Size: 5, Open: upload("", "", []byte("audio")).Open},
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, testSubmissionID, resp.SubmissionID)
	assert.Equal(t, 2, resp.FilesUploaded)
	assert.Equal(t, "email-42", resp.EmailID)
	require.NotNil(t, resp.ArchiveURL)

	_, ok := f.media.uploads["1700000000000_audio.webm"]
	assert.True(t, ok)
	assert.Equal(t, []bool{false}, f.media.upserts)

	keys := make([]string, 0, len(f.files.uploads))
	for key := range f.files.uploads {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{
		testSubmissionID + "/1700000000000_toit__1_.jpg",
		testSubmissionID + "/1700000000001_toit__1_.jpg",
	}, keys)

	stored := f.repo.items[testSubmissionID]
	assert.Equal(t, "Dupont BTP", stored.Company)
	assert.Equal(t, models.ProjectTypeRenovation, stored.ProjectType)
	require.NotNil(t, stored.AudioURL)
	assert.True(t, strings.HasSuffix(*stored.AudioURL, "/audio-recordings/1700000000000_audio.webm"))
	assert.Equal(t, &duration, stored.AudioDuration)

	assert.Equal(t, [][]string{{testSubmissionID, "Lyon", "69"}}, f.archiver.built)
	require.Len(t, f.notifier.notices, 1)
	assert.Len(t, f.notifier.notices[0].Photos, 2)
	assert.Equal(t, f.archiver.result, f.notifier.notices[0].Archive)
}

func TestIntakeValidation(t *testing.T) {
	f := newSubmissionFixture()

	_, err := f.svc.Intake(context.Background(), dto.SubmissionIntake{Form: dto.SubmissionForm{Company: "  "}})
	assert.ErrorIs(t, err, appErrors.ErrMissingFields)

	_, err = f.svc.Intake(context.Background(), dto.SubmissionIntake{Form: dto.SubmissionForm{Company: "A"}})
	assert.ErrorIs(t, err, appErrors.ErrNoFilesProvided)

	_, err = f.svc.Intake(context.Background(), dto.SubmissionIntake{
		Form:  dto.SubmissionForm{Company: "A", ProjectType: "extension"},
		Files: []dto.Upload{upload("a.jpg", "image/jpeg", []byte("a"))},
	})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Empty(t, f.repo.items)
}

func TestIntakeDegradesWhenArchiveFails(t *testing.T) {
	f := newSubmissionFixture()
	f.archiver.err = appErrors.ErrArchiveEmpty

	resp, err := f.svc.Intake(context.Background(), dto.SubmissionIntake{
		Form:  dto.SubmissionForm{Company: "A"},
		Files: []dto.Upload{upload("a.jpg", "image/jpeg", []byte("a"))},
	})
	require.NoError(t, err)
	assert.Nil(t, resp.ArchiveURL)
	assert.Nil(t, f.notifier.notices[0].Archive)
	assert.Equal(t, models.ProjectTypeNew, f.repo.items[testSubmissionID].ProjectType)
}

func TestIntakeSkipsFailedPhotoUploads(t *testing.T) {
	f := newSubmissionFixture()
	f.files.uploadErr = errors.New("quota")

	resp, err := f.svc.Intake(context.Background(), dto.SubmissionIntake{
		Form:  dto.SubmissionForm{Company: "A"},
		Files: []dto.Upload{upload("a.jpg", "image/jpeg", []byte("a"))},
	})
	require.NoError(t, err)
	assert.Zero(t, resp.FilesUploaded)
	require.Len(t, resp.SkippedFiles, 1)
	assert.Equal(t, "quota", resp.SkippedFiles[0].Reason)
}

func TestIntakeEmailFailure(t *testing.T) {
	f := newSubmissionFixture()
	f.notifier.err = appErrors.ErrNotificationFailed

	_, err := f.svc.Intake(context.Background(), dto.SubmissionIntake{
		Form:  dto.SubmissionForm{Company: "A"},
		Files: []dto.Upload{upload("a.jpg", "image/jpeg", []byte("a"))},
	})
	assert.ErrorIs(t, err, appErrors.ErrNotificationFailed)
	assert.Contains(t, f.repo.items, testSubmissionID)
}

func TestSanitizeFileName(t *testing.T) {
	assert.Equal(t, "photo_d__t__2024.jpg", SanitizeFileName("photo d'été 2024.jpg"))
	assert.Equal(t, "evil.sh", SanitizeFileName("../../evil.sh"))
	assert.Equal(t, "file", SanitizeFileName(""))
}

func TestRecordingExt(t *testing.T) {
	assert.Equal(t, "m4a", recordingExt(dto.Upload{Name: "memo.M4A"}))
	assert.Equal(t, "mp4", recordingExt(dto.Upload{Name: "blob", ContentType: "video/mp4"}))
	assert.Equal(t, "webm", recordingExt(dto.Upload{Name: "blob"}))
}

func TestDeleteCascades(t *testing.T) {
	f := newSubmissionFixture()
	audio := f.media.PublicURL("1_audio.webm")
	f.repo.items[testSubmissionID] = &models.Submission{ID: testSubmissionID, City: strPtr("Lyon"), Department: strPtr("69"), AudioURL: &audio, VideoURL: strPtr("https://elsewhere.example.com/v.mp4")}
	f.files.objects[testSubmissionID+"/a.jpg"] = []byte("a")
	f.files.objects[testSubmissionID+"/b.jpg"] = []byte("b")

	require.NoError(t, f.svc.Delete(context.Background(), testSubmissionID))
	assert.ElementsMatch(t, []string{testSubmissionID + "/a.jpg", testSubmissionID + "/b.jpg"}, f.files.deleted)
	assert.Equal(t, []string{"1_audio.webm"}, f.media.deleted)
	assert.Equal(t, [][]string{{testSubmissionID, "Lyon", "69"}}, f.archiver.removed)
	assert.Equal(t, []string{testSubmissionID}, f.repo.deleted)
}

func TestDeleteRemovesArchivesBuiltUnderAnyName(t *testing.T) {
	f := newSubmissionFixture()
	f.repo.items[testSubmissionID] = &models.Submission{ID: testSubmissionID, City: strPtr("Lyon"), Department: strPtr("69")}
	f.files.objects[testSubmissionID+"/a.jpg"] = []byte("a")
	archives := NewArchiveService(f.repo, f.files, &mediaFetcherStub{payload: map[string][]byte{}}, &signerStub{}, NewMetricsService(), nil, ArchiveServiceConfig{})
	f.svc.archives = archives

	fallback, err := archives.Build(context.Background(), testSubmissionID, "", "")
	require.NoError(t, err)
	f.files.objects[fallback.ArchivePath] = f.files.uploads[fallback.ArchivePath]

	require.NoError(t, f.svc.Delete(context.Background(), testSubmissionID))
	assert.Contains(t, f.files.deleted, "archives/projet_abcdef12.zip")
	assert.Contains(t, f.files.deleted, "archives/Lyon_69_abcdef12.zip")
	assert.NotContains(t, f.files.objects, fallback.ArchivePath)
	assert.NotContains(t, f.files.uploads, fallback.ArchivePath)
	assert.Equal(t, []string{testSubmissionID}, f.repo.deleted)
}

func TestDeleteUnknownSubmission(t *testing.T) {
	f := newSubmissionFixture()
	assert.ErrorIs(t, f.svc.Delete(context.Background(), testSubmissionID), appErrors.ErrSubmissionNotFound)
	assert.ErrorIs(t, f.svc.Delete(context.Background(), "nope"), appErrors.ErrSubmissionNotFound)
	assert.Zero(t, f.files.calls)
}

func TestUpdateRemovesStaleArchive(t *testing.T) {
	f := newSubmissionFixture()
	f.repo.items[testSubmissionID] = &models.Submission{ID: testSubmissionID, Company: "A", City: strPtr("Lyon"), Department: strPtr("69")}

	city := "Villeurbanne"
	kind := "neuf"
	updated, err := f.svc.Update(context.Background(), testSubmissionID, dto.UpdateSubmissionRequest{City: &city, ProjectType: &kind})
	require.NoError(t, err)
	assert.Equal(t, "Villeurbanne", *updated.City)
	assert.Equal(t, [][]string{{testSubmissionID, "Lyon", "69"}}, f.archiver.removed)

	_, err = f.svc.Update(context.Background(), testSubmissionID, dto.UpdateSubmissionRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestArchiveReturnsDownloadLink(t *testing.T) {
	f := newSubmissionFixture()
	f.repo.items[testSubmissionID] = &models.Submission{ID: testSubmissionID, City: strPtr("Lyon"), Department: strPtr("69")}

	resp, err := f.svc.Archive(context.Background(), testSubmissionID)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "Lyon_69_abcdef12", resp.ArchiveName)
	assert.Equal(t, "/api/v1/downloads/tok", resp.DownloadURL)
	assert.Equal(t, "2024-01-01T00:00:00Z", resp.ExpiresAt)
	assert.Equal(t, [][]string{{testSubmissionID, "Lyon", "69"}}, f.archiver.built)
}

func TestListSplitsCompanies(t *testing.T) {
	f := newSubmissionFixture()
	_, pagination, err := f.svc.List(context.Background(), dto.SubmissionListQuery{Companies: []string{"A, B", "C"}, PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, f.repo.filter.Companies)
	assert.Equal(t, 200, pagination.PageSize)
	assert.Equal(t, 1, pagination.Page)
}

func TestCompanies(t *testing.T) {
	f := newSubmissionFixture()
	f.repo.companies = []string{"A", "B"}

	companies, cached, err := f.svc.Companies(context.Background())
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, []string{"A", "B"}, companies)
}
