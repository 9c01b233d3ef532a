package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insite-net/partage-api/internal/dto"
	"github.com/insite-net/partage-api/internal/middleware"
	"github.com/insite-net/partage-api/internal/models"
	"github.com/insite-net/partage-api/internal/service"
	appErrors "github.com/insite-net/partage-api/pkg/errors"
)

type submissionServiceMock struct {
	intake    dto.SubmissionIntake
	intakeErr error
	query     dto.SubmissionListQuery
	cached    bool
	deleted   string
}

func (m *submissionServiceMock) Intake(ctx context.Context, in dto.SubmissionIntake) (*dto.SubmissionIntakeResponse, error) {
	m.intake = in
	if m.intakeErr != nil {
		return nil, m.intakeErr
	}
	return &dto.SubmissionIntakeResponse{Success: true, SubmissionID: "sub-1", FilesUploaded: len(in.Files)}, nil
}

func (m *submissionServiceMock) List(ctx context.Context, query dto.SubmissionListQuery) ([]models.Submission, *models.Pagination, error) {
	m.query = query
	return []models.Submission{{ID: "sub-1", Company: "Durand"}}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, nil
}

func (m *submissionServiceMock) Companies(ctx context.Context) ([]string, bool, error) {
	return []string{"Durand"}, m.cached, nil
}

func (m *submissionServiceMock) Get(ctx context.Context, id string) (*dto.SubmissionDetail, error) {
	if id != "sub-1" {
		return nil, appErrors.ErrSubmissionNotFound
	}
	return &dto.SubmissionDetail{Submission: models.Submission{ID: id}}, nil
}

func (m *submissionServiceMock) Update(ctx context.Context, id string, req dto.UpdateSubmissionRequest) (*models.Submission, error) {
	return &models.Submission{ID: id, Company: *req.Company}, nil
}

func (m *submissionServiceMock) Delete(ctx context.Context, id string) error {
	m.deleted = id
	return nil
}

func (m *submissionServiceMock) Archive(ctx context.Context, id string) (*dto.ArchiveDownloadResponse, error) {
	return &dto.ArchiveDownloadResponse{DownloadURL: "/api/v1/downloads/tok"}, nil
}

type exporterMock struct {
	format service.ExportFormat
}

func (m *exporterMock) Export(ctx context.Context, query dto.SubmissionListQuery, format service.ExportFormat) (*service.ExportFile, error) {
	m.format = format
	return &service.ExportFile{Filename: "projets.csv", ContentType: "text/csv; charset=utf-8", Data: []byte("a;b")}, nil
}

func multipartRequest(t *testing.T, fields map[string]string, files map[string][]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	for field, names := range files {
		for _, name := range names {
			part, err := writer.CreateFormFile(field, name)
			require.NoError(t, err)
			_, err = part.Write([]byte("data-" + name))
			require.NoError(t, err)
		}
	}
	require.NoError(t, writer.Close())
	req := httptest.NewRequest(http.MethodPost, "/submissions", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestSubmissionCreateMultipart(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &submissionServiceMock{}
	h := NewSubmissionHandler(svc, &exporterMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = multipartRequest(t,
		map[string]string{"entreprise": "Durand BTP", "ville": "Lyon", "typeProjet": "renovation", "latitude": "45.76", "audioDuration": "42"},
		map[string][]string{"files": {"a.jpg", "b.jpg"}, "audio": {"voice.webm"}},
	)
	h.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Durand BTP", svc.intake.Form.Company)
	assert.Equal(t, "renovation", svc.intake.Form.ProjectType)
	require.NotNil(t, svc.intake.Form.Latitude)
	assert.InDelta(t, 45.76, *svc.intake.Form.Latitude, 1e-9)
	require.NotNil(t, svc.intake.Form.AudioDuration)
	assert.Equal(t, 42, *svc.intake.Form.AudioDuration)
	require.Len(t, svc.intake.Files, 2)
	require.NotNil(t, svc.intake.Audio)
	assert.Nil(t, svc.intake.Video)

	f, err := svc.intake.Files[1].Open()
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "data-b.jpg", string(data))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "sub-1", body["submissionId"])
	assert.EqualValues(t, 2, body["filesUploaded"])
}

func TestSubmissionCreateEmailFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewSubmissionHandler(&submissionServiceMock{intakeErr: appErrors.ErrNotificationFailed}, &exporterMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = multipartRequest(t, map[string]string{"entreprise": "Durand"}, map[string][]string{"files[]": {"a.jpg"}})
	h.Create(c)

	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"error":"Failed to send email","code":"NOTIFICATION_FAILED"}`, w.Body.String())
}

func TestSubmissionAdminEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &submissionServiceMock{cached: true}
	exporter := &exporterMock{}
	h := NewSubmissionHandler(svc, exporter)

	c, w := newGinContext(http.MethodGet, "/admin/submissions?entreprise=A,B&entreprise=C&page=2", nil)
	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"A,B", "C"}, svc.query.Companies)
	assert.Equal(t, 2, svc.query.Page)
	assert.Contains(t, w.Body.String(), `"total_count":1`)

	c, w = newGinContext(http.MethodGet, "/admin/companies", nil)
	middleware.WithResponseMeta()(c)
	h.Companies(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cache_hit":true`)

	c, w = newGinContext(http.MethodGet, "/admin/submissions/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	h.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)

	c, w = newGinContext(http.MethodPut, "/admin/submissions/sub-1", []byte(`{"entreprise":"Martin"}`))
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}
	h.Update(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"entreprise":"Martin"`)

	c, w = newGinContext(http.MethodDelete, "/admin/submissions/sub-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}
	h.Delete(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "sub-1", svc.deleted)

	c, w = newGinContext(http.MethodPost, "/admin/submissions/sub-1/archive", nil)
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}
	h.Archive(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/v1/downloads/tok")
}

func TestSubmissionExport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	exporter := &exporterMock{}
	h := NewSubmissionHandler(&submissionServiceMock{}, exporter)

	c, w := newGinContext(http.MethodGet, "/admin/submissions/export", nil)
	h.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.ExportFormatCSV, exporter.format)
	assert.Equal(t, `attachment; filename="projets.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "a;b", w.Body.String())
}
