package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insite-net/partage-api/pkg/storage"
)

func TestStorageHandlerServe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store, err := storage.NewLocalStore(t.TempDir(), "project-files", "http://localhost:8080/storage")
	require.NoError(t, err)
	require.NoError(t, store.Upload(context.Background(), "sub-1/photo.jpg", []byte("jpeg"), "image/jpeg", false))

	r := gin.New()
	r.GET(storage.LocalRoute+"/:bucket/*key", NewStorageHandler(store).Serve)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/storage/project-files/sub-1/photo.jpg", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, "jpeg", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/storage/project-files/sub-1/missing.jpg", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/storage/other/x", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
