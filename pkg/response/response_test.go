package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/insite-net/partage-api/pkg/errors"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func TestFailureWritesFlatBody(t *testing.T) {
	c, w := newContext()

	Failure(c, appErrors.ErrSubmissionNotFound)

	require.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Submission not found", body["error"])
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestErrorUsesEnvelope(t *testing.T) {
	c, w := newContext()

	Error(c, appErrors.ErrValidation)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var env struct {
		Error appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}
