package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insite-net/partage-api/internal/middleware"
	"github.com/insite-net/partage-api/internal/models"
	appErrors "github.com/insite-net/partage-api/pkg/errors"
)

type authServiceMock struct{}

func (authServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if req.Password != "secret" {
		return nil, appErrors.ErrInvalidCredentials
	}
	return &models.LoginResponse{AccessToken: "tok", TokenType: "Bearer"}, nil
}

func (authServiceMock) Me(ctx context.Context, userID string) (*models.UserInfo, error) {
	return &models.UserInfo{ID: userID, Email: "admin@example.com", Role: models.RoleAdmin}, nil
}

func TestAuthHandlerLogin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewAuthHandler(authServiceMock{})

	c, w := newGinContext(http.MethodPost, "/auth/login", []byte(`{"email":"admin@example.com","password":"secret"}`))
	h.Login(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"access_token":"tok"`)

	c, w = newGinContext(http.MethodPost, "/auth/login", []byte(`{"email":"admin@example.com","password":"nope"}`))
	h.Login(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newGinContext(http.MethodPost, "/auth/login", []byte(`not json`))
	h.Login(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandlerMe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewAuthHandler(authServiceMock{})

	c, w := newGinContext(http.MethodGet, "/auth/me", nil)
	h.Me(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newGinContext(http.MethodGet, "/auth/me", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1", Role: models.RoleAdmin})
	h.Me(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"u1"`)
}
