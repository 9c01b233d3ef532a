package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/insite-net/partage-api/internal/middleware"
	"github.com/insite-net/partage-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}
