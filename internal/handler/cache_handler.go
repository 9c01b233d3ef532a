package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/insite-net/partage-api/pkg/response"
)

type cachePurger interface {
	Purge(ctx context.Context) error
}

// CacheHandler lets admins drop cached listings and geocoding results.
type CacheHandler struct {
	cache cachePurger
}

// NewCacheHandler constructs the handler.
func NewCacheHandler(cache cachePurger) *CacheHandler {
	return &CacheHandler{cache: cache}
}

// Purge godoc
// @Summary Purge the Redis cache
// @Tags Admin
// @Security BearerAuth
// @Success 204
// @Router /admin/cache [delete]
func (h *CacheHandler) Purge(c *gin.Context) {
	if err := h.cache.Purge(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
