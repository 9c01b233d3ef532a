package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/insite-net/partage-api/pkg/errors"
	"github.com/insite-net/partage-api/pkg/response"
	"github.com/insite-net/partage-api/pkg/storage"
)

// StorageHandler serves objects of local buckets at their public URLs.
type StorageHandler struct {
	buckets map[string]storage.ObjectStore
}

// NewStorageHandler indexes stores by bucket name.
func NewStorageHandler(stores ...storage.ObjectStore) *StorageHandler {
	buckets := make(map[string]storage.ObjectStore, len(stores))
	for _, store := range stores {
		if store != nil {
			buckets[store.Bucket()] = store
		}
	}
	return &StorageHandler{buckets: buckets}
}

// Serve streams /storage/:bucket/*key.
func (h *StorageHandler) Serve(c *gin.Context) {
	store, ok := h.buckets[c.Param("bucket")]
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "bucket not found"))
		return
	}
	key := strings.TrimPrefix(c.Param("key"), "/")
	data, err := store.Download(c.Request.Context(), key)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrObjectNotFound), errors.Is(err, storage.ErrInvalidKey):
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "object not found"))
		default:
			response.Error(c, appErrors.WrapAs(err, appErrors.ErrStorageRead))
		}
		return
	}
	c.Header("Cache-Control", "public, max-age=300")
	c.Data(http.StatusOK, storage.ContentTypeFor(key), data)
}
