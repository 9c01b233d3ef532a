package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/insite-net/partage-api/internal/middleware"
	"github.com/insite-net/partage-api/internal/models"
	appErrors "github.com/insite-net/partage-api/pkg/errors"
	"github.com/insite-net/partage-api/pkg/response"
)

type reverseGeocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (*models.Place, error)
}

// GeocodeHandler resolves GPS coordinates into a city and department.
type GeocodeHandler struct {
	geocoder reverseGeocoder
}

// NewGeocodeHandler constructs the handler.
func NewGeocodeHandler(geocoder reverseGeocoder) *GeocodeHandler {
	return &GeocodeHandler{geocoder: geocoder}
}

// Reverse godoc
// @Summary Reverse geocode coordinates
// @Tags Geocode
// @Produce json
// @Param lat query number true "Latitude"
// @Param lon query number true "Longitude"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /geocode/reverse [get]
func (h *GeocodeHandler) Reverse(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
	if errLat != nil || errLon != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "lat and lon must be numbers"))
		return
	}
	place, err := h.geocoder.Reverse(c.Request.Context(), lat, lon)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, place.Cached)
	response.JSON(c, http.StatusOK, place, nil, middleware.ExtractMeta(c))
}
