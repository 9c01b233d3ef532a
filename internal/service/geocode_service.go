package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/insite-net/partage-api/internal/models"
	"github.com/insite-net/partage-api/pkg/cache"
	appErrors "github.com/insite-net/partage-api/pkg/errors"
)

// DefaultGeocodeBaseURL is the French national address API.
const DefaultGeocodeBaseURL = "https://api-adresse.data.gouv.fr"

// GeocodeServiceConfig configures reverse geocoding.
type GeocodeServiceConfig struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// GeocodeService resolves coordinates to a city and department.
type GeocodeService struct {
	client *http.Client
	cache  *CacheService
	logger *zap.Logger
	cfg    GeocodeServiceConfig
}

// NewGeocodeService constructs the service.
func NewGeocodeService(client *http.Client, cacheSvc *CacheService, logger *zap.Logger, cfg GeocodeServiceConfig) *GeocodeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeocodeBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &GeocodeService{client: client, cache: cacheSvc, logger: logger, cfg: cfg}
}

type reverseResponse struct {
	Features []struct {
		Properties struct {
			Label        string `json:"label"`
			Name         string `json:"name"`
			City         string `json:"city"`
			Village      string `json:"village"`
			Town         string `json:"town"`
			Municipality string `json:"municipality"`
			Postcode     string `json:"postcode"`
		} `json:"properties"`
	} `json:"features"`
}

// Reverse returns the place at lat/lon. Coordinates matching nothing yield UnknownCity.
func (s *GeocodeService) Reverse(ctx context.Context, lat, lon float64) (*models.Place, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "coordinates out of range")
	}

	key := cache.Key("geocode", strconv.FormatFloat(lat, 'f', 4, 64), strconv.FormatFloat(lon, 'f', 4, 64))
	var cached models.Place
	if s.cache.Get(ctx, key, &cached) {
		cached.Cached = true
		return &cached, nil
	}

	place, err := s.lookup(ctx, lat, lon)
	if err != nil {
		s.logger.Warn("reverse geocoding failed", zap.Float64("lat", lat), zap.Float64("lon", lon), zap.Error(err))
		return nil, appErrors.WrapAs(err, appErrors.ErrGeocodeUnavailable)
	}
	s.cache.Set(ctx, key, place, s.cfg.CacheTTL)
	return place, nil
}

func (s *GeocodeService) lookup(ctx context.Context, lat, lon float64) (*models.Place, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	query := url.Values{}
	query.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	query.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+"/reverse/?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reverse geocoding returned %d", resp.StatusCode)
	}

	var payload reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode reverse geocoding: %w", err)
	}

	place := &models.Place{City: models.UnknownCity, Latitude: lat, Longitude: lon}
	if len(payload.Features) == 0 {
		return place, nil
	}
	props := payload.Features[0].Properties
	for _, candidate := range []string{props.City, props.Village, props.Town, props.Municipality, props.Name} {
		if candidate != "" {
			place.City = candidate
			break
		}
	}
	place.Postcode = props.Postcode
	place.Label = props.Label
	if len(props.Postcode) >= 2 {
		place.Department = props.Postcode[:2]
	}
	return place, nil
}
