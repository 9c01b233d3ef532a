package models

// Place is a reverse-geocoded location.
type Place struct {
	City       string  `json:"city"`
	Department string  `json:"department"`
	Postcode   string  `json:"postcode,omitempty"`
	Label      string  `json:"label,omitempty"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	// Cached is set when the place was served from cache.
	Cached     bool    `json:"-"`
}

// UnknownCity is reported when no locality matches the coordinates.
const UnknownCity = "Ville inconnue"
