package models

import "math"

// Point is one courier pickup/delivery location as served by the
// aggregator API, after normalization.
type Point struct {
	ID           string   `json:"id"`
	Name         string   `json:"name,omitempty"`
	Address      string   `json:"address,omitempty"`
	City         string   `json:"city,omitempty"`
	PostalCode   string   `json:"postalCode,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Type         string   `json:"type,omitempty"`
	Carrier      string   `json:"carrier,omitempty"`
	CountryID    string   `json:"countryId,omitempty"`
	Description  string   `json:"description,omitempty"`
	OpeningHours string   `json:"openingHours,omitempty"`
}

// HasCoordinates reports whether the point can be placed on a map.
// A point without usable lat/lng is inert: it is never rendered and
// never returned by spatial queries.
func (p *Point) HasCoordinates() bool {
	if p.Latitude == nil || p.Longitude == nil {
		return false
	}
	if math.IsNaN(*p.Latitude) || math.IsNaN(*p.Longitude) {
		return false
	}
	return true
}

// Coordinates returns lat/lng, ok=false for inert points.
func (p *Point) Coordinates() (lat, lng float64, ok bool) {
	if !p.HasCoordinates() {
		return 0, 0, false
	}
	return *p.Latitude, *p.Longitude, true
}

func Float(v float64) *float64 { return &v }
