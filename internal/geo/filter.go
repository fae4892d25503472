package geo

import (
	"math"
	"sort"

	"github.com/BearBump/PointBox/internal/models"
)

const earthRadiusKm = 6371.0

// Bounds is an axis-aligned lat/lng rectangle.
type Bounds struct {
	MinLat float64 `json:"minLat"`
	MinLng float64 `json:"minLng"`
	MaxLat float64 `json:"maxLat"`
	MaxLng float64 `json:"maxLng"`
}

func (b Bounds) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// Pad expands the bounds by ratio of their size on each side, the way the
// map widget pads its viewport before restricting markers.
func (b Bounds) Pad(ratio float64) Bounds {
	dLat := (b.MaxLat - b.MinLat) * ratio
	dLng := (b.MaxLng - b.MinLng) * ratio
	return Bounds{
		MinLat: b.MinLat - dLat,
		MinLng: b.MinLng - dLng,
		MaxLat: b.MaxLat + dLat,
		MaxLng: b.MaxLng + dLng,
	}
}

// WithinBounds returns the points inside b. Points without coordinates
// are excluded.
func WithinBounds(points []*models.Point, b Bounds) []*models.Point {
	var out []*models.Point
	for _, p := range points {
		lat, lng, ok := p.Coordinates()
		if !ok {
			continue
		}
		if b.Contains(lat, lng) {
			out = append(out, p)
		}
	}
	return out
}

// WithinRadius filters by per-axis absolute difference: a square in
// degree space, not a geodesic circle. Viewport inclusion checks use this
// cheap form on purpose; ranked nearest queries use Haversine instead.
func WithinRadius(points []*models.Point, lat, lng, radiusDegrees float64) []*models.Point {
	var out []*models.Point
	for _, p := range points {
		plat, plng, ok := p.Coordinates()
		if !ok {
			continue
		}
		if math.Abs(plat-lat) <= radiusDegrees && math.Abs(plng-lng) <= radiusDegrees {
			out = append(out, p)
		}
	}
	return out
}

// ByCity matches the city field exactly, case sensitively. The source
// behavior is preserved as-is; see DESIGN.md for the open question.
func ByCity(points []*models.Point, cityName string) []*models.Point {
	var out []*models.Point
	for _, p := range points {
		if p.City == cityName {
			out = append(out, p)
		}
	}
	return out
}

// Haversine returns the great-circle distance in kilometers.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := deg2rad(lat2 - lat1)
	dLng := deg2rad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(deg2rad(lat1))*math.Cos(deg2rad(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func deg2rad(deg float64) float64 {
	return deg * (math.Pi / 180)
}

// Distance pairs a point with its haversine distance from a query origin.
type Distance struct {
	Point      *models.Point `json:"point"`
	Kilometers float64       `json:"kilometers"`
}

// NearestOptions tunes the candidate narrowing of Nearest.
type NearestOptions struct {
	// Coarse degree-box deltas applied before exact distance math.
	LatDelta float64
	LngDelta float64

	// When the box yields fewer than MinCandidates points, Nearest scans
	// a prefix of the full set capped at FallbackScanCap instead of the
	// whole collection. A tiny box result near a region border would
	// otherwise miss closer points just outside it, and an uncapped scan
	// over a country-sized set is too slow for per-keystroke use. This is
	// a deliberate precision/performance tradeoff; keep it.
	MinCandidates   int
	FallbackScanCap int
}

func DefaultNearestOptions() NearestOptions {
	return NearestOptions{
		LatDelta:        0.18,
		LngDelta:        0.3,
		MinCandidates:   100,
		FallbackScanCap: 1000,
	}
}

// Nearest returns the k closest points to (lat,lng) by haversine
// distance, ascending, ties broken by input order. Points without
// coordinates never appear.
func Nearest(points []*models.Point, lat, lng float64, k int, opt NearestOptions) []Distance {
	if k <= 0 {
		return nil
	}
	if opt.LatDelta <= 0 || opt.LngDelta <= 0 {
		def := DefaultNearestOptions()
		if opt.LatDelta <= 0 {
			opt.LatDelta = def.LatDelta
		}
		if opt.LngDelta <= 0 {
			opt.LngDelta = def.LngDelta
		}
	}
	if opt.MinCandidates <= 0 {
		opt.MinCandidates = DefaultNearestOptions().MinCandidates
	}
	if opt.FallbackScanCap <= 0 {
		opt.FallbackScanCap = DefaultNearestOptions().FallbackScanCap
	}

	var candidates []*models.Point
	for _, p := range points {
		plat, plng, ok := p.Coordinates()
		if !ok {
			continue
		}
		if math.Abs(plat-lat) < opt.LatDelta && math.Abs(plng-lng) < opt.LngDelta {
			candidates = append(candidates, p)
		}
	}

	if len(candidates) < opt.MinCandidates {
		candidates = candidates[:0]
		for _, p := range points {
			if !p.HasCoordinates() {
				continue
			}
			candidates = append(candidates, p)
			if len(candidates) >= opt.FallbackScanCap {
				break
			}
		}
	}

	dists := make([]Distance, 0, len(candidates))
	for _, p := range candidates {
		plat, plng, _ := p.Coordinates()
		dists = append(dists, Distance{Point: p, Kilometers: Haversine(lat, lng, plat, plng)})
	}
	sort.SliceStable(dists, func(i, j int) bool {
		return dists[i].Kilometers < dists[j].Kilometers
	})
	if len(dists) > k {
		dists = dists[:k]
	}
	return dists
}
