package render

import (
	"sort"

	"github.com/TomiHiltunen/geohash-golang"

	"github.com/BearBump/PointBox/internal/geo"
)

// Slice is one carrier's share of a cluster badge, as a pie segment.
// Angles are degrees clockwise from the top.
type Slice struct {
	CarrierID  string  `json:"carrierId"`
	Color      string  `json:"color"`
	StartAngle float64 `json:"startAngle"`
	EndAngle   float64 `json:"endAngle"`
}

// Badge describes how a cluster is drawn. A single-carrier cluster is a
// solid circle in that carrier's color; a mixed one is a pie of slices.
// The member count sits in a white circle at the center either way.
type Badge struct {
	Solid       bool    `json:"solid"`
	Color       string  `json:"color,omitempty"`
	Slices      []Slice `json:"slices,omitempty"`
	Count       int     `json:"count"`
	CenterColor string  `json:"centerColor"`
}

const badgeCenterColor = "#ffffff"

// precisionForZoom maps a map zoom level to a geohash cell size so
// cluster cells roughly track what fits on screen.
func precisionForZoom(zoom int) int {
	switch {
	case zoom < 4:
		return 2
	case zoom < 7:
		return 3
	case zoom < 10:
		return 4
	case zoom < 13:
		return 5
	case zoom < 16:
		return 6
	default:
		return 7
	}
}

func (p *Pipeline) cluster(markers []Marker, zoom int) []Cluster {
	precision := precisionForZoom(zoom)

	groups := make(map[string][]Marker)
	for _, m := range markers {
		lat, lng, ok := m.Point.Coordinates()
		if !ok {
			continue
		}
		key := geohash.EncodeWithPrecision(lat, lng, precision)
		groups[key] = append(groups[key], m)
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	clusters := make([]Cluster, 0, len(keys))
	for _, key := range keys {
		clusters = append(clusters, buildCluster(key, groups[key], p.registry.IDs()))
	}
	return clusters
}

// buildCluster positions the cluster at the mean of its members and
// records the member bounds so a click can zoom to them.
func buildCluster(key string, members []Marker, carrierOrder []string) Cluster {
	var sumLat, sumLng float64
	bounds := geo.Bounds{}
	counts := make(map[string]int)
	colors := make(map[string]string)

	for i, m := range members {
		lat, lng, _ := m.Point.Coordinates()
		sumLat += lat
		sumLng += lng
		if i == 0 {
			bounds = geo.Bounds{MinLat: lat, MinLng: lng, MaxLat: lat, MaxLng: lng}
		} else {
			if lat < bounds.MinLat {
				bounds.MinLat = lat
			}
			if lat > bounds.MaxLat {
				bounds.MaxLat = lat
			}
			if lng < bounds.MinLng {
				bounds.MinLng = lng
			}
			if lng > bounds.MaxLng {
				bounds.MaxLng = lng
			}
		}
		counts[m.Point.Carrier]++
		colors[m.Point.Carrier] = m.Color
	}

	n := len(members)
	return Cluster{
		Key:       key,
		Latitude:  sumLat / float64(n),
		Longitude: sumLng / float64(n),
		Count:     n,
		Bounds:    bounds,
		Badge:     buildBadge(counts, colors, carrierOrder, n),
	}
}

// buildBadge lays carrier slices out in registry order, each spanning
// 360*count/total degrees. Carriers outside the registry order follow
// sorted by id so the layout stays stable.
func buildBadge(counts map[string]int, colors map[string]string, carrierOrder []string, total int) Badge {
	badge := Badge{Count: total, CenterColor: badgeCenterColor}

	if len(counts) == 1 {
		for id := range counts {
			badge.Solid = true
			badge.Color = colors[id]
		}
		return badge
	}

	ordered := make([]string, 0, len(counts))
	seen := make(map[string]bool, len(counts))
	for _, id := range carrierOrder {
		if counts[id] > 0 {
			ordered = append(ordered, id)
			seen[id] = true
		}
	}
	rest := make([]string, 0)
	for id := range counts {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	ordered = append(ordered, rest...)

	angle := 0.0
	for _, id := range ordered {
		span := 360 * float64(counts[id]) / float64(total)
		badge.Slices = append(badge.Slices, Slice{
			CarrierID:  id,
			Color:      colors[id],
			StartAngle: angle,
			EndAngle:   angle + span,
		})
		angle += span
	}
	return badge
}
