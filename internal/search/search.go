// Package search provides the instant local text lookup over point
// fields. Geocoding of free-text addresses lives in
// integrations/nominatim; callers fall back to it when nothing matches
// here.
package search

import (
	"strings"
	"sync"

	"github.com/BearBump/PointBox/internal/models"
)

// MinQueryLength gates queries: anything shorter returns no results
// immediately, so per-keystroke searches don't scan the whole index.
const MinQueryLength = 2

type entry struct {
	point *models.Point
	text  string
}

// Index is a substring index over name, address, city, postal code and
// id. Build replaces the whole index; there is no incremental update.
type Index struct {
	mu      sync.RWMutex
	entries []entry
}

func NewIndex() *Index {
	return &Index{}
}

// Build indexes points, replacing any prior contents. Points without
// coordinates are still indexed: text search may match them, selection
// handles the missing coordinates.
func (ix *Index) Build(points []*models.Point) {
	entries := make([]entry, 0, len(points))
	for _, p := range points {
		if p == nil {
			continue
		}
		text := strings.ToLower(strings.Join([]string{
			p.Name, p.Address, p.City, p.PostalCode, p.ID,
		}, " "))
		entries = append(entries, entry{point: p, text: text})
	}

	ix.mu.Lock()
	ix.entries = entries
	ix.mu.Unlock()
}

// Search returns every point whose indexed text contains query,
// case-insensitively, in index order. Callers truncate for display.
func (ix *Index) Search(query string) []*models.Point {
	query = strings.ToLower(strings.TrimSpace(query))
	if len([]rune(query)) < MinQueryLength {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out []*models.Point
	for _, e := range ix.entries {
		if strings.Contains(e.text, query) {
			out = append(out, e.point)
		}
	}
	return out
}

// SearchLimit is Search truncated to at most limit results.
func (ix *Index) SearchLimit(query string, limit int) []*models.Point {
	out := ix.Search(query)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}
