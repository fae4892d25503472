package geo

import (
	"sync"

	"github.com/BearBump/PointBox/internal/models"
	"github.com/dhconnelly/rtreego"
)

const (
	rtreeTolerance   = 0.0001
	rtreeMinChildren = 25
	rtreeMaxChildren = 50
)

type spatialItem struct {
	point *models.Point
	rect  rtreego.Rect
}

func (si *spatialItem) Bounds() rtreego.Rect {
	return si.rect
}

// Index is an R-Tree over the point collection, used by the render path
// for viewport restriction on large sets. Linear filters in this package
// stay authoritative for semantics; the index only accelerates them.
type Index struct {
	mu   sync.RWMutex
	tree *rtreego.Rtree
	size int
}

func NewIndex() *Index {
	return &Index{tree: rtreego.NewTree(2, rtreeMinChildren, rtreeMaxChildren)}
}

// Rebuild replaces the index contents. Points without coordinates are
// skipped, same as every other spatial path.
func (ix *Index) Rebuild(points []*models.Point) {
	tree := rtreego.NewTree(2, rtreeMinChildren, rtreeMaxChildren)
	n := 0
	for _, p := range points {
		lat, lng, ok := p.Coordinates()
		if !ok {
			continue
		}
		rect := rtreego.Point{lat, lng}.ToRect(rtreeTolerance)
		tree.Insert(&spatialItem{point: p, rect: rect})
		n++
	}

	ix.mu.Lock()
	ix.tree = tree
	ix.size = n
	ix.mu.Unlock()
}

// WithinBounds returns indexed points inside b. The tree intersect query
// over-approximates, so results are post-filtered against the exact box.
func (ix *Index) WithinBounds(b Bounds) []*models.Point {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	rect, err := rtreego.NewRectFromPoints(
		rtreego.Point{b.MinLat, b.MinLng},
		rtreego.Point{b.MaxLat, b.MaxLng},
	)
	if err != nil {
		return nil
	}

	results := ix.tree.SearchIntersect(rect)
	out := make([]*models.Point, 0, len(results))
	for _, r := range results {
		item, ok := r.(*spatialItem)
		if !ok {
			continue
		}
		lat, lng, _ := item.point.Coordinates()
		if b.Contains(lat, lng) {
			out = append(out, item.point)
		}
	}
	return out
}

// NearestNeighbors returns up to n indexed points closest to (lat,lng)
// in tree metric. Exact haversine ranking is the Nearest filter's job.
func (ix *Index) NearestNeighbors(lat, lng float64, n int) []*models.Point {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	results := ix.tree.NearestNeighbors(n, rtreego.Point{lat, lng})
	out := make([]*models.Point, 0, len(results))
	for _, r := range results {
		if item, ok := r.(*spatialItem); ok {
			out = append(out, item.point)
		}
	}
	return out
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.size
}
