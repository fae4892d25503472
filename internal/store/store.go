package store

import (
	"sort"
	"sync"

	"github.com/BearBump/PointBox/internal/models"
)

// PointStore holds the authoritative in-memory point collection for the
// session. The widget origin was single-threaded; here fetch completions,
// broker consumers and HTTP handlers all touch the store, so it carries
// its own lock. The merge contract stays the same: partial refreshes must
// not lose previously fetched points.
type PointStore struct {
	mu     sync.RWMutex
	points []*models.Point
	byID   map[string]*models.Point
}

func New() *PointStore {
	return &PointStore{byID: make(map[string]*models.Point)}
}

// ReplaceAll discards the current collection and installs points as the
// new authoritative set. Duplicate ids in the input keep the first
// occurrence.
func (s *PointStore) ReplaceAll(points []*models.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.install(points)
}

// MergePreserving installs newPoints as the base set, then appends every
// point from preserveSet whose id is not already present. Partial refresh
// flows pass the untouched carriers' points as preserveSet so a carrier
// refresh cannot erase them; on id collision the fresh point wins.
func (s *PointStore) MergePreserving(newPoints, preserveSet []*models.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.install(newPoints)
	for _, p := range preserveSet {
		if p == nil || p.ID == "" {
			continue
		}
		if _, exists := s.byID[p.ID]; exists {
			continue
		}
		s.points = append(s.points, p)
		s.byID[p.ID] = p
	}
}

func (s *PointStore) install(points []*models.Point) {
	s.points = make([]*models.Point, 0, len(points))
	s.byID = make(map[string]*models.Point, len(points))
	for _, p := range points {
		if p == nil || p.ID == "" {
			continue
		}
		if _, dup := s.byID[p.ID]; dup {
			continue
		}
		s.points = append(s.points, p)
		s.byID[p.ID] = p
	}
}

// GetAll returns a snapshot of the collection. The slice is a copy;
// callers must treat the point values as read-only.
func (s *PointStore) GetAll() []*models.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Point, len(s.points))
	copy(out, s.points)
	return out
}

func (s *PointStore) Get(id string) (*models.Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	return p, ok
}

func (s *PointStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

// Where returns the points matching pred, in insertion order.
func (s *PointStore) Where(pred func(*models.Point) bool) []*models.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Point
	for _, p := range s.points {
		if pred(p) {
			out = append(out, p)
		}
	}
	return out
}

// CountByCity counts points per city, skipping points without one.
func (s *PointStore) CountByCity() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int)
	for _, p := range s.points {
		if p.City == "" {
			continue
		}
		out[p.City]++
	}
	return out
}

// UniqueCities returns the sorted city names present in the store,
// excluding empty ones. Used to populate the city filter.
func (s *PointStore) UniqueCities() []string {
	counts := s.CountByCity()
	out := make([]string, 0, len(counts))
	for city := range counts {
		out = append(out, city)
	}
	sort.Strings(out)
	return out
}
