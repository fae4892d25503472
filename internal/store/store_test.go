package store

import (
	"fmt"
	"testing"

	"github.com/BearBump/PointBox/internal/models"
	"github.com/stretchr/testify/require"
)

func pt(id, city string) *models.Point {
	return &models.Point{ID: id, City: city}
}

func TestReplaceAll_dedupesKeepingFirst(t *testing.T) {
	s := New()
	s.ReplaceAll([]*models.Point{
		{ID: "a", Name: "first"},
		{ID: "a", Name: "second"},
		{ID: "b"},
		nil,
		{ID: ""},
	})
	require.Equal(t, 2, s.Len())
	got, ok := s.Get("a")
	require.True(t, ok)
	require.Equal(t, "first", got.Name)
}

func TestMergePreserving_keepsUntouchedCarriers(t *testing.T) {
	s := New()

	// Store starts with carrier X (a1,a2) and carrier Y (b1,b2).
	s.ReplaceAll([]*models.Point{
		{ID: "a1", Carrier: "dpd"}, {ID: "a2", Carrier: "dpd"},
		{ID: "b1", Carrier: "inpost"}, {ID: "b2", Carrier: "inpost"},
	})

	// Refresh of carrier X: new set shares one id with the preserve set.
	newA := []*models.Point{
		{ID: "a1", Carrier: "dpd", Name: "fresh"},
		{ID: "a3", Carrier: "dpd"},
		{ID: "b1", Carrier: "dpd", Name: "collides"},
	}
	preserve := s.Where(func(p *models.Point) bool { return p.Carrier == "inpost" })

	s.MergePreserving(newA, preserve)

	// len == len(newA) + len(preserve) - |ids(newA) ∩ ids(preserve)|
	require.Equal(t, 3+2-1, s.Len())

	// Fresh point wins the collision.
	got, _ := s.Get("b1")
	require.Equal(t, "collides", got.Name)
	got, _ = s.Get("a1")
	require.Equal(t, "fresh", got.Name)

	// Untouched carrier point survives.
	_, ok := s.Get("b2")
	require.True(t, ok)
}

func TestMergePreserving_noDuplicateIDs(t *testing.T) {
	s := New()
	base := make([]*models.Point, 0, 100)
	for i := 0; i < 100; i++ {
		base = append(base, pt(fmt.Sprintf("p%d", i), ""))
	}
	s.ReplaceAll(base)
	s.MergePreserving(base[:50], base[25:])

	seen := map[string]bool{}
	for _, p := range s.GetAll() {
		require.False(t, seen[p.ID], "duplicate id %s", p.ID)
		seen[p.ID] = true
	}
	require.Equal(t, 100, s.Len())
}

func TestGetAll_snapshotIsACopy(t *testing.T) {
	s := New()
	s.ReplaceAll([]*models.Point{pt("a", ""), pt("b", "")})

	snap := s.GetAll()
	snap[0] = nil // mutating the returned slice must not corrupt the store

	require.Equal(t, 2, s.Len())
	_, ok := s.Get("a")
	require.True(t, ok)
}

func TestCities(t *testing.T) {
	s := New()
	s.ReplaceAll([]*models.Point{
		pt("1", "Warszawa"), pt("2", "Kraków"), pt("3", "Warszawa"), pt("4", ""),
	})

	require.Equal(t, map[string]int{"Warszawa": 2, "Kraków": 1}, s.CountByCity())
	require.Equal(t, []string{"Kraków", "Warszawa"}, s.UniqueCities())
}
