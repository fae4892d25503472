package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/BearBump/PointBox/internal/models"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	c := NewCodec("1.1", "1.0.0")
	points := []*models.Point{
		{
			ID: "1", Name: "Paczkomat WAW01", Address: "ul. Żółta 5", City: "Warszawa",
			PostalCode: "00-001", Latitude: models.Float(52.23), Longitude: models.Float(21.01),
			Type: "paczkomat", Carrier: "inpost", CountryID: "pl",
		},
		{ID: "2", Name: "DPD Kraków — Główny", City: "Kraków", Carrier: "dpd"},
	}

	b, err := c.Encode(points)
	require.NoError(t, err)

	snap, err := c.Decode(b)
	require.NoError(t, err)
	require.Equal(t, "1.1", snap.Version)
	require.Equal(t, 2, snap.Metadata.PointsCount)
	require.Equal(t, 2, snap.Metadata.UniqueCities)
	require.Equal(t, "1.0.0", snap.Metadata.AppVersion)
	require.Equal(t, points, snap.Points)
}

func TestDecode_structuralFailures(t *testing.T) {
	c := NewCodec("1.1", "1.0.0")

	cases := []string{
		`not json at all`,
		`{"timestamp":"2024-01-01T00:00:00Z","version":"1.1"}`,
		`{"points":null,"version":"1.1"}`,
		`{"points":{"id":"1"},"version":"1.1"}`,
		`{"points":"nope","version":"1.1"}`,
	}
	for _, body := range cases {
		_, err := c.Decode([]byte(body))
		require.ErrorIs(t, err, models.ErrInvalidSnapshot, "body: %s", body)
	}
}

func TestDecode_versionMismatchIsNotFatal(t *testing.T) {
	c := NewCodec("1.1", "1.0.0")
	snap, err := c.Decode([]byte(`{"points":[{"id":"1"}],"version":"0.9"}`))
	require.NoError(t, err)
	require.Equal(t, "0.9", snap.Version)
	require.Len(t, snap.Points, 1)
}

func TestSaveLoadFile(t *testing.T) {
	c := NewCodec("1.1", "1.0.0")
	path := filepath.Join(t.TempDir(), "paczkomaty_cache.json")

	points := []*models.Point{{ID: "ünïcode", Name: "Kiosk Łękawica żółć"}}
	require.NoError(t, c.SaveFile(path, points))

	snap, err := c.LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, points, snap.Points)
}

func TestLoadFile_missing(t *testing.T) {
	c := NewCodec("1.1", "1.0.0")
	_, err := c.LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}
