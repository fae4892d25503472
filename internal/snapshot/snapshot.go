// Package snapshot implements the user-facing point cache file: a JSON
// export of the in-memory collection that can be reloaded later instead
// of refetching every carrier endpoint.
package snapshot

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/BearBump/PointBox/internal/models"
	"github.com/pkg/errors"
)

type Metadata struct {
	PointsCount  int    `json:"pointsCount"`
	UniqueCities int    `json:"uniqueCities"`
	AppVersion   string `json:"appVersion"`
}

type Snapshot struct {
	Timestamp time.Time       `json:"timestamp"`
	Points    []*models.Point `json:"points"`
	Version   string          `json:"version"`
	Metadata  Metadata        `json:"metadata"`
}

// Codec encodes and decodes snapshot files for one configured version.
type Codec struct {
	Version    string
	AppVersion string
	now        func() time.Time
}

func NewCodec(version, appVersion string) *Codec {
	return &Codec{Version: version, AppVersion: appVersion, now: time.Now}
}

func (c *Codec) Encode(points []*models.Point) ([]byte, error) {
	cities := make(map[string]struct{})
	for _, p := range points {
		if p != nil && p.City != "" {
			cities[p.City] = struct{}{}
		}
	}

	snap := Snapshot{
		Timestamp: c.now().UTC(),
		Points:    points,
		Version:   c.Version,
		Metadata: Metadata{
			PointsCount:  len(points),
			UniqueCities: len(cities),
			AppVersion:   c.AppVersion,
		},
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encode snapshot")
	}
	return b, nil
}

// Decode parses and validates a snapshot. A missing or non-array points
// field is a structural failure (ErrInvalidSnapshot); a version mismatch
// is only a warning, old exports must stay loadable.
func (c *Codec) Decode(data []byte) (*Snapshot, error) {
	var raw struct {
		Timestamp time.Time       `json:"timestamp"`
		Points    json.RawMessage `json:"points"`
		Version   string          `json:"version"`
		Metadata  Metadata        `json:"metadata"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(models.ErrInvalidSnapshot, err.Error())
	}

	trimmed := bytes.TrimSpace(raw.Points)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.Wrap(models.ErrInvalidSnapshot, "points missing or not an array")
	}

	var points []*models.Point
	if err := json.Unmarshal(trimmed, &points); err != nil {
		return nil, errors.Wrap(models.ErrInvalidSnapshot, err.Error())
	}

	if raw.Version != c.Version {
		slog.Warn("snapshot version mismatch",
			"file_version", raw.Version, "expected", c.Version)
	}

	return &Snapshot{
		Timestamp: raw.Timestamp,
		Points:    points,
		Version:   raw.Version,
		Metadata:  raw.Metadata,
	}, nil
}

func (c *Codec) SaveFile(path string, points []*models.Point) error {
	b, err := c.Encode(points)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errors.Wrap(err, "write snapshot file")
	}
	return nil
}

func (c *Codec) LoadFile(path string) (*Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read snapshot file")
	}
	return c.Decode(b)
}
