// Package render turns a point set into map layers: viewport restriction,
// sampling at low zoom, batched marker production and geohash-grid
// clustering. Layers are swapped atomically so readers never observe a
// half-built one.
package render

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/PointBox/internal/carriers"
	"github.com/BearBump/PointBox/internal/geo"
	"github.com/BearBump/PointBox/internal/metrics"
	"github.com/BearBump/PointBox/internal/models"
)

// Pipeline states. Transitions are linear within a Render call:
// idle -> clearing -> batching -> clustering -> displayed.
const (
	StateIdle       = "idle"
	StateClearing   = "clearing"
	StateBatching   = "batching"
	StateClustering = "clustering"
	StateDisplayed  = "displayed"
)

const viewportPadRatio = 0.5

// Marker is a single renderable point with its carrier color resolved.
type Marker struct {
	Point *models.Point `json:"point"`
	Color string        `json:"color"`
}

// Cluster is a group of nearby markers collapsed into one badge.
type Cluster struct {
	Key       string     `json:"key"`
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Count     int        `json:"count"`
	Bounds    geo.Bounds `json:"bounds"`
	Badge     Badge      `json:"badge"`
}

// Layer is one complete render result. Generation increases with every
// build, so a consumer holding a stale layer can detect the swap.
type Layer struct {
	Generation uint64    `json:"generation"`
	Zoom       int       `json:"zoom"`
	Markers    []Marker  `json:"markers"`
	Clusters   []Cluster `json:"clusters"`
	Sampled    bool      `json:"sampled"`
	Total      int       `json:"total"`
}

// Options narrow a render cycle to a viewport and zoom level.
type Options struct {
	Bounds *geo.Bounds
	Zoom   int
}

type Pipeline struct {
	registry *carriers.Registry

	maxMarkers              int
	batchSize               int
	detailZoom              int
	disableClusteringAtZoom int

	rngMu sync.Mutex
	rng   *rand.Rand

	mu         sync.RWMutex
	state      string
	current    *Layer
	generation atomic.Uint64
}

func NewPipeline(registry *carriers.Registry, maxMarkers, batchSize, detailZoom, disableClusteringAtZoom int) *Pipeline {
	return &Pipeline{
		registry:                registry,
		maxMarkers:              maxMarkers,
		batchSize:               batchSize,
		detailZoom:              detailZoom,
		disableClusteringAtZoom: disableClusteringAtZoom,
		rng:                     rand.New(rand.NewSource(time.Now().UnixNano())),
		state:                   StateIdle,
	}
}

// WithRand replaces the sampling source. Tests inject a seeded one.
func (p *Pipeline) WithRand(rng *rand.Rand) *Pipeline {
	p.rngMu.Lock()
	p.rng = rng
	p.rngMu.Unlock()
	return p
}

func (p *Pipeline) State() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Current returns the active layer, or nil when nothing is displayed.
func (p *Pipeline) Current() *Layer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

func (p *Pipeline) setState(s string) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Clear drops the active layer. Safe to call at any time, including when
// nothing is displayed.
func (p *Pipeline) Clear() {
	p.mu.Lock()
	p.current = nil
	p.state = StateIdle
	p.mu.Unlock()
}

// Render builds a fresh layer from points and swaps it in. The previous
// layer stays visible until the new one is complete, then it is dropped
// in the same swap. On context cancellation the build is abandoned and
// the old layer remains.
func (p *Pipeline) Render(ctx context.Context, points []*models.Point, opts Options) (*Layer, error) {
	started := time.Now()
	p.setState(StateClearing)

	visible := p.restrict(points, opts.Bounds)
	sampled := false
	if p.maxMarkers > 0 && len(visible) > p.maxMarkers && opts.Zoom < p.detailZoom {
		visible = p.sample(visible)
		sampled = true
	}

	p.setState(StateBatching)
	markers, err := p.buildMarkers(ctx, visible)
	if err != nil {
		p.mu.Lock()
		if p.current != nil {
			p.state = StateDisplayed
		} else {
			p.state = StateIdle
		}
		p.mu.Unlock()
		return nil, err
	}

	layer := &Layer{
		Generation: p.generation.Add(1),
		Zoom:       opts.Zoom,
		Sampled:    sampled,
		Total:      len(markers),
	}

	if opts.Zoom < p.disableClusteringAtZoom {
		p.setState(StateClustering)
		layer.Clusters = p.cluster(markers, opts.Zoom)
	} else {
		layer.Markers = markers
	}

	p.mu.Lock()
	p.current = layer
	p.state = StateDisplayed
	p.mu.Unlock()

	metrics.RenderDurationMs.Observe(float64(time.Since(started).Milliseconds()))
	metrics.RenderMarkersTotal.Add(float64(len(markers)))
	return layer, nil
}

func (p *Pipeline) restrict(points []*models.Point, bounds *geo.Bounds) []*models.Point {
	if bounds == nil {
		out := make([]*models.Point, 0, len(points))
		for _, pt := range points {
			if pt.HasCoordinates() {
				out = append(out, pt)
			}
		}
		return out
	}
	padded := bounds.Pad(viewportPadRatio)
	return geo.WithinBounds(points, padded)
}

// sample keeps each point with probability maxMarkers/len, so the
// expected result size is maxMarkers. The exact size varies run to run.
func (p *Pipeline) sample(points []*models.Point) []*models.Point {
	ratio := float64(p.maxMarkers) / float64(len(points))
	out := make([]*models.Point, 0, p.maxMarkers)
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	for _, pt := range points {
		if p.rng.Float64() < ratio {
			out = append(out, pt)
		}
	}
	return out
}

func (p *Pipeline) buildMarkers(ctx context.Context, points []*models.Point) ([]Marker, error) {
	batch := p.batchSize
	if batch <= 0 {
		batch = len(points)
	}
	markers := make([]Marker, 0, len(points))
	for start := 0; start < len(points); start += batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + batch
		if end > len(points) {
			end = len(points)
		}
		for _, pt := range points[start:end] {
			markers = append(markers, Marker{
				Point: pt,
				Color: p.registry.ColorFor(pt.Carrier),
			})
		}
	}
	return markers, nil
}
