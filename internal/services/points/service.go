// Package points is the application core: it owns the in-memory point
// set and coordinates fetching, filtering, search, selection and
// rendering around it.
package points

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/PointBox/internal/broker/messages"
	"github.com/BearBump/PointBox/internal/cache"
	"github.com/BearBump/PointBox/internal/carriers"
	"github.com/BearBump/PointBox/internal/geo"
	"github.com/BearBump/PointBox/internal/integrations/nominatim"
	"github.com/BearBump/PointBox/internal/metrics"
	"github.com/BearBump/PointBox/internal/models"
	"github.com/BearBump/PointBox/internal/render"
	"github.com/BearBump/PointBox/internal/search"
	"github.com/BearBump/PointBox/internal/snapshot"
	"github.com/BearBump/PointBox/internal/store"
)

type Source interface {
	FetchForCarrier(ctx context.Context, carrierID, countryCode string) ([]*models.Point, error)
	FetchAll(ctx context.Context, carrierIDs []string, countryCode string) []*models.Point
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Geocoder interface {
	Search(ctx context.Context, query, countryCode string) ([]nominatim.AddressResult, error)
}

type Renderer interface {
	Render(ctx context.Context, points []*models.Point, opts render.Options) (*render.Layer, error)
	Current() *render.Layer
	State() string
	Clear()
}

// SearchResult is a local index hit list plus geocoder fallback hits.
// Addresses is only populated when no local point matched.
type SearchResult struct {
	Points    []*models.Point           `json:"points"`
	Addresses []nominatim.AddressResult `json:"addresses"`
}

type Service struct {
	registry *carriers.Registry
	store    *store.PointStore
	source   Source

	producer Producer
	geocoder Geocoder
	renderer Renderer
	throttle cache.Throttle
	codec    *snapshot.Codec

	searchIdx *search.Index
	geoIdx    *geo.Index

	selectedTopic  string
	defaultCountry string
	throttleWindow time.Duration
	nearestLimit   int
	nearestOpts    geo.NearestOptions
}

func New(registry *carriers.Registry, st *store.PointStore, source Source) *Service {
	return &Service{
		registry:       registry,
		store:          st,
		source:         source,
		searchIdx:      search.NewIndex(),
		geoIdx:         geo.NewIndex(),
		defaultCountry: "pl",
		throttleWindow: 2 * time.Second,
		nearestLimit:   5,
		nearestOpts:    geo.DefaultNearestOptions(),
	}
}

func (s *Service) WithProducer(p Producer, selectedTopic string) *Service {
	s.producer = p
	s.selectedTopic = selectedTopic
	return s
}

func (s *Service) WithGeocoder(g Geocoder) *Service {
	s.geocoder = g
	return s
}

func (s *Service) WithRenderer(r Renderer) *Service {
	s.renderer = r
	return s
}

func (s *Service) WithThrottle(t cache.Throttle, window time.Duration) *Service {
	s.throttle = t
	if window > 0 {
		s.throttleWindow = window
	}
	return s
}

func (s *Service) WithSnapshotCodec(c *snapshot.Codec) *Service {
	s.codec = c
	return s
}

func (s *Service) WithDefaultCountry(country string) *Service {
	if country != "" {
		s.defaultCountry = country
	}
	return s
}

func (s *Service) WithNearest(limit int, opts geo.NearestOptions) *Service {
	if limit > 0 {
		s.nearestLimit = limit
	}
	s.nearestOpts = opts
	return s
}

// reindex rebuilds the derived indexes from the store. Called after
// every mutation of the point set.
func (s *Service) reindex() {
	all := s.store.GetAll()
	s.searchIdx.Build(all)
	s.geoIdx.Rebuild(all)
}

// RefreshAll replaces the whole point set with fresh fetches for every
// registered carrier. Carriers whose endpoints fail contribute nothing;
// their previous points are dropped together with everyone else's.
func (s *Service) RefreshAll(ctx context.Context, countryCode string) (int, error) {
	if countryCode == "" {
		countryCode = s.defaultCountry
	}
	pts := s.source.FetchAll(ctx, s.registry.IDs(), countryCode)
	s.store.ReplaceAll(pts)
	s.reindex()
	slog.Info("points refreshed", "country", countryCode, "count", s.store.Len())
	return s.store.Len(), nil
}

// RefreshCarrier refetches one carrier and merges the result in, keeping
// every other carrier's points untouched.
func (s *Service) RefreshCarrier(ctx context.Context, carrierID, countryCode string) (int, error) {
	if countryCode == "" {
		countryCode = s.defaultCountry
	}
	fresh, err := s.source.FetchForCarrier(ctx, carrierID, countryCode)
	if err != nil {
		return 0, errors.Wrapf(err, "refresh carrier %s", carrierID)
	}
	preserve := s.store.Where(func(p *models.Point) bool {
		return p.Carrier != carrierID
	})
	s.store.MergePreserving(fresh, preserve)
	s.reindex()
	slog.Info("carrier refreshed", "carrier", carrierID, "fetched", len(fresh), "total", s.store.Len())
	return len(fresh), nil
}

// ApplyRefreshMessage is the handler for the points.refreshed topic. A
// batch that carries an error and no points is skipped so a failed fetch
// never erases existing data.
func (s *Service) ApplyRefreshMessage(key, value []byte) error {
	var msg messages.PointsRefreshed
	if err := json.Unmarshal(value, &msg); err != nil {
		return errors.Wrap(err, "decode points refreshed")
	}
	if msg.Error != nil && len(msg.Points) == 0 {
		slog.Warn("refresh batch failed upstream, keeping current points",
			"carrier", msg.CarrierID, "error", *msg.Error)
		return nil
	}
	preserve := s.store.Where(func(p *models.Point) bool {
		return p.Carrier != msg.CarrierID
	})
	s.store.MergePreserving(msg.Points, preserve)
	s.reindex()
	slog.Info("refresh batch applied",
		"carrier", msg.CarrierID, "batch", len(msg.Points), "total", s.store.Len())
	return nil
}

// ViewportPoints returns the points inside bounds, optionally narrowed
// to one carrier. Repeated calls for the same session within the
// throttle window are suppressed; suppressed calls return ok=false.
func (s *Service) ViewportPoints(ctx context.Context, sessionKey string, bounds geo.Bounds, carrierID string) ([]*models.Point, bool, error) {
	if s.throttle != nil && sessionKey != "" {
		allowed, err := s.throttle.Allow(ctx, "viewport:"+sessionKey, s.throttleWindow)
		if err != nil {
			// Redis trouble must not blank the map, serve unthrottled.
			slog.Warn("viewport throttle unavailable", "error", err)
		} else if !allowed {
			metrics.ThrottleSuppressedTotal.Inc()
			return nil, false, nil
		}
	}
	pts := s.geoIdx.WithinBounds(bounds)
	if carrierID != "" {
		pts = filterCarrier(pts, carrierID)
	}
	return pts, true, nil
}

func filterCarrier(points []*models.Point, carrierID string) []*models.Point {
	out := make([]*models.Point, 0, len(points))
	for _, p := range points {
		if p.Carrier == carrierID {
			out = append(out, p)
		}
	}
	return out
}

// PointsByCity matches the city name exactly, including case.
func (s *Service) PointsByCity(cityName string) []*models.Point {
	return geo.ByCity(s.store.GetAll(), cityName)
}

func (s *Service) PointsByCarrier(carrierID string) []*models.Point {
	return filterCarrier(s.store.GetAll(), carrierID)
}

func (s *Service) AllPoints() []*models.Point {
	return s.store.GetAll()
}

func (s *Service) Point(id string) (*models.Point, bool) {
	return s.store.Get(id)
}

func (s *Service) Len() int {
	return s.store.Len()
}

func (s *Service) Cities() []string {
	return s.store.UniqueCities()
}

func (s *Service) CityCounts() map[string]int {
	return s.store.CountByCity()
}

// Nearest returns up to the configured limit of points around a
// coordinate, closest first, with distances in kilometers.
func (s *Service) Nearest(lat, lng float64) []geo.Distance {
	return geo.Nearest(s.store.GetAll(), lat, lng, s.nearestLimit, s.nearestOpts)
}

// Search runs the local text index first and falls back to the geocoder
// only when nothing matched. Geocoder failures degrade to an empty
// address list instead of failing the search.
func (s *Service) Search(ctx context.Context, query, countryCode string) (SearchResult, error) {
	res := SearchResult{Points: s.searchIdx.Search(query)}
	if len(res.Points) > 0 || s.geocoder == nil {
		return res, nil
	}
	if len([]rune(query)) < search.MinQueryLength {
		return res, nil
	}
	if countryCode == "" {
		countryCode = s.defaultCountry
	}
	addrs, err := s.geocoder.Search(ctx, query, countryCode)
	if err != nil {
		slog.Warn("geocoder fallback failed", "query", query, "error", err)
		return res, nil
	}
	res.Addresses = addrs
	return res, nil
}

// Geocode asks the external geocoder directly, without consulting the
// local index. Like the Search fallback, geocoder failures degrade to
// an empty list so callers never surface them to the widget.
func (s *Service) Geocode(ctx context.Context, query, countryCode string) []nominatim.AddressResult {
	if s.geocoder == nil {
		return nil
	}
	if countryCode == "" {
		countryCode = s.defaultCountry
	}
	addrs, err := s.geocoder.Search(ctx, query, countryCode)
	if err != nil {
		slog.Warn("geocode failed", "query", query, "error", err)
		return nil
	}
	return addrs
}

// SelectPoint publishes the selection message for a point. Points
// without usable coordinates cannot be selected.
func (s *Service) SelectPoint(ctx context.Context, id string) (messages.PointSelected, error) {
	p, ok := s.store.Get(id)
	if !ok {
		return messages.PointSelected{}, errors.Wrapf(models.ErrPointNotFound, "select %s", id)
	}
	if !p.HasCoordinates() {
		return messages.PointSelected{}, errors.Wrapf(models.ErrNoCoordinates, "select %s", id)
	}
	msg := messages.NewPointSelected(p)
	if s.producer != nil {
		b, err := json.Marshal(msg)
		if err != nil {
			return messages.PointSelected{}, errors.Wrap(err, "encode selection")
		}
		if err := s.producer.Publish(ctx, s.selectedTopic, []byte(p.ID), b); err != nil {
			return messages.PointSelected{}, err
		}
	}
	return msg, nil
}

// Close publishes the widget dismissal message.
func (s *Service) Close(ctx context.Context) error {
	if s.producer == nil {
		return nil
	}
	b, err := json.Marshal(messages.NewWidgetClosed())
	if err != nil {
		return errors.Wrap(err, "encode close")
	}
	return s.producer.Publish(ctx, s.selectedTopic, []byte(messages.ActionClose), b)
}

// Render draws the current point set, optionally narrowed to a carrier.
func (s *Service) Render(ctx context.Context, opts render.Options, carrierID string) (*render.Layer, error) {
	if s.renderer == nil {
		return nil, errors.New("renderer not configured")
	}
	pts := s.store.GetAll()
	if carrierID != "" {
		pts = filterCarrier(pts, carrierID)
	}
	return s.renderer.Render(ctx, pts, opts)
}

func (s *Service) CurrentLayer() *render.Layer {
	if s.renderer == nil {
		return nil
	}
	return s.renderer.Current()
}

func (s *Service) RenderState() string {
	if s.renderer == nil {
		return render.StateIdle
	}
	return s.renderer.State()
}

func (s *Service) ClearLayer() {
	if s.renderer != nil {
		s.renderer.Clear()
	}
}

// SaveSnapshot writes the current point set to a snapshot file.
func (s *Service) SaveSnapshot(path string) error {
	if s.codec == nil {
		return errors.New("snapshot codec not configured")
	}
	return s.codec.SaveFile(path, s.store.GetAll())
}

// LoadSnapshot replaces the point set from a snapshot file.
func (s *Service) LoadSnapshot(path string) (int, error) {
	if s.codec == nil {
		return 0, errors.New("snapshot codec not configured")
	}
	snap, err := s.codec.LoadFile(path)
	if err != nil {
		return 0, err
	}
	s.store.ReplaceAll(snap.Points)
	s.reindex()
	slog.Info("snapshot loaded", "count", s.store.Len(), "taken_at", snap.Timestamp)
	return s.store.Len(), nil
}

// ExportSnapshot serializes the current point set without touching disk.
func (s *Service) ExportSnapshot() ([]byte, error) {
	if s.codec == nil {
		return nil, errors.New("snapshot codec not configured")
	}
	return s.codec.Encode(s.store.GetAll())
}

// ImportSnapshot replaces the point set from serialized snapshot bytes.
func (s *Service) ImportSnapshot(data []byte) (int, error) {
	if s.codec == nil {
		return 0, errors.New("snapshot codec not configured")
	}
	snap, err := s.codec.Decode(data)
	if err != nil {
		return 0, err
	}
	s.store.ReplaceAll(snap.Points)
	s.reindex()
	return s.store.Len(), nil
}
