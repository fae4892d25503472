package pointsapi

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/BearBump/PointBox/internal/broker/messages"
	"github.com/BearBump/PointBox/internal/carriers"
	"github.com/BearBump/PointBox/internal/integrations/nominatim"
	"github.com/BearBump/PointBox/internal/models"
	"github.com/BearBump/PointBox/internal/render"
	"github.com/BearBump/PointBox/internal/services/points"
	"github.com/BearBump/PointBox/internal/snapshot"
	"github.com/BearBump/PointBox/internal/store"
)

type fakeSource struct {
	byCarrier map[string][]*models.Point
}

func (f *fakeSource) FetchForCarrier(ctx context.Context, carrierID, countryCode string) ([]*models.Point, error) {
	if _, ok := f.byCarrier[carrierID]; !ok {
		return nil, models.ErrUnknownCarrier
	}
	return f.byCarrier[carrierID], nil
}

func (f *fakeSource) FetchAll(ctx context.Context, carrierIDs []string, countryCode string) []*models.Point {
	var out []*models.Point
	for _, id := range carrierIDs {
		out = append(out, f.byCarrier[id]...)
	}
	return out
}

type fakeProducer struct {
	msgs [][]byte
}

func (f *fakeProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	f.msgs = append(f.msgs, value)
	return nil
}

type fakeGeocoder struct {
	results []nominatim.AddressResult
	err     error
}

func (f *fakeGeocoder) Search(ctx context.Context, query, countryCode string) ([]nominatim.AddressResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeThrottle struct{ allow bool }

func (f *fakeThrottle) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	return f.allow, nil
}

func testPoint(id, carrier, city string, lat, lng float64) *models.Point {
	return &models.Point{
		ID:        id,
		Name:      id,
		City:      city,
		Carrier:   carrier,
		Latitude:  models.Float(lat),
		Longitude: models.Float(lng),
	}
}

func newServer(t *testing.T, seed []*models.Point) (*httptest.Server, *points.Service, *fakeProducer) {
	t.Helper()
	registry := carriers.Default()
	src := &fakeSource{byCarrier: map[string][]*models.Point{
		"dpd": {testPoint("fresh-dpd", "dpd", "Łódź", 51.75, 19.45)},
	}}
	prod := &fakeProducer{}
	renderer := render.NewPipeline(registry, 5000, 1000, 10, 14).
		WithRand(rand.New(rand.NewSource(1)))

	svc := points.New(registry, store.New(), src).
		WithProducer(prod, "points.selected").
		WithRenderer(renderer).
		WithSnapshotCodec(snapshot.NewCodec("1.0", "test"))
	if len(seed) > 0 {
		b, err := snapshot.NewCodec("1.0", "test").Encode(seed)
		require.NoError(t, err)
		_, err = svc.ImportSnapshot(b)
		require.NoError(t, err)
	}

	api := New(svc, registry)
	srv := httptest.NewServer(api.Router())
	t.Cleanup(srv.Close)
	return srv, svc, prod
}

func seedPoints() []*models.Point {
	return []*models.Point{
		testPoint("d1", "dpd", "Kraków", 50.06, 19.94),
		testPoint("i1", "inpost", "Warszawa", 52.23, 21.01),
		{ID: "bare", Carrier: "dhl", City: "Poznań"},
	}
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url, body string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newServer(t, nil)
	var body map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/healthz", &body))
	require.Equal(t, "ok", body["status"])
}

func TestSession(t *testing.T) {
	srv, _, _ := newServer(t, seedPoints())

	var res sessionResponse
	code := getJSON(t, srv.URL+"/api/v1/session?country=fr&mode=select&city=Paris", &res)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "fr", res.Country)
	require.Equal(t, 6, res.View.Zoom)
	require.Equal(t, "select", res.Mode)
	require.Equal(t, "Paris", res.City)
	require.Equal(t, 3, res.PointsLoaded)

	require.Len(t, res.Carriers, 5)
	require.Equal(t, "inpost", res.Carriers[0].ID)
	require.Equal(t, "#FFCC00", res.Carriers[0].Color)
}

func TestSession_unknownCountryFallsBack(t *testing.T) {
	srv, _, _ := newServer(t, nil)

	var res sessionResponse
	getJSON(t, srv.URL+"/api/v1/session?country=de", &res)
	require.Equal(t, "de", res.Country)
	require.Equal(t, 5, res.View.Zoom) // "other" view
}

func TestListPoints_bbox(t *testing.T) {
	srv, _, _ := newServer(t, seedPoints())

	var res struct {
		Points []*models.Point `json:"points"`
		Count  int             `json:"count"`
	}
	code := getJSON(t, srv.URL+"/api/v1/points?minLat=49&minLng=19&maxLat=51&maxLng=21", &res)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, res.Count)
	require.Equal(t, "d1", res.Points[0].ID)
}

func TestListPoints_badBounds(t *testing.T) {
	srv, _, _ := newServer(t, seedPoints())
	code := getJSON(t, srv.URL+"/api/v1/points?minLat=x&minLng=19&maxLat=51&maxLng=21", nil)
	require.Equal(t, http.StatusBadRequest, code)

	code = getJSON(t, srv.URL+"/api/v1/points?minLat=51&minLng=19&maxLat=49&maxLng=21", nil)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestListPoints_throttled(t *testing.T) {
	srv, svc, _ := newServer(t, seedPoints())
	svc.WithThrottle(&fakeThrottle{allow: false}, 2*time.Second)

	code := getJSON(t, srv.URL+"/api/v1/points?minLat=49&minLng=19&maxLat=51&maxLng=21&session=s1", nil)
	require.Equal(t, http.StatusTooManyRequests, code)
}

func TestListPoints_city(t *testing.T) {
	srv, _, _ := newServer(t, seedPoints())

	var res struct {
		Count int `json:"count"`
	}
	getJSON(t, srv.URL+"/api/v1/points?city=Warszawa", &res)
	require.Equal(t, 1, res.Count)

	// City match is exact, including case.
	getJSON(t, srv.URL+"/api/v1/points?city=warszawa", &res)
	require.Equal(t, 0, res.Count)
}

func TestListPoints_carrier(t *testing.T) {
	srv, _, _ := newServer(t, seedPoints())

	var res struct {
		Points []*models.Point `json:"points"`
	}
	getJSON(t, srv.URL+"/api/v1/points?carrier=dhl", &res)
	require.Len(t, res.Points, 1)
	require.Equal(t, "bare", res.Points[0].ID)
}

func TestNearest(t *testing.T) {
	srv, _, _ := newServer(t, seedPoints())

	var res struct {
		Results []struct {
			Point      *models.Point `json:"point"`
			Kilometers float64       `json:"kilometers"`
		} `json:"results"`
	}
	code := getJSON(t, srv.URL+"/api/v1/points/nearest?lat=50.06&lng=19.94", &res)
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, res.Results)
	require.Equal(t, "d1", res.Results[0].Point.ID)

	code = getJSON(t, srv.URL+"/api/v1/points/nearest?lat=50.06", nil)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestSelectPoint(t *testing.T) {
	srv, _, prod := newServer(t, seedPoints())

	var msg messages.PointSelected
	code := postJSON(t, srv.URL+"/api/v1/points/d1/select", "", &msg)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, messages.ActionSelectPoint, msg.Action)
	require.Equal(t, "d1", msg.ID)
	require.Len(t, prod.msgs, 1)
}

func TestSelectPoint_notFound(t *testing.T) {
	srv, _, _ := newServer(t, seedPoints())
	code := postJSON(t, srv.URL+"/api/v1/points/nope/select", "", nil)
	require.Equal(t, http.StatusNotFound, code)
}

func TestSelectPoint_noCoordinates(t *testing.T) {
	srv, _, _ := newServer(t, seedPoints())
	code := postJSON(t, srv.URL+"/api/v1/points/bare/select", "", nil)
	require.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestCloseWidget(t *testing.T) {
	srv, _, prod := newServer(t, seedPoints())
	code := postJSON(t, srv.URL+"/api/v1/close", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, prod.msgs, 1)

	var msg messages.WidgetClosed
	require.NoError(t, json.Unmarshal(prod.msgs[0], &msg))
	require.Equal(t, messages.ActionClose, msg.Action)
}

func TestSearch(t *testing.T) {
	srv, _, _ := newServer(t, seedPoints())

	var res points.SearchResult
	code := getJSON(t, srv.URL+"/api/v1/search?q=krak", &res)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, res.Points, 1)
	require.Equal(t, "d1", res.Points[0].ID)
}

func TestGeocode(t *testing.T) {
	srv, svc, _ := newServer(t, nil)
	svc.WithGeocoder(&fakeGeocoder{results: []nominatim.AddressResult{
		{DisplayName: "Radom, Polska", Latitude: 51.4, Longitude: 21.15},
	}})

	var res struct {
		Addresses []map[string]any `json:"addresses"`
	}
	code := getJSON(t, srv.URL+"/api/v1/geocode?q=radom", &res)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, res.Addresses, 1)
	require.Equal(t, "Radom, Polska", res.Addresses[0]["display_name"])
	require.InDelta(t, 51.4, res.Addresses[0]["latitude"], 1e-6)
	require.InDelta(t, 21.15, res.Addresses[0]["longitude"], 1e-6)
}

func TestGeocode_upstreamFailureYieldsEmptyList(t *testing.T) {
	srv, svc, _ := newServer(t, nil)
	svc.WithGeocoder(&fakeGeocoder{err: errors.New("nominatim down")})

	var res struct {
		Addresses []map[string]any `json:"addresses"`
	}
	code := getJSON(t, srv.URL+"/api/v1/geocode?q=radom", &res)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, res.Addresses)
	require.Empty(t, res.Addresses)
}

func TestRefresh_singleCarrier(t *testing.T) {
	srv, svc, _ := newServer(t, seedPoints())

	var res struct {
		Fetched int `json:"fetched"`
		Total   int `json:"total"`
	}
	code := postJSON(t, srv.URL+"/api/v1/refresh?carrier=dpd", "", &res)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, res.Fetched)
	// Stale dpd point replaced, inpost and dhl preserved.
	require.Equal(t, 3, res.Total)
	_, ok := svc.Point("fresh-dpd")
	require.True(t, ok)
	_, ok = svc.Point("d1")
	require.False(t, ok)
}

func TestRefresh_unknownCarrier(t *testing.T) {
	srv, _, _ := newServer(t, seedPoints())
	code := postJSON(t, srv.URL+"/api/v1/refresh?carrier=bogus", "", nil)
	require.Equal(t, http.StatusNotFound, code)
}

func TestCities(t *testing.T) {
	srv, _, _ := newServer(t, seedPoints())

	var res struct {
		Cities []string       `json:"cities"`
		Counts map[string]int `json:"counts"`
	}
	getJSON(t, srv.URL+"/api/v1/cities", &res)
	require.Equal(t, []string{"Kraków", "Poznań", "Warszawa"}, res.Cities)
	require.Equal(t, 1, res.Counts["Kraków"])
}

func TestRenderLifecycle(t *testing.T) {
	srv, _, _ := newServer(t, seedPoints())

	var layer render.Layer
	code := getJSON(t, srv.URL+"/api/v1/render?zoom=15", &layer)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, layer.Markers, 2)

	code = getJSON(t, srv.URL+"/api/v1/render/current", &layer)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 2, layer.Total)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/render", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state map[string]string
	getJSON(t, srv.URL+"/api/v1/render/current", &state)
	require.Equal(t, render.StateIdle, state["state"])
}

func TestSnapshotRoundTripOverHTTP(t *testing.T) {
	srv, _, _ := newServer(t, seedPoints())

	resp, err := http.Get(srv.URL + "/api/v1/snapshot")
	require.NoError(t, err)
	var snap map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	_ = resp.Body.Close()
	require.Contains(t, snap, "points")
	require.Contains(t, snap, "metadata")

	raw, err := json.Marshal(snap)
	require.NoError(t, err)

	other, _, _ := newServer(t, nil)
	var res struct {
		Total int `json:"total"`
	}
	code := postJSON(t, other.URL+"/api/v1/snapshot", string(raw), &res)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 3, res.Total)
}

func TestImportSnapshot_invalid(t *testing.T) {
	srv, _, _ := newServer(t, nil)
	code := postJSON(t, srv.URL+"/api/v1/snapshot", `{"no":"points"}`, nil)
	require.Equal(t, http.StatusUnprocessableEntity, code)
}
