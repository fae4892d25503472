// Package pointsapi exposes the point map over HTTP. The routes mirror
// what the embedded widget needs: session bootstrap, viewport loads,
// search with geocoding fallback, selection and rendering.
package pointsapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/BearBump/PointBox/config"
	"github.com/BearBump/PointBox/internal/carriers"
	"github.com/BearBump/PointBox/internal/geo"
	"github.com/BearBump/PointBox/internal/integrations/nominatim"
	"github.com/BearBump/PointBox/internal/metrics"
	"github.com/BearBump/PointBox/internal/models"
	"github.com/BearBump/PointBox/internal/render"
	"github.com/BearBump/PointBox/internal/services/points"
)

type PointsAPI struct {
	svc      *points.Service
	registry *carriers.Registry

	views          map[string]config.View
	defaultCountry string
}

func New(svc *points.Service, registry *carriers.Registry) *PointsAPI {
	return &PointsAPI{
		svc:            svc,
		registry:       registry,
		views:          config.DefaultViews(),
		defaultCountry: "pl",
	}
}

func (a *PointsAPI) WithViews(views map[string]config.View, defaultCountry string) *PointsAPI {
	if len(views) > 0 {
		a.views = views
	}
	if defaultCountry != "" {
		a.defaultCountry = defaultCountry
	}
	return a
}

func (a *PointsAPI) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/session", a.session)
		r.Get("/points", a.listPoints)
		r.Get("/points/nearest", a.nearest)
		r.Post("/points/{id}/select", a.selectPoint)
		r.Post("/close", a.closeWidget)
		r.Get("/search", a.search)
		r.Get("/geocode", a.geocode)
		r.Post("/refresh", a.refresh)
		r.Get("/cities", a.cities)
		r.Get("/render", a.renderLayer)
		r.Get("/render/current", a.currentLayer)
		r.Delete("/render", a.clearLayer)
		r.Get("/snapshot", a.exportSnapshot)
		r.Post("/snapshot", a.importSnapshot)
	})

	return r
}

type carrierInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Logo  string `json:"logo,omitempty"`
}

type sessionResponse struct {
	Country  string        `json:"country"`
	View     config.View   `json:"view"`
	Carriers []carrierInfo `json:"carriers"`

	// Prefills handed through from the host page.
	Mode    string `json:"mode,omitempty"`
	City    string `json:"city,omitempty"`
	Address string `json:"address,omitempty"`
	Carrier string `json:"carrier,omitempty"`

	PointsLoaded int `json:"pointsLoaded"`
}

// session bootstraps a widget: start view for the requested country plus
// the carrier palette. Unknown countries fall back to the "other" view.
func (a *PointsAPI) session(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	country := q.Get("country")
	if country == "" {
		country = a.defaultCountry
	}
	view, ok := a.views[country]
	if !ok {
		if other, hasOther := a.views["other"]; hasOther {
			view = other
		}
	}

	infos := make([]carrierInfo, 0)
	for _, d := range a.registry.All() {
		infos = append(infos, carrierInfo{ID: d.ID, Name: d.Name, Color: d.Color, Logo: d.Logo})
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		Country:      country,
		View:         view,
		Carriers:     infos,
		Mode:         q.Get("mode"),
		City:         q.Get("city"),
		Address:      q.Get("address"),
		Carrier:      q.Get("carrier"),
		PointsLoaded: a.svc.Len(),
	})
}

// listPoints serves a viewport (bbox), a city, a carrier, or everything.
// Viewport loads are throttled per session key; a suppressed load gets
// 429 so the client keeps its current markers.
func (a *PointsAPI) listPoints(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Has("minLat") || q.Has("maxLat") {
		bounds, err := boundsFromQuery(q.Get("minLat"), q.Get("minLng"), q.Get("maxLat"), q.Get("maxLng"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		pts, ok, err := a.svc.ViewportPoints(r.Context(), q.Get("session"), bounds, q.Get("carrier"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !ok {
			writeError(w, http.StatusTooManyRequests, "viewport load throttled")
			return
		}
		writePoints(w, pts)
		return
	}

	if city := q.Get("city"); city != "" {
		writePoints(w, a.svc.PointsByCity(city))
		return
	}
	if carrier := q.Get("carrier"); carrier != "" {
		writePoints(w, a.svc.PointsByCarrier(carrier))
		return
	}
	writePoints(w, a.svc.AllPoints())
}

func (a *PointsAPI) nearest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lng, err2 := strconv.ParseFloat(q.Get("lng"), 64)
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "lat and lng are required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": a.svc.Nearest(lat, lng)})
}

func (a *PointsAPI) selectPoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	msg, err := a.svc.SelectPoint(r.Context(), id)
	switch {
	case errors.Is(err, models.ErrPointNotFound):
		writeError(w, http.StatusNotFound, "point not found")
	case errors.Is(err, models.ErrNoCoordinates):
		writeError(w, http.StatusUnprocessableEntity, "point has no usable coordinates")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, msg)
	}
}

func (a *PointsAPI) closeWidget(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Close(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (a *PointsAPI) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := a.svc.Search(r.Context(), q.Get("q"), q.Get("country"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *PointsAPI) geocode(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("q") == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	addrs := a.svc.Geocode(r.Context(), q.Get("q"), q.Get("country"))
	if addrs == nil {
		addrs = []nominatim.AddressResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"addresses": addrs})
}

// refresh refetches one carrier or, without a carrier parameter, all of
// them. Single-carrier refreshes keep every other carrier's points.
func (a *PointsAPI) refresh(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	country := q.Get("country")
	if carrier := q.Get("carrier"); carrier != "" {
		n, err := a.svc.RefreshCarrier(r.Context(), carrier, country)
		if err != nil {
			if errors.Is(err, models.ErrUnknownCarrier) {
				writeError(w, http.StatusNotFound, "unknown carrier")
				return
			}
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"carrier": carrier, "fetched": n, "total": a.svc.Len()})
		return
	}
	n, err := a.svc.RefreshAll(r.Context(), country)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": n})
}

func (a *PointsAPI) cities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"cities": a.svc.Cities(),
		"counts": a.svc.CityCounts(),
	})
}

func (a *PointsAPI) renderLayer(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := render.Options{}
	if z := q.Get("zoom"); z != "" {
		zoom, err := strconv.Atoi(z)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid zoom")
			return
		}
		opts.Zoom = zoom
	}
	if q.Has("minLat") || q.Has("maxLat") {
		bounds, err := boundsFromQuery(q.Get("minLat"), q.Get("minLng"), q.Get("maxLat"), q.Get("maxLng"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts.Bounds = &bounds
	}
	layer, err := a.svc.Render(r.Context(), opts, q.Get("carrier"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, layer)
}

func (a *PointsAPI) currentLayer(w http.ResponseWriter, _ *http.Request) {
	layer := a.svc.CurrentLayer()
	if layer == nil {
		writeJSON(w, http.StatusOK, map[string]any{"state": a.svc.RenderState()})
		return
	}
	writeJSON(w, http.StatusOK, layer)
}

func (a *PointsAPI) clearLayer(w http.ResponseWriter, _ *http.Request) {
	a.svc.ClearLayer()
	writeJSON(w, http.StatusOK, map[string]string{"state": a.svc.RenderState()})
}

func (a *PointsAPI) exportSnapshot(w http.ResponseWriter, _ *http.Request) {
	data, err := a.svc.ExportSnapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="points-snapshot.json"`)
	_, _ = w.Write(data)
}

func (a *PointsAPI) importSnapshot(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	n, err := a.svc.ImportSnapshot(data)
	if err != nil {
		if errors.Is(err, models.ErrInvalidSnapshot) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": n})
}

func boundsFromQuery(minLat, minLng, maxLat, maxLng string) (geo.Bounds, error) {
	parse := func(s, name string) (float64, error) {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, errors.Errorf("invalid %s", name)
		}
		return v, nil
	}
	var b geo.Bounds
	var err error
	if b.MinLat, err = parse(minLat, "minLat"); err != nil {
		return b, err
	}
	if b.MinLng, err = parse(minLng, "minLng"); err != nil {
		return b, err
	}
	if b.MaxLat, err = parse(maxLat, "maxLat"); err != nil {
		return b, err
	}
	if b.MaxLng, err = parse(maxLng, "maxLng"); err != nil {
		return b, err
	}
	if b.MinLat > b.MaxLat || b.MinLng > b.MaxLng {
		return b, errors.New("inverted bounds")
	}
	return b, nil
}

func writePoints(w http.ResponseWriter, pts []*models.Point) {
	if pts == nil {
		pts = []*models.Point{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": pts, "count": len(pts)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
