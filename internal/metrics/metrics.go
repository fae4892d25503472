package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pointbox_fetch_requests_total",
		Help: "Aggregator endpoint fetches",
	}, []string{"carrier"})
	FetchFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pointbox_fetch_failures_total",
		Help: "Aggregator endpoint fetches that returned an error",
	}, []string{"carrier"})
	FetchPointsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pointbox_fetch_points_total",
		Help: "Points returned by aggregator fetches",
	}, []string{"carrier"})
	FetchDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pointbox_fetch_duration_ms",
		Help:    "Aggregator fetch duration in milliseconds",
		Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000},
	})
	RenderDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pointbox_render_duration_ms",
		Help:    "Render pipeline cycle duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	})
	RenderMarkersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pointbox_render_markers_total",
		Help: "Markers produced by render cycles",
	})
	GeocodeRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pointbox_geocode_requests_total",
		Help: "Geocoding service calls",
	})
	GeocodeFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pointbox_geocode_failures_total",
		Help: "Geocoding calls that failed or returned nothing",
	})
	ThrottleSuppressedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pointbox_throttle_suppressed_total",
		Help: "Viewport loads suppressed by the throttle window",
	})
)

func init() {
	prometheus.MustRegister(
		FetchRequestsTotal,
		FetchFailuresTotal,
		FetchPointsTotal,
		FetchDurationMs,
		RenderDurationMs,
		RenderMarkersTotal,
		GeocodeRequestsTotal,
		GeocodeFailuresTotal,
		ThrottleSuppressedTotal,
	)
}

// Handler serves the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
