// Package aggregator is the point source: it fetches raw pickup-point
// lists from the aggregator API endpoints, normalizes the response shape
// variants into models.Point and tags carrier/country at ingestion so
// downstream code never re-classifies.
package aggregator

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BearBump/PointBox/internal/cache"
	"github.com/BearBump/PointBox/internal/carriers"
	"github.com/BearBump/PointBox/internal/metrics"
	"github.com/BearBump/PointBox/internal/models"
	"github.com/pkg/errors"
)

// CountryAll fans a fetch out across every configured country endpoint.
const CountryAll = "all"

type Client struct {
	registry *carriers.Registry
	httpc    *http.Client

	respCache cache.BytesCache
	cacheTTL  time.Duration
}

func New(registry *carriers.Registry) *Client {
	return &Client{
		registry: registry,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// WithCache caches raw endpoint bodies so repeated loads within the TTL
// skip the upstream call.
func (c *Client) WithCache(bc cache.BytesCache, ttl time.Duration) *Client {
	if bc != nil && ttl > 0 {
		c.respCache = bc
		c.cacheTTL = ttl
	}
	return c
}

// FetchFromEndpoint GETs one endpoint and returns normalized points,
// each tagged with the country inferred from the URL. Non-2xx becomes
// *models.HTTPError, an unrecognized body shape ErrMalformedResponse.
func (c *Client) FetchFromEndpoint(ctx context.Context, url string) ([]*models.Point, error) {
	body, err := c.endpointBody(ctx, url)
	if err != nil {
		return nil, err
	}

	pts, err := extractPoints(body)
	if err != nil {
		return nil, err
	}

	countryID := countryFromURL(url)
	out := make([]*models.Point, 0, len(pts))
	for _, rp := range pts {
		p := rp.toPoint()
		p.CountryID = countryID
		if id, ok := c.registry.Classify(p); ok {
			p.Carrier = id
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *Client) endpointBody(ctx context.Context, url string) ([]byte, error) {
	if c.respCache != nil {
		if b, ok, err := c.respCache.Get(ctx, cacheKey(url)); err == nil && ok {
			return b, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpc.Do(req)
	metrics.FetchDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, &models.HTTPError{Status: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}

	if c.respCache != nil {
		if err := c.respCache.Set(ctx, cacheKey(url), body, c.cacheTTL); err != nil {
			slog.Warn("endpoint cache set failed", "url", url, "error", err.Error())
		}
	}
	return body, nil
}

func cacheKey(url string) string {
	return "endpoint:" + url
}

// countryFromURL matches the aggregator's URL convention: countryId=12
// is France, countryId=33 the "other" bucket, everything else Poland.
func countryFromURL(url string) string {
	switch {
	case strings.Contains(url, "countryId=12"):
		return "fr"
	case strings.Contains(url, "countryId=33"):
		return "other"
	default:
		return "pl"
	}
}

// FetchForCarrier resolves the carrier's endpoint for a country (falling
// back to the carrier-wide default) and tags every returned point with
// the carrier id. countryCode "all" fans out across the carrier's every
// configured endpoint with all-settled semantics.
func (c *Client) FetchForCarrier(ctx context.Context, carrierID, countryCode string) ([]*models.Point, error) {
	def, ok := c.registry.Get(carrierID)
	if !ok {
		return nil, errors.Wrapf(models.ErrUnknownCarrier, "carrier %q", carrierID)
	}

	metrics.FetchRequestsTotal.WithLabelValues(carrierID).Inc()

	var urls []string
	if countryCode == CountryAll {
		urls = carrierURLs(def)
	} else {
		u, ok := def.EndpointFor(countryCode)
		if !ok {
			return nil, errors.Wrapf(models.ErrUnknownCarrier,
				"carrier %q has no endpoint for country %q", carrierID, countryCode)
		}
		urls = []string{u}
	}

	var out []*models.Point
	var lastErr error
	for _, u := range urls {
		pts, err := c.FetchFromEndpoint(ctx, u)
		if err != nil {
			lastErr = err
			metrics.FetchFailuresTotal.WithLabelValues(carrierID).Inc()
			slog.Warn("endpoint fetch failed", "carrier", carrierID, "url", u, "error", err.Error())
			continue
		}
		for _, p := range pts {
			p.Carrier = carrierID
		}
		out = append(out, pts...)
	}
	if out == nil && lastErr != nil {
		return nil, lastErr
	}

	metrics.FetchPointsTotal.WithLabelValues(carrierID).Add(float64(len(out)))
	return out, nil
}

// carrierURLs lists every configured endpoint of a carrier, country
// endpoints first, then the default when not already included.
func carrierURLs(def *carriers.Definition) []string {
	seen := make(map[string]struct{})
	var urls []string
	for _, u := range def.CountryEndpoints {
		if _, dup := seen[u]; dup || u == "" {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	if def.Endpoint != "" {
		if _, dup := seen[def.Endpoint]; !dup {
			urls = append(urls, def.Endpoint)
		}
	}
	return urls
}

// FetchAll fans out across carriers in parallel. A failed carrier fetch
// is logged and contributes zero points; the aggregate never fails as a
// whole (all-settled, not all-or-nothing). Result order follows the
// carrier list for determinism, not response arrival.
func (c *Client) FetchAll(ctx context.Context, carrierIDs []string, countryCode string) []*models.Point {
	results := make([][]*models.Point, len(carrierIDs))

	var wg sync.WaitGroup
	for i, id := range carrierIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			pts, err := c.FetchForCarrier(ctx, id, countryCode)
			if err != nil {
				slog.Warn("carrier fetch failed", "carrier", id, "error", err.Error())
				return
			}
			results[i] = pts
		}(i, id)
	}
	wg.Wait()

	var out []*models.Point
	for _, pts := range results {
		out = append(out, pts...)
	}
	return out
}
