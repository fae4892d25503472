// Package nominatim is a thin client for the OSM Nominatim search API,
// used as a geocoding fallback when the local point search finds nothing.
package nominatim

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/PointBox/internal/metrics"
	"github.com/BearBump/PointBox/internal/models"
)

const DefaultBaseURL = "https://nominatim.openstreetmap.org/search"

// AddressResult is a single geocoding hit. Nominatim returns coordinates
// as strings, they are parsed into Latitude and Longitude.
type AddressResult struct {
	DisplayName string  `json:"display_name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

type Client struct {
	baseURL string
	limit   int
	httpc   *http.Client
}

func New(baseURL string, limit int) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if limit <= 0 {
		limit = 5
	}
	return &Client{
		baseURL: baseURL,
		limit:   limit,
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) WithHTTPClient(httpc *http.Client) *Client {
	c.httpc = httpc
	return c
}

type rawResult struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

// Search geocodes a free-form query, restricted to countryCode when set.
func (c *Client) Search(ctx context.Context, query, countryCode string) ([]AddressResult, error) {
	metrics.GeocodeRequestsTotal.Inc()

	params := url.Values{}
	params.Set("format", "json")
	if countryCode != "" {
		params.Set("countrycodes", countryCode)
	}
	params.Set("limit", strconv.Itoa(c.limit))
	params.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		metrics.GeocodeFailuresTotal.Inc()
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		metrics.GeocodeFailuresTotal.Inc()
		return nil, errors.Wrap(err, "do request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		metrics.GeocodeFailuresTotal.Inc()
		return nil, &models.HTTPError{Status: resp.StatusCode, URL: c.baseURL}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.GeocodeFailuresTotal.Inc()
		return nil, errors.Wrap(err, "read body")
	}

	var raw []rawResult
	if err := json.Unmarshal(body, &raw); err != nil {
		metrics.GeocodeFailuresTotal.Inc()
		return nil, errors.Wrap(err, "decode response")
	}

	results := make([]AddressResult, 0, len(raw))
	for _, r := range raw {
		lat, errLat := strconv.ParseFloat(r.Lat, 64)
		lon, errLon := strconv.ParseFloat(r.Lon, 64)
		if errLat != nil || errLon != nil {
			continue
		}
		results = append(results, AddressResult{
			DisplayName: r.DisplayName,
			Latitude:    lat,
			Longitude:   lon,
		})
	}
	return results, nil
}
