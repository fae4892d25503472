package models

import (
	"errors"
	"fmt"
)

// Shared error taxonomy. Single-endpoint fetch failures are downgraded to
// "zero points" at the source boundary; these types exist so callers that do
// care (API layer, CLI) can classify what went wrong.
var (
	// ErrMalformedResponse: endpoint body did not match any recognized
	// point-bearing JSON shape.
	ErrMalformedResponse = errors.New("malformed response: no recognized point shape")

	// ErrInvalidSnapshot: snapshot file failed structural validation.
	ErrInvalidSnapshot = errors.New("invalid snapshot format")

	// ErrNoCoordinates: an explicit select of a point that has no usable
	// lat/lng. Rendering silently skips such points; selection must not.
	ErrNoCoordinates = errors.New("point has no coordinates")

	// ErrUnknownCarrier: no endpoint configuration for the requested
	// carrier/country pair.
	ErrUnknownCarrier = errors.New("unknown carrier")

	ErrPointNotFound = errors.New("point not found")
)

// HTTPError is a non-2xx response from an aggregator or geocoding endpoint.
type HTTPError struct {
	Status int
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d from %s", e.Status, e.URL)
}
