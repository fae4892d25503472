package messages

import (
	"time"

	"github.com/BearBump/PointBox/internal/models"
)

// PointsRefreshed carries one carrier's freshly fetched point batch from
// the refresher worker to the API process. The consumer merges it with a
// preserve set of all other carriers' points, so a slow batch arriving
// late cannot wipe out newer data from other carriers.
type PointsRefreshed struct {
	CarrierID   string          `json:"carrier_id"`
	CountryCode string          `json:"country_code"`
	FetchedAt   time.Time       `json:"fetched_at"`
	Points      []*models.Point `json:"points"`

	Error *string `json:"error,omitempty"`
}
