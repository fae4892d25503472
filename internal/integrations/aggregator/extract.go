package aggregator

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/BearBump/PointBox/internal/models"
	"github.com/pkg/errors"
)

// rawPoint tolerates the aggregator's loose typing: ids arrive as
// strings or numbers, coordinates as numbers or numeric strings, and the
// postal code under two different keys.
type rawPoint struct {
	ID           json.RawMessage `json:"id"`
	Name         string          `json:"name"`
	Address      string          `json:"address"`
	City         string          `json:"city"`
	PostalCode   string          `json:"postalCode"`
	PostCode     string          `json:"postCode"`
	Latitude     json.RawMessage `json:"latitude"`
	Longitude    json.RawMessage `json:"longitude"`
	Type         string          `json:"type"`
	Carrier      string          `json:"carrier"`
	Description  string          `json:"description"`
	OpeningHours string          `json:"openingHours"`
}

func (rp *rawPoint) toPoint() *models.Point {
	postal := rp.PostalCode
	if postal == "" {
		postal = rp.PostCode
	}
	return &models.Point{
		ID:           rawString(rp.ID),
		Name:         rp.Name,
		Address:      rp.Address,
		City:         rp.City,
		PostalCode:   postal,
		Latitude:     rawFloat(rp.Latitude),
		Longitude:    rawFloat(rp.Longitude),
		Type:         rp.Type,
		Carrier:      rp.Carrier,
		Description:  rp.Description,
		OpeningHours: rp.OpeningHours,
	}
}

func rawString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return num.String()
	}
	return ""
}

func rawFloat(raw json.RawMessage) *float64 {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(str), 64); err == nil {
			return &v
		}
	}
	return nil
}

// pointFieldKeys are the markers of a point-like object: a bare object
// containing any of them is treated as a single point.
var pointFieldKeys = []string{"id", "type", "address", "latitude", "longitude"}

// extractPoints normalizes the three accepted body shapes: a
// {points: [...]} wrapper, a bare array, or a single point-like object.
// Anything else is a malformed response.
func extractPoints(body []byte) ([]*rawPoint, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.Wrap(models.ErrMalformedResponse, "empty body")
	}

	switch trimmed[0] {
	case '[':
		var pts []*rawPoint
		if err := json.Unmarshal(trimmed, &pts); err != nil {
			return nil, errors.Wrap(models.ErrMalformedResponse, err.Error())
		}
		return pts, nil

	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, errors.Wrap(models.ErrMalformedResponse, err.Error())
		}

		if rawPts, ok := obj["points"]; ok {
			inner := bytes.TrimSpace(rawPts)
			if len(inner) == 0 || inner[0] != '[' {
				return nil, errors.Wrap(models.ErrMalformedResponse, "points field is not an array")
			}
			var pts []*rawPoint
			if err := json.Unmarshal(inner, &pts); err != nil {
				return nil, errors.Wrap(models.ErrMalformedResponse, err.Error())
			}
			return pts, nil
		}

		for _, key := range pointFieldKeys {
			if _, ok := obj[key]; ok {
				var pt rawPoint
				if err := json.Unmarshal(trimmed, &pt); err != nil {
					return nil, errors.Wrap(models.ErrMalformedResponse, err.Error())
				}
				return []*rawPoint{&pt}, nil
			}
		}
		return nil, errors.Wrap(models.ErrMalformedResponse, "object has no point fields")

	default:
		return nil, errors.Wrap(models.ErrMalformedResponse, "body is neither object nor array")
	}
}
