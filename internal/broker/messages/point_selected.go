package messages

import "github.com/BearBump/PointBox/internal/models"

// Selection actions. The widget origin posted these to its parent frame;
// here they travel over the selection topic to whoever embeds the map.
const (
	ActionSelectPoint = "selectPoint"
	ActionClose       = "close"
)

// PointSelected is published when a user picks a pickup point. Field
// names follow the host-page contract, including the postCode spelling.
type PointSelected struct {
	Action     string        `json:"action"`
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Address    string        `json:"address"`
	City       string        `json:"city"`
	PostCode   string        `json:"postCode"`
	Latitude   float64       `json:"latitude"`
	Longitude  float64       `json:"longitude"`
	CountryID  string        `json:"countryId"`
	FullData   *models.Point `json:"fullData,omitempty"`
}

// NewPointSelected builds the selection message for a point with usable
// coordinates. Callers must have rejected coordinate-less points already.
func NewPointSelected(p *models.Point) PointSelected {
	lat, lng, _ := p.Coordinates()
	name := p.Name
	if name == "" {
		name = p.ID
	}
	countryID := p.CountryID
	if countryID == "" {
		countryID = "pl"
	}
	return PointSelected{
		Action:    ActionSelectPoint,
		ID:        p.ID,
		Name:      name,
		Address:   p.Address,
		City:      p.City,
		PostCode:  p.PostalCode,
		Latitude:  lat,
		Longitude: lng,
		CountryID: countryID,
		FullData:  p,
	}
}

// WidgetClosed is published when the user dismisses the widget.
type WidgetClosed struct {
	Action string `json:"action"`
}

func NewWidgetClosed() WidgetClosed {
	return WidgetClosed{Action: ActionClose}
}
