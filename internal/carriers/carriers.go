package carriers

import (
	"strings"

	"github.com/BearBump/PointBox/internal/models"
)

// DefaultColor is used for markers whose carrier cannot be determined.
const DefaultColor = "#3388ff"

// Definition is the static configuration of one courier brand.
type Definition struct {
	ID       string
	Name     string
	Color    string
	Logo     string
	Endpoint string // carrier-wide default

	// CountryEndpoints overrides Endpoint per ISO2 country code.
	CountryEndpoints map[string]string

	// Identifiers are lowercase tokens matched against a point's
	// name/type when no classifier verdict is available.
	Identifiers []string

	// Classifier is the brand-specific predicate. Nil means
	// token matching only.
	Classifier func(p *models.Point) bool
}

// EndpointFor resolves the fetch URL for a country, falling back to the
// carrier-wide default endpoint.
func (d *Definition) EndpointFor(countryCode string) (string, bool) {
	if u, ok := d.CountryEndpoints[countryCode]; ok && u != "" {
		return u, true
	}
	if d.Endpoint != "" {
		return d.Endpoint, true
	}
	return "", false
}

func (d *Definition) matchesTokens(p *models.Point) bool {
	name := strings.ToLower(p.Name)
	typ := strings.ToLower(p.Type)
	for _, tok := range d.Identifiers {
		if tok == "" {
			continue
		}
		if strings.Contains(name, tok) || strings.Contains(typ, tok) {
			return true
		}
	}
	return false
}

// Registry holds carrier definitions in a fixed iteration order.
// Classification precedence follows that order: the first matching
// carrier wins, so ambiguous points resolve deterministically.
type Registry struct {
	defs []*Definition
	byID map[string]*Definition
}

func NewRegistry(defs ...*Definition) *Registry {
	r := &Registry{byID: make(map[string]*Definition, len(defs))}
	for _, d := range defs {
		if d == nil || d.ID == "" {
			continue
		}
		if _, dup := r.byID[d.ID]; dup {
			continue
		}
		r.defs = append(r.defs, d)
		r.byID[d.ID] = d
	}
	return r
}

func (r *Registry) All() []*Definition {
	out := make([]*Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

func (r *Registry) Get(id string) (*Definition, bool) {
	d, ok := r.byID[id]
	return d, ok
}

func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d.ID)
	}
	return out
}

// Classify determines the carrier of a point: an explicit, known carrier
// field is trusted; otherwise the classifier predicates run in registry
// order, then the identifier-token fallback in the same order.
func (r *Registry) Classify(p *models.Point) (string, bool) {
	if p == nil {
		return "", false
	}
	if p.Carrier != "" {
		if _, ok := r.byID[p.Carrier]; ok {
			return p.Carrier, true
		}
	}
	for _, d := range r.defs {
		if d.Classifier != nil && d.Classifier(p) {
			return d.ID, true
		}
	}
	for _, d := range r.defs {
		if d.matchesTokens(p) {
			return d.ID, true
		}
	}
	return "", false
}

// ColorFor returns the marker color for a carrier id, DefaultColor when
// the carrier is unknown or empty.
func (r *Registry) ColorFor(carrierID string) string {
	if d, ok := r.byID[carrierID]; ok && d.Color != "" {
		return d.Color
	}
	return DefaultColor
}
