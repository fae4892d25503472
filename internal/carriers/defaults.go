package carriers

import (
	"strings"

	"github.com/BearBump/PointBox/internal/models"
)

func nameContains(p *models.Point, subs ...string) bool {
	name := strings.ToLower(p.Name)
	for _, s := range subs {
		if strings.Contains(name, s) {
			return true
		}
	}
	return false
}

func typeContains(p *models.Point, subs ...string) bool {
	typ := strings.ToLower(p.Type)
	for _, s := range subs {
		if strings.Contains(typ, s) {
			return true
		}
	}
	return false
}

// Default returns the built-in carrier set. Registry order doubles as
// classification precedence, so keep inpost first: "Paczkomat InPost"
// style names must not fall through to other brands.
func Default() *Registry {
	return NewRegistry(
		&Definition{
			ID:       "inpost",
			Name:     "InPost",
			Color:    "#FFCC00",
			Logo:     "img/inpost-logo.png",
			Endpoint: "https://api.globkurier.pl/v1/points?productId=420",
			CountryEndpoints: map[string]string{
				"pl": "https://api.globkurier.pl/v1/points?productId=420",
				"fr": "https://api.globkurier.pl/v1/points?productId=3492&countryId=12",
			},
			Identifiers: []string{"inpost", "paczkomat"},
			Classifier: func(p *models.Point) bool {
				return typeContains(p, "inpost", "paczkomat")
			},
		},
		&Definition{
			ID:       "dpd",
			Name:     "DPD",
			Color:    "#DC0032",
			Logo:     "img/dpd-logo.png",
			Endpoint: "https://api.globkurier.pl/v1/points?productId=3341",
			CountryEndpoints: map[string]string{
				"pl": "https://api.globkurier.pl/v1/points?productId=3341",
			},
			Identifiers: []string{"dpd"},
			Classifier: func(p *models.Point) bool {
				return nameContains(p, "dpd")
			},
		},
		&Definition{
			ID:          "orlen",
			Name:        "Orlen",
			Color:       "#920015",
			Logo:        "img/orlen-logo.png",
			Endpoint:    "https://api.globkurier.pl/v1/points?productId=1987",
			Identifiers: []string{"orlen", "ruch"},
			Classifier: func(p *models.Point) bool {
				return nameContains(p, "orlen", "ruch")
			},
		},
		&Definition{
			ID:          "dhl",
			Name:        "DHL",
			Color:       "#FFCC00",
			Logo:        "img/dhl-logo.png",
			Endpoint:    "https://api.globkurier.pl/v1/points?productId=259",
			Identifiers: []string{"dhl"},
			Classifier: func(p *models.Point) bool {
				return nameContains(p, "dhl")
			},
		},
		&Definition{
			ID:          "pocztex",
			Name:        "Pocztex",
			Color:       "#e61614",
			Logo:        "img/pocztex-logo.png",
			Endpoint:    "https://api.globkurier.pl/v1/points?productId=2300",
			Identifiers: []string{"pocztex", "poczta"},
			Classifier: func(p *models.Point) bool {
				return nameContains(p, "pocztex", "poczta polska")
			},
		},
	)
}
