package config

import (
	"fmt"
	"os"

	"github.com/BearBump/PointBox/internal/carriers"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Kafka    KafkaConfig     `yaml:"kafka"`
	Redis    RedisConfig     `yaml:"redis"`
	PointBox PointBoxConfig  `yaml:"pointbox"`
	Carriers []CarrierConfig `yaml:"carriers"`
}

type KafkaConfig struct {
	Host                     string `yaml:"host"`
	Port                     int    `yaml:"port"`
	PointsRefreshedTopicName string `yaml:"points_refreshed_topic_name"`
	PointSelectedTopicName   string `yaml:"point_selected_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type PointBoxConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	DefaultCountry string `yaml:"default_country"`

	// Endpoint response caching + viewport-load throttling (redis).
	EndpointCacheTTLSeconds int `yaml:"endpoint_cache_ttl_seconds"`
	ViewportThrottleSeconds int `yaml:"viewport_throttle_seconds"`

	// Render limits.
	MaxMarkers              int `yaml:"max_markers"`
	MarkerBatchSize         int `yaml:"marker_batch_size"`
	DetailZoom              int `yaml:"detail_zoom"`
	DisableClusteringAtZoom int `yaml:"disable_clustering_at_zoom"`

	// Search / geocoding.
	GeocodingURL    string  `yaml:"geocoding_url"`
	GeocodingLimit  int     `yaml:"geocoding_limit"`
	NearestLimit    int     `yaml:"nearest_limit"`
	NearestLatDelta float64 `yaml:"nearest_lat_delta"`
	NearestLngDelta float64 `yaml:"nearest_lng_delta"`

	// Snapshot files.
	SnapshotVersion string `yaml:"snapshot_version"`
	AppVersion      string `yaml:"app_version"`

	// Refresher worker.
	RefresherHTTPAddr        string `yaml:"refresher_http_addr"`
	RefresherIntervalSeconds int    `yaml:"refresher_interval_seconds"`
	RefresherConcurrency     int    `yaml:"refresher_concurrency"`
}

// CarrierConfig overrides the built-in carrier set from YAML. Classifier
// predicates cannot be expressed in YAML, so file-defined carriers match
// by identifier tokens only (known ids inherit the built-in predicate).
type CarrierConfig struct {
	ID               string            `yaml:"id"`
	Name             string            `yaml:"name"`
	Color            string            `yaml:"color"`
	Logo             string            `yaml:"logo"`
	Endpoint         string            `yaml:"endpoint"`
	CountryEndpoints map[string]string `yaml:"country_endpoints"`
	Identifiers      []string          `yaml:"identifiers"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}

// CarrierRegistry builds the carrier registry: YAML carriers when present,
// otherwise the built-in defaults. YAML order defines classification
// precedence, same as the default set.
func (c *Config) CarrierRegistry() *carriers.Registry {
	if len(c.Carriers) == 0 {
		return carriers.Default()
	}
	defaults := carriers.Default()
	defs := make([]*carriers.Definition, 0, len(c.Carriers))
	for _, cc := range c.Carriers {
		d := &carriers.Definition{
			ID:               cc.ID,
			Name:             cc.Name,
			Color:            cc.Color,
			Logo:             cc.Logo,
			Endpoint:         cc.Endpoint,
			CountryEndpoints: cc.CountryEndpoints,
			Identifiers:      cc.Identifiers,
		}
		if base, ok := defaults.Get(cc.ID); ok {
			d.Classifier = base.Classifier
			if d.Color == "" {
				d.Color = base.Color
			}
			if len(d.Identifiers) == 0 {
				d.Identifiers = base.Identifiers
			}
		}
		defs = append(defs, d)
	}
	return carriers.NewRegistry(defs...)
}

// View is an initial map view for a country selection.
type View struct {
	CenterLat float64 `json:"centerLat"`
	CenterLng float64 `json:"centerLng"`
	Zoom      int     `json:"zoom"`
}

// DefaultViews mirrors the per-country start views of the map widget.
func DefaultViews() map[string]View {
	return map[string]View{
		"pl":    {CenterLat: 52.0, CenterLng: 19.0, Zoom: 6},
		"fr":    {CenterLat: 46.6, CenterLng: 2.5, Zoom: 6},
		"other": {CenterLat: 47.0, CenterLng: 2.0, Zoom: 5},
		"all":   {CenterLat: 50.0, CenterLng: 10.0, Zoom: 4},
	}
}
