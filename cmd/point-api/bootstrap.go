package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/PointBox/config"
	"github.com/BearBump/PointBox/internal/broker/kafka"
	"github.com/BearBump/PointBox/internal/cache/rediscache"
	"github.com/BearBump/PointBox/internal/carriers"
	"github.com/BearBump/PointBox/internal/geo"
	"github.com/BearBump/PointBox/internal/integrations/aggregator"
	"github.com/BearBump/PointBox/internal/integrations/nominatim"
	"github.com/BearBump/PointBox/internal/render"
	"github.com/BearBump/PointBox/internal/services/points"
	"github.com/BearBump/PointBox/internal/snapshot"
	"github.com/BearBump/PointBox/internal/store"
)

type pointAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     pointAPIOpts
	cfg      *config.Config
	registry *carriers.Registry
	svc      *points.Service
	consumer *kafka.Consumer
}

func mustBootstrapPointAPI() *pointAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	httpAddr := cfg.PointBox.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.PointBox.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "point-api"
	}
	refreshTopic := cfg.Kafka.PointsRefreshedTopicName
	if refreshTopic == "" {
		refreshTopic = "points.refreshed"
	}
	selectedTopic := cfg.Kafka.PointSelectedTopicName
	if selectedTopic == "" {
		selectedTopic = "points.selected"
	}
	country := cfg.PointBox.DefaultCountry
	if country == "" {
		country = "pl"
	}
	cacheTTL := time.Duration(cfg.PointBox.EndpointCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	throttleWindow := time.Duration(cfg.PointBox.ViewportThrottleSeconds) * time.Second
	if throttleWindow <= 0 {
		throttleWindow = 2 * time.Second
	}
	maxMarkers := cfg.PointBox.MaxMarkers
	if maxMarkers <= 0 {
		maxMarkers = 5000
	}
	batchSize := cfg.PointBox.MarkerBatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}
	detailZoom := cfg.PointBox.DetailZoom
	if detailZoom <= 0 {
		detailZoom = 10
	}
	disableClusteringAtZoom := cfg.PointBox.DisableClusteringAtZoom
	if disableClusteringAtZoom <= 0 {
		disableClusteringAtZoom = 14
	}
	snapVersion := cfg.PointBox.SnapshotVersion
	if snapVersion == "" {
		snapVersion = "1.0"
	}

	registry := cfg.CarrierRegistry()

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	respCache := rediscache.New(redisAddr)
	throttle := rediscache.NewThrottle(redisAddr)

	source := aggregator.New(registry).WithCache(respCache, cacheTTL)
	geocoder := nominatim.New(cfg.PointBox.GeocodingURL, cfg.PointBox.GeocodingLimit)
	renderer := render.NewPipeline(registry, maxMarkers, batchSize, detailZoom, disableClusteringAtZoom).
		WithRand(rand.New(rand.NewSource(time.Now().UnixNano())))
	codec := snapshot.NewCodec(snapVersion, cfg.PointBox.AppVersion)

	nearestOpts := geo.DefaultNearestOptions()
	if cfg.PointBox.NearestLatDelta > 0 {
		nearestOpts.LatDelta = cfg.PointBox.NearestLatDelta
	}
	if cfg.PointBox.NearestLngDelta > 0 {
		nearestOpts.LngDelta = cfg.PointBox.NearestLngDelta
	}

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)
	consumer := kafka.NewConsumer(brokers, refreshTopic, consumerGroup)

	svc := points.New(registry, store.New(), source).
		WithProducer(producer, selectedTopic).
		WithGeocoder(geocoder).
		WithRenderer(renderer).
		WithThrottle(throttle, throttleWindow).
		WithSnapshotCodec(codec).
		WithDefaultCountry(country).
		WithNearest(cfg.PointBox.NearestLimit, nearestOpts)

	// Warm start from the last snapshot when one is around. The kafka
	// consumer replaces it batch by batch as refreshes come in.
	if path := os.Getenv("snapshotPath"); path != "" {
		if n, err := svc.LoadSnapshot(path); err != nil {
			slog.Warn("snapshot preload failed", "path", path, "error", err)
		} else {
			slog.Info("snapshot preloaded", "path", path, "points", n)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &pointAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: pointAPIOpts{
			httpAddr:      httpAddr,
			topic:         refreshTopic,
			consumerGroup: consumerGroup,
			views:         config.DefaultViews(),
			country:       country,
		},
		cfg:      cfg,
		registry: registry,
		svc:      svc,
		consumer: consumer,
	}
}

func (a *pointAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
}

func (a *pointAPIApp) Run() error {
	return runPointAPI(a.ctx, a.opts, a.svc, a.registry, a.consumer)
}
