package main

import (
	"context"
	"fmt"
	"time"

	"github.com/BearBump/PointBox/config"
	"github.com/BearBump/PointBox/internal/broker/kafka"
	"github.com/BearBump/PointBox/internal/cache/rediscache"
	"github.com/BearBump/PointBox/internal/carriers"
	"github.com/BearBump/PointBox/internal/integrations/aggregator"
	"github.com/BearBump/PointBox/internal/services/refresher"
)

type refresherFactories struct {
	newSource   func(cfg *config.Config, registry *carriers.Registry) refresher.Source
	newProducer func(cfg *config.Config) refresher.Producer
}

func defaultRefresherFactories() refresherFactories {
	return refresherFactories{
		newSource: func(cfg *config.Config, registry *carriers.Registry) refresher.Source {
			client := aggregator.New(registry)
			cacheTTL := time.Duration(cfg.PointBox.EndpointCacheTTLSeconds) * time.Second
			if cacheTTL > 0 {
				redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
				client = client.WithCache(rediscache.New(redisAddr), cacheTTL)
			}
			return client
		},
		newProducer: func(cfg *config.Config) refresher.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
	}
}

func RunPointRefresher(ctx context.Context, cfg *config.Config, f refresherFactories) error {
	topic := cfg.Kafka.PointsRefreshedTopicName
	if topic == "" {
		topic = "points.refreshed"
	}

	interval := time.Duration(cfg.PointBox.RefresherIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	concurrency := cfg.PointBox.RefresherConcurrency
	if concurrency <= 0 {
		concurrency = 3
	}
	country := cfg.PointBox.DefaultCountry
	if country == "" {
		country = "pl"
	}

	registry := cfg.CarrierRegistry()
	source := f.newSource(cfg, registry)
	producer := f.newProducer(cfg)

	r := refresher.New(registry, source, producer, topic).
		WithSettings(interval, concurrency, country)

	runErr := make(chan error, 1)
	go func() {
		runErr <- r.Run(ctx)
	}()

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runRefresherHTTPServer(ctx, refresherHTTPOpts{
			httpAddr:  cfg.PointBox.RefresherHTTPAddr,
			refresher: r,
			cfg:       cfg,
		})
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-runErr:
		return err
	case err := <-httpErr:
		return err
	}
}
