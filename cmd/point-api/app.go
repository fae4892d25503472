package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/BearBump/PointBox/config"
	"github.com/BearBump/PointBox/internal/api/pointsapi"
	"github.com/BearBump/PointBox/internal/carriers"
	"github.com/BearBump/PointBox/internal/services/points"
)

type pointAPIOpts struct {
	httpAddr string

	topic         string
	consumerGroup string

	views   map[string]config.View
	country string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

func runPointAPI(ctx context.Context, opts pointAPIOpts, svc *points.Service, registry *carriers.Registry, consumer kafkaConsumer) error {
	api := pointsapi.New(svc, registry).WithViews(opts.views, opts.country)

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: api.Router()}

	httpErr := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", lis.Addr().String())
		httpErr <- srv.Serve(lis)
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if consumer != nil {
		go func() {
			slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
			_ = consumer.Consume(ctx, func(key, value []byte) error {
				return svc.ApplyRefreshMessage(key, value)
			})
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		if err == http.ErrServerClosed {
			return ctx.Err()
		}
		return err
	}
}
