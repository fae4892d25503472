// Package refresher is the worker loop that periodically refetches every
// carrier's points and publishes the batches to the refresh topic.
package refresher

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/PointBox/internal/broker/messages"
	"github.com/BearBump/PointBox/internal/carriers"
	"github.com/BearBump/PointBox/internal/models"
)

type Source interface {
	FetchForCarrier(ctx context.Context, carrierID, countryCode string) ([]*models.Point, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Refresher struct {
	registry *carriers.Registry
	source   Source
	producer Producer

	topic string

	interval    time.Duration
	concurrency int
	country     string

	triggerCh      chan struct{}
	publishRetries int

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalCycles         atomic.Int64
	totalFetched        atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(registry *carriers.Registry, source Source, producer Producer, topic string) *Refresher {
	return &Refresher{
		registry:          registry,
		source:            source,
		producer:          producer,
		topic:             topic,
		interval:          15 * time.Minute,
		concurrency:       3,
		country:           "pl",
		triggerCh:         make(chan struct{}, 1),
		publishRetries:    10,
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (r *Refresher) WithSettings(interval time.Duration, concurrency int, country string) *Refresher {
	if interval > 0 {
		r.interval = interval
	}
	if concurrency > 0 {
		r.concurrency = concurrency
	}
	if country != "" {
		r.country = country
	}
	return r
}

// Trigger forces an immediate refresh cycle (best-effort, non-blocking).
func (r *Refresher) Trigger() {
	r.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case r.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt     time.Time  `json:"startedAt"`
	LastCycleAt   *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt *time.Time `json:"lastTriggerAt,omitempty"`
	TotalCycles   int64      `json:"totalCycles"`
	TotalFetched  int64      `json:"totalFetched"`
	TotalErrors   int64      `json:"totalErrors"`
	InFlight      int64      `json:"inFlight"`
	LastError     string     `json:"lastError,omitempty"`
}

func (r *Refresher) Stats() Stats {
	st := Stats{
		StartedAt:    time.Unix(0, r.startedAtUnixNano).UTC(),
		TotalCycles:  r.totalCycles.Load(),
		TotalFetched: r.totalFetched.Load(),
		TotalErrors:  r.totalErrors.Load(),
		InFlight:     r.inFlight.Load(),
	}
	if n := r.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := r.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	r.lastErrorMu.Lock()
	st.LastError = r.lastError
	r.lastErrorMu.Unlock()
	return st
}

func (r *Refresher) Run(ctx context.Context) error {
	// First cycle right away so a fresh deployment has points without
	// waiting a full interval.
	r.runOnce(ctx)

	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			r.runOnce(ctx)
		case <-r.triggerCh:
			r.runOnce(ctx)
		}
	}
}

func (r *Refresher) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	r.lastCycleUnixNano.Store(now.UnixNano())
	r.totalCycles.Add(1)

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	for _, id := range r.registry.IDs() {
		sem <- struct{}{}
		wg.Add(1)
		carrierID := id
		r.inFlight.Add(1)
		go func() {
			defer func() {
				r.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := r.refreshOne(ctx, carrierID); err != nil {
				r.totalErrors.Add(1)
				r.lastErrorMu.Lock()
				r.lastError = err.Error()
				r.lastErrorMu.Unlock()
				slog.Error("refresh carrier", "carrier", carrierID, "error", err.Error())
			}
		}()
	}
	wg.Wait()
}

func (r *Refresher) refreshOne(ctx context.Context, carrierID string) error {
	now := time.Now().UTC()

	pts, err := r.source.FetchForCarrier(ctx, carrierID, r.country)
	msg := messages.PointsRefreshed{
		CarrierID:   carrierID,
		CountryCode: r.country,
		FetchedAt:   now,
		Points:      pts,
	}
	if err != nil {
		// The batch still goes out so the consumer can log the failure;
		// an errored empty batch never replaces existing points there.
		e := err.Error()
		msg.Error = &e
	} else {
		r.totalFetched.Add(int64(len(pts)))
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal kafka msg")
	}

	// Kafka may not be ready right after a compose start, retry briefly.
	var pubErr error
	for i := 0; i < r.publishRetries; i++ {
		if pubErr = r.producer.Publish(ctx, r.topic, []byte(carrierID), b); pubErr == nil {
			break
		}
		select {
		case <-ctx.Done():
			return pubErr
		case <-time.After(time.Duration(150*(i+1)) * time.Millisecond):
		}
	}
	return pubErr
}
