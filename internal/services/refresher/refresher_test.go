package refresher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BearBump/PointBox/internal/broker/messages"
	"github.com/BearBump/PointBox/internal/carriers"
	"github.com/BearBump/PointBox/internal/models"
)

type fakeSource struct {
	mu      sync.Mutex
	points  map[string][]*models.Point
	errFor  map[string]error
	fetched []string
}

func (f *fakeSource) FetchForCarrier(ctx context.Context, carrierID, countryCode string) ([]*models.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, carrierID)
	if err := f.errFor[carrierID]; err != nil {
		return nil, err
	}
	return f.points[carrierID], nil
}

type fakeProducer struct {
	mu     sync.Mutex
	topics []string
	keys   []string
	values [][]byte
	err    error
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, string(key))
	p.values = append(p.values, value)
	return nil
}

func (p *fakeProducer) byKey(key string) (messages.PointsRefreshed, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, k := range p.keys {
		if k == key {
			var msg messages.PointsRefreshed
			if json.Unmarshal(p.values[i], &msg) == nil {
				return msg, true
			}
		}
	}
	return messages.PointsRefreshed{}, false
}

func twoCarriers() *carriers.Registry {
	return carriers.NewRegistry(
		&carriers.Definition{ID: "inpost", Name: "InPost"},
		&carriers.Definition{ID: "dpd", Name: "DPD"},
	)
}

func TestRefreshOne_publishesBatch(t *testing.T) {
	src := &fakeSource{points: map[string][]*models.Point{
		"dpd": {{ID: "d1", Carrier: "dpd"}},
	}}
	fp := &fakeProducer{}
	r := New(twoCarriers(), src, fp, "points.refreshed")

	require.NoError(t, r.refreshOne(context.Background(), "dpd"))

	msg, ok := fp.byKey("dpd")
	require.True(t, ok)
	require.Equal(t, "points.refreshed", fp.topics[0])
	require.Equal(t, "dpd", msg.CarrierID)
	require.Equal(t, "pl", msg.CountryCode)
	require.Len(t, msg.Points, 1)
	require.Nil(t, msg.Error)
}

func TestRefreshOne_fetchErrorStillPublishes(t *testing.T) {
	src := &fakeSource{errFor: map[string]error{"dpd": errors.New("upstream down")}}
	fp := &fakeProducer{}
	r := New(twoCarriers(), src, fp, "points.refreshed")

	require.NoError(t, r.refreshOne(context.Background(), "dpd"))

	msg, ok := fp.byKey("dpd")
	require.True(t, ok)
	require.NotNil(t, msg.Error)
	require.Equal(t, "upstream down", *msg.Error)
	require.Empty(t, msg.Points)
}

func TestRunOnce_coversAllCarriers(t *testing.T) {
	src := &fakeSource{points: map[string][]*models.Point{
		"inpost": {{ID: "i1", Carrier: "inpost"}},
		"dpd":    {{ID: "d1", Carrier: "dpd"}, {ID: "d2", Carrier: "dpd"}},
	}}
	fp := &fakeProducer{}
	r := New(twoCarriers(), src, fp, "points.refreshed").
		WithSettings(time.Minute, 2, "pl")

	r.runOnce(context.Background())

	require.ElementsMatch(t, []string{"inpost", "dpd"}, src.fetched)
	require.Len(t, fp.keys, 2)

	st := r.Stats()
	require.Equal(t, int64(1), st.TotalCycles)
	require.Equal(t, int64(3), st.TotalFetched)
	require.Equal(t, int64(0), st.TotalErrors)
	require.NotNil(t, st.LastCycleAt)
}

func TestRunOnce_errorCounted(t *testing.T) {
	src := &fakeSource{}
	fp := &fakeProducer{err: errors.New("kafka down")}
	r := New(carriers.NewRegistry(&carriers.Definition{ID: "dpd", Name: "DPD"}), src, fp, "points.refreshed").
		WithSettings(time.Minute, 1, "pl")
	r.publishRetries = 1
	r.runOnce(context.Background())

	st := r.Stats()
	require.Equal(t, int64(1), st.TotalErrors)
	require.Equal(t, "kafka down", st.LastError)
}

func TestRefreshOne_cancelAbortsPublishRetries(t *testing.T) {
	src := &fakeSource{}
	fp := &fakeProducer{err: errors.New("kafka down")}
	r := New(carriers.NewRegistry(&carriers.Definition{ID: "dpd", Name: "DPD"}), src, fp, "points.refreshed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// With ten retries and growing sleeps the loop would otherwise run
	// for seconds, a cancelled context has to cut it short.
	start := time.Now()
	err := r.refreshOne(ctx, "dpd")
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second)
}

func TestTrigger_nonBlocking(t *testing.T) {
	r := New(twoCarriers(), &fakeSource{}, &fakeProducer{}, "t")
	r.Trigger()
	r.Trigger() // second one must not block on the full channel
	require.NotNil(t, r.Stats().LastTriggerAt)
}

func TestRun_stopsOnContextCancel(t *testing.T) {
	src := &fakeSource{}
	r := New(twoCarriers(), src, &fakeProducer{}, "t").
		WithSettings(5*time.Millisecond, 1, "pl")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	err := r.Run(ctx)
	require.Error(t, err)

	src.mu.Lock()
	defer src.mu.Unlock()
	require.GreaterOrEqual(t, len(src.fetched), 2)
}
