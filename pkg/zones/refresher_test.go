package zones

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/hazardfeed/pkg/events"
	"github.com/cuemby/hazardfeed/pkg/storage"
	"github.com/cuemby/hazardfeed/pkg/types"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (p *recordingPublisher) Publish(ev *events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func (p *recordingPublisher) last() *events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

func newTestStore(t *testing.T) *storage.BoltStore {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func records(recs ...Record) Source {
	return SourceFunc(func(context.Context) (*Batch, error) {
		return &Batch{Records: recs}, nil
	})
}

func TestRefreshStaticSource(t *testing.T) {
	store := newTestStore(t)
	pub := &recordingPublisher{}
	r := NewRefresher(StaticSource{}, store, pub)

	zones, err := r.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, zones, 3)
	assert.Equal(t, types.Zone{Lat: 20.5937, Lng: 78.9629, RadiusM: 50000, Category: types.ZoneDanger}, zones[0])

	stored, err := store.ListZones()
	require.NoError(t, err)
	assert.Equal(t, zones, stored)

	require.Equal(t, 1, pub.count())
	ev := pub.last()
	assert.Equal(t, events.EventZoneUpdate, ev.Type)
	broadcast, err := ev.Zones()
	require.NoError(t, err)
	assert.Equal(t, zones, broadcast)
}

func TestRefreshCoercesUnknownCategory(t *testing.T) {
	store := newTestStore(t)
	pub := &recordingPublisher{}
	r := NewRefresher(records(
		Record{Lat: ptr(9.93), Lng: ptr(76.26), Radius: 20000, Type: "tsunami"},
		Record{Lat: ptr(13.08), Lon: ptr(80.27), RadiusM: 15000, Category: "Coastline", Label: " Marina "},
	), store, pub)

	zones, err := r.Refresh(context.Background())
	require.NoError(t, err)

	require.Len(t, zones, 2)
	assert.Equal(t, types.ZoneUnknown, zones[0].Category)
	assert.Equal(t, types.ZoneCoastline, zones[1].Category)
	assert.Equal(t, 80.27, zones[1].Lng)
	assert.Equal(t, 15000.0, zones[1].RadiusM)
	assert.Equal(t, "Marina", zones[1].Label)

	stored, err := store.ListZones()
	require.NoError(t, err)
	assert.Equal(t, types.ZoneUnknown, stored[0].Category)

	broadcast, err := pub.last().Zones()
	require.NoError(t, err)
	assert.Equal(t, types.ZoneUnknown, broadcast[0].Category)
}

func TestRefreshNetworkErrorKeepsSnapshot(t *testing.T) {
	store := newTestStore(t)
	pub := &recordingPublisher{}

	require.NoError(t, store.ReplaceZones([]types.Zone{{Lat: 1, Lng: 1, RadiusM: 10, Category: types.ZoneSafe}}))
	before, err := store.ListZones()
	require.NoError(t, err)

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	r := NewRefresher(NewFeedSource(url, time.Second), store, pub)
	_, err = r.Refresh(context.Background())
	assert.ErrorIs(t, err, types.ErrSourceUnavailable)

	after, err := store.ListZones()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Zero(t, pub.count())
}

func TestRefreshRejectsCorruptBatch(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
	}{
		{"missing lat", Record{Lng: ptr(1), Radius: 10}},
		{"missing lng", Record{Lat: ptr(1), Radius: 10}},
		{"lat out of range", Record{Lat: ptr(120), Lng: ptr(1), Radius: 10}},
		{"zero radius", Record{Lat: ptr(1), Lng: ptr(1)}},
		{"negative radius", Record{Lat: ptr(1), Lng: ptr(1), Radius: -5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			pub := &recordingPublisher{}
			prev := []types.Zone{{Lat: 5, Lng: 5, RadiusM: 100, Category: types.ZoneWarning}}
			require.NoError(t, store.ReplaceZones(prev))

			good := Record{Lat: ptr(2), Lng: ptr(2), Radius: 10, Type: "danger"}
			r := NewRefresher(records(good, tt.rec), store, pub)

			_, err := r.Refresh(context.Background())
			assert.ErrorIs(t, err, types.ErrSourceUnavailable)

			after, err := store.ListZones()
			require.NoError(t, err)
			assert.Equal(t, prev, after)
			assert.Zero(t, pub.count())
		})
	}
}

func TestRefreshEmptyBatchClearsSnapshot(t *testing.T) {
	store := newTestStore(t)
	pub := &recordingPublisher{}
	require.NoError(t, store.ReplaceZones([]types.Zone{{Lat: 5, Lng: 5, RadiusM: 100}}))

	r := NewRefresher(records(), store, pub)
	zones, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Empty(t, zones)

	stored, err := store.ListZones()
	require.NoError(t, err)
	assert.Empty(t, stored)
	require.Equal(t, 1, pub.count())
	assert.JSONEq(t, `[]`, string(pub.last().Payload))
}

type failingZoneStore struct{ storage.ZoneStore }

func (failingZoneStore) ReplaceZones([]types.Zone) error { return errors.New("disk full") }

func TestRefreshStorageFailure(t *testing.T) {
	pub := &recordingPublisher{}
	r := NewRefresher(StaticSource{}, failingZoneStore{}, pub)

	_, err := r.Refresh(context.Background())
	assert.ErrorIs(t, err, types.ErrStorage)
	assert.Zero(t, pub.count())
}

func TestRefreshAlerts(t *testing.T) {
	store := newTestStore(t)
	pub := &recordingPublisher{}
	src := SourceFunc(func(context.Context) (*Batch, error) {
		return &Batch{Alerts: []string{
			"High Wave Alert for the coast of Kerala and Tamil Nadu",
			"Swell surge expected in the Lakshadweep islands",
			"Ocean state normal in the Arabian Sea",
		}}, nil
	})
	r := NewRefresher(src, store, pub, WithClassifier(NewClassifier(nil, 25000)))

	zones, err := r.Refresh(context.Background())
	require.NoError(t, err)

	require.Len(t, zones, 3)
	assert.Contains(t, zones[0].Label, "Kerala")
	assert.Contains(t, zones[1].Label, "Tamil Nadu")
	assert.Contains(t, zones[2].Label, "Lakshadweep")
	for _, z := range zones {
		assert.Equal(t, types.ZoneWarning, z.Category)
		assert.Equal(t, 25000.0, z.RadiusM)
	}
}

func TestRefreshUnplacedAlerts(t *testing.T) {
	tests := []struct {
		name      string
		alerts    []string
		wantErr   bool
		wantZones int
	}{
		{"active alert with no region keeps snapshot", []string{"High Wave Alert: swell waves of 3.5m expected along the west coast"}, true, 0},
		{"all clear with no region clears snapshot", []string{"High wave alert withdrawn for all coasts"}, false, 0},
		{"one placed alert is enough", []string{"High Wave Alert along the west coast", "High Wave Alert for Goa"}, false, 1},
		{"konkan coast is placed", []string{"High Wave Alert: swell waves of 3.5m expected along the Konkan coast"}, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			pub := &recordingPublisher{}
			r := NewRefresher(StaticSource{}, store, pub)
			before, err := r.Refresh(context.Background())
			require.NoError(t, err)

			r.source = SourceFunc(func(context.Context) (*Batch, error) {
				return &Batch{Alerts: tt.alerts}, nil
			})
			zones, err := r.Refresh(context.Background())

			stored, listErr := store.ListZones()
			require.NoError(t, listErr)
			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrSourceUnavailable)
				assert.Equal(t, before, stored)
				assert.Equal(t, 1, pub.count())
				return
			}
			require.NoError(t, err)
			assert.Len(t, zones, tt.wantZones)
			assert.Len(t, stored, tt.wantZones)
			assert.Equal(t, 2, pub.count())
		})
	}
}

func TestRefreshIsSerialized(t *testing.T) {
	store := newTestStore(t)
	pub := &recordingPublisher{}

	var active, peak atomic.Int32
	src := SourceFunc(func(ctx context.Context) (*Batch, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return StaticSource{}.Fetch(ctx)
	})
	r := NewRefresher(src, store, pub)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Refresh(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	assert.Equal(t, 5, pub.count())
}

func TestRefreshFetchTimeout(t *testing.T) {
	store := newTestStore(t)
	pub := &recordingPublisher{}
	src := SourceFunc(func(ctx context.Context) (*Batch, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	r := NewRefresher(src, store, pub, WithFetchTimeout(10*time.Millisecond))

	_, err := r.Refresh(context.Background())
	assert.ErrorIs(t, err, types.ErrSourceUnavailable)
	assert.Zero(t, pub.count())
}

func TestRunRefreshesOnTick(t *testing.T) {
	store := newTestStore(t)
	pub := &recordingPublisher{}
	clock := clockwork.NewFakeClock()

	var calls atomic.Int32
	src := SourceFunc(func(ctx context.Context) (*Batch, error) {
		calls.Add(1)
		return StaticSource{}.Fetch(ctx)
	})
	r := NewRefresher(src, store, pub, WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, time.Minute)
		close(done)
	}()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
