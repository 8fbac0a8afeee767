// Package zones keeps the hazard zone snapshot in sync with an upstream
// source and announces every new snapshot on the event channel.
package zones

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/cuemby/hazardfeed/pkg/events"
	"github.com/cuemby/hazardfeed/pkg/log"
	"github.com/cuemby/hazardfeed/pkg/metrics"
	"github.com/cuemby/hazardfeed/pkg/storage"
	"github.com/cuemby/hazardfeed/pkg/types"
)

// DefaultFetchTimeout bounds a single upstream fetch
const DefaultFetchTimeout = 15 * time.Second

// Refresher fetches, coerces, commits and publishes zone snapshots. At most
// one refresh runs at a time; concurrent callers queue behind it.
type Refresher struct {
	source     Source
	store      storage.ZoneStore
	publisher  events.Publisher
	classifier *Classifier
	clock      clockwork.Clock
	timeout    time.Duration
	logger     zerolog.Logger

	mu sync.Mutex
}

// Option configures a Refresher
type Option func(*Refresher)

// WithClock sets the clock driving Run
func WithClock(clock clockwork.Clock) Option {
	return func(r *Refresher) { r.clock = clock }
}

// WithFetchTimeout overrides DefaultFetchTimeout
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Refresher) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithClassifier sets the classifier used for free-text alerts
func WithClassifier(c *Classifier) Option {
	return func(r *Refresher) { r.classifier = c }
}

// NewRefresher creates a refresher
func NewRefresher(source Source, store storage.ZoneStore, publisher events.Publisher, opts ...Option) *Refresher {
	r := &Refresher{
		source:    source,
		store:     store,
		publisher: publisher,
		clock:     clockwork.NewRealClock(),
		timeout:   DefaultFetchTimeout,
		logger:    log.WithComponent("zones"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.classifier == nil {
		r.classifier = NewClassifier(nil, 0)
	}
	return r
}

// Refresh replaces the stored snapshot with a fresh one from the source and
// publishes a zone-update event carrying it. If the source fails or returns
// corrupt data the previous snapshot is kept, nothing is published and the
// error wraps types.ErrSourceUnavailable.
func (r *Refresher) Refresh(ctx context.Context) ([]types.Zone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ZoneRefreshDuration)

	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	batch, err := r.source.Fetch(fetchCtx)
	cancel()
	if err != nil {
		return nil, r.fail(fmt.Errorf("%w: %v", types.ErrSourceUnavailable, err))
	}

	zones, err := r.coerce(batch)
	if err != nil {
		return nil, r.fail(err)
	}

	if err := r.store.ReplaceZones(zones); err != nil {
		metrics.ZoneRefreshes.WithLabelValues("storage_error").Inc()
		r.logger.Error().Err(err).Msg("failed to commit zone snapshot")
		return nil, fmt.Errorf("%w: failed to commit zones: %v", types.ErrStorage, err)
	}

	metrics.ZoneRefreshes.WithLabelValues("ok").Inc()
	metrics.SetZoneCounts(zones)
	metrics.UpdateComponent(metrics.ComponentZones, true, "")

	ev, err := events.NewZoneEvent(zones)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to build zone-update event")
		return zones, nil
	}
	r.publisher.Publish(ev)

	r.logger.Info().
		Int("zones", len(zones)).
		Dur("took", timer.Duration()).
		Msg("zone snapshot replaced")
	return zones, nil
}

func (r *Refresher) fail(err error) error {
	metrics.ZoneRefreshes.WithLabelValues("source_unavailable").Inc()
	metrics.UpdateComponent(metrics.ComponentZones, false, "hazard source unavailable")
	r.logger.Warn().Err(err).Msg("zone refresh failed, keeping previous snapshot")
	return err
}

// coerce maps a batch onto the zone schema. Unknown categories become
// ZoneUnknown; a record without a usable position or radius fails the
// whole batch. Alerts naming no known region are skipped, but if none of a
// batch's active alerts can be placed the batch fails.
func (r *Refresher) coerce(batch *Batch) ([]types.Zone, error) {
	if batch == nil {
		return nil, fmt.Errorf("%w: empty response", types.ErrSourceUnavailable)
	}

	zones := make([]types.Zone, 0, len(batch.Records)+len(batch.Alerts))
	for i, rec := range batch.Records {
		z, err := coerceRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", types.ErrSourceUnavailable, i, err)
		}
		zones = append(zones, z)
	}

	unplaced := 0
	for _, alert := range batch.Alerts {
		placed := r.classifier.Classify(alert)
		if len(placed) > 0 {
			zones = append(zones, placed...)
			continue
		}
		if r.classifier.Category(alert) != types.ZoneSafe {
			unplaced++
		}
		r.logger.Debug().Str("alert", alert).Msg("alert names no known region, skipped")
	}

	// An active alert must never turn into an empty snapshot.
	if len(zones) == 0 && unplaced > 0 {
		return nil, fmt.Errorf("%w: %d alerts name no known region", types.ErrSourceUnavailable, unplaced)
	}
	return zones, nil
}

var errCorrupt = errors.New("corrupt record")

func coerceRecord(rec Record) (types.Zone, error) {
	lng := rec.Lng
	if lng == nil {
		lng = rec.Lon
	}
	if rec.Lat == nil || lng == nil {
		return types.Zone{}, fmt.Errorf("%w: missing position", errCorrupt)
	}

	pos := types.Coordinates{Lat: *rec.Lat, Lng: *lng}
	if !pos.Valid() {
		return types.Zone{}, fmt.Errorf("%w: position out of range", errCorrupt)
	}

	radius := rec.RadiusM
	if radius == 0 {
		radius = rec.Radius
	}
	if !(radius > 0) || math.IsInf(radius, 0) {
		return types.Zone{}, fmt.Errorf("%w: radius must be positive", errCorrupt)
	}

	category := rec.Category
	if category == "" {
		category = rec.Type
	}

	return types.Zone{
		Lat:      pos.Lat,
		Lng:      pos.Lng,
		RadiusM:  radius,
		Category: types.ParseZoneCategory(category),
		Label:    strings.TrimSpace(rec.Label),
	}, nil
}

// Run refreshes once immediately and then every interval until ctx is
// done. Failures are logged; the next tick retries.
func (r *Refresher) Run(ctx context.Context, interval time.Duration) {
	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()

	r.refreshLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.refreshLogged(ctx)
		}
	}
}

func (r *Refresher) refreshLogged(ctx context.Context) {
	if _, err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
		r.logger.Debug().Err(err).Msg("scheduled refresh failed")
	}
}
