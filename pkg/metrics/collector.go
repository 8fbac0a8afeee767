package metrics

import (
	"time"

	"github.com/cuemby/hazardfeed/pkg/log"
	"github.com/cuemby/hazardfeed/pkg/types"
)

// Source exposes the store counts sampled by the Collector
type Source interface {
	CountPosts() (int, error)
	ListZones() ([]types.Zone, error)
}

// Collector periodically samples store state into gauges
type Collector struct {
	source   Source
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source Source, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

// Collect samples the store once
func (c *Collector) Collect() {
	logger := log.WithComponent("metrics")

	if n, err := c.source.CountPosts(); err != nil {
		logger.Warn().Err(err).Msg("failed to count posts")
	} else {
		PostsTotal.Set(float64(n))
	}

	zones, err := c.source.ListZones()
	if err != nil {
		logger.Warn().Err(err).Msg("failed to list zones")
		return
	}
	SetZoneCounts(zones)
}

// SetZoneCounts replaces the per-category zone gauge with counts from zones
func SetZoneCounts(zones []types.Zone) {
	counts := map[types.ZoneCategory]int{
		types.ZoneDanger:    0,
		types.ZoneWarning:   0,
		types.ZoneSafe:      0,
		types.ZoneCoastline: 0,
		types.ZoneUnknown:   0,
	}
	for _, z := range zones {
		counts[types.ParseZoneCategory(string(z.Category))]++
	}
	for category, n := range counts {
		ZonesTotal.WithLabelValues(string(category)).Set(float64(n))
	}
}
