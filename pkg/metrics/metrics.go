package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Store metrics
	PostsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hazardfeed_posts_total",
			Help: "Total number of stored posts",
		},
	)

	ZonesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hazardfeed_zones_total",
			Help: "Number of zones in the current snapshot by category",
		},
		[]string{"category"},
	)

	// Ingestion metrics
	PostsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hazardfeed_posts_created_total",
			Help: "Total number of posts accepted",
		},
	)

	PostsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hazardfeed_posts_rejected_total",
			Help: "Total number of rejected submissions by reason",
		},
		[]string{"reason"},
	)

	AttachmentsUploaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hazardfeed_attachments_uploaded_total",
			Help: "Total number of attachments stored by media kind",
		},
		[]string{"kind"},
	)

	// Event metrics
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hazardfeed_events_published_total",
			Help: "Total number of events published by type",
		},
		[]string{"type"},
	)

	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hazardfeed_events_dropped_total",
			Help: "Events not delivered to a slow subscriber by overflow policy",
		},
		[]string{"policy"},
	)

	Subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hazardfeed_subscribers",
			Help: "Number of active live stream subscribers",
		},
	)

	// Zone refresh metrics
	ZoneRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hazardfeed_zone_refreshes_total",
			Help: "Total number of zone refreshes by result",
		},
		[]string{"result"},
	)

	ZoneRefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hazardfeed_zone_refresh_duration_seconds",
			Help:    "Time taken to fetch and commit a zone snapshot",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hazardfeed_api_requests_total",
			Help: "Total number of API requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hazardfeed_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Mirror metrics
	MirrorMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hazardfeed_mirror_messages_total",
			Help: "Events written to the mirror topic by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(PostsTotal)
	prometheus.MustRegister(ZonesTotal)
	prometheus.MustRegister(PostsCreated)
	prometheus.MustRegister(PostsRejected)
	prometheus.MustRegister(AttachmentsUploaded)
	prometheus.MustRegister(EventsPublished)
	prometheus.MustRegister(EventsDropped)
	prometheus.MustRegister(Subscribers)
	prometheus.MustRegister(ZoneRefreshes)
	prometheus.MustRegister(ZoneRefreshDuration)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(MirrorMessages)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
