/*
Package metrics provides Prometheus metrics and health checks for hazardfeed.

All metrics are package-level collectors registered with the default
Prometheus registry in init and exposed by Handler on /metrics.

# Metrics

Store:
  - hazardfeed_posts_total: stored posts (sampled by Collector)
  - hazardfeed_zones_total{category}: zones in the current snapshot

Ingestion:
  - hazardfeed_posts_created_total
  - hazardfeed_posts_rejected_total{reason}: validation, auth, storage
  - hazardfeed_attachments_uploaded_total{kind}

Live events:
  - hazardfeed_events_published_total{type}: new-post, zone-update
  - hazardfeed_events_dropped_total{policy}: drop-oldest, disconnect
  - hazardfeed_subscribers

Zone refresh:
  - hazardfeed_zone_refreshes_total{result}: ok, source_unavailable, storage_error
  - hazardfeed_zone_refresh_duration_seconds

API:
  - hazardfeed_api_requests_total{method,route,status}
  - hazardfeed_api_request_duration_seconds{method,route}

Mirror:
  - hazardfeed_mirror_messages_total{result}

# Timing

	timer := metrics.NewTimer()
	zones, err := refresher.Refresh(ctx)
	timer.ObserveDuration(metrics.ZoneRefreshDuration)

# Health

Components report their state with RegisterComponent and UpdateComponent.
storage, events and api are critical: if any of them is missing or
unhealthy, /ready returns 503 and /health reports "unhealthy". Other
components (zones, mirror) only mark the service "degraded", since the map
and feed keep working from the last snapshot while the hazard source is
down.

	GET /health  overall status with per-component detail
	GET /ready   readiness for load balancers
	GET /live    process liveness, always 200
*/
package metrics
