package api

import (
	"net/http"

	"github.com/cuemby/hazardfeed/pkg/events"
	"github.com/cuemby/hazardfeed/pkg/metrics"
	"github.com/cuemby/hazardfeed/pkg/storage"
)

// HealthServer provides HTTP health check endpoints
type HealthServer struct {
	store  storage.ZoneStore
	broker *events.Broker
}

// NewHealthServer creates the health endpoints. Readiness checks the store
// with a cheap read before reporting.
func NewHealthServer(store storage.ZoneStore, broker *events.Broker) *HealthServer {
	return &HealthServer{store: store, broker: broker}
}

// Register mounts /health, /ready, /live and /metrics on mux
func (hs *HealthServer) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", getOnly(hs.healthHandler))
	mux.HandleFunc("/ready", getOnly(hs.readyHandler))
	mux.HandleFunc("/live", getOnly(metrics.LivenessHandler()))
	mux.Handle("/metrics", metrics.Handler())
}

func getOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

// healthHandler reports overall health including non-critical components
func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	hs.check()
	metrics.HealthHandler()(w, r)
}

// readyHandler reports whether the service can take traffic
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	hs.check()
	metrics.ReadyHandler()(w, r)
}

func (hs *HealthServer) check() {
	if hs.store == nil {
		metrics.UpdateComponent(metrics.ComponentStorage, false, "not initialized")
	} else if _, err := hs.store.ListZones(); err != nil {
		metrics.UpdateComponent(metrics.ComponentStorage, false, err.Error())
	} else {
		metrics.UpdateComponent(metrics.ComponentStorage, true, "")
	}

	switch {
	case hs.broker == nil:
		metrics.UpdateComponent(metrics.ComponentEvents, false, "not initialized")
	case hs.broker.Stopped():
		metrics.UpdateComponent(metrics.ComponentEvents, false, "broker stopped")
	default:
		metrics.UpdateComponent(metrics.ComponentEvents, true, "")
	}
}
