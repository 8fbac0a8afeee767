package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/hazardfeed/pkg/log"
	"github.com/cuemby/hazardfeed/pkg/types"
	"github.com/cuemby/hazardfeed/pkg/zones"
)

const defaultDisasterDescription = "No description"

// disasterRequest is the body of POST /api/disasters. Lat and lon are
// pointers so that a missing coordinate is told apart from zero.
type disasterRequest struct {
	Type        string   `json:"type"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
	Description string   `json:"desc"`
}

func (req disasterRequest) validate() error {
	if strings.TrimSpace(req.Type) == "" || req.Lat == nil || req.Lon == nil {
		return fmt.Errorf("%w: type, lat and lon are required", types.ErrValidation)
	}
	if !(types.Coordinates{Lat: *req.Lat, Lng: *req.Lon}).Valid() {
		return fmt.Errorf("%w: coordinates out of range", types.ErrValidation)
	}
	return nil
}

// listDisasters handles GET /api/disasters
func (s *Server) listDisasters(w http.ResponseWriter, r *http.Request) {
	disasters, err := s.store.ListDisasters()
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", types.ErrStorage, err))
		return
	}
	writeJSON(w, http.StatusOK, disasters)
}

// addDisaster handles POST /api/disasters. Markers are placed by official
// accounts.
func (s *Server) addDisaster(w http.ResponseWriter, r *http.Request, claims *types.Claims) {
	var req disasterRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, r, bodyError(err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, err)
		return
	}

	d := &types.Disaster{
		ID:          uuid.New().String(),
		Type:        strings.TrimSpace(req.Type),
		Lat:         *req.Lat,
		Lon:         *req.Lon,
		Description: strings.TrimSpace(req.Description),
		AddedBy:     claims.UserID,
		CreatedAt:   time.Now().UTC(),
	}
	if d.Description == "" {
		d.Description = defaultDisasterDescription
	}

	if err := s.store.CreateDisaster(d); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", types.ErrStorage, err))
		return
	}

	log.FromContext(r.Context()).Info().
		Str("disaster_id", d.ID).
		Str("type", d.Type).
		Str("added_by", claims.UserID).
		Msg("disaster marker added")
	writeJSON(w, http.StatusCreated, d)
}

// bulletin handles GET /api/hwa, the raw High Wave Alert text
func (s *Server) bulletin(w http.ResponseWriter, r *http.Request) {
	if s.bulletins == nil {
		writeError(w, r, fmt.Errorf("%w: no bulletin source configured", types.ErrSourceUnavailable))
		return
	}
	b, err := s.bulletins.get(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// bulletinCache fetches the alert bulletin at most once per ttl. Concurrent
// requests for a stale bulletin share one upstream fetch.
type bulletinCache struct {
	source zones.Source
	ttl    time.Duration

	mu      sync.Mutex
	current *types.Bulletin
}

func newBulletinCache(source zones.Source, ttl time.Duration) *bulletinCache {
	if source == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &bulletinCache{source: source, ttl: ttl}
}

func (c *bulletinCache) get(ctx context.Context) (*types.Bulletin, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && time.Since(c.current.FetchedAt) < c.ttl {
		return c.current, nil
	}

	batch, err := c.source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSourceUnavailable, err)
	}
	threats := []string{}
	if batch != nil {
		threats = append(threats, batch.Alerts...)
	}
	c.current = &types.Bulletin{Threats: threats, FetchedAt: time.Now().UTC()}
	return c.current, nil
}
