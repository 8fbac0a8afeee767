package api

import (
	"fmt"
	"net/http"

	"github.com/cuemby/hazardfeed/pkg/log"
	"github.com/cuemby/hazardfeed/pkg/types"
)

// listZones handles GET /api/zones
func (s *Server) listZones(w http.ResponseWriter, r *http.Request) {
	zones, err := s.store.ListZones()
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", types.ErrStorage, err))
		return
	}
	writeJSON(w, http.StatusOK, zones)
}

// refreshZones handles POST /api/zones/refresh. The refresh runs inline and
// the new collection is returned; a failing source leaves the stored zones
// untouched and answers 502.
func (s *Server) refreshZones(w http.ResponseWriter, r *http.Request, claims *types.Claims) {
	if s.refresher == nil {
		writeError(w, r, fmt.Errorf("%w: no zone source configured", types.ErrSourceUnavailable))
		return
	}

	zones, err := s.refresher.Refresh(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.FromContext(r.Context()).Info().
		Int("zones", len(zones)).
		Str("triggered_by", claims.UserID).
		Msg("manual zone refresh")
	writeJSON(w, http.StatusOK, zones)
}
