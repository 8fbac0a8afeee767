package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/cuemby/hazardfeed/pkg/auth"
	"github.com/cuemby/hazardfeed/pkg/types"
)

// bearerToken returns the token from an "Authorization: Bearer" header, or
// "" when the header is absent
func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", nil
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: malformed authorization header", types.ErrAuth)
	}
	return strings.TrimSpace(token), nil
}

// claims verifies the bearer token if one is present. It returns nil claims
// for anonymous requests.
func (s *Server) claims(r *http.Request) (*types.Claims, error) {
	token, err := bearerToken(r)
	if err != nil || token == "" {
		return nil, err
	}
	return s.verifier.Verify(token)
}

// requireRole wraps a handler that only the given roles may call
func (s *Server) requireRole(next func(http.ResponseWriter, *http.Request, *types.Claims), roles ...types.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.claims(r)
		if err == nil {
			err = auth.RequireRole(claims, roles...)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		next(w, r, claims)
	}
}
