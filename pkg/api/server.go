package api

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/hazardfeed/pkg/auth"
	"github.com/cuemby/hazardfeed/pkg/content"
	"github.com/cuemby/hazardfeed/pkg/events"
	"github.com/cuemby/hazardfeed/pkg/ingest"
	"github.com/cuemby/hazardfeed/pkg/log"
	"github.com/cuemby/hazardfeed/pkg/metrics"
	"github.com/cuemby/hazardfeed/pkg/storage"
	"github.com/cuemby/hazardfeed/pkg/types"
	"github.com/cuemby/hazardfeed/pkg/zones"
)

// Deps are the services the API exposes
type Deps struct {
	Store     storage.Store
	Content   content.Store
	Ingest    *ingest.Service
	Refresher *zones.Refresher
	Accounts  *auth.Service
	Verifier  auth.Verifier
	Broker    *events.Broker
	// Bulletins serves the raw alert text on GET /api/hwa. Optional.
	Bulletins zones.Source
}

// Options tune the HTTP surface
type Options struct {
	CORSOrigin     string
	MediaDir       string
	MaxUploadBytes int64
	RateLimitRPS   float64
	RateLimitBurst int
	// TrustedProxies lists the CIDRs or addresses whose X-Forwarded-For
	// and X-Real-IP headers identify the client
	TrustedProxies []string
	BulletinTTL    time.Duration
}

// Server is the hazardfeed HTTP API
type Server struct {
	store     storage.Store
	content   content.Store
	ingest    *ingest.Service
	refresher *zones.Refresher
	accounts  *auth.Service
	verifier  auth.Verifier
	broker    *events.Broker
	bulletins *bulletinCache

	opts    Options
	limiter *rateLimiter
	handler http.Handler
	http    *http.Server
	logger  zerolog.Logger
}

// NewServer wires the routes
func NewServer(deps Deps, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}

	logger := log.WithComponent("api")
	proxies, err := parseTrustedProxies(opts.TrustedProxies)
	if err != nil {
		logger.Warn().Err(err).Msg("ignoring trusted proxies, forwarding headers disabled")
		proxies = nil
	}

	s := &Server{
		store:     deps.Store,
		content:   deps.Content,
		ingest:    deps.Ingest,
		refresher: deps.Refresher,
		accounts:  deps.Accounts,
		verifier:  deps.Verifier,
		broker:    deps.Broker,
		bulletins: newBulletinCache(deps.Bulletins, opts.BulletinTTL),
		opts:      opts,
		limiter:   newRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst, proxies),
		logger:    logger,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/posts", s.limiter.limit(s.createPost))
	mux.HandleFunc("GET /api/posts", s.listPosts)
	mux.HandleFunc("GET /api/posts/{id}", s.getPost)
	mux.HandleFunc("DELETE /api/posts/{id}", s.requireRole(s.deletePost, types.RoleAdmin))

	mux.HandleFunc("GET /api/zones", s.listZones)
	mux.HandleFunc("POST /api/zones/refresh", s.requireRole(s.refreshZones, types.RoleAdmin, types.RoleDDMO))

	mux.HandleFunc("GET /api/disasters", s.listDisasters)
	mux.HandleFunc("POST /api/disasters", s.requireRole(s.addDisaster, types.RoleAdmin, types.RoleDDMO, types.RoleNGO))
	mux.HandleFunc("GET /api/disasters/zones", s.listZones)
	mux.HandleFunc("GET /api/hwa", s.bulletin)

	mux.Handle("GET /api/events", s.streamHandler())

	mux.HandleFunc("POST /api/auth/register", s.register)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("PATCH /api/auth/approve/{id}", s.requireRole(s.approve, types.RoleAdmin))

	if opts.MediaDir != "" {
		mux.Handle("GET "+content.MediaPrefix, http.StripPrefix(content.MediaPrefix, noListing(http.FileServer(http.Dir(opts.MediaDir)))))
	}

	NewHealthServer(deps.Store, deps.Broker).Register(mux)

	s.handler = cors(opts.CORSOrigin, instrument(proxies, mux))
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on addr and serves until Shutdown. It returns nil after a
// clean shutdown.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	metrics.RegisterComponent(metrics.ComponentAPI, true, "")
	s.logger.Info().Str("addr", addr).Msg("HTTP API listening")

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		metrics.UpdateComponent(metrics.ComponentAPI, false, err.Error())
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones. Live
// streams end when the broker is stopped.
func (s *Server) Shutdown(ctx context.Context) error {
	metrics.UpdateComponent(metrics.ComponentAPI, false, "shutting down")
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// RunLimiterCleanup prunes idle rate limiters every interval until ctx is
// done
func (s *Server) RunLimiterCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.cleanup()
		}
	}
}

func noListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") || strings.HasPrefix(path.Base(r.URL.Path), ".") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
