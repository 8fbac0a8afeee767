/*
Package api implements the hazardfeed HTTP API.

The server is a thin layer over the post and zone stores, the ingestion
service, the zone refresher and the event broker:

	  browser / CLI
	       │  REST + WebSocket
	┌──────▼─────────────────────────────────────┐
	│ cors → instrument → ServeMux                │
	│   POST /api/posts ──► ingest.Service ──┐    │
	│   GET  /api/posts, /api/zones ◄── store│    │
	│   POST /api/zones/refresh ──► zones.Refresher
	│   GET  /api/events ◄── events.Broker ◄─┘    │
	└─────────────────────────────────────────────┘

# Routes

Posts:
  - POST /api/posts: JSON or multipart submission, 201 with the stored post
  - GET /api/posts: every post, newest first
  - GET /api/posts/{id}: one post
  - DELETE /api/posts/{id}: admin only, also removes uploaded files

Zones:
  - GET /api/zones: the current zone snapshot
  - POST /api/zones/refresh: admin or ddmo, runs a refresh inline

Map markers and alerts:
  - GET /api/disasters: every disaster marker, oldest first
  - POST /api/disasters: admin, ddmo or ngo; type, lat and lon required
  - GET /api/disasters/zones: same as GET /api/zones
  - GET /api/hwa: raw High Wave Alert text, cached for BulletinTTL

Live updates:
  - GET /api/events: WebSocket; each frame is one JSON event

Accounts:
  - POST /api/auth/register, POST /api/auth/login
  - PATCH /api/auth/approve/{id}: admin only

Operations: /health, /ready, /live, /metrics, and /media/ for uploaded
attachments.

# Errors

Handlers return errors from the service packages unchanged and writeError
maps the sentinel kinds in pkg/types onto status codes. Storage and
upstream failures are logged and answered with a generic body.

Every request gets an X-Request-ID and a request-scoped logger in its
context. Submissions are rate limited per client IP with
golang.org/x/time/rate; forwarding headers only name the client when the
peer is one of Options.TrustedProxies.
*/
package api
