/*
Package types defines the data structures shared across hazardfeed.

# Core Types

Reports:
  - Post: a user-submitted report with optional files and coordinates
  - FileRef: name, coarse MediaKind and retrieval URL of an attachment
  - Coordinates: latitude, longitude and accuracy radius in meters

Hazard map:
  - Zone: circular hazard area (center, radius, category, label)
  - ZoneCategory: danger, warning, safe, coastline or unknown
  - ZoneStyle: rendering hint; unknown categories use a neutral style
  - Disaster: a point marker for an ongoing event, placed by officials
  - Bulletin: raw High Wave Alert text with the time it was fetched

Accounts:
  - User: registered account with a Role and approval flag
  - Role: user, admin, ngo or ddmo
  - Claims: identity carried by a verified bearer token

# Errors

errors.go declares the sentinel error kinds (ErrValidation, ErrAuth,
ErrForbidden, ErrNotFound, ErrStorage, ErrSourceUnavailable). Packages wrap
them with context and the API layer maps them onto HTTP status codes:

	if errors.Is(err, types.ErrValidation) {
		// 400, message surfaced verbatim
	}

Zones have no identifier: the full collection is a snapshot that is
replaced wholesale on every refresh.
*/
package types
