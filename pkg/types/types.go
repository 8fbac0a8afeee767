package types

import (
	"math"
	"strings"
	"time"
)

// MediaKind is the coarse kind of an attached file
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
	MediaOther MediaKind = "other"
)

// MediaKindFromMIME maps a MIME type such as "image/png" onto a MediaKind.
// Anything that is not image, video or audio is MediaOther.
func MediaKindFromMIME(mime string) MediaKind {
	major, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(mime)), "/")
	switch MediaKind(major) {
	case MediaImage, MediaVideo, MediaAudio:
		return MediaKind(major)
	default:
		return MediaOther
	}
}

// FileRef references an uploaded or pre-hosted file attached to a post
type FileRef struct {
	Name string    `json:"name"`
	Kind MediaKind `json:"kind"`
	URL  string    `json:"url"`
}

// Coordinates is a WGS-84 position with an accuracy radius in meters
type Coordinates struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	AccuracyM float64 `json:"accuracy_m,omitempty"`
}

// Valid reports whether the coordinates are finite and in range
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsNaN(c.AccuracyM) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 &&
		c.Lng >= -180 && c.Lng <= 180 &&
		c.AccuracyM >= 0 && !math.IsInf(c.AccuracyM, 0)
}

// Post is a user-submitted disaster report.
// Posts are written once and never mutated.
type Post struct {
	ID          string       `json:"id"`
	Content     string       `json:"content"`
	Files       []FileRef    `json:"files"`
	Location    string       `json:"location,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	UserID      string       `json:"user_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ZoneCategory classifies a hazard zone
type ZoneCategory string

const (
	ZoneDanger    ZoneCategory = "danger"
	ZoneWarning   ZoneCategory = "warning"
	ZoneSafe      ZoneCategory = "safe"
	ZoneCoastline ZoneCategory = "coastline"
	ZoneUnknown   ZoneCategory = "unknown"
)

// ParseZoneCategory normalizes a category name. Unrecognized names map to
// ZoneUnknown.
func ParseZoneCategory(s string) ZoneCategory {
	switch c := ZoneCategory(strings.ToLower(strings.TrimSpace(s))); c {
	case ZoneDanger, ZoneWarning, ZoneSafe, ZoneCoastline:
		return c
	default:
		return ZoneUnknown
	}
}

// Zone is a circular hazard area on the map. Zones carry no identity; the
// whole collection is replaced on every refresh.
type Zone struct {
	Lat      float64      `json:"lat"`
	Lng      float64      `json:"lng"`
	RadiusM  float64      `json:"radius_m"`
	Category ZoneCategory `json:"category"`
	Label    string       `json:"label,omitempty"`
}

// ZoneStyle is the map rendering hint for a zone category
type ZoneStyle struct {
	Color       string  `json:"color"`
	FillOpacity float64 `json:"fill_opacity"`
}

// Style returns the rendering style for the zone. Unknown categories get the
// neutral style.
func (z Zone) Style() ZoneStyle {
	switch z.Category {
	case ZoneDanger:
		return ZoneStyle{Color: "red", FillOpacity: 0.3}
	case ZoneWarning:
		return ZoneStyle{Color: "yellow", FillOpacity: 0.3}
	case ZoneSafe:
		return ZoneStyle{Color: "green", FillOpacity: 0.3}
	case ZoneCoastline:
		return ZoneStyle{Color: "cyan", FillOpacity: 0.25}
	default:
		return ZoneStyle{Color: "blue", FillOpacity: 0.2}
	}
}

// Disaster marks an ongoing event such as a flood or an earthquake on the
// map. Markers are placed by officials and listed in the order they were
// added.
type Disaster struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	Description string    `json:"desc"`
	AddedBy     string    `json:"added_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Bulletin is the raw text of the current High Wave Alerts, as scraped
// from the ocean state bulletin
type Bulletin struct {
	Threats   []string  `json:"threats"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Role is the authorization role of a user account
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
	RoleNGO   Role = "ngo"
	RoleDDMO  Role = "ddmo"
)

// ParseRole returns the role for s, or false if s is not a known role
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleAdmin, RoleNGO, RoleDDMO:
		return r, true
	default:
		return "", false
	}
}

// User is a registered account. Official roles (admin, ngo, ddmo) require
// admin approval before they can sign in.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash []byte    `json:"password_hash,omitempty"`
	Role         Role      `json:"role"`
	OfficialID   string    `json:"official_id,omitempty"`
	Location     string    `json:"location,omitempty"`
	Approved     bool      `json:"approved"`
	CreatedAt    time.Time `json:"created_at"`
}

// Public returns a copy of the user without credential material
func (u *User) Public() *User {
	cp := *u
	cp.PasswordHash = nil
	return &cp
}

// Claims identifies the bearer of a verified token
type Claims struct {
	UserID    string
	Role      Role
	ExpiresAt time.Time
}
