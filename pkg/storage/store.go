package storage

import (
	"errors"

	"github.com/cuemby/hazardfeed/pkg/types"
)

// ErrDuplicate is returned when a unique user field is already taken
var ErrDuplicate = errors.New("already exists")

// PostStore persists reports. Posts are written once and listed newest first.
type PostStore interface {
	CreatePost(post *types.Post) error
	GetPost(id string) (*types.Post, error)
	ListPosts() ([]*types.Post, error)
	DeletePost(id string) error
	CountPosts() (int, error)
}

// ZoneStore holds the current hazard zone snapshot. ReplaceZones swaps the
// whole collection atomically; readers observe either the old or the new
// snapshot, never a mix.
type ZoneStore interface {
	ListZones() ([]types.Zone, error)
	ReplaceZones(zones []types.Zone) error
}

// DisasterStore persists map markers, listed in the order they were added
type DisasterStore interface {
	CreateDisaster(d *types.Disaster) error
	ListDisasters() ([]*types.Disaster, error)
}

// UserStore persists accounts with unique usernames and emails
type UserStore interface {
	CreateUser(user *types.User) error
	GetUser(id string) (*types.User, error)
	GetUserByUsername(username string) (*types.User, error)
	UpdateUser(user *types.User) error
}

// Store defines the interface for hazardfeed state storage
type Store interface {
	PostStore
	ZoneStore
	DisasterStore
	UserStore

	Close() error
}
