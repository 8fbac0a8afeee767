package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/hazardfeed/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketPosts      = []byte("posts")
	bucketPostIndex  = []byte("post_index")
	bucketZones      = []byte("zones")
	bucketDisasters  = []byte("disasters")
	bucketUsers      = []byte("users")
	bucketUsernames  = []byte("user_names")
	bucketUserEmails = []byte("user_emails")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// DBFile is the database file name inside the data directory
const DBFile = "hazardfeed.db"

// NewBoltStore creates a new BoltDB-backed store. Opening fails after a few
// seconds if another process holds the database.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, DBFile)

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketPosts,
			bucketPostIndex,
			bucketZones,
			bucketDisasters,
			bucketUsers,
			bucketUsernames,
			bucketUserEmails,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Backup writes a consistent copy of the whole database to w
func (s *BoltStore) Backup(w io.Writer) (int64, error) {
	var n int64
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		n, err = tx.WriteTo(w)
		return err
	})
	return n, err
}

// postKey orders posts by creation time. Ties on the timestamp are broken
// by id so keys stay unique.
func postKey(post *types.Post) []byte {
	return []byte(fmt.Sprintf("%020d-%s", post.CreatedAt.UnixNano(), post.ID))
}

// Post operations

// CreatePost writes the post and its id index in one transaction
func (s *BoltStore) CreatePost(post *types.Post) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		index := tx.Bucket(bucketPostIndex)
		if index.Get([]byte(post.ID)) != nil {
			return fmt.Errorf("post %s: %w", post.ID, ErrDuplicate)
		}

		data, err := json.Marshal(post)
		if err != nil {
			return err
		}

		key := postKey(post)
		if err := tx.Bucket(bucketPosts).Put(key, data); err != nil {
			return err
		}
		return index.Put([]byte(post.ID), key)
	})
}

func (s *BoltStore) GetPost(id string) (*types.Post, error) {
	var post types.Post
	err := s.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(bucketPostIndex).Get([]byte(id))
		if key == nil {
			return fmt.Errorf("%w: post %s", types.ErrNotFound, id)
		}
		data := tx.Bucket(bucketPosts).Get(key)
		if data == nil {
			return fmt.Errorf("%w: post %s", types.ErrNotFound, id)
		}
		return json.Unmarshal(data, &post)
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// ListPosts returns all posts, newest first
func (s *BoltStore) ListPosts() ([]*types.Post, error) {
	posts := []*types.Post{}
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketPosts).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var post types.Post
			if err := json.Unmarshal(v, &post); err != nil {
				return fmt.Errorf("failed to decode post %s: %w", k, err)
			}
			posts = append(posts, &post)
		}
		return nil
	})
	return posts, err
}

func (s *BoltStore) DeletePost(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		index := tx.Bucket(bucketPostIndex)
		key := index.Get([]byte(id))
		if key == nil {
			return fmt.Errorf("%w: post %s", types.ErrNotFound, id)
		}
		if err := tx.Bucket(bucketPosts).Delete(key); err != nil {
			return err
		}
		return index.Delete([]byte(id))
	})
}

func (s *BoltStore) CountPosts() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketPostIndex).Stats().KeyN
		return nil
	})
	return n, err
}

// Zone operations

// ListZones returns the current snapshot in the order it was written
func (s *BoltStore) ListZones() ([]types.Zone, error) {
	zones := []types.Zone{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketZones).ForEach(func(k, v []byte) error {
			var zone types.Zone
			if err := json.Unmarshal(v, &zone); err != nil {
				return fmt.Errorf("failed to decode zone %s: %w", k, err)
			}
			zones = append(zones, zone)
			return nil
		})
	})
	return zones, err
}

// ReplaceZones drops the previous snapshot and writes zones in a single
// transaction
func (s *BoltStore) ReplaceZones(zones []types.Zone) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketZones); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return fmt.Errorf("failed to drop zones: %w", err)
		}
		b, err := tx.CreateBucket(bucketZones)
		if err != nil {
			return fmt.Errorf("failed to create zones bucket: %w", err)
		}

		for i, zone := range zones {
			data, err := json.Marshal(zone)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(fmt.Sprintf("%06d", i)), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Disaster operations

// CreateDisaster appends a marker. Keys are the bucket sequence, so the
// bucket iterates in insertion order.
func (s *BoltStore) CreateDisaster(d *types.Disaster) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDisasters)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}

		data, err := json.Marshal(d)
		if err != nil {
			return err
		}
		return b.Put([]byte(fmt.Sprintf("%020d", seq)), data)
	})
}

// ListDisasters returns every marker, oldest first
func (s *BoltStore) ListDisasters() ([]*types.Disaster, error) {
	disasters := []*types.Disaster{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDisasters).ForEach(func(k, v []byte) error {
			var d types.Disaster
			if err := json.Unmarshal(v, &d); err != nil {
				return fmt.Errorf("failed to decode disaster %s: %w", k, err)
			}
			disasters = append(disasters, &d)
			return nil
		})
	})
	return disasters, err
}

// User operations

func normalize(s string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(s)))
}

// CreateUser stores a new account. Usernames and emails are unique,
// compared case-insensitively.
func (s *BoltStore) CreateUser(user *types.User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		users := tx.Bucket(bucketUsers)
		names := tx.Bucket(bucketUsernames)
		emails := tx.Bucket(bucketUserEmails)

		if users.Get([]byte(user.ID)) != nil {
			return fmt.Errorf("user %s: %w", user.ID, ErrDuplicate)
		}
		if names.Get(normalize(user.Username)) != nil {
			return fmt.Errorf("username %s: %w", user.Username, ErrDuplicate)
		}
		if user.Email != "" && emails.Get(normalize(user.Email)) != nil {
			return fmt.Errorf("email %s: %w", user.Email, ErrDuplicate)
		}

		data, err := json.Marshal(user)
		if err != nil {
			return err
		}
		if err := users.Put([]byte(user.ID), data); err != nil {
			return err
		}
		if err := names.Put(normalize(user.Username), []byte(user.ID)); err != nil {
			return err
		}
		if user.Email != "" {
			return emails.Put(normalize(user.Email), []byte(user.ID))
		}
		return nil
	})
}

func (s *BoltStore) GetUser(id string) (*types.User, error) {
	var user types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: user %s", types.ErrNotFound, id)
		}
		return json.Unmarshal(data, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *BoltStore) GetUserByUsername(username string) (*types.User, error) {
	var user types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketUsernames).Get(normalize(username))
		if id == nil {
			return fmt.Errorf("%w: user %s", types.ErrNotFound, username)
		}
		data := tx.Bucket(bucketUsers).Get(id)
		if data == nil {
			return fmt.Errorf("%w: user %s", types.ErrNotFound, username)
		}
		return json.Unmarshal(data, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser overwrites an existing account. Username and email are fixed
// after registration.
func (s *BoltStore) UpdateUser(user *types.User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		prev := b.Get([]byte(user.ID))
		if prev == nil {
			return fmt.Errorf("%w: user %s", types.ErrNotFound, user.ID)
		}

		var existing types.User
		if err := json.Unmarshal(prev, &existing); err != nil {
			return err
		}
		user.Username = existing.Username
		user.Email = existing.Email

		data, err := json.Marshal(user)
		if err != nil {
			return err
		}
		return b.Put([]byte(user.ID), data)
	})
}
