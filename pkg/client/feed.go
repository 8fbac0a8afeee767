package client

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/cuemby/hazardfeed/pkg/events"
	"github.com/cuemby/hazardfeed/pkg/log"
	"github.com/cuemby/hazardfeed/pkg/types"
)

const (
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
)

// FeedOption configures a FeedView
type FeedOption func(*FeedView)

// WithBackoff sets the reconnect delay range. The delay doubles after every
// failed attempt and resets once a stream is established.
func WithBackoff(initial, limit time.Duration) FeedOption {
	return func(f *FeedView) {
		f.minBackoff = initial
		f.maxBackoff = limit
	}
}

// WithFeedClock sets the clock used for reconnect delays
func WithFeedClock(clock clockwork.Clock) FeedOption {
	return func(f *FeedView) {
		f.clock = clock
	}
}

// FeedView keeps a local copy of the posts and zones, current up to the
// last event received.
//
// Each sync subscribes first and then reads both snapshots, so nothing
// published in between is lost: posts seen in the snapshot and again on
// the stream are merged by id. When the stream drops the view reconnects
// and repeats the whole sequence.
type FeedView struct {
	client     *Client
	clock      clockwork.Clock
	minBackoff time.Duration
	maxBackoff time.Duration
	logger     zerolog.Logger

	mu      sync.RWMutex
	posts   []*types.Post
	seen    map[string]struct{}
	zones   []types.Zone
	synced  bool
	updates chan struct{}
}

// NewFeedView creates a view over the server behind c
func NewFeedView(c *Client, opts ...FeedOption) *FeedView {
	f := &FeedView{
		client:     c,
		clock:      clockwork.NewRealClock(),
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
		logger:     log.WithComponent("feed"),
		posts:      []*types.Post{},
		seen:       make(map[string]struct{}),
		zones:      []types.Zone{},
		updates:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Posts returns the posts, newest first
func (f *FeedView) Posts() []*types.Post {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]*types.Post(nil), f.posts...)
}

// Zones returns the current zone collection
func (f *FeedView) Zones() []types.Zone {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]types.Zone(nil), f.zones...)
}

// Synced reports whether the view holds a snapshot and a live stream
func (f *FeedView) Synced() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.synced
}

// Updates signals after every change to the view. Signals coalesce; read
// Posts and Zones for the current state.
func (f *FeedView) Updates() <-chan struct{} {
	return f.updates
}

// Run keeps the view in sync until ctx is done
func (f *FeedView) Run(ctx context.Context) error {
	backoff := f.minBackoff

	for {
		connected, err := f.sync(ctx)
		f.setSynced(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = f.minBackoff
		}

		f.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("feed stream lost, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.clock.After(backoff):
		}

		backoff *= 2
		if backoff > f.maxBackoff {
			backoff = f.maxBackoff
		}
	}
}

// sync runs one subscribe, snapshot, merge cycle. connected reports whether
// the snapshots were loaded.
func (f *FeedView) sync(ctx context.Context) (connected bool, err error) {
	stream, err := f.client.Subscribe(ctx)
	if err != nil {
		return false, err
	}
	defer stream.Close()

	posts, err := f.client.ListPosts(ctx)
	if err != nil {
		return false, err
	}
	zones, err := f.client.ListZones(ctx)
	if err != nil {
		return false, err
	}
	f.reset(posts, zones)
	f.logger.Debug().Int("posts", len(posts)).Int("zones", len(zones)).Msg("feed synced")

	for ev := range stream.Events() {
		f.apply(ev)
	}
	return true, stream.Err()
}

func (f *FeedView) reset(posts []*types.Post, zones []types.Zone) {
	f.mu.Lock()
	f.posts = append([]*types.Post{}, posts...)
	f.seen = make(map[string]struct{}, len(posts))
	for _, p := range posts {
		f.seen[p.ID] = struct{}{}
	}
	f.zones = append([]types.Zone{}, zones...)
	f.synced = true
	f.mu.Unlock()
	f.notify()
}

func (f *FeedView) apply(ev *events.Event) {
	switch ev.Type {
	case events.EventNewPost:
		post, err := ev.Post()
		if err != nil {
			f.logger.Warn().Err(err).Str("event_id", ev.ID).Msg("bad new-post payload")
			return
		}
		f.mu.Lock()
		if _, dup := f.seen[post.ID]; dup {
			f.mu.Unlock()
			return
		}
		f.seen[post.ID] = struct{}{}
		f.posts = append([]*types.Post{post}, f.posts...)
		f.mu.Unlock()

	case events.EventZoneUpdate:
		zones, err := ev.Zones()
		if err != nil {
			f.logger.Warn().Err(err).Str("event_id", ev.ID).Msg("bad zone-update payload")
			return
		}
		f.mu.Lock()
		f.zones = zones
		f.mu.Unlock()

	default:
		return
	}
	f.notify()
}

func (f *FeedView) setSynced(v bool) {
	f.mu.Lock()
	f.synced = v
	f.mu.Unlock()
}

func (f *FeedView) notify() {
	select {
	case f.updates <- struct{}{}:
	default:
	}
}
