package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/hazardfeed/pkg/events"
	"github.com/cuemby/hazardfeed/pkg/types"
)

func postIDs(posts []*types.Post) []string {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}

func TestFeedViewMerge(t *testing.T) {
	f := NewFeedView(NewClient("http://unused"))

	older := &types.Post{ID: "p1", Content: "older", Files: []types.FileRef{}}
	f.reset([]*types.Post{older}, []types.Zone{{Lat: 1, Lng: 2, RadiusM: 10, Category: types.ZoneSafe}})

	dup, err := events.NewPostEvent(older)
	require.NoError(t, err)
	f.apply(dup)
	assert.Equal(t, []string{"p1"}, postIDs(f.Posts()))

	newer, err := events.NewPostEvent(&types.Post{ID: "p2", Content: "newer", Files: []types.FileRef{}})
	require.NoError(t, err)
	f.apply(newer)
	f.apply(newer)
	assert.Equal(t, []string{"p2", "p1"}, postIDs(f.Posts()))

	replacement := []types.Zone{
		{Lat: 9.93, Lng: 76.26, RadiusM: 50000, Category: types.ZoneDanger},
		{Lat: 8.52, Lng: 76.93, RadiusM: 50000, Category: types.ZoneWarning},
	}
	zoneEvent, err := events.NewZoneEvent(replacement)
	require.NoError(t, err)
	f.apply(zoneEvent)
	assert.Equal(t, replacement, f.Zones())

	cleared, err := events.NewZoneEvent(nil)
	require.NoError(t, err)
	f.apply(cleared)
	assert.Empty(t, f.Zones())

	f.apply(&events.Event{ID: "x", Type: "something-else"})
	assert.Len(t, f.Posts(), 2)
}

func TestFeedViewSnapshotThenLive(t *testing.T) {
	h := newHarness(t)
	c := NewClient(h.ts.URL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := c.CreatePost(ctx, NewPost{Content: "before the view started"})
	require.NoError(t, err)

	f := NewFeedView(c, WithBackoff(10*time.Millisecond, 50*time.Millisecond))
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	require.Eventually(t, f.Synced, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{first.ID}, postIDs(f.Posts()))

	second, err := c.CreatePost(ctx, NewPost{Content: "while watching"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(f.Posts()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{second.ID, first.ID}, postIDs(f.Posts()))

	c.SetToken(h.adminToken(t))
	refreshed, err := c.RefreshZones(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(f.Zones()) == len(refreshed) }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, refreshed, f.Zones())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestFeedViewResyncsAfterDisconnect(t *testing.T) {
	h := newHarness(t)
	c := NewClient(h.ts.URL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := NewFeedView(c, WithBackoff(10*time.Millisecond, 50*time.Millisecond))
	go f.Run(ctx)

	require.Eventually(t, f.Synced, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, f.Posts())

	// Written without a broadcast, as if the event was lost while the
	// stream was down.
	missed := &types.Post{ID: "missed", Content: "written during outage", Files: []types.FileRef{}, CreatedAt: time.Now().UTC()}
	require.NoError(t, h.store.CreatePost(missed))
	assert.Empty(t, f.Posts())

	h.restart()

	require.Eventually(t, func() bool {
		return f.Synced() && len(f.Posts()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "missed", f.Posts()[0].ID)

	live, err := c.CreatePost(ctx, NewPost{Content: "after reconnect"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(f.Posts()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{live.ID, "missed"}, postIDs(f.Posts()))
}

func TestFeedViewUpdatesSignal(t *testing.T) {
	f := NewFeedView(NewClient("http://unused"))
	f.reset(nil, nil)

	select {
	case <-f.Updates():
	default:
		t.Fatal("expected update signal after reset")
	}

	ev, err := events.NewPostEvent(&types.Post{ID: "p1"})
	require.NoError(t, err)
	f.apply(ev)
	f.apply(ev)

	<-f.Updates()
	select {
	case <-f.Updates():
		t.Fatal("duplicate post should not signal")
	default:
	}
}
