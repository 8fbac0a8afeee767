package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/cuemby/hazardfeed/pkg/types"
)

type fakeSource struct {
	posts    int
	postsErr error
	zones    []types.Zone
}

func (f *fakeSource) CountPosts() (int, error)         { return f.posts, f.postsErr }
func (f *fakeSource) ListZones() ([]types.Zone, error) { return f.zones, nil }

func TestCollectorCollect(t *testing.T) {
	src := &fakeSource{
		posts: 7,
		zones: []types.Zone{
			{Category: types.ZoneDanger},
			{Category: types.ZoneDanger},
			{Category: types.ZoneSafe},
			{Category: "tsunami"},
		},
	}

	NewCollector(src, 0).Collect()

	assert.Equal(t, 7.0, testutil.ToFloat64(PostsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(ZonesTotal.WithLabelValues("danger")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ZonesTotal.WithLabelValues("safe")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ZonesTotal.WithLabelValues("unknown")))
	assert.Equal(t, 0.0, testutil.ToFloat64(ZonesTotal.WithLabelValues("warning")))
}

func TestCollectorKeepsLastPostCountOnError(t *testing.T) {
	PostsTotal.Set(3)
	src := &fakeSource{postsErr: errors.New("db closed")}

	NewCollector(src, 0).Collect()

	assert.Equal(t, 3.0, testutil.ToFloat64(PostsTotal))
}
