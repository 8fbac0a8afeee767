package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/cuemby/hazardfeed/pkg/types"
)

func TestWritePosts(t *testing.T) {
	created := time.Date(2025, 8, 2, 9, 15, 0, 0, time.UTC)
	posts := []*types.Post{
		{
			ID:          "p2",
			Content:     "Bridge washed out",
			Location:    "Wayanad",
			Coordinates: &types.Coordinates{Lat: 11.6854, Lng: 76.132, AccuracyM: 30},
			Files: []types.FileRef{
				{Name: "a.jpg", Kind: types.MediaImage, URL: "http://x/media/a.jpg"},
				{Name: "b.mp4", Kind: types.MediaVideo, URL: "http://x/media/b.mp4"},
			},
			UserID:    "u1",
			CreatedAt: created,
		},
		{ID: "p1", Content: "Anonymous report", Files: []types.FileRef{}, CreatedAt: created.Add(-time.Hour)},
	}

	var buf bytes.Buffer
	require.NoError(t, WritePosts(&buf, posts))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{PostsSheet}, f.GetSheetList())

	rows, err := f.GetRows(PostsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, "Files", rows[0][8])

	assert.Equal(t, "p2", rows[1][0])
	assert.Equal(t, "2025-08-02T09:15:00Z", rows[1][1])
	assert.Equal(t, "Wayanad", rows[1][3])
	assert.Equal(t, "11.6854", rows[1][4])
	assert.Equal(t, "30", rows[1][6])
	assert.Equal(t, "u1", rows[1][7])
	assert.Equal(t, "http://x/media/a.jpg\nhttp://x/media/b.mp4", rows[1][8])

	assert.Equal(t, "p1", rows[2][0])
	assert.Equal(t, "Anonymous report", rows[2][2])
}

func TestWriteReportWithZones(t *testing.T) {
	zones := []types.Zone{
		{Lat: 19.076, Lng: 72.8777, RadiusM: 40000, Category: types.ZoneWarning, Label: "Mumbai: high waves"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, nil, zones))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{PostsSheet, ZonesSheet}, f.GetSheetList())

	posts, err := f.GetRows(PostsSheet)
	require.NoError(t, err)
	assert.Len(t, posts, 1)

	rows, err := f.GetRows(ZonesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"warning", "19.076", "72.8777", "40000", "Mumbai: high waves"}, rows[1])
}
