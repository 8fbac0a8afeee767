package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/cuemby/hazardfeed/pkg/types"
)

const (
	PostsSheet = "Posts"
	ZonesSheet = "Zones"
)

var (
	postHeader = []any{"ID", "Created At", "Content", "Location", "Latitude", "Longitude", "Accuracy (m)", "User", "Files"}
	zoneHeader = []any{"Category", "Latitude", "Longitude", "Radius (m)", "Label"}
)

// WritePosts writes posts as a single-sheet workbook, one row per post in
// the order given. File URLs are joined with newlines in the last column.
func WritePosts(w io.Writer, posts []*types.Post) error {
	return WriteReport(w, posts, nil)
}

// WriteReport writes a workbook with a Posts sheet and, when zones is not
// nil, a Zones sheet
func WriteReport(w io.Writer, posts []*types.Post, zones []types.Zone) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", PostsSheet); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if err := writeRow(f, PostsSheet, 1, postHeader); err != nil {
		return err
	}
	for i, p := range posts {
		if err := writeRow(f, PostsSheet, i+2, postRow(p)); err != nil {
			return err
		}
	}
	if err := styleHeader(f, PostsSheet, len(postHeader), bold); err != nil {
		return err
	}

	if zones != nil {
		if _, err := f.NewSheet(ZonesSheet); err != nil {
			return err
		}
		if err := writeRow(f, ZonesSheet, 1, zoneHeader); err != nil {
			return err
		}
		for i, z := range zones {
			row := []any{string(z.Category), z.Lat, z.Lng, z.RadiusM, z.Label}
			if err := writeRow(f, ZonesSheet, i+2, row); err != nil {
				return err
			}
		}
		if err := styleHeader(f, ZonesSheet, len(zoneHeader), bold); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func postRow(p *types.Post) []any {
	urls := make([]string, len(p.Files))
	for i, file := range p.Files {
		urls[i] = file.URL
	}

	row := []any{p.ID, p.CreatedAt.UTC().Format(time.RFC3339), p.Content, p.Location, "", "", "", p.UserID, strings.Join(urls, "\n")}
	if c := p.Coordinates; c != nil {
		row[4], row[5] = c.Lat, c.Lng
		if c.AccuracyM > 0 {
			row[6] = c.AccuracyM
		}
	}
	return row
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func styleHeader(f *excelize.File, sheet string, cols, style int) error {
	last, err := excelize.CoordinatesToCellName(cols, 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}
