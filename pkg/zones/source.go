package zones

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cuemby/hazardfeed/pkg/types"
)

// Record is a structured zone as delivered by an upstream source. Field
// names follow the common feed spellings; Coerce maps it onto types.Zone.
type Record struct {
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng,omitempty"`
	Lon      *float64 `json:"lon,omitempty"`
	Radius   float64  `json:"radius,omitempty"`
	RadiusM  float64  `json:"radius_m,omitempty"`
	Type     string   `json:"type,omitempty"`
	Category string   `json:"category,omitempty"`
	Label    string   `json:"label,omitempty"`
}

// Batch is one fetch result: structured records, free-text alerts, or both
type Batch struct {
	Records []Record `json:"zones,omitempty"`
	Alerts  []string `json:"alerts,omitempty"`
}

// Source fetches the current hazard picture from upstream
type Source interface {
	Fetch(ctx context.Context) (*Batch, error)
}

// SourceFunc adapts a function to Source
type SourceFunc func(ctx context.Context) (*Batch, error)

func (f SourceFunc) Fetch(ctx context.Context) (*Batch, error) { return f(ctx) }

func ptr(f float64) *float64 { return &f }

// StaticSource always returns the built-in sample zones
type StaticSource struct{}

// Fetch returns the sample zones over central India, Mumbai and Delhi
func (StaticSource) Fetch(ctx context.Context) (*Batch, error) {
	return &Batch{Records: []Record{
		{Lat: ptr(20.5937), Lng: ptr(78.9629), Type: string(types.ZoneDanger), Radius: 50000},
		{Lat: ptr(19.076), Lng: ptr(72.8777), Type: string(types.ZoneWarning), Radius: 40000},
		{Lat: ptr(28.6139), Lng: ptr(77.209), Type: string(types.ZoneSafe), Radius: 30000},
	}}, nil
}

// FeedSource reads zones from an HTTP endpoint serving JSON, either a bare
// array of records or an object with "zones" and "alerts"
type FeedSource struct {
	url    string
	client *http.Client
}

// NewFeedSource creates a JSON feed source
func NewFeedSource(url string, timeout time.Duration) *FeedSource {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &FeedSource{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// maxFeedBytes caps the size of a feed response
const maxFeedBytes = 8 << 20

func (s *FeedSource) Fetch(ctx context.Context) (*Batch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read feed: %w", err)
	}
	return decodeFeed(body)
}

func decodeFeed(body []byte) (*Batch, error) {
	var records []Record
	if err := json.Unmarshal(body, &records); err == nil {
		return &Batch{Records: records}, nil
	}

	var batch Batch
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return &batch, nil
}
