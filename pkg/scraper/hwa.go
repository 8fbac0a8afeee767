// Package scraper reads hazard bulletins published as HTML pages.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/cuemby/hazardfeed/pkg/zones"
)

// DefaultHWAURL is the INCOIS High Wave Alert bulletin page
const DefaultHWAURL = "https://incois.gov.in/site/services/hwa.jsp"

const (
	userAgent    = "hazardfeed/1.0 (+ocean-state-monitor)"
	maxPageBytes = 4 << 20
)

// HWASource scrapes High Wave Alert paragraphs from the INCOIS bulletin
// page and hands them to the zone refresher as free-text alerts
type HWASource struct {
	url    string
	client *http.Client
	match  string
}

// NewHWASource creates a scraper for url. An empty url selects
// DefaultHWAURL.
func NewHWASource(url string, timeout time.Duration) *HWASource {
	if url == "" {
		url = DefaultHWAURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HWASource{
		url:    url,
		client: &http.Client{Timeout: timeout},
		match:  "high wave",
	}
}

// Fetch downloads the bulletin and returns every paragraph that mentions a
// high wave alert
func (s *HWASource) Fetch(ctx context.Context) (*zones.Batch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bulletin request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bulletin returned status %d", resp.StatusCode)
	}

	alerts, err := s.extract(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, err
	}
	return &zones.Batch{Alerts: alerts}, nil
}

func (s *HWASource) extract(r io.Reader) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bulletin: %w", err)
	}

	alerts := []string{}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.DataAtom == atom.P || n.DataAtom == atom.Li) {
			text := strings.Join(strings.Fields(textContent(n)), " ")
			if strings.Contains(strings.ToLower(text), s.match) {
				alerts = append(alerts, text)
			}
			return
		}
		if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style) {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return alerts, nil
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
		case html.ElementNode:
			if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
