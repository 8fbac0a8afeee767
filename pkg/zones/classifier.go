package zones

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/cloudflare/ahocorasick"

	"github.com/cuemby/hazardfeed/pkg/types"
)

// Region is a named place alerts can refer to
type Region struct {
	Name string
	Lat  float64
	Lng  float64
}

// DefaultRegions covers the Indian coastal states and island territories
// named in ocean-state bulletins. Points sit on the coastline.
var DefaultRegions = []Region{
	{"Gujarat", 22.4707, 70.0577},
	{"Saurashtra", 20.9077, 70.3679},
	{"Maharashtra", 19.0760, 72.8777},
	{"Konkan", 16.9902, 73.3120},
	{"Goa", 15.2993, 74.1240},
	{"Karnataka", 12.9141, 74.8560},
	{"Kerala", 9.9312, 76.2673},
	{"Tamil Nadu", 13.0827, 80.2707},
	{"Puducherry", 11.9416, 79.8083},
	{"Andhra Pradesh", 17.6868, 83.2185},
	{"Odisha", 19.8135, 85.8312},
	{"West Bengal", 21.6417, 87.5300},
	{"Lakshadweep", 10.5667, 72.6417},
	{"Andaman", 11.6234, 92.7265},
	{"Nicobar", 7.0000, 93.8000},
}

// keyword dictionaries in precedence order: an all-clear wins over any
// alert wording, danger over warning, warning over coastline
var categoryKeywords = []struct {
	category types.ZoneCategory
	words    []string
}{
	{types.ZoneSafe, []string{"all clear", "no alert", "withdrawn", "called off", "normal sea"}},
	{types.ZoneDanger, []string{"red alert", "tsunami warning", "very high wave", "extremely rough", "storm surge", "evacuat", "danger"}},
	{types.ZoneWarning, []string{"orange alert", "yellow alert", "high wave", "swell surge", "rough sea", "warning", "alert"}},
	{types.ZoneCoastline, []string{"coastal erosion", "sea erosion", "coastline", "shoreline", "tidal"}},
}

const maxLabelRunes = 140

// Classifier turns free-text alerts into zones: keywords pick the category
// and region names pick the centers. Matching is case-insensitive.
type Classifier struct {
	mu       sync.Mutex // ahocorasick matchers are not safe for concurrent use
	regions  []Region
	regionAC *ahocorasick.Matcher
	keywords []*ahocorasick.Matcher
	radiusM  float64
}

// NewClassifier builds a classifier over regions. Every placed alert
// becomes a circle of radiusM meters.
func NewClassifier(regions []Region, radiusM float64) *Classifier {
	if len(regions) == 0 {
		regions = DefaultRegions
	}
	if radiusM <= 0 {
		radiusM = 50000
	}

	names := make([]string, len(regions))
	for i, r := range regions {
		names[i] = strings.ToLower(r.Name)
	}

	keywords := make([]*ahocorasick.Matcher, len(categoryKeywords))
	for i, ck := range categoryKeywords {
		keywords[i] = ahocorasick.NewStringMatcher(ck.words)
	}

	return &Classifier{
		regions:  regions,
		regionAC: ahocorasick.NewStringMatcher(names),
		keywords: keywords,
		radiusM:  radiusM,
	}
}

// Category returns the category implied by text, or ZoneUnknown when no
// keyword matches
func (c *Classifier) Category(text string) types.ZoneCategory {
	lowered := []byte(strings.ToLower(text))

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.category(lowered)
}

func (c *Classifier) category(lowered []byte) types.ZoneCategory {
	for i, m := range c.keywords {
		if len(m.Match(lowered)) > 0 {
			return categoryKeywords[i].category
		}
	}
	return types.ZoneUnknown
}

// Classify places text on every region it names. It returns nil when no
// region matches.
func (c *Classifier) Classify(text string) []types.Zone {
	text = strings.Join(strings.Fields(text), " ")
	lowered := []byte(strings.ToLower(text))

	c.mu.Lock()
	hits := c.regionAC.Match(lowered)
	category := c.category(lowered)
	c.mu.Unlock()

	if len(hits) == 0 {
		return nil
	}

	// Match reports dictionary indices in hit order; keep region order
	// stable instead.
	seen := make(map[int]bool, len(hits))
	for _, h := range hits {
		seen[h] = true
	}

	var zones []types.Zone
	for i, r := range c.regions {
		if !seen[i] {
			continue
		}
		zones = append(zones, types.Zone{
			Lat:      r.Lat,
			Lng:      r.Lng,
			RadiusM:  c.radiusM,
			Category: category,
			Label:    label(r.Name, text),
		})
	}
	return zones
}

func label(region, text string) string {
	l := region + ": " + text
	if utf8.RuneCountInString(l) <= maxLabelRunes {
		return l
	}
	runes := []rune(l)
	return string(runes[:maxLabelRunes-3]) + "..."
}
