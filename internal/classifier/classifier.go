// Package classifier turns raw channel text into a classified report:
// normalization, category and region detection, route extraction and the
// rendered post.
package classifier

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yari4ek89/siverbotv2/internal/domain"
)

// Classifier is safe for concurrent use. Region vocabularies can be
// extended at runtime with operator-managed place names.
type Classifier struct {
	categories *keywordMatcher[int]

	mu      sync.RWMutex
	regions *keywordMatcher[domain.RegionID]
}

// New builds a classifier with the built-in vocabularies plus extra place
// names per region.
func New(places map[domain.RegionID][]string) *Classifier {
	groups := make([]taggedKeywords[int], 0, len(categoryTable))
	for i, rule := range categoryTable {
		groups = append(groups, taggedKeywords[int]{Tag: i, Keywords: rule.Keywords})
	}

	c := &Classifier{categories: newKeywordMatcher(groups)}
	c.SetPlaces(places)
	return c
}

// SetPlaces replaces the operator-managed place names. Built-in region
// keywords are always kept.
func (c *Classifier) SetPlaces(places map[domain.RegionID][]string) {
	groups := make([]taggedKeywords[domain.RegionID], 0, len(builtinRegionKeywords)+len(places))
	for _, region := range domain.KnownRegions {
		groups = append(groups, taggedKeywords[domain.RegionID]{Tag: region, Keywords: builtinRegionKeywords[region]})
	}
	for region, names := range places {
		groups = append(groups, taggedKeywords[domain.RegionID]{Tag: region, Keywords: names})
	}

	m := newKeywordMatcher(groups)

	c.mu.Lock()
	c.regions = m
	c.mu.Unlock()
}

// Category returns the highest-priority category whose keywords occur in
// normalized text.
func (c *Classifier) Category(normalized string) domain.Category {
	return c.rule(strings.ToLower(normalized)).Category
}

func (c *Classifier) rule(lower string) categoryRule {
	hits := c.categories.Match(lower)
	for i, rule := range categoryTable {
		if hits[i] {
			return rule
		}
	}
	return unknownRule
}

// Regions returns every region whose keywords occur in normalized text,
// sorted by id.
func (c *Classifier) Regions(normalized string) []domain.RegionID {
	c.mu.RLock()
	m := c.regions
	c.mu.RUnlock()

	hits := m.Match(strings.ToLower(normalized))
	out := make([]domain.RegionID, 0, len(hits))
	for region := range hits {
		out = append(out, region)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Classify runs the full pipeline over one raw message. An empty
// NormalizedText in the result means there is nothing to route.
func (c *Classifier) Classify(raw, source string, receivedAt time.Time) domain.Report {
	r := domain.Report{
		RawText:    raw,
		SourceID:   source,
		ReceivedAt: receivedAt,
		Regions:    []domain.RegionID{},
	}

	r.NormalizedText = Normalize(raw)
	if r.NormalizedText == "" {
		r.Category = domain.CategoryUnknown
		r.Label, r.Emoji = unknownRule.Label, unknownRule.Emoji
		return r
	}

	rule := c.rule(strings.ToLower(r.NormalizedText))
	r.Category, r.Label, r.Emoji = rule.Category, rule.Label, rule.Emoji
	r.Regions = c.Regions(r.NormalizedText)
	r.Origin, r.Destination = ExtractDirection(r.NormalizedText)
	r.Formatted = Render(r.Emoji, r.Label, r.Origin, r.Destination, r.NormalizedText)

	return r
}
