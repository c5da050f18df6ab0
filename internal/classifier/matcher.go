package classifier

import (
	"strings"
	"sync"

	ahocorasick "github.com/cloudflare/ahocorasick"
)

// taggedKeywords is a keyword list whose hits are reported by tag.
type taggedKeywords[T comparable] struct {
	Tag      T
	Keywords []string
}

// keywordMatcher finds every tag whose keywords occur in a text in one
// Aho-Corasick pass. The cloudflare matcher keeps per-call state, so Match
// is serialized.
type keywordMatcher[T comparable] struct {
	mu      sync.Mutex
	matcher *ahocorasick.Matcher
	tags    [][]T
}

func newKeywordMatcher[T comparable](groups []taggedKeywords[T]) *keywordMatcher[T] {
	var (
		dict []string
		tags [][]T
	)
	// The trie keeps one index per distinct keyword, so shared keywords carry several tags.
	seen := make(map[string]int)
	for _, g := range groups {
		for _, kw := range g.Keywords {
			kw = strings.ToLower(kw)
			if kw == "" {
				continue
			}
			if i, ok := seen[kw]; ok {
				tags[i] = append(tags[i], g.Tag)
				continue
			}
			seen[kw] = len(dict)
			dict = append(dict, kw)
			tags = append(tags, []T{g.Tag})
		}
	}

	m := &keywordMatcher[T]{tags: tags}
	if len(dict) > 0 {
		m.matcher = ahocorasick.NewStringMatcher(dict)
	}
	return m
}

// Match returns the set of tags hit by lower-cased text.
func (m *keywordMatcher[T]) Match(lower string) map[T]bool {
	hits := make(map[T]bool)
	if m.matcher == nil || lower == "" {
		return hits
	}

	m.mu.Lock()
	idx := m.matcher.Match([]byte(lower))
	m.mu.Unlock()

	for _, i := range idx {
		if i < 0 || i >= len(m.tags) {
			continue
		}
		for _, tag := range m.tags[i] {
			hits[tag] = true
		}
	}
	return hits
}

// Contains reports whether any keyword occurs in lower-cased text.
func (m *keywordMatcher[T]) Contains(lower string) bool {
	return len(m.Match(lower)) > 0
}
