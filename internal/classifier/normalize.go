package classifier

import (
	"regexp"
	"strings"
)

var (
	transportLinkRe = regexp.MustCompile(`(?i)https?://t\.me/[\w/]+`)
	mentionRe       = regexp.MustCompile(`\B@[a-zA-Z0-9_]{4,}`)
	clockRe         = regexp.MustCompile(`\b\d{1,2}:\d{2}\b`)
	updateMarkerRe  = regexp.MustCompile(`(?i)(update|upd|оновлено|обновлено|апд)\s*[:\-–—]?`)
	bangRunRe       = regexp.MustCompile(`[‼!]{2,}`)
)

// Normalize strips transport links, mentions, clock times and update markers,
// squeezes runs of exclamation marks and collapses whitespace.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	// A removal can expose a new match: a handle glued to a clock or marker,
	// or a fresh "!!". Every step only shortens the text, so this ends.
	t := raw
	for {
		next := normalizeStep(t)
		if next == t {
			return t
		}
		t = next
	}
}

func normalizeStep(t string) string {
	t = transportLinkRe.ReplaceAllString(t, " ")
	t = mentionRe.ReplaceAllString(t, " ")
	t = clockRe.ReplaceAllString(t, " ")
	t = removeWords(updateMarkerRe, t)
	t = bangRunRe.ReplaceAllString(t, "!")
	return collapseSpaces(t)
}
