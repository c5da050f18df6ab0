package classifier

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxCoreRunes  = 220
	noSummaryText = "Рух виявлено"
)

var (
	categoryWordRe = regexp.MustCompile(`(?i)(дрон(?:и|ів)?|бпла|шахед(?:и|ів)?|ракет(?:а|и)?|курс|напрямок|напрям|летить|летять|рух(?:ається)?)`)
	trailingDotsRe = regexp.MustCompile(`[.\s]+$`)
)

// Render builds the published post: "<emoji> <label>: <core>." where core is
// the route when a destination is known and a stripped summary otherwise.
func Render(emoji, label, origin, destination, normalized string) string {
	var core string
	switch {
	case destination != "" && origin != "":
		core = "з " + origin + " → курс на " + destination
	case destination != "":
		core = "курс на " + destination
	default:
		core = shortSummary(normalized)
	}

	core = trailingDotsRe.ReplaceAllString(core, "")
	core = truncateRunes(core, maxCoreRunes)
	core = capitalize(core)

	return emoji + " " + label + ": " + core + "."
}

func shortSummary(normalized string) string {
	s := collapseSpaces(removeWords(categoryWordRe, normalized))
	s = strings.TrimFunc(s, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsPunct(r) })
	if s == "" {
		return noSummaryText
	}
	return s
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return strings.TrimRightFunc(string(r[:limit-3]), unicode.IsSpace) + "…"
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
