package dedup

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const minTokenRunes = 3

var urlRe = regexp.MustCompile(`https?://\S+`)

// stopwords are route and update filler that carry no identity.
var stopwords = map[string]struct{}{
	"курс": {}, "напрямок": {}, "напрям": {}, "напрямку": {}, "летить": {}, "рухається": {},
	"рух": {}, "повідомляють": {}, "увага": {}, "upd": {}, "апд": {}, "оновлення": {},
	"інфо": {}, "info": {}, "район": {}, "область": {}, "обл": {}, "місто": {},
}

// TokenSet is the fingerprint of a report without an extractable route.
type TokenSet map[string]struct{}

// Tokenize lower-cases text, drops links, numbers and punctuation and keeps
// the distinct words of at least three runes that are not stopwords.
func Tokenize(text string) TokenSet {
	t := urlRe.ReplaceAllString(strings.ToLower(text), " ")
	words := strings.FieldsFunc(t, func(r rune) bool { return !unicode.IsLetter(r) })

	set := make(TokenSet, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) < minTokenRunes {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}

// ParseTokens rebuilds a set stored with TokenSet.String.
func ParseTokens(s string) TokenSet {
	fields := strings.Fields(s)
	set := make(TokenSet, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// String joins the tokens in sorted order.
func (s TokenSet) String() string {
	out := make([]string, 0, len(s))
	for w := range s {
		out = append(out, w)
	}
	sort.Strings(out)
	return strings.Join(out, " ")
}

// Jaccard returns |a∩b| / |a∪b|, or 0 when either set is empty.
func Jaccard(a, b TokenSet) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}

	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
