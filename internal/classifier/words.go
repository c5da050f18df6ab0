package classifier

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// RE2's \b only knows ASCII word characters, so Cyrillic whole-word matching
// is done here: each regexp's first capture group is the word, and a match is
// kept only when that group is not glued to neighbouring letters or digits.

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// startsWord reports whether a word may start at byte offset i.
func startsWord(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	if r, _ := utf8.DecodeRuneInString(s[i:]); !isWordRune(r) {
		return true
	}
	if i == 0 {
		return true
	}
	prev, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(prev)
}

// endsWord reports whether a word may end at byte offset i.
func endsWord(s string, i int) bool {
	if i == 0 {
		return true
	}
	if prev, _ := utf8.DecodeLastRuneInString(s[:i]); !isWordRune(prev) {
		return true
	}
	if i >= len(s) {
		return true
	}
	next, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(next)
}

// findWords returns submatch index slices for up to n whole-word matches
// (n < 0 means all). A rejected candidate resumes the search one rune later
// so a valid match overlapping it is not lost.
func findWords(re *regexp.Regexp, s string, n int) [][]int {
	var out [][]int
	pos := 0
	for pos <= len(s) && (n < 0 || len(out) < n) {
		loc := re.FindStringSubmatchIndex(s[pos:])
		if loc == nil {
			break
		}
		for i := range loc {
			if loc[i] >= 0 {
				loc[i] += pos
			}
		}

		if startsWord(s, loc[2]) && endsWord(s, loc[3]) {
			out = append(out, loc)
			if loc[1] > loc[0] {
				pos = loc[1]
				continue
			}
		}

		_, size := utf8.DecodeRuneInString(s[loc[0]:])
		if size == 0 {
			break
		}
		pos = loc[0] + size
	}
	return out
}

// removeWords deletes every whole-word match (the full match, including any
// trailing part of the pattern) and replaces it with a space.
func removeWords(re *regexp.Regexp, s string) string {
	matches := findWords(re, s, -1)
	if len(matches) == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		b.WriteByte(' ')
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
