package classifier

import (
	"regexp"
	"strings"
)

// Direction phrases. Group 1 is the phrase (checked as a whole word),
// group 2 the place, which runs to the next clause punctuation.
var (
	destinationRe = regexp.MustCompile(`(?i)(курс\s+на|курсом\s+на|напрям(?:ок|ком)?\s+на|у\s+напрямку|в\s+напрямку|в\s+направлении|в\s+бік|у\s+бік|в\s+сторону|у\s+сторону|рух(?:ається|аються)?\s+до|летить\s+на|летять\s+на|летит\s+на|движется\s+на)\s+([^,.!;]+)`)
	originRe      = regexp.MustCompile(`(?i)(зі|із|з|со|с)\s+(?:сторони\s+|стороны\s+|боку\s+)?(?:району\s+|района\s+)?([^,.!;]+)`)
	adminUnitRe   = regexp.MustCompile(`(?i)(областi|області|область|обл\.?|району|район|р-н|г\.|міста|місто|м\.)`)
)

// ExtractDirection returns the origin and destination places named in
// normalized text, or "" for either when no phrase matches. Places keep the
// source's letter case and lose administrative-unit words.
func ExtractDirection(text string) (origin, destination string) {
	tos := findWords(destinationRe, text, -1)
	froms := findWords(originRe, text, -1)

	if len(tos) > 0 {
		to := tos[0]
		// "курс на Ніжин з півночі": the destination stops where an origin phrase starts.
		end := cutAt(to[4], to[5], froms)
		destination = cleanupPlace(text[to[4]:end])
	}

	if len(froms) > 0 {
		from := froms[0]
		// "з Брянщини курс на Ніжин": the origin stops where a destination phrase starts.
		end := cutAt(from[4], from[5], tos)
		origin = cleanupPlace(text[from[4]:end])
	}

	return origin, destination
}

// cutAt shrinks the span [start, end) to the first match beginning inside it.
func cutAt(start, end int, matches [][]int) int {
	for _, m := range matches {
		if m[0] > start && m[0] < end {
			return m[0]
		}
	}
	return end
}

func cleanupPlace(s string) string {
	s = removeWords(adminUnitRe, s)
	s = collapseSpaces(s)
	return strings.Trim(s, " -–—:")
}
