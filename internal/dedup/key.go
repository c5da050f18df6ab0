// Package dedup suppresses repeated reports: an exact structural key for
// reports with an extracted route, and token-set similarity for the rest.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/yari4ek89/siverbotv2/internal/domain"
)

const unknownPart = "-"

// Key returns the exact-match key of r: the structural key when a route was
// extracted, otherwise a digest of the folded text. Without a route the
// structural key would collapse every report of a category and region set
// into one record.
func Key(r domain.Report) string {
	if r.HasDirection() {
		return StructuralKey(r)
	}
	return TextKey(r.NormalizedText)
}

// TextKey hashes folded text so verbatim relays share a key.
func TextKey(text string) string {
	sum := sha256.Sum256([]byte("text|" + foldPart(text)))
	return hex.EncodeToString(sum[:])
}

// StructuralKey hashes category, regions, destination and origin into a
// fixed-length digest. Case, accents and punctuation do not affect the key.
func StructuralKey(r domain.Report) string {
	regions := make([]string, 0, len(r.Regions))
	for _, region := range r.Regions {
		regions = append(regions, string(region))
	}
	sort.Strings(regions)

	raw := strings.Join([]string{
		orDash(foldPart(string(r.Category))),
		orDash(foldPart(strings.Join(regions, ","))),
		"to:" + orDash(foldPart(r.Destination)),
		"from:" + orDash(foldPart(r.Origin)),
	}, "|")

	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func orDash(s string) string {
	if s == "" {
		return unknownPart
	}
	return s
}

// foldPart lower-cases, strips combining marks and replaces everything but
// letters, digits, spaces, hyphens and commas with a space.
func foldPart(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		folded = strings.ToLower(s)
	}

	mapped := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == ',':
			return r
		default:
			return ' '
		}
	}, folded)
	return strings.Join(strings.Fields(mapped), " ")
}
