package classifier

import "strings"

var (
	threatMatcher = newKeywordMatcher([]taggedKeywords[struct{}]{{Keywords: threatWords}})
	alarmMatcher  = newKeywordMatcher([]taggedKeywords[struct{}]{{Keywords: alarmPhrases}})
	statusMatcher = newKeywordMatcher([]taggedKeywords[struct{}]{{Keywords: statusWords}})
)

// IsStatusOnly reports whether normalized text carries no actionable threat:
// alarm wording or all-clear markers with no threat vocabulary. Threat words
// take precedence over everything else. "на " is a threat substring, so it
// also fires inside words such as "повітряна тривога".
func IsStatusOnly(normalized string) bool {
	lower := strings.ToLower(normalized)
	if lower == "" {
		return false
	}

	if threatMatcher.Contains(lower) {
		return false
	}
	if alarmMatcher.Contains(lower) {
		return true
	}
	return statusMatcher.Contains(lower)
}
