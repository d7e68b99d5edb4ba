package reconcile

import (
	"regexp"
	"strings"
)

// Labeled-line extraction for responses that never produce valid JSON.
// Labels are tried in order; the first hit per entity wins.
var (
	workLabelPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^\s*(?:正しい)?原作名?\s*[:：]\s*(.+)$`),
		regexp.MustCompile(`(?m)^\s*作品名\s*[:：]\s*(.+)$`),
		regexp.MustCompile(`(?mi)^\s*original\s*work\s*[:：]\s*(.+)$`),
	}
	charLabelPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^\s*(?:正しい)?キャラクター名?(?:リスト)?\s*[:：]\s*(.+)$`),
		regexp.MustCompile(`(?m)^\s*キャラ\s*[:：]\s*(.+)$`),
		regexp.MustCompile(`(?mi)^\s*characters?\s*[:：]\s*(.+)$`),
	}
)

// textCandidate scrapes labeled lines out of free text. Confidence scales
// with how much was found.
func textCandidate(raw string) (candidate, bool) {
	cand := candidate{kind: kindSuggestion, confidence: 0.3}
	found := false

	for _, pattern := range workLabelPatterns {
		if m := pattern.FindStringSubmatch(raw); m != nil {
			if work := normalizeValue(stripQuotes(m[1])); work != "" {
				cand.work = work
				cand.confidence += 0.2
				found = true
				break
			}
		}
	}
	for _, pattern := range charLabelPatterns {
		if m := pattern.FindStringSubmatch(raw); m != nil {
			names := normalizeList(splitNames(stripQuotes(m[1])))
			if len(names) > 0 {
				cand.characters = names
				cand.confidence += 0.2
				found = true
				break
			}
		}
	}

	if !found {
		return candidate{}, false
	}
	return cand, true
}

func stripQuotes(value string) string {
	value = strings.TrimSpace(value)
	for _, pair := range [][2]string{{`"`, `"`}, {"「", "」"}, {"『", "』"}} {
		if strings.HasPrefix(value, pair[0]) && strings.HasSuffix(value, pair[1]) && len(value) > len(pair[0])+len(pair[1]) {
			return strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(value, pair[0]), pair[1]))
		}
	}
	return value
}
