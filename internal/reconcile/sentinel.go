package reconcile

import "strings"

// The upstream models emit a family of "unknown" sentinels. They all mean
// the same thing: the source offered no usable value. Normalizing them to
// the empty string lets the rest of the chain treat "unknown" and "absent"
// identically.
var unknownSentinels = map[string]struct{}{
	"不明":       {},
	"不詳":       {},
	"特定不可":     {},
	"確定情報なし":   {},
	"該当なし":     {},
	"なし":       {},
	"unknown":  {},
	"n/a":      {},
	"none":     {},
	"不明（特定不可）": {},
	"不明(特定不可)": {},
}

// normalizeValue trims a raw entity value and collapses the unknown-sentinel
// family (including the 不明（推定：…） spellings) to "".
func normalizeValue(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	lowered := strings.ToLower(trimmed)
	if _, ok := unknownSentinels[lowered]; ok {
		return ""
	}
	if _, ok := unknownSentinels[trimmed]; ok {
		return ""
	}
	if strings.HasPrefix(trimmed, "不明（") || strings.HasPrefix(trimmed, "不明(") {
		return ""
	}
	return trimmed
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if normalized := normalizeValue(value); normalized != "" {
			out = append(out, normalized)
		}
	}
	return out
}
