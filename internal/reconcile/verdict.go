package reconcile

import "strings"

// Verdict is the outcome of reconciling an AI response against the
// operator's expected entities. It is transient: callers translate it into
// row updates, it is never persisted as-is.
type Verdict struct {
	// Match reports whether the source agreed with the operator's
	// expectations (or whether the fallback adopted them).
	Match bool
	// Work is the validated original-work name to persist.
	Work string
	// Characters is the validated character list, capped at five entries.
	Characters []string
	// Confidence is a heuristic 0..1 score for how trustworthy the parse was.
	Confidence float64
	// Source names the stage that produced the verdict (judged, dual,
	// suggestion, text, fallback).
	Source string
	// Reason is an operator-facing note, written in the language of the
	// sheet, explaining mismatches and fallbacks.
	Reason string
}

// Character returns the primary validated character name.
func (v Verdict) Character() string {
	if len(v.Characters) == 0 {
		return ""
	}
	return v.Characters[0]
}

// maxCharacters bounds the validated character list.
const maxCharacters = 5

func capCharacters(names []string) []string {
	out := make([]string, 0, maxCharacters)
	seen := make(map[string]struct{}, maxCharacters)
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
		if len(out) == maxCharacters {
			break
		}
	}
	return out
}
