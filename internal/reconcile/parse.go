package reconcile

import (
	"encoding/json"
	"regexp"
	"strings"
)

// candidate is the parsed-but-unreconciled content of one AI response.
// The three response schemas the models produce collapse into this one
// shape; kind records which schema matched.
type candidate struct {
	kind candidateKind

	// judged / dual schemas carry an explicit verdict.
	judgedMatch bool
	workMatch   bool
	charMatch   bool

	work       string
	characters []string
	confidence float64
}

type candidateKind int

const (
	kindJudged candidateKind = iota + 1
	kindDual
	kindSuggestion
)

// parseCandidate walks the degradation chain over a raw response: whole
// string as JSON, then the first-{ to last-} window, then each independent
// top-level {...} block. The first object matching a known schema wins.
func parseCandidate(raw string) (candidate, bool) {
	for _, fragment := range jsonFragments(raw) {
		var payload map[string]json.RawMessage
		if err := json.Unmarshal([]byte(fragment), &payload); err != nil {
			continue
		}
		if cand, ok := candidateFromPayload(payload); ok {
			return cand, true
		}
	}
	return candidate{}, false
}

var jsonBlockPattern = regexp.MustCompile(`\{[^{}]*\}`)

func jsonFragments(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	fragments := []string{trimmed}
	if start, end := strings.Index(trimmed, "{"), strings.LastIndex(trimmed, "}"); start >= 0 && end > start {
		window := trimmed[start : end+1]
		if window != trimmed {
			fragments = append(fragments, window)
		}
	}
	for _, block := range jsonBlockPattern.FindAllString(trimmed, -1) {
		if block != trimmed {
			fragments = append(fragments, block)
		}
	}
	return fragments
}

func candidateFromPayload(payload map[string]json.RawMessage) (candidate, bool) {
	if cand, ok := judgedCandidate(payload); ok {
		return cand, true
	}
	if cand, ok := dualCandidate(payload); ok {
		return cand, true
	}
	return suggestionCandidate(payload)
}

// judgedCandidate handles {"judgement_result": "一致"|"相違", ...}.
func judgedCandidate(payload map[string]json.RawMessage) (candidate, bool) {
	result, ok := stringField(payload, "judgement_result")
	if !ok {
		return candidate{}, false
	}
	cand := candidate{
		kind:        kindJudged,
		judgedMatch: isAffirmative(result),
		confidence:  0.9,
	}
	if work, ok := stringField(payload, "correct_original_work"); ok {
		cand.work = normalizeValue(work)
	}
	if name, ok := stringField(payload, "correct_character_name"); ok {
		cand.characters = normalizeList([]string{name})
	}
	return cand, true
}

// dualCandidate handles the legacy {"原作の一致": ..., "キャラクターの一致": ...}
// shape with per-field corrections.
func dualCandidate(payload map[string]json.RawMessage) (candidate, bool) {
	workResult, workOK := boolishField(payload, "原作の一致")
	charResult, charOK := boolishField(payload, "キャラクターの一致")
	if !workOK && !charOK {
		return candidate{}, false
	}
	cand := candidate{
		kind:       kindDual,
		workMatch:  !workOK || workResult,
		charMatch:  !charOK || charResult,
		confidence: 0.85,
	}
	if work, ok := stringField(payload, "正しい原作名"); ok {
		cand.work = normalizeValue(work)
	}
	if name, ok := stringField(payload, "正しいキャラクター名"); ok {
		cand.characters = normalizeList([]string{name})
	}
	return cand, true
}

// suggestionCandidate handles the free-standing {"原作名": ...,
// "キャラクター名リスト": ...} shape where the model proposes entities without
// judging the operator's values.
func suggestionCandidate(payload map[string]json.RawMessage) (candidate, bool) {
	work, workOK := stringField(payload, "原作名")
	rawList, listOK := payload["キャラクター名リスト"]
	if !workOK && !listOK {
		return candidate{}, false
	}
	cand := candidate{
		kind:       kindSuggestion,
		work:       normalizeValue(work),
		confidence: 0.7,
	}
	if listOK {
		cand.characters = normalizeList(decodeNameList(rawList))
	}
	if conf, ok := floatField(payload, "確信度"); ok {
		cand.confidence = conf
	} else if conf, ok := floatField(payload, "confidence"); ok {
		cand.confidence = conf
	}
	return cand, true
}

// decodeNameList accepts a list of strings, a list of {"名前": ...} objects,
// or a single delimiter-separated string.
func decodeNameList(raw json.RawMessage) []string {
	var asStrings []string
	if err := json.Unmarshal(raw, &asStrings); err == nil {
		return asStrings
	}
	var asObjects []map[string]any
	if err := json.Unmarshal(raw, &asObjects); err == nil {
		names := make([]string, 0, len(asObjects))
		for _, obj := range asObjects {
			for _, key := range []string{"名前", "name", "キャラクター名"} {
				if value, ok := obj[key].(string); ok {
					names = append(names, value)
					break
				}
			}
		}
		return names
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return splitNames(asString)
	}
	return nil
}

var nameDelimiters = regexp.MustCompile(`[、,/・]`)

func splitNames(value string) []string {
	parts := nameDelimiters.Split(value, -1)
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	return names
}

func stringField(payload map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := payload[key]
	if !ok {
		return "", false
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}
	return value, true
}

func floatField(payload map[string]json.RawMessage, key string) (float64, bool) {
	raw, ok := payload[key]
	if !ok {
		return 0, false
	}
	var value float64
	if err := json.Unmarshal(raw, &value); err != nil || value < 0 || value > 1 {
		return 0, false
	}
	return value, true
}

// boolishField reads verdict-like values that models render inconsistently:
// booleans, 一致/相違, はい/いいえ, yes/no.
func boolishField(payload map[string]json.RawMessage, key string) (bool, bool) {
	raw, ok := payload[key]
	if !ok {
		return false, false
	}
	var asBool bool
	if err := json.Unmarshal(raw, &asBool); err == nil {
		return asBool, true
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		trimmed := strings.TrimSpace(asString)
		if trimmed == "" {
			return false, false
		}
		return isAffirmative(trimmed), true
	}
	return false, false
}

func isAffirmative(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "一致", "はい", "true", "yes", "ok", "合致":
		return true
	default:
		return false
	}
}
