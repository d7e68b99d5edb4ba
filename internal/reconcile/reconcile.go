package reconcile

import (
	"fmt"
	"log/slog"
	"strings"

	"scribe/internal/logging"
)

// Reconciler turns raw AI responses into verdicts against the operator's
// expected entities. Reconcile is total: malformed input degrades through
// parser stages and finally falls back to the operator's own values, it
// never returns an error.
type Reconciler struct {
	logger *slog.Logger
}

// New builds a Reconciler. A nil logger is replaced with a no-op one.
func New(logger *slog.Logger) *Reconciler {
	return &Reconciler{logger: logging.NewComponentLogger(logger, "reconcile")}
}

// Reconcile evaluates one raw response against the expected work and
// character. Stages: empty input -> operator fallback; JSON schemas (judged,
// legacy dual-boolean, free suggestion); labeled-text extraction; operator
// fallback.
func (r *Reconciler) Reconcile(raw, expectedWork, expectedChar string) Verdict {
	expectedWork = strings.TrimSpace(expectedWork)
	expectedChar = strings.TrimSpace(expectedChar)

	if strings.TrimSpace(raw) == "" {
		return r.fallback(expectedWork, expectedChar, "AI応答なし")
	}

	if cand, ok := parseCandidate(raw); ok {
		return r.verdictFrom(cand, expectedWork, expectedChar, sourceFor(cand.kind))
	}
	if cand, ok := textCandidate(raw); ok {
		return r.verdictFrom(cand, expectedWork, expectedChar, "text")
	}

	r.logger.Debug("response unparseable, adopting operator values",
		logging.Int("response_bytes", len(raw)))
	return r.fallback(expectedWork, expectedChar, "応答を解析できず")
}

func sourceFor(kind candidateKind) string {
	switch kind {
	case kindJudged:
		return "judged"
	case kindDual:
		return "dual"
	default:
		return "suggestion"
	}
}

// fallback trusts the operator's values. It matches only when both
// expectations are present; a half-filled row cannot be confirmed by silence.
func (r *Reconciler) fallback(expectedWork, expectedChar, note string) Verdict {
	verdict := Verdict{
		Work:       expectedWork,
		Characters: capCharacters([]string{expectedChar}),
		Confidence: 0.5,
		Source:     "fallback",
	}
	if expectedWork != "" && expectedChar != "" {
		verdict.Match = true
		verdict.Reason = note + "（運用者入力値を採用）"
	} else {
		verdict.Reason = note + "（期待値が不足のため判定不可）"
	}
	return verdict
}

func (r *Reconciler) verdictFrom(cand candidate, expectedWork, expectedChar, source string) Verdict {
	switch cand.kind {
	case kindJudged:
		return judgedVerdict(cand, expectedWork, expectedChar, source)
	case kindDual:
		return dualVerdict(cand, expectedWork, expectedChar, source)
	default:
		return suggestionVerdict(cand, expectedWork, expectedChar, source)
	}
}

// judgedVerdict follows the model's explicit 一致/相違 call. On a match the
// operator's values win; on a mismatch the model's corrections overwrite the
// proven-wrong expectations.
func judgedVerdict(cand candidate, expectedWork, expectedChar, source string) Verdict {
	verdict := Verdict{
		Match:      cand.judgedMatch,
		Confidence: cand.confidence,
		Source:     source,
	}
	if cand.judgedMatch {
		verdict.Work = prefer(expectedWork, cand.work)
		verdict.Characters = capCharacters(preferList(expectedChar, cand.characters))
		return verdict
	}
	verdict.Work = prefer(cand.work, expectedWork)
	verdict.Characters = capCharacters(preferList("", append(cand.characters, expectedChar)))
	verdict.Reason = mismatchReason("AI判定: 相違", expectedWork, verdict.Work, expectedChar, verdict.Character())
	return verdict
}

// dualVerdict applies the legacy per-field booleans. Each field keeps the
// operator's value when its boolean agrees and takes the correction when it
// does not.
func dualVerdict(cand candidate, expectedWork, expectedChar, source string) Verdict {
	verdict := Verdict{
		Match:      cand.workMatch && cand.charMatch,
		Confidence: cand.confidence,
		Source:     source,
	}
	if cand.workMatch {
		verdict.Work = prefer(expectedWork, cand.work)
	} else {
		verdict.Work = prefer(cand.work, expectedWork)
	}
	if cand.charMatch {
		verdict.Characters = capCharacters(preferList(expectedChar, cand.characters))
	} else {
		verdict.Characters = capCharacters(preferList("", append(cand.characters, expectedChar)))
	}
	if !verdict.Match {
		fields := make([]string, 0, 2)
		if !cand.workMatch {
			fields = append(fields, "原作名")
		}
		if !cand.charMatch {
			fields = append(fields, "キャラクター名")
		}
		verdict.Reason = mismatchReason("相違項目: "+strings.Join(fields, "・"), expectedWork, verdict.Work, expectedChar, verdict.Character())
	}
	return verdict
}

// suggestionVerdict compares a free-standing suggestion against the
// expectations. An absent suggestion field never counts as disagreement;
// the unknown sentinels were already folded to "" upstream.
func suggestionVerdict(cand candidate, expectedWork, expectedChar, source string) Verdict {
	if cand.work == "" && len(cand.characters) == 0 {
		verdict := Verdict{
			Work:       expectedWork,
			Characters: capCharacters([]string{expectedChar}),
			Confidence: cand.confidence,
			Source:     source,
		}
		if expectedWork != "" && expectedChar != "" {
			verdict.Match = true
			verdict.Reason = "AI提案なし（運用者入力値を採用）"
		} else {
			verdict.Reason = "AI提案なし（期待値が不足のため判定不可）"
		}
		return verdict
	}

	workAgrees := cand.work == "" || expectedWork == "" || workMatches(expectedWork, cand.work)
	charAgrees := len(cand.characters) == 0 || expectedChar == "" || anyCharacterMatches(expectedChar, cand.characters)

	verdict := Verdict{
		Match:      workAgrees && charAgrees,
		Confidence: cand.confidence,
		Source:     source,
	}
	if workAgrees {
		verdict.Work = prefer(expectedWork, cand.work)
	} else {
		verdict.Work = cand.work
	}
	if charAgrees {
		verdict.Characters = capCharacters(preferList(expectedChar, cand.characters))
	} else {
		verdict.Characters = capCharacters(cand.characters)
	}
	if !verdict.Match {
		verdict.Reason = mismatchReason("AI提案との相違", expectedWork, verdict.Work, expectedChar, verdict.Character())
	}
	return verdict
}

func prefer(primary, secondary string) string {
	if strings.TrimSpace(primary) != "" {
		return strings.TrimSpace(primary)
	}
	return strings.TrimSpace(secondary)
}

func preferList(primary string, secondary []string) []string {
	if strings.TrimSpace(primary) != "" {
		return []string{primary}
	}
	return secondary
}

func mismatchReason(prefix, expectedWork, correctedWork, expectedChar, correctedChar string) string {
	parts := []string{prefix}
	if expectedWork != correctedWork && correctedWork != "" {
		parts = append(parts, fmt.Sprintf("原作名: %s → %s", orNone(expectedWork), correctedWork))
	}
	if expectedChar != correctedChar && correctedChar != "" {
		parts = append(parts, fmt.Sprintf("キャラクター名: %s → %s", orNone(expectedChar), correctedChar))
	}
	return strings.Join(parts, " / ")
}

func orNone(value string) string {
	if value == "" {
		return "（未入力）"
	}
	return value
}
