package workflow

import (
	"fmt"
	"strings"

	"golang.org/x/text/width"

	"scribe/internal/config"
)

// prefilter rejects works that must never be posted, before any network
// calls are spent on the row.
type prefilter struct {
	rules []prefilterRule
}

type prefilterRule struct {
	work   string
	names  []string
	reason string
}

func (r prefilterRule) mentions(foldedTitle string) bool {
	for _, name := range r.names {
		if strings.Contains(foldedTitle, name) {
			return true
		}
	}
	return false
}

func (r prefilterRule) covers(foldedWork string) bool {
	for _, name := range r.names {
		if name == foldedWork {
			return true
		}
	}
	return false
}

func newPrefilter(rules []config.PrefilterRule) *prefilter {
	compiled := make([]prefilterRule, 0, len(rules))
	for _, rule := range rules {
		work := strings.TrimSpace(rule.Work)
		if work == "" {
			continue
		}
		names := []string{foldName(work)}
		for _, alias := range rule.Aliases {
			if alias = strings.TrimSpace(alias); alias != "" {
				names = append(names, foldName(alias))
			}
		}
		reason := strings.TrimSpace(rule.Reason)
		if reason == "" {
			reason = "除外対象の原作: " + work
		}
		compiled = append(compiled, prefilterRule{work: work, names: names, reason: reason})
	}
	return &prefilter{rules: compiled}
}

// Match reports the exclusion reason for a work name, if any rule covers it.
func (p *prefilter) Match(work string) (string, bool) {
	folded := foldName(work)
	if folded == "" {
		return "", false
	}
	for _, rule := range p.rules {
		for _, name := range rule.names {
			if folded == name {
				return rule.reason, true
			}
		}
	}
	return "", false
}

// Conflict reports a hard mismatch between a scraped title and the
// operator's expected work: the title names a franchise from the rule table
// (by work name or alias) that is not the one the operator expects.
func (p *prefilter) Conflict(title, expectedWork string) (string, bool) {
	foldedTitle := foldName(title)
	expected := foldName(expectedWork)
	if foldedTitle == "" || expected == "" {
		return "", false
	}
	for _, rule := range p.rules {
		if !rule.mentions(foldedTitle) {
			continue
		}
		if rule.covers(expected) {
			continue
		}
		reason := fmt.Sprintf("原作の不一致: タイトルから「%s」を検出 (期待値: %s)", rule.work, strings.TrimSpace(expectedWork))
		return reason, true
	}
	return "", false
}

func foldName(value string) string {
	value = width.Fold.String(value)
	return strings.ToLower(strings.Join(strings.Fields(value), " "))
}
