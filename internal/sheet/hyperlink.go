package sheet

import (
	"fmt"
	"regexp"
	"strings"
)

var hyperlinkPattern = regexp.MustCompile(`(?i)^\s*=HYPERLINK\(\s*"([^"]*)"\s*(?:,\s*"([^"]*)"\s*)?\)\s*$`)

// ParseHyperlink splits a =HYPERLINK("url","label") formula into its parts.
// The label argument is optional in the formula.
func ParseHyperlink(cell string) (linkURL, label string, ok bool) {
	m := hyperlinkPattern.FindStringSubmatch(cell)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// Hyperlink renders a HYPERLINK formula for the given target and label.
// Embedded double quotes are doubled per the spreadsheet formula grammar.
func Hyperlink(linkURL, label string) string {
	esc := func(s string) string { return strings.ReplaceAll(s, `"`, `""`) }
	if strings.TrimSpace(label) == "" {
		return fmt.Sprintf(`=HYPERLINK("%s")`, esc(linkURL))
	}
	return fmt.Sprintf(`=HYPERLINK("%s","%s")`, esc(linkURL), esc(label))
}

// CellURL returns the URL carried by a cell, unwrapping a HYPERLINK formula
// when present and otherwise returning the trimmed raw value.
func CellURL(cell string) string {
	if linkURL, _, ok := ParseHyperlink(cell); ok {
		return strings.TrimSpace(linkURL)
	}
	return strings.TrimSpace(cell)
}

// IsFormula reports whether a cell value must be written with formula
// interpretation enabled.
func IsFormula(cell string) bool {
	return strings.HasPrefix(strings.TrimSpace(cell), "=HYPERLINK(")
}
