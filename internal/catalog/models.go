package catalog

import (
	"regexp"
	"strings"
	"time"

	"scribe/internal/sheet"
)

// Status is the lifecycle state stored in the first column of a product row.
// Values are stored the way operators read them; ParseStatus folds the
// historical spellings the sheet has accumulated into canonical constants.
type Status string

const (
	StatusUnprocessed Status = ""
	StatusScheduled   Status = "予約投稿"
	StatusDraft       Status = "下書き保存"
	StatusError       Status = "エラー"
	StatusDuplicate   Status = "重複投稿"
)

var statusAliases = map[string]Status{
	"未処理":       StatusUnprocessed,
	"予約投稿":      StatusScheduled,
	"scheduled": StatusScheduled,
	"下書き保存":     StatusDraft,
	"下書き":       StatusDraft,
	"draft":     StatusDraft,
	"エラー":       StatusError,
	"error":     StatusError,
	"重複投稿":      StatusDuplicate,
	"duplicate": StatusDuplicate,
}

// protectedStatuses are the terminal or operator-managed states a drain run
// must never touch again. Includes spellings older automation wrote.
var protectedStatuses = map[string]struct{}{
	string(StatusScheduled): {},
	string(StatusDraft):     {},
	string(StatusError):     {},
	string(StatusDuplicate): {},
	"下書き":                   {},
	"投稿済み":                  {},
	"投稿完了":                  {},
	"公開済み":                  {},
	"処理済み":                  {},
	"スキップ":                  {},
	"除外":                    {},
	"published":             {},
	"posted":                {},
	"skip":                  {},
}

// ParseStatus normalizes a raw status cell. Unknown non-empty values are
// returned verbatim so nothing the operators wrote is lost.
func ParseStatus(value string) Status {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return StatusUnprocessed
	}
	if canonical, ok := statusAliases[strings.ToLower(trimmed)]; ok {
		return canonical
	}
	if canonical, ok := statusAliases[trimmed]; ok {
		return canonical
	}
	return Status(trimmed)
}

// IsProtected reports whether a status cell marks the row off-limits for
// automated processing.
func IsProtected(value string) bool {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return false
	}
	if _, ok := protectedStatuses[trimmed]; ok {
		return true
	}
	_, ok := protectedStatuses[strings.ToLower(trimmed)]
	return ok
}

// SlotLayout is the scheduled/processed timestamp format the sheet stores.
// It carries no year; parsing attaches the current one.
const SlotLayout = "01/02 15:04"

const slotLayoutWithYear = "2006/01/02 15:04"

// FormatSlot renders a time the way the sheet stores scheduled timestamps.
func FormatSlot(t time.Time) string {
	return t.Format(SlotLayout)
}

// ParseSlot reads a sheet timestamp. Values without a year adopt now's year;
// values with a stale year are normalized to now's year so old rows cannot
// drag the schedule into the past.
func ParseSlot(value string, now time.Time) (time.Time, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, false
	}
	if parsed, err := time.ParseInLocation(slotLayoutWithYear, trimmed, now.Location()); err == nil {
		if parsed.Year() < now.Year() {
			parsed = time.Date(now.Year(), parsed.Month(), parsed.Day(), parsed.Hour(), parsed.Minute(), 0, 0, now.Location())
		}
		return parsed, true
	}
	parsed, err := time.ParseInLocation(SlotLayout, trimmed, now.Location())
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(now.Year(), parsed.Month(), parsed.Day(), parsed.Hour(), parsed.Minute(), 0, 0, now.Location()), true
}

// ParseStamp reads a full keyword timestamp. Unlike schedule slots, stamps
// keep their recorded year: a keyword last touched in December of last year
// must sort as stale, not be dragged into the present.
func ParseStamp(value string, loc *time.Location) (time.Time, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, false
	}
	parsed, err := time.ParseInLocation(slotLayoutWithYear, trimmed, loc)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

var identifierPattern = regexp.MustCompile(`cid=([^/&]+)`)

// ExtractIdentifier pulls the catalog identifier out of a detail URL or a
// HYPERLINK cell wrapping one. Returns "" when no identifier is present.
func ExtractIdentifier(cell string) string {
	rawURL := sheet.CellURL(cell)
	if rawURL == "" {
		return ""
	}
	m := identifierPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	return m[1]
}

// Job is one product row. Row is the 1-based sheet row number the job was
// read from; writes go back to exactly that row.
type Job struct {
	Row               int
	Status            Status
	RawStatus         string
	ExpectedWork      string
	ExpectedCharacter string
	SourceURL         string
	SourceLabel       string
	Title             string
	ScheduledAt       string
	PublishedURL      string
	PublishedLabel    string
	LastProcessedAt   string
	ErrorDetail       string
}

// Identifier returns the catalog identifier embedded in the source URL.
func (j Job) Identifier() string {
	return ExtractIdentifier(j.SourceURL)
}

// Unprocessed reports whether the drain loop may pick this row up: the
// status must be empty (or 未処理) and neither a publish reference nor a
// scheduled slot may be present.
func (j Job) Unprocessed() bool {
	if IsProtected(j.RawStatus) {
		return false
	}
	if ParseStatus(j.RawStatus) != StatusUnprocessed {
		return false
	}
	return strings.TrimSpace(j.PublishedURL) == "" && strings.TrimSpace(j.ScheduledAt) == ""
}

// Cells renders the job as a full A..I row. The source and publish columns
// become HYPERLINK formulas when both URL and label are known.
func (j Job) Cells() []string {
	return []string{
		string(j.Status),
		j.ExpectedWork,
		j.ExpectedCharacter,
		linkCell(j.SourceURL, j.SourceLabel),
		j.Title,
		j.ScheduledAt,
		linkCell(j.PublishedURL, j.PublishedLabel),
		j.LastProcessedAt,
		j.ErrorDetail,
	}
}

func linkCell(rawURL, label string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	if strings.TrimSpace(label) == "" {
		return rawURL
	}
	return sheet.Hyperlink(rawURL, label)
}

// JobFromRow maps a raw sheet row (columns A..I, possibly short) onto a Job.
func JobFromRow(rowNumber int, cells []string) Job {
	get := func(i int) string {
		if i < len(cells) {
			return strings.TrimSpace(cells[i])
		}
		return ""
	}
	sourceURL, sourceLabel, ok := sheet.ParseHyperlink(get(3))
	if !ok {
		sourceURL = get(3)
	}
	publishedURL, publishedLabel, ok := sheet.ParseHyperlink(get(6))
	if !ok {
		publishedURL = get(6)
	}
	return Job{
		Row:               rowNumber,
		Status:            ParseStatus(get(0)),
		RawStatus:         get(0),
		ExpectedWork:      get(1),
		ExpectedCharacter: get(2),
		SourceURL:         strings.TrimSpace(sourceURL),
		SourceLabel:       strings.TrimSpace(sourceLabel),
		Title:             get(4),
		ScheduledAt:       get(5),
		PublishedURL:      strings.TrimSpace(publishedURL),
		PublishedLabel:    strings.TrimSpace(publishedLabel),
		LastProcessedAt:   get(7),
		ErrorDetail:       get(8),
	}
}

// Keyword is one row of the keywords sheet.
type Keyword struct {
	Row               int
	Active            bool
	ExpectedWork      string
	ExpectedCharacter string
	Keyword           string
	LastProcessedAt   string
	LastResult        string
	Notes             string
}

var truthyFlags = map[string]struct{}{
	"true": {}, "on": {}, "1": {}, "yes": {}, "checked": {}, "✓": {}, "✅": {}, "有効": {},
}

// KeywordFromRow maps a raw keywords-sheet row (columns A..G) onto a Keyword.
func KeywordFromRow(rowNumber int, cells []string) Keyword {
	get := func(i int) string {
		if i < len(cells) {
			return strings.TrimSpace(cells[i])
		}
		return ""
	}
	_, active := truthyFlags[strings.ToLower(get(0))]
	return Keyword{
		Row:               rowNumber,
		Active:            active,
		ExpectedWork:      get(1),
		ExpectedCharacter: get(2),
		Keyword:           get(3),
		LastProcessedAt:   get(4),
		LastResult:        get(5),
		Notes:             get(6),
	}
}
