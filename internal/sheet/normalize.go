package sheet

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"citadash/internal/model"
)

// The normalizers in this file are total: they never fail and always return
// a best-effort canonical value.

var (
	isoDateRe     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeRe        = regexp.MustCompile(`\d{1,2}:\d{2}`)
	numberPrefix  = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
	integerPrefix = regexp.MustCompile(`^[+-]?\d+`)
	slashDateRe   = regexp.MustCompile(`^(\d{1,2})[/.-](\d{1,2})[/.-](\d{4})$`)

	thousand = decimal.NewFromInt(1000)
)

// priceStrip holds the characters removed from price cells: currency
// symbols and the letters of the COP code. Whitespace is removed separately.
const priceStrip = "€$COP"

// NormalizePrice converts a price cell such as "€1.234,50", "25 €" or "2k"
// into a non-negative number. "." is read as a grouping separator and ","
// as the decimal separator. Unparseable or non-finite input yields 0.
func NormalizePrice(s string) float64 {
	if s == "" {
		return 0
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case strings.ContainsRune(priceStrip, r), isSpace(r):
			continue
		case r == '.':
			continue
		case r == ',':
			b.WriteByte('.')
		default:
			b.WriteRune(r)
		}
	}
	cleaned := b.String()

	thousands := false
	if i := strings.IndexAny(cleaned, "kK"); i >= 0 {
		cleaned = cleaned[:i] + cleaned[i+1:]
		thousands = true
	}

	prefix := strings.TrimSuffix(numberPrefix.FindString(cleaned), ".")
	if prefix == "" {
		return 0
	}
	// ParseFloat bounds the cost of huge exponents; overflow and underflow
	// both report ErrRange.
	f, err := strconv.ParseFloat(prefix, 64)
	if err != nil || !isFinite(f) {
		return 0
	}
	if thousands {
		f = decimal.NewFromFloat(f).Mul(thousand).InexactFloat64()
	}
	if f <= 0 || !isFinite(f) {
		return 0
	}
	return f
}

func isFinite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

// NormalizeStatus lower-cases and trims a status cell, falling back to the
// unknown sentinel for blank input.
func NormalizeStatus(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return model.StatusUnknown
	}
	return s
}

// dateLayouts are tried in order for cells that are not already YYYY-MM-DD.
// Layouts with an explicit offset are converted to local time first.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-1-2",
	"2006/01/02",
	"2006/1/2",
	"2006/1/2 15:04:05",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
	"Mon Jan 2 2006",
	"Mon, 02 Jan 2006 15:04:05 MST",
}

// NormalizeDate reformats a date cell as YYYY-MM-DD. Values that cannot be
// parsed are returned unchanged.
func NormalizeDate(s string) string {
	if s == "" {
		return ""
	}
	if isoDateRe.MatchString(s) {
		return s
	}

	v := strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return t.In(time.Local).Format(time.DateOnly)
		}
	}

	if t, ok := parseNumericDate(v); ok {
		return t.Format(time.DateOnly)
	}
	return s
}

// parseNumericDate handles M/D/YYYY (month first, the generic reading) and
// falls back to D/M/YYYY when the first component cannot be a month.
func parseNumericDate(v string) (time.Time, bool) {
	m := slashDateRe.FindStringSubmatch(v)
	if m == nil {
		return time.Time{}, false
	}
	a, _ := strconv.Atoi(m[1])
	b, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])

	month, day := a, b
	if a > 12 {
		month, day = b, a
	}
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local)
	// Reject rollovers such as 2/31.
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

// NormalizeTime extracts the first H:MM or HH:MM substring, so a range like
// "10:00-11:00" yields its start. Input without a match is returned as-is.
func NormalizeTime(s string) string {
	if s == "" {
		return ""
	}
	if m := timeRe.FindString(s); m != "" {
		return m
	}
	return s
}

// ParseCount reads the leading integer of a cell the way a lenient
// spreadsheet consumer would ("12 citas" is 12). Negative or missing
// values yield 0.
func ParseCount(s string) int {
	v := strings.TrimLeftFunc(s, isSpace)
	m := integerPrefix.FindString(v)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// categoryRule matches when the text contains at least one keyword from
// every group.
type categoryRule struct {
	category model.Category
	groups   [][]string
}

// categoryRules is evaluated top to bottom; the combined cut+beard rule must
// precede both single-keyword rules.
var categoryRules = []categoryRule{
	{model.CategoryCutBeard, [][]string{{"corte"}, {"barba", "afeitado"}}},
	{model.CategoryCut, [][]string{{"corte"}}},
	{model.CategoryShave, [][]string{{"barba", "afeitado"}}},
	{model.CategoryDye, [][]string{{"tinte", "color"}}},
}

func (r categoryRule) matches(text string) bool {
	for _, group := range r.groups {
		if !containsAny(text, group) {
			return false
		}
	}
	return true
}

// CategorizeService infers the service category from free text.
func CategorizeService(s string) model.Category {
	if s == "" {
		return model.CategoryOther
	}
	text := strings.ToLower(s)
	for _, rule := range categoryRules {
		if rule.matches(text) {
			return rule.category
		}
	}
	return model.CategoryOther
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\ufeff'
}
