package normalizer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// yearFirstLayouts are unambiguous calendar layouts tried before anything else.
var yearFirstLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"2006.01.02",
}

var (
	numericDate  = regexp.MustCompile(`^(\d{1,2})\s*[./\-]\s*(\d{1,2})\s*[./\-]\s*(\d{2}|\d{4})$`)
	dayMonthYear = regexp.MustCompile(`^(\d{1,2})[\s,.\-]*(\p{L}+)[\s,.\-]*(\d{4})$`)
	monthDayYear = regexp.MustCompile(`^(\p{L}+)[\s,.\-]*(\d{1,2})[\s,.\-]*(\d{4})$`)
)

var months = map[string]time.Month{
	"jan": time.January, "january": time.January, "januar": time.January,
	"feb": time.February, "february": time.February, "februar": time.February,
	"mar": time.March, "march": time.March, "marz": time.March, "mrz": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May, "mai": time.May,
	"jun": time.June, "june": time.June, "juni": time.June,
	"jul": time.July, "july": time.July, "juli": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October, "okt": time.October, "oktober": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December, "dez": time.December, "dezember": time.December,
}

// stripDiacritics lowercases s and removes combining marks, so "März" becomes "marz".
func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

func lookupMonth(name string) (time.Month, bool) {
	key := stripDiacritics(name)
	if m, ok := months[key]; ok {
		return m, true
	}
	if r := []rune(key); len(r) > 3 {
		m, ok := months[string(r[:3])]
		return m, ok
	}
	return 0, false
}

func isoDate(year int, month time.Month, day int) (string, bool) {
	if month < time.January || month > time.December || day < 1 {
		return "", false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, int(month), day), true
}

// ParseDate converts a cleaned date string to YYYY-MM-DD. It tries year-first
// layouts, then numeric day-month-year, then written month names in English
// or German in either day-month or month-day order.
func ParseDate(s string) (string, bool) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "", false
	}

	for _, layout := range yearFirstLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}

	if m := numericDate.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if len(m[3]) == 2 {
			if year > 50 {
				year += 1900
			} else {
				year += 2000
			}
		}
		return isoDate(year, time.Month(month), day)
	}

	if m := dayMonthYear.FindStringSubmatch(s); m != nil {
		if month, ok := lookupMonth(m[2]); ok {
			day, _ := strconv.Atoi(m[1])
			year, _ := strconv.Atoi(m[3])
			return isoDate(year, month, day)
		}
	}
	if m := monthDayYear.FindStringSubmatch(s); m != nil {
		if month, ok := lookupMonth(m[1]); ok {
			day, _ := strconv.Atoi(m[2])
			year, _ := strconv.Atoi(m[3])
			return isoDate(year, month, day)
		}
	}
	return "", false
}
