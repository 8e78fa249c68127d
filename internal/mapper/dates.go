package mapper

import (
	"regexp"
	"sort"
	"strings"

	"certmap/internal/domain"
)

const monthNames = `(?:jan(?:uary|uar)?|feb(?:ruary|ruar)?|m(?:ar(?:ch|z)?|ärz)|apr(?:il)?|ma[iy]|jun[ei]?|jul[iy]?|aug(?:ust)?|sep(?:t(?:ember)?)?|o[ck]t(?:ober)?|nov(?:ember)?|de[cz](?:ember)?)`

// datePatterns are tried in order; a later family never claims text already
// matched by an earlier one.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
	regexp.MustCompile(`\d{1,2}\s*[./\-]\s*\d{1,2}\s*[./\-]\s*\d{2,4}`),
	regexp.MustCompile(`(?i)\b` + monthNames + `\b[\s.,\-]*\d{1,2}[,\s]*\d{4}`),
	regexp.MustCompile(`(?i)\b\d{1,2}\.?\s*` + monthNames + `\b[\s.,\-]*\d{4}`),
}

var (
	isoShaped   = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	dotVariants = strings.NewReplacer("\u00a0", " ", "\u00b7", ".", "\u2024", ".", "\uff0e", ".")
)

type dateMatch struct {
	text       string
	start, end int
}

// FindDates returns the distinct date-like strings in text in order of appearance.
func FindDates(text string) []string {
	text = dotVariants.Replace(text)

	var found []dateMatch
	overlaps := func(s, e int) bool {
		for _, m := range found {
			if s < m.end && m.start < e {
				return true
			}
		}
		return false
	}
	for _, re := range datePatterns {
		var batch []dateMatch
		for _, loc := range re.FindAllStringIndex(text, -1) {
			if !overlaps(loc[0], loc[1]) {
				batch = append(batch, dateMatch{text: text[loc[0]:loc[1]], start: loc[0], end: loc[1]})
			}
		}
		found = append(found, batch...)
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].start < found[j].start })

	var out []string
	seen := map[string]bool{}
	for _, m := range found {
		if !seen[m.text] {
			seen[m.text] = true
			out = append(out, m.text)
		}
	}
	return out
}

func dateField(in *input, text string) *domain.Field {
	conf := 0.6
	if isoShaped.MatchString(text) {
		conf = 0.8
	}
	return &domain.Field{Value: text, Confidence: conf, Sources: sources(findSource(in.ext, text))}
}

// dateFields assigns a single date to issuedDate and otherwise the first two
// dates, in order of appearance, to startDate and endDate.
func dateFields(in *input) *domain.Mapping {
	dates := FindDates(in.plain)
	switch {
	case len(dates) == 1:
		return &domain.Mapping{IssuedDate: dateField(in, dates[0])}
	case len(dates) >= 2:
		return &domain.Mapping{
			StartDate: dateField(in, dates[0]),
			EndDate:   dateField(in, dates[1]),
		}
	}
	return nil
}
