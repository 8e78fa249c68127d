package mapper

import (
	"math"
	"regexp"
	"strings"

	"certmap/internal/domain"
)

// CategoryOther is suggested when no category keyword is present.
const CategoryOther = "Other"

type category struct {
	name     string
	keywords []*keyword
}

type keyword struct {
	text string
	re   *regexp.Regexp
}

func newCategory(name string, words ...string) category {
	c := category{name: name}
	for _, w := range words {
		c.keywords = append(c.keywords, &keyword{text: w, re: regexp.MustCompile(`\b` + regexp.QuoteMeta(w) + `\b`)})
	}
	return c
}

// categories are scored in declaration order; the first wins a tie.
var categories = []category{
	newCategory("Internship", "internship", "intern", "praktikum", "traineeship"),
	newCategory("Hackathon", "hackathon", "hack day", "hack-day", "hackfest", "coding competition"),
	newCategory("Course", "course", "training", "workshop", "bootcamp", "certificate of completion", "online course", "curriculum", "module"),
	newCategory("Volunteering", "volunteer", "volunteering", "community service", "volunteer work", "freiwillig", "ehrenamt"),
}

// categoryField scores each category by the number of its distinct keywords
// present in the lowercased plain text.
func categoryField(in *input) *domain.Mapping {
	lower := strings.ToLower(in.plain)

	var best *category
	bestScore := 0
	var bestKeyword string
	for i := range categories {
		c := &categories[i]
		score := 0
		first := ""
		for _, kw := range c.keywords {
			if kw.re.MatchString(lower) {
				score++
				if first == "" {
					first = kw.text
				}
			}
		}
		if score > bestScore {
			best, bestScore, bestKeyword = c, score, first
		}
	}

	if best == nil {
		return &domain.Mapping{Category: &domain.Field{Value: CategoryOther, Confidence: 0.35}}
	}
	conf := math.Min(0.95, 0.5+math.Min(0.45, float64(bestScore)*0.25))
	return &domain.Mapping{Category: &domain.Field{
		Value:      best.name,
		Confidence: round2(conf),
		Sources:    sources(findSource(in.ext, bestKeyword)),
	}}
}
