// Package normalizer canonicalizes mapper output. Normalize is idempotent.
package normalizer

import (
	"log"
	"math"
	"regexp"
	"strings"
	"unicode"

	"certmap/internal/domain"
)

// MaxFieldLength bounds every string value, in runes.
const MaxFieldLength = 1000

// linkBackfillConfidence is assigned to links recovered from the description.
const linkBackfillConfidence = 0.8

// labelRules strip leading labels. They are applied in this order and the
// whole table is reapplied until no rule matches, so a value never keeps a
// strippable label after normalization.
var labelRules = []struct {
	label   string
	pattern *regexp.Regexp
}{
	{"issued by", regexp.MustCompile(`(?i)^issued by\s*[:\-]\s*`)},
	{"issuer", regexp.MustCompile(`(?i)^issuer\s*[:\-]\s*`)},
	{"title", regexp.MustCompile(`(?i)^title\s*[:\-]\s*`)},
	{"certificate", regexp.MustCompile(`(?i)^certificate\s*[:\-]\s*`)},
	{"recipient", regexp.MustCompile(`(?i)^recipient\s*[:\-]\s*`)},
}

var (
	ethAddress = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	urlPattern = regexp.MustCompile(`(?i)https?://[^\s)]+`)
)

// Normalize returns a cleaned copy of m, or nil when no field survives.
// It never panics; a field whose cleanup fails is left out.
func Normalize(m *domain.Mapping) *domain.Mapping {
	if m == nil {
		return nil
	}
	out := &domain.Mapping{}

	guard("title", func() { out.Title = normalizeString(m.Title) })
	guard("issuer", func() { out.Issuer = normalizeString(m.Issuer) })
	guard("usefulLinks", func() { out.UsefulLinks = normalizeList(m.UsefulLinks) })
	guard("usefulLinks backfill", func() {
		if out.UsefulLinks == nil {
			out.UsefulLinks = backfillLinks(m.Description)
		}
	})
	guard("startDate", func() { out.StartDate = normalizeDate(m.StartDate) })
	guard("endDate", func() { out.EndDate = normalizeDate(m.EndDate) })
	guard("issuedDate", func() { out.IssuedDate = normalizeDate(m.IssuedDate) })
	guard("description", func() { out.Description = normalizeString(m.Description) })
	guard("category", func() { out.Category = normalizeString(m.Category) })
	guard("skills", func() { out.Skills = normalizeList(m.Skills) })
	guard("recipient", func() { out.Recipient = normalizeString(m.Recipient) })
	guard("recipientAddress", func() { out.RecipientAddress = normalizeAddress(m.RecipientAddress) })

	if out.IsEmpty() {
		return nil
	}
	return out
}

func guard(field string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("normalizer.Normalize: dropping %s: %v", field, r)
		}
	}()
	fn()
}

// Confidence coerces v into [0,1] rounded to two decimals; non-finite values become 0.
func Confidence(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	v = math.Max(0, math.Min(1, v))
	return math.Round(v*100) / 100
}

// CleanString removes control characters, collapses whitespace, strips
// leading labels and truncates to MaxFieldLength runes.
func CleanString(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r' || r == '\f' || r == '\v':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")

	for changed := true; changed; {
		changed = false
		for _, rule := range labelRules {
			if loc := rule.pattern.FindStringIndex(s); loc != nil {
				s = s[loc[1]:]
				changed = true
			}
		}
	}

	if r := []rune(s); len(r) > MaxFieldLength {
		s = strings.TrimSpace(string(r[:MaxFieldLength]))
	}
	return s
}

func normalizeSources(in []domain.Source) []domain.Source {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Source, len(in))
	for i, src := range in {
		out[i] = src
		out[i].Text = strings.TrimSpace(src.Text)
		if src.BBox != nil {
			b := *src.BBox
			out[i].BBox = &b
		}
		if src.ItemIndex != nil {
			idx := *src.ItemIndex
			out[i].ItemIndex = &idx
		}
	}
	return out
}

func normalizeString(f *domain.Field) *domain.Field {
	if f == nil {
		return nil
	}
	value := CleanString(f.Value)
	if value == "" {
		return nil
	}
	original := f.Original
	if original == "" {
		original = f.Value
	}
	return &domain.Field{
		Value:      value,
		Original:   original,
		Confidence: Confidence(f.Confidence),
		Sources:    normalizeSources(f.Sources),
	}
}

func normalizeDate(f *domain.Field) *domain.Field {
	out := normalizeString(f)
	if out == nil {
		return nil
	}
	if iso, ok := ParseDate(out.Value); ok {
		out.Value = iso
		out.Format = domain.DateFormatISO
	}
	return out
}

func normalizeAddress(f *domain.Field) *domain.Field {
	out := normalizeString(f)
	if out != nil && ethAddress.MatchString(out.Value) {
		out.Value = strings.ToLower(out.Value)
	}
	return out
}

func dedupe(vals []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, v := range vals {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func normalizeList(f *domain.ListField) *domain.ListField {
	if f == nil {
		return nil
	}
	cleaned := make([]string, 0, len(f.Value))
	for _, v := range f.Value {
		cleaned = append(cleaned, CleanString(v))
	}
	vals := dedupe(cleaned)
	if len(vals) == 0 {
		return nil
	}
	original := f.Original
	if original == "" {
		original = strings.Join(f.Value, ", ")
	}
	return &domain.ListField{
		Value:      vals,
		Original:   original,
		Confidence: Confidence(f.Confidence),
		Sources:    normalizeSources(f.Sources),
	}
}

// backfillLinks recovers URLs from the description when none were mapped.
func backfillLinks(desc *domain.Field) *domain.ListField {
	if desc == nil {
		return nil
	}
	var found []string
	for _, text := range []string{desc.Value, desc.Original} {
		for _, u := range urlPattern.FindAllString(text, -1) {
			u = strings.TrimSuffix(u, "/")
			if strings.HasPrefix(u, "http://") {
				u = "https://" + strings.TrimPrefix(u, "http://")
			}
			found = append(found, u)
		}
	}
	links := dedupe(found)
	if len(links) == 0 {
		return nil
	}
	return &domain.ListField{
		Value:      links,
		Original:   strings.Join(links, ", "),
		Confidence: linkBackfillConfidence,
	}
}
