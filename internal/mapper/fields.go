package mapper

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"certmap/internal/domain"
)

var (
	issuerLabel    = regexp.MustCompile(`(?i)(?:issued by|issuer|presented by)[:\-\s]`)
	urlPattern     = regexp.MustCompile(`(?i)https?://[^\s)]+`)
	ethPattern     = regexp.MustCompile(`0x[a-fA-F0-9]{40}`)
	recipientLabel = regexp.MustCompile(`(?i)\b(?:awarded to|presented to|certified to|recipient|to)\b[\s:\-]*(.+)`)
	skillsLabel    = regexp.MustCompile(`(?i)^skills[:\-\s]`)
	skillsPrefix   = regexp.MustCompile(`(?i)^skills[:\-\s]*`)
	listSplit      = regexp.MustCompile(`[,;\n]`)
)

type rankedItem struct {
	index int
	item  *domain.TextItem
}

// byHeight returns the items of page tallest first; equal heights keep their order.
func byHeight(page *domain.Page) []rankedItem {
	ranked := make([]rankedItem, len(page.Items))
	for i := range page.Items {
		ranked[i] = rankedItem{index: i, item: &page.Items[i]}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].item.BBox.H > ranked[b].item.BBox.H
	})
	return ranked
}

func sizeBonus(h, avgH, limit float64) float64 {
	if avgH == 0 {
		return math.Min(limit, 0.1)
	}
	return math.Min(limit, h/avgH)
}

func titleField(in *input) *domain.Mapping {
	if len(in.ext.Pages) > 0 {
		page := &in.ext.Pages[0]
		if ranked := byHeight(page); len(ranked) > 0 {
			best := ranked[0]
			if val := strings.TrimSpace(best.item.Str); runeLen(val) > 3 {
				return &domain.Mapping{Title: &domain.Field{
					Value:      val,
					Confidence: round2(0.6 + sizeBonus(best.item.BBox.H, in.avgH, 0.4)),
					Sources:    sources(itemSource(page.PageNumber, best.index, best.item)),
				}}
			}
		}
	}

	for _, l := range in.lines {
		if n := runeLen(l); n >= 5 && n <= 200 {
			src := findSource(in.ext, l)
			conf := 0.45
			if src != nil {
				conf = 0.6
			}
			return &domain.Mapping{Title: &domain.Field{Value: l, Confidence: conf, Sources: sources(src)}}
		}
	}
	return nil
}

func issuerField(in *input) *domain.Mapping {
	for _, l := range in.lines {
		loc := issuerLabel.FindStringIndex(l)
		if loc == nil {
			continue
		}
		val := strings.TrimLeft(strings.TrimSpace(l[loc[1]:]), ":- ")
		if val == "" {
			break
		}
		src := findSource(in.ext, l)
		conf := 0.6
		if src != nil {
			conf = 0.75
		}
		return &domain.Mapping{Issuer: &domain.Field{Value: val, Confidence: conf, Sources: sources(src)}}
	}

	if len(in.ext.Pages) == 0 {
		return nil
	}
	page := &in.ext.Pages[0]
	ranked := byHeight(page)
	if len(ranked) < 2 {
		return nil
	}
	second := ranked[1]
	val := strings.TrimSpace(second.item.Str)
	if runeLen(val) <= 1 {
		return nil
	}
	return &domain.Mapping{Issuer: &domain.Field{
		Value:      val,
		Confidence: round2(0.6 + sizeBonus(second.item.BBox.H, in.avgH, 0.35)),
		Sources:    sources(itemSource(page.PageNumber, second.index, second.item)),
	}}
}

// normalizeURL drops one trailing slash and upgrades plain http to https.
func normalizeURL(u string) string {
	u = strings.TrimSuffix(u, "/")
	if strings.HasPrefix(u, "http://") {
		u = "https://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// FindLinks returns the distinct URLs in text, normalized, in order of appearance.
func FindLinks(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, raw := range urlPattern.FindAllString(text, -1) {
		u := normalizeURL(raw)
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

func linksField(in *input) *domain.Mapping {
	links := FindLinks(in.plain)
	if len(links) == 0 {
		return nil
	}
	srcs := make([]domain.Source, len(links))
	for i, u := range links {
		srcs[i] = domain.Source{Text: u}
	}
	return &domain.Mapping{UsefulLinks: &domain.ListField{Value: links, Confidence: 0.9, Sources: srcs}}
}

func recipientFields(in *input) *domain.Mapping {
	if addr := ethPattern.FindString(in.plain); addr != "" {
		return &domain.Mapping{RecipientAddress: &domain.Field{
			Value:      addr,
			Confidence: 0.98,
			Sources:    sources(findSource(in.ext, addr)),
		}}
	}
	for _, l := range in.lines {
		m := recipientLabel.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		val := strings.TrimSpace(m[1])
		if val == "" {
			continue
		}
		src := findSource(in.ext, l)
		conf := 0.5
		if src != nil {
			conf = 0.75
		}
		return &domain.Mapping{Recipient: &domain.Field{Value: val, Confidence: conf, Sources: sources(src)}}
	}
	return nil
}

func descriptionField(in *input) *domain.Mapping {
	if len(in.lines) <= 2 {
		return nil
	}
	end := len(in.lines)
	if end > 6 {
		end = 6
	}
	desc := strings.Join(in.lines[1:end], " ")
	if runeLen(desc) <= 30 {
		return nil
	}
	return &domain.Mapping{Description: &domain.Field{
		Value:      desc,
		Confidence: 0.5,
		Sources:    sources(findSource(in.ext, in.lines[1])),
	}}
}

func splitList(s string) []string {
	var out []string
	for _, part := range listSplit.Split(s, -1) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func skillsField(in *input) *domain.Mapping {
	for i, l := range in.lines {
		if !skillsLabel.MatchString(l) {
			continue
		}
		if vals := splitList(skillsPrefix.ReplaceAllString(l, "")); len(vals) > 0 {
			return &domain.Mapping{Skills: &domain.ListField{
				Value: vals, Confidence: 0.6, Sources: sources(findSource(in.ext, l)),
			}}
		}
		if i+1 < len(in.lines) {
			next := in.lines[i+1]
			if vals := splitList(next); len(vals) > 0 {
				return &domain.Mapping{Skills: &domain.ListField{
					Value: vals, Confidence: 0.55, Sources: sources(findSource(in.ext, next)),
				}}
			}
		}
		return nil
	}
	return nil
}
