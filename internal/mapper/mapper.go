// Package mapper suggests certificate form fields from an extraction using
// deterministic text and layout heuristics.
package mapper

import (
	"log"
	"math"
	"regexp"
	"strings"

	"certmap/internal/domain"
)

// heuristic proposes one or more fields. A nil result means nothing was found.
type heuristic struct {
	name string
	fn   func(in *input) *domain.Mapping
}

var heuristics = []heuristic{
	{"title", titleField},
	{"issuer", issuerField},
	{"usefulLinks", linksField},
	{"dates", dateFields},
	{"recipient", recipientFields},
	{"description", descriptionField},
	{"skills", skillsField},
	{"category", categoryField},
}

// input is the precomputed view of an extraction shared by all heuristics.
type input struct {
	ext   *domain.Extraction
	plain string
	lines []string
	avgH  float64
}

var lineSplit = regexp.MustCompile(`\r?\n`)

func newInput(ext *domain.Extraction) *input {
	if ext == nil {
		ext = &domain.Extraction{}
	}
	in := &input{ext: ext, plain: ext.PlainText, avgH: averageHeight(ext)}
	for _, l := range lineSplit.Split(strings.ReplaceAll(ext.PlainText, "\f", "\n"), -1) {
		if l = strings.TrimSpace(l); l != "" {
			in.lines = append(in.lines, l)
		}
	}
	return in
}

// Map runs every heuristic over ext. It never panics and never mutates ext;
// a heuristic that fails simply contributes no field.
func Map(ext *domain.Extraction) *domain.Mapping {
	in := newInput(ext)
	out := &domain.Mapping{}
	for _, h := range heuristics {
		merge(out, run(h, in))
	}
	return out
}

func run(h heuristic, in *input) (partial *domain.Mapping) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("mapper.Map: %s heuristic failed: %v", h.name, r)
			partial = nil
		}
	}()
	return h.fn(in)
}

// merge copies fields set in src that are still unset in dst.
func merge(dst, src *domain.Mapping) {
	if src == nil {
		return
	}
	srcFields := src.StringFields()
	for i, nf := range dst.StringFields() {
		if *nf.Field == nil {
			*nf.Field = *srcFields[i].Field
		}
	}
	if dst.UsefulLinks == nil {
		dst.UsefulLinks = src.UsefulLinks
	}
	if dst.Skills == nil {
		dst.Skills = src.Skills
	}
}

func averageHeight(ext *domain.Extraction) float64 {
	sum, n := 0.0, 0
	for _, p := range ext.Pages {
		for _, it := range p.Items {
			sum += it.BBox.H
			n++
		}
	}
	if n == 0 {
		return 10
	}
	return sum / float64(n)
}

// findSource returns the first item on any page whose text contains snippet,
// ignoring case.
func findSource(ext *domain.Extraction, snippet string) *domain.Source {
	if snippet == "" {
		return nil
	}
	needle := strings.ToLower(snippet)
	for _, p := range ext.Pages {
		for i := range p.Items {
			it := &p.Items[i]
			if it.Str == "" {
				continue
			}
			if strings.Contains(strings.ToLower(it.Str), needle) {
				return itemSource(p.PageNumber, i, it)
			}
		}
	}
	return nil
}

func itemSource(page, index int, it *domain.TextItem) *domain.Source {
	idx := index
	bbox := it.BBox
	return &domain.Source{Page: page, ItemIndex: &idx, BBox: &bbox, Text: it.Str}
}

func sources(src *domain.Source) []domain.Source {
	if src == nil {
		return nil
	}
	return []domain.Source{*src}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func runeLen(s string) int {
	return len([]rune(s))
}
