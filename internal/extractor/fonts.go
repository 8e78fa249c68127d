package extractor

import (
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/font"
)

// defaultGlyphWidth is the advance, in thousandths of an em, of a glyph the
// font gives no metrics for.
const defaultGlyphWidth = 500

// fontInfo decodes shown strings of one font resource and measures them.
type fontInfo struct {
	name      string
	enc       pdf.TextEncoding
	composite bool

	firstChar int
	widths    []float64
	missing   float64

	cidWidths    map[int]float64
	defaultWidth float64
}

// unknownFont stands in until a Tf selects a font, and for Tf names the
// resources do not define. It decodes with PDFDocEncoding.
var unknownFont = loadFont(pdf.Value{})

func loadFont(v pdf.Value) *fontInfo {
	f := pdf.Font{V: v}
	fi := &fontInfo{
		name:    baseFontName(f.BaseFont()),
		enc:     f.Encoder(),
		missing: v.Key("FontDescriptor").Key("MissingWidth").Float64(),
	}

	if v.Key("Subtype").Name() == "Type0" {
		fi.composite = true
		fi.loadCIDWidths(v.Key("DescendantFonts").Index(0))
		return fi
	}
	fi.firstChar = f.FirstChar()
	fi.widths = f.Widths()
	return fi
}

// loadCIDWidths reads /DW and the /W array of a descendant CIDFont. /W mixes
// "c [w1 w2 ...]" runs and "cFirst cLast w" ranges.
func (f *fontInfo) loadCIDWidths(desc pdf.Value) {
	f.defaultWidth = 1000
	if dw := desc.Key("DW"); !dw.IsNull() {
		f.defaultWidth = dw.Float64()
	}
	f.cidWidths = map[int]float64{}
	w := desc.Key("W")
	for i := 0; i < w.Len(); {
		first := int(w.Index(i).Int64())
		next := w.Index(i + 1)
		if next.Kind() == pdf.Array {
			for j := 0; j < next.Len(); j++ {
				f.cidWidths[first+j] = next.Index(j).Float64()
			}
			i += 2
			continue
		}
		if i+2 >= w.Len() {
			return
		}
		last, width := int(next.Int64()), w.Index(i+2).Float64()
		for c := first; c <= last && c-first < 0xFFFF; c++ {
			f.cidWidths[c] = width
		}
		i += 3
	}
}

// baseFontName drops the "ABCDEF+" subset tag.
func baseFontName(name string) string {
	if i := strings.IndexByte(name, '+'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// decode maps raw string bytes to text through the font's ToUnicode CMap or
// its encoding and differences.
func (f *fontInfo) decode(raw string) string {
	return cleanText(f.enc.Decode(raw))
}

// codes splits raw string bytes into character codes. Composite fonts are read
// as two-byte codes (Identity-H and the other horizontal CMaps in practice).
func (f *fontInfo) codes(raw string) []int {
	if !f.composite {
		out := make([]int, len(raw))
		for i := 0; i < len(raw); i++ {
			out[i] = int(raw[i])
		}
		return out
	}
	out := make([]int, 0, (len(raw)+1)/2)
	for i := 0; i < len(raw); i += 2 {
		c := int(raw[i]) << 8
		if i+1 < len(raw) {
			c |= int(raw[i+1])
		}
		out = append(out, c)
	}
	return out
}

// width returns the advance of code in thousandths of an em.
func (f *fontInfo) width(code int) float64 {
	if f.composite {
		if w, ok := f.cidWidths[code]; ok {
			return w
		}
		return f.defaultWidth
	}
	if i := code - f.firstChar; i >= 0 && i < len(f.widths) && f.widths[i] > 0 {
		return f.widths[i]
	}
	// The standard 14 fonts may omit /Widths.
	if f.name != "" && font.IsCoreFont(f.name) {
		return float64(font.CharWidth(f.name, rune(code)))
	}
	if f.missing > 0 {
		return f.missing
	}
	return defaultGlyphWidth
}
