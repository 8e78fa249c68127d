package extractor

import (
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"certmap/internal/domain"
)

const (
	// tjSpaceThreshold is the TJ adjustment (thousandths of an em) treated as a word gap.
	tjSpaceThreshold = -250
	maxStateDepth    = 64
	// maxFormDepth bounds Form XObject nesting, which also stops self-referencing forms.
	maxFormDepth = 8
)

type textState struct {
	ctm      matrix
	font     *fontInfo
	fontSize float64
	leading  float64
	hscale   float64
	charSp   float64
	wordSp   float64
	rise     float64
}

// resources resolves font and XObject names for one content stream.
type resources struct {
	v     pdf.Value
	fonts map[string]*fontInfo
}

func (r *resources) font(name string) *fontInfo {
	if f, ok := r.fonts[name]; ok {
		return f
	}
	f := unknownFont
	if v := r.v.Key("Font").Key(name); !v.IsNull() {
		f = loadFont(v)
	}
	r.fonts[name] = f
	return f
}

// interpreter runs the text operators of a page content stream, and of the
// forms it draws, and collects a TextItem per shown string.
type interpreter struct {
	vp    viewport
	res   *resources
	state textState
	stack []textState
	tm    matrix
	tlm   matrix
	depth int
	items []domain.TextItem
}

func newInterpreter(vp viewport) *interpreter {
	return &interpreter{
		vp:    vp,
		state: textState{ctm: identity, font: unknownFont, hscale: 1},
		tm:    identity,
		tlm:   identity,
	}
}

// interpretPage returns the text items of a page. A content stream that fails
// to parse part way keeps the items found before the failure.
func interpretPage(p pdf.Page, vp viewport) (items []domain.TextItem) {
	in := newInterpreter(vp)
	defer func() {
		if r := recover(); r != nil {
			items = in.items
		}
	}()
	if p.V.IsNull() {
		return nil
	}
	in.run(p.V.Key("Contents"), p.Resources())
	return in.items
}

func (in *interpreter) run(strm, res pdf.Value) {
	if strm.IsNull() {
		return
	}
	prev := in.res
	in.res = &resources{v: res, fonts: map[string]*fontInfo{}}
	defer func() { in.res = prev }()

	pdf.Interpret(strm, func(stk *pdf.Stack, op string) {
		in.exec(op, popOperands(stk))
	})
}

// popOperands empties the stack, bottom operand first.
func popOperands(stk *pdf.Stack) []pdf.Value {
	ops := make([]pdf.Value, stk.Len())
	for i := len(ops) - 1; i >= 0; i-- {
		ops[i] = stk.Pop()
	}
	return ops
}

func numbers(ops []pdf.Value, n int) ([]float64, bool) {
	if len(ops) < n {
		return nil, false
	}
	out := make([]float64, n)
	for i, v := range ops[len(ops)-n:] {
		if k := v.Kind(); k != pdf.Integer && k != pdf.Real {
			return nil, false
		}
		out[i] = v.Float64()
	}
	return out, true
}

func last(ops []pdf.Value, kind pdf.ValueKind) (pdf.Value, bool) {
	if len(ops) == 0 || ops[len(ops)-1].Kind() != kind {
		return pdf.Value{}, false
	}
	return ops[len(ops)-1], true
}

func (in *interpreter) exec(op string, ops []pdf.Value) {
	switch op {
	case "q":
		if len(in.stack) < maxStateDepth {
			in.stack = append(in.stack, in.state)
		}
	case "Q":
		if n := len(in.stack); n > 0 {
			in.state = in.stack[n-1]
			in.stack = in.stack[:n-1]
		}
	case "cm":
		if v, ok := numbers(ops, 6); ok {
			in.state.ctm = matrix{v[0], v[1], v[2], v[3], v[4], v[5]}.mul(in.state.ctm)
		}
	case "Do":
		if name, ok := last(ops, pdf.Name); ok {
			in.drawForm(name.Name())
		}
	case "BT":
		in.tm, in.tlm = identity, identity
	case "Tf":
		if len(ops) >= 2 && ops[len(ops)-2].Kind() == pdf.Name {
			in.state.font = in.res.font(ops[len(ops)-2].Name())
		}
		if v, ok := numbers(ops, 1); ok {
			in.state.fontSize = v[0]
		}
	case "TL":
		if v, ok := numbers(ops, 1); ok {
			in.state.leading = v[0]
		}
	case "Tz":
		if v, ok := numbers(ops, 1); ok {
			in.state.hscale = v[0] / 100
		}
	case "Tc":
		if v, ok := numbers(ops, 1); ok {
			in.state.charSp = v[0]
		}
	case "Tw":
		if v, ok := numbers(ops, 1); ok {
			in.state.wordSp = v[0]
		}
	case "Ts":
		if v, ok := numbers(ops, 1); ok {
			in.state.rise = v[0]
		}
	case "Td":
		if v, ok := numbers(ops, 2); ok {
			in.moveLine(v[0], v[1])
		}
	case "TD":
		if v, ok := numbers(ops, 2); ok {
			in.state.leading = -v[1]
			in.moveLine(v[0], v[1])
		}
	case "Tm":
		if v, ok := numbers(ops, 6); ok {
			in.tlm = matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
			in.tm = in.tlm
		}
	case "T*":
		in.moveLine(0, -in.state.leading)
	case "Tj":
		if s, ok := last(ops, pdf.String); ok {
			in.show([]pdf.Value{s})
		}
	case "'":
		if s, ok := last(ops, pdf.String); ok {
			in.moveLine(0, -in.state.leading)
			in.show([]pdf.Value{s})
		}
	case "\"":
		if len(ops) >= 3 {
			if v, ok := numbers(ops[:len(ops)-1], 2); ok {
				in.state.wordSp, in.state.charSp = v[0], v[1]
			}
		}
		if s, ok := last(ops, pdf.String); ok {
			in.moveLine(0, -in.state.leading)
			in.show([]pdf.Value{s})
		}
	case "TJ":
		if arr, ok := last(ops, pdf.Array); ok {
			parts := make([]pdf.Value, arr.Len())
			for i := range parts {
				parts[i] = arr.Index(i)
			}
			in.show(parts)
		}
	}
}

// drawForm interprets a Form XObject under its /Matrix, with the graphics and
// text state restored afterwards. A form without /Resources inherits the
// resources of the stream that draws it.
func (in *interpreter) drawForm(name string) {
	xo := in.res.v.Key("XObject").Key(name)
	if xo.Kind() != pdf.Stream || xo.Key("Subtype").Name() != "Form" || in.depth >= maxFormDepth {
		return
	}

	saved, stack, tm, tlm := in.state, append([]textState(nil), in.stack...), in.tm, in.tlm
	defer func() {
		in.state, in.stack, in.tm, in.tlm = saved, stack, tm, tlm
		in.depth--
	}()
	in.depth++

	if m, ok := numbers(arrayValues(xo.Key("Matrix")), 6); ok {
		in.state.ctm = matrix{m[0], m[1], m[2], m[3], m[4], m[5]}.mul(in.state.ctm)
	}
	res := xo.Key("Resources")
	if res.IsNull() {
		res = in.res.v
	}
	in.run(xo, res)
}

func arrayValues(v pdf.Value) []pdf.Value {
	out := make([]pdf.Value, v.Len())
	for i := range out {
		out[i] = v.Index(i)
	}
	return out
}

func (in *interpreter) moveLine(tx, ty float64) {
	in.tlm = translate(tx, ty).mul(in.tlm)
	in.tm = in.tlm
}

// show emits one item for a run of strings and kerning adjustments and
// advances the text matrix past it.
func (in *interpreter) show(parts []pdf.Value) {
	st := in.state
	var sb strings.Builder
	advance := 0.0
	for _, p := range parts {
		switch p.Kind() {
		case pdf.String:
			raw := p.RawString()
			sb.WriteString(st.font.decode(raw))
			advance += in.stringAdvance(raw)
		case pdf.Integer, pdf.Real:
			n := p.Float64()
			advance -= n / 1000 * st.fontSize * st.hscale
			if n < tjSpaceThreshold && sb.Len() > 0 && !strings.HasSuffix(sb.String(), " ") {
				sb.WriteByte(' ')
			}
		}
	}

	start := translate(0, st.rise).mul(in.tm).mul(st.ctm)
	in.tm = translate(advance, 0).mul(in.tm)

	str := sb.String()
	if strings.TrimSpace(str) == "" {
		return
	}
	width := advance
	if width < 0 {
		width = -width
	}
	in.items = append(in.items, domain.TextItem{
		Str:       str,
		BBox:      bboxOf(start, st.fontSize, width, in.vp),
		Transform: start,
		FontSize:  st.fontSize,
		Width:     width,
	})
}

// stringAdvance sums glyph widths plus character and word spacing. Word
// spacing applies to the single-byte code 32 only.
func (in *interpreter) stringAdvance(raw string) float64 {
	st := in.state
	total := 0.0
	for _, code := range st.font.codes(raw) {
		total += st.font.width(code)/1000*st.fontSize + st.charSp
		if code == ' ' && !st.font.composite {
			total += st.wordSp
		}
	}
	return total * st.hscale
}

// cleanText turns tabs and line breaks into spaces and drops other control
// characters.
func cleanText(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			sb.WriteByte(' ')
		case unicode.IsControl(r):
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
