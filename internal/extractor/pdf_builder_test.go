package extractor_test

import (
	"bytes"
	"fmt"
	"strings"
)

// testDoc assembles a minimal PDF. Object 3 is Helvetica, available to every
// page as /F1; objects added with add are numbered from 4.
type testDoc struct {
	objects  []string
	fonts    string
	xobjects string
}

func newTestDoc() *testDoc {
	return &testDoc{objects: []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}}
}

// add appends an object and returns its number.
func (d *testDoc) add(body string) int {
	d.objects = append(d.objects, body)
	return len(d.objects)
}

// font registers a font resource for every page.
func (d *testDoc) font(name, body string) {
	d.fonts += fmt.Sprintf(" /%s %d 0 R", name, d.add(body))
}

// xobject registers an XObject resource for every page.
func (d *testDoc) xobject(name, body string) {
	d.xobjects += fmt.Sprintf(" /%s %d 0 R", name, d.add(body))
}

func stream(dict, data string) string {
	return fmt.Sprintf("<< %s /Length %d >>\nstream\n%s\nendstream", dict, len(data), data)
}

// build adds one page per content stream and serializes the document.
func (d *testDoc) build(contents ...string) []byte {
	res := "/Font << /F1 3 0 R" + d.fonts + " >>"
	if d.xobjects != "" {
		res += " /XObject <<" + d.xobjects + " >>"
	}
	kids := make([]string, 0, len(contents))
	for _, c := range contents {
		content := d.add(stream("", c))
		page := d.add(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
			"/Resources << %s >> /Contents %d 0 R >>", res, content))
		kids = append(kids, fmt.Sprintf("%d 0 R", page))
	}
	d.objects[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(kids))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(d.objects))
	for i, body := range d.objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, o := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", o)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

// buildPDF builds a document whose pages only use /F1.
func buildPDF(contents ...string) []byte {
	return newTestDoc().build(contents...)
}

// toUnicodeCMap maps single-byte codes 01..04 to "Jane".
const toUnicodeCMap = `/CIDInit /ProcSet findresource begin
12 dict begin
begincmap
/CMapName /Certmap-Test def
1 begincodespacerange
<00> <FF>
endcodespacerange
4 beginbfchar
<01> <004A>
<02> <0061>
<03> <006E>
<04> <0065>
endbfchar
endcmap
CMapName currentdict /CMap defineresource pop
end
end`
