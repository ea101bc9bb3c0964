// Package pdftest builds small PDF documents for tests.
package pdftest

import (
	"bytes"
	"fmt"
)

// Page describes one page. A zero Width or Height inherits the document's default box.
type Page struct {
	Width  float64
	Height float64
	Rotate int
}

// Build returns a PDF whose page tree carries a default MediaBox of width x height.
func Build(width, height float64, pages ...Page) []byte {
	if len(pages) == 0 {
		pages = []Page{{}}
	}
	var objects []string
	objects = append(objects, "<< /Type /Catalog /Pages 2 0 R >>")

	kids := ""
	for i := range pages {
		kids += fmt.Sprintf("%d 0 R ", i+3)
	}
	objects = append(objects, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 %g %g] >>",
		kids, len(pages), width, height))

	for _, p := range pages {
		dict := "<< /Type /Page /Parent 2 0 R"
		if p.Width > 0 && p.Height > 0 {
			dict += fmt.Sprintf(" /MediaBox [0 0 %g %g]", p.Width, p.Height)
		}
		if p.Rotate != 0 {
			dict += fmt.Sprintf(" /Rotate %d", p.Rotate)
		}
		dict += " >>"
		objects = append(objects, dict)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

// Letter returns a PDF of n US Letter pages.
func Letter(n int) []byte {
	pages := make([]Page, n)
	return Build(612, 792, pages...)
}
