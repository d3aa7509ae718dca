package extract

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"
)

// nativePDFText reads the text layer embedded in a PDF, page by page in
// page order. A scanned, image-only document yields (almost) no text here
// and the engine falls back to rasterization.
type nativePDFText struct{}

func NewPDFText() PDFText {
	return nativePDFText{}
}

func (nativePDFText) Text(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			// a broken page text stream behaves like an empty one;
			// the rasterize fallback still sees the full document
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(text)
	}
	return b.String(), nil
}
