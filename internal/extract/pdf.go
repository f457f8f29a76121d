package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dslipak/pdf"
)

func extractPDF(data []byte) (*Result, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	var buf strings.Builder
	pages := r.NumPage()
	for i := 1; i <= pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages that cannot be decoded instead of failing the book.
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n")
	}

	text := Normalize(buf.String())
	if text == "" {
		return nil, fmt.Errorf("pdf contains no extractable text")
	}
	return &Result{
		Text:      text,
		PageCount: pages,
		WordCount: len(strings.Fields(text)),
	}, nil
}
