package extract

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Result is the outcome of text extraction from an uploaded file.
type Result struct {
	Text      string
	PageCount int
	WordCount int
}

// SupportedTypes lists the upload extensions the extractor accepts.
var SupportedTypes = []string{".txt", ".md", ".pdf"}

// Supported reports whether the filename's extension can be extracted.
func Supported(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, t := range SupportedTypes {
		if ext == t {
			return true
		}
	}
	return false
}

// FileType returns the lower-cased extension without the dot.
func FileType(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}

// Extract pulls normalized text out of an uploaded file, dispatching on the
// file extension.
func Extract(filename string, data []byte) (*Result, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md":
		return extractPlainText(data)
	case ".pdf":
		return extractPDF(data)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(filename))
	}
}

func extractPlainText(data []byte) (*Result, error) {
	text := Normalize(string(data))
	words := len(strings.Fields(text))
	return &Result{
		Text:      text,
		WordCount: words,
		// Plain text has no native pages; approximate at 300 words per page.
		PageCount: (words + 299) / 300,
	}, nil
}
