package extract

import (
	"regexp"
	"strings"
	"unicode"
)

var multiBlankLines = regexp.MustCompile(`\n{3,}`)

// Normalize canonicalizes extracted text so chunking and hashing are
// deterministic across extraction backends: unified line endings, no control
// characters, at most one blank line between paragraphs, trimmed edges.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			b.WriteRune(r)
		}
	}
	text = b.String()

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text = strings.Join(lines, "\n")

	text = multiBlankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
