package extract

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"chaptr/internal/rag"
)

// chapterHeading matches headings of the form "Chapter 3", "Part 12" or
// "Section 7" at the start of a line, optionally followed by a title.
var chapterHeading = regexp.MustCompile(`(?im)^[ \t]*((?:chapter|part|section)[ \t]+(\d+))\b[ \t]*[:.\-—]?[ \t]*(.*)$`)

// DetectChapters scans normalized text for chapter headings and returns their
// boundaries with rune offsets, in document order. Text without recognizable
// headings yields nil, which chunking treats as a single unlabeled segment.
func DetectChapters(text string) []rag.ChapterBoundary {
	matches := chapterHeading.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	boundaries := make([]rag.ChapterBoundary, 0, len(matches))
	for _, m := range matches {
		headStart := m[2]
		number, _ := strconv.Atoi(text[m[4]:m[5]])

		title := strings.TrimSpace(text[m[2]:m[3]])
		if rest := strings.TrimSpace(text[m[6]:m[7]]); rest != "" {
			title += ": " + rest
		}

		boundaries = append(boundaries, rag.ChapterBoundary{
			Offset: utf8.RuneCountInString(text[:headStart]),
			Title:  title,
			Number: number,
		})
	}
	return boundaries
}
