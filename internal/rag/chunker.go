package rag

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// ChapterBoundary marks the start of a chapter inside the normalized text.
// Offsets are rune offsets.
type ChapterBoundary struct {
	Offset int
	Title  string
	Number int
}

// ChunkResult is one segment produced by the chunker. Content is the literal
// span of the normalized text: Content == text[StartOffset:EndOffset] in runes,
// so concatenating chunks in order and de-duplicating the overlap by offset
// reconstructs the source exactly.
type ChunkResult struct {
	Index         int
	Content       string
	StartOffset   int
	EndOffset     int
	ChapterTitle  string
	ChapterNumber int
	TokenCount    int
	ContentHash   string
	Keywords      []string
}

// Chunker splits normalized document text into overlapping, chapter-aware
// segments. Sizes are in runes. Deterministic: the same input always yields
// the same chunk sequence.
type Chunker struct {
	targetSize int
	maxSize    int
	overlap    int
	encoder    *tiktoken.Tiktoken
}

// NewChunker creates a chunker with the given target/max chunk sizes and
// overlap stride. Invalid values fall back to defaults (1200/1600/200).
func NewChunker(targetSize, maxSize, overlap int) *Chunker {
	if targetSize <= 0 {
		targetSize = 1200
	}
	if maxSize < targetSize {
		maxSize = targetSize * 4 / 3
	}
	if overlap < 0 {
		overlap = 200
	}
	if overlap >= targetSize/2 {
		overlap = targetSize / 5
	}

	// cl100k_base needs its BPE ranks available; without them token counts
	// fall back to a word-count estimate.
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		encoder = nil
	}

	return &Chunker{
		targetSize: targetSize,
		maxSize:    maxSize,
		overlap:    overlap,
		encoder:    encoder,
	}
}

// Chunk splits text into ordered chunks. A chapter boundary always forces a
// chunk break: no chunk spans two chapters. Blank text fails with
// ErrEmptyInput.
func (c *Chunker) Chunk(text string, chapters []ChapterBoundary) ([]ChunkResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: chunker requires non-blank text", ErrEmptyInput)
	}

	runes := []rune(text)
	var chunks []ChunkResult
	for _, seg := range chapterSegments(len(runes), chapters) {
		chunks = c.chunkSegment(runes, seg, chunks)
	}
	return chunks, nil
}

type segment struct {
	start, end    int
	chapterTitle  string
	chapterNumber int
}

// chapterSegments converts boundary offsets into contiguous [start,end) rune
// ranges covering the whole text. Text before the first boundary belongs to
// an unlabeled preamble segment.
func chapterSegments(textLen int, chapters []ChapterBoundary) []segment {
	valid := make([]ChapterBoundary, 0, len(chapters))
	for _, ch := range chapters {
		if ch.Offset >= 0 && ch.Offset < textLen {
			valid = append(valid, ch)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].Offset < valid[j].Offset })

	if len(valid) == 0 {
		return []segment{{start: 0, end: textLen}}
	}

	var segs []segment
	if valid[0].Offset > 0 {
		segs = append(segs, segment{start: 0, end: valid[0].Offset})
	}
	for i, ch := range valid {
		end := textLen
		if i+1 < len(valid) {
			end = valid[i+1].Offset
		}
		if end <= ch.Offset {
			continue
		}
		segs = append(segs, segment{
			start:         ch.Offset,
			end:           end,
			chapterTitle:  ch.Title,
			chapterNumber: ch.Number,
		})
	}
	return segs
}

func (c *Chunker) chunkSegment(runes []rune, seg segment, acc []ChunkResult) []ChunkResult {
	start := seg.start
	for start < seg.end {
		end := c.findBreak(runes, start, seg.end)
		content := string(runes[start:end])

		acc = append(acc, ChunkResult{
			Index:         len(acc),
			Content:       content,
			StartOffset:   start,
			EndOffset:     end,
			ChapterTitle:  seg.chapterTitle,
			ChapterNumber: seg.chapterNumber,
			TokenCount:    c.countTokens(content),
			ContentHash:   hashContent(content),
			Keywords:      extractKeywords(content, 10),
		})

		if end >= seg.end {
			break
		}
		start = c.nextStart(runes, start, end)
	}
	return acc
}

// findBreak picks the chunk end offset: the segment end when it fits,
// otherwise the best break at or before maxSize, preferring paragraph breaks,
// then sentence ends, then any whitespace. Never splits mid-word.
func (c *Chunker) findBreak(runes []rune, start, segEnd int) int {
	if segEnd-start <= c.maxSize {
		return segEnd
	}

	limit := start + c.maxSize
	// Breaks closer than half the target produce degenerate slivers.
	floor := start + c.targetSize/2

	if p := lastParagraphBreak(runes, floor, limit); p > 0 {
		return p
	}
	if p := lastSentenceBreak(runes, floor, limit); p > 0 {
		return p
	}
	if p := lastWhitespace(runes, floor, limit); p > 0 {
		return p
	}
	// A run of non-space runes longer than maxSize: extend forward to the
	// next whitespace rather than cutting the word in half.
	for limit < segEnd && !unicode.IsSpace(runes[limit]) {
		limit++
	}
	return limit
}

// nextStart computes the next chunk start inside the previous chunk (the
// overlap window), snapped forward onto a word start so no chunk begins
// mid-word. Always makes progress.
func (c *Chunker) nextStart(runes []rune, prevStart, prevEnd int) int {
	next := prevEnd - c.overlap
	if next <= prevStart {
		next = prevStart + 1
	}
	for next < prevEnd && !unicode.IsSpace(runes[next-1]) {
		next++
	}
	return next
}

func lastParagraphBreak(runes []rune, floor, limit int) int {
	for i := limit; i > floor; i-- {
		if runes[i-1] == '\n' && i >= 2 && runes[i-2] == '\n' {
			return i
		}
	}
	return -1
}

func lastSentenceBreak(runes []rune, floor, limit int) int {
	for i := limit; i > floor; i-- {
		if !unicode.IsSpace(runes[i-1]) {
			continue
		}
		if i >= 2 && isSentenceEnd(runes[i-2]) {
			return i
		}
	}
	return -1
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

func lastWhitespace(runes []rune, floor, limit int) int {
	for i := limit; i > floor; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return -1
}

// countTokens uses the cl100k_base encoding when available, otherwise the
// rough 1 token ≈ 0.75 words approximation.
func (c *Chunker) countTokens(text string) int {
	if c.encoder != nil {
		return len(c.encoder.Encode(text, nil, nil))
	}
	return len(strings.Fields(text)) * 4 / 3
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", sum)
}

var keywordStopWords = map[string]struct{}{
	"this": {}, "that": {}, "with": {}, "have": {}, "will": {}, "from": {},
	"they": {}, "know": {}, "want": {}, "been": {}, "good": {}, "much": {},
	"some": {}, "time": {}, "very": {}, "when": {}, "come": {}, "here": {},
	"just": {}, "like": {}, "long": {}, "make": {}, "many": {}, "over": {},
	"such": {}, "take": {}, "than": {}, "them": {}, "well": {}, "were": {},
	"what": {},
}

// extractKeywords returns the most frequent non-stopword terms of at least
// four letters, frequency-descending with alphabetical tie-break so the
// output is deterministic.
func extractKeywords(text string, max int) []string {
	freq := make(map[string]int)
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		if len(word) < 4 {
			continue
		}
		if _, stop := keywordStopWords[word]; stop {
			continue
		}
		freq[word]++
	}

	words := make([]string, 0, len(freq))
	for w := range freq {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] != freq[words[j]] {
			return freq[words[i]] > freq[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > max {
		words = words[:max]
	}
	return words
}
