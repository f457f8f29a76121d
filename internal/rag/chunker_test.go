package rag

import (
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/require"
)

func TestChunker_EmptyInput(t *testing.T) {
	c := NewChunker(100, 150, 20)

	_, err := c.Chunk("", nil)
	require.ErrorIs(t, err, ErrEmptyInput)

	_, err = c.Chunk("   \n\t  ", nil)
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestChunker_ShortTextSingleChunk(t *testing.T) {
	c := NewChunker(100, 150, 20)

	chunks, err := c.Chunk("A short text.", nil)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, "A short text.", chunks[0].Content)
	require.Equal(t, 0, chunks[0].StartOffset)
	require.Equal(t, len([]rune("A short text.")), chunks[0].EndOffset)
}

func TestChunker_Deterministic(t *testing.T) {
	c := NewChunker(100, 150, 20)
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 50)

	first, err := c.Chunk(text, nil)
	require.NoError(t, err)
	second, err := c.Chunk(text, nil)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestChunker_CoverageReconstruction(t *testing.T) {
	c := NewChunker(100, 150, 20)
	text := strings.TrimSpace(strings.Repeat("Something always happens in the village near the old river bank. ", 40))

	chunks, err := c.Chunk(text, nil)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	runes := []rune(text)
	require.Equal(t, 0, chunks[0].StartOffset)
	require.Equal(t, len(runes), chunks[len(chunks)-1].EndOffset)

	for i, ch := range chunks {
		require.Equal(t, string(runes[ch.StartOffset:ch.EndOffset]), ch.Content,
			"chunk %d content must equal its source span", i)
		if i > 0 {
			prev := chunks[i-1]
			require.LessOrEqual(t, ch.StartOffset, prev.EndOffset,
				"chunk %d must start inside or at the end of the previous chunk", i)
			require.Greater(t, ch.EndOffset, prev.EndOffset,
				"chunk %d must extend past the previous chunk", i)
		}
	}

	// De-duplicating the overlap by offset rebuilds the exact source.
	var rebuilt strings.Builder
	covered := 0
	for _, ch := range chunks {
		start := ch.StartOffset
		if start < covered {
			start = covered
		}
		rebuilt.WriteString(string(runes[start:ch.EndOffset]))
		covered = ch.EndOffset
	}
	require.Equal(t, text, rebuilt.String())
}

func TestChunker_NoMidWordSplits(t *testing.T) {
	c := NewChunker(80, 120, 15)
	text := strings.Repeat("extraordinary circumstances demand extraordinary perseverance from everyone involved ", 30)

	chunks, err := c.Chunk(strings.TrimSpace(text), nil)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	runes := []rune(strings.TrimSpace(text))
	for i, ch := range chunks {
		if ch.StartOffset > 0 {
			require.True(t, unicode.IsSpace(runes[ch.StartOffset-1]),
				"chunk %d starts mid-word", i)
		}
		if ch.EndOffset < len(runes) {
			require.True(t, unicode.IsSpace(runes[ch.EndOffset-1]) || unicode.IsSpace(runes[ch.EndOffset]),
				"chunk %d ends mid-word", i)
		}
	}
}

func TestChunker_ChapterContainment(t *testing.T) {
	c := NewChunker(60, 90, 10)

	ch1 := "Chapter 1\n" + strings.Repeat("First chapter sentences about sailing ships at dawn. ", 10)
	ch2 := "Chapter 2\n" + strings.Repeat("Second chapter sentences about mountain passes in winter. ", 10)
	text := ch1 + ch2

	boundaries := []ChapterBoundary{
		{Offset: 0, Title: "Chapter 1", Number: 1},
		{Offset: len([]rune(ch1)), Title: "Chapter 2", Number: 2},
	}

	chunks, err := c.Chunk(text, boundaries)
	require.NoError(t, err)

	ch2Start := len([]rune(ch1))
	for i, chunk := range chunks {
		if chunk.ChapterNumber == 1 {
			require.LessOrEqual(t, chunk.EndOffset, ch2Start,
				"chunk %d of chapter 1 spills into chapter 2", i)
		} else {
			require.Equal(t, 2, chunk.ChapterNumber)
			require.GreaterOrEqual(t, chunk.StartOffset, ch2Start,
				"chunk %d of chapter 2 starts before its boundary", i)
		}
	}

	// Both chapters must be represented.
	titles := make(map[string]bool)
	for _, chunk := range chunks {
		titles[chunk.ChapterTitle] = true
	}
	require.True(t, titles["Chapter 1"])
	require.True(t, titles["Chapter 2"])
}

func TestChunker_PreambleBeforeFirstChapter(t *testing.T) {
	c := NewChunker(100, 150, 20)
	preamble := "An introduction before any chapter starts.\n"
	body := "Chapter 1\nThe story begins here."
	text := preamble + body

	chunks, err := c.Chunk(text, []ChapterBoundary{
		{Offset: len([]rune(preamble)), Title: "Chapter 1", Number: 1},
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)
	require.Empty(t, chunks[0].ChapterTitle)
	require.Equal(t, "Chapter 1", chunks[1].ChapterTitle)
}

func TestChunker_ChunkIndexesAreSequential(t *testing.T) {
	c := NewChunker(60, 90, 10)
	text := strings.Repeat("Plenty of words to force more than one chunk out of this text. ", 20)

	chunks, err := c.Chunk(strings.TrimSpace(text), nil)
	require.NoError(t, err)
	for i, chunk := range chunks {
		require.Equal(t, i, chunk.Index)
	}
}

func TestExtractKeywords(t *testing.T) {
	text := "Treasure treasure treasure map island island captain the and a of"
	words := extractKeywords(text, 3)
	require.Equal(t, []string{"treasure", "island", "captain"}, words)
}

func TestChunker_HashStableAcrossRuns(t *testing.T) {
	c := NewChunker(100, 150, 20)
	chunks, err := c.Chunk("Stable content for hashing.", nil)
	require.NoError(t, err)
	require.Equal(t, hashContent("Stable content for hashing."), chunks[0].ContentHash)
}
