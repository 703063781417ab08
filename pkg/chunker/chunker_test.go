package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/pdfchat/pkg/textextract"
)

func longPage(sentences int) string {
	parts := make([]string, sentences)
	for i := range parts {
		parts[i] = fmt.Sprintf("Sentence number %d talks about topic %d in some detail.", i, i%7)
	}
	return strings.Join(parts, " ")
}

func TestSplit_ShortPagesOneChunkEach(t *testing.T) {
	pages := []textextract.Page{
		{Number: 1, Text: "  Alpha page.  "},
		{Number: 2, Text: "Beta page."},
		{Number: 3, Text: "Gamma page."},
	}

	chunks := Split(pages, DefaultOptions())

	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, i+1, c.Page)
		assert.Zero(t, c.Overlap)
	}
	assert.Equal(t, "Alpha page.", chunks[0].Text)
}

func TestSplit_SkipsBlankPages(t *testing.T) {
	pages := []textextract.Page{
		{Number: 1, Text: "   \n\t"},
		{Number: 2, Text: "Only content."},
		{Number: 3, Text: ""},
	}

	chunks := Split(pages, DefaultOptions())

	require.Len(t, chunks, 1)
	assert.Equal(t, 2, chunks[0].Page)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestSplit_LongPageRespectsBoundsAndOverlap(t *testing.T) {
	opts := Options{ChunkSize: 200, Overlap: 20}
	text := longPage(30)

	chunks := Split([]textextract.Page{{Number: 4, Text: text}}, opts)
	require.Greater(t, len(chunks), 1)

	var rebuilt []string
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, 4, c.Page)
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), opts.ChunkSize)
		assert.LessOrEqual(t, c.Overlap, opts.Overlap)

		if i > 0 {
			prevWords := strings.Fields(chunks[i-1].Text)
			carried := strings.Fields(c.Text[:c.Overlap])
			require.NotEmpty(t, carried, "chunk %d should carry trailing words", i)
			assert.Equal(t, prevWords[len(prevWords)-len(carried):], carried)
		}
		rebuilt = append(rebuilt, strings.TrimSpace(c.Text[c.Overlap:]))
	}

	assert.Equal(t, text, strings.Join(rebuilt, " "))
}

func TestSplit_IndicesContiguousAcrossPages(t *testing.T) {
	opts := Options{ChunkSize: 150, Overlap: 15}
	pages := []textextract.Page{
		{Number: 1, Text: longPage(8)},
		{Number: 2, Text: "Short one."},
		{Number: 3, Text: longPage(8)},
	}

	chunks := Split(pages, opts)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
	}
	assert.Equal(t, 1, chunks[0].Page)
	assert.Equal(t, 3, chunks[len(chunks)-1].Page)
}

func TestSplit_OversizedSentenceKeptWhole(t *testing.T) {
	opts := Options{ChunkSize: 50, Overlap: 5}
	giant := strings.Repeat("word ", 30) + "end."
	text := "Tiny start. " + giant + " Tiny end."

	chunks := Split([]textextract.Page{{Number: 1, Text: text}}, opts)

	var found bool
	for _, c := range chunks {
		if strings.Contains(c.Text, strings.TrimSpace(giant)) {
			found = true
			assert.Greater(t, utf8.RuneCountInString(c.Text), opts.ChunkSize)
		} else {
			assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), opts.ChunkSize)
		}
	}
	assert.True(t, found, "oversized sentence must not be split")
}

func TestSentences(t *testing.T) {
	got := Sentences("One. Two!  Three? Four.Five 3.14 is pi.")
	assert.Equal(t, []string{"One.", "Two!", "Three?", "Four.Five 3.14 is pi."}, got)
}

func TestTrailingWords(t *testing.T) {
	assert.Equal(t, "quick brown", trailingWords("the very quick brown", 11))
	assert.Equal(t, "", trailingWords("supercalifragilistic", 5))
	assert.Equal(t, "", trailingWords("a b c", 0))
}

func TestOptionsForSize(t *testing.T) {
	assert.Equal(t, Options{ChunkSize: 500, Overlap: 50}, OptionsForSize(500))
	assert.Equal(t, DefaultOptions(), OptionsForSize(0))
}
