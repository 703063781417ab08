package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nikhilbhutani/pdfchat/pkg/textextract"
)

type Options struct {
	ChunkSize int // max characters per chunk
	Overlap   int // max characters of trailing words carried into the next chunk
}

// Chunk is a bounded span of one page's text.
type Chunk struct {
	Text  string
	Page  int
	Index int
	// Overlap is the byte length of the prefix of Text carried over from
	// the previous chunk.
	Overlap int
}

func DefaultOptions() Options {
	return Options{ChunkSize: 1000, Overlap: 100}
}

// OptionsForSize derives the ~10% overlap from the chunk size.
func OptionsForSize(size int) Options {
	if size <= 0 {
		return DefaultOptions()
	}
	return Options{ChunkSize: size, Overlap: size / 10}
}

// Split chunks each page independently. Chunks never cross page boundaries
// and indices are contiguous across the whole document. A single sentence
// longer than ChunkSize becomes its own oversized chunk.
func Split(pages []textextract.Page, opts Options) []Chunk {
	if opts.ChunkSize <= 0 {
		opts = DefaultOptions()
	}
	if opts.Overlap < 0 {
		opts.Overlap = 0
	}

	var chunks []Chunk
	for _, p := range pages {
		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}
		if utf8.RuneCountInString(text) <= opts.ChunkSize {
			chunks = append(chunks, Chunk{Text: text, Page: p.Number, Index: len(chunks)})
			continue
		}
		for _, c := range splitPage(text, opts) {
			c.Page = p.Number
			c.Index = len(chunks)
			chunks = append(chunks, c)
		}
	}
	return chunks
}

func splitPage(text string, opts Options) []Chunk {
	var (
		out     []Chunk
		current string
		overlap int
		fresh   bool // current holds at least one sentence not yet emitted
	)

	for _, s := range Sentences(text) {
		candidate := join(current, s)
		if fresh && utf8.RuneCountInString(candidate) > opts.ChunkSize {
			out = append(out, Chunk{Text: current, Overlap: overlap})

			carry := trailingWords(current, opts.Overlap)
			current, overlap = carry, len(carry)
			candidate = join(current, s)
			if utf8.RuneCountInString(candidate) > opts.ChunkSize {
				current, overlap = "", 0
				candidate = s
			}
		}
		current = candidate
		fresh = true
	}
	if fresh {
		out = append(out, Chunk{Text: current, Overlap: overlap})
	}
	return out
}

// Sentences splits on '.', '!' or '?' followed by whitespace. The
// terminator stays with its sentence.
func Sentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		next, size := utf8.DecodeRuneInString(text[i+1:])
		if size == 0 || !unicode.IsSpace(next) {
			continue
		}
		if s := strings.TrimSpace(text[start : i+1]); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// trailingWords returns the longest run of whole trailing words of s whose
// space-joined length fits in limit characters.
func trailingWords(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	words := strings.Fields(s)
	n, length := 0, 0
	for i := len(words) - 1; i >= 0; i-- {
		l := utf8.RuneCountInString(words[i])
		if n > 0 {
			l++
		}
		if length+l > limit {
			break
		}
		length += l
		n++
	}
	return strings.Join(words[len(words)-n:], " ")
}

func join(a, b string) string {
	if a == "" {
		return b
	}
	return a + " " + b
}
