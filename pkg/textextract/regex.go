package textextract

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var (
	streamRe   = regexp.MustCompile(`(?s)stream\r?\n(.*?)\r?\nendstream`)
	pageObjRe  = regexp.MustCompile(`/Type\s*/Page[^s]`)
	textShowRe = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)`)
)

var ErrNoText = errors.New("no extractable text found")

// Regex is a last-resort extractor that scrapes literal strings out of the
// raw (optionally Flate-compressed) content streams. Output is LowFidelity.
func Regex(data []byte) (*ExtractedText, error) {
	if !IsPDF(data) {
		return nil, ErrNotPDF
	}

	var streams []string
	for _, m := range streamRe.FindAllSubmatch(data, -1) {
		body := m[1]
		if inflated, err := inflate(body); err == nil {
			body = inflated
		}
		if text := literalStrings(body); text != "" {
			streams = append(streams, text)
		}
	}
	if len(streams) == 0 {
		// Uncompressed files without stream markers still carry literals.
		if text := literalStrings(data); text != "" {
			streams = append(streams, text)
		}
	}
	if len(streams) == 0 {
		return nil, ErrNoText
	}

	pageCount := len(pageObjRe.FindAll(data, -1))
	var pages []Page
	if pageCount == len(streams) {
		for i, s := range streams {
			pages = append(pages, Page{Number: i + 1, Text: s})
		}
	} else {
		pages = []Page{{Number: 1, Text: strings.Join(streams, " ")}}
	}

	var buf strings.Builder
	for _, p := range pages {
		buf.WriteString(p.Text)
		buf.WriteString("\n\n")
	}

	return &ExtractedText{
		Content:     strings.TrimSpace(buf.String()),
		Pages:       pages,
		LowFidelity: true,
		Metadata: map[string]string{
			"type":  "pdf",
			"pages": fmt.Sprint(max(pageCount, len(pages))),
		},
	}, nil
}

func inflate(b []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func literalStrings(b []byte) string {
	var parts []string
	for _, m := range textShowRe.FindAllSubmatch(b, -1) {
		s := unescape(string(m[1]))
		if strings.TrimSpace(s) != "" && printable(s) {
			parts = append(parts, s)
		}
	}
	return CleanText(strings.Join(parts, " "))
}

func unescape(s string) string {
	r := strings.NewReplacer(`\(`, "(", `\)`, ")", `\\`, `\`, `\n`, " ", `\r`, " ", `\t`, " ")
	return r.Replace(s)
}

func printable(s string) bool {
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\t' && r != '\r' {
			return false
		}
	}
	return true
}
