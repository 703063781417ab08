package textextract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

var ErrNotPDF = errors.New("not a PDF file")

// Page is the text of a single 1-based PDF page.
type Page struct {
	Number int
	Text   string
}

type ExtractedText struct {
	Content  string
	Pages    []Page
	Metadata map[string]string
	// LowFidelity marks output from heuristics that may drop or garble text.
	LowFidelity bool
}

// PageCount counts pages including those with no extractable text.
func (e *ExtractedText) PageCount() int {
	if e == nil {
		return 0
	}
	n := 0
	for _, p := range e.Pages {
		if p.Number > n {
			n = p.Number
		}
	}
	return n
}

// IsPDF reports whether data starts with the PDF magic header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data[:min(len(data), 1024)], "\x00\t\r\n "), []byte("%PDF"))
}

// PDF extracts per-page plain text using the pure-Go PDF reader.
func PDF(data io.ReaderAt, size int64) (*ExtractedText, error) {
	reader, err := pdf.NewReader(data, size)
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	numPages := reader.NumPage()
	pages := make([]Page, 0, numPages)
	var buf strings.Builder

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, Page{Number: i})
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, Page{Number: i})
			continue
		}
		text = CleanText(text)
		pages = append(pages, Page{Number: i, Text: text})
		if text != "" {
			buf.WriteString(text)
			buf.WriteString("\n\n")
		}
	}

	meta := infoMetadata(reader)
	meta["type"] = "pdf"
	meta["pages"] = fmt.Sprint(numPages)

	return &ExtractedText{
		Content:  strings.TrimSpace(buf.String()),
		Pages:    pages,
		Metadata: meta,
	}, nil
}

func infoMetadata(r *pdf.Reader) map[string]string {
	meta := map[string]string{}
	info := r.Trailer().Key("Info")
	if info.IsNull() {
		return meta
	}
	for key, name := range map[string]string{
		"Title":        "title",
		"Author":       "author",
		"Subject":      "subject",
		"Creator":      "creator",
		"Producer":     "producer",
		"CreationDate": "creation_date",
		"ModDate":      "modification_date",
	} {
		if v := strings.TrimSpace(info.Key(key).Text()); v != "" {
			meta[name] = v
		}
	}
	return meta
}

// CleanText collapses whitespace runs to single spaces and trims.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
