package document

import (
	"bytes"
	"context"
	"fmt"

	"github.com/nikhilbhutani/pdfchat/internal/apperr"
	"github.com/nikhilbhutani/pdfchat/pkg/textextract"
)

const (
	ExtractorLibrary   = "library"
	ExtractorPDFToText = "pdftotext"
	ExtractorRegex     = "regex"
)

// Extractor turns a stored PDF into page-aware text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (*textextract.ExtractedText, error)
	Name() string
}

// NewExtractor returns the strategy configured by PDF_EXTRACTOR.
func NewExtractor(kind string) (Extractor, error) {
	switch kind {
	case "", ExtractorLibrary:
		return libraryExtractor{}, nil
	case ExtractorPDFToText:
		return &pdfToTextExtractor{tool: textextract.NewPDFToText()}, nil
	case ExtractorRegex:
		return regexExtractor{}, nil
	default:
		return nil, apperr.Config("pdf extractor", fmt.Sprintf("unknown extractor %q", kind))
	}
}

type libraryExtractor struct{}

func (libraryExtractor) Name() string { return ExtractorLibrary }

func (libraryExtractor) Extract(_ context.Context, data []byte) (out *textextract.ExtractedText, err error) {
	if !textextract.IsPDF(data) {
		return nil, textextract.ErrNotPDF
	}
	// The PDF reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("parse PDF: %v", r)
		}
	}()
	return textextract.PDF(bytes.NewReader(data), int64(len(data)))
}

type pdfToTextExtractor struct {
	tool *textextract.PDFToText
}

func (e *pdfToTextExtractor) Name() string { return ExtractorPDFToText }

func (e *pdfToTextExtractor) Extract(ctx context.Context, data []byte) (*textextract.ExtractedText, error) {
	return e.tool.Extract(ctx, data)
}

type regexExtractor struct{}

func (regexExtractor) Name() string { return ExtractorRegex }

func (regexExtractor) Extract(_ context.Context, data []byte) (*textextract.ExtractedText, error) {
	return textextract.Regex(data)
}
