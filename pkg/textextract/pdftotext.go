package textextract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

var ErrPDFToolNotFound = errors.New("pdftotext not found in PATH (install poppler-utils)")

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPDFToolNotFound, err)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if s := strings.TrimSpace(stderr.String()); s != "" {
			return nil, fmt.Errorf("%s: %w; stderr=%s", name, err, s)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// PDFToText shells out to poppler's pdftotext. Pages in its output are
// separated by form feeds.
type PDFToText struct {
	Runner CommandRunner
}

func NewPDFToText() *PDFToText {
	return &PDFToText{Runner: execRunner{}}
}

func (p *PDFToText) Extract(ctx context.Context, data []byte) (*ExtractedText, error) {
	if !IsPDF(data) {
		return nil, ErrNotPDF
	}

	tmpDir, err := os.MkdirTemp("", "pdfchat_pdftotext_*")
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	inPath := filepath.Join(tmpDir, "in.pdf")
	if err := os.WriteFile(inPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("write temp pdf: %w", err)
	}

	out, err := p.Runner.Run(ctx, "pdftotext", "-enc", "UTF-8", "-q", inPath, "-")
	if err != nil {
		return nil, err
	}

	return splitFormFeeds(string(out)), nil
}

func splitFormFeeds(out string) *ExtractedText {
	raw := strings.Split(out, "\f")
	// pdftotext terminates the last page with a form feed too.
	if len(raw) > 1 && strings.TrimSpace(raw[len(raw)-1]) == "" {
		raw = raw[:len(raw)-1]
	}

	pages := make([]Page, len(raw))
	var buf strings.Builder
	for i, r := range raw {
		text := CleanText(r)
		pages[i] = Page{Number: i + 1, Text: text}
		if text != "" {
			buf.WriteString(text)
			buf.WriteString("\n\n")
		}
	}

	return &ExtractedText{
		Content: strings.TrimSpace(buf.String()),
		Pages:   pages,
		Metadata: map[string]string{
			"type":  "pdf",
			"pages": fmt.Sprint(len(pages)),
		},
	}
}
