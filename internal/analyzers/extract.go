package analyzers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxDocumentBytes = 20 * 1024 * 1024
	maxTextRun       = 24000
	minPrintableRun  = 24
)

type TextExtraction struct {
	Text      string `json:"text"`
	Method    string `json:"method"`
	Truncated bool   `json:"truncated,omitempty"`
}

// ExtractText reads a local document and returns its text. PDFs go through
// pdftotext with a printable-bytes fallback; plain text files are read as is.
// Images yield no text and no error.
func ExtractText(ctx context.Context, path string) (TextExtraction, []byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return TextExtraction{}, nil, err
	}
	if info.Size() > maxDocumentBytes {
		return TextExtraction{}, nil, fmt.Errorf("document too large: %d bytes", info.Size())
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return TextExtraction{}, nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".text", ".md":
		return truncateExtraction(string(blob), "plain-text"), blob, nil
	case ".jpg", ".jpeg", ".png":
		return TextExtraction{Method: "none"}, blob, nil
	}

	if sniffFormat(blob) == "pdf" {
		if text, err := runPdfToText(ctx, path); err == nil && strings.TrimSpace(text) != "" {
			return truncateExtraction(text, "pdftotext"), blob, nil
		}
	}
	fallback := extractPrintableText(blob)
	if strings.TrimSpace(fallback) == "" {
		return TextExtraction{}, blob, errors.New("no extractable text found")
	}
	return truncateExtraction(fallback, "byte-fallback"), blob, nil
}

func runPdfToText(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, "pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func extractPrintableText(blob []byte) string {
	var runs []string
	var b strings.Builder
	flush := func() {
		s := strings.TrimSpace(b.String())
		if len(s) >= minPrintableRun {
			runs = append(runs, s)
		}
		b.Reset()
	}
	for _, c := range blob {
		r := rune(c)
		if c < utf8.RuneSelf && (unicode.IsPrint(r) || r == '\n' || r == '\t' || r == '\r') {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return strings.TrimSpace(strings.Join(runs, "\n"))
}

func truncateExtraction(text, method string) TextExtraction {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= maxTextRun {
		return TextExtraction{Text: trimmed, Method: method}
	}
	prefix := trimmed[:maxTextRun]
	// Drop a trailing partial rune.
	prefix = string(bytes.ToValidUTF8([]byte(prefix), nil))
	return TextExtraction{
		Text:      prefix + "\n\n[TRUNCATED]",
		Method:    method,
		Truncated: true,
	}
}

// ExtractTextFromBytes runs ExtractText over uploaded content by staging it in
// a temporary file that keeps the original extension.
func ExtractTextFromBytes(ctx context.Context, filename string, content []byte) (TextExtraction, error) {
	if len(content) == 0 {
		return TextExtraction{}, errors.New("empty document")
	}
	if len(content) > maxDocumentBytes {
		return TextExtraction{}, fmt.Errorf("document too large: %d bytes", len(content))
	}
	f, err := os.CreateTemp("", "upload-*"+strings.ToLower(filepath.Ext(filename)))
	if err != nil {
		return TextExtraction{}, err
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(content); err != nil {
		f.Close()
		return TextExtraction{}, err
	}
	if err := f.Close(); err != nil {
		return TextExtraction{}, err
	}
	out, _, err := ExtractText(ctx, f.Name())
	return out, err
}
