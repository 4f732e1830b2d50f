package analyzers

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	"github.com/Josepassinato/camada-osprey-core-sub001/internal/validation"
)

const (
	DefaultMinFileBytes = 10 * 1024
	DefaultMaxFileBytes = 20 * 1024 * 1024

	// Scans are assumed to be of a letter-size page when estimating DPI.
	pageLongSideInches = 11.0
	lowDPI             = 150.0
)

// QualityChecker inspects raw document bytes for size, format and resolution problems.
type QualityChecker struct {
	MinBytes int
	MaxBytes int
}

func NewQualityChecker() *QualityChecker {
	return &QualityChecker{MinBytes: DefaultMinFileBytes, MaxBytes: DefaultMaxFileBytes}
}

func (q *QualityChecker) AnalyzeQuality(_ context.Context, content []byte, filename string) (validation.QualityReport, error) {
	report := validation.QualityReport{Status: validation.QualityOK}
	report.Checks.FileSize = q.sizeCheck(len(content))

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	sniffed := sniffFormat(content)
	if len(content) > 0 {
		f := formatCheck(ext, sniffed)
		report.Checks.Format = &f
	}

	if sniffed == "jpeg" || sniffed == "png" {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(content)); err == nil {
			long := max(cfg.Width, cfg.Height)
			report.Checks.ImageSpecific = &validation.ImageMetrics{
				Width:        cfg.Width,
				Height:       cfg.Height,
				EstimatedDPI: float64(long) / pageLongSideInches,
			}
		}
	}

	report.Status = worst(report.Checks.FileSize.Status, report.Status)
	if report.Checks.Format != nil {
		report.Status = worst(report.Checks.Format.Status, report.Status)
	}
	if img := report.Checks.ImageSpecific; img != nil && img.EstimatedDPI < lowDPI {
		report.Status = worst(validation.QualityAlert, report.Status)
	}
	return report, nil
}

func (q *QualityChecker) sizeCheck(n int) validation.QualityCheckOutcome {
	switch {
	case n == 0:
		return validation.QualityCheckOutcome{Status: validation.QualityFail, Message: "File is empty"}
	case q.MaxBytes > 0 && n > q.MaxBytes:
		return validation.QualityCheckOutcome{Status: validation.QualityFail, Message: fmt.Sprintf("File is %s, above the %s limit", humanBytes(n), humanBytes(q.MaxBytes))}
	case n < q.MinBytes:
		return validation.QualityCheckOutcome{Status: validation.QualityAlert, Message: fmt.Sprintf("File is only %s; it may be a low quality scan", humanBytes(n))}
	default:
		return validation.QualityCheckOutcome{Status: validation.QualityOK, Message: fmt.Sprintf("File size %s is acceptable", humanBytes(n))}
	}
}

func formatCheck(ext, sniffed string) validation.QualityCheckOutcome {
	declared := ext
	if declared == "jpg" {
		declared = "jpeg"
	}
	switch {
	case sniffed == "":
		return validation.QualityCheckOutcome{Status: validation.QualityFail, Message: "File is not a readable PDF, JPEG or PNG"}
	case declared != "" && declared != sniffed:
		return validation.QualityCheckOutcome{Status: validation.QualityAlert, Message: fmt.Sprintf("File extension %q does not match its %s content", ext, strings.ToUpper(sniffed))}
	default:
		return validation.QualityCheckOutcome{Status: validation.QualityOK, Message: strings.ToUpper(sniffed) + " file"}
	}
}

func sniffFormat(b []byte) string {
	switch {
	case len(b) >= 5 && string(b[:5]) == "%PDF-":
		return "pdf"
	case len(b) >= 2 && b[0] == 0xFF && b[1] == 0xD8:
		return "jpeg"
	case len(b) >= 8 && bytes.Equal(b[:8], []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return "png"
	default:
		return ""
	}
}

var qualityRank = map[validation.QualityStatus]int{
	validation.QualityOK:    0,
	validation.QualityAlert: 1,
	validation.QualityFail:  2,
}

func worst(a, b validation.QualityStatus) validation.QualityStatus {
	if qualityRank[a] >= qualityRank[b] {
		return a
	}
	return b
}

func humanBytes(n int) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	case n >= 1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
