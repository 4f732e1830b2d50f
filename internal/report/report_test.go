package report

import (
	"strings"
	"testing"
	"time"

	"github.com/Josepassinato/camada-osprey-core-sub001/internal/validation"
)

func sampleResult() validation.ValidationResult {
	return validation.ValidationResult{
		DocumentID:   "doc-1",
		DocType:      "passport",
		Filename:     "passport.pdf",
		Status:       validation.StatusDone,
		Decision:     validation.DecisionAlert,
		OverallScore: 0.78,
		PolicyChecks: []validation.PolicyCheck{
			{Rule: "presence:photo", Result: validation.CheckPass, Message: "Photo | signature present", Severity: validation.SeverityLow},
		},
		Consistency: []validation.PolicyCheck{},
		Fields: &validation.FieldExtractionResult{PolicyFields: map[string]validation.FieldExtraction{
			"passport_number": {Found: true, Required: true, BestMatch: &validation.FieldMatch{Value: "FX123456", Validation: validation.FieldValidation{IsValid: true, Confidence: 0.95}}},
			"date_of_expiry":  {Required: true},
		}},
		LanguageAnalysis: &validation.LanguageAnalysis{DetectedLanguage: "en", Compliance: validation.LanguageCompliance{Compliant: true, Message: "Document is in English"}},
		Messages:         []string{"⚠️ Document accepted with warnings (score 0.78); review the items below"},
	}
}

func TestDocumentMarkdown(t *testing.T) {
	md := DocumentMarkdown(sampleResult(), time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC))
	for _, want := range []string{
		"# Document Validation Report",
		"- Date: 2026-05-06T07:08:09Z",
		"- Value: `ALERT`",
		"- Score: 0.78",
		`| presence:photo | pass | low | Photo \| signature present |`,
		"| date_of_expiry | yes | not found |  |  |",
		"| passport_number | yes | FX123456 | 0.95 |  |",
		"- Detected: en",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("expected %q in report:\n%s", want, md)
		}
	}
	if strings.Index(md, "date_of_expiry") > strings.Index(md, "passport_number") {
		t.Fatal("expected fields sorted by name")
	}
}

func TestBatchMarkdown(t *testing.T) {
	r := sampleResult()
	br := validation.BatchResult{
		BatchID:           "batch-1",
		Status:            validation.StatusDone,
		DocumentCount:     1,
		IndividualResults: []validation.ValidationResult{r},
		ConsistencyAnalysis: &validation.ConsistencyAnalysis{
			ConsistencyScore: 0.5,
			CriticalIssues:   []validation.ConsistencyIssue{{RuleName: "match_beneficiary_name_across_docs", Message: "Beneficiary name does not match"}},
		},
		OverallScore:  0.6,
		FinalDecision: validation.DecisionFail,
		SummaryIssues: []validation.SummaryIssue{{Type: "consistency_failure", Rule: "match_beneficiary_name_across_docs", Message: "Beneficiary name does not match"}},
		Recommendations: []validation.Recommendation{
			{Type: "consistency", Severity: validation.SeverityHigh, Title: "Beneficiary name mismatch", Actions: []string{"Confirm the spelling"}},
		},
		Timestamp: time.Date(2026, 5, 6, 0, 0, 0, 0, time.UTC),
	}
	md := BatchMarkdown(br)
	for _, want := range []string{
		"Final decision: **FAIL** (score 0.60).",
		"| 1 | passport.pdf | passport | ALERT | 0.78 |",
		"Consistency score: 0.50",
		"- consistency_failure: Beneficiary name does not match",
		"### Beneficiary name mismatch (high)",
		"## Document 1: passport.pdf",
		"### Checks",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("expected %q in batch report:\n%s", want, md)
		}
	}
}

func TestRenderHTMLTables(t *testing.T) {
	out, err := RenderHTML("Report <1>", DocumentMarkdown(sampleResult(), time.Now()))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "<table>") {
		t.Fatal("expected GFM table in html")
	}
	if !strings.Contains(out, "<title>Report &lt;1&gt;</title>") {
		t.Fatal("expected escaped title")
	}
	if !strings.HasPrefix(out, "<!doctype html>") {
		t.Fatal("expected a complete html document")
	}
}
