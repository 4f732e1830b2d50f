package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Josepassinato/camada-osprey-core-sub001/internal/validation"
)

const Disclaimer = "This automated review flags common problems in supporting documents. It is not legal advice and does not guarantee acceptance by USCIS or any consular post."

// DocumentMarkdown renders a single validation result.
func DocumentMarkdown(r validation.ValidationResult, generated time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Document Validation Report\n\n")
	fmt.Fprintf(&b, "- Document ID: %s\n", r.DocumentID)
	if r.Filename != "" {
		fmt.Fprintf(&b, "- File: %s\n", r.Filename)
	}
	fmt.Fprintf(&b, "- Document type: %s\n", r.DocType)
	fmt.Fprintf(&b, "- Date: %s\n\n", generated.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "%s\n\n", Disclaimer)

	writeDocumentBody(&b, r, "##")
	return b.String()
}

// BatchMarkdown renders a batch result with one section per document.
func BatchMarkdown(br validation.BatchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Case Document Review\n\n")
	fmt.Fprintf(&b, "- Batch ID: %s\n", br.BatchID)
	fmt.Fprintf(&b, "- Documents: %d\n", br.DocumentCount)
	fmt.Fprintf(&b, "- Date: %s\n\n", br.Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "%s\n\n", Disclaimer)

	fmt.Fprintf(&b, "## Summary\n\n")
	fmt.Fprintf(&b, "Final decision: **%s** (score %.2f).\n\n", br.FinalDecision, br.OverallScore)
	if br.ErrorMessage != "" {
		fmt.Fprintf(&b, "Batch could not be completed: %s\n\n", br.ErrorMessage)
	}
	if len(br.IndividualResults) > 0 {
		b.WriteString("| # | File | Type | Decision | Score |\n|---|---|---|---|---|\n")
		for i, r := range br.IndividualResults {
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %.2f |\n", i+1, cell(r.Filename), cell(r.DocType), r.Decision, r.OverallScore)
		}
		b.WriteString("\n")
	}

	if ca := br.ConsistencyAnalysis; ca != nil {
		fmt.Fprintf(&b, "## Cross-Document Consistency\n\n")
		fmt.Fprintf(&b, "Consistency score: %.2f\n\n", ca.ConsistencyScore)
		if len(ca.CriticalIssues) == 0 {
			b.WriteString("- No conflicts found between documents.\n")
		}
		for _, issue := range ca.CriticalIssues {
			fmt.Fprintf(&b, "- **%s**: %s\n", issue.RuleName, issue.Message)
		}
		b.WriteString("\n")
	}

	if len(br.SummaryIssues) > 0 {
		fmt.Fprintf(&b, "## Issues\n\n")
		for _, issue := range br.SummaryIssues {
			label := issue.Type
			if issue.Document != "" {
				label += " (" + issue.Document + ")"
			}
			fmt.Fprintf(&b, "- %s: %s\n", label, issue.Message)
		}
		b.WriteString("\n")
	}

	if len(br.Recommendations) > 0 {
		fmt.Fprintf(&b, "## Recommendations\n\n")
		for _, rec := range br.Recommendations {
			fmt.Fprintf(&b, "### %s (%s)\n\n", rec.Title, rec.Severity)
			if rec.Description != "" {
				fmt.Fprintf(&b, "%s\n\n", rec.Description)
			}
			for _, a := range rec.Actions {
				fmt.Fprintf(&b, "- %s\n", a)
			}
			b.WriteString("\n")
		}
	}

	for i, r := range br.IndividualResults {
		title := r.Filename
		if title == "" {
			title = r.DocumentID
		}
		fmt.Fprintf(&b, "## Document %d: %s\n\n", i+1, title)
		writeDocumentBody(&b, r, "###")
	}
	return b.String()
}

func writeDocumentBody(b *strings.Builder, r validation.ValidationResult, h string) {
	fmt.Fprintf(b, "%s Decision\n\n", h)
	fmt.Fprintf(b, "- Value: `%s`\n", r.Decision)
	fmt.Fprintf(b, "- Score: %.2f\n", r.OverallScore)
	if r.Status == validation.StatusError {
		fmt.Fprintf(b, "- Error: %s (stage %s)\n", r.ErrorMessage, r.ErrorStage)
	}
	if c := r.Classification; c != nil {
		fmt.Fprintf(b, "- Classified as: %s (confidence %.2f)\n", c.SuggestedDocType, c.Confidence)
	}
	b.WriteString("\n")

	if len(r.Messages) > 0 {
		for _, m := range r.Messages {
			fmt.Fprintf(b, "%s  \n", m)
		}
		b.WriteString("\n")
	}

	checks := append(append([]validation.PolicyCheck{}, r.PolicyChecks...), r.Consistency...)
	if len(checks) > 0 {
		fmt.Fprintf(b, "%s Checks\n\n", h)
		b.WriteString("| Rule | Result | Severity | Message |\n|---|---|---|---|\n")
		for _, c := range checks {
			fmt.Fprintf(b, "| %s | %s | %s | %s |\n", cell(c.Rule), c.Result, c.Severity, cell(c.Message))
		}
		b.WriteString("\n")
	}

	if r.Fields != nil && len(r.Fields.PolicyFields) > 0 {
		fmt.Fprintf(b, "%s Extracted Fields\n\n", h)
		b.WriteString("| Field | Required | Value | Confidence | Issues |\n|---|---|---|---|---|\n")
		names := make([]string, 0, len(r.Fields.PolicyFields))
		for name := range r.Fields.PolicyFields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			f := r.Fields.PolicyFields[name]
			value, conf, issues := "not found", "", ""
			if f.BestMatch != nil {
				if f.Found {
					value = f.BestMatch.Value
					conf = fmt.Sprintf("%.2f", f.BestMatch.Validation.Confidence)
				}
				issues = strings.Join(f.BestMatch.Validation.Issues, "; ")
			}
			fmt.Fprintf(b, "| %s | %s | %s | %s | %s |\n", name, yesNo(f.Required), cell(value), conf, cell(issues))
		}
		b.WriteString("\n")
	}

	if la := r.LanguageAnalysis; la != nil {
		fmt.Fprintf(b, "%s Language\n\n", h)
		fmt.Fprintf(b, "- Detected: %s\n", la.DetectedLanguage)
		fmt.Fprintf(b, "- Compliance: %s\n", la.Compliance.Message)
		if tc := r.TranslationCertificate; tc != nil {
			fmt.Fprintf(b, "- Certified translation detected: %s\n", yesNo(tc.HasTranslationCertificate))
		}
		for _, rec := range la.Recommendations {
			fmt.Fprintf(b, "- %s (%s): %s\n", rec.Title, rec.Severity, rec.Description)
		}
		b.WriteString("\n")
	}
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
