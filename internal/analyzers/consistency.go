package analyzers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/Josepassinato/camada-osprey-core-sub001/internal/validation"
)

type comparison struct {
	rule      string
	label     string
	fields    []string
	normalize func(string) string
}

var comparisons = []comparison{
	{
		rule:      "match_beneficiary_name_across_docs",
		label:     "Beneficiary name",
		fields:    []string{"full_name", "beneficiary_name", "holder_name", "employee_name", "account_holder"},
		normalize: NormalizeName,
	},
	{
		rule:      "match_date_of_birth_across_docs",
		label:     "Date of birth",
		fields:    []string{"date_of_birth"},
		normalize: normalizeDate,
	},
	{
		rule:      "match_passport_number_across_docs",
		label:     "Passport number",
		fields:    []string{"passport_number"},
		normalize: strings.ToUpper,
	},
}

const caseNameRule = "match_case_beneficiary_name"

// ConsistencyChecker compares identity fields across the documents of a case.
type ConsistencyChecker struct{}

func NewConsistencyChecker() *ConsistencyChecker { return &ConsistencyChecker{} }

type observedValue struct {
	document string
	raw      string
	norm     string
}

func (c *ConsistencyChecker) AnalyzeDocumentConsistency(_ context.Context, results []validation.ValidationResult, cc *validation.CaseContext) (validation.ConsistencyAnalysis, error) {
	out := validation.ConsistencyAnalysis{
		ConsistencyScore: 1.0,
		CriticalIssues:   []validation.ConsistencyIssue{},
		Recommendations:  []validation.Recommendation{},
	}
	performed, failed := 0, 0

	for _, cmp := range comparisons {
		values := collect(results, cmp)
		if len(values) < 2 {
			continue
		}
		performed++
		groups := map[string][]string{}
		for _, v := range values {
			groups[v.norm] = append(groups[v.norm], fmt.Sprintf("%s (%s)", v.raw, v.document))
		}
		if len(groups) == 1 {
			continue
		}
		failed++
		out.CriticalIssues = append(out.CriticalIssues, mismatchIssue(cmp, values, groups))
		out.Recommendations = append(out.Recommendations, validation.Recommendation{
			Type:        "consistency",
			Severity:    validation.SeverityHigh,
			Title:       cmp.label + " mismatch",
			Description: fmt.Sprintf("%s differs between documents", cmp.label),
			Actions: []string{
				"Confirm the correct " + strings.ToLower(cmp.label) + " with the beneficiary",
				"Provide an explanation or supporting document for the difference",
			},
		})
	}

	if cc != nil && strings.TrimSpace(cc.BeneficiaryName) != "" {
		expected := NormalizeName(cc.BeneficiaryName)
		names := collect(results, comparisons[0])
		if len(names) > 0 {
			performed++
			var mismatched []string
			for _, v := range names {
				if v.norm != expected {
					mismatched = append(mismatched, v.document)
				}
			}
			if len(mismatched) > 0 {
				failed++
				out.CriticalIssues = append(out.CriticalIssues, validation.ConsistencyIssue{
					RuleName:  caseNameRule,
					Message:   fmt.Sprintf("Name on %s does not match the case beneficiary %q", strings.Join(mismatched, ", "), cc.BeneficiaryName),
					Documents: mismatched,
				})
				out.Recommendations = append(out.Recommendations, validation.Recommendation{
					Type:        "consistency",
					Severity:    validation.SeverityHigh,
					Title:       "Beneficiary name differs from the case",
					Description: "Documents must identify the same person named in the case",
					Actions:     []string{"Check the case record spelling", "Replace documents issued to a different person"},
				})
			}
		}
	}

	if performed > 0 {
		out.ConsistencyScore = 1 - float64(failed)/float64(performed)
	}
	return out, nil
}

func collect(results []validation.ValidationResult, cmp comparison) []observedValue {
	var out []observedValue
	for i, r := range results {
		for _, f := range cmp.fields {
			v, ok := r.Fields.Value(f)
			if !ok || strings.TrimSpace(v) == "" {
				continue
			}
			out = append(out, observedValue{document: docName(r, i), raw: v, norm: cmp.normalize(v)})
			break
		}
	}
	return out
}

func mismatchIssue(cmp comparison, values []observedValue, groups map[string][]string) validation.ConsistencyIssue {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, strings.Join(groups[k], ", "))
	}
	docs := make([]string, 0, len(values))
	for _, v := range values {
		docs = append(docs, v.document)
	}
	return validation.ConsistencyIssue{
		RuleName:  cmp.rule,
		Message:   fmt.Sprintf("%s does not match across documents: %s", cmp.label, strings.Join(parts, " vs ")),
		Documents: docs,
	}
}

func docName(r validation.ValidationResult, i int) string {
	if r.Filename != "" {
		return r.Filename
	}
	return fmt.Sprintf("document %d", i+1)
}

// NormalizeName folds accents and case and ignores token order, so
// "SILVA, María" and "maria silva" compare equal.
func NormalizeName(s string) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, s)
	if err != nil {
		folded = s
	}
	tokens := strings.FieldsFunc(strings.ToLower(folded), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func normalizeDate(s string) string {
	if t, ok := ParseDate(s); ok {
		return t.Format("2006-01-02")
	}
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
