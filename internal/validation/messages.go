package validation

import (
	"fmt"
	"strings"

	"github.com/Josepassinato/camada-osprey-core-sub001/internal/policy"
)

const (
	maxLanguageRecommendations = 2
	maxInvalidFieldMessages    = 3
)

// feedbackMessages renders r for display. Order is fixed: headline, language,
// failed checks, then field issues.
func feedbackMessages(p *policy.Policy, r *ValidationResult) []string {
	msgs := []string{headline(r.Decision, r.OverallScore)}

	if la := r.LanguageAnalysis; la != nil && la.RequiresAction {
		msg := la.Compliance.Message
		if msg == "" {
			msg = "document must be in English or accompanied by a certified translation"
		}
		msgs = append(msgs, "🌐 Language requirement: "+msg)
		added := 0
		for _, rec := range la.Recommendations {
			if added == maxLanguageRecommendations {
				break
			}
			if rec.Severity != SeverityHigh && rec.Severity != SeverityCritical {
				continue
			}
			msgs = append(msgs, fmt.Sprintf("   • %s: %s", rec.Title, rec.Description))
			added++
		}
	}

	for _, c := range r.PolicyChecks {
		if c.Result != CheckFail {
			continue
		}
		if c.Severity == SeverityCritical || c.Severity == SeverityHigh {
			msgs = append(msgs, "❌ "+c.Message)
		}
	}

	if r.Fields != nil {
		var missing []string
		invalid := 0
		for _, f := range p.RequiredFields {
			fe, ok := r.Fields.PolicyFields[f.Name]
			if !ok {
				continue
			}
			if !fe.Found {
				missing = append(missing, f.Name)
			}
		}
		if len(missing) > 0 {
			msgs = append(msgs, "📋 Missing required fields: "+strings.Join(missing, ", "))
		}
		for _, f := range p.RequiredFields {
			if invalid == maxInvalidFieldMessages {
				break
			}
			fe := r.Fields.PolicyFields[f.Name]
			if !fe.Found || fe.BestMatch == nil || fe.BestMatch.Validation.IsValid {
				continue
			}
			line := fmt.Sprintf("⚠️ Field %q looks invalid", f.Name)
			if issues := fe.BestMatch.Validation.Issues; len(issues) > 0 {
				line += ": " + strings.Join(issues, "; ")
			}
			msgs = append(msgs, line)
			invalid++
		}
	}
	return msgs
}

func headline(d Decision, score float64) string {
	switch d {
	case DecisionPass:
		return fmt.Sprintf("✅ Document approved (score %.2f)", score)
	case DecisionAlert:
		return fmt.Sprintf("⚠️ Document accepted with warnings (score %.2f); review the items below", score)
	default:
		return fmt.Sprintf("❌ Document rejected (score %.2f); fix the issues below and resubmit", score)
	}
}
