package validation

import "github.com/Josepassinato/camada-osprey-core-sub001/internal/policy"

// ScoreBreakdown holds the unweighted terms of a document score.
type ScoreBreakdown struct {
	Quality            float64 `json:"quality"`
	PolicyChecks       float64 `json:"policy_checks"`
	LanguageCompliance float64 `json:"language_compliance"`
	FieldExtraction    float64 `json:"field_extraction"`
	Consistency        float64 `json:"consistency"`
}

// Total applies w to the breakdown. Weights are used as given and never
// renormalized, so a term that contributes nothing lowers the score.
func (b ScoreBreakdown) Total(w policy.Weights) float64 {
	return b.Quality*w.Quality +
		b.PolicyChecks*(w.CriticalFields+w.PresenceChecks) +
		b.LanguageCompliance*w.LanguageCompliance +
		b.FieldExtraction*w.FieldExtraction +
		b.Consistency*w.Consistency
}

var qualityScores = map[QualityStatus]float64{
	QualityOK:    1.0,
	QualityAlert: 0.7,
	QualityFail:  0.0,
}

func scoreBreakdown(p *policy.Policy, r *ValidationResult) ScoreBreakdown {
	var b ScoreBreakdown

	if r.Quality != nil {
		b.Quality = qualityScores[r.Quality.Status]
	}

	// No checks contributes nothing rather than full credit.
	if n := len(r.PolicyChecks); n > 0 {
		b.PolicyChecks = float64(countResult(r.PolicyChecks, CheckPass)) / float64(n)
	}

	b.LanguageCompliance = 0.3
	if r.LanguageAnalysis != nil && r.LanguageAnalysis.Compliance.Compliant {
		b.LanguageCompliance = 1.0
	}

	b.FieldExtraction = 1.0
	if r.Fields != nil {
		n, sum := 0, 0.0
		for _, f := range p.RequiredFields {
			fe, ok := r.Fields.PolicyFields[f.Name]
			if !ok {
				continue
			}
			n++
			if fe.Valid() {
				sum += fe.BestMatch.Validation.Confidence
			}
		}
		if n > 0 {
			b.FieldExtraction = sum / float64(n)
		}
	}

	b.Consistency = 1.0
	if n := len(r.Consistency); n > 0 {
		b.Consistency = float64(countResult(r.Consistency, CheckPass)) / float64(n)
	}
	return b
}

func countResult(checks []PolicyCheck, want CheckResult) int {
	n := 0
	for _, c := range checks {
		if c.Result == want {
			n++
		}
	}
	return n
}

func classifyScore(score, pass, alert float64) Decision {
	switch {
	case score >= pass:
		return DecisionPass
	case score >= alert:
		return DecisionAlert
	default:
		return DecisionFail
	}
}

// decide maps score to a decision after the critical overrides: a failed
// critical check, or a required translation without a certificate, is FAIL.
func decide(score float64, r *ValidationResult) Decision {
	for _, c := range r.PolicyChecks {
		if c.Result == CheckFail && c.Severity == SeverityCritical {
			return DecisionFail
		}
	}
	if r.LanguageAnalysis != nil && r.LanguageAnalysis.RequiresAction &&
		(r.TranslationCertificate == nil || !r.TranslationCertificate.HasTranslationCertificate) {
		return DecisionFail
	}
	return classifyScore(score, SinglePassThreshold, SingleAlertThreshold)
}

func batchScore(results []ValidationResult, consistency float64) float64 {
	avg := 0.0
	if len(results) > 0 {
		sum := 0.0
		for _, r := range results {
			sum += r.OverallScore
		}
		avg = sum / float64(len(results))
	}
	return avg*batchIndividualWeight + consistency*batchConsistencyWeight
}
