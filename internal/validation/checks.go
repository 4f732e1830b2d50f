package validation

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/Josepassinato/camada-osprey-core-sub001/internal/policy"
)

// Resolution below this fraction of the policy minimum is a hard failure.
const dpiFailRatio = 0.70

var (
	englishMarkers = map[string]bool{
		"the": true, "and": true, "of": true, "date": true, "name": true, "birth": true,
		"certificate": true, "issued": true, "this": true, "with": true, "is": true,
		"for": true, "by": true, "on": true, "place": true, "father": true, "mother": true,
	}
	portugueseMarkers = map[string]bool{
		"de": true, "da": true, "do": true, "dos": true, "das": true, "nome": true,
		"data": true, "nascimento": true, "certidão": true, "registro": true, "que": true,
		"não": true, "para": true, "com": true, "em": true, "pai": true, "mãe": true,
	}
	sealIndicators = []string{
		"seal", "stamp", "sealed", "official", "selo", "carimbo", "oficial", "cartório",
		"notary", "notarized", "apostille", "apostila", "registrar",
	}
	signatureIndicators = []string{
		"signature", "signed", "assinatura", "assinado", "/s/", "signatory",
	}
)

// policyChecks runs the quality, language, presence and snippet checks of p.
func policyChecks(p *policy.Policy, q QualityReport, filename, text string) []PolicyCheck {
	checks := qualityChecks(p, q, filename)
	if c, ok := languageCheck(p, text); ok {
		checks = append(checks, c)
	}
	checks = append(checks, presenceChecks(p, text)...)
	checks = append(checks, snippetChecks(p, text)...)
	return checks
}

func qualityChecks(p *policy.Policy, q QualityReport, filename string) []PolicyCheck {
	checks := []PolicyCheck{mirrorQuality("quality:file_size", q.Checks.FileSize)}
	if q.Checks.Format != nil {
		checks = append(checks, mirrorQuality("quality:format", *q.Checks.Format))
	}

	if len(p.Quality.AcceptedFormats) > 0 {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
		accepted := false
		for _, f := range p.Quality.AcceptedFormats {
			if strings.EqualFold(strings.TrimPrefix(f, "."), ext) {
				accepted = true
				break
			}
		}
		if accepted {
			checks = append(checks, PolicyCheck{Rule: "quality:accepted_format", Result: CheckPass, Message: fmt.Sprintf("File format %q is accepted", ext), Severity: SeverityLow})
		} else {
			checks = append(checks, PolicyCheck{
				Rule:     "quality:accepted_format",
				Result:   CheckFail,
				Message:  fmt.Sprintf("File format %q is not accepted; use one of: %s", ext, strings.Join(p.Quality.AcceptedFormats, ", ")),
				Severity: SeverityHigh,
			})
		}
	}

	if p.Quality.MinDPI > 0 && q.Checks.ImageSpecific != nil {
		dpi := q.Checks.ImageSpecific.EstimatedDPI
		switch {
		case dpi >= p.Quality.MinDPI:
			checks = append(checks, PolicyCheck{Rule: "quality:resolution", Result: CheckPass, Message: fmt.Sprintf("Estimated resolution %.0f DPI meets the %.0f DPI minimum", dpi, p.Quality.MinDPI), Severity: SeverityLow})
		case dpi < p.Quality.MinDPI*dpiFailRatio:
			checks = append(checks, PolicyCheck{Rule: "quality:resolution", Result: CheckFail, Message: fmt.Sprintf("Estimated resolution %.0f DPI is far below the %.0f DPI minimum; rescan the document", dpi, p.Quality.MinDPI), Severity: SeverityHigh})
		default:
			checks = append(checks, PolicyCheck{Rule: "quality:resolution", Result: CheckAlert, Message: fmt.Sprintf("Estimated resolution %.0f DPI is below the %.0f DPI minimum", dpi, p.Quality.MinDPI), Severity: SeverityMedium})
		}
	}
	return checks
}

func mirrorQuality(rule string, o QualityCheckOutcome) PolicyCheck {
	c := PolicyCheck{Rule: rule, Message: o.Message}
	switch o.Status {
	case QualityOK:
		c.Result, c.Severity = CheckPass, SeverityLow
	case QualityAlert:
		c.Result, c.Severity = CheckAlert, SeverityMedium
	default:
		c.Result, c.Severity = CheckFail, SeverityHigh
	}
	if c.Message == "" {
		c.Message = fmt.Sprintf("%s: %s", rule, o.Status)
	}
	return c
}

// languageCheck is a majority vote of English against Portuguese marker words.
// It only applies to policies requiring English or a certified translation.
func languageCheck(p *policy.Policy, text string) (PolicyCheck, bool) {
	if !p.RequiresTranslation() || strings.TrimSpace(text) == "" {
		return PolicyCheck{}, false
	}
	en, pt := languageVotes(text)
	if en >= pt {
		return PolicyCheck{Rule: "language:en_or_translation", Result: CheckPass, Message: "Document text is predominantly English", Severity: SeverityLow}, true
	}
	return PolicyCheck{
		Rule:     "language:en_or_translation",
		Result:   CheckFail,
		Message:  "Document text is predominantly Portuguese; an English version or certified translation is required",
		Severity: SeverityCritical,
	}, true
}

func languageVotes(text string) (english, portuguese int) {
	for _, w := range words(text) {
		if englishMarkers[w] {
			english++
		}
		if portugueseMarkers[w] {
			portuguese++
		}
	}
	return english, portuguese
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

func presenceChecks(p *policy.Policy, text string) []PolicyCheck {
	lower := strings.ToLower(text)
	var checks []PolicyCheck
	for _, name := range p.PresenceChecks.Names() {
		var indicators []string
		var label string
		switch name {
		case policy.PresenceOfficialSeal:
			indicators, label = sealIndicators, "official seal or stamp"
		case policy.PresenceSignature:
			indicators, label = signatureIndicators, "signature"
		}
		rule := "presence:" + name
		if countAny(lower, indicators...) > 0 {
			checks = append(checks, PolicyCheck{Rule: rule, Result: CheckPass, Message: fmt.Sprintf("Indicators of a %s were found", label), Severity: SeverityLow})
			continue
		}
		checks = append(checks, PolicyCheck{Rule: rule, Result: CheckAlert, Message: fmt.Sprintf("Could not confirm the document shows a %s", label), Severity: SeverityMedium})
	}
	return checks
}

func snippetChecks(p *policy.Policy, text string) []PolicyCheck {
	lower := strings.ToLower(text)
	var checks []PolicyCheck
	for _, snippet := range p.RequiredTextSnippets {
		rule := "snippet:" + snippet
		if strings.Contains(lower, strings.ToLower(snippet)) {
			checks = append(checks, PolicyCheck{Rule: rule, Result: CheckPass, Message: fmt.Sprintf("Required text %q found", snippet), Severity: SeverityLow})
			continue
		}
		checks = append(checks, PolicyCheck{Rule: rule, Result: CheckFail, Message: fmt.Sprintf("Required text %q not found in document", snippet), Severity: SeverityCritical})
	}
	return checks
}

// ruleChecks evaluates the policy's custom expressions. A rule that cannot be
// evaluated is reported as an alert rather than a failure.
func ruleChecks(p *policy.Policy, f policy.Facts) []PolicyCheck {
	var checks []PolicyCheck
	for i := range p.Rules {
		r := &p.Rules[i]
		rule := "rule:" + r.Name
		ok, err := r.Evaluate(f)
		switch {
		case err != nil:
			checks = append(checks, PolicyCheck{Rule: rule, Result: CheckAlert, Message: fmt.Sprintf("Rule %q could not be evaluated: %v", r.Name, err), Severity: SeverityMedium})
		case ok:
			checks = append(checks, PolicyCheck{Rule: rule, Result: CheckPass, Message: fmt.Sprintf("Rule %q satisfied", r.Name), Severity: SeverityLow})
		default:
			msg := r.Message
			if msg == "" {
				msg = fmt.Sprintf("Rule %q not satisfied", r.Name)
			}
			sev := Severity(r.Severity)
			if sev == "" {
				sev = SeverityHigh
			}
			checks = append(checks, PolicyCheck{Rule: rule, Result: CheckFail, Message: msg, Severity: sev})
		}
	}
	return checks
}

// consistencyPlaceholders records the declared cross-document rules. Real
// comparison only happens in batch mode through the ConsistencyAnalyzer.
func consistencyPlaceholders(p *policy.Policy) []PolicyCheck {
	checks := make([]PolicyCheck, 0, len(p.ConsistencyChecks))
	for _, name := range p.ConsistencyChecks {
		checks = append(checks, PolicyCheck{
			Rule:     "consistency:" + name,
			Result:   CheckPass,
			Message:  fmt.Sprintf("Consistency rule %q is evaluated across documents", name),
			Severity: SeverityLow,
		})
	}
	return checks
}

func countAny(text string, needles ...string) int {
	hits := 0
	for _, n := range needles {
		if strings.Contains(text, n) {
			hits++
		}
	}
	return hits
}
