package analyzers

import (
	"context"
	"strings"
	"unicode"

	"github.com/Josepassinato/camada-osprey-core-sub001/internal/validation"
)

const (
	LangEnglish    = "en"
	LangPortuguese = "pt"
	LangSpanish    = "es"
	LangUnknown    = "unknown"
)

var languageMarkers = map[string][]string{
	LangEnglish: {
		"the", "and", "of", "date", "name", "birth", "certificate", "issued", "this",
		"with", "is", "for", "by", "on", "place", "father", "mother", "that", "employee",
	},
	LangPortuguese: {
		"de", "da", "do", "dos", "das", "nome", "data", "nascimento", "certidão", "registro",
		"que", "não", "para", "com", "em", "pai", "mãe", "cartório", "casamento", "filho",
	},
	LangSpanish: {
		"el", "la", "los", "las", "del", "fecha", "nacimiento", "certificado", "registro",
		"que", "para", "con", "en", "padre", "madre", "acta", "matrimonio", "y",
	},
}

var detectionOrder = []string{LangEnglish, LangPortuguese, LangSpanish}

var certificateMarkers = []string{
	"certified translation",
	"certificate of translation",
	"translator's certification",
	"i certify that",
	"competent to translate",
	"true and accurate translation",
	"accurate translation",
	"fluent in english and",
	"tradução juramentada",
	"tradutor público",
}

// LanguageDetector infers the document language by marker-word votes and
// checks it against the policy's language requirement.
type LanguageDetector struct {
	policies validation.PolicySource
}

func NewLanguageDetector(policies validation.PolicySource) *LanguageDetector {
	return &LanguageDetector{policies: policies}
}

// DetectLanguage returns the language with the most marker hits, or unknown.
// Ties go to the earlier language in en, pt, es order.
func DetectLanguage(text string) string {
	counts := map[string]int{}
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) }) {
		for lang, markers := range languageMarkers {
			for _, m := range markers {
				if w == m {
					counts[lang]++
					break
				}
			}
		}
	}
	best, bestCount := LangUnknown, 0
	for _, lang := range detectionOrder {
		if counts[lang] > bestCount {
			best, bestCount = lang, counts[lang]
		}
	}
	return best
}

func (d *LanguageDetector) AnalyzeDocumentLanguage(_ context.Context, text, docType, filename string) (validation.LanguageAnalysis, error) {
	lang := LangUnknown
	if strings.TrimSpace(text) != "" {
		lang = DetectLanguage(text)
	}
	out := validation.LanguageAnalysis{
		DetectedLanguage: lang,
		Recommendations:  []validation.LanguageRecommendation{},
	}

	requiresTranslation := false
	if d.policies != nil {
		if p, ok := d.policies.Get(docType); ok {
			requiresTranslation = p.RequiresTranslation()
		}
	}

	switch {
	case !requiresTranslation:
		out.Compliance = validation.LanguageCompliance{Compliant: true, Message: "No language requirement for this document type"}
	case lang == LangUnknown:
		out.Compliance = validation.LanguageCompliance{Compliant: true, Message: "Language could not be determined from the extracted text"}
	case lang == LangEnglish:
		out.Compliance = validation.LanguageCompliance{Compliant: true, Message: "Document is in English"}
	default:
		out.RequiresAction = true
		out.Compliance = validation.LanguageCompliance{
			Compliant: false,
			Message:   languageName(lang) + " document requires a certified English translation",
		}
		out.Recommendations = append(out.Recommendations,
			validation.LanguageRecommendation{
				Severity:    validation.SeverityCritical,
				Title:       "Certified translation required",
				Description: "Submit a complete English translation of " + displayName(filename) + " together with the original",
			},
			validation.LanguageRecommendation{
				Severity:    validation.SeverityHigh,
				Title:       "Translator certification",
				Description: "The translator must certify competence in both languages and that the translation is complete and accurate",
			},
			validation.LanguageRecommendation{
				Severity:    validation.SeverityMedium,
				Title:       "Keep the original",
				Description: "Always file a copy of the original document alongside its translation",
			},
		)
	}
	return out, nil
}

func (d *LanguageDetector) CheckTranslationCertificate(_ context.Context, text string) (validation.TranslationCertificate, error) {
	lower := strings.ToLower(text)
	out := validation.TranslationCertificate{}
	for _, m := range certificateMarkers {
		if strings.Contains(lower, m) {
			out.Indicators = append(out.Indicators, m)
		}
	}
	out.HasTranslationCertificate = len(out.Indicators) > 0
	return out, nil
}

func languageName(code string) string {
	switch code {
	case LangPortuguese:
		return "Portuguese"
	case LangSpanish:
		return "Spanish"
	case LangEnglish:
		return "English"
	default:
		return "Non-English"
	}
}

func displayName(filename string) string {
	if filename == "" {
		return "the document"
	}
	return filename
}
