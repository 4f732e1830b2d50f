package policy

import "regexp"

// LanguageRequirement constrains the language a document may be written in.
type LanguageRequirement string

const (
	LanguageAny                 LanguageRequirement = ""
	LanguageEnOrTranslationReqd LanguageRequirement = "en_or_translation_required"
)

const (
	PresenceOfficialSeal = "official_seal_or_stamp"
	PresenceSignature    = "signature"
)

const (
	DefaultQualityWeight            = 0.25
	DefaultCriticalFieldsWeight     = 0.35
	DefaultPresenceChecksWeight     = 0.15
	DefaultConsistencyWeight        = 0.10
	DefaultLanguageComplianceWeight = 0.10
	DefaultFieldExtractionWeight    = 0.05
)

type FieldDef struct {
	Name  string `yaml:"name" json:"name"`
	Regex string `yaml:"regex" json:"regex"`
}

type PresenceChecks struct {
	OfficialSealOrStamp bool `yaml:"official_seal_or_stamp" json:"official_seal_or_stamp"`
	Signature           bool `yaml:"signature" json:"signature"`
}

// Names returns the enabled presence checks in a fixed order.
func (p PresenceChecks) Names() []string {
	var out []string
	if p.OfficialSealOrStamp {
		out = append(out, PresenceOfficialSeal)
	}
	if p.Signature {
		out = append(out, PresenceSignature)
	}
	return out
}

// Scoring holds optional weight overrides. A nil weight falls back to its default.
type Scoring struct {
	QualityWeight            *float64 `yaml:"quality_weight" json:"quality_weight,omitempty"`
	CriticalFieldsWeight     *float64 `yaml:"critical_fields_weight" json:"critical_fields_weight,omitempty"`
	PresenceChecksWeight     *float64 `yaml:"presence_checks_weight" json:"presence_checks_weight,omitempty"`
	ConsistencyWeight        *float64 `yaml:"consistency_weight" json:"consistency_weight,omitempty"`
	LanguageComplianceWeight *float64 `yaml:"language_compliance_weight" json:"language_compliance_weight,omitempty"`
	FieldExtractionWeight    *float64 `yaml:"field_extraction_weight" json:"field_extraction_weight,omitempty"`
}

// Weights is the resolved form of Scoring.
type Weights struct {
	Quality            float64 `json:"quality"`
	CriticalFields     float64 `json:"critical_fields"`
	PresenceChecks     float64 `json:"presence_checks"`
	Consistency        float64 `json:"consistency"`
	LanguageCompliance float64 `json:"language_compliance"`
	FieldExtraction    float64 `json:"field_extraction"`
}

func (s Scoring) Weights() Weights {
	return Weights{
		Quality:            weightOr(s.QualityWeight, DefaultQualityWeight),
		CriticalFields:     weightOr(s.CriticalFieldsWeight, DefaultCriticalFieldsWeight),
		PresenceChecks:     weightOr(s.PresenceChecksWeight, DefaultPresenceChecksWeight),
		Consistency:        weightOr(s.ConsistencyWeight, DefaultConsistencyWeight),
		LanguageCompliance: weightOr(s.LanguageComplianceWeight, DefaultLanguageComplianceWeight),
		FieldExtraction:    weightOr(s.FieldExtractionWeight, DefaultFieldExtractionWeight),
	}
}

func weightOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

type QualityRequirements struct {
	MinDPI          float64  `yaml:"min_dpi" json:"min_dpi,omitempty"`
	AcceptedFormats []string `yaml:"accepted_formats" json:"accepted_formats,omitempty"`
}

// ClassificationHints feed the keyword classifier.
type ClassificationHints struct {
	Keywords         []string `yaml:"keywords" json:"keywords,omitempty"`
	FilenamePatterns []string `yaml:"filename_patterns" json:"filename_patterns,omitempty"`
}

// Rule is a custom CEL predicate evaluated against document facts.
// The document passes the rule when the expression evaluates to true.
type Rule struct {
	Name       string `yaml:"name" json:"name"`
	Expression string `yaml:"expression" json:"expression"`
	Severity   string `yaml:"severity" json:"severity,omitempty"`
	Message    string `yaml:"message" json:"message,omitempty"`

	program *compiledRule
}

type Policy struct {
	DocType              string              `yaml:"doc_type" json:"doc_type"`
	DisplayName          string              `yaml:"display_name" json:"display_name,omitempty"`
	RequiredFields       []FieldDef          `yaml:"required_fields" json:"required_fields"`
	OptionalFields       []FieldDef          `yaml:"optional_fields" json:"optional_fields"`
	RequiredTextSnippets []string            `yaml:"required_text_snippets" json:"required_text_snippets"`
	PresenceChecks       PresenceChecks      `yaml:"presence_checks" json:"presence_checks"`
	Language             LanguageRequirement `yaml:"language" json:"language,omitempty"`
	ConsistencyChecks    []string            `yaml:"consistency_checks" json:"consistency_checks"`
	Scoring              Scoring             `yaml:"scoring" json:"scoring"`
	Quality              QualityRequirements `yaml:"quality" json:"quality"`
	Classification       ClassificationHints `yaml:"classification" json:"classification"`
	Rules                []Rule              `yaml:"rules" json:"rules,omitempty"`

	fieldPatterns map[string]*regexp.Regexp
}

// AllFields returns required fields followed by optional fields.
func (p *Policy) AllFields() []FieldDef {
	out := make([]FieldDef, 0, len(p.RequiredFields)+len(p.OptionalFields))
	out = append(out, p.RequiredFields...)
	out = append(out, p.OptionalFields...)
	return out
}

// IsRequiredField reports whether name is declared as a required field.
func (p *Policy) IsRequiredField(name string) bool {
	for _, f := range p.RequiredFields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// RequiresTranslation reports whether non-English documents need a certified translation.
func (p *Policy) RequiresTranslation() bool {
	return p.Language == LanguageEnOrTranslationReqd
}

// FieldPattern returns the compiled, case-insensitive pattern for a field, if it compiled at load time.
func (p *Policy) FieldPattern(name string) (*regexp.Regexp, bool) {
	re, ok := p.fieldPatterns[name]
	return re, ok
}
