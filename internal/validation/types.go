package validation

import "time"

type Decision string

const (
	DecisionPass  Decision = "PASS"
	DecisionAlert Decision = "ALERT"
	DecisionFail  Decision = "FAIL"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

type CheckResult string

const (
	CheckPass  CheckResult = "pass"
	CheckAlert CheckResult = "alert"
	CheckFail  CheckResult = "fail"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type QualityStatus string

const (
	QualityOK    QualityStatus = "ok"
	QualityAlert QualityStatus = "alert"
	QualityFail  QualityStatus = "fail"
)

// UnknownDocType marks a document whose type must be inferred by the classifier.
const UnknownDocType = "UNKNOWN"

const (
	SinglePassThreshold  = 0.90
	SingleAlertThreshold = 0.70
	BatchPassThreshold   = 0.85
	BatchAlertThreshold  = 0.70

	batchIndividualWeight  = 0.70
	batchConsistencyWeight = 0.30
)

// PolicyCheck is one atomic rule evaluation.
type PolicyCheck struct {
	Rule     string      `json:"rule"`
	Result   CheckResult `json:"result"`
	Message  string      `json:"message"`
	Severity Severity    `json:"severity"`
}

// CaseContext describes the immigration case a document belongs to.
type CaseContext struct {
	CaseID          string            `json:"case_id,omitempty"`
	VisaType        string            `json:"visa_type,omitempty"`
	BeneficiaryName string            `json:"beneficiary_name,omitempty"`
	Attributes      map[string]string `json:"attributes,omitempty"`
}

// --- collaborator payloads ---

type QualityCheckOutcome struct {
	Status  QualityStatus `json:"status"`
	Message string        `json:"message"`
}

type ImageMetrics struct {
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	EstimatedDPI float64 `json:"estimated_dpi"`
}

type QualityChecks struct {
	FileSize      QualityCheckOutcome  `json:"file_size"`
	Format        *QualityCheckOutcome `json:"format,omitempty"`
	ImageSpecific *ImageMetrics        `json:"image_specific,omitempty"`
}

type QualityReport struct {
	Status QualityStatus `json:"status"`
	Checks QualityChecks `json:"checks"`
}

type FieldValidation struct {
	IsValid    bool     `json:"is_valid"`
	Confidence float64  `json:"confidence"`
	Issues     []string `json:"issues"`
}

type FieldMatch struct {
	Value      string          `json:"value"`
	Validation FieldValidation `json:"validation"`
}

type FieldExtraction struct {
	Found     bool        `json:"found"`
	Required  bool        `json:"required"`
	BestMatch *FieldMatch `json:"best_match,omitempty"`
}

// Valid reports whether the field was found and its best match passed validation.
func (f FieldExtraction) Valid() bool {
	return f.Found && f.BestMatch != nil && f.BestMatch.Validation.IsValid
}

type FieldExtractionResult struct {
	PolicyFields map[string]FieldExtraction `json:"policy_fields"`
}

// Value returns the best-match value of a found field.
func (r *FieldExtractionResult) Value(name string) (string, bool) {
	if r == nil {
		return "", false
	}
	f, ok := r.PolicyFields[name]
	if !ok || !f.Found || f.BestMatch == nil {
		return "", false
	}
	return f.BestMatch.Value, true
}

type ExtractionContext struct {
	DocType     string            `json:"doc_type"`
	CaseContext *CaseContext      `json:"case_context,omitempty"`
	Language    *LanguageAnalysis `json:"language,omitempty"`
}

type LanguageCompliance struct {
	Compliant bool   `json:"compliant"`
	Message   string `json:"message"`
}

type LanguageRecommendation struct {
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
}

type LanguageAnalysis struct {
	DetectedLanguage string                   `json:"detected_language"`
	RequiresAction   bool                     `json:"requires_action"`
	Compliance       LanguageCompliance       `json:"compliance"`
	Recommendations  []LanguageRecommendation `json:"recommendations"`
}

type TranslationCertificate struct {
	HasTranslationCertificate bool     `json:"has_translation_certificate"`
	Indicators                []string `json:"indicators,omitempty"`
}

type ConsistencyIssue struct {
	RuleName  string   `json:"rule_name"`
	Message   string   `json:"message"`
	Documents []string `json:"documents,omitempty"`
}

type ConsistencyAnalysis struct {
	ConsistencyScore float64            `json:"consistency_score"`
	CriticalIssues   []ConsistencyIssue `json:"critical_issues"`
	Recommendations  []Recommendation   `json:"recommendations"`
}

type ClassificationCandidate struct {
	DocumentType string  `json:"document_type"`
	Confidence   float64 `json:"confidence"`
}

type Classification struct {
	DocumentType string                    `json:"document_type"`
	Confidence   float64                   `json:"confidence"`
	Status       string                    `json:"status"`
	Candidates   []ClassificationCandidate `json:"candidates"`
}

// --- engine inputs and outputs ---

type DocumentRequest struct {
	DocumentID    string
	Content       []byte
	Filename      string
	DocType       string
	ExtractedText string
	CaseContext   *CaseContext
}

type ValidationResult struct {
	DocumentID             string                  `json:"document_id"`
	DocType                string                  `json:"doc_type"`
	Filename               string                  `json:"filename,omitempty"`
	DocumentIndex          *int                    `json:"document_index,omitempty"`
	Status                 Status                  `json:"status"`
	Quality                *QualityReport          `json:"quality,omitempty"`
	PolicyChecks           []PolicyCheck           `json:"policy_checks"`
	Fields                 *FieldExtractionResult  `json:"fields,omitempty"`
	LanguageAnalysis       *LanguageAnalysis       `json:"language_analysis,omitempty"`
	TranslationCertificate *TranslationCertificate `json:"translation_certificate,omitempty"`
	Consistency            []PolicyCheck           `json:"consistency"`
	OverallScore           float64                 `json:"overall_score"`
	Decision               Decision                `json:"decision"`
	Messages               []string                `json:"messages"`
	Classification         *ClassificationSummary  `json:"classification,omitempty"`
	ErrorStage             string                  `json:"error_stage,omitempty"`
	ErrorMessage           string                  `json:"error_message,omitempty"`
}

type ClassificationSummary struct {
	SuggestedDocType string                    `json:"suggested_doc_type"`
	Confidence       float64                   `json:"confidence"`
	Status           string                    `json:"status"`
	Alternatives     []ClassificationCandidate `json:"alternatives"`
	ErrorMessage     string                    `json:"error_message,omitempty"`
}

type BatchDocument struct {
	DocumentID    string `json:"document_id,omitempty"`
	FileContent   []byte `json:"file_content"`
	Filename      string `json:"filename"`
	ExtractedText string `json:"extracted_text"`
	DocType       string `json:"doc_type,omitempty"`
}

type SummaryIssue struct {
	Type     string   `json:"type"`
	Document string   `json:"document,omitempty"`
	Rule     string   `json:"rule,omitempty"`
	Message  string   `json:"message"`
	Messages []string `json:"messages,omitempty"`
}

type Recommendation struct {
	Type        string         `json:"type"`
	Severity    Severity       `json:"severity"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Actions     []string       `json:"actions"`
	Issues      []SummaryIssue `json:"issues,omitempty"`
}

type BatchResult struct {
	BatchID             string               `json:"batch_id"`
	Status              Status               `json:"status"`
	DocumentCount       int                  `json:"document_count"`
	IndividualResults   []ValidationResult   `json:"individual_results"`
	ConsistencyAnalysis *ConsistencyAnalysis `json:"consistency_analysis,omitempty"`
	OverallScore        float64              `json:"overall_score"`
	FinalDecision       Decision             `json:"final_decision"`
	SummaryIssues       []SummaryIssue       `json:"summary_issues"`
	Recommendations     []Recommendation     `json:"recommendations"`
	Timestamp           time.Time            `json:"timestamp"`
	ErrorMessage        string               `json:"error_message,omitempty"`
}
