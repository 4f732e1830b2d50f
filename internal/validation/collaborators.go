package validation

import (
	"context"

	"github.com/Josepassinato/camada-osprey-core-sub001/internal/policy"
)

// PolicySource resolves a document type to its policy.
type PolicySource interface {
	Get(docType string) (*policy.Policy, bool)
}

type QualityAnalyzer interface {
	AnalyzeQuality(ctx context.Context, content []byte, filename string) (QualityReport, error)
}

type FieldExtractor interface {
	ExtractAllFields(ctx context.Context, text string, fields []policy.FieldDef, ec ExtractionContext) (FieldExtractionResult, error)
}

type LanguageAnalyzer interface {
	AnalyzeDocumentLanguage(ctx context.Context, text, docType, filename string) (LanguageAnalysis, error)
	CheckTranslationCertificate(ctx context.Context, text string) (TranslationCertificate, error)
}

type ConsistencyAnalyzer interface {
	AnalyzeDocumentConsistency(ctx context.Context, results []ValidationResult, cc *CaseContext) (ConsistencyAnalysis, error)
}

type Classifier interface {
	ClassifyDocument(ctx context.Context, text, filename string, size int) (Classification, error)
}

// Collaborators groups the external analyzers the engine orchestrates.
type Collaborators struct {
	Quality     QualityAnalyzer
	Fields      FieldExtractor
	Language    LanguageAnalyzer
	Consistency ConsistencyAnalyzer
	Classifier  Classifier
}
