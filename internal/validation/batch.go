package validation

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	maxEmbeddedIssues             = 5
	maxConsistencyRecommendations = 3

	IssueDocumentFailure    = "document_failure"
	IssueConsistencyFailure = "consistency_failure"

	RecommendationCriticalIssues      = "critical_issues"
	RecommendationTranslationRequired = "translation_required"
	RecommendationQualityImprovement  = "quality_improvement"
)

// ValidateMultipleDocuments validates every document, then checks them
// against each other. Documents are validated concurrently but results keep
// their input order.
func (e *Engine) ValidateMultipleDocuments(ctx context.Context, docs []BatchDocument, cc *CaseContext) BatchResult {
	ctx, span := e.tracer.Start(ctx, "validation.ValidateMultipleDocuments",
		trace.WithAttributes(attribute.Int("document_count", len(docs))))
	defer span.End()

	batchID := e.newID()
	res, err := e.validateBatch(ctx, batchID, docs, cc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("batch validation failed", "batch_id", batchID, "error", err)
		return BatchResult{
			BatchID:           batchID,
			Status:            StatusError,
			DocumentCount:     len(docs),
			IndividualResults: []ValidationResult{},
			FinalDecision:     DecisionFail,
			SummaryIssues:     []SummaryIssue{},
			Recommendations:   []Recommendation{},
			Timestamp:         e.now().UTC(),
			ErrorMessage:      err.Error(),
		}
	}

	span.SetAttributes(
		attribute.String("decision", string(res.FinalDecision)),
		attribute.Float64("score", res.OverallScore))
	e.logger.Info("batch validated",
		"batch_id", batchID,
		"documents", len(docs),
		"decision", res.FinalDecision,
		"score", res.OverallScore)
	return res
}

func (e *Engine) validateBatch(ctx context.Context, batchID string, docs []BatchDocument, cc *CaseContext) (res BatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StageError{Stage: StageConsistency, Err: panicError{value: r}}
		}
	}()

	results := make([]ValidationResult, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, doc := range docs {
		g.Go(func() error {
			results[i] = e.validateBatchDocument(gctx, i, doc, cc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	consistencyScore := 1.0
	var analysis *ConsistencyAnalysis
	if len(results) >= 2 {
		if e.collab.Consistency == nil {
			return res, &StageError{Stage: StageConsistency, Err: fmt.Errorf("%w: consistency analyzer", ErrMissingCollaborator)}
		}
		a, err := e.collab.Consistency.AnalyzeDocumentConsistency(ctx, results, cc)
		if err != nil {
			return res, &StageError{Stage: StageConsistency, Err: err}
		}
		if err := checkUnit("consistency_score", a.ConsistencyScore); err != nil {
			return res, &StageError{Stage: StageConsistency, Err: err}
		}
		analysis = &a
		consistencyScore = a.ConsistencyScore
	}

	res = BatchResult{
		BatchID:             batchID,
		Status:              StatusDone,
		DocumentCount:       len(docs),
		IndividualResults:   results,
		ConsistencyAnalysis: analysis,
		OverallScore:        batchScore(results, consistencyScore),
		Timestamp:           e.now().UTC(),
	}
	res.SummaryIssues = summaryIssues(results, analysis)
	res.FinalDecision = batchDecision(res.OverallScore, res.SummaryIssues, results)
	res.Recommendations = batchRecommendations(res.SummaryIssues, results, analysis)
	return res, nil
}

func (e *Engine) validateBatchDocument(ctx context.Context, index int, doc BatchDocument, cc *CaseContext) ValidationResult {
	docType := doc.DocType
	var classification *ClassificationSummary
	if docType == "" || docType == UnknownDocType {
		c := e.AutoClassifyDocument(ctx, doc.FileContent, doc.Filename, doc.ExtractedText)
		classification = &c
		docType = c.SuggestedDocType
	}

	r := e.ValidateDocument(ctx, DocumentRequest{
		DocumentID:    doc.DocumentID,
		Content:       doc.FileContent,
		Filename:      doc.Filename,
		DocType:       docType,
		ExtractedText: doc.ExtractedText,
		CaseContext:   cc,
	})
	r.DocumentIndex = &index
	r.Filename = doc.Filename
	r.Classification = classification
	return r
}

func summaryIssues(results []ValidationResult, analysis *ConsistencyAnalysis) []SummaryIssue {
	issues := []SummaryIssue{}
	for _, r := range results {
		if r.Decision != DecisionFail {
			continue
		}
		issues = append(issues, SummaryIssue{
			Type:     IssueDocumentFailure,
			Document: documentLabel(r),
			Message:  fmt.Sprintf("Document %s failed validation", documentLabel(r)),
			Messages: r.Messages,
		})
	}
	if analysis != nil {
		for _, ci := range analysis.CriticalIssues {
			issues = append(issues, SummaryIssue{
				Type:    IssueConsistencyFailure,
				Rule:    ci.RuleName,
				Message: ci.Message,
			})
		}
	}
	return issues
}

func batchDecision(score float64, issues []SummaryIssue, results []ValidationResult) Decision {
	if len(issues) > 0 {
		return DecisionFail
	}
	for _, r := range results {
		if r.Decision == DecisionFail {
			return DecisionFail
		}
	}
	return classifyScore(score, BatchPassThreshold, BatchAlertThreshold)
}

func batchRecommendations(issues []SummaryIssue, results []ValidationResult, analysis *ConsistencyAnalysis) []Recommendation {
	recs := []Recommendation{}

	if len(issues) > 0 {
		embedded := issues
		if len(embedded) > maxEmbeddedIssues {
			embedded = embedded[:maxEmbeddedIssues]
		}
		actions := make([]string, 0, len(embedded))
		for _, is := range embedded {
			actions = append(actions, is.Message)
		}
		recs = append(recs, Recommendation{
			Type:        RecommendationCriticalIssues,
			Severity:    SeverityCritical,
			Title:       "Resolve critical issues before filing",
			Description: fmt.Sprintf("%d critical issue(s) block this submission", len(issues)),
			Actions:     actions,
			Issues:      embedded,
		})
	}

	if analysis != nil {
		added := 0
		for _, r := range analysis.Recommendations {
			if added == maxConsistencyRecommendations {
				break
			}
			if hasRecommendation(recs, r) {
				continue
			}
			recs = append(recs, r)
			added++
		}
	}

	var untranslated, lowQuality []string
	for _, r := range results {
		if r.LanguageAnalysis != nil && r.LanguageAnalysis.RequiresAction {
			untranslated = append(untranslated, documentLabel(r))
		}
		if r.Quality != nil && (r.Quality.Status == QualityFail || r.Quality.Status == QualityAlert) {
			lowQuality = append(lowQuality, documentLabel(r))
		}
	}
	if len(untranslated) > 0 {
		recs = append(recs, Recommendation{
			Type:        RecommendationTranslationRequired,
			Severity:    SeverityHigh,
			Title:       "Certified translation required",
			Description: "These documents need a certified English translation: " + strings.Join(untranslated, ", "),
			Actions: []string{
				"Obtain a complete certified English translation of each listed document",
				"Attach the translator's certification of competence and accuracy",
			},
		})
	}
	if len(lowQuality) > 0 {
		recs = append(recs, Recommendation{
			Type:        RecommendationQualityImprovement,
			Severity:    SeverityMedium,
			Title:       "Improve document quality",
			Description: "These documents have file quality problems: " + strings.Join(lowQuality, ", "),
			Actions: []string{
				"Rescan at 300 DPI or higher in color",
				"Upload a PDF, JPG or PNG file within the size limits",
			},
		})
	}
	return recs
}

func hasRecommendation(recs []Recommendation, r Recommendation) bool {
	for _, have := range recs {
		if have.Type == r.Type && have.Title == r.Title {
			return true
		}
	}
	return false
}

func documentLabel(r ValidationResult) string {
	if r.Filename != "" {
		return r.Filename
	}
	if r.DocumentIndex != nil {
		return fmt.Sprintf("#%d", *r.DocumentIndex+1)
	}
	return r.DocumentID
}
