package validation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxAlternatives = 3

// AutoClassifyDocument asks the classifier for the document type. Failures
// yield an UNKNOWN suggestion with zero confidence and status error.
func (e *Engine) AutoClassifyDocument(ctx context.Context, content []byte, filename, text string) ClassificationSummary {
	ctx, span := e.tracer.Start(ctx, "validation.AutoClassifyDocument",
		trace.WithAttributes(attribute.String("filename", filename)))
	defer span.End()

	c, err := e.classify(ctx, content, filename, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("document classification failed", "filename", filename, "error", err)
		return ClassificationSummary{
			SuggestedDocType: UnknownDocType,
			Confidence:       0,
			Status:           string(StatusError),
			Alternatives:     []ClassificationCandidate{},
			ErrorMessage:     err.Error(),
		}
	}

	out := ClassificationSummary{
		SuggestedDocType: c.DocumentType,
		Confidence:       c.Confidence,
		Status:           c.Status,
		Alternatives:     []ClassificationCandidate{},
	}
	if out.SuggestedDocType == "" {
		out.SuggestedDocType = UnknownDocType
	}
	for _, cand := range c.Candidates {
		if len(out.Alternatives) == maxAlternatives {
			break
		}
		if cand.DocumentType == out.SuggestedDocType {
			continue
		}
		out.Alternatives = append(out.Alternatives, cand)
	}
	span.SetAttributes(
		attribute.String("doc_type", out.SuggestedDocType),
		attribute.Float64("confidence", out.Confidence))
	return out
}

func (e *Engine) classify(ctx context.Context, content []byte, filename, text string) (c Classification, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StageError{Stage: StageClassify, Err: panicError{value: r}}
		}
	}()
	if e.collab.Classifier == nil {
		return c, &StageError{Stage: StageClassify, Err: fmt.Errorf("%w: classifier", ErrMissingCollaborator)}
	}
	c, err = e.collab.Classifier.ClassifyDocument(ctx, text, filename, len(content))
	if err != nil {
		return c, &StageError{Stage: StageClassify, Err: err}
	}
	if err := checkUnit("confidence", c.Confidence); err != nil {
		return c, &StageError{Stage: StageClassify, Err: err}
	}
	for _, cand := range c.Candidates {
		if err := checkUnit(cand.DocumentType+" confidence", cand.Confidence); err != nil {
			return c, &StageError{Stage: StageClassify, Err: err}
		}
	}
	return c, nil
}
