package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Josepassinato/camada-osprey-core-sub001/internal/policy"
)

const (
	tracerName              = "github.com/Josepassinato/camada-osprey-core-sub001/internal/validation"
	defaultBatchConcurrency = 4
)

// Engine validates documents against their policies. It holds no mutable
// state after construction and is safe for concurrent use.
type Engine struct {
	policies    PolicySource
	collab      Collaborators
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
	newID       func() string
	concurrency int
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// WithBatchConcurrency bounds how many batch documents are validated at once.
func WithBatchConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

func NewEngine(policies PolicySource, c Collaborators, opts ...Option) *Engine {
	e := &Engine{
		policies:    policies,
		collab:      c,
		logger:      slog.Default(),
		tracer:      otel.Tracer(tracerName),
		now:         time.Now,
		newID:       uuid.NewString,
		concurrency: defaultBatchConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GetPolicy returns the policy for docType.
func (e *Engine) GetPolicy(docType string) (*policy.Policy, bool) {
	if e.policies == nil {
		return nil, false
	}
	return e.policies.Get(docType)
}

// ValidateDocument runs the full validation pipeline for one document. It
// never returns an error: failures are reported as a result with status
// error and decision FAIL.
//
// A request without DocumentID gets one from the engine's ID generator, a
// random UUID unless WithIDGenerator is set. Identical requests produce
// identical results only when the ID is supplied or the generator is
// deterministic.
func (e *Engine) ValidateDocument(ctx context.Context, req DocumentRequest) ValidationResult {
	ctx, span := e.tracer.Start(ctx, "validation.ValidateDocument",
		trace.WithAttributes(attribute.String("doc_type", req.DocType)))
	defer span.End()

	if req.DocumentID == "" {
		req.DocumentID = e.newID()
	}

	res, err := e.validate(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("document validation failed",
			"document_id", req.DocumentID,
			"doc_type", req.DocType,
			"stage", StageNameFromError(err),
			"error", err)
		return errorResult(req, err)
	}

	span.SetAttributes(
		attribute.String("decision", string(res.Decision)),
		attribute.Float64("score", res.OverallScore))
	e.logger.Info("document validated",
		"document_id", res.DocumentID,
		"doc_type", res.DocType,
		"decision", res.Decision,
		"score", res.OverallScore)
	return res
}

func (e *Engine) validate(ctx context.Context, req DocumentRequest) (res ValidationResult, err error) {
	stage := StagePolicy
	defer func() {
		if r := recover(); r != nil {
			err = &StageError{Stage: stage, Err: panicError{value: r}}
		}
	}()

	p, ok := e.GetPolicy(req.DocType)
	if !ok {
		return res, &StageError{Stage: StagePolicy, Err: fmt.Errorf("%w: no validation policy configured for document type %q", policy.ErrNotFound, req.DocType)}
	}
	if e.collab.Quality == nil || e.collab.Language == nil {
		return res, &StageError{Stage: StagePolicy, Err: fmt.Errorf("%w: quality and language analyzers are required", ErrMissingCollaborator)}
	}

	res = ValidationResult{
		DocumentID:   req.DocumentID,
		DocType:      p.DocType,
		Filename:     req.Filename,
		Status:       StatusPending,
		PolicyChecks: []PolicyCheck{},
		Consistency:  []PolicyCheck{},
	}
	text := req.ExtractedText

	stage = StageQuality
	quality, err := e.collab.Quality.AnalyzeQuality(ctx, req.Content, req.Filename)
	if err != nil {
		return res, &StageError{Stage: stage, Err: err}
	}
	res.Quality = &quality
	res.PolicyChecks = append(res.PolicyChecks, policyChecks(p, quality, req.Filename, text)...)

	stage = StageLanguage
	lang, err := e.collab.Language.AnalyzeDocumentLanguage(ctx, text, p.DocType, req.Filename)
	if err != nil {
		return res, &StageError{Stage: stage, Err: err}
	}
	res.LanguageAnalysis = &lang
	if lang.RequiresAction {
		stage = StageTranslation
		cert, err := e.collab.Language.CheckTranslationCertificate(ctx, text)
		if err != nil {
			return res, &StageError{Stage: stage, Err: err}
		}
		res.TranslationCertificate = &cert
	}

	if strings.TrimSpace(text) != "" {
		stage = StageFields
		if e.collab.Fields == nil {
			return res, &StageError{Stage: stage, Err: fmt.Errorf("%w: field extractor", ErrMissingCollaborator)}
		}
		extracted, err := e.collab.Fields.ExtractAllFields(ctx, text, p.AllFields(), ExtractionContext{
			DocType:     p.DocType,
			CaseContext: req.CaseContext,
			Language:    &lang,
		})
		if err != nil {
			return res, &StageError{Stage: stage, Err: err}
		}
		res.Fields = coverFields(p, extracted)
		if err := checkFieldConfidences(p, res.Fields); err != nil {
			return res, &StageError{Stage: stage, Err: err}
		}
	}

	if len(p.Rules) > 0 {
		stage = StageRules
		res.PolicyChecks = append(res.PolicyChecks, ruleChecks(p, ruleFacts(p, req, &res))...)
	}

	if req.CaseContext != nil {
		res.Consistency = consistencyPlaceholders(p)
	}

	res.OverallScore = scoreBreakdown(p, &res).Total(p.Scoring.Weights())
	res.Decision = decide(res.OverallScore, &res)
	res.Messages = feedbackMessages(p, &res)
	res.Status = StatusDone
	return res, nil
}

func checkFieldConfidences(p *policy.Policy, fields *FieldExtractionResult) error {
	for _, f := range p.AllFields() {
		fe := fields.PolicyFields[f.Name]
		if fe.BestMatch == nil {
			continue
		}
		if err := checkUnit(f.Name+" confidence", fe.BestMatch.Validation.Confidence); err != nil {
			return err
		}
	}
	return nil
}

// coverFields returns an extraction map holding exactly the policy's fields.
func coverFields(p *policy.Policy, in FieldExtractionResult) *FieldExtractionResult {
	out := &FieldExtractionResult{PolicyFields: make(map[string]FieldExtraction, len(p.RequiredFields)+len(p.OptionalFields))}
	for _, f := range p.AllFields() {
		fe, ok := in.PolicyFields[f.Name]
		if !ok {
			fe = FieldExtraction{}
		}
		fe.Required = p.IsRequiredField(f.Name)
		if fe.BestMatch == nil {
			fe.Found = false
		}
		out.PolicyFields[f.Name] = fe
	}
	return out
}

func ruleFacts(p *policy.Policy, req DocumentRequest, res *ValidationResult) policy.Facts {
	f := policy.Facts{
		Text:      req.ExtractedText,
		Filename:  req.Filename,
		DocType:   p.DocType,
		Fields:    map[string]string{},
		WordCount: len(strings.Fields(req.ExtractedText)),
	}
	if res.Quality != nil {
		f.QualityStatus = string(res.Quality.Status)
	}
	for _, fd := range p.AllFields() {
		if v, ok := res.Fields.Value(fd.Name); ok {
			f.Fields[fd.Name] = v
		}
	}
	return f
}

func errorResult(req DocumentRequest, err error) ValidationResult {
	msg := "❌ Validation could not be completed: " + err.Error()
	if errors.Is(err, policy.ErrNotFound) {
		msg = fmt.Sprintf("❌ No validation policy configured for document type %q", req.DocType)
	}
	return ValidationResult{
		DocumentID:   req.DocumentID,
		DocType:      req.DocType,
		Filename:     req.Filename,
		Status:       StatusError,
		PolicyChecks: []PolicyCheck{},
		Consistency:  []PolicyCheck{},
		OverallScore: 0,
		Decision:     DecisionFail,
		Messages:     []string{msg},
		ErrorStage:   StageNameFromError(err),
		ErrorMessage: err.Error(),
	}
}
