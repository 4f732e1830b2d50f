package analyzers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Josepassinato/camada-osprey-core-sub001/internal/llm"
	"github.com/Josepassinato/camada-osprey-core-sub001/internal/policy"
	"github.com/Josepassinato/camada-osprey-core-sub001/internal/validation"
)

const (
	ClassificationOK            = "ok"
	ClassificationLowConfidence = "low_confidence"
	ClassificationUnclassified  = "unclassified"

	keywordWeight  = 0.75
	filenameWeight = 0.25
	// A document matching this many keywords gets full keyword credit.
	keywordSaturation = 3
	confidentScore    = 0.5
	classifierPrompt  = 4000
)

// KeywordClassifier scores every policy's classification hints against the
// text and filename.
type KeywordClassifier struct {
	policies []*policy.Policy
}

func NewKeywordClassifier(store *policy.Store) *KeywordClassifier {
	return &KeywordClassifier{policies: store.All()}
}

func (k *KeywordClassifier) ClassifyDocument(_ context.Context, text, filename string, _ int) (validation.Classification, error) {
	lowerText := strings.ToLower(text)
	base := strings.ToLower(filepath.Base(filename))

	var candidates []validation.ClassificationCandidate
	for _, p := range k.policies {
		hits := 0
		for _, kw := range p.Classification.Keywords {
			if kw != "" && strings.Contains(lowerText, strings.ToLower(kw)) {
				hits++
			}
		}
		score := keywordWeight * min(1.0, float64(hits)/keywordSaturation)
		for _, pat := range p.Classification.FilenamePatterns {
			if pat != "" && strings.Contains(base, strings.ToLower(pat)) {
				score += filenameWeight
				break
			}
		}
		if score > 0 {
			candidates = append(candidates, validation.ClassificationCandidate{DocumentType: p.DocType, Confidence: round2(score)})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].DocumentType < candidates[j].DocumentType
	})

	if len(candidates) == 0 {
		return validation.Classification{
			DocumentType: validation.UnknownDocType,
			Status:       ClassificationUnclassified,
			Candidates:   []validation.ClassificationCandidate{},
		}, nil
	}
	out := validation.Classification{
		DocumentType: candidates[0].DocumentType,
		Confidence:   candidates[0].Confidence,
		Status:       ClassificationOK,
		Candidates:   candidates,
	}
	if out.Confidence < confidentScore {
		out.Status = ClassificationLowConfidence
	}
	return out, nil
}

// LLMClassifier asks a language model to pick one of the configured document types.
type LLMClassifier struct {
	exec     *llm.Executor
	docTypes []string
}

func NewLLMClassifier(exec *llm.Executor, docTypes []string) *LLMClassifier {
	return &LLMClassifier{exec: exec, docTypes: docTypes}
}

type llmClassification struct {
	DocumentType string                               `json:"document_type"`
	Confidence   float64                              `json:"confidence"`
	Alternatives []validation.ClassificationCandidate `json:"alternatives"`
}

func (l *LLMClassifier) ClassifyDocument(ctx context.Context, text, filename string, size int) (validation.Classification, error) {
	known := map[string]bool{validation.UnknownDocType: true}
	for _, d := range l.docTypes {
		known[d] = true
	}

	var out llmClassification
	_, err := l.exec.Run(ctx, "classify_document", l.prompt(text, filename, size), &out, func() error {
		if !known[out.DocumentType] {
			return fmt.Errorf("document_type %q is not one of the allowed types", out.DocumentType)
		}
		if out.Confidence < 0 || out.Confidence > 1 {
			return errors.New("confidence must be between 0 and 1")
		}
		return nil
	})
	if err != nil {
		return validation.Classification{}, err
	}

	c := validation.Classification{
		DocumentType: out.DocumentType,
		Confidence:   out.Confidence,
		Status:       ClassificationOK,
		Candidates:   []validation.ClassificationCandidate{{DocumentType: out.DocumentType, Confidence: out.Confidence}},
	}
	for _, alt := range out.Alternatives {
		if known[alt.DocumentType] && alt.DocumentType != out.DocumentType {
			c.Candidates = append(c.Candidates, alt)
		}
	}
	switch {
	case out.DocumentType == validation.UnknownDocType:
		c.Status = ClassificationUnclassified
	case out.Confidence < confidentScore:
		c.Status = ClassificationLowConfidence
	}
	return c, nil
}

func (l *LLMClassifier) prompt(text, filename string, size int) string {
	if len(text) > classifierPrompt {
		text = text[:classifierPrompt]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Classify this immigration supporting document.\n\n")
	fmt.Fprintf(&b, "Allowed document types: %s, or %s when none fits.\n", strings.Join(l.docTypes, ", "), validation.UnknownDocType)
	fmt.Fprintf(&b, "Filename: %s\nFile size: %d bytes\n\n", filename, size)
	fmt.Fprintf(&b, "Extracted text:\n%s\n\n", text)
	b.WriteString(`Return JSON: {"document_type": string, "confidence": number 0-1, "alternatives": [{"document_type": string, "confidence": number}]}`)
	return b.String()
}

// FallbackClassifier uses the primary classifier and consults the secondary
// only when the primary is not confident enough or fails.
type FallbackClassifier struct {
	primary   validation.Classifier
	secondary validation.Classifier
	threshold float64
	logger    *slog.Logger
}

func NewFallbackClassifier(primary, secondary validation.Classifier, threshold float64, logger *slog.Logger) *FallbackClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackClassifier{primary: primary, secondary: secondary, threshold: threshold, logger: logger}
}

func (f *FallbackClassifier) ClassifyDocument(ctx context.Context, text, filename string, size int) (validation.Classification, error) {
	first, err := f.primary.ClassifyDocument(ctx, text, filename, size)
	if err == nil && first.Confidence >= f.threshold && first.DocumentType != validation.UnknownDocType {
		return first, nil
	}
	if f.secondary == nil {
		return first, err
	}
	second, serr := f.secondary.ClassifyDocument(ctx, text, filename, size)
	if serr != nil {
		f.logger.Warn("fallback classifier failed", "filename", filename, "error", serr)
		if err != nil {
			return validation.Classification{}, errors.Join(err, serr)
		}
		return first, nil
	}
	if err == nil && first.Confidence > second.Confidence {
		return first, nil
	}
	return second, nil
}

// Cache stores serialized values with an expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedClassifier memoizes classifications by a hash of the document.
// Cache errors are logged and never fail a classification.
type CachedClassifier struct {
	inner  validation.Classifier
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedClassifier(inner validation.Classifier, cache Cache, ttl time.Duration, logger *slog.Logger) *CachedClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedClassifier{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

func (c *CachedClassifier) ClassifyDocument(ctx context.Context, text, filename string, size int) (validation.Classification, error) {
	key := classificationKey(text, filename, size)
	if raw, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("classification cache read failed", "error", err)
	} else if ok {
		var hit validation.Classification
		if err := json.Unmarshal(raw, &hit); err == nil {
			return hit, nil
		}
	}

	out, err := c.inner.ClassifyDocument(ctx, text, filename, size)
	if err != nil {
		return out, err
	}
	if raw, err := json.Marshal(out); err == nil {
		if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
			c.logger.Warn("classification cache write failed", "error", err)
		}
	}
	return out, nil
}

func classificationKey(text, filename string, size int) string {
	h := sha256.New()
	h.Write([]byte(filename))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(size)))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return "classification:" + hex.EncodeToString(h.Sum(nil))
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
