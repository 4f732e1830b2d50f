package analyzers

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Josepassinato/camada-osprey-core-sub001/internal/llm"
	"github.com/Josepassinato/camada-osprey-core-sub001/internal/policy"
	"github.com/Josepassinato/camada-osprey-core-sub001/internal/validation"
)

func shippedPolicies(t *testing.T) *policy.Store {
	t.Helper()
	store, err := policy.LoadDir(filepath.Join("..", "..", "policies"))
	require.NoError(t, err)
	return store
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestQualityChecker(t *testing.T) {
	q := NewQualityChecker()
	ctx := context.Background()

	empty, err := q.AnalyzeQuality(ctx, nil, "passport.pdf")
	require.NoError(t, err)
	assert.Equal(t, validation.QualityFail, empty.Status)
	assert.Equal(t, validation.QualityFail, empty.Checks.FileSize.Status)
	assert.Nil(t, empty.Checks.Format)

	pdf := append([]byte("%PDF-1.7\n"), bytes.Repeat([]byte("x"), DefaultMinFileBytes)...)
	ok, err := q.AnalyzeQuality(ctx, pdf, "passport.pdf")
	require.NoError(t, err)
	assert.Equal(t, validation.QualityOK, ok.Status)
	require.NotNil(t, ok.Checks.Format)
	assert.Equal(t, validation.QualityOK, ok.Checks.Format.Status)

	mismatch, err := q.AnalyzeQuality(ctx, pdf, "passport.png")
	require.NoError(t, err)
	assert.Equal(t, validation.QualityAlert, mismatch.Checks.Format.Status)

	garbage, err := q.AnalyzeQuality(ctx, bytes.Repeat([]byte("z"), DefaultMinFileBytes), "notes.docx")
	require.NoError(t, err)
	assert.Equal(t, validation.QualityFail, garbage.Status)

	q.MaxBytes = 100
	big, err := q.AnalyzeQuality(ctx, pdf, "passport.pdf")
	require.NoError(t, err)
	assert.Equal(t, validation.QualityFail, big.Checks.FileSize.Status)
}

func TestQualityCheckerImageMetrics(t *testing.T) {
	q := NewQualityChecker()
	report, err := q.AnalyzeQuality(context.Background(), pngBytes(t, 2200, 1700), "scan.png")
	require.NoError(t, err)
	require.NotNil(t, report.Checks.ImageSpecific)
	assert.Equal(t, 2200, report.Checks.ImageSpecific.Width)
	assert.InDelta(t, 200.0, report.Checks.ImageSpecific.EstimatedDPI, 1e-9)

	low, err := q.AnalyzeQuality(context.Background(), pngBytes(t, 800, 600), "scan.png")
	require.NoError(t, err)
	assert.NotEqual(t, validation.QualityOK, low.Status)
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, LangEnglish, DetectLanguage("This is to certify the birth of the child named below"))
	assert.Equal(t, LangPortuguese, DetectLanguage("Certidão de nascimento do filho de Maria da Silva"))
	assert.Equal(t, LangSpanish, DetectLanguage("Acta de nacimiento: fecha del registro y nombre del padre"))
	assert.Equal(t, LangUnknown, DetectLanguage("12345 67890"))
}

func TestLanguageDetectorCompliance(t *testing.T) {
	d := NewLanguageDetector(shippedPolicies(t))
	ctx := context.Background()

	pt, err := d.AnalyzeDocumentLanguage(ctx, "Certidão de nascimento. Nome: Maria da Silva. Data de nascimento: 01/02/1990", "birth_certificate", "certidao.pdf")
	require.NoError(t, err)
	assert.Equal(t, LangPortuguese, pt.DetectedLanguage)
	assert.True(t, pt.RequiresAction)
	assert.False(t, pt.Compliance.Compliant)
	require.Len(t, pt.Recommendations, 3)
	assert.Equal(t, validation.SeverityCritical, pt.Recommendations[0].Severity)
	assert.Contains(t, pt.Recommendations[0].Description, "certidao.pdf")

	passport, err := d.AnalyzeDocumentLanguage(ctx, "Passaporte da República Federativa do Brasil", "passport", "p.pdf")
	require.NoError(t, err)
	assert.False(t, passport.RequiresAction, "passport policy has no language requirement")

	empty, err := d.AnalyzeDocumentLanguage(ctx, "", "birth_certificate", "scan.png")
	require.NoError(t, err)
	assert.Equal(t, LangUnknown, empty.DetectedLanguage)
	assert.True(t, empty.Compliance.Compliant)
}

func TestCheckTranslationCertificate(t *testing.T) {
	d := NewLanguageDetector(nil)
	cert, err := d.CheckTranslationCertificate(context.Background(), "CERTIFIED TRANSLATION\nI certify that I am competent to translate from Portuguese into English.")
	require.NoError(t, err)
	assert.True(t, cert.HasTranslationCertificate)
	assert.Contains(t, cert.Indicators, "competent to translate")

	none, err := d.CheckTranslationCertificate(context.Background(), "Certidão de nascimento")
	require.NoError(t, err)
	assert.False(t, none.HasTranslationCertificate)
}

func TestRegexFieldExtractor(t *testing.T) {
	x := NewRegexFieldExtractor()
	x.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	text := "PASSPORT\nName: MARIA DA SILVA\nPassport No: FX123456\nDate of birth: 01/02/1990\nExpiry: 2099"

	fields := []policy.FieldDef{
		{Name: "full_name", Regex: `name\s*:\s*([A-Z ]+)`},
		{Name: "passport_number", Regex: `passport\s*no\s*:\s*(\S+)`},
		{Name: "date_of_birth", Regex: `date of birth\s*:\s*(\S+)`},
		{Name: "nationality", Regex: `nationality\s*:\s*(\S+)`},
		{Name: "broken", Regex: `([`},
	}
	out, err := x.ExtractAllFields(context.Background(), text, fields, validation.ExtractionContext{DocType: "passport"})
	require.NoError(t, err)
	require.Len(t, out.PolicyFields, 5)

	name := out.PolicyFields["full_name"]
	require.True(t, name.Found)
	assert.Equal(t, "MARIA DA SILVA", name.BestMatch.Value)
	assert.True(t, name.BestMatch.Validation.IsValid)

	assert.Equal(t, "FX123456", out.PolicyFields["passport_number"].BestMatch.Value)
	assert.True(t, out.PolicyFields["date_of_birth"].Valid())
	assert.False(t, out.PolicyFields["nationality"].Found)

	broken := out.PolicyFields["broken"]
	assert.False(t, broken.Found)
	require.NotNil(t, broken.BestMatch)
	assert.NotEmpty(t, broken.BestMatch.Validation.Issues)
}

func TestFieldValidation(t *testing.T) {
	x := NewRegexFieldExtractor()
	x.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	future := x.validate("date_of_birth", "01/02/2030")
	assert.False(t, future.IsValid)
	assert.Less(t, future.Confidence, baseConfidence)

	assert.False(t, x.validate("passport_number", "12-34").IsValid)
	assert.False(t, x.validate("employee_name", "J0hn").IsValid)
	assert.True(t, x.validate("admit_until", "D/S").IsValid)
	assert.True(t, x.validate("salary", "$85,000").IsValid)

	d, ok := ParseDate("15 Mar 1988")
	require.True(t, ok)
	assert.Equal(t, 1988, d.Year())
}

func resultWith(filename string, values map[string]string) validation.ValidationResult {
	r := validation.ValidationResult{Filename: filename, Fields: &validation.FieldExtractionResult{PolicyFields: map[string]validation.FieldExtraction{}}}
	for k, v := range values {
		r.Fields.PolicyFields[k] = validation.FieldExtraction{Found: true, BestMatch: &validation.FieldMatch{Value: v, Validation: validation.FieldValidation{IsValid: true, Confidence: 0.9}}}
	}
	return r
}

func TestConsistencyChecker(t *testing.T) {
	c := NewConsistencyChecker()
	ctx := context.Background()

	matching := []validation.ValidationResult{
		resultWith("passport.pdf", map[string]string{"full_name": "SILVA, María José", "date_of_birth": "01/02/1990"}),
		resultWith("birth.pdf", map[string]string{"full_name": "maria jose silva", "date_of_birth": "1990-02-01"}),
		resultWith("letter.pdf", map[string]string{"employee_name": "Maria Jose Silva"}),
	}
	ok, err := c.AnalyzeDocumentConsistency(ctx, matching, &validation.CaseContext{BeneficiaryName: "María José Silva"})
	require.NoError(t, err)
	assert.Empty(t, ok.CriticalIssues)
	assert.Equal(t, 1.0, ok.ConsistencyScore)

	mismatched := []validation.ValidationResult{
		resultWith("passport.pdf", map[string]string{"full_name": "Maria Silva", "date_of_birth": "01/02/1990"}),
		resultWith("birth.pdf", map[string]string{"full_name": "Maria Souza", "date_of_birth": "01/02/1990"}),
	}
	bad, err := c.AnalyzeDocumentConsistency(ctx, mismatched, nil)
	require.NoError(t, err)
	require.Len(t, bad.CriticalIssues, 1)
	assert.Equal(t, "match_beneficiary_name_across_docs", bad.CriticalIssues[0].RuleName)
	assert.Equal(t, []string{"passport.pdf", "birth.pdf"}, bad.CriticalIssues[0].Documents)
	assert.InDelta(t, 0.5, bad.ConsistencyScore, 1e-9)
	assert.Len(t, bad.Recommendations, 1)

	caseName, err := c.AnalyzeDocumentConsistency(ctx, mismatched[:1], &validation.CaseContext{BeneficiaryName: "John Smith"})
	require.NoError(t, err)
	require.Len(t, caseName.CriticalIssues, 1)
	assert.Equal(t, caseNameRule, caseName.CriticalIssues[0].RuleName)
	assert.Equal(t, 0.0, caseName.ConsistencyScore)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, NormalizeName("SILVA, María"), NormalizeName("maria silva"))
	assert.Equal(t, "joao silva", NormalizeName("João  Silva"))
}

func TestKeywordClassifier(t *testing.T) {
	k := NewKeywordClassifier(shippedPolicies(t))
	ctx := context.Background()

	c, err := k.ClassifyDocument(ctx, "Most recent I-94 Admission record. Class of admission: B2. Admit until date: 01/01/2027", "scan.pdf", 1000)
	require.NoError(t, err)
	assert.Equal(t, "i94_record", c.DocumentType)
	assert.Equal(t, ClassificationOK, c.Status)

	byName, err := k.ClassifyDocument(ctx, "", "my_passport_scan.jpg", 1000)
	require.NoError(t, err)
	assert.Equal(t, "passport", byName.DocumentType)
	assert.Equal(t, ClassificationLowConfidence, byName.Status)

	none, err := k.ClassifyDocument(ctx, "grocery list", "notes.txt", 10)
	require.NoError(t, err)
	assert.Equal(t, validation.UnknownDocType, none.DocumentType)
	assert.Equal(t, ClassificationUnclassified, none.Status)
}

type scriptedLLM struct {
	responses []string
	calls     int
}

func (s *scriptedLLM) GenerateJSON(context.Context, string) (string, error) {
	r := s.responses[min(s.calls, len(s.responses)-1)]
	s.calls++
	return r, nil
}

func TestLLMClassifier(t *testing.T) {
	caller := &scriptedLLM{responses: []string{
		`{"document_type":"visa","confidence":0.9}`,
		`{"document_type":"marriage_certificate","confidence":0.8,"alternatives":[{"document_type":"birth_certificate","confidence":0.1},{"document_type":"visa","confidence":0.1}]}`,
	}}
	l := NewLLMClassifier(llm.NewExecutor(caller, discardLogger()), []string{"birth_certificate", "marriage_certificate"})

	c, err := l.ClassifyDocument(context.Background(), "Certificate of marriage", "m.pdf", 100)
	require.NoError(t, err)
	assert.Equal(t, 2, caller.calls)
	assert.Equal(t, "marriage_certificate", c.DocumentType)
	require.Len(t, c.Candidates, 2)
	assert.Equal(t, "birth_certificate", c.Candidates[1].DocumentType)
}

type stubClassifier struct {
	out   validation.Classification
	err   error
	calls int
}

func (s *stubClassifier) ClassifyDocument(context.Context, string, string, int) (validation.Classification, error) {
	s.calls++
	return s.out, s.err
}

func TestFallbackClassifier(t *testing.T) {
	confident := &stubClassifier{out: validation.Classification{DocumentType: "passport", Confidence: 0.9}}
	secondary := &stubClassifier{out: validation.Classification{DocumentType: "i94_record", Confidence: 0.8}}
	f := NewFallbackClassifier(confident, secondary, 0.6, discardLogger())

	c, err := f.ClassifyDocument(context.Background(), "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "passport", c.DocumentType)
	assert.Zero(t, secondary.calls)

	weak := &stubClassifier{out: validation.Classification{DocumentType: "passport", Confidence: 0.3}}
	f = NewFallbackClassifier(weak, secondary, 0.6, discardLogger())
	c, err = f.ClassifyDocument(context.Background(), "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "i94_record", c.DocumentType)

	broken := &stubClassifier{err: errors.New("llm down")}
	f = NewFallbackClassifier(weak, broken, 0.6, discardLogger())
	c, err = f.ClassifyDocument(context.Background(), "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "passport", c.DocumentType, "keeps the weak answer when the fallback fails")
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func (m *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, m.err
}

func (m *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return m.err
}

func TestCachedClassifier(t *testing.T) {
	inner := &stubClassifier{out: validation.Classification{DocumentType: "passport", Confidence: 0.7, Status: ClassificationOK}}
	cache := &mapCache{data: map[string][]byte{}}
	c := NewCachedClassifier(inner, cache, time.Hour, discardLogger())

	first, err := c.ClassifyDocument(context.Background(), "text", "p.pdf", 10)
	require.NoError(t, err)
	second, err := c.ClassifyDocument(context.Background(), "text", "p.pdf", 10)
	require.NoError(t, err)
	assert.Equal(t, first.DocumentType, second.DocumentType)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, 1, inner.calls)

	_, err = c.ClassifyDocument(context.Background(), "other text", "p.pdf", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)

	cache.err = errors.New("redis unavailable")
	_, err = c.ClassifyDocument(context.Background(), "third", "p.pdf", 10)
	require.NoError(t, err, "cache failures do not fail classification")
}

func TestExtractText(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "letter.txt")
	require.NoError(t, os.WriteFile(txt, []byte("  To whom it may concern  \n"), 0o644))
	got, raw, err := ExtractText(context.Background(), txt)
	require.NoError(t, err)
	assert.Equal(t, "To whom it may concern", got.Text)
	assert.Equal(t, "plain-text", got.Method)
	assert.NotEmpty(t, raw)

	bin := filepath.Join(dir, "blob.dat")
	content := append([]byte{0, 1, 2}, []byte("Employment verification letter for Maria Silva")...)
	content = append(content, 0, 0)
	require.NoError(t, os.WriteFile(bin, content, 0o644))
	got, _, err = ExtractText(context.Background(), bin)
	require.NoError(t, err)
	assert.Equal(t, "byte-fallback", got.Method)
	assert.True(t, strings.HasPrefix(got.Text, "Employment verification"))

	long := truncateExtraction(strings.Repeat("a", maxTextRun+10), "plain-text")
	assert.True(t, long.Truncated)
	assert.True(t, strings.HasSuffix(long.Text, "[TRUNCATED]"))
}

func TestExtractTextFromBytes(t *testing.T) {
	got, err := ExtractTextFromBytes(context.Background(), "Letter.TXT", []byte("Employment letter"))
	require.NoError(t, err)
	assert.Equal(t, "Employment letter", got.Text)

	_, err = ExtractTextFromBytes(context.Background(), "x.pdf", nil)
	assert.Error(t, err)
}
