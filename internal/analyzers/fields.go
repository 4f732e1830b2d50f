package analyzers

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/Josepassinato/camada-osprey-core-sub001/internal/policy"
	"github.com/Josepassinato/camada-osprey-core-sub001/internal/validation"
)

const (
	maxMatchesPerField = 5
	baseConfidence     = 0.95
	wholeMatchPenalty  = 0.10
	issuePenalty       = 0.35
	minConfidence      = 0.05
)

var (
	passportNumberPattern = regexp.MustCompile(`^[A-Z0-9]{6,9}$`)
	dateLayouts           = []string{
		"2006-01-02", "02/01/2006", "01/02/2006", "2/1/2006", "02.01.2006", "02-01-2006",
		"02 Jan 2006", "2 Jan 2006", "02 Jan 06", "January 2, 2006", "02/01/06",
	}
)

// RegexFieldExtractor pulls policy fields out of extracted text with the
// case-insensitive pattern declared for each field.
type RegexFieldExtractor struct {
	mu       sync.Mutex
	compiled map[string]*regexp.Regexp
	now      func() time.Time
}

func NewRegexFieldExtractor() *RegexFieldExtractor {
	return &RegexFieldExtractor{compiled: map[string]*regexp.Regexp{}, now: time.Now}
}

func (x *RegexFieldExtractor) ExtractAllFields(_ context.Context, text string, fields []policy.FieldDef, ec validation.ExtractionContext) (validation.FieldExtractionResult, error) {
	out := validation.FieldExtractionResult{PolicyFields: make(map[string]validation.FieldExtraction, len(fields))}
	for _, f := range fields {
		out.PolicyFields[f.Name] = x.extract(text, f)
	}
	return out, nil
}

func (x *RegexFieldExtractor) extract(text string, f policy.FieldDef) validation.FieldExtraction {
	if strings.TrimSpace(f.Regex) == "" {
		return validation.FieldExtraction{}
	}
	re, err := x.pattern(f.Regex)
	if err != nil {
		return validation.FieldExtraction{BestMatch: &validation.FieldMatch{
			Validation: validation.FieldValidation{Issues: []string{err.Error()}},
		}}
	}

	var best *validation.FieldMatch
	for _, m := range re.FindAllStringSubmatch(text, maxMatchesPerField) {
		value, whole := matchValue(m)
		if value == "" {
			continue
		}
		v := x.validate(f.Name, value)
		if whole {
			v.Confidence = clampConfidence(v.Confidence - wholeMatchPenalty)
		}
		if best == nil || v.Confidence > best.Validation.Confidence {
			best = &validation.FieldMatch{Value: value, Validation: v}
		}
	}
	if best == nil {
		return validation.FieldExtraction{}
	}
	return validation.FieldExtraction{Found: true, BestMatch: best}
}

func (x *RegexFieldExtractor) pattern(expr string) (*regexp.Regexp, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if re, ok := x.compiled[expr]; ok {
		return re, nil
	}
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return nil, fmt.Errorf("compile field pattern: %w", err)
	}
	x.compiled[expr] = re
	return re, nil
}

// matchValue prefers the first non-empty capture group over the whole match.
func matchValue(m []string) (string, bool) {
	for _, g := range m[1:] {
		if v := strings.TrimSpace(g); v != "" {
			return strings.Trim(v, " ,.;:"), false
		}
	}
	return strings.TrimSpace(m[0]), true
}

func (x *RegexFieldExtractor) validate(name, value string) validation.FieldValidation {
	var issues []string
	lname := strings.ToLower(name)
	switch {
	case strings.Contains(lname, "date") || lname == "admit_until":
		if strings.EqualFold(value, "D/S") {
			break
		}
		t, ok := ParseDate(value)
		switch {
		case !ok:
			issues = append(issues, fmt.Sprintf("unrecognized date format %q", value))
		case strings.Contains(lname, "birth") && t.After(x.now()):
			issues = append(issues, "date of birth is in the future")
		case t.Year() < 1900:
			issues = append(issues, "date is implausibly old")
		}
	case lname == "passport_number":
		if !passportNumberPattern.MatchString(strings.ToUpper(value)) {
			issues = append(issues, "passport number must be 6 to 9 letters or digits")
		}
	case strings.HasSuffix(lname, "_name") || lname == "account_holder":
		letters, digits := 0, 0
		for _, r := range value {
			switch {
			case unicode.IsLetter(r):
				letters++
			case unicode.IsDigit(r):
				digits++
			}
		}
		if digits > 0 {
			issues = append(issues, "name contains digits")
		}
		if letters < 2 {
			issues = append(issues, "name is too short")
		}
	}

	conf := baseConfidence - issuePenalty*float64(len(issues))
	return validation.FieldValidation{
		IsValid:    len(issues) == 0,
		Confidence: clampConfidence(conf),
		Issues:     issues,
	}
}

// ParseDate parses the date layouts commonly found on civil and travel documents.
func ParseDate(s string) (time.Time, bool) {
	s = strings.Join(strings.Fields(s), " ")
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func clampConfidence(c float64) float64 {
	if c < minConfidence {
		return minConfidence
	}
	if c > 1 {
		return 1
	}
	return c
}
