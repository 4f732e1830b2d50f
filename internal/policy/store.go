package policy

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var ErrNotFound = errors.New("policy not found")

var validSeverities = map[string]bool{"": true, "low": true, "medium": true, "high": true, "critical": true}

// Store maps document types to policies. It is filled once by NewStore and never
// mutated afterwards, so concurrent readers need no locking.
type Store struct {
	policies map[string]*Policy
	order    []string
}

func NewStore(policies ...*Policy) (*Store, error) {
	s := &Store{policies: make(map[string]*Policy, len(policies))}
	var errs []error
	for _, p := range policies {
		if p == nil {
			continue
		}
		if err := prepare(p); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := s.policies[p.DocType]; dup {
			errs = append(errs, fmt.Errorf("duplicate policy for doc type %q", p.DocType))
			continue
		}
		s.policies[p.DocType] = p
		s.order = append(s.order, p.DocType)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	sort.Strings(s.order)
	return s, nil
}

func (s *Store) Get(docType string) (*Policy, bool) {
	if s == nil {
		return nil, false
	}
	p, ok := s.policies[docType]
	return p, ok
}

// Lookup is Get with an error carrying ErrNotFound for unknown types.
func (s *Store) Lookup(docType string) (*Policy, error) {
	p, ok := s.Get(docType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, docType)
	}
	return p, nil
}

// DocTypes returns the configured document types in sorted order.
func (s *Store) DocTypes() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}

func (s *Store) All() []*Policy {
	out := make([]*Policy, 0, len(s.order))
	for _, t := range s.DocTypes() {
		out = append(out, s.policies[t])
	}
	return out
}

func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

func prepare(p *Policy) error {
	p.DocType = strings.TrimSpace(p.DocType)
	if p.DocType == "" {
		return errors.New("policy doc_type is required")
	}
	wrap := func(format string, args ...any) error {
		return fmt.Errorf("policy %q: %s", p.DocType, fmt.Sprintf(format, args...))
	}
	switch p.Language {
	case LanguageAny, LanguageEnOrTranslationReqd:
	default:
		return wrap("unknown language requirement %q", p.Language)
	}
	w := p.Scoring.Weights()
	for name, v := range map[string]float64{
		"quality_weight":             w.Quality,
		"critical_fields_weight":     w.CriticalFields,
		"presence_checks_weight":     w.PresenceChecks,
		"consistency_weight":         w.Consistency,
		"language_compliance_weight": w.LanguageCompliance,
		"field_extraction_weight":    w.FieldExtraction,
	} {
		if v < 0 {
			return wrap("%s must not be negative", name)
		}
	}
	if p.Quality.MinDPI < 0 {
		return wrap("quality.min_dpi must not be negative")
	}

	p.fieldPatterns = map[string]*regexp.Regexp{}
	seen := map[string]bool{}
	for _, f := range p.AllFields() {
		if strings.TrimSpace(f.Name) == "" {
			return wrap("field name is required")
		}
		if seen[f.Name] {
			return wrap("duplicate field %q", f.Name)
		}
		seen[f.Name] = true
		if f.Regex == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + f.Regex)
		if err != nil {
			return wrap("field %q: invalid regex: %v", f.Name, err)
		}
		p.fieldPatterns[f.Name] = re
	}

	for i := range p.Rules {
		r := &p.Rules[i]
		if !validSeverities[strings.ToLower(r.Severity)] {
			return wrap("rule %q: unknown severity %q", r.Name, r.Severity)
		}
		r.Severity = strings.ToLower(r.Severity)
		if err := r.compile(); err != nil {
			return wrap("%v", err)
		}
	}
	return nil
}
