package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDirShippedPolicies(t *testing.T) {
	store, err := LoadDir(filepath.Join("..", "..", "policies"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"bank_statement",
		"birth_certificate",
		"employment_letter",
		"i94_record",
		"marriage_certificate",
		"passport",
	}, store.DocTypes())

	p, ok := store.Get("birth_certificate")
	require.True(t, ok)
	assert.True(t, p.RequiresTranslation())
	assert.Equal(t, []string{PresenceOfficialSeal, PresenceSignature}, p.PresenceChecks.Names())
	assert.Len(t, p.AllFields(), 6)
	assert.True(t, p.IsRequiredField("date_of_birth"))
	assert.False(t, p.IsRequiredField("father_name"))

	re, ok := p.FieldPattern("full_name")
	require.True(t, ok)
	assert.True(t, re.MatchString("NAME: maria da silva"))
}

func TestLoadFileDefaultsDocTypeToFilename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "national_id.yaml")
	require.NoError(t, os.WriteFile(path, []byte("required_text_snippets: [IDENTITY]\n"), 0o644))

	p, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "national_id", p.DocType)
	assert.Equal(t, []string{"IDENTITY"}, p.RequiredTextSnippets)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("doc_type: passport\nrequired_feilds: []\n"))
	require.Error(t, err)
}

func TestParseRejectsEmptyDocument(t *testing.T) {
	_, err := Parse(nil)
	require.Error(t, err)
}

func TestLoadDirJoinsErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("language: klingon\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("required_fields:\n  - name: x\n    regex: '(['\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	_, err := LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown language requirement")
	assert.Contains(t, err.Error(), "invalid regex")
}

func TestScoringDefaults(t *testing.T) {
	w := Scoring{}.Weights()
	assert.Equal(t, Weights{
		Quality:            0.25,
		CriticalFields:     0.35,
		PresenceChecks:     0.15,
		Consistency:        0.10,
		LanguageCompliance: 0.10,
		FieldExtraction:    0.05,
	}, w)

	quality := 0.5
	partial := Scoring{QualityWeight: &quality}.Weights()
	assert.Equal(t, 0.5, partial.Quality)
	assert.Equal(t, DefaultLanguageComplianceWeight, partial.LanguageCompliance)
}

func TestNewStoreValidation(t *testing.T) {
	neg := -0.1
	cases := []struct {
		name   string
		policy *Policy
		want   string
	}{
		{name: "missing doc type", policy: &Policy{}, want: "doc_type is required"},
		{name: "negative weight", policy: &Policy{DocType: "x", Scoring: Scoring{ConsistencyWeight: &neg}}, want: "consistency_weight"},
		{name: "duplicate field", policy: &Policy{DocType: "x", RequiredFields: []FieldDef{{Name: "a"}}, OptionalFields: []FieldDef{{Name: "a"}}}, want: "duplicate field"},
		{name: "bad severity", policy: &Policy{DocType: "x", Rules: []Rule{{Name: "r", Expression: "true", Severity: "urgent"}}}, want: "unknown severity"},
		{name: "bad expression", policy: &Policy{DocType: "x", Rules: []Rule{{Name: "r", Expression: "text +"}}}, want: "compile"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewStore(tc.policy)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestNewStoreRejectsDuplicates(t *testing.T) {
	_, err := NewStore(&Policy{DocType: "passport"}, &Policy{DocType: "passport"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate policy")
}

func TestLookupUnknownType(t *testing.T) {
	store, err := NewStore(&Policy{DocType: "passport"})
	require.NoError(t, err)

	_, err = store.Lookup("visa")
	assert.True(t, errors.Is(err, ErrNotFound))

	var nilStore *Store
	_, ok := nilStore.Get("passport")
	assert.False(t, ok)
}

func TestRuleEvaluate(t *testing.T) {
	p := &Policy{DocType: "letter", Rules: []Rule{
		{Name: "long_enough", Expression: "word_count >= 3 && fields['employee_name'] != ''"},
		{Name: "not_bool", Expression: "word_count"},
	}}
	_, err := NewStore(p)
	require.NoError(t, err)

	ok, err := p.Rules[0].Evaluate(Facts{WordCount: 5, Fields: map[string]string{"employee_name": "Ana"}})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Rules[0].Evaluate(Facts{WordCount: 1})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = p.Rules[0].Evaluate(Facts{WordCount: 5})
	require.Error(t, err, "missing map key is an evaluation error")

	_, err = p.Rules[1].Evaluate(Facts{WordCount: 2})
	require.Error(t, err)

	uncompiled := Rule{Name: "raw", Expression: "true"}
	_, err = uncompiled.Evaluate(Facts{})
	require.ErrorIs(t, err, errRuleNotCompiled)
}
