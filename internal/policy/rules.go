package policy

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Facts is the document view exposed to custom rule expressions.
type Facts struct {
	Text          string
	Filename      string
	DocType       string
	Fields        map[string]string
	QualityStatus string
	WordCount     int
}

type compiledRule struct {
	program cel.Program
}

var ruleEnv = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("text", cel.StringType),
		cel.Variable("filename", cel.StringType),
		cel.Variable("doc_type", cel.StringType),
		cel.Variable("fields", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("quality_status", cel.StringType),
		cel.Variable("word_count", cel.IntType),
	)
})

var errRuleNotCompiled = errors.New("rule not compiled")

func (r *Rule) compile() error {
	if r.Name == "" {
		return errors.New("rule name is required")
	}
	if r.Expression == "" {
		return fmt.Errorf("rule %q: expression is required", r.Name)
	}
	env, err := ruleEnv()
	if err != nil {
		return fmt.Errorf("cel environment: %w", err)
	}
	ast, issues := env.Compile(r.Expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("rule %q: compile: %w", r.Name, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return fmt.Errorf("rule %q: program: %w", r.Name, err)
	}
	r.program = &compiledRule{program: prg}
	return nil
}

// Evaluate runs the rule against f. It returns true when the document satisfies the rule.
func (r *Rule) Evaluate(f Facts) (bool, error) {
	if r.program == nil {
		return false, errRuleNotCompiled
	}
	fields := f.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	out, _, err := r.program.program.Eval(map[string]any{
		"text":           f.Text,
		"filename":       f.Filename,
		"doc_type":       f.DocType,
		"fields":         fields,
		"quality_status": f.QualityStatus,
		"word_count":     int64(f.WordCount),
	})
	if err != nil {
		return false, fmt.Errorf("rule %q: eval: %w", r.Name, err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("rule %q: expression returned %T, want bool", r.Name, out.Value())
	}
	return ok, nil
}
