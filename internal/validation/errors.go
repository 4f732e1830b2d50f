package validation

import (
	"errors"
	"fmt"
	"math"
)

const (
	StagePolicy      = "policy"
	StageQuality     = "quality"
	StageLanguage    = "language"
	StageTranslation = "translation"
	StageFields      = "fields"
	StageRules       = "rules"
	StageClassify    = "classify"
	StageConsistency = "consistency"
)

var (
	ErrMissingCollaborator = errors.New("collaborator not configured")
	ErrMalformedResult     = errors.New("malformed collaborator result")
)

// checkUnit rejects NaN, infinities and values outside [0,1].
func checkUnit(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 1 {
		return fmt.Errorf("%w: %s = %v, want a value in [0,1]", ErrMalformedResult, name, v)
	}
	return nil
}

type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageNameFromError returns the failing stage, or "engine" when err is not a StageError.
func StageNameFromError(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return "engine"
}

// panicError wraps a value recovered from a collaborator panic.
type panicError struct {
	value any
}

func (p panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}
