package analyzers

import (
	"github.com/Josepassinato/camada-osprey-core-sub001/internal/policy"
	"github.com/Josepassinato/camada-osprey-core-sub001/internal/validation"
)

// NewCollaborators wires the local analyzers for a policy store. A nil
// classifier falls back to keyword classification.
func NewCollaborators(store *policy.Store, classifier validation.Classifier) validation.Collaborators {
	if classifier == nil {
		classifier = NewKeywordClassifier(store)
	}
	return validation.Collaborators{
		Quality:     NewQualityChecker(),
		Fields:      NewRegexFieldExtractor(),
		Language:    NewLanguageDetector(store),
		Consistency: NewConsistencyChecker(),
		Classifier:  classifier,
	}
}
