// Package criteria decides whether a model response satisfies a task's
// declared completion criteria.
//
// Evaluation is pure: the same response and Spec always yield the same answer
// and nothing outside the arguments is read.
package criteria

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Spec is the set of clauses a response must satisfy. A nil field is an
// absent clause.
type Spec struct {
	Contains  *string `yaml:"contains,omitempty" json:"contains,omitempty"`
	MinLength *int    `yaml:"min_length,omitempty" json:"min_length,omitempty"`
}

// ErrNegativeMinLength rejects a min_length below zero.
var ErrNegativeMinLength = errors.New("min_length must be non-negative")

// Validate checks the clause values.
func (s *Spec) Validate() error {
	if s == nil {
		return nil
	}
	if s.MinLength != nil && *s.MinLength < 0 {
		return fmt.Errorf("%w, got %d", ErrNegativeMinLength, *s.MinLength)
	}
	return nil
}

// IsEmpty reports whether the spec has no clauses.
func (s *Spec) IsEmpty() bool {
	return s == nil || (s.Contains == nil && s.MinLength == nil)
}

// Evaluate returns true when response satisfies every clause in spec. A nil
// or empty spec is always satisfied. contains is a case-sensitive substring
// match; min_length counts characters and is inclusive.
func Evaluate(response string, spec *Spec) bool {
	return len(Explain(response, spec)) == 0
}

// Explain lists the clauses response fails, in a fixed order. An empty result
// means Evaluate would return true.
func Explain(response string, spec *Spec) []string {
	if spec.IsEmpty() {
		return nil
	}
	var unmet []string
	if spec.Contains != nil && !strings.Contains(response, *spec.Contains) {
		unmet = append(unmet, fmt.Sprintf("response does not contain %q", *spec.Contains))
	}
	if spec.MinLength != nil {
		if n := utf8.RuneCountInString(response); n < *spec.MinLength {
			unmet = append(unmet, fmt.Sprintf("response length %d is below min_length %d", n, *spec.MinLength))
		}
	}
	return unmet
}

// Describe renders spec as a short human-readable summary.
func Describe(spec *Spec) string {
	if spec.IsEmpty() {
		return "none"
	}
	parts := make([]string, 0, 2)
	if spec.Contains != nil {
		parts = append(parts, fmt.Sprintf("contains %q", *spec.Contains))
	}
	if spec.MinLength != nil {
		parts = append(parts, fmt.Sprintf("min_length %d", *spec.MinLength))
	}
	return strings.Join(parts, ", ")
}
