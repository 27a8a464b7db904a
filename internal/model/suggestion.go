package model

import (
	"fmt"
	"sort"
)

// Suggestion is one ranked candidate proposed for a query record, either by
// the oracle or by the local heuristic fallback.
type Suggestion struct {
	CandidateFields map[string]string
	Rationale       string
	Confidence      float64
	CandidateIndex  int
	Heuristic       bool
}

// Validate ensures the Suggestion has valid data.
func (s *Suggestion) Validate() error {
	if len(s.CandidateFields) == 0 {
		return fmt.Errorf("suggestion has no candidate fields")
	}

	if s.Confidence < 0.0 || s.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0, got %.2f", s.Confidence)
	}

	return nil
}

// Suggestions is a ranked slice of Suggestion supporting sorting and utility
// methods.
type Suggestions []Suggestion

// Len implements sort.Interface.
func (s Suggestions) Len() int {
	return len(s)
}

// Less implements sort.Interface - higher confidence comes first.
func (s Suggestions) Less(i, j int) bool {
	if s[i].Confidence != s[j].Confidence {
		return s[i].Confidence > s[j].Confidence
	}
	// Equal confidence falls back to candidate order for stability
	return s[i].CandidateIndex < s[j].CandidateIndex
}

// Swap implements sort.Interface.
func (s Suggestions) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

// Sort orders the suggestions by confidence descending.
func (s Suggestions) Sort() {
	sort.Sort(s)
}

// Top returns the highest-confidence suggestion, or nil if empty.
func (s Suggestions) Top() *Suggestion {
	if len(s) == 0 {
		return nil
	}
	s.Sort()
	return &s[0]
}

// TopN returns the N highest-confidence suggestions.
func (s Suggestions) TopN(n int) Suggestions {
	if n <= 0 {
		return Suggestions{}
	}

	s.Sort()

	if n > len(s) {
		n = len(s)
	}

	result := make(Suggestions, n)
	copy(result, s[:n])
	return result
}

// Validate ensures all suggestions in the slice are valid.
func (s Suggestions) Validate() error {
	for i := range s {
		if err := s[i].Validate(); err != nil {
			return fmt.Errorf("invalid suggestion at index %d: %w", i, err)
		}
	}
	return nil
}
