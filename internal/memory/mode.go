// Package memory resolves which remembered context a simulated student may
// see for one test exercise, and renders it in first person. Resolution is
// a pure lookup: exact concept match only, no substitution.
package memory

import "fmt"

// Mode is the ablation mode controlling which memory fields are injected
// into a simulation prompt.
type Mode string

const (
	ModeBaseline     Mode = "baseline"
	ModeMasteryOnly  Mode = "mastery_only"
	ModeTutoringOnly Mode = "tutoring_only"
	ModeCombined     Mode = "combined"
)

// AllModes lists every mode in a stable order.
func AllModes() []Mode {
	return []Mode{ModeBaseline, ModeMasteryOnly, ModeTutoringOnly, ModeCombined}
}

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	switch m {
	case ModeBaseline, ModeMasteryOnly, ModeTutoringOnly, ModeCombined:
		return m, nil
	}
	return "", fmt.Errorf("unknown ablation mode %q", s)
}

// EnablesMastery reports whether the mode injects long-term memory.
func (m Mode) EnablesMastery() bool {
	return m == ModeMasteryOnly || m == ModeCombined
}

// EnablesTutoring reports whether the mode injects short-term memory.
func (m Mode) EnablesTutoring() bool {
	return m == ModeTutoringOnly || m == ModeCombined
}
