// Package mastery assesses a student's command of each practiced concept
// from their training-segment interaction history, using an LLM grader that
// answers in labeled sections.
package mastery

import (
	"fmt"
	"strings"
)

// Level is the assessed mastery of one (student, concept) pair.
type Level string

const (
	LevelNovice     Level = "Novice"
	LevelDeveloping Level = "Developing"
	LevelProficient Level = "Proficient"
	LevelMastered   Level = "Mastered"
)

// levelRanks orders levels from weakest to strongest.
var levelRanks = map[Level]int{
	LevelNovice:     0,
	LevelDeveloping: 1,
	LevelProficient: 2,
	LevelMastered:   3,
}

// levelsByFold maps lowercased labels to their canonical Level.
var levelsByFold = map[string]Level{
	"novice":     LevelNovice,
	"developing": LevelDeveloping,
	"proficient": LevelProficient,
	"mastered":   LevelMastered,
}

// ParseLevel matches s against the four labels case-insensitively and
// returns the canonical Level. Anything else is an error, never a default.
func ParseLevel(s string) (Level, error) {
	if l, ok := levelsByFold[strings.ToLower(s)]; ok {
		return l, nil
	}
	return "", fmt.Errorf("unknown mastery level %q", s)
}

// Valid reports whether l is one of the four defined levels.
func (l Level) Valid() bool {
	_, ok := levelRanks[l]
	return ok
}

// Weak reports whether l marks a concept as needing tutoring.
func (l Level) Weak() bool {
	return l == LevelNovice || l == LevelDeveloping
}

// Rank returns the level's position from weakest (0) to strongest (3).
// Unknown levels rank below Novice.
func (l Level) Rank() int {
	if r, ok := levelRanks[l]; ok {
		return r
	}
	return -1
}

// Record is one completed assessment for a (student, concept) pair.
type Record struct {
	StudentID   string
	ConceptID   string
	Level       Level
	Rationale   string
	Suggestions string
}
