// Package tutoring generates targeted remedial material for a student's
// weak concepts from their training history, one structured section per
// concept parsed out of a batched LLM reply.
package tutoring

import "fmt"

// WorkedExample is one solved training exercise inside a material.
type WorkedExample struct {
	ExerciseID string
	Solution   string
	Connection string
}

// Material is the remedial content generated for one (student, concept)
// pair. Immutable after creation.
type Material struct {
	StudentID      string
	ConceptID      string
	KeyPoints      []string
	Misconceptions []string
	WorkedExamples []WorkedExample
}

// PartialParseError reports that one concept's section was missing or
// empty in a batched reply. Other concepts in the same reply stay usable.
type PartialParseError struct {
	ConceptID   string
	ConceptName string
	Raw         string
}

func (e *PartialParseError) Error() string {
	return fmt.Sprintf("tutoring: response has no section for concept %q", e.ConceptName)
}
