package memory

import (
	"github.com/hanyuliu/simlearn/internal/dataset"
	"github.com/hanyuliu/simlearn/internal/mastery"
	"github.com/hanyuliu/simlearn/internal/tutoring"
)

// Context is the memory visible to one simulation call. Nil fields mean no
// applicable memory; Context is never persisted.
type Context struct {
	LongTerm  *mastery.Record
	ShortTerm *tutoring.Material
}

// Empty reports whether no memory applies.
func (c Context) Empty() bool {
	return c.LongTerm == nil && c.ShortTerm == nil
}

// Resolve returns the memory context for one test exercise under a mode.
// Long-term memory is included only when the mode enables mastery and a
// record exists for the exercise's primary concept; short-term only when
// the mode enables tutoring and a material exists for exactly that concept.
// A miss yields an empty field, never a substitute from another concept.
// Pure: safe for concurrent use over shared maps.
func Resolve(ex dataset.Exercise, mode Mode, masteryByConcept map[string]mastery.Record, tutoringByConcept map[string]tutoring.Material) Context {
	if len(ex.ConceptIDs) == 0 {
		return Context{}
	}
	primary := ex.ConceptIDs[0]

	var ctx Context
	if mode.EnablesMastery() {
		if rec, ok := masteryByConcept[primary]; ok {
			ctx.LongTerm = &rec
		}
	}
	if mode.EnablesTutoring() {
		if mat, ok := tutoringByConcept[primary]; ok {
			ctx.ShortTerm = &mat
		}
	}
	return ctx
}
