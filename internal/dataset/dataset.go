// Package dataset holds the experiment's input entities and the in-memory
// indices the pipeline stages read from. The input collaborator delivers
// relationally consistent data, so no referential checks happen here.
package dataset

import (
	"sort"
)

// Dataset is an immutable view over the loaded entities with precomputed
// indices. Build one with New and share it freely across goroutines.
type Dataset struct {
	concepts  map[string]Concept
	exercises map[string]Exercise

	byStudent  map[string][]Interaction
	byConcept  map[string][]string // concept ID -> exercise IDs, sorted
	studentIDs []string
	conceptIDs []string
}

// New builds a Dataset from loaded entities. Per-student interaction logs
// are ordered by timestamp, ties broken by interaction ID, so every
// downstream split and trajectory is deterministic.
func New(concepts []Concept, exercises []Exercise, interactions []Interaction) *Dataset {
	d := &Dataset{
		concepts:  make(map[string]Concept, len(concepts)),
		exercises: make(map[string]Exercise, len(exercises)),
		byStudent: make(map[string][]Interaction),
		byConcept: make(map[string][]string),
	}

	for _, c := range concepts {
		d.concepts[c.ID] = c
		d.conceptIDs = append(d.conceptIDs, c.ID)
	}
	sort.Strings(d.conceptIDs)

	for _, ex := range exercises {
		d.exercises[ex.ID] = ex
		for _, cid := range ex.ConceptIDs {
			d.byConcept[cid] = append(d.byConcept[cid], ex.ID)
		}
	}
	for cid := range d.byConcept {
		sort.Strings(d.byConcept[cid])
	}

	for _, rec := range interactions {
		d.byStudent[rec.StudentID] = append(d.byStudent[rec.StudentID], rec)
	}
	for sid, recs := range d.byStudent {
		sort.Slice(recs, func(i, j int) bool {
			if !recs[i].Timestamp.Equal(recs[j].Timestamp) {
				return recs[i].Timestamp.Before(recs[j].Timestamp)
			}
			return recs[i].ID < recs[j].ID
		})
		d.studentIDs = append(d.studentIDs, sid)
	}
	sort.Strings(d.studentIDs)

	return d
}

// Concept returns the concept with the given ID.
func (d *Dataset) Concept(id string) (Concept, bool) {
	c, ok := d.concepts[id]
	return c, ok
}

// Exercise returns the exercise with the given ID.
func (d *Dataset) Exercise(id string) (Exercise, bool) {
	ex, ok := d.exercises[id]
	return ex, ok
}

// StudentIDs returns all student IDs in sorted order.
func (d *Dataset) StudentIDs() []string {
	out := make([]string, len(d.studentIDs))
	copy(out, d.studentIDs)
	return out
}

// ConceptIDs returns all concept IDs in sorted order.
func (d *Dataset) ConceptIDs() []string {
	out := make([]string, len(d.conceptIDs))
	copy(out, d.conceptIDs)
	return out
}

// History returns the student's full interaction log in chronological
// order. The returned slice is shared; callers must not mutate it.
func (d *Dataset) History(studentID string) []Interaction {
	return d.byStudent[studentID]
}

// ExercisesForConcept returns the IDs of all exercises tagged with the
// concept, in sorted order.
func (d *Dataset) ExercisesForConcept(conceptID string) []string {
	return d.byConcept[conceptID]
}

// PrimaryConcept returns the first concept tagged on the exercise.
func (d *Dataset) PrimaryConcept(ex Exercise) (Concept, bool) {
	if len(ex.ConceptIDs) == 0 {
		return Concept{}, false
	}
	return d.Concept(ex.ConceptIDs[0])
}

// PrerequisiteNames resolves a concept's prerequisite IDs to names,
// skipping dangling references.
func (d *Dataset) PrerequisiteNames(c Concept) []string {
	var names []string
	for _, pid := range c.Prerequisites {
		if pre, ok := d.concepts[pid]; ok {
			names = append(names, pre.Name)
		}
	}
	return names
}

// CorrectChoice returns the exercise's correct choice.
func CorrectChoice(ex Exercise) (Choice, bool) {
	for _, ch := range ex.Choices {
		if ch.Correct {
			return ch, true
		}
	}
	return Choice{}, false
}

// ChoiceLetter returns the display letter (A, B, C, ...) for the choice at
// the given index in the exercise's stored order.
func ChoiceLetter(idx int) string {
	return string(rune('A' + idx))
}
