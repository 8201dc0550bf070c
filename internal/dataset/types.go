package dataset

import "time"

// Concept is a single knowledge component in the curriculum.
// Concepts form a general relational graph through prerequisite links;
// the graph is not required to be acyclic.
type Concept struct {
	ID            string
	Name          string
	Description   string
	Prerequisites []string // concept IDs that feed into this one
}

// Choice is one answer option of an exercise. Exactly one choice per
// exercise carries Correct=true; the input collaborator guarantees this.
type Choice struct {
	ID      string
	Text    string
	Correct bool
}

// Exercise is a multiple-choice question tagged with one or more concepts.
// ConceptIDs preserves the stored order; the first entry is the primary
// concept used for memory matching.
type Exercise struct {
	ID         string
	Content    string
	Choices    []Choice
	ConceptIDs []string
	Difficulty int // 0 (very easy) .. 4 (very hard)
}

// Signals holds the optional behavioral measurements attached to an
// interaction. Nil fields mean the signal was not captured for that
// attempt. Scales are the source-system scales: confidence and perceived
// difficulty 0-3, duration in seconds; no cross-scale normalization is
// applied (see the rendering maps in the mastery package).
type Signals struct {
	Confidence          *int
	PerceivedDifficulty *int
	HintUsed            *bool
	ChoiceChanges       *int
	DurationSec         *float64
}

// Interaction is one attempt by one student at one exercise. Interactions
// are the append-only ground truth: nothing in the pipeline mutates them.
type Interaction struct {
	ID         string
	StudentID  string
	ExerciseID string
	ChoiceID   string
	Correct    bool
	Timestamp  time.Time
	Signals    Signals
}
