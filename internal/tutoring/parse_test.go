package tutoring

import (
	"testing"

	"github.com/hanyuliu/simlearn/internal/dataset"
)

var parseConcepts = []dataset.Concept{
	{ID: "k1", Name: "Fraction Addition"},
	{ID: "k2", Name: "Common Denominators"},
}

const wellFormedReply = `Concept: Fraction Addition
Key Points:
- Find a common denominator before adding
- Simplify the result
Misconceptions:
- Adding numerators and denominators separately
Example e1:
Solution: Convert 1/2 and 1/3 to sixths, then add: 3/6 + 2/6 = 5/6.
Connection: Shows why a shared denominator is required.

Concept: Common Denominators
Key Points:
- The least common multiple gives the smallest shared denominator
Misconceptions:
- Multiplying denominators always gives the least common denominator
Example e2:
Solution: LCM of 4 and 6 is 12.
Connection: Demonstrates finding the least common multiple.`

func TestParseResponse_WellFormed(t *testing.T) {
	materials, errs := parseResponse(wellFormedReply, parseConcepts)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(materials) != 2 {
		t.Fatalf("expected 2 materials, got %d", len(materials))
	}

	m := materials["k1"]
	if len(m.KeyPoints) != 2 || m.KeyPoints[0] != "Find a common denominator before adding" {
		t.Errorf("unexpected key points: %v", m.KeyPoints)
	}
	if len(m.Misconceptions) != 1 {
		t.Errorf("unexpected misconceptions: %v", m.Misconceptions)
	}
	if len(m.WorkedExamples) != 1 {
		t.Fatalf("expected 1 worked example, got %d", len(m.WorkedExamples))
	}
	we := m.WorkedExamples[0]
	if we.ExerciseID != "e1" {
		t.Errorf("example ID = %q, want e1", we.ExerciseID)
	}
	if we.Solution == "" || we.Connection == "" {
		t.Errorf("example missing solution/connection: %+v", we)
	}
}

func TestParseResponse_MissingConceptIsPartial(t *testing.T) {
	reply := `Concept: Fraction Addition
Key Points:
- Use a common denominator`

	materials, errs := parseResponse(reply, parseConcepts)
	if len(materials) != 1 {
		t.Fatalf("expected 1 material, got %d", len(materials))
	}
	if _, ok := materials["k1"]; !ok {
		t.Error("k1 material should survive")
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 partial error, got %d", len(errs))
	}
	if errs[0].ConceptID != "k2" {
		t.Errorf("failed concept = %q, want k2", errs[0].ConceptID)
	}
	if errs[0].Raw != reply {
		t.Error("raw reply not retained")
	}
}

func TestParseResponse_MarkdownEmphasisAndCase(t *testing.T) {
	reply := `concept: **Fraction Addition**
Key Points:
- Works despite markdown emphasis`

	materials, errs := parseResponse(reply, parseConcepts[:1])
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(materials["k1"].KeyPoints) != 1 {
		t.Errorf("material not parsed: %+v", materials["k1"])
	}
}

func TestParseResponse_WrongNameIsNotReassigned(t *testing.T) {
	// A section under a different name must not be positionally assigned
	// to an expected concept.
	reply := `Concept: Decimal Multiplication
Key Points:
- Irrelevant content`

	materials, errs := parseResponse(reply, parseConcepts[:1])
	if len(materials) != 0 {
		t.Errorf("expected no materials, got %v", materials)
	}
	if len(errs) != 1 {
		t.Errorf("expected 1 partial error, got %d", len(errs))
	}
}

func TestParseResponse_EmptySectionIsPartial(t *testing.T) {
	reply := `Concept: Fraction Addition

Concept: Common Denominators
Key Points:
- Something useful`

	materials, errs := parseResponse(reply, parseConcepts)
	if _, ok := materials["k2"]; !ok {
		t.Error("k2 should parse")
	}
	if len(errs) != 1 || errs[0].ConceptID != "k1" {
		t.Errorf("expected k1 to fail as empty, got %v", errs)
	}
}

func TestParseResponse_DecoratedExampleID(t *testing.T) {
	reply := `Concept: Fraction Addition
Example 1 (Question ID: e9):
Solution: Steps here.
Connection: Link here.`

	materials, errs := parseResponse(reply, parseConcepts[:1])
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	we := materials["k1"].WorkedExamples
	if len(we) != 1 || we[0].ExerciseID != "e9" {
		t.Errorf("expected example ID e9, got %+v", we)
	}
}

func TestParseResponse_MultiLineSolution(t *testing.T) {
	reply := `Concept: Fraction Addition
Example e1:
Solution: First convert to a common denominator.
Then add the numerators.
Connection: Shared denominators again.`

	materials, _ := parseResponse(reply, parseConcepts[:1])
	we := materials["k1"].WorkedExamples
	if len(we) != 1 {
		t.Fatalf("expected 1 example, got %d", len(we))
	}
	want := "First convert to a common denominator. Then add the numerators."
	if we[0].Solution != want {
		t.Errorf("solution = %q, want %q", we[0].Solution, want)
	}
}
