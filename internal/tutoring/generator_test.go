package tutoring

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hanyuliu/simlearn/internal/dataset"
	"github.com/hanyuliu/simlearn/internal/llm"
	"github.com/hanyuliu/simlearn/internal/mastery"
	"github.com/hanyuliu/simlearn/internal/seed"
)

func generatorDataset() *dataset.Dataset {
	concepts := []dataset.Concept{
		{ID: "k1", Name: "Fraction Addition", Description: "Adding fractions"},
		{ID: "k2", Name: "Common Denominators"},
	}
	exercises := []dataset.Exercise{
		{ID: "e1", Content: "What is 1/2 + 1/3?", ConceptIDs: []string{"k1"},
			Choices: []dataset.Choice{{ID: "c1", Text: "5/6", Correct: true}, {ID: "c2", Text: "2/5"}}},
		{ID: "e2", Content: "What is 1/4 + 1/4?", ConceptIDs: []string{"k1"},
			Choices: []dataset.Choice{{ID: "c3", Text: "1/2", Correct: true}, {ID: "c4", Text: "2/8"}}},
		{ID: "e3", Content: "Held out for testing.", ConceptIDs: []string{"k1"}},
	}
	base := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	interactions := []dataset.Interaction{
		{ID: "i1", StudentID: "s1", ExerciseID: "e1", Correct: false, Timestamp: base},
	}
	return dataset.New(concepts, exercises, interactions)
}

func TestGenerateForStudent_WeakConceptGetsMaterial(t *testing.T) {
	ds := generatorDataset()
	reply := `Concept: Fraction Addition
Key Points:
- Use a common denominator
Misconceptions:
- Adding straight across
Example e2:
Solution: 1/4 + 1/4 = 2/4 = 1/2.
Connection: Same denominator makes addition direct.`

	mock := llm.NewMockProvider(llm.MockResponse{Content: json.RawMessage(reply)})
	g := NewGenerator(mock, DefaultConfig())

	records := []mastery.Record{{StudentID: "s1", ConceptID: "k1", Level: mastery.LevelDeveloping}}
	materials, failures := g.GenerateForStudent(
		context.Background(), ds, "s1", ds.History("s1"), records,
		map[string]bool{"e3": true}, seed.Rand(42, "s1"))

	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %+v", failures)
	}
	if len(materials) != 1 {
		t.Fatalf("expected 1 material, got %d", len(materials))
	}
	m := materials[0]
	if m.StudentID != "s1" || m.ConceptID != "k1" {
		t.Errorf("unexpected material key: %s/%s", m.StudentID, m.ConceptID)
	}
	if len(m.WorkedExamples) != 1 || m.WorkedExamples[0].ExerciseID != "e2" {
		t.Errorf("unexpected worked examples: %+v", m.WorkedExamples)
	}
}

func TestGenerateForStudent_TestExercisesNeverInPrompt(t *testing.T) {
	ds := generatorDataset()
	mock := llm.NewMockProvider(llm.MockResponse{Content: json.RawMessage("Concept: Fraction Addition\nKey Points:\n- x")})
	g := NewGenerator(mock, DefaultConfig())

	records := []mastery.Record{{StudentID: "s1", ConceptID: "k1", Level: mastery.LevelNovice}}
	g.GenerateForStudent(context.Background(), ds, "s1", ds.History("s1"), records,
		map[string]bool{"e3": true}, seed.Rand(42, "s1"))

	if mock.CallCount() != 1 {
		t.Fatalf("expected 1 request, got %d", mock.CallCount())
	}
	prompt := mock.Calls[0].Messages[0].Content
	if strings.Contains(prompt, "e3") || strings.Contains(prompt, "Held out") {
		t.Error("test-segment exercise leaked into the tutoring prompt")
	}
	if !strings.Contains(prompt, "Correct Answer: A") {
		t.Error("prompt should include the correct answer letter")
	}
}

func TestGenerateForStudent_NoMasteryFallsBackToErrors(t *testing.T) {
	ds := generatorDataset()
	mock := llm.NewMockProvider(llm.MockResponse{Content: json.RawMessage("Concept: Fraction Addition\nKey Points:\n- review")})
	g := NewGenerator(mock, DefaultConfig())

	// No mastery records: k1 is weak because e1 was answered wrong.
	materials, failures := g.GenerateForStudent(
		context.Background(), ds, "s1", ds.History("s1"), nil, nil, seed.Rand(42, "s1"))

	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %+v", failures)
	}
	if len(materials) != 1 || materials[0].ConceptID != "k1" {
		t.Errorf("expected fallback material for k1, got %+v", materials)
	}
}

func TestGenerateForStudent_AllStrongMeansNoRequests(t *testing.T) {
	ds := generatorDataset()
	mock := llm.NewMockProvider()
	g := NewGenerator(mock, DefaultConfig())

	records := []mastery.Record{{StudentID: "s1", ConceptID: "k1", Level: mastery.LevelMastered}}
	materials, failures := g.GenerateForStudent(
		context.Background(), ds, "s1", ds.History("s1"), records, nil, seed.Rand(42, "s1"))

	if len(materials) != 0 || len(failures) != 0 {
		t.Errorf("expected nothing to generate, got %d/%d", len(materials), len(failures))
	}
	if mock.CallCount() != 0 {
		t.Errorf("no requests should be sent, got %d", mock.CallCount())
	}
}

func TestGenerateForStudent_ProviderFailureFailsWholeBatch(t *testing.T) {
	ds := generatorDataset()
	mock := llm.NewMockProvider(llm.MockResponse{Err: &llm.ErrProviderUnavailable{Err: errors.New("down")}})
	g := NewGenerator(mock, DefaultConfig())

	records := []mastery.Record{
		{StudentID: "s1", ConceptID: "k1", Level: mastery.LevelNovice},
		{StudentID: "s1", ConceptID: "k2", Level: mastery.LevelDeveloping},
	}
	materials, failures := g.GenerateForStudent(
		context.Background(), ds, "s1", ds.History("s1"), records, nil, seed.Rand(42, "s1"))

	if len(materials) != 0 {
		t.Errorf("expected no materials, got %d", len(materials))
	}
	if len(failures) != 2 {
		t.Errorf("expected a failure per batched concept, got %d", len(failures))
	}
}

func TestSelectExamples_PrefersUnattempted(t *testing.T) {
	ds := generatorDataset()
	attempted := map[string]bool{"e1": true}

	got := selectExamples(ds, "k1", attempted, map[string]bool{"e3": true}, 1, seed.Rand(1, "s1"))
	if len(got) != 1 || got[0].ID != "e2" {
		t.Errorf("expected the unattempted e2, got %+v", got)
	}
}

func TestSelectExamples_FillsFromAttempted(t *testing.T) {
	ds := generatorDataset()
	attempted := map[string]bool{"e1": true, "e2": true}

	got := selectExamples(ds, "k1", attempted, map[string]bool{"e3": true}, 3, seed.Rand(1, "s1"))
	if len(got) != 2 {
		t.Errorf("expected both training exercises, got %d", len(got))
	}
	for _, ex := range got {
		if ex.ID == "e3" {
			t.Error("test-segment exercise selected as example")
		}
	}
}
