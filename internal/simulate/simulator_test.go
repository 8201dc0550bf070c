package simulate

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
	"github.com/hanyuliu/simlearn/internal/memory"
	"github.com/hanyuliu/simlearn/internal/seed"
	"github.com/hanyuliu/simlearn/internal/tutoring"
)

func simDataset() *dataset.Dataset {
	concepts := []dataset.Concept{
		{ID: "k1", Name: "Fraction Addition"},
		{ID: "k2", Name: "Common Denominators"},
		{ID: "k3", Name: "Decimal Multiplication"},
		{ID: "k4", Name: "Long Division"},
	}
	exercises := []dataset.Exercise{
		{
			ID: "e1", Content: "What is 1/2 + 1/3?",
			ConceptIDs: []string{"k1", "k2"},
			Choices: []dataset.Choice{
				{ID: "c1", Text: "2/5"},
				{ID: "c2", Text: "5/6", Correct: true},
				{ID: "c3", Text: "1/6"},
			},
		},
	}
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	interactions := []dataset.Interaction{
		{ID: "i1", StudentID: "s1", ExerciseID: "e1", ChoiceID: "c1", Correct: false, Timestamp: base},
	}
	return dataset.New(concepts, exercises, interactions)
}

func simReply() llm.MockResponse {
	return llm.MockResponse{Content: json.RawMessage(
		"Task1: No\nTask2: Fraction Addition\nTask3: I always mix up the denominators.\nTask4: A")}
}

func TestSimulateItem_GroundTruthRecorded(t *testing.T) {
	ds := simDataset()
	mock := llm.NewMockProvider(simReply())
	sim := NewSimulator(mock, Config{MaxTokens: 512, Seed: 42})

	truth := ds.History("s1")[0]
	profile := BuildProfile(ds, "s1", ds.History("s1"), len(ds.ConceptIDs()))

	out, err := sim.SimulateItem(context.Background(), ds, profile, truth, memory.ModeBaseline, memory.Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.Task1True != "No" {
		t.Errorf("Task1True = %q, want No (student answered wrong)", out.Task1True)
	}
	if out.Task2True != "Fraction Addition" {
		t.Errorf("Task2True = %q, want the primary concept name", out.Task2True)
	}
	if out.Task4True != "B" {
		t.Errorf("Task4True = %q, want B (correct choice in stored order)", out.Task4True)
	}
	if out.Task1Pred != "No" || out.Task4Pred != "A" {
		t.Errorf("predictions not carried: %+v", out)
	}
	if out.Mode != memory.ModeBaseline {
		t.Errorf("mode = %q", out.Mode)
	}
}

func TestSimulateItem_BaselinePromptHasNoMemory(t *testing.T) {
	ds := simDataset()
	mock := llm.NewMockProvider(simReply())
	sim := NewSimulator(mock, Config{Seed: 42})

	truth := ds.History("s1")[0]
	sim.SimulateItem(context.Background(), ds, Profile{}, truth, memory.ModeBaseline, memory.Context{})

	prompt := mock.Calls[0].Messages[0].Content
	if strings.Contains(prompt, "Long-term Knowledge") || strings.Contains(prompt, "Just Reviewed") {
		t.Error("baseline prompt must not contain memory sections")
	}
	if !strings.Contains(prompt, "Question: What is 1/2 + 1/3?") {
		t.Error("prompt missing the question")
	}
	if !strings.Contains(prompt, "  B. 5/6") {
		t.Error("choices must appear lettered in stored order")
	}
}

func TestSimulateItem_MemorySectionsInjected(t *testing.T) {
	ds := simDataset()
	mock := llm.NewMockProvider(simReply())
	sim := NewSimulator(mock, Config{Seed: 42})

	truth := ds.History("s1")[0]
	memCtx := memory.Context{
		LongTerm:  &mastery.Record{StudentID: "s1", ConceptID: "k1", Level: mastery.LevelDeveloping},
		ShortTerm: &tutoring.Material{StudentID: "s1", ConceptID: "k1", KeyPoints: []string{"common denominators first"}},
	}
	sim.SimulateItem(context.Background(), ds, Profile{}, truth, memory.ModeCombined, memCtx)

	prompt := mock.Calls[0].Messages[0].Content
	if !strings.Contains(prompt, "You feel you are at: Developing") {
		t.Error("long-term memory not rendered")
	}
	if !strings.Contains(prompt, "common denominators first") {
		t.Error("short-term memory not rendered")
	}
	if !strings.Contains(prompt, "Did I just review this topic?") {
		t.Error("tutoring-aware Task 1 framing missing")
	}
}

func TestSimulateItem_IncompleteReplyFails(t *testing.T) {
	ds := simDataset()
	mock := llm.NewMockProvider(llm.MockResponse{Content: json.RawMessage("Task1: Yes\nTask2: something")})
	sim := NewSimulator(mock, Config{Seed: 42})

	truth := ds.History("s1")[0]
	_, err := sim.SimulateItem(context.Background(), ds, Profile{}, truth, memory.ModeBaseline, memory.Context{})

	var incErr *IncompleteResponseError
	if !errors.As(err, &incErr) {
		t.Fatalf("expected IncompleteResponseError, got %v", err)
	}
}

func TestConceptOptions_TrueConceptOnceAndSeeded(t *testing.T) {
	ds := simDataset()
	ex, _ := ds.Exercise("e1")

	opts := conceptOptions(ds, ex, seed.Rand(42, "s1", "e1", "baseline"))
	if len(opts) != 3 {
		t.Fatalf("expected 3 options, got %v", opts)
	}

	count := 0
	for _, o := range opts {
		if o == "Fraction Addition" {
			count++
		}
		// Distractors come from outside the exercise's concept set, so the
		// secondary tagged concept must not appear either.
		if o == "Common Denominators" {
			t.Error("distractor drawn from the exercise's own concept set")
		}
	}
	if count != 1 {
		t.Errorf("true concept appeared %d times, want exactly 1", count)
	}

	again := conceptOptions(ds, ex, seed.Rand(42, "s1", "e1", "baseline"))
	for i := range opts {
		if opts[i] != again[i] {
			t.Fatalf("same seed produced different options: %v vs %v", opts, again)
		}
	}
}

func TestBuildProfile_Buckets(t *testing.T) {
	ds := simDataset()

	// 1 interaction, 0 correct: low success, poor ability, low activity.
	p := BuildProfile(ds, "s1", ds.History("s1"), len(ds.ConceptIDs()))
	if p.SuccessRate != "low" || p.Ability != "poor" || p.Activity != "low" {
		t.Errorf("unexpected buckets: %+v", p)
	}
	// 2 of 4 concepts practiced: ratio 0.5 => medium breadth.
	if p.Diversity != "medium" {
		t.Errorf("diversity = %q, want medium", p.Diversity)
	}
	// k1 and k2 tie at one attempt each; ties break by concept ID.
	if p.Preference != "Fraction Addition" {
		t.Errorf("preference = %q, want Fraction Addition", p.Preference)
	}
}

func TestBuildProfile_EmptyHistoryDefaults(t *testing.T) {
	ds := simDataset()
	p := BuildProfile(ds, "ghost", nil, len(ds.ConceptIDs()))
	if p.SuccessRate != "medium" || p.Ability != "common" || p.Activity != "medium" || p.Diversity != "low" || p.Preference != "N/A" {
		t.Errorf("unexpected defaults: %+v", p)
	}
}

func TestProfileSystemPrompt(t *testing.T) {
	p := Profile{
		StudentID: "s1", SuccessRate: "high", Ability: "good",
		Activity: "medium", Diversity: "high", Preference: "Fraction Addition",
	}
	out := p.SystemPrompt()
	for _, want := range []string{
		"You ARE a student",
		"Activity Level: medium - You practice occasionally when needed",
		"Knowledge Breadth: high - You explore many different topics and concepts",
		"Typical Success Rate: high",
		"Problem-Solving Ability: good",
		"Most Comfortable Topic: Fraction Addition",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}
