package tutoring

import (
	"testing"
	"time"

	"github.com/hanyuliu/simlearn/internal/dataset"
	"github.com/hanyuliu/simlearn/internal/mastery"
)

func TestWeakConcepts_ExactlyWeakLevels(t *testing.T) {
	records := []mastery.Record{
		{StudentID: "s1", ConceptID: "k1", Level: mastery.LevelNovice},
		{StudentID: "s1", ConceptID: "k2", Level: mastery.LevelProficient},
		{StudentID: "s1", ConceptID: "k3", Level: mastery.LevelDeveloping},
		{StudentID: "s1", ConceptID: "k4", Level: mastery.LevelMastered},
	}

	got := WeakConcepts(records)
	want := []string{"k1", "k3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestWeakConcepts_Empty(t *testing.T) {
	if got := WeakConcepts(nil); len(got) != 0 {
		t.Errorf("expected empty, got %v", got)
	}
	records := []mastery.Record{{ConceptID: "k1", Level: mastery.LevelMastered}}
	if got := WeakConcepts(records); len(got) != 0 {
		t.Errorf("expected empty, got %v", got)
	}
}

func errorFreqDataset() *dataset.Dataset {
	concepts := []dataset.Concept{
		{ID: "k1", Name: "A"}, {ID: "k2", Name: "B"}, {ID: "k3", Name: "C"},
	}
	exercises := []dataset.Exercise{
		{ID: "e1", ConceptIDs: []string{"k1"}},
		{ID: "e2", ConceptIDs: []string{"k2"}},
		{ID: "e3", ConceptIDs: []string{"k2", "k3"}},
	}
	base := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	interactions := []dataset.Interaction{
		{ID: "i1", StudentID: "s1", ExerciseID: "e1", Correct: false, Timestamp: base},
		{ID: "i2", StudentID: "s1", ExerciseID: "e2", Correct: false, Timestamp: base.Add(time.Minute)},
		{ID: "i3", StudentID: "s1", ExerciseID: "e3", Correct: false, Timestamp: base.Add(2 * time.Minute)},
		{ID: "i4", StudentID: "s1", ExerciseID: "e1", Correct: true, Timestamp: base.Add(3 * time.Minute)},
	}
	return dataset.New(concepts, exercises, interactions)
}

func TestErrorFrequencyConcepts_RankedByMisses(t *testing.T) {
	ds := errorFreqDataset()
	got := ErrorFrequencyConcepts(ds, ds.History("s1"), 0)

	// k2 missed twice (e2, e3), k1 and k3 once each; ties break by ID.
	want := []string{"k2", "k1", "k3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestErrorFrequencyConcepts_TopK(t *testing.T) {
	ds := errorFreqDataset()
	got := ErrorFrequencyConcepts(ds, ds.History("s1"), 1)
	if len(got) != 1 || got[0] != "k2" {
		t.Errorf("got %v, want [k2]", got)
	}
}

func TestErrorFrequencyConcepts_NoErrors(t *testing.T) {
	concepts := []dataset.Concept{{ID: "k1", Name: "A"}}
	exercises := []dataset.Exercise{{ID: "e1", ConceptIDs: []string{"k1"}}}
	interactions := []dataset.Interaction{
		{ID: "i1", StudentID: "s1", ExerciseID: "e1", Correct: true, Timestamp: time.Now()},
	}
	ds := dataset.New(concepts, exercises, interactions)

	if got := ErrorFrequencyConcepts(ds, ds.History("s1"), 0); len(got) != 0 {
		t.Errorf("expected no weak concepts, got %v", got)
	}
}
