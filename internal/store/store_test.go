package store

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanyuliu/simlearn/internal/llm"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.db")
	s, err := Open(path, NewRunID())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMastery_PutGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	row := MasteryRow{
		StudentID:   "s1",
		ConceptID:   "k9",
		Level:       "Developing",
		Rationale:   "6 of 10 correct with low confidence on misses",
		Suggestions: "revisit fraction addition",
	}
	require.NoError(t, s.PutMastery(ctx, row))

	got, err := s.GetMastery(ctx, "s1", "k9")
	require.NoError(t, err)
	assert.Equal(t, row, got)
}

func TestMastery_DuplicateKeyRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	row := MasteryRow{StudentID: "s1", ConceptID: "k9", Level: "Novice"}
	require.NoError(t, s.PutMastery(ctx, row))

	err := s.PutMastery(ctx, MasteryRow{StudentID: "s1", ConceptID: "k9", Level: "Mastered"})
	assert.ErrorIs(t, err, ErrDuplicateKey)

	// The first write wins; the duplicate never replaces it.
	got, err := s.GetMastery(ctx, "s1", "k9")
	require.NoError(t, err)
	assert.Equal(t, "Novice", got.Level)
}

func TestMastery_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetMastery(context.Background(), "nobody", "k1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMastery_RunIsolation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.db")
	ctx := context.Background()

	s1, err := Open(path, "run-a")
	require.NoError(t, err)
	require.NoError(t, s1.PutMastery(ctx, MasteryRow{StudentID: "s1", ConceptID: "k1", Level: "Proficient"}))
	require.NoError(t, s1.Close())

	s2, err := Open(path, "run-b")
	require.NoError(t, err)
	defer s2.Close()

	_, err = s2.GetMastery(ctx, "s1", "k1")
	assert.ErrorIs(t, err, ErrNotFound, "runs must not see each other's rows")

	// Same key under a different run is not a duplicate.
	assert.NoError(t, s2.PutMastery(ctx, MasteryRow{StudentID: "s1", ConceptID: "k1", Level: "Novice"}))
}

func TestTutoring_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	row := TutoringRow{
		StudentID:      "s1",
		ConceptID:      "k3",
		KeyPoints:      []string{"common denominators first", "simplify at the end"},
		Misconceptions: []string{"adding numerators and denominators"},
		WorkedExamples: []string{"1/2 + 1/3 = 5/6"},
	}
	require.NoError(t, s.PutTutoring(ctx, row))

	got, err := s.GetTutoring(ctx, "s1", "k3")
	require.NoError(t, err)
	assert.Equal(t, row, got)

	err = s.PutTutoring(ctx, row)
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestTutoring_EmptyLists(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutTutoring(ctx, TutoringRow{StudentID: "s1", ConceptID: "k1"}))
	got, err := s.GetTutoring(ctx, "s1", "k1")
	require.NoError(t, err)
	assert.Empty(t, got.KeyPoints)
	assert.Empty(t, got.Misconceptions)
	assert.Empty(t, got.WorkedExamples)
}

func TestSimulation_PutListHas(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	row := SimulationRow{
		StudentID: "s1", ExerciseID: "e7", Mode: "combined",
		Task1Pred: "Yes", Task1True: "No",
		Task2Pred: "k9", Task2True: "k9",
		Task3Text: "I often confuse the denominators.",
		Task4Pred: "B", Task4True: "C",
	}
	require.NoError(t, s.PutSimulation(ctx, row))

	ok, err := s.HasSimulation(ctx, "s1", "e7", "combined")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.HasSimulation(ctx, "s1", "e7", "baseline")
	require.NoError(t, err)
	assert.False(t, ok, "mode is part of the key")

	rows, err := s.SimulationsForMode(ctx, "combined")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, row, rows[0])

	err = s.PutSimulation(ctx, row)
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestFailures_CountedPerStage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordFailure(ctx, FailureRow{Stage: "mastery", Key: "s1/k2", Message: "unparseable level", RawText: "garbage"}))
	require.NoError(t, s.RecordFailure(ctx, FailureRow{Stage: "mastery", Key: "s2/k1", Message: "rate limited"}))
	require.NoError(t, s.RecordFailure(ctx, FailureRow{Stage: "simulate", Key: "s1/e3/baseline", Message: "missing Task4"}))

	counts, err := s.FailureCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"mastery": 2, "simulate": 1}, counts)
}

func TestFailures_DuplicateKeyNotDoubleCounted(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordFailure(ctx, FailureRow{Stage: "split", Key: "s1", Message: "insufficient history"}))
	// Re-recording the same (stage, key), as a resumed run does, is
	// rejected rather than counted twice.
	err := s.RecordFailure(ctx, FailureRow{Stage: "split", Key: "s1", Message: "insufficient history"})
	assert.ErrorIs(t, err, ErrDuplicateKey)
	// The same key failing in another stage is a distinct failure.
	require.NoError(t, s.RecordFailure(ctx, FailureRow{Stage: "mastery", Key: "s1", Message: "rate limited"}))

	counts, err := s.FailureCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"split": 1, "mastery": 1}, counts)
}

func TestRecordRequest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.RecordRequest(ctx, llm.RequestRecord{
		Provider:     "mock",
		Model:        "mock",
		Purpose:      "mastery-assessment",
		InputTokens:  100,
		OutputTokens: 20,
		LatencyMs:    42,
		Success:      true,
		RequestBody:  "[user]\nassess",
		ResponseBody: "Mastery Level: Proficient",
	})
	assert.NoError(t, err)
}

func TestExportCSV(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutMastery(ctx, MasteryRow{StudentID: "s1", ConceptID: "k1", Level: "Mastered", Rationale: "all correct"}))
	require.NoError(t, s.PutTutoring(ctx, TutoringRow{StudentID: "s1", ConceptID: "k2", KeyPoints: []string{"a"}}))
	require.NoError(t, s.PutSimulation(ctx, SimulationRow{StudentID: "s1", ExerciseID: "e1", Mode: "baseline", Task1Pred: "Yes", Task1True: "Yes", Task4Pred: "A", Task4True: "A"}))

	dir := t.TempDir()
	require.NoError(t, s.ExportCSV(ctx, dir))

	for _, name := range []string{"mastery.csv", "tutoring.csv", "simulation.csv"} {
		f, err := os.Open(filepath.Join(dir, name))
		require.NoError(t, err, name)
		records, err := csv.NewReader(f).ReadAll()
		f.Close()
		require.NoError(t, err, name)
		assert.Len(t, records, 2, "%s should have header + one row", name)
	}
}
