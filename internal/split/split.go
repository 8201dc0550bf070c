// Package split partitions each student's chronological interaction log
// into a training prefix and a test suffix. The cut is strictly temporal:
// the most recent records form the test segment, and nothing computed at
// training time may see them. Every other stage builds on this boundary,
// so the split must be deterministic for a given dataset and fraction.
package split

import (
	"fmt"
	"math"

	"github.com/hanyuliu/simlearn/internal/dataset"
)

// DefaultFraction is the share of a student's history used for training.
const DefaultFraction = 0.9

// DefaultMinRecords is the smallest history that still yields a non-empty
// test suffix alongside at least one training record.
const DefaultMinRecords = 2

// InsufficientHistoryError reports a student whose history is too short to
// split. Such students are excluded from the run, never zero-padded.
type InsufficientHistoryError struct {
	StudentID string
	Records   int
	Min       int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("student %s: %d interaction(s), need at least %d to form a test suffix", e.StudentID, e.Records, e.Min)
}

// HistorySplit is one student's partitioned history. Train and Test keep
// the chronological order of the underlying log.
type HistorySplit struct {
	StudentID string
	Train     []dataset.Interaction
	Test      []dataset.Interaction
}

// TestExerciseIDs returns the set of exercise IDs appearing in the test
// segment. Training-time exercise selection must exclude these.
func (h HistorySplit) TestExerciseIDs() map[string]bool {
	out := make(map[string]bool, len(h.Test))
	for _, rec := range h.Test {
		out[rec.ExerciseID] = true
	}
	return out
}

// Split cuts an already chronological record sequence at the given train
// fraction. The test suffix holds the most recent records. Returns
// InsufficientHistoryError when no valid (non-empty train, non-empty test)
// partition exists.
func Split(studentID string, records []dataset.Interaction, fraction float64, minRecords int) (HistorySplit, error) {
	if minRecords < 2 {
		minRecords = DefaultMinRecords
	}
	if len(records) < minRecords {
		return HistorySplit{}, &InsufficientHistoryError{StudentID: studentID, Records: len(records), Min: minRecords}
	}

	cut := int(math.Floor(float64(len(records)) * fraction))
	if cut >= len(records) {
		cut = len(records) - 1
	}
	if cut < 1 {
		cut = 1
	}

	return HistorySplit{
		StudentID: studentID,
		Train:     records[:cut],
		Test:      records[cut:],
	}, nil
}

// Result holds the outcome of splitting every student in a dataset.
type Result struct {
	Splits   map[string]HistorySplit
	Excluded map[string]error // student ID -> why they were excluded
}

// All splits every student's history. Records are already chronologically
// ordered (timestamp, then interaction ID) by the dataset, so repeated runs
// over the same input produce bit-identical partitions.
func All(ds *dataset.Dataset, fraction float64, minRecords int) Result {
	res := Result{
		Splits:   make(map[string]HistorySplit),
		Excluded: make(map[string]error),
	}
	for _, sid := range ds.StudentIDs() {
		hs, err := Split(sid, ds.History(sid), fraction, minRecords)
		if err != nil {
			res.Excluded[sid] = err
			continue
		}
		res.Splits[sid] = hs
	}
	return res
}

// TrainExerciseIDs returns the set of exercise IDs appearing in the
// training segment.
func (h HistorySplit) TrainExerciseIDs() map[string]bool {
	out := make(map[string]bool, len(h.Train))
	for _, rec := range h.Train {
		out[rec.ExerciseID] = true
	}
	return out
}

// CheckLeakage verifies, post hoc, that training-time computation stayed
// inside the training segment: train and test must form a chronological
// prefix/suffix of one log, and used (the exercise IDs the training-time
// computation consumed; nil skips the set check) must be disjoint from the
// exercises occurring only in the test segment. Exercises the student
// attempted in both segments are legitimately usable.
func CheckLeakage(h HistorySplit, used map[string]bool) error {
	if len(h.Train) == 0 || len(h.Test) == 0 {
		return fmt.Errorf("student %s: degenerate split (train=%d test=%d)", h.StudentID, len(h.Train), len(h.Test))
	}
	lastTrain := h.Train[len(h.Train)-1]
	firstTest := h.Test[0]
	if lastTrain.Timestamp.After(firstTest.Timestamp) {
		return fmt.Errorf("student %s: train record %s (%s) is newer than test record %s (%s)",
			h.StudentID, lastTrain.ID, lastTrain.Timestamp, firstTest.ID, firstTest.Timestamp)
	}
	if len(used) > 0 {
		train := h.TrainExerciseIDs()
		for id := range h.TestExerciseIDs() {
			if train[id] {
				continue
			}
			if used[id] {
				return fmt.Errorf("student %s: test-only exercise %s used in training-time computation", h.StudentID, id)
			}
		}
	}
	return nil
}
