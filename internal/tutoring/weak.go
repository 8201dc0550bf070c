package tutoring

import (
	"sort"

	"github.com/hanyuliu/simlearn/internal/dataset"
	"github.com/hanyuliu/simlearn/internal/mastery"
)

// WeakConcepts returns exactly the concepts whose assessed level marks them
// weak, preserving the record order. No cap is applied.
func WeakConcepts(records []mastery.Record) []string {
	var out []string
	for _, rec := range records {
		if rec.Level.Weak() {
			out = append(out, rec.ConceptID)
		}
	}
	return out
}

// ErrorFrequencyConcepts is the fallback for students without mastery
// records: concepts ranked by how often the student answered them wrong in
// the training segment, most-missed first, ties broken by concept ID.
// topK <= 0 returns all error-bearing concepts. Test-segment records must
// not be passed in.
func ErrorFrequencyConcepts(ds *dataset.Dataset, train []dataset.Interaction, topK int) []string {
	counts := make(map[string]int)
	for _, rec := range train {
		if rec.Correct {
			continue
		}
		ex, ok := ds.Exercise(rec.ExerciseID)
		if !ok {
			continue
		}
		for _, cid := range ex.ConceptIDs {
			counts[cid]++
		}
	}

	out := make([]string, 0, len(counts))
	for cid := range counts {
		out = append(out, cid)
	}
	sort.Slice(out, func(i, j int) bool {
		if counts[out[i]] != counts[out[j]] {
			return counts[out[i]] > counts[out[j]]
		}
		return out[i] < out[j]
	})

	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}
