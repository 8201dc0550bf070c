package tutoring

import (
	"math/rand/v2"

	"github.com/hanyuliu/simlearn/internal/dataset"
)

// selectExamples picks up to n exercises tagged with the concept to use as
// worked examples. Test-segment exercises are never eligible. Unattempted
// exercises are preferred; attempted training exercises fill the remainder.
// Order within each group is shuffled with the caller's seeded rng.
func selectExamples(ds *dataset.Dataset, conceptID string, attempted, testIDs map[string]bool, n int, rng *rand.Rand) []dataset.Exercise {
	if n <= 0 {
		return nil
	}

	var fresh, seen []string
	for _, exID := range ds.ExercisesForConcept(conceptID) {
		if testIDs[exID] {
			continue
		}
		if attempted[exID] {
			seen = append(seen, exID)
		} else {
			fresh = append(fresh, exID)
		}
	}

	rng.Shuffle(len(fresh), func(i, j int) { fresh[i], fresh[j] = fresh[j], fresh[i] })
	rng.Shuffle(len(seen), func(i, j int) { seen[i], seen[j] = seen[j], seen[i] })

	var out []dataset.Exercise
	for _, exID := range append(fresh, seen...) {
		if len(out) >= n {
			break
		}
		if ex, ok := ds.Exercise(exID); ok {
			out = append(out, ex)
		}
	}
	return out
}

// attemptedSet indexes the exercise IDs a student touched in the given
// interactions.
func attemptedSet(recs []dataset.Interaction) map[string]bool {
	out := make(map[string]bool, len(recs))
	for _, rec := range recs {
		out[rec.ExerciseID] = true
	}
	return out
}
