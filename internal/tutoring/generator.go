package tutoring

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/hanyuliu/simlearn/internal/dataset"
	"github.com/hanyuliu/simlearn/internal/llm"
	"github.com/hanyuliu/simlearn/internal/mastery"
)

// Config holds generator settings.
type Config struct {
	MaxTokens          int
	Temperature        float64
	ExamplesPerConcept int
	// ConceptsPerRequest caps how many weak concepts share one batched
	// request.
	ConceptsPerRequest int
	// FallbackTopK bounds the error-frequency fallback when a student has
	// no mastery records; <= 0 keeps all error-bearing concepts.
	FallbackTopK int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:          2048,
		Temperature:        0.7,
		ExamplesPerConcept: 3,
		ConceptsPerRequest: 4,
		FallbackTopK:       0,
	}
}

// Generator produces tutoring materials for one student at a time.
type Generator struct {
	provider llm.Provider
	cfg      Config
}

// NewGenerator creates a generator on top of a provider.
func NewGenerator(provider llm.Provider, cfg Config) *Generator {
	return &Generator{provider: provider, cfg: cfg}
}

// Failure is one (student, concept) pair whose material could not be
// produced. Raw keeps the reply text for parse failures.
type Failure struct {
	StudentID string
	ConceptID string
	Err       error
	Raw       string
}

// GenerateForStudent builds materials for every weak concept of one
// student. Weak concepts come from the mastery records when present,
// otherwise from training-set error frequency. Example exercises are drawn
// from the training-eligible pool only; testExerciseIDs marks the
// forbidden test segment. rng drives example selection and must be seeded
// per student for reproducibility.
func (g *Generator) GenerateForStudent(
	ctx context.Context,
	ds *dataset.Dataset,
	studentID string,
	train []dataset.Interaction,
	records []mastery.Record,
	testExerciseIDs map[string]bool,
	rng *rand.Rand,
) ([]Material, []Failure) {
	weak := WeakConcepts(records)
	if len(weak) == 0 && len(records) == 0 {
		weak = ErrorFrequencyConcepts(ds, train, g.cfg.FallbackTopK)
	}
	if len(weak) == 0 {
		return nil, nil
	}

	attempted := attemptedSet(train)

	var batch []conceptExamples
	for _, cid := range weak {
		concept, ok := ds.Concept(cid)
		if !ok {
			continue
		}
		batch = append(batch, conceptExamples{
			Concept:  concept,
			Examples: selectExamples(ds, cid, attempted, testExerciseIDs, g.cfg.ExamplesPerConcept, rng),
		})
	}

	var materials []Material
	var failures []Failure

	per := g.cfg.ConceptsPerRequest
	if per < 1 {
		per = 1
	}
	for start := 0; start < len(batch); start += per {
		end := min(start+per, len(batch))
		ms, fs := g.generateBatch(ctx, studentID, batch[start:end])
		materials = append(materials, ms...)
		failures = append(failures, fs...)
	}

	return materials, failures
}

// generateBatch issues one request for a chunk of weak concepts and parses
// out one material per concept.
func (g *Generator) generateBatch(ctx context.Context, studentID string, batch []conceptExamples) ([]Material, []Failure) {
	ctx = llm.WithPurpose(ctx, "tutoring-generation")

	req := llm.Request{
		System: systemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: buildUserMessage(studentID, batch)},
		},
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	}

	resp, err := g.provider.Generate(ctx, req)
	if err != nil {
		failures := make([]Failure, 0, len(batch))
		for _, ce := range batch {
			failures = append(failures, Failure{
				StudentID: studentID,
				ConceptID: ce.Concept.ID,
				Err:       fmt.Errorf("tutoring %s/%s: %w", studentID, ce.Concept.ID, err),
			})
		}
		return nil, failures
	}

	expected := make([]dataset.Concept, 0, len(batch))
	for _, ce := range batch {
		expected = append(expected, ce.Concept)
	}

	byConcept, parseErrs := parseResponse(resp.Text(), expected)

	var materials []Material
	for _, ce := range batch {
		if m, ok := byConcept[ce.Concept.ID]; ok {
			m.StudentID = studentID
			materials = append(materials, m)
		}
	}

	var failures []Failure
	for _, pe := range parseErrs {
		failures = append(failures, Failure{
			StudentID: studentID,
			ConceptID: pe.ConceptID,
			Err:       pe,
			Raw:       pe.Raw,
		})
	}
	return materials, failures
}
