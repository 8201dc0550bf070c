package mastery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hanyuliu/simlearn/internal/dataset"
	"github.com/hanyuliu/simlearn/internal/llm"
)

// Config holds assessor settings.
type Config struct {
	MaxTokens   int
	Temperature float64
	Evidence    EvidenceMode
	// Structured requests a schema-validated JSON reply instead of the
	// labeled-section text contract.
	Structured bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	// Temperature stays 0 so repeated assessments of the same trajectory
	// are reproducible.
	return Config{
		MaxTokens: 1024,
		Evidence:  EvidenceFull,
	}
}

// Assessor grades one student's practiced concepts via the LLM.
type Assessor struct {
	provider llm.Provider
	cfg      Config
}

// NewAssessor creates an assessor on top of a provider.
func NewAssessor(provider llm.Provider, cfg Config) *Assessor {
	return &Assessor{provider: provider, cfg: cfg}
}

// PairFailure is one (student, concept) pair that could not be resolved.
// Raw keeps the offending response text when the failure was a parse error.
type PairFailure struct {
	StudentID string
	ConceptID string
	Err       error
	Raw       string
}

// AssessStudent evaluates every concept the student practiced in their
// training segment. One pair's failure never blocks the others; failures
// come back alongside the resolved records. The train slice must be the
// student's training segment only.
func (a *Assessor) AssessStudent(ctx context.Context, ds *dataset.Dataset, studentID string, train []dataset.Interaction) ([]Record, []PairFailure) {
	var records []Record
	var failures []PairFailure

	for _, conceptID := range PracticedConcepts(ds, train) {
		concept, ok := ds.Concept(conceptID)
		if !ok {
			continue
		}
		trajectory := TrajectoryFor(ds, train, conceptID)
		if len(trajectory) == 0 {
			continue
		}

		rec, err := a.AssessPair(ctx, ds, studentID, concept, trajectory)
		if err != nil {
			failures = append(failures, PairFailure{
				StudentID: studentID,
				ConceptID: conceptID,
				Err:       err,
				Raw:       rawOf(err),
			})
			continue
		}
		records = append(records, rec)
	}

	return records, failures
}

// assessmentSchema constrains structured replies to the three fields the
// parser reads. Providers validate the reply against it before returning.
var assessmentSchema = &llm.Schema{
	Name:        "mastery-assessment",
	Description: "Assessed mastery of one knowledge component with rationale and suggestions.",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"mastery_level": map[string]any{
				"type": "string",
				"enum": []string{"Novice", "Developing", "Proficient", "Mastered"},
			},
			"rationale":   map[string]any{"type": "string"},
			"suggestions": map[string]any{"type": "string"},
		},
		"required":             []string{"mastery_level", "rationale"},
		"additionalProperties": false,
	},
}

// AssessPair grades a single (student, concept) pair from its trajectory.
func (a *Assessor) AssessPair(ctx context.Context, ds *dataset.Dataset, studentID string, concept dataset.Concept, trajectory []dataset.Interaction) (Record, error) {
	ctx = llm.WithPurpose(ctx, "mastery-assessment")

	msg := buildUserMessage(ds, studentID, concept, trajectory, a.cfg.Evidence)
	req := llm.Request{
		System:      systemPrompt,
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
	}
	if a.cfg.Structured {
		msg = strings.TrimSuffix(msg, textOutputFormat) + structuredOutputFormat
		req.Schema = assessmentSchema
	}
	req.Messages = []llm.Message{{Role: llm.RoleUser, Content: msg}}

	resp, err := a.provider.Generate(ctx, req)
	if err != nil {
		return Record{}, fmt.Errorf("assess %s/%s: %w", studentID, concept.ID, err)
	}

	var p parsed
	if a.cfg.Structured {
		p, err = parseStructured(resp.Content)
	} else {
		p, err = parseResponse(resp.Text())
	}
	if err != nil {
		return Record{}, fmt.Errorf("assess %s/%s: %w", studentID, concept.ID, err)
	}

	return Record{
		StudentID:   studentID,
		ConceptID:   concept.ID,
		Level:       p.Level,
		Rationale:   p.Rationale,
		Suggestions: p.Suggestions,
	}, nil
}

// PracticedConcepts returns the concept IDs touched by the interactions,
// in order of first appearance.
func PracticedConcepts(ds *dataset.Dataset, recs []dataset.Interaction) []string {
	seen := make(map[string]bool)
	var out []string
	for _, rec := range recs {
		ex, ok := ds.Exercise(rec.ExerciseID)
		if !ok {
			continue
		}
		for _, cid := range ex.ConceptIDs {
			if !seen[cid] {
				seen[cid] = true
				out = append(out, cid)
			}
		}
	}
	return out
}

// TrajectoryFor filters the interactions down to attempts at exercises
// tagged with the concept, preserving chronological order.
func TrajectoryFor(ds *dataset.Dataset, recs []dataset.Interaction, conceptID string) []dataset.Interaction {
	var out []dataset.Interaction
	for _, rec := range recs {
		ex, ok := ds.Exercise(rec.ExerciseID)
		if !ok {
			continue
		}
		for _, cid := range ex.ConceptIDs {
			if cid == conceptID {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}

// rawOf extracts retained response text from parse errors.
func rawOf(err error) string {
	var lvlErr *UnparseableLevelError
	if errors.As(err, &lvlErr) {
		return lvlErr.Raw
	}
	var secErr *MissingSectionError
	if errors.As(err, &secErr) {
		return secErr.Raw
	}
	return ""
}
