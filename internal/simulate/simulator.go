package simulate

import (
	"context"
	"fmt"

	"github.com/hanyuliu/simlearn/internal/dataset"
	"github.com/hanyuliu/simlearn/internal/llm"
	"github.com/hanyuliu/simlearn/internal/memory"
	"github.com/hanyuliu/simlearn/internal/seed"
)

// Config holds simulator settings.
type Config struct {
	MaxTokens   int
	Temperature float64
	// Seed drives the per-item distractor sampling and option shuffling.
	Seed uint64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:   1024,
		Temperature: 0.7,
	}
}

// Output is one completed simulation for a (student, exercise, mode) key,
// holding both the predicted and ground-truth answers.
type Output struct {
	StudentID  string
	ExerciseID string
	Mode       memory.Mode
	Task1Pred  string
	Task1True  string
	Task2Pred  string
	Task2True  string
	Task3Text  string
	Task4Pred  string
	Task4True  string
}

// Simulator generates one test item at a time; items share no state, so
// callers may run them fully in parallel.
type Simulator struct {
	provider llm.Provider
	cfg      Config
}

// NewSimulator creates a simulator on top of a provider.
func NewSimulator(provider llm.Provider, cfg Config) *Simulator {
	return &Simulator{provider: provider, cfg: cfg}
}

// SimulateItem plays one ground-truth test interaction under one mode.
// memCtx must be resolved for this exercise and mode beforehand. The
// distractor sample and option order derive from (seed, student, exercise,
// mode), so reruns are reproducible regardless of completion order.
func (s *Simulator) SimulateItem(ctx context.Context, ds *dataset.Dataset, profile Profile, truth dataset.Interaction, mode memory.Mode, memCtx memory.Context) (Output, error) {
	ctx = llm.WithPurpose(ctx, "student-simulation")

	ex, ok := ds.Exercise(truth.ExerciseID)
	if !ok {
		return Output{}, fmt.Errorf("simulate %s/%s: unknown exercise", truth.StudentID, truth.ExerciseID)
	}
	primary, ok := ds.PrimaryConcept(ex)
	if !ok {
		return Output{}, fmt.Errorf("simulate %s/%s: exercise has no concept", truth.StudentID, truth.ExerciseID)
	}

	rng := seed.Rand(s.cfg.Seed, truth.StudentID, truth.ExerciseID, string(mode))
	options := conceptOptions(ds, ex, rng)

	req := llm.Request{
		System: profile.SystemPrompt(),
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: buildUserMessage(ds, ex, primary.Name, memCtx, options)},
		},
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	}

	resp, err := s.provider.Generate(ctx, req)
	if err != nil {
		return Output{}, fmt.Errorf("simulate %s/%s/%s: %w", truth.StudentID, truth.ExerciseID, mode, err)
	}

	ans, err := parseResponse(resp.Text())
	if err != nil {
		return Output{}, fmt.Errorf("simulate %s/%s/%s: %w", truth.StudentID, truth.ExerciseID, mode, err)
	}

	return Output{
		StudentID:  truth.StudentID,
		ExerciseID: truth.ExerciseID,
		Mode:       mode,
		Task1Pred:  ans.Task1,
		Task1True:  yesNo(truth.Correct),
		Task2Pred:  ans.Task2,
		Task2True:  primary.Name,
		Task3Text:  ans.Task3,
		Task4Pred:  ans.Task4,
		Task4True:  trueChoiceLetter(ex),
	}, nil
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

// trueChoiceLetter returns the letter of the exercise's correct choice in
// stored order, empty when the exercise has no marked answer.
func trueChoiceLetter(ex dataset.Exercise) string {
	for idx, ch := range ex.Choices {
		if ch.Correct {
			return dataset.ChoiceLetter(idx)
		}
	}
	return ""
}
