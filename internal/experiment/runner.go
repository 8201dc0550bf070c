// Package experiment orchestrates a full run: split histories, assess
// mastery, generate tutoring material, simulate test items under each
// ablation mode, and score the outcomes. Every stage persists through the
// run store, so stages compose across invocations and interrupted runs
// resume where they stopped.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hanyuliu/simlearn/internal/config"
	"github.com/hanyuliu/simlearn/internal/dataset"
	"github.com/hanyuliu/simlearn/internal/evaluate"
	"github.com/hanyuliu/simlearn/internal/llm"
	"github.com/hanyuliu/simlearn/internal/mastery"
	"github.com/hanyuliu/simlearn/internal/memory"
	"github.com/hanyuliu/simlearn/internal/scheduler"
	"github.com/hanyuliu/simlearn/internal/seed"
	"github.com/hanyuliu/simlearn/internal/simulate"
	"github.com/hanyuliu/simlearn/internal/split"
	"github.com/hanyuliu/simlearn/internal/store"
	"github.com/hanyuliu/simlearn/internal/tutoring"
)

// Runner drives the experiment stages against one dataset, provider, and
// run store.
type Runner struct {
	ds       *dataset.Dataset
	provider llm.Provider
	store    *store.Store
	cfg      *config.Config
	log      *logrus.Entry
}

// NewRunner wires a runner. The provider should already carry its retry
// and logging middleware.
func NewRunner(ds *dataset.Dataset, provider llm.Provider, st *store.Store, cfg *config.Config) *Runner {
	return &Runner{
		ds:       ds,
		provider: provider,
		store:    st,
		cfg:      cfg,
		log:      logrus.WithField("component", "experiment"),
	}
}

// Summary reports what one full run produced.
type Summary struct {
	RunID           string
	Students        int
	Excluded        int
	FailuresByStage map[string]int
	// Reports holds the headline metrics keyed by ablation mode.
	Reports map[string]evaluate.Report
	// ByQuartile breaks each mode down by the student's training-accuracy
	// quartile.
	ByQuartile map[string]map[string]evaluate.Report
}

// Splits partitions every student's history and drops any split that
// fails the leakage assertion. Exclusions are recorded as failures so the
// summary accounts for every student.
func (r *Runner) Splits(ctx context.Context) (map[string]split.HistorySplit, int, error) {
	res := split.All(r.ds, r.cfg.Split.Fraction, r.cfg.Split.MinRecords)

	for sid, err := range res.Excluded {
		r.log.WithField("student", sid).WithError(err).Warn("student excluded from run")
		if ferr := r.store.RecordFailure(ctx, store.FailureRow{
			Stage:   "split",
			Key:     sid,
			Message: err.Error(),
		}); ferr != nil && !errors.Is(ferr, store.ErrDuplicateKey) {
			return nil, 0, ferr
		}
	}

	for _, hs := range res.Splits {
		if err := split.CheckLeakage(hs, hs.TrainExerciseIDs()); err != nil {
			return nil, 0, fmt.Errorf("leakage check: %w", err)
		}
	}

	splits := res.Splits
	if len(r.cfg.Run.Students) > 0 {
		keep := make(map[string]split.HistorySplit, len(r.cfg.Run.Students))
		for _, sid := range r.cfg.Run.Students {
			if hs, ok := splits[sid]; ok {
				keep[sid] = hs
			}
		}
		splits = keep
	}
	return splits, len(res.Excluded), nil
}

// Assess runs mastery assessment for every student with a split,
// persisting one record per (student, concept) pair. Students who already
// have mastery rows in this run are skipped, which makes the stage
// resumable at student granularity.
func (r *Runner) Assess(ctx context.Context, splits map[string]split.HistorySplit) error {
	assessor := mastery.NewAssessor(r.provider, mastery.Config{
		MaxTokens:   r.cfg.Mastery.MaxTokens,
		Temperature: r.cfg.Mastery.Temperature,
		Evidence:    mastery.EvidenceMode(r.cfg.Mastery.Evidence),
		Structured:  r.cfg.Mastery.Structured,
	})

	var pending []string
	for _, sid := range sortedStudents(splits) {
		rows, err := r.store.MasteryForStudent(ctx, sid)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			r.log.WithField("student", sid).Debug("mastery already assessed, skipping")
			continue
		}
		pending = append(pending, sid)
	}
	r.log.WithFields(logrus.Fields{"stage": "mastery", "students": len(pending)}).Info("assessing mastery")

	type outcome struct {
		records  []mastery.Record
		failures []mastery.PairFailure
	}
	results := scheduler.Run(ctx, scheduler.Config{
		Limit:        r.cfg.Mastery.Concurrency,
		SpreadWindow: r.cfg.Mastery.SpreadWindow,
	}, pending, func(ctx context.Context, sid string) (outcome, error) {
		recs, fails := assessor.AssessStudent(ctx, r.ds, sid, splits[sid].Train)
		return outcome{records: recs, failures: fails}, nil
	})

	for _, res := range results {
		if res.Err != nil {
			if err := r.recordFailure(ctx, "mastery", res.Item, res.Err, ""); err != nil {
				return err
			}
			continue
		}
		for _, rec := range res.Out.records {
			err := r.store.PutMastery(ctx, store.MasteryRow{
				StudentID:   rec.StudentID,
				ConceptID:   rec.ConceptID,
				Level:       string(rec.Level),
				Rationale:   rec.Rationale,
				Suggestions: rec.Suggestions,
			})
			if err != nil && !errors.Is(err, store.ErrDuplicateKey) {
				return err
			}
		}
		for _, f := range res.Out.failures {
			key := f.StudentID + "/" + f.ConceptID
			if err := r.recordFailure(ctx, "mastery", key, f.Err, f.Raw); err != nil {
				return err
			}
		}
	}
	return nil
}

// Tutor generates remedial material for every student's weak concepts.
// Students who already have material rows in this run are skipped.
func (r *Runner) Tutor(ctx context.Context, splits map[string]split.HistorySplit) error {
	gen := tutoring.NewGenerator(r.provider, tutoring.Config{
		MaxTokens:          r.cfg.Tutoring.MaxTokens,
		Temperature:        r.cfg.Tutoring.Temperature,
		ExamplesPerConcept: r.cfg.Tutoring.ExamplesPerConcept,
		ConceptsPerRequest: r.cfg.Tutoring.ConceptsPerRequest,
		FallbackTopK:       r.cfg.Tutoring.FallbackTopK,
	})

	var pending []string
	for _, sid := range sortedStudents(splits) {
		rows, err := r.store.TutoringForStudent(ctx, sid)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			r.log.WithField("student", sid).Debug("tutoring already generated, skipping")
			continue
		}
		pending = append(pending, sid)
	}
	r.log.WithFields(logrus.Fields{"stage": "tutoring", "students": len(pending)}).Info("generating tutoring material")

	type outcome struct {
		materials []tutoring.Material
		failures  []tutoring.Failure
	}
	results := scheduler.Run(ctx, scheduler.Config{
		Limit:        r.cfg.Tutoring.Concurrency,
		SpreadWindow: r.cfg.Tutoring.SpreadWindow,
	}, pending, func(ctx context.Context, sid string) (outcome, error) {
		records, err := r.masteryRecords(ctx, sid)
		if err != nil {
			return outcome{}, err
		}
		hs := splits[sid]
		rng := seed.Rand(r.cfg.Run.Seed, "tutoring", sid)
		mats, fails := gen.GenerateForStudent(ctx, r.ds, sid, hs.Train, records, hs.TestExerciseIDs(), rng)
		return outcome{materials: mats, failures: fails}, nil
	})

	for _, res := range results {
		if res.Err != nil {
			if err := r.recordFailure(ctx, "tutoring", res.Item, res.Err, ""); err != nil {
				return err
			}
			continue
		}
		// Post-hoc assertion: the worked examples this generation consumed
		// must never come from the held-out segment.
		used := make(map[string]bool)
		for _, mat := range res.Out.materials {
			for _, ex := range mat.WorkedExamples {
				used[ex.ExerciseID] = true
			}
		}
		if err := split.CheckLeakage(splits[res.Item], used); err != nil {
			return fmt.Errorf("tutoring leakage check: %w", err)
		}

		for _, mat := range res.Out.materials {
			err := r.store.PutTutoring(ctx, store.TutoringRow{
				StudentID:      mat.StudentID,
				ConceptID:      mat.ConceptID,
				KeyPoints:      mat.KeyPoints,
				Misconceptions: mat.Misconceptions,
				WorkedExamples: encodeExamples(mat.WorkedExamples),
			})
			if err != nil && !errors.Is(err, store.ErrDuplicateKey) {
				return err
			}
		}
		for _, f := range res.Out.failures {
			key := f.StudentID + "/" + f.ConceptID
			if err := r.recordFailure(ctx, "tutoring", key, f.Err, f.Raw); err != nil {
				return err
			}
		}
	}
	return nil
}

// simItem is one unit of simulation work: a held-out interaction answered
// under one ablation mode.
type simItem struct {
	studentID string
	truth     dataset.Interaction
	mode      memory.Mode
}

// Simulate answers every held-out test item under every configured mode.
// Items already present in the store are skipped, so interrupted runs
// resume at item granularity.
func (r *Runner) Simulate(ctx context.Context, splits map[string]split.HistorySplit) error {
	modes, err := r.modes()
	if err != nil {
		return err
	}
	sim := simulate.NewSimulator(r.provider, simulate.Config{
		MaxTokens:   r.cfg.Simulate.MaxTokens,
		Temperature: r.cfg.Simulate.Temperature,
		Seed:        r.cfg.Run.Seed,
	})

	// Per-student state is read once up front so the workers stay
	// read-only over shared maps.
	profiles := make(map[string]simulate.Profile, len(splits))
	masteryBy := make(map[string]map[string]mastery.Record, len(splits))
	tutoringBy := make(map[string]map[string]tutoring.Material, len(splits))
	for sid, hs := range splits {
		profiles[sid] = simulate.BuildProfile(r.ds, sid, hs.Train, len(r.ds.ConceptIDs()))
		records, err := r.masteryRecords(ctx, sid)
		if err != nil {
			return err
		}
		byConcept := make(map[string]mastery.Record, len(records))
		for _, rec := range records {
			byConcept[rec.ConceptID] = rec
		}
		masteryBy[sid] = byConcept
		mats, err := r.tutoringMaterials(ctx, sid)
		if err != nil {
			return err
		}
		tutoringBy[sid] = mats
	}

	var items []simItem
	for _, sid := range sortedStudents(splits) {
		for _, truth := range splits[sid].Test {
			for _, mode := range modes {
				done, err := r.store.HasSimulation(ctx, sid, truth.ExerciseID, string(mode))
				if err != nil {
					return err
				}
				if done {
					continue
				}
				items = append(items, simItem{studentID: sid, truth: truth, mode: mode})
			}
		}
	}
	r.log.WithFields(logrus.Fields{"stage": "simulate", "items": len(items)}).Info("simulating test items")

	results := scheduler.Run(ctx, scheduler.Config{
		Limit:        r.cfg.Simulate.Concurrency,
		SpreadWindow: r.cfg.Simulate.SpreadWindow,
	}, items, func(ctx context.Context, it simItem) (simulate.Output, error) {
		ex, ok := r.ds.Exercise(it.truth.ExerciseID)
		if !ok {
			return simulate.Output{}, fmt.Errorf("unknown exercise %q", it.truth.ExerciseID)
		}
		memCtx := memory.Resolve(ex, it.mode, masteryBy[it.studentID], tutoringBy[it.studentID])
		return sim.SimulateItem(ctx, r.ds, profiles[it.studentID], it.truth, it.mode, memCtx)
	})

	for _, res := range results {
		key := res.Item.studentID + "/" + res.Item.truth.ExerciseID + "/" + string(res.Item.mode)
		if res.Err != nil {
			raw := ""
			var incomplete *simulate.IncompleteResponseError
			if errors.As(res.Err, &incomplete) {
				raw = incomplete.Raw
			}
			if err := r.recordFailure(ctx, "simulate", key, res.Err, raw); err != nil {
				return err
			}
			continue
		}
		out := res.Out
		err := r.store.PutSimulation(ctx, store.SimulationRow{
			StudentID:  out.StudentID,
			ExerciseID: out.ExerciseID,
			Mode:       string(out.Mode),
			Task1Pred:  out.Task1Pred,
			Task1True:  out.Task1True,
			Task2Pred:  out.Task2Pred,
			Task2True:  out.Task2True,
			Task3Text:  out.Task3Text,
			Task4Pred:  out.Task4Pred,
			Task4True:  out.Task4True,
		})
		if err != nil && !errors.Is(err, store.ErrDuplicateKey) {
			return err
		}
	}
	return nil
}

// Evaluate scores every persisted simulation, overall per mode and broken
// down by training-accuracy quartile.
func (r *Runner) Evaluate(ctx context.Context, splits map[string]split.HistorySplit) (map[string]evaluate.Report, map[string]map[string]evaluate.Report, error) {
	modes, err := r.modes()
	if err != nil {
		return nil, nil, err
	}

	trainAcc := make(map[string]float64, len(splits))
	for sid, hs := range splits {
		correct := 0
		for _, rec := range hs.Train {
			if rec.Correct {
				correct++
			}
		}
		if len(hs.Train) > 0 {
			trainAcc[sid] = float64(correct) / float64(len(hs.Train))
		}
	}
	quartile := evaluate.AccuracyQuartiles(trainAcc)

	reports := make(map[string]evaluate.Report, len(modes))
	byQuartile := make(map[string]map[string]evaluate.Report, len(modes))
	for _, mode := range modes {
		rows, err := r.store.SimulationsForMode(ctx, string(mode))
		if err != nil {
			return nil, nil, err
		}
		outputs := make([]simulate.Output, 0, len(rows))
		for _, row := range rows {
			outputs = append(outputs, simulate.Output{
				StudentID:  row.StudentID,
				ExerciseID: row.ExerciseID,
				Mode:       memory.Mode(row.Mode),
				Task1Pred:  row.Task1Pred,
				Task1True:  row.Task1True,
				Task2Pred:  row.Task2Pred,
				Task2True:  row.Task2True,
				Task3Text:  row.Task3Text,
				Task4Pred:  row.Task4Pred,
				Task4True:  row.Task4True,
			})
		}
		reports[string(mode)] = evaluate.Evaluate(outputs)
		byQuartile[string(mode)] = evaluate.EvaluateBy(outputs, quartile)
	}
	return reports, byQuartile, nil
}

// Run executes the full pipeline and returns its summary.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	splits, excluded, err := r.Splits(ctx)
	if err != nil {
		return nil, err
	}
	if len(splits) == 0 {
		return nil, fmt.Errorf("no students eligible for the run")
	}

	if err := r.Assess(ctx, splits); err != nil {
		return nil, fmt.Errorf("mastery stage: %w", err)
	}
	if err := r.Tutor(ctx, splits); err != nil {
		return nil, fmt.Errorf("tutoring stage: %w", err)
	}
	if err := r.Simulate(ctx, splits); err != nil {
		return nil, fmt.Errorf("simulation stage: %w", err)
	}
	reports, byQuartile, err := r.Evaluate(ctx, splits)
	if err != nil {
		return nil, fmt.Errorf("evaluation stage: %w", err)
	}

	failures, err := r.store.FailureCounts(ctx)
	if err != nil {
		return nil, err
	}
	return &Summary{
		RunID:           r.store.RunID(),
		Students:        len(splits),
		Excluded:        excluded,
		FailuresByStage: failures,
		Reports:         reports,
		ByQuartile:      byQuartile,
	}, nil
}

func (r *Runner) modes() ([]memory.Mode, error) {
	modes := make([]memory.Mode, 0, len(r.cfg.Run.Modes))
	for _, s := range r.cfg.Run.Modes {
		mode, err := memory.ParseMode(s)
		if err != nil {
			return nil, err
		}
		modes = append(modes, mode)
	}
	return modes, nil
}

func (r *Runner) recordFailure(ctx context.Context, stage, key string, failure error, raw string) error {
	r.log.WithFields(logrus.Fields{"stage": stage, "key": key}).WithError(failure).Warn("unit failed")
	err := r.store.RecordFailure(ctx, store.FailureRow{
		Stage:   stage,
		Key:     key,
		Message: failure.Error(),
		RawText: raw,
	})
	if errors.Is(err, store.ErrDuplicateKey) {
		return nil
	}
	return err
}

// masteryRecords reloads a student's persisted mastery records. Rows with
// a level this run no longer recognizes are dropped rather than guessed.
func (r *Runner) masteryRecords(ctx context.Context, studentID string) ([]mastery.Record, error) {
	rows, err := r.store.MasteryForStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	records := make([]mastery.Record, 0, len(rows))
	for _, row := range rows {
		level, err := mastery.ParseLevel(row.Level)
		if err != nil {
			r.log.WithFields(logrus.Fields{"student": row.StudentID, "concept": row.ConceptID}).
				WithError(err).Warn("dropping stored mastery row")
			continue
		}
		records = append(records, mastery.Record{
			StudentID:   row.StudentID,
			ConceptID:   row.ConceptID,
			Level:       level,
			Rationale:   row.Rationale,
			Suggestions: row.Suggestions,
		})
	}
	return records, nil
}

func (r *Runner) tutoringMaterials(ctx context.Context, studentID string) (map[string]tutoring.Material, error) {
	rows, err := r.store.TutoringForStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	mats := make(map[string]tutoring.Material, len(rows))
	for _, row := range rows {
		mats[row.ConceptID] = tutoring.Material{
			StudentID:      row.StudentID,
			ConceptID:      row.ConceptID,
			KeyPoints:      row.KeyPoints,
			Misconceptions: row.Misconceptions,
			WorkedExamples: decodeExamples(row.WorkedExamples),
		}
	}
	return mats, nil
}

// Worked examples are stored flattened; the separator never occurs in
// model output because sections are parsed line by line.
const examplePartSep = "␟" // symbol for unit separator

func encodeExamples(examples []tutoring.WorkedExample) []string {
	out := make([]string, 0, len(examples))
	for _, ex := range examples {
		out = append(out, strings.Join([]string{ex.ExerciseID, ex.Solution, ex.Connection}, examplePartSep))
	}
	return out
}

func decodeExamples(encoded []string) []tutoring.WorkedExample {
	out := make([]tutoring.WorkedExample, 0, len(encoded))
	for _, s := range encoded {
		parts := strings.SplitN(s, examplePartSep, 3)
		ex := tutoring.WorkedExample{ExerciseID: parts[0]}
		if len(parts) > 1 {
			ex.Solution = parts[1]
		}
		if len(parts) > 2 {
			ex.Connection = parts[2]
		}
		out = append(out, ex)
	}
	return out
}

func sortedStudents(splits map[string]split.HistorySplit) []string {
	ids := make([]string, 0, len(splits))
	for sid := range splits {
		ids = append(ids, sid)
	}
	sort.Strings(ids)
	return ids
}
