package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// ExportCSV writes the run's mastery, tutoring, and simulation tables as
// flat CSV files under dir, one row per key, for downstream analysis.
// List-valued fields are JSON-encoded within their cell.
func (s *Store) ExportCSV(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: create export dir: %w", err)
	}

	if err := s.exportMastery(ctx, filepath.Join(dir, "mastery.csv")); err != nil {
		return err
	}
	if err := s.exportTutoring(ctx, filepath.Join(dir, "tutoring.csv")); err != nil {
		return err
	}
	return s.exportSimulations(ctx, filepath.Join(dir, "simulation.csv"))
}

func (s *Store) exportMastery(ctx context.Context, path string) error {
	rows, err := s.AllMastery(ctx)
	if err != nil {
		return err
	}
	records := [][]string{{"student_id", "concept_id", "level", "rationale", "suggestions"}}
	for _, r := range rows {
		records = append(records, []string{r.StudentID, r.ConceptID, r.Level, r.Rationale, r.Suggestions})
	}
	return writeCSV(path, records)
}

func (s *Store) exportTutoring(ctx context.Context, path string) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT student_id, concept_id, key_points, misconceptions, worked_examples
		FROM tutoring_materials
		WHERE run_id = ?
		ORDER BY student_id, concept_id`,
		s.runID)
	if err != nil {
		return fmt.Errorf("store: export tutoring: %w", err)
	}
	defer rows.Close()

	records := [][]string{{"student_id", "concept_id", "key_points", "misconceptions", "worked_examples"}}
	for rows.Next() {
		rec := make([]string, 5)
		if err := rows.Scan(&rec[0], &rec[1], &rec[2], &rec[3], &rec[4]); err != nil {
			return fmt.Errorf("store: export tutoring: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("store: export tutoring: %w", err)
	}
	return writeCSV(path, records)
}

func (s *Store) exportSimulations(ctx context.Context, path string) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT student_id, exercise_id, mode,
		       task1_pred, task1_true, task2_pred, task2_true,
		       task3_text, task4_pred, task4_true
		FROM simulation_outputs
		WHERE run_id = ?
		ORDER BY mode, student_id, exercise_id`,
		s.runID)
	if err != nil {
		return fmt.Errorf("store: export simulations: %w", err)
	}
	defer rows.Close()

	records := [][]string{{
		"student_id", "exercise_id", "mode",
		"task1_pred", "task1_true", "task2_pred", "task2_true",
		"task3_text", "task4_pred", "task4_true",
	}}
	for rows.Next() {
		rec := make([]string, 10)
		dest := make([]any, len(rec))
		for i := range rec {
			dest[i] = &rec[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("store: export simulations: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("store: export simulations: %w", err)
	}
	return writeCSV(path, records)
}

func writeCSV(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("store: create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		f.Close()
		return fmt.Errorf("store: write %s: %w", path, err)
	}
	return f.Close()
}
