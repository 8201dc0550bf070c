// Package store persists experiment outputs in SQLite: mastery records,
// tutoring materials, per-mode simulation outputs, per-stage failures, and
// the LLM request log. All writes are scoped to a run ID and are write-once
// per key: a duplicate insert is a programming error, not last-write-wins.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"

	"github.com/hanyuliu/simlearn/internal/llm"
)

// ErrDuplicateKey is returned when an insert collides with an existing row
// for the same key within the same run.
var ErrDuplicateKey = errors.New("store: duplicate key")

// ErrNotFound is returned by lookups when no row matches.
var ErrNotFound = errors.New("store: not found")

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// MasteryRow is one persisted mastery assessment.
type MasteryRow struct {
	StudentID   string
	ConceptID   string
	Level       string
	Rationale   string
	Suggestions string
}

// TutoringRow is one persisted tutoring material.
type TutoringRow struct {
	StudentID      string
	ConceptID      string
	KeyPoints      []string
	Misconceptions []string
	WorkedExamples []string
}

// SimulationRow is one persisted simulation output for a
// (student, exercise, mode) key.
type SimulationRow struct {
	StudentID  string
	ExerciseID string
	Mode       string
	Task1Pred  string
	Task1True  string
	Task2Pred  string
	Task2True  string
	Task3Text  string
	Task4Pred  string
	Task4True  string
}

// FailureRow records one failed unit of work with its raw model output
// retained for diagnosis.
type FailureRow struct {
	Stage   string
	Key     string
	Message string
	RawText string
}

// Store is the SQLite-backed run store.
type Store struct {
	db    *sql.DB
	runID string
}

// Open opens (creating if needed) the database at path and prepares the
// schema. All subsequent writes are tagged with runID.
func Open(path, runID string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, runID: runID}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunID returns the run identifier this store writes under.
func (s *Store) RunID() string {
	return s.runID
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS mastery_records (
			run_id      TEXT NOT NULL,
			student_id  TEXT NOT NULL,
			concept_id  TEXT NOT NULL,
			level       TEXT NOT NULL,
			rationale   TEXT NOT NULL,
			suggestions TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			UNIQUE(run_id, student_id, concept_id)
		);

		CREATE TABLE IF NOT EXISTS tutoring_materials (
			run_id          TEXT NOT NULL,
			student_id      TEXT NOT NULL,
			concept_id      TEXT NOT NULL,
			key_points      TEXT NOT NULL,
			misconceptions  TEXT NOT NULL,
			worked_examples TEXT NOT NULL,
			created_at      TEXT NOT NULL,
			UNIQUE(run_id, student_id, concept_id)
		);

		CREATE TABLE IF NOT EXISTS simulation_outputs (
			run_id      TEXT NOT NULL,
			student_id  TEXT NOT NULL,
			exercise_id TEXT NOT NULL,
			mode        TEXT NOT NULL,
			task1_pred  TEXT NOT NULL,
			task1_true  TEXT NOT NULL,
			task2_pred  TEXT NOT NULL,
			task2_true  TEXT NOT NULL,
			task3_text  TEXT NOT NULL,
			task4_pred  TEXT NOT NULL,
			task4_true  TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			UNIQUE(run_id, student_id, exercise_id, mode)
		);

		CREATE TABLE IF NOT EXISTS failures (
			run_id     TEXT NOT NULL,
			stage      TEXT NOT NULL,
			key        TEXT NOT NULL,
			message    TEXT NOT NULL,
			raw_text   TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE(run_id, stage, key)
		);

		CREATE TABLE IF NOT EXISTS llm_requests (
			run_id        TEXT NOT NULL,
			provider      TEXT NOT NULL,
			model         TEXT NOT NULL,
			purpose       TEXT NOT NULL,
			input_tokens  INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL,
			latency_ms    INTEGER NOT NULL,
			cost_usd      REAL NOT NULL,
			success       INTEGER NOT NULL,
			error_message TEXT NOT NULL,
			request_body  TEXT NOT NULL,
			response_body TEXT NOT NULL,
			created_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_mastery_student
			ON mastery_records(run_id, student_id);
		CREATE INDEX IF NOT EXISTS idx_tutoring_student
			ON tutoring_materials(run_id, student_id);
		CREATE INDEX IF NOT EXISTS idx_simulation_mode
			ON simulation_outputs(run_id, mode);
	`
	_, err := s.db.Exec(schema)
	return err
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// wrapInsertErr maps UNIQUE violations to ErrDuplicateKey.
func wrapInsertErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrDuplicateKey
	}
	return err
}

// PutMastery inserts one mastery record. Inserting twice for the same
// (student, concept) in a run returns ErrDuplicateKey.
func (s *Store) PutMastery(ctx context.Context, row MasteryRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mastery_records
			(run_id, student_id, concept_id, level, rationale, suggestions, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.runID, row.StudentID, row.ConceptID, row.Level, row.Rationale, row.Suggestions, now())
	if err != nil {
		return fmt.Errorf("store: insert mastery %s/%s: %w",
			row.StudentID, row.ConceptID, wrapInsertErr(err))
	}
	return nil
}

// GetMastery returns the mastery record for one (student, concept) key.
func (s *Store) GetMastery(ctx context.Context, studentID, conceptID string) (MasteryRow, error) {
	var row MasteryRow
	err := s.db.QueryRowContext(ctx, `
		SELECT student_id, concept_id, level, rationale, suggestions
		FROM mastery_records
		WHERE run_id = ? AND student_id = ? AND concept_id = ?`,
		s.runID, studentID, conceptID).
		Scan(&row.StudentID, &row.ConceptID, &row.Level, &row.Rationale, &row.Suggestions)
	if errors.Is(err, sql.ErrNoRows) {
		return MasteryRow{}, ErrNotFound
	}
	if err != nil {
		return MasteryRow{}, fmt.Errorf("store: get mastery: %w", err)
	}
	return row, nil
}

// MasteryForStudent returns all mastery records for one student.
func (s *Store) MasteryForStudent(ctx context.Context, studentID string) ([]MasteryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT student_id, concept_id, level, rationale, suggestions
		FROM mastery_records
		WHERE run_id = ? AND student_id = ?
		ORDER BY concept_id`,
		s.runID, studentID)
	if err != nil {
		return nil, fmt.Errorf("store: list mastery: %w", err)
	}
	defer rows.Close()

	var out []MasteryRow
	for rows.Next() {
		var r MasteryRow
		if err := rows.Scan(&r.StudentID, &r.ConceptID, &r.Level, &r.Rationale, &r.Suggestions); err != nil {
			return nil, fmt.Errorf("store: scan mastery: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AllMastery returns every mastery record in the run.
func (s *Store) AllMastery(ctx context.Context) ([]MasteryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT student_id, concept_id, level, rationale, suggestions
		FROM mastery_records
		WHERE run_id = ?
		ORDER BY student_id, concept_id`,
		s.runID)
	if err != nil {
		return nil, fmt.Errorf("store: list mastery: %w", err)
	}
	defer rows.Close()

	var out []MasteryRow
	for rows.Next() {
		var r MasteryRow
		if err := rows.Scan(&r.StudentID, &r.ConceptID, &r.Level, &r.Rationale, &r.Suggestions); err != nil {
			return nil, fmt.Errorf("store: scan mastery: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PutTutoring inserts one tutoring material. List fields are stored as JSON.
func (s *Store) PutTutoring(ctx context.Context, row TutoringRow) error {
	kp, mc, we, err := marshalLists(row.KeyPoints, row.Misconceptions, row.WorkedExamples)
	if err != nil {
		return fmt.Errorf("store: encode tutoring %s/%s: %w", row.StudentID, row.ConceptID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tutoring_materials
			(run_id, student_id, concept_id, key_points, misconceptions, worked_examples, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.runID, row.StudentID, row.ConceptID, kp, mc, we, now())
	if err != nil {
		return fmt.Errorf("store: insert tutoring %s/%s: %w",
			row.StudentID, row.ConceptID, wrapInsertErr(err))
	}
	return nil
}

// GetTutoring returns the tutoring material for one (student, concept) key.
func (s *Store) GetTutoring(ctx context.Context, studentID, conceptID string) (TutoringRow, error) {
	var row TutoringRow
	var kp, mc, we string
	err := s.db.QueryRowContext(ctx, `
		SELECT student_id, concept_id, key_points, misconceptions, worked_examples
		FROM tutoring_materials
		WHERE run_id = ? AND student_id = ? AND concept_id = ?`,
		s.runID, studentID, conceptID).
		Scan(&row.StudentID, &row.ConceptID, &kp, &mc, &we)
	if errors.Is(err, sql.ErrNoRows) {
		return TutoringRow{}, ErrNotFound
	}
	if err != nil {
		return TutoringRow{}, fmt.Errorf("store: get tutoring: %w", err)
	}
	if err := unmarshalLists(kp, mc, we, &row); err != nil {
		return TutoringRow{}, fmt.Errorf("store: decode tutoring: %w", err)
	}
	return row, nil
}

// TutoringForStudent returns all tutoring materials for one student.
func (s *Store) TutoringForStudent(ctx context.Context, studentID string) ([]TutoringRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT student_id, concept_id, key_points, misconceptions, worked_examples
		FROM tutoring_materials
		WHERE run_id = ? AND student_id = ?
		ORDER BY concept_id`,
		s.runID, studentID)
	if err != nil {
		return nil, fmt.Errorf("store: list tutoring: %w", err)
	}
	defer rows.Close()

	var out []TutoringRow
	for rows.Next() {
		var r TutoringRow
		var kp, mc, we string
		if err := rows.Scan(&r.StudentID, &r.ConceptID, &kp, &mc, &we); err != nil {
			return nil, fmt.Errorf("store: scan tutoring: %w", err)
		}
		if err := unmarshalLists(kp, mc, we, &r); err != nil {
			return nil, fmt.Errorf("store: decode tutoring: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PutSimulation inserts one simulation output row.
func (s *Store) PutSimulation(ctx context.Context, row SimulationRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO simulation_outputs
			(run_id, student_id, exercise_id, mode,
			 task1_pred, task1_true, task2_pred, task2_true,
			 task3_text, task4_pred, task4_true, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.runID, row.StudentID, row.ExerciseID, row.Mode,
		row.Task1Pred, row.Task1True, row.Task2Pred, row.Task2True,
		row.Task3Text, row.Task4Pred, row.Task4True, now())
	if err != nil {
		return fmt.Errorf("store: insert simulation %s/%s/%s: %w",
			row.StudentID, row.ExerciseID, row.Mode, wrapInsertErr(err))
	}
	return nil
}

// HasSimulation reports whether a simulation output already exists for the
// key, allowing interrupted runs to resume without re-dispatching.
func (s *Store) HasSimulation(ctx context.Context, studentID, exerciseID, mode string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM simulation_outputs
		WHERE run_id = ? AND student_id = ? AND exercise_id = ? AND mode = ?`,
		s.runID, studentID, exerciseID, mode).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: check simulation: %w", err)
	}
	return n > 0, nil
}

// SimulationsForMode returns every simulation output recorded under mode.
func (s *Store) SimulationsForMode(ctx context.Context, mode string) ([]SimulationRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT student_id, exercise_id, mode,
		       task1_pred, task1_true, task2_pred, task2_true,
		       task3_text, task4_pred, task4_true
		FROM simulation_outputs
		WHERE run_id = ? AND mode = ?
		ORDER BY student_id, exercise_id`,
		s.runID, mode)
	if err != nil {
		return nil, fmt.Errorf("store: list simulations: %w", err)
	}
	defer rows.Close()

	var out []SimulationRow
	for rows.Next() {
		var r SimulationRow
		if err := rows.Scan(&r.StudentID, &r.ExerciseID, &r.Mode,
			&r.Task1Pred, &r.Task1True, &r.Task2Pred, &r.Task2True,
			&r.Task3Text, &r.Task4Pred, &r.Task4True); err != nil {
			return nil, fmt.Errorf("store: scan simulation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordFailure records one failed unit of work. The same key may fail in
// multiple stages, but re-recording a (stage, key) within a run returns
// ErrDuplicateKey, so resumed runs never double-count.
func (s *Store) RecordFailure(ctx context.Context, row FailureRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO failures (run_id, stage, key, message, raw_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.runID, row.Stage, row.Key, row.Message, row.RawText, now())
	if err != nil {
		if wrapped := wrapInsertErr(err); wrapped == ErrDuplicateKey {
			return wrapped
		}
		return fmt.Errorf("store: record failure: %w", err)
	}
	return nil
}

// FailureCounts returns the number of recorded failures per stage.
func (s *Store) FailureCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage, COUNT(1) FROM failures WHERE run_id = ? GROUP BY stage`,
		s.runID)
	if err != nil {
		return nil, fmt.Errorf("store: count failures: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var stage string
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, fmt.Errorf("store: scan failure count: %w", err)
		}
		counts[stage] = n
	}
	return counts, rows.Err()
}

// RecordRequest implements llm.RequestRecorder.
func (s *Store) RecordRequest(ctx context.Context, rec llm.RequestRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO llm_requests
			(run_id, provider, model, purpose, input_tokens, output_tokens,
			 latency_ms, cost_usd, success, error_message, request_body,
			 response_body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.runID, rec.Provider, rec.Model, rec.Purpose, rec.InputTokens,
		rec.OutputTokens, rec.LatencyMs, rec.CostUSD, rec.Success,
		rec.ErrorMessage, rec.RequestBody, rec.ResponseBody, now())
	if err != nil {
		return fmt.Errorf("store: record llm request: %w", err)
	}
	return nil
}

func marshalLists(kp, mc, we []string) (string, string, string, error) {
	enc := func(v []string) (string, error) {
		if v == nil {
			v = []string{}
		}
		b, err := json.Marshal(v)
		return string(b), err
	}
	kpJSON, err := enc(kp)
	if err != nil {
		return "", "", "", err
	}
	mcJSON, err := enc(mc)
	if err != nil {
		return "", "", "", err
	}
	weJSON, err := enc(we)
	if err != nil {
		return "", "", "", err
	}
	return kpJSON, mcJSON, weJSON, nil
}

func unmarshalLists(kp, mc, we string, row *TutoringRow) error {
	if err := json.Unmarshal([]byte(kp), &row.KeyPoints); err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(mc), &row.Misconceptions); err != nil {
		return err
	}
	return json.Unmarshal([]byte(we), &row.WorkedExamples)
}
