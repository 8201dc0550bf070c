package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// CSV file names expected under the data directory.
const (
	conceptsFile         = "concepts.csv"
	conceptLinksFile     = "concept_links.csv"
	exercisesFile        = "exercises.csv"
	choicesFile          = "choices.csv"
	exerciseConceptsFile = "exercise_concepts.csv"
	interactionsFile     = "interactions.csv"
)

// LoadDir reads the experiment input from CSV files under dir and builds a
// Dataset. The files are produced by an upstream export that already
// validated schema and referential integrity.
func LoadDir(dir string) (*Dataset, error) {
	concepts, err := loadConcepts(dir)
	if err != nil {
		return nil, err
	}
	exercises, err := loadExercises(dir)
	if err != nil {
		return nil, err
	}
	interactions, err := loadInteractions(dir)
	if err != nil {
		return nil, err
	}
	return New(concepts, exercises, interactions), nil
}

func readRows(dir, name string) ([][]string, error) {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	// Skip header.
	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s header: %w", name, err)
	}

	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func loadConcepts(dir string) ([]Concept, error) {
	rows, err := readRows(dir, conceptsFile)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*Concept, len(rows))
	var order []string
	for _, row := range rows {
		c := Concept{ID: row[0], Name: row[1]}
		if len(row) > 2 {
			c.Description = row[2]
		}
		byID[c.ID] = &c
		order = append(order, c.ID)
	}

	// Prerequisite edges: from_id is a prerequisite of to_id.
	links, err := readRows(dir, conceptLinksFile)
	if err != nil {
		return nil, err
	}
	for _, row := range links {
		if to, ok := byID[row[1]]; ok {
			to.Prerequisites = append(to.Prerequisites, row[0])
		}
	}

	out := make([]Concept, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

func loadExercises(dir string) ([]Exercise, error) {
	rows, err := readRows(dir, exercisesFile)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*Exercise, len(rows))
	var order []string
	for _, row := range rows {
		ex := Exercise{ID: row[0], Content: row[1]}
		if len(row) > 2 {
			ex.Difficulty, _ = strconv.Atoi(row[2])
		}
		byID[ex.ID] = &ex
		order = append(order, ex.ID)
	}

	// choices.csv: id, exercise_id, text, is_correct. Stored order is the
	// presentation order and must be preserved.
	choices, err := readRows(dir, choicesFile)
	if err != nil {
		return nil, err
	}
	for _, row := range choices {
		ex, ok := byID[row[1]]
		if !ok {
			continue
		}
		correct, _ := strconv.ParseBool(row[3])
		ex.Choices = append(ex.Choices, Choice{ID: row[0], Text: row[2], Correct: correct})
	}

	// exercise_concepts.csv: exercise_id, concept_id. Row order defines the
	// primary concept (first tag).
	tags, err := readRows(dir, exerciseConceptsFile)
	if err != nil {
		return nil, err
	}
	for _, row := range tags {
		if ex, ok := byID[row[0]]; ok {
			ex.ConceptIDs = append(ex.ConceptIDs, row[1])
		}
	}

	out := make([]Exercise, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

func loadInteractions(dir string) ([]Interaction, error) {
	rows, err := readRows(dir, interactionsFile)
	if err != nil {
		return nil, err
	}
	out := make([]Interaction, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("%s row %d: expected at least 6 fields, got %d", interactionsFile, i+2, len(row))
		}
		ts, err := time.Parse(time.RFC3339, row[5])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: parse timestamp: %w", interactionsFile, i+2, err)
		}
		correct, _ := strconv.ParseBool(row[4])
		rec := Interaction{
			ID:         row[0],
			StudentID:  row[1],
			ExerciseID: row[2],
			ChoiceID:   row[3],
			Correct:    correct,
			Timestamp:  ts,
		}
		// Optional behavioral signal columns; empty cells stay nil.
		rec.Signals = parseSignals(row)
		out = append(out, rec)
	}
	return out, nil
}

func parseSignals(row []string) Signals {
	var s Signals
	get := func(idx int) string {
		if idx < len(row) {
			return row[idx]
		}
		return ""
	}
	if v := get(6); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.Confidence = &n
		}
	}
	if v := get(7); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.PerceivedDifficulty = &n
		}
	}
	if v := get(8); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.HintUsed = &b
		}
	}
	if v := get(9); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.ChoiceChanges = &n
		}
	}
	if v := get(10); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.DurationSec = &f
		}
	}
	return s
}
