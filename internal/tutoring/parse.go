package tutoring

import (
	"regexp"
	"strings"

	"github.com/hanyuliu/simlearn/internal/dataset"
)

var (
	conceptMarkerRe = regexp.MustCompile(`(?i)^concept:\s*(.+?)\s*$`)
	exampleRe       = regexp.MustCompile(`(?i)^example\s+(.+?):\s*$`)
)

// parseResponse splits a batched reply into one Material per expected
// concept by locating its `Concept:` marker line. Matching is by exact
// concept name, case-insensitive, with surrounding emphasis markers
// stripped; there is no positional or fuzzy fallback. Concepts whose
// section is missing or empty fail individually with PartialParseError.
func parseResponse(text string, expected []dataset.Concept) (map[string]Material, []*PartialParseError) {
	sections := splitSections(text)

	materials := make(map[string]Material)
	var errs []*PartialParseError

	for _, concept := range expected {
		body, ok := sections[normalizeName(concept.Name)]
		if !ok {
			errs = append(errs, &PartialParseError{
				ConceptID:   concept.ID,
				ConceptName: concept.Name,
				Raw:         text,
			})
			continue
		}

		m := parseSection(body)
		if len(m.KeyPoints) == 0 && len(m.Misconceptions) == 0 && len(m.WorkedExamples) == 0 {
			errs = append(errs, &PartialParseError{
				ConceptID:   concept.ID,
				ConceptName: concept.Name,
				Raw:         text,
			})
			continue
		}

		m.ConceptID = concept.ID
		materials[concept.ID] = m
	}

	return materials, errs
}

// splitSections cuts the reply at Concept: marker lines and indexes each
// section body by its normalized concept name.
func splitSections(text string) map[string][]string {
	sections := make(map[string][]string)
	current := ""

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if m := conceptMarkerRe.FindStringSubmatch(trimmed); m != nil {
			current = normalizeName(m[1])
			if _, exists := sections[current]; !exists {
				sections[current] = nil
			}
			continue
		}
		if current != "" {
			sections[current] = append(sections[current], line)
		}
	}
	return sections
}

// normalizeName lowercases a concept name and strips markdown emphasis.
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(strings.Trim(strings.TrimSpace(name), "*")))
}

// parseSection extracts the key-point, misconception, and worked-example
// blocks from one concept's section body.
func parseSection(lines []string) Material {
	var m Material

	const (
		inNone = iota
		inKeyPoints
		inMisconceptions
		inSolution
		inConnection
	)
	state := inNone
	var example *WorkedExample

	flush := func() {
		if example != nil {
			example.Solution = strings.TrimSpace(example.Solution)
			example.Connection = strings.TrimSpace(example.Connection)
			m.WorkedExamples = append(m.WorkedExamples, *example)
			example = nil
		}
	}

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		lower := strings.ToLower(line)

		switch {
		case strings.HasPrefix(lower, "key points:"):
			flush()
			state = inKeyPoints
			continue
		case strings.HasPrefix(lower, "misconceptions:"):
			flush()
			state = inMisconceptions
			continue
		}

		if em := exampleRe.FindStringSubmatch(line); em != nil {
			flush()
			example = &WorkedExample{ExerciseID: cleanExampleID(em[1])}
			state = inNone
			continue
		}

		if example != nil {
			switch {
			case strings.HasPrefix(lower, "solution:"):
				state = inSolution
				example.Solution = strings.TrimSpace(line[len("Solution:"):])
				continue
			case strings.HasPrefix(lower, "connection:"):
				state = inConnection
				example.Connection = strings.TrimSpace(line[len("Connection:"):])
				continue
			case state == inSolution && line != "":
				example.Solution += " " + line
				continue
			case state == inConnection && line != "":
				example.Connection += " " + line
				continue
			}
		}

		if line == "" {
			continue
		}
		if item, ok := strings.CutPrefix(line, "- "); ok {
			switch state {
			case inKeyPoints:
				m.KeyPoints = append(m.KeyPoints, strings.TrimSpace(item))
			case inMisconceptions:
				m.Misconceptions = append(m.Misconceptions, strings.TrimSpace(item))
			}
		}
	}
	flush()

	return m
}

// cleanExampleID strips decorations a model may add around the exercise ID,
// e.g. "1 (Question ID: e7)" becomes "e7".
func cleanExampleID(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(strings.ToLower(s), "question id:"); i >= 0 {
		s = s[i+len("question id:"):]
		s = strings.TrimRight(strings.TrimSpace(s), ")")
	}
	return strings.TrimSpace(s)
}
