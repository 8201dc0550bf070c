package mastery

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UnparseableLevelError reports a response whose mastery level is absent or
// not one of the four defined labels. The raw text is retained for
// diagnosis; the level is never coerced to a default.
type UnparseableLevelError struct {
	Found string // the level text found, empty if the label was missing
	Raw   string
}

func (e *UnparseableLevelError) Error() string {
	if e.Found == "" {
		return "mastery: response has no Mastery Level line"
	}
	return fmt.Sprintf("mastery: unparseable mastery level %q", e.Found)
}

// MissingSectionError reports a response lacking a required labeled section.
type MissingSectionError struct {
	Section string
	Raw     string
}

func (e *MissingSectionError) Error() string {
	return fmt.Sprintf("mastery: response missing %s section", e.Section)
}

// parsed is the structured form of a grader response.
type parsed struct {
	Level       Level
	Rationale   string
	Suggestions string
}

// sections that open a new labeled block in the response.
var sectionLabels = []string{"Mastery Level:", "Rationale:", "Suggestions:"}

// parseResponse extracts the three labeled sections. Section bodies may
// span multiple lines; a line starting with a known label closes the
// previous section. Unknown text before the first label is ignored.
func parseResponse(text string) (parsed, error) {
	values := map[string]string{}
	current := ""

	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)

		matched := false
		for _, label := range sectionLabels {
			if strings.HasPrefix(line, label) {
				current = label
				values[label] = strings.TrimSpace(strings.TrimPrefix(line, label))
				matched = true
				break
			}
		}
		if matched || current == "" || line == "" {
			continue
		}
		values[current] += " " + line
	}

	levelText, ok := values["Mastery Level:"]
	if !ok {
		return parsed{}, &UnparseableLevelError{Raw: text}
	}
	level, err := ParseLevel(strings.TrimSpace(levelText))
	if err != nil {
		return parsed{}, &UnparseableLevelError{Found: levelText, Raw: text}
	}

	rationale, ok := values["Rationale:"]
	if !ok {
		return parsed{}, &MissingSectionError{Section: "Rationale", Raw: text}
	}

	return parsed{
		Level:       level,
		Rationale:   strings.TrimSpace(rationale),
		Suggestions: strings.TrimSpace(values["Suggestions:"]),
	}, nil
}

// parseStructured extracts the same three fields from a schema-validated
// JSON reply. The level is still matched against the four labels, never
// defaulted.
func parseStructured(raw json.RawMessage) (parsed, error) {
	var body struct {
		MasteryLevel string `json:"mastery_level"`
		Rationale    string `json:"rationale"`
		Suggestions  string `json:"suggestions"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return parsed{}, &UnparseableLevelError{Raw: string(raw)}
	}
	level, err := ParseLevel(strings.TrimSpace(body.MasteryLevel))
	if err != nil {
		return parsed{}, &UnparseableLevelError{Found: body.MasteryLevel, Raw: string(raw)}
	}
	if strings.TrimSpace(body.Rationale) == "" {
		return parsed{}, &MissingSectionError{Section: "Rationale", Raw: string(raw)}
	}
	return parsed{
		Level:       level,
		Rationale:   strings.TrimSpace(body.Rationale),
		Suggestions: strings.TrimSpace(body.Suggestions),
	}, nil
}
