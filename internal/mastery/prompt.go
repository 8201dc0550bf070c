package mastery

import (
	"fmt"
	"strings"

	"github.com/hanyuliu/simlearn/internal/dataset"
)

const systemPrompt = `You are an experienced educational assessment expert. Your task is to evaluate a student's mastery level of a specific knowledge component based on their exam performance data.

Focus on analyzing:
- Overall performance patterns across all questions
- Performance consistency and stability
- Handling of questions with different difficulties
- Behavioral signals (confidence, hint usage, hesitation)
- Performance on questions involving multiple knowledge components`

// EvidenceMode selects how much of the interaction record is shown to the
// grader.
type EvidenceMode string

const (
	// EvidenceFull includes the behavioral signals alongside each answer.
	EvidenceFull EvidenceMode = "full"
	// EvidenceMinimal shows only the question, choices, and result.
	EvidenceMinimal EvidenceMode = "minimal"
)

// maxQuestionChars truncates long question texts in the evidence block.
const maxQuestionChars = 150

// Label maps render ordinal signals on their source scales.
var (
	difficultyLabels = map[int]string{
		0: "Very Easy", 1: "Easy", 2: "Medium", 3: "Hard", 4: "Very Hard",
	}
	perceivedLabels = map[int]string{
		0: "Very Easy", 1: "Easy", 2: "Medium", 3: "Hard",
	}
	confidenceLabels = map[int]string{
		0: "No confidence", 1: "Low confidence", 2: "Medium confidence", 3: "High confidence",
	}
)

// buildUserMessage renders the assessment context and evidence block for
// one (student, concept) pair. The trajectory must already be restricted
// to the training segment.
func buildUserMessage(ds *dataset.Dataset, studentID string, concept dataset.Concept, trajectory []dataset.Interaction, mode EvidenceMode) string {
	var b strings.Builder

	b.WriteString("--- ASSESSMENT CONTEXT ---\n")
	fmt.Fprintf(&b, "Student ID: %s\n", studentID)
	fmt.Fprintf(&b, "Knowledge Component: '%s'\n", concept.Name)
	if concept.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", concept.Description)
	}
	if pre := ds.PrerequisiteNames(concept); len(pre) > 0 {
		fmt.Fprintf(&b, "Prerequisite Components: %s\n", strings.Join(pre, ", "))
	}

	fmt.Fprintf(&b, "\n--- EXAM PERFORMANCE RECORDS FOR '%s' ---\n", concept.Name)
	fmt.Fprintf(&b, "Total questions answered: %d\n\n", len(trajectory))

	if len(trajectory) == 0 {
		b.WriteString("No exam records found for this knowledge component.\n")
	}
	for i, rec := range trajectory {
		writeEvidence(&b, ds, concept, rec, i+1, mode)
	}

	b.WriteString(taskInstruction)
	return b.String()
}

func writeEvidence(b *strings.Builder, ds *dataset.Dataset, concept dataset.Concept, rec dataset.Interaction, n int, mode EvidenceMode) {
	fmt.Fprintf(b, "[Question %d]\n", n)
	fmt.Fprintf(b, "  - Question ID: %s\n", rec.ExerciseID)

	ex, ok := ds.Exercise(rec.ExerciseID)
	if ok {
		content := strings.TrimSpace(ex.Content)
		if len(content) > maxQuestionChars {
			content = content[:maxQuestionChars] + "..."
		}
		if content != "" {
			fmt.Fprintf(b, "  - Question Content: %s\n", content)
		}
		if len(ex.Choices) > 0 {
			b.WriteString("  - Answer Choices:\n")
			for _, ch := range ex.Choices {
				line := "    - " + strings.TrimSpace(ch.Text)
				if ch.Correct {
					line += " [Correct Answer]"
				}
				if ch.ID == rec.ChoiceID {
					line += " <- [Student's Choice]"
				}
				b.WriteString(line + "\n")
			}
		}
	}

	if rec.Correct {
		b.WriteString("  - Result: Correct\n")
	} else {
		b.WriteString("  - Result: Incorrect\n")
	}

	if mode == EvidenceFull {
		writeSignals(b, ds, ex, ok, concept, rec)
	}
	b.WriteString("\n")
}

// writeSignals appends the behavioral evidence lines. Absent signals
// produce no line rather than a placeholder.
func writeSignals(b *strings.Builder, ds *dataset.Dataset, ex dataset.Exercise, haveEx bool, concept dataset.Concept, rec dataset.Interaction) {
	if haveEx {
		if label, ok := difficultyLabels[ex.Difficulty]; ok {
			fmt.Fprintf(b, "  - Question Difficulty: %s (Level %d)\n", label, ex.Difficulty)
		}
	}

	sig := rec.Signals
	if sig.PerceivedDifficulty != nil {
		if label, ok := perceivedLabels[*sig.PerceivedDifficulty]; ok {
			fmt.Fprintf(b, "  - Student's Perceived Difficulty: %s (Level %d)\n", label, *sig.PerceivedDifficulty)
		}
	}
	if sig.Confidence != nil {
		if label, ok := confidenceLabels[*sig.Confidence]; ok {
			fmt.Fprintf(b, "  - Confidence Level: %s (%d/3)\n", label, *sig.Confidence)
		}
	}
	if sig.HintUsed != nil {
		if *sig.HintUsed {
			b.WriteString("  - Used Hint: Yes\n")
		} else {
			b.WriteString("  - Used Hint: No\n")
		}
	}
	if sig.ChoiceChanges != nil {
		changes := *sig.ChoiceChanges
		fmt.Fprintf(b, "  - Answer Changes: %d", changes)
		switch {
		case changes > 2:
			b.WriteString(" (significant hesitation)")
		case changes > 0:
			b.WriteString(" (some hesitation)")
		}
		b.WriteString("\n")
	}
	if sig.DurationSec != nil && *sig.DurationSec > 0 {
		dur := *sig.DurationSec
		fmt.Fprintf(b, "  - Time Spent: %.1f seconds", dur)
		switch {
		case dur > 120:
			b.WriteString(" (took longer time)")
		case dur < 10:
			b.WriteString(" (answered quickly)")
		}
		b.WriteString("\n")
	}

	if haveEx {
		var others []string
		for _, cid := range ex.ConceptIDs {
			if cid == concept.ID {
				continue
			}
			if c, ok := ds.Concept(cid); ok {
				others = append(others, c.Name)
			}
		}
		if len(others) > 0 {
			fmt.Fprintf(b, "  - Other concepts in this question: %s\n", strings.Join(others, ", "))
		}
	}
}

const taskInstruction = taskBody + textOutputFormat

const taskBody = `--- ASSESSMENT TASK ---

Based on the exam performance records above, evaluate the student's mastery level of this knowledge component.

Choose ONE mastery level from: [Novice, Developing, Proficient, Mastered]

Level Definitions:
- Novice: Limited understanding, frequent errors, low confidence
- Developing: Partial understanding, inconsistent performance, needs improvement
- Proficient: Solid understanding, mostly correct answers, occasional mistakes on complex questions
- Mastered: Comprehensive understanding, consistently correct, high confidence across all difficulty levels

Provide:
1. Your chosen mastery level
2. Detailed rationale citing specific question performances and behavioral patterns
3. Actionable suggestions for improvement (if applicable)

`

const textOutputFormat = `--- OUTPUT FORMAT ---
Please structure your response exactly as follows:

Mastery Level: <Your chosen level>

Rationale: <Detailed explanation with specific evidence from the exam records>

Suggestions: <Actionable recommendations for the student>
`

// structuredOutputFormat replaces the labeled contract when the request
// carries a JSON schema; the provider enforces the schema itself.
const structuredOutputFormat = `--- OUTPUT FORMAT ---
Return a single JSON object with the fields "mastery_level", "rationale", and "suggestions".
`
