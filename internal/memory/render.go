package memory

import (
	"fmt"
	"strings"

	"github.com/hanyuliu/simlearn/internal/mastery"
	"github.com/hanyuliu/simlearn/internal/tutoring"
)

// confidenceHints translates an assessed level into the self-confidence
// framing the simulated student reads about themselves.
var confidenceHints = map[mastery.Level]string{
	mastery.LevelNovice:     "Low Confidence - You are still learning this concept",
	mastery.LevelDeveloping: "Moderate Confidence - You have basic understanding but may struggle",
	mastery.LevelProficient: "Good Confidence - You have solid grasp of this concept",
	mastery.LevelMastered:   "High Confidence - You have mastered this concept",
}

// RenderLongTerm renders a mastery record as the student's first-person
// self-knowledge of the topic.
func RenderLongTerm(conceptName string, rec mastery.Record) string {
	hint, ok := confidenceHints[rec.Level]
	if !ok {
		hint = "Uncertain"
	}

	var b strings.Builder
	b.WriteString("=== Your Long-term Knowledge of This Topic ===\n")
	b.WriteString("Based on your accumulated learning experience:\n")
	fmt.Fprintf(&b, "You're looking at: %s\n", conceptName)
	fmt.Fprintf(&b, "You feel you are at: %s\n", rec.Level)
	fmt.Fprintf(&b, "Your confidence level: %s\n", hint)
	if rec.Rationale != "" {
		fmt.Fprintf(&b, "You've noticed: %s\n", rec.Rationale)
	}
	b.WriteString("Keep this self-awareness in mind as you work through this question.\n")
	return b.String()
}

// RenderShortTerm renders a tutoring material as what the student just
// reviewed.
func RenderShortTerm(conceptName string, mat tutoring.Material) string {
	var b strings.Builder
	b.WriteString("=== What You Just Reviewed (Short-term Memory) ===\n")
	b.WriteString("You recently reviewed this specific topic:\n")
	fmt.Fprintf(&b, "Concept: %s\n", conceptName)

	if len(mat.KeyPoints) > 0 {
		b.WriteString("Key Points:\n")
		for _, p := range mat.KeyPoints {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	if len(mat.Misconceptions) > 0 {
		b.WriteString("Misconceptions to avoid:\n")
		for _, m := range mat.Misconceptions {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}
	for _, we := range mat.WorkedExamples {
		fmt.Fprintf(&b, "Example %s:\n", we.ExerciseID)
		if we.Solution != "" {
			fmt.Fprintf(&b, "Solution: %s\n", we.Solution)
		}
		if we.Connection != "" {
			fmt.Fprintf(&b, "Connection: %s\n", we.Connection)
		}
	}

	b.WriteString("How to use this review:\n")
	fmt.Fprintf(&b, "- This review is specifically about '%s' - exactly what this question tests.\n", conceptName)
	b.WriteString("- Apply the key points and methods you just studied directly to this problem.\n")
	b.WriteString("- Check if this question is similar to the example problems you reviewed.\n")
	b.WriteString("- Recall the common mistakes and solution strategies you learned.\n")
	return b.String()
}
