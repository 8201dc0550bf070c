package tutoring

import (
	"fmt"
	"strings"

	"github.com/hanyuliu/simlearn/internal/dataset"
)

const systemPrompt = `You are an experienced tutoring teacher. For EACH concept listed by the student you will produce remedial material. Your task per concept:
1. State the key ideas the student must hold onto
2. Name the misconceptions that typically cause wrong answers
3. For each practice example, show the step-by-step solution AND explicitly connect it to the concept

Output format. Repeat this block once per concept, starting each block with the exact concept marker line:

Concept: <concept name>
Key Points:
- <key idea>
- <key idea>
Misconceptions:
- <typical misconception>
Example <question id>:
Solution: <step-by-step process>
Connection: <how this example demonstrates the concept>`

// maxExampleChars truncates long question texts in the prompt.
const maxExampleChars = 150

// conceptExamples pairs one weak concept with its selected example
// exercises.
type conceptExamples struct {
	Concept  dataset.Concept
	Examples []dataset.Exercise
}

// buildUserMessage renders one batched request covering several weak
// concepts with their example exercises and correct answers.
func buildUserMessage(studentID string, batch []conceptExamples) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Student ID: %s\n", studentID)
	fmt.Fprintf(&b, "Weak concepts to cover: %d\n", len(batch))

	for _, ce := range batch {
		fmt.Fprintf(&b, "\nConcept: %s\n", ce.Concept.Name)
		if ce.Concept.Description != "" {
			fmt.Fprintf(&b, "Concept Description: %s\n", ce.Concept.Description)
		}

		if len(ce.Examples) == 0 {
			b.WriteString("Practice Examples: none available\n")
			continue
		}
		b.WriteString("Practice Examples:\n")
		for i, ex := range ce.Examples {
			content := strings.TrimSpace(ex.Content)
			if len(content) > maxExampleChars {
				content = content[:maxExampleChars] + "..."
			}
			fmt.Fprintf(&b, "\nExample %d (Question ID: %s):\n%s\n", i+1, ex.ID, content)
			for idx, ch := range ex.Choices {
				fmt.Fprintf(&b, "%s. %s\n", dataset.ChoiceLetter(idx), strings.TrimSpace(ch.Text))
			}
			for idx, ch := range ex.Choices {
				if ch.Correct {
					fmt.Fprintf(&b, "Correct Answer: %s\n", dataset.ChoiceLetter(idx))
					break
				}
			}
		}
	}

	return b.String()
}
