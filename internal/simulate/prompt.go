package simulate

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/hanyuliu/simlearn/internal/dataset"
	"github.com/hanyuliu/simlearn/internal/memory"
)

// conceptOptions builds the Task 2 option list: the exercise's primary
// concept plus two distractors sampled from concepts outside the
// exercise's full concept set, shuffled. Sampling from outside the concept
// set guarantees the true concept never appears twice. rng must be seeded
// per item for reproducibility.
func conceptOptions(ds *dataset.Dataset, ex dataset.Exercise, rng *rand.Rand) []string {
	primary, ok := ds.PrimaryConcept(ex)
	if !ok {
		return nil
	}

	tagged := make(map[string]bool, len(ex.ConceptIDs))
	for _, cid := range ex.ConceptIDs {
		tagged[cid] = true
	}

	var pool []string
	for _, cid := range ds.ConceptIDs() {
		if !tagged[cid] {
			pool = append(pool, cid)
		}
	}
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	options := []string{primary.Name}
	for _, cid := range pool {
		if len(options) == 3 {
			break
		}
		if c, ok := ds.Concept(cid); ok {
			options = append(options, c.Name)
		}
	}
	rng.Shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })
	return options
}

// buildUserMessage assembles the simulation prompt for one test exercise:
// the question with its choices in stored order, the memory context the
// mode allows, and the fixed four-task block.
func buildUserMessage(ds *dataset.Dataset, ex dataset.Exercise, conceptName string, memCtx memory.Context, options []string) string {
	var b strings.Builder

	b.WriteString("=== The Question in Front of You ===\n")
	fmt.Fprintf(&b, "Question: %s\n", strings.TrimSpace(ex.Content))

	if len(ex.Choices) > 0 {
		b.WriteString("\nAnswer Choices:\n")
		for idx, ch := range ex.Choices {
			fmt.Fprintf(&b, "  %s. %s\n", dataset.ChoiceLetter(idx), strings.TrimSpace(ch.Text))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Topic: %s\n\n", conceptName)

	if memCtx.LongTerm != nil {
		b.WriteString(memory.RenderLongTerm(conceptName, *memCtx.LongTerm))
		b.WriteString("\n")
	}
	hasTutoring := memCtx.ShortTerm != nil
	if hasTutoring {
		b.WriteString(memory.RenderShortTerm(conceptName, *memCtx.ShortTerm))
		b.WriteString("\n")
	}

	b.WriteString("=== Now, Think Through This Question as This Student ===\n\n")

	b.WriteString("Task 1: Honestly predict - will you get this right?\n")
	fmt.Fprintf(&b, "        (Based on your knowledge and confidence about '%s')\n", conceptName)
	b.WriteString("        Think to yourself:\n")
	if hasTutoring {
		b.WriteString("          - Did I just review this topic? If so, I should feel more confident!\n")
		b.WriteString("          - Do the example problems I studied help me understand this question?\n")
		b.WriteString("          - Am I confident I can apply what I just learned?\n")
	} else {
		b.WriteString("          - Do I understand this concept well?\n")
		b.WriteString("          - Am I confident I can solve this correctly?\n")
	}
	b.WriteString("        Your honest prediction (Yes/No):\n\n")

	b.WriteString("Task 2: What topic does this question test?\n")
	b.WriteString("        (Based on what you see, which concept is this about?)\n")
	fmt.Fprintf(&b, "        Options: %s\n", strings.Join(options, ", "))
	b.WriteString("        Your identification:\n\n")

	b.WriteString("Task 3: How would you approach and solve this?\n")
	if hasTutoring {
		b.WriteString("        (Think about what you just reviewed - can you apply any of those concepts or methods here?)\n")
		b.WriteString("        (If this is similar to the example problems, follow that solving approach)\n")
	} else {
		b.WriteString("        (Write your thought process and reasoning as you naturally would)\n")
	}
	b.WriteString("        Your work:\n\n")

	if len(ex.Choices) > 0 {
		letters := make([]string, len(ex.Choices))
		for i := range ex.Choices {
			letters[i] = dataset.ChoiceLetter(i)
		}
		b.WriteString("Task 4: What is your final answer choice?\n")
		b.WriteString("        (Select the option you believe is correct)\n")
		fmt.Fprintf(&b, "        Available options: %s\n", strings.Join(letters, ", "))
		b.WriteString("        Your choice:\n\n")
	} else {
		b.WriteString("Task 4: Based on your work above, do you think your answer is correct?\n")
		b.WriteString("        Your confidence (Yes/No):\n\n")
	}

	b.WriteString("Output format:\n")
	b.WriteString("Task1: <Answer>\n")
	b.WriteString("Task2: <Answer>\n")
	b.WriteString("Task3: <Answer>\n")
	b.WriteString("Task4: <Answer>")

	return b.String()
}
