package simulate

import (
	"fmt"
	"regexp"
	"strings"
)

// IncompleteResponseError reports a simulation reply missing one or more of
// the four task lines. The item is recorded as missing, never defaulted.
type IncompleteResponseError struct {
	Missing []int
	Raw     string
}

func (e *IncompleteResponseError) Error() string {
	labels := make([]string, len(e.Missing))
	for i, n := range e.Missing {
		labels[i] = fmt.Sprintf("Task%d", n)
	}
	return fmt.Sprintf("simulate: response missing %s", strings.Join(labels, ", "))
}

// answers holds the four parsed task values.
type answers struct {
	Task1 string
	Task2 string
	Task3 string
	Task4 string
}

var taskLineRe = regexp.MustCompile(`(?i)^task\s*([1-4])\s*:\s*(.*)$`)

// parseResponse extracts the four labeled task lines, case-insensitively.
// Later duplicates of a task label overwrite earlier ones, matching a model
// that restates its final answers. All four must be present and non-empty.
func parseResponse(text string) (answers, error) {
	values := map[int]string{}

	for _, line := range strings.Split(text, "\n") {
		m := taskLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		n := int(m[1][0] - '0')
		values[n] = strings.TrimSpace(m[2])
	}

	var missing []int
	for n := 1; n <= 4; n++ {
		if values[n] == "" {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return answers{}, &IncompleteResponseError{Missing: missing, Raw: text}
	}

	return answers{
		Task1: values[1],
		Task2: values[2],
		Task3: values[3],
		Task4: values[4],
	}, nil
}
