// Package simulate plays a student answering their held-out test exercises
// through an LLM, conditioned on a profile built from training history and
// whatever memory the ablation mode allows.
package simulate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hanyuliu/simlearn/internal/dataset"
)

// Profile buckets a student's training statistics into the coarse traits
// the simulated persona is described with. All statistics come from the
// training segment only.
type Profile struct {
	StudentID   string
	SuccessRate string // high / medium / low
	Ability     string // good / common / poor
	Activity    string // high / medium / low
	Diversity   string // high / medium / low
	Preference  string // name of the most practiced concept
}

// BuildProfile derives a profile from the student's training interactions.
// totalConcepts is the curriculum size used for the breadth ratio.
func BuildProfile(ds *dataset.Dataset, studentID string, train []dataset.Interaction, totalConcepts int) Profile {
	p := Profile{
		StudentID:   studentID,
		SuccessRate: "medium",
		Ability:     "common",
		Activity:    "medium",
		Diversity:   "low",
		Preference:  "N/A",
	}
	if len(train) == 0 {
		return p
	}

	correct := 0
	conceptCounts := make(map[string]int)
	for _, rec := range train {
		if rec.Correct {
			correct++
		}
		ex, ok := ds.Exercise(rec.ExerciseID)
		if !ok {
			continue
		}
		for _, cid := range ex.ConceptIDs {
			conceptCounts[cid]++
		}
	}

	rate := float64(correct) / float64(len(train))
	switch {
	case rate > 0.6:
		p.SuccessRate = "high"
	case rate > 0.3:
		p.SuccessRate = "medium"
	default:
		p.SuccessRate = "low"
	}
	switch {
	case rate > 0.5:
		p.Ability = "good"
	case rate > 0.4:
		p.Ability = "common"
	default:
		p.Ability = "poor"
	}
	switch {
	case len(train) > 200:
		p.Activity = "high"
	case len(train) > 50:
		p.Activity = "medium"
	default:
		p.Activity = "low"
	}

	if totalConcepts > 0 {
		ratio := float64(len(conceptCounts)) / float64(totalConcepts)
		switch {
		case ratio > 0.75:
			p.Diversity = "high"
		case ratio > 0.4:
			p.Diversity = "medium"
		default:
			p.Diversity = "low"
		}
	}

	if modal := modalConcept(conceptCounts); modal != "" {
		if c, ok := ds.Concept(modal); ok {
			p.Preference = c.Name
		}
	}

	return p
}

// modalConcept picks the most practiced concept ID, ties broken by ID for
// determinism.
func modalConcept(counts map[string]int) string {
	ids := make([]string, 0, len(counts))
	for cid := range counts {
		ids = append(ids, cid)
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

var activityDescriptions = map[string]string{
	"high":   "You practice frequently and stay engaged with learning",
	"medium": "You practice occasionally when needed",
	"low":    "You practice rarely and prefer familiar topics",
}

var diversityDescriptions = map[string]string{
	"high":   "You explore many different topics and concepts",
	"medium": "You focus on select topics that interest you",
	"low":    "You stick to familiar topics you feel comfortable with",
}

// SystemPrompt renders the persona instruction block for this profile.
func (p Profile) SystemPrompt() string {
	var b strings.Builder
	b.WriteString("You ARE a student with these learning characteristics:\n\n")
	b.WriteString("Your Learning Profile:\n")
	fmt.Fprintf(&b, "  - Activity Level: %s - %s\n", p.Activity, activityDescriptions[p.Activity])
	fmt.Fprintf(&b, "  - Knowledge Breadth: %s - %s\n", p.Diversity, diversityDescriptions[p.Diversity])
	fmt.Fprintf(&b, "  - Typical Success Rate: %s\n", p.SuccessRate)
	fmt.Fprintf(&b, "  - Problem-Solving Ability: %s\n", p.Ability)
	fmt.Fprintf(&b, "  - Most Comfortable Topic: %s\n\n", p.Preference)
	b.WriteString(`How to Respond:
1. Think and answer as THIS student would - based on YOUR actual abilities and experiences
2. Be honest about your confidence level - don't overestimate or underestimate yourself
3. When predicting performance, reflect on YOUR past experiences with similar problems
4. If you're unsure or haven't mastered a concept, it's okay to predict 'No' - be realistic
5. Your responses should reflect your genuine thought process as this student
`)
	return b.String()
}
