package specialist

import (
	"fmt"
	"strings"

	"tutord/pkg/models"
)

// studentContext renders the shared prompt preamble every specialist sees:
// the lesson position, the student profile, the long-term narrative, and the
// verbatim recent dialogue.
func studentContext(in Input) string {
	var b strings.Builder
	sess := in.Session

	if sess.Topic != nil {
		fmt.Fprintf(&b, "Topic: %s (%s, grade %d)\n", sess.Topic.Name, sess.Topic.Subject, sess.Topic.GradeLevel)
	}
	if step := sess.CurrentStepData(); step != nil {
		fmt.Fprintf(&b, "Current step %d/%d: %s on %q\n", sess.CurrentStep, sess.Topic.Plan.TotalSteps(), step.Type, step.Concept)
	}
	fmt.Fprintf(&b, "Student: grade %d, language level %s\n", sess.Profile.Grade, sess.Profile.LanguageLevel)
	if len(sess.Profile.PreferredExamples) > 0 {
		fmt.Fprintf(&b, "Student responds well to examples about: %s\n", strings.Join(sess.Profile.PreferredExamples, ", "))
	}

	if in.Narrative != "" {
		b.WriteString("\nSession so far:\n")
		b.WriteString(in.Narrative)
		b.WriteString("\n")
	}

	if len(sess.History) > 0 {
		b.WriteString("\nRecent dialogue:\n")
		for _, m := range sess.History {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
	}

	fmt.Fprintf(&b, "\nStudent's new message: %s\n", in.Message.Content)
	return b.String()
}

// guidelinesBlock renders topic tone guidelines when present.
func guidelinesBlock(sess *models.Session) string {
	if sess.Topic == nil {
		return ""
	}
	g := sess.Topic.Guidelines
	var parts []string
	if len(g.LearningObjectives) > 0 {
		parts = append(parts, "Learning objectives: "+strings.Join(g.LearningObjectives, "; "))
	}
	if len(g.PrerequisiteConcepts) > 0 {
		parts = append(parts, "Assumed prior knowledge: "+strings.Join(g.PrerequisiteConcepts, "; "))
	}
	if len(g.CommonMisconceptions) > 0 {
		parts = append(parts, "Common misconceptions to watch for: "+strings.Join(g.CommonMisconceptions, "; "))
	}
	if g.TeachingApproach != "" {
		parts = append(parts, "Teaching approach: "+g.TeachingApproach)
	}
	if len(parts) == 0 {
		return ""
	}
	return "Guidelines:\n" + strings.Join(parts, "\n") + "\n"
}
