package specialist

import (
	"context"
	"fmt"
	"strings"

	"tutord/internal/decision"
	"tutord/internal/llm"
)

const plannerSystem = `You adapt a fixed study plan to one student's progress. You recommend
jumps, skips, and remediation only when the mastery evidence supports
them; the default is to keep the plan as written.`

// Planner recommends study-plan adjustments from mastery evidence.
type Planner struct {
	gen llm.Generator
}

// NewPlanner creates the planner specialist.
func NewPlanner(gen llm.Generator) *Planner {
	return &Planner{gen: gen}
}

// Name implements Runner.
func (p *Planner) Name() decision.Specialist { return decision.SpecialistPlanner }

// Run implements Runner.
func (p *Planner) Run(ctx context.Context, in Input) (Result, error) {
	var b strings.Builder
	b.WriteString(studentContext(in))
	sess := in.Session

	if sess.Topic != nil {
		b.WriteString("\nFull study plan:\n")
		for _, step := range sess.Topic.Plan.Steps {
			marker := " "
			if step.ID == sess.CurrentStep {
				marker = ">"
			}
			mastery := sess.Mastery[step.Concept]
			fmt.Fprintf(&b, "%s step %d: %s on %q (mastery %.2f)\n", marker, step.ID, step.Type, step.Concept, mastery)
		}
	}
	for _, m := range sess.Misconceptions {
		if !m.Resolved {
			fmt.Fprintf(&b, "Unresolved misconception [%s]: %s\n", m.Concept, m.Description)
		}
	}

	if req, ok := in.Requirements.(*decision.PlannerRequirements); ok && req != nil {
		b.WriteString("\nGuidance:\n")
		fmt.Fprintf(&b, "Trigger: %s\n", req.Trigger)
		if req.Urgency != "" {
			fmt.Fprintf(&b, "Urgency: %s\n", req.Urgency)
		}
		if req.ConsiderSkipping {
			b.WriteString("Skipping mastered steps is on the table.\n")
		}
		if req.ConsiderRemediation {
			b.WriteString("Stepping back to earlier material is on the table.\n")
		}
		if req.TargetConcept != "" {
			fmt.Fprintf(&b, "The student asked to work on: %s\n", req.TargetConcept)
		}
	}

	b.WriteString(`
Respond with JSON only:
{
  "recommended_step": 0,
  "skip_steps": [],
  "remediation_needed": false,
  "rationale": "why",
  "new_pace": "slower|same|faster"
}
recommended_step is the plan step to move to, or 0 to stay. Only
recommend steps that exist in the plan.`)

	var out PlanAdjustment
	if err := llm.GenerateJSON(ctx, p.gen, llm.Request{
		System: plannerSystem,
		Prompt: b.String(),
		Effort: llm.EffortStandard,
	}, &out); err != nil {
		return Result{}, fmt.Errorf("planner: %w", err)
	}
	if sess.Topic != nil && out.RecommendedStep > sess.Topic.Plan.TotalSteps() {
		return Result{}, fmt.Errorf("planner: recommended step %d beyond plan end %d", out.RecommendedStep, sess.Topic.Plan.TotalSteps())
	}
	return Result{Name: p.Name(), Plan: &out}, nil
}
