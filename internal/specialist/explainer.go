package specialist

import (
	"context"
	"fmt"
	"strings"

	"tutord/internal/decision"
	"tutord/internal/llm"
)

const explainerSystem = `You are a patient tutor explaining one concept to one student.
You speak directly to the student. You adapt to their grade level, use
fresh examples, and never repeat an approach that already failed.`

// Explainer produces explanations and clarifications.
type Explainer struct {
	gen llm.Generator
}

// NewExplainer creates the explainer specialist.
func NewExplainer(gen llm.Generator) *Explainer {
	return &Explainer{gen: gen}
}

// Name implements Runner.
func (e *Explainer) Name() decision.Specialist { return decision.SpecialistExplainer }

// Run implements Runner.
func (e *Explainer) Run(ctx context.Context, in Input) (Result, error) {
	var b strings.Builder
	b.WriteString(studentContext(in))
	b.WriteString("\n")
	b.WriteString(guidelinesBlock(in.Session))

	if req, ok := in.Requirements.(*decision.ExplainerRequirements); ok && req != nil {
		b.WriteString("\nGuidance for this explanation:\n")
		fmt.Fprintf(&b, "Reason: %s\n", req.TriggerReason)
		if req.TriggerDetails != "" {
			fmt.Fprintf(&b, "Details: %s\n", req.TriggerDetails)
		}
		if req.FocusArea != "" {
			fmt.Fprintf(&b, "Focus on: %s\n", req.FocusArea)
		}
		if req.ConfusionPoint != "" {
			fmt.Fprintf(&b, "The student is stuck on: %s\n", req.ConfusionPoint)
		}
		if req.RecommendedApproach != "" {
			fmt.Fprintf(&b, "Approach: %s\n", req.RecommendedApproach)
		}
		if len(req.AvoidApproaches) > 0 {
			fmt.Fprintf(&b, "Do NOT reuse these examples or analogies: %s\n", strings.Join(req.AvoidApproaches, "; "))
		}
		if req.LengthGuidance != "" {
			fmt.Fprintf(&b, "Length: %s\n", req.LengthGuidance)
		}
		if req.Tone != "" {
			fmt.Fprintf(&b, "Tone: %s\n", req.Tone)
		}
		if req.IncludeCheckQuestion {
			b.WriteString("End with one short question that checks understanding.\n")
		}
	}

	// An evaluator that ran earlier this turn tells us what went wrong.
	if prior, ok := in.Prior[decision.SpecialistEvaluator]; ok && prior.Evaluation != nil {
		fmt.Fprintf(&b, "\nThe student's answer was just evaluated: %s\n", prior.Evaluation.Feedback)
		if len(prior.Evaluation.Misconceptions) > 0 {
			fmt.Fprintf(&b, "Misconceptions to address: %s\n", strings.Join(prior.Evaluation.Misconceptions, "; "))
		}
	}

	b.WriteString(`
Respond with JSON only:
{
  "explanation": "what you say to the student",
  "examples": ["short labels of examples used"],
  "analogies": ["short labels of analogies used"],
  "key_points": ["main points made"],
  "check_question": "optional short check question, or empty"
}`)

	var out Explanation
	if err := llm.GenerateJSON(ctx, e.gen, llm.Request{
		System: explainerSystem,
		Prompt: b.String(),
		Effort: llm.EffortDeep,
	}, &out); err != nil {
		return Result{}, fmt.Errorf("explainer: %w", err)
	}
	return Result{Name: e.Name(), Explanation: &out}, nil
}
