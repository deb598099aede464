package specialist

import (
	"context"
	"fmt"
	"strings"

	"tutord/internal/decision"
	"tutord/internal/llm"
)

const steeringSystem = `You bring a distracted student back to the lesson. You are warm but
brief: acknowledge what they said in one sentence at most, then pull
them back to the current step. You never lecture about being off topic.`

// Steering redirects off-topic messages back to the lesson.
type Steering struct {
	gen llm.Generator
}

// NewSteering creates the steering specialist.
func NewSteering(gen llm.Generator) *Steering {
	return &Steering{gen: gen}
}

// Name implements Runner.
func (s *Steering) Name() decision.Specialist { return decision.SpecialistSteering }

// Run implements Runner.
func (s *Steering) Run(ctx context.Context, in Input) (Result, error) {
	var b strings.Builder
	b.WriteString(studentContext(in))
	b.WriteString("\n")
	b.WriteString(guidelinesBlock(in.Session))

	fmt.Fprintf(&b, "\nThe student has gone off topic %d time(s) before this.\n", in.Session.OffTopicCount)

	if req, ok := in.Requirements.(*decision.SteeringRequirements); ok && req != nil {
		if req.Severity != "" {
			fmt.Fprintf(&b, "Drift severity: %s\n", req.Severity)
		}
		if req.Firmness != "" {
			fmt.Fprintf(&b, "Firmness: %s\n", req.Firmness)
		}
		if !req.Acknowledge {
			b.WriteString("Skip the acknowledgment, redirect directly.\n")
		}
	}

	b.WriteString(`
Respond with JSON only:
{
  "brief_response": "one-sentence acknowledgment, or empty",
  "redirect_message": "how you pull the student back to the current step",
  "severity": "mild|moderate|severe"
}`)

	var out Redirect
	if err := llm.GenerateJSON(ctx, s.gen, llm.Request{
		System: steeringSystem,
		Prompt: b.String(),
		Effort: llm.EffortFast,
	}, &out); err != nil {
		return Result{}, fmt.Errorf("steering: %w", err)
	}
	return Result{Name: s.Name(), Redirect: &out}, nil
}
