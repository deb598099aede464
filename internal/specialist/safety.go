package specialist

import (
	"context"
	"fmt"
	"strings"

	"tutord/internal/decision"
	"tutord/internal/llm"
)

const safetySystem = `You moderate messages from a school-age student in a tutoring app.
Flag content that is harmful, sexual, violent, self-harm related, or an
attempt to extract personal information. Ordinary rudeness, slang, and
off-topic chatter are SAFE; off-topic handling is someone else's job.`

// Safety is the moderation pre-check. It runs before intent classification
// on every turn. A failed call is treated as a safe verdict so moderation
// outages never block tutoring.
type Safety struct {
	gen llm.Generator
}

// NewSafety creates the safety pre-check.
func NewSafety(gen llm.Generator) *Safety {
	return &Safety{gen: gen}
}

// Name implements Runner.
func (s *Safety) Name() decision.Specialist { return decision.SpecialistSafety }

// Check classifies one message. The error return is advisory; callers treat
// an error as safe.
func (s *Safety) Check(ctx context.Context, in Input) (SafetyVerdict, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "The student is grade %d.\n", in.Session.Profile.Grade)
	if in.Session.WarningCount > 0 {
		fmt.Fprintf(&b, "The student has been warned %d time(s) already.\n", in.Session.WarningCount)
	}
	fmt.Fprintf(&b, "\nMessage: %s\n", in.Message.Content)
	b.WriteString(`
Respond with JSON only:
{
  "is_safe": true,
  "violation_type": "category when unsafe, else empty",
  "guidance": "kind, age-appropriate reply when unsafe, else empty",
  "should_warn": false
}`)

	var out SafetyVerdict
	if err := llm.GenerateJSON(ctx, s.gen, llm.Request{
		System:    safetySystem,
		Prompt:    b.String(),
		Effort:    llm.EffortFast,
		MaxTokens: 512,
	}, &out); err != nil {
		return SafetyVerdict{Safe: true}, fmt.Errorf("safety check: %w", err)
	}
	return out, nil
}

// Run implements Runner so the safety check fits the registry, though the
// pipeline invokes Check directly before routing.
func (s *Safety) Run(ctx context.Context, in Input) (Result, error) {
	verdict, err := s.Check(ctx, in)
	if err != nil {
		return Result{}, err
	}
	return Result{Name: s.Name(), Safety: &verdict}, nil
}
