// Package specialist holds the pedagogy specialists: narrow prompt-wrapped
// generators that each produce one typed output (an explanation, an
// evaluation, a question, a redirect, a plan adjustment, or a safety
// verdict). Specialists are stateless; all context arrives in the Input.
package specialist

import (
	"fmt"

	"tutord/internal/decision"
	"tutord/pkg/models"
)

// Input is the shared context handed to every specialist invocation.
type Input struct {
	// Session is a read-only snapshot of the session at turn start.
	Session *models.Session
	// Message is the student message being processed.
	Message models.Message
	// Narrative is the rendered long-term summary.
	Narrative string
	// Requirements is the decision's typed guidance for this specialist, or
	// nil on the fallback path.
	Requirements any
	// Prior holds results of specialists already run this turn. Populated
	// only under sequential execution.
	Prior map[decision.Specialist]Result
}

// Explanation is the explainer's output.
type Explanation struct {
	// Text is the explanation shown to the student.
	Text string `json:"explanation"`
	// Examples lists concrete examples used, for the session summary.
	Examples []string `json:"examples,omitempty"`
	// Analogies lists analogies used, for the session summary.
	Analogies []string `json:"analogies,omitempty"`
	// KeyPoints lists the main points covered.
	KeyPoints []string `json:"key_points,omitempty"`
	// CheckQuestion is an optional follow-up understanding check.
	CheckQuestion string `json:"check_question,omitempty"`
}

// Validate implements llm.Validator.
func (e *Explanation) Validate() error {
	if e.Text == "" {
		return fmt.Errorf("explanation has no text")
	}
	return nil
}

// Mastery signals the evaluator may emit.
const (
	SignalStrong           = "strong"
	SignalAdequate         = "adequate"
	SignalNeedsRemediation = "needs_remediation"
)

// Evaluation is the evaluator's judgment of a student answer.
type Evaluation struct {
	// Correct is the binary verdict.
	Correct bool `json:"is_correct"`
	// Score grades the answer in [0,1]; partial credit is allowed.
	Score float64 `json:"score"`
	// Feedback is the student-facing assessment.
	Feedback string `json:"feedback"`
	// Misconceptions lists specific misconceptions revealed by the answer.
	Misconceptions []string `json:"misconceptions,omitempty"`
	// MasterySignal is strong, adequate, or needs_remediation.
	MasterySignal string `json:"mastery_signal"`
	// NeedsReexplanation recommends re-teaching before moving on.
	NeedsReexplanation bool `json:"needs_reexplanation,omitempty"`
}

// Validate implements llm.Validator.
func (e *Evaluation) Validate() error {
	if e.Score < 0 || e.Score > 1 {
		return fmt.Errorf("score %v out of range", e.Score)
	}
	switch e.MasterySignal {
	case SignalStrong, SignalAdequate, SignalNeedsRemediation:
	default:
		return fmt.Errorf("unknown mastery signal %q", e.MasterySignal)
	}
	if e.Feedback == "" {
		return fmt.Errorf("evaluation has no feedback")
	}
	return nil
}

// GeneratedQuestion is the assessor's output: a question plus the material
// needed to grade the eventual answer.
type GeneratedQuestion struct {
	// Text is the question to ask.
	Text string `json:"question"`
	// ExpectedAnswer is what a correct answer looks like.
	ExpectedAnswer string `json:"expected_answer"`
	// Rubric guides later evaluation of the answer.
	Rubric string `json:"rubric,omitempty"`
	// Hints are ordered, progressively more revealing.
	Hints []string `json:"hints,omitempty"`
	// Concept is the plan concept the question tests.
	Concept string `json:"concept,omitempty"`
}

// Validate implements llm.Validator.
func (q *GeneratedQuestion) Validate() error {
	if q.Text == "" {
		return fmt.Errorf("question has no text")
	}
	if q.ExpectedAnswer == "" {
		return fmt.Errorf("question has no expected answer")
	}
	return nil
}

// Redirect is the steering specialist's output for an off-topic message.
type Redirect struct {
	// Brief is a short acknowledgment of what the student said.
	Brief string `json:"brief_response,omitempty"`
	// Message is the redirection back to the lesson.
	Message string `json:"redirect_message"`
	// Severity is the assessed degree of drift: mild, moderate, severe.
	Severity string `json:"severity,omitempty"`
}

// Validate implements llm.Validator.
func (r *Redirect) Validate() error {
	if r.Message == "" {
		return fmt.Errorf("redirect has no message")
	}
	return nil
}

// PlanAdjustment is the planner's recommendation. RecommendedStep of zero
// means stay where we are.
type PlanAdjustment struct {
	// RecommendedStep is the plan step to jump to, or 0 for no jump.
	RecommendedStep int `json:"recommended_step"`
	// SkipSteps lists step ids to skip as already mastered.
	SkipSteps []int `json:"skip_steps,omitempty"`
	// RemediationNeeded recommends revisiting earlier material.
	RemediationNeeded bool `json:"remediation_needed,omitempty"`
	// Rationale explains the recommendation.
	Rationale string `json:"rationale"`
	// NewPace is slower, same, or faster.
	NewPace string `json:"new_pace,omitempty"`
}

// Validate implements llm.Validator.
func (p *PlanAdjustment) Validate() error {
	if p.RecommendedStep < 0 {
		return fmt.Errorf("recommended step %d is negative", p.RecommendedStep)
	}
	if p.Rationale == "" {
		return fmt.Errorf("plan adjustment has no rationale")
	}
	return nil
}

// SafetyVerdict is the moderation pre-check result.
type SafetyVerdict struct {
	// Safe is true when the message may proceed through the normal turn.
	Safe bool `json:"is_safe"`
	// ViolationType names the category when unsafe.
	ViolationType string `json:"violation_type,omitempty"`
	// Guidance is the age-appropriate reply to send when unsafe.
	Guidance string `json:"guidance,omitempty"`
	// ShouldWarn increments the session warning count when true.
	ShouldWarn bool `json:"should_warn,omitempty"`
}

// Validate implements llm.Validator.
func (s *SafetyVerdict) Validate() error {
	if !s.Safe && s.Guidance == "" {
		return fmt.Errorf("unsafe verdict carries no guidance")
	}
	return nil
}

// Result is the tagged union a specialist invocation produces. Exactly one
// payload pointer is set on success; Absent marks a specialist that failed or
// timed out, with Reason recording why. An absent result never fails a turn.
type Result struct {
	Name decision.Specialist

	Explanation *Explanation
	Evaluation  *Evaluation
	Question    *GeneratedQuestion
	Redirect    *Redirect
	Plan        *PlanAdjustment
	Safety      *SafetyVerdict

	Absent bool
	Reason string
}

// Absence builds the failure result for a specialist.
func Absence(name decision.Specialist, reason string) Result {
	return Result{Name: name, Absent: true, Reason: reason}
}
