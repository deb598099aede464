// Package decision implements the per-turn routing decision: intent
// classification, specialist selection, and per-specialist requirements,
// produced by one structured generation call with a deterministic rule-table
// fallback.
package decision

import (
	"fmt"
)

// Intent is the classified intent of a student message. The set is closed.
type Intent string

const (
	// IntentAnswering means the student is answering a pending question.
	IntentAnswering Intent = "answering"
	// IntentAsking means the student is asking for clarification.
	IntentAsking Intent = "asking"
	// IntentConfusion means the student is expressing confusion.
	IntentConfusion Intent = "expressing-confusion"
	// IntentOffTopic means the message is unrelated to the lesson.
	IntentOffTopic Intent = "off-topic"
	// IntentUnsafe means the message failed the safety pre-check. The decision
	// engine itself never emits this; it is set upstream.
	IntentUnsafe Intent = "unsafe"
	// IntentContinue means the student is ready to move on.
	IntentContinue Intent = "ready-to-continue"
)

// Valid returns true if the intent is a known value.
func (i Intent) Valid() bool {
	switch i {
	case IntentAnswering, IntentAsking, IntentConfusion, IntentOffTopic, IntentUnsafe, IntentContinue:
		return true
	default:
		return false
	}
}

// Specialist names the content-generating specialists the decision can route to.
type Specialist string

const (
	// SpecialistExplainer generates explanations and clarifications.
	SpecialistExplainer Specialist = "explainer"
	// SpecialistEvaluator assesses student answers and detects misconceptions.
	SpecialistEvaluator Specialist = "evaluator"
	// SpecialistAssessor generates check and practice questions.
	SpecialistAssessor Specialist = "assessor"
	// SpecialistSteering redirects off-topic messages back to the lesson.
	SpecialistSteering Specialist = "steering"
	// SpecialistPlanner recommends study-plan adjustments.
	SpecialistPlanner Specialist = "planner"
	// SpecialistSafety is the content-moderation pre-check. It runs before the
	// decision engine and is never part of a routing decision.
	SpecialistSafety Specialist = "safety"
)

// Valid returns true if the specialist name is a known routing target.
func (s Specialist) Valid() bool {
	switch s {
	case SpecialistExplainer, SpecialistEvaluator, SpecialistAssessor, SpecialistSteering, SpecialistPlanner:
		return true
	default:
		return false
	}
}

// Strategy selects how the coordinator executes the chosen specialists.
type Strategy string

const (
	// StrategyParallel invokes all specialists concurrently.
	StrategyParallel Strategy = "parallel"
	// StrategySequential invokes specialists in listed order, each seeing the
	// results of those run before it.
	StrategySequential Strategy = "sequential"
)

// Valid returns true if the strategy is a known value.
func (s Strategy) Valid() bool {
	return s == StrategyParallel || s == StrategySequential
}

// ExplainerRequirements is strategic guidance for the explainer: why it is
// being called, what to focus on, how to approach it, and what to avoid.
type ExplainerRequirements struct {
	// TriggerReason is why an explanation is needed (wrong_answer,
	// explicit_confusion, clarification_request, initial_explanation, ...).
	TriggerReason string `json:"trigger_reason"`
	// TriggerDetails carries the specific context, e.g. the student's words.
	TriggerDetails string `json:"trigger_details,omitempty"`
	// FocusArea is the specific aspect to focus on.
	FocusArea string `json:"focus_area"`
	// ConfusionPoint is what specifically confused the student, if known.
	ConfusionPoint string `json:"confusion_point,omitempty"`
	// RecommendedApproach is the suggested explanation strategy
	// (different_analogy, step_by_step, connect_to_known, ...).
	RecommendedApproach string `json:"recommended_approach,omitempty"`
	// AvoidApproaches lists examples and analogies that were already used or
	// already failed. Drawn from the session narrative.
	AvoidApproaches []string `json:"avoid_approaches,omitempty"`
	// LengthGuidance is brief, moderate, or thorough.
	LengthGuidance string `json:"length_guidance,omitempty"`
	// Tone is the emotional register (encouraging, celebratory, neutral, patient).
	Tone string `json:"tone,omitempty"`
	// IncludeCheckQuestion asks for a follow-up understanding check.
	IncludeCheckQuestion bool `json:"include_check_question,omitempty"`
}

// EvaluatorRequirements is strategic guidance for the evaluator.
type EvaluatorRequirements struct {
	// Focus is what to evaluate for (correctness_only, deep_understanding,
	// misconception_detection, partial_credit).
	Focus string `json:"focus,omitempty"`
	// ExpectedLevel is the level of understanding to expect at this stage.
	ExpectedLevel string `json:"expected_level,omitempty"`
	// BeLenient relaxes scoring for a struggling student.
	BeLenient bool `json:"be_lenient,omitempty"`
	// WatchForMisconception names a specific misconception to check for.
	WatchForMisconception string `json:"watch_for_misconception,omitempty"`
}

// AssessorRequirements is strategic guidance for the assessor.
type AssessorRequirements struct {
	// Purpose is why the question is being asked (quick_check, probe_depth,
	// build_confidence, challenge).
	Purpose string `json:"purpose,omitempty"`
	// Difficulty is easy, medium, or hard.
	Difficulty string `json:"difficulty,omitempty"`
	// ConceptsToTest lists the concepts the question should cover.
	ConceptsToTest []string `json:"concepts_to_test,omitempty"`
	// AvoidQuestionStyles lists question styles to avoid repeating.
	AvoidQuestionStyles []string `json:"avoid_question_styles,omitempty"`
}

// SteeringRequirements is strategic guidance for off-topic redirection.
type SteeringRequirements struct {
	// Severity is how far off-topic the message is (mild, moderate, severe).
	Severity string `json:"severity,omitempty"`
	// Acknowledge asks for a brief acknowledgment before redirecting.
	Acknowledge bool `json:"acknowledge,omitempty"`
	// Firmness is how firmly to redirect (gentle, firm, strict).
	Firmness string `json:"firmness,omitempty"`
}

// PlannerRequirements is strategic guidance for plan adaptation.
type PlannerRequirements struct {
	// Trigger is why adaptation is needed (repeated_failure, rapid_mastery,
	// student_request, pace_mismatch).
	Trigger string `json:"trigger"`
	// Urgency is low, medium, or high.
	Urgency string `json:"urgency,omitempty"`
	// ConsiderSkipping allows skipping ahead past mastered content.
	ConsiderSkipping bool `json:"consider_skipping,omitempty"`
	// ConsiderRemediation allows stepping back to earlier concepts.
	ConsiderRemediation bool `json:"consider_remediation,omitempty"`
	// TargetConcept is the concept the student asked to jump to, if any.
	TargetConcept string `json:"target_concept,omitempty"`
}

// Requirements is the closed union of per-specialist requirement payloads.
// Exactly the specialists named in the decision may have an entry.
type Requirements struct {
	Explainer *ExplainerRequirements `json:"explainer,omitempty"`
	Evaluator *EvaluatorRequirements `json:"evaluator,omitempty"`
	Assessor  *AssessorRequirements  `json:"assessor,omitempty"`
	Steering  *SteeringRequirements  `json:"steering,omitempty"`
	Planner   *PlannerRequirements   `json:"planner,omitempty"`
}

// Has reports whether a requirements entry exists for the specialist.
func (r Requirements) Has(name Specialist) bool {
	return r.For(name) != nil
}

// For returns the requirements payload for a specialist, or nil. The returned
// value is one of the typed requirement structs.
func (r Requirements) For(name Specialist) any {
	switch name {
	case SpecialistExplainer:
		if r.Explainer != nil {
			return r.Explainer
		}
	case SpecialistEvaluator:
		if r.Evaluator != nil {
			return r.Evaluator
		}
	case SpecialistAssessor:
		if r.Assessor != nil {
			return r.Assessor
		}
	case SpecialistSteering:
		if r.Steering != nil {
			return r.Steering
		}
	case SpecialistPlanner:
		if r.Planner != nil {
			return r.Planner
		}
	}
	return nil
}

// Decision is the orchestrator's per-turn routing output. It is ephemeral:
// produced at the start of a turn, consumed by the coordinator and state
// updater, never stored past the turn.
type Decision struct {
	// Intent is the classified student intent.
	Intent Intent `json:"intent"`
	// Confidence is the classification confidence in [0,1].
	Confidence float64 `json:"confidence"`
	// Reasoning is a brief explanation of the routing choice.
	Reasoning string `json:"reasoning,omitempty"`
	// Specialists is the ordered list of specialists to invoke.
	Specialists []Specialist `json:"specialists"`
	// Strategy selects parallel or sequential execution.
	Strategy Strategy `json:"strategy"`
	// Requirements carries per-specialist guidance. Empty on the fallback path.
	Requirements Requirements `json:"requirements"`
	// OverallStrategy is the high-level plan for the turn.
	OverallStrategy string `json:"overall_strategy,omitempty"`
	// Fallback is true when the deterministic rule table produced this
	// decision instead of the generation call.
	Fallback bool `json:"-"`
}

// Validate checks the structural invariants of a decision. A generated
// payload that fails here is treated the same as a failed generation call.
func (d *Decision) Validate() error {
	if !d.Intent.Valid() {
		return fmt.Errorf("unknown intent %q", d.Intent)
	}
	if d.Intent == IntentUnsafe {
		return fmt.Errorf("unsafe intent is decided by the safety pre-check, not the engine")
	}
	if len(d.Specialists) == 0 {
		return fmt.Errorf("decision names no specialists")
	}
	seen := make(map[Specialist]bool)
	for _, s := range d.Specialists {
		if !s.Valid() {
			return fmt.Errorf("unknown specialist %q", s)
		}
		if seen[s] {
			return fmt.Errorf("specialist %q listed twice", s)
		}
		seen[s] = true
	}
	if !d.Strategy.Valid() {
		return fmt.Errorf("unknown strategy %q", d.Strategy)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range", d.Confidence)
	}
	// Requirements entries and the specialist list must match exactly: every
	// selected specialist carries its guidance, and nothing else does.
	for _, s := range []Specialist{SpecialistExplainer, SpecialistEvaluator, SpecialistAssessor, SpecialistSteering, SpecialistPlanner} {
		if d.Requirements.Has(s) && !seen[s] {
			return fmt.Errorf("requirements present for %q which is not selected", s)
		}
		if seen[s] && !d.Requirements.Has(s) {
			return fmt.Errorf("specialist %q selected without requirements", s)
		}
	}
	return nil
}
