package decision

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"tutord/internal/llm"
	"tutord/pkg/models"
)

const decisionSystem = `You are the routing brain of a tutoring system. You read the full
dialogue state and decide, for one student message, which specialists to
invoke and with what guidance. You never talk to the student yourself.`

// Engine classifies the student's intent and plans specialist execution for
// one turn. Decide never returns an error: any generation or validation
// failure degrades to the deterministic rule-table fallback.
type Engine struct {
	gen     llm.Generator
	log     *zap.Logger
	timeout time.Duration
}

// EngineConfig configures a decision Engine.
type EngineConfig struct {
	// Generator produces the structured decision. Required.
	Generator llm.Generator
	// Logger receives fallback and validation events. Defaults to zap.NewNop().
	Logger *zap.Logger
	// Timeout bounds the decision call. Defaults to 15s.
	Timeout time.Duration
}

// NewEngine creates a decision engine.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Engine{gen: cfg.Generator, log: cfg.Logger, timeout: cfg.Timeout}
}

// Decide produces the routing decision for one student message. sess is a
// read-only snapshot and narrative is the rendered long-term memory. On any
// failure of the generation call the deterministic fallback is returned, so
// the caller always receives a usable decision.
func (e *Engine) Decide(ctx context.Context, sess *models.Session, narrative string, msg models.Message) Decision {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var d Decision
	err := llm.GenerateJSON(callCtx, e.gen, llm.Request{
		System: decisionSystem,
		Prompt: e.buildPrompt(sess, narrative, msg),
		Effort: llm.EffortStandard,
	}, &d)
	if err != nil {
		e.log.Warn("decision call failed, using rule-table fallback",
			zap.String("session", sess.ID),
			zap.Error(err))
		return e.Fallback(sess, msg)
	}
	e.enrich(&d, sess)
	return d
}

// enrich applies guardrails the model cannot be trusted with. The explainer's
// avoid list must contain every example and analogy the session has already
// used, whatever the model returned.
func (e *Engine) enrich(d *Decision, sess *models.Session) {
	hasExplainer := false
	for _, s := range d.Specialists {
		if s == SpecialistExplainer {
			hasExplainer = true
		}
	}
	if !hasExplainer {
		return
	}
	if d.Requirements.Explainer == nil {
		d.Requirements.Explainer = &ExplainerRequirements{
			TriggerReason: string(d.Intent),
			FocusArea:     currentConcept(sess),
		}
	}
	req := d.Requirements.Explainer
	have := make(map[string]bool, len(req.AvoidApproaches))
	for _, a := range req.AvoidApproaches {
		have[a] = true
	}
	for _, used := range sess.Summary.AnalogiesUsed {
		if !have[used] {
			req.AvoidApproaches = append(req.AvoidApproaches, used)
			have[used] = true
		}
	}
	for _, used := range sess.Summary.ExamplesUsed {
		if !have[used] {
			req.AvoidApproaches = append(req.AvoidApproaches, used)
			have[used] = true
		}
	}
}

// Fallback builds a decision without any generation call. Intent comes from a
// deterministic heuristic over the session state and message text, and the
// specialist list from a fixed rule table. Calling it twice with the same
// state yields the same decision.
func (e *Engine) Fallback(sess *models.Session, msg models.Message) Decision {
	intent := HeuristicIntent(sess, msg.Content)
	specialists := fallbackSpecialists(intent, sess)
	d := Decision{
		Intent:       intent,
		Confidence:   0.3,
		Reasoning:    "rule-table fallback",
		Strategy:     StrategySequential,
		Specialists:  specialists,
		Requirements: fallbackRequirements(intent, specialists, sess),
		Fallback:     true,
	}
	e.enrich(&d, sess)
	return d
}

// fallbackRequirements fills the guidance entry each selected specialist
// would have received from the model, derived from session state alone.
func fallbackRequirements(intent Intent, specialists []Specialist, sess *models.Session) Requirements {
	var reqs Requirements
	for _, s := range specialists {
		switch s {
		case SpecialistExplainer:
			reqs.Explainer = &ExplainerRequirements{
				TriggerReason: string(intent),
				FocusArea:     currentConcept(sess),
			}
		case SpecialistEvaluator:
			reqs.Evaluator = &EvaluatorRequirements{Focus: "correctness_only", BeLenient: true}
		case SpecialistAssessor:
			a := &AssessorRequirements{Purpose: "progress_check", Difficulty: "medium"}
			if c := currentConcept(sess); c != "" {
				a.ConceptsToTest = []string{c}
			}
			reqs.Assessor = a
		case SpecialistSteering:
			firmness := "gentle"
			if sess.OffTopicCount >= 2 {
				firmness = "firm"
			}
			reqs.Steering = &SteeringRequirements{Severity: "mild", Acknowledge: true, Firmness: firmness}
		case SpecialistPlanner:
			reqs.Planner = &PlannerRequirements{Trigger: "fallback_review", Urgency: "low"}
		}
	}
	return reqs
}

// fallbackSpecialists is the fixed intent-to-specialist rule table. The
// ready-to-continue row dispatches on the current step type so that a lesson
// still advances sensibly when the model is unavailable.
func fallbackSpecialists(intent Intent, sess *models.Session) []Specialist {
	switch intent {
	case IntentAnswering:
		return []Specialist{SpecialistEvaluator}
	case IntentAsking, IntentConfusion:
		return []Specialist{SpecialistExplainer}
	case IntentOffTopic:
		return []Specialist{SpecialistSteering}
	case IntentContinue:
		if step := sess.CurrentStepData(); step != nil {
			switch step.Type {
			case models.StepCheck, models.StepPractice:
				return []Specialist{SpecialistAssessor}
			}
		}
		return []Specialist{SpecialistExplainer}
	default:
		return []Specialist{SpecialistExplainer}
	}
}

var confusionMarkers = []string{
	"don't understand",
	"dont understand",
	"don't get",
	"dont get",
	"confused",
	"confusing",
	"i'm lost",
	"im lost",
	"makes no sense",
	"no idea",
}

var continueMarkers = []string{
	"next",
	"continue",
	"ready",
	"got it",
	"makes sense",
	"ok",
	"okay",
	"yes",
	"yep",
	"sure",
	"let's go",
	"lets go",
}

// HeuristicIntent classifies a message without a model call. A pending
// question dominates: whatever the student says while one is open is treated
// as an answer attempt. Off-topic cannot be detected lexically, so it is
// never produced here.
func HeuristicIntent(sess *models.Session, text string) Intent {
	if sess.AwaitingAnswer {
		return IntentAnswering
	}
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, m := range confusionMarkers {
		if strings.Contains(lower, m) {
			return IntentConfusion
		}
	}
	if strings.Contains(lower, "?") {
		return IntentAsking
	}
	for _, m := range continueMarkers {
		if lower == m || strings.HasPrefix(lower, m+" ") || strings.HasPrefix(lower, m+",") || strings.HasPrefix(lower, m+"!") || strings.HasPrefix(lower, m+".") {
			return IntentContinue
		}
	}
	return IntentAsking
}

func (e *Engine) buildPrompt(sess *models.Session, narrative string, msg models.Message) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Lesson\n")
	if sess.Topic != nil {
		fmt.Fprintf(&b, "Topic: %s (%s, grade %d)\n", sess.Topic.Name, sess.Topic.Subject, sess.Topic.GradeLevel)
	}
	if step := sess.CurrentStepData(); step != nil {
		fmt.Fprintf(&b, "Current step %d of %d: type=%s concept=%s\n",
			sess.CurrentStep, sess.Topic.Plan.TotalSteps(), step.Type, step.Concept)
		if step.ContentHint != "" {
			fmt.Fprintf(&b, "Step hint: %s\n", step.ContentHint)
		}
	} else {
		b.WriteString("The study plan is complete.\n")
	}

	b.WriteString("\n## Student\n")
	fmt.Fprintf(&b, "Grade: %d, language level: %s\n", sess.Profile.Grade, sess.Profile.LanguageLevel)
	if len(sess.Mastery) > 0 {
		concepts := make([]string, 0, len(sess.Mastery))
		for c := range sess.Mastery {
			concepts = append(concepts, c)
		}
		sort.Strings(concepts)
		b.WriteString("Mastery:\n")
		for _, c := range concepts {
			fmt.Fprintf(&b, "  %s: %.2f (%s)\n", c, sess.Mastery[c], models.MasteryLevel(sess.Mastery[c]))
		}
	}
	for _, m := range sess.Misconceptions {
		if !m.Resolved {
			fmt.Fprintf(&b, "Active misconception [%s]: %s\n", m.Concept, m.Description)
		}
	}

	if sess.PendingQuestion != nil {
		b.WriteString("\n## Pending question\n")
		fmt.Fprintf(&b, "The tutor is waiting for an answer to: %s\n", sess.PendingQuestion.Text)
		fmt.Fprintf(&b, "Expected answer: %s\n", sess.PendingQuestion.ExpectedAnswer)
	}

	if narrative != "" {
		b.WriteString("\n## Session so far\n")
		b.WriteString(narrative)
		b.WriteString("\n")
	}

	if len(sess.History) > 0 {
		b.WriteString("\n## Recent dialogue\n")
		for _, m := range sess.History {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
	}

	b.WriteString("\n## New student message\n")
	b.WriteString(msg.Content)
	b.WriteString("\n")

	b.WriteString(`
## Task
Classify the student's intent and plan specialist execution for this turn.

Intents: answering, asking, expressing-confusion, off-topic, ready-to-continue.
Specialists: explainer, evaluator, assessor, steering, planner.

Rules:
- A pending question means the message is almost certainly "answering"; call the evaluator.
- "expressing-confusion" and "asking" call the explainer. If the same confusion has recurred, also consider the planner.
- "off-topic" calls steering. Escalate firmness with the session's off-topic count.
- "ready-to-continue" calls the explainer for an explain step, the assessor for a check or practice step.
- Use "parallel" only when specialists do not depend on each other's output (e.g. evaluator plus assessor). Use "sequential" when a later specialist needs an earlier result.
- Provide a requirements entry for every specialist you select, and only for those.

Respond with JSON only:
{
  "intent": "...",
  "confidence": 0.0,
  "reasoning": "...",
  "specialists": ["..."],
  "strategy": "parallel|sequential",
  "requirements": {
    "explainer": {"trigger_reason": "...", "focus_area": "...", "confusion_point": "...", "recommended_approach": "...", "avoid_approaches": [], "length_guidance": "moderate", "tone": "encouraging", "include_check_question": false},
    "evaluator": {"focus": "...", "expected_level": "...", "be_lenient": false, "watch_for_misconception": "..."},
    "assessor": {"purpose": "...", "difficulty": "easy|medium|hard", "concepts_to_test": [], "avoid_question_styles": []},
    "steering": {"severity": "mild|moderate|severe", "acknowledge": true, "firmness": "gentle|firm|strict"},
    "planner": {"trigger": "...", "urgency": "low|medium|high", "consider_skipping": false, "consider_remediation": false, "target_concept": ""}
  },
  "overall_strategy": "..."
}
Omit requirements entries for specialists you did not select.`)

	return b.String()
}

func currentConcept(sess *models.Session) string {
	if step := sess.CurrentStepData(); step != nil {
		return step.Concept
	}
	return ""
}
