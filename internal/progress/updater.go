// Package progress applies a completed turn's outcomes to the session: the
// mastery model, pending-question lifecycle, misconceptions, plan position,
// and the running summary.
package progress

import (
	"fmt"

	"go.uber.org/zap"

	"tutord/internal/composer"
	"tutord/internal/decision"
	"tutord/internal/memory"
	"tutord/internal/specialist"
	"tutord/pkg/models"
)

// Default tuning for the mastery model.
const (
	// DefaultLearningRate scales every mastery delta.
	DefaultLearningRate = 0.2
	// DefaultPenaltyFactor shrinks downward deltas relative to upward ones.
	DefaultPenaltyFactor = 0.5
	// DefaultRemediationThreshold marks a concept as a stuck point.
	DefaultRemediationThreshold = 0.4
)

// ErrConceptNotInPlan marks an evaluation that targets a concept the study
// plan does not contain. The turn must abort rather than corrupt the mastery
// map.
var ErrConceptNotInPlan = fmt.Errorf("mastery update targets a concept outside the study plan")

// MasteryChange records one concept's movement during a turn.
type MasteryChange struct {
	Before float64 `json:"before"`
	After  float64 `json:"after"`
}

// Delta summarizes everything Apply changed, for the transcript and for
// clients that render state.
type Delta struct {
	Mastery                map[string]MasteryChange `json:"mastery,omitempty"`
	StepBefore             int                      `json:"step_before"`
	StepAfter              int                      `json:"step_after"`
	QuestionSet            bool                     `json:"question_set,omitempty"`
	QuestionCleared        bool                     `json:"question_cleared,omitempty"`
	MisconceptionsAdded    []string                 `json:"misconceptions_added,omitempty"`
	MisconceptionsResolved int                      `json:"misconceptions_resolved,omitempty"`
	Trend                  models.Trend             `json:"trend,omitempty"`
	Completed              bool                     `json:"completed,omitempty"`
}

// Updater applies turn outcomes to sessions. All methods mutate the session
// in place; callers persist afterwards.
type Updater struct {
	rate      float64
	penalty   float64
	remediate float64
	log       *zap.Logger
}

// Config configures an Updater. Zero values select the defaults.
type Config struct {
	LearningRate         float64
	PenaltyFactor        float64
	RemediationThreshold float64
	Logger               *zap.Logger
}

// NewUpdater creates an Updater.
func NewUpdater(cfg Config) *Updater {
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = DefaultLearningRate
	}
	if cfg.PenaltyFactor <= 0 {
		cfg.PenaltyFactor = DefaultPenaltyFactor
	}
	if cfg.RemediationThreshold <= 0 {
		cfg.RemediationThreshold = DefaultRemediationThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Updater{
		rate:      cfg.LearningRate,
		penalty:   cfg.PenaltyFactor,
		remediate: cfg.RemediationThreshold,
		log:       cfg.Logger,
	}
}

// Apply folds the turn's decision, specialist results, and composed reply
// into the session. On ErrConceptNotInPlan the session must be discarded,
// not saved: a partial update may already have been applied.
func (u *Updater) Apply(sess *models.Session, dec decision.Decision, results map[decision.Specialist]specialist.Result, comp composer.Composed) (Delta, error) {
	delta := Delta{StepBefore: sess.CurrentStep, Mastery: make(map[string]MasteryChange)}
	sess.TurnCount++

	if dec.Intent == decision.IntentOffTopic {
		sess.OffTopicCount++
	}

	var eval *specialist.Evaluation
	if res, ok := results[decision.SpecialistEvaluator]; ok && !res.Absent {
		eval = res.Evaluation
	}

	if eval != nil {
		if err := u.applyEvaluation(sess, eval, &delta); err != nil {
			return delta, err
		}
	}

	if res, ok := results[decision.SpecialistExplainer]; ok && !res.Absent && res.Explanation != nil {
		u.applyExplanation(sess, res.Explanation)
	}

	// The answered question is consumed whether right or wrong; the composed
	// reply then decides what, if anything, is pending next.
	if eval != nil && sess.PendingQuestion != nil {
		sess.ClearQuestion()
		delta.QuestionCleared = true
	}
	if comp.Question != nil {
		sess.SetQuestion(*comp.Question)
		delta.QuestionSet = true
	}

	u.applyPlanMovement(sess, dec, results, eval, &delta)
	u.updateTrend(sess, eval)
	delta.Trend = sess.Summary.ProgressTrend
	delta.StepAfter = sess.CurrentStep
	delta.Completed = sess.Complete()
	return delta, nil
}

// applyEvaluation moves the mastery model and misconception list for one
// graded answer. The concept comes from the answered question, falling back
// to the current step.
func (u *Updater) applyEvaluation(sess *models.Session, eval *specialist.Evaluation, delta *Delta) error {
	concept := ""
	if sess.PendingQuestion != nil {
		concept = sess.PendingQuestion.Concept
	}
	if concept == "" {
		if step := sess.CurrentStepData(); step != nil {
			concept = step.Concept
		}
	}
	if concept == "" {
		return nil
	}
	if sess.Topic == nil || !sess.Topic.Plan.HasConcept(concept) {
		return fmt.Errorf("%w: %q", ErrConceptNotInPlan, concept)
	}

	before := sess.Mastery[concept]
	effective := u.rate * eval.Score
	var after float64
	if eval.Correct {
		after = before + (1-before)*effective
	} else {
		after = before - before*effective*u.penalty
	}
	sess.SetMastery(concept, after)
	delta.Mastery[concept] = MasteryChange{Before: before, After: sess.Mastery[concept]}

	for _, m := range eval.Misconceptions {
		sess.AddMisconception(concept, m)
		delta.MisconceptionsAdded = append(delta.MisconceptionsAdded, m)
	}
	if eval.Correct && eval.Score >= 0.8 {
		delta.MisconceptionsResolved = sess.ResolveMisconceptions(concept)
	}
	if eval.MasterySignal == specialist.SignalNeedsRemediation || sess.Mastery[concept] < u.remediate {
		addUnique(&sess.Summary.StuckPoints, concept)
	}
	return nil
}

// applyExplanation records what teaching material has now been used so later
// turns avoid repeating it.
func (u *Updater) applyExplanation(sess *models.Session, exp *specialist.Explanation) {
	if step := sess.CurrentStepData(); step != nil {
		addUnique(&sess.Summary.ConceptsTaught, step.Concept)
	}
	for _, e := range exp.Examples {
		addUnique(&sess.Summary.ExamplesUsed, e)
	}
	for _, a := range exp.Analogies {
		addUnique(&sess.Summary.AnalogiesUsed, a)
	}
}

// applyPlanMovement advances, jumps, or holds the plan position. A planner
// recommendation wins; otherwise a correct answer or a delivered explanation
// on an explain step moves forward one.
func (u *Updater) applyPlanMovement(sess *models.Session, dec decision.Decision, results map[decision.Specialist]specialist.Result, eval *specialist.Evaluation, delta *Delta) {
	if res, ok := results[decision.SpecialistPlanner]; ok && !res.Absent && res.Plan != nil && res.Plan.RecommendedStep > 0 && res.Plan.RecommendedStep != sess.CurrentStep {
		from := sess.CurrentStep
		target := res.Plan.RecommendedStep
		moved := false
		if target == from+1 {
			moved = sess.AdvanceStep()
		} else {
			moved = sess.JumpToStep(target)
		}
		if moved {
			memory.RecordTimeline(&sess.Summary, fmt.Sprintf("Moved from step %d to step %d: %s", from, target, res.Plan.Rationale))
			u.log.Info("plan position changed",
				zap.String("session", sess.ID),
				zap.Int("from", from),
				zap.Int("to", target))
		}
		return
	}

	step := sess.CurrentStepData()
	if step == nil {
		return
	}
	switch {
	case eval != nil && eval.Correct && !eval.NeedsReexplanation:
		sess.AdvanceStep()
	case eval == nil && dec.Intent == decision.IntentContinue && step.Type == models.StepExplain:
		if res, ok := results[decision.SpecialistExplainer]; ok && !res.Absent && res.Explanation != nil {
			sess.AdvanceStep()
		}
	}
}

func (u *Updater) updateTrend(sess *models.Session, eval *specialist.Evaluation) {
	if eval == nil {
		return
	}
	switch {
	case eval.MasterySignal == specialist.SignalNeedsRemediation:
		sess.Summary.ProgressTrend = models.TrendStruggling
	case eval.Correct && eval.Score >= 0.7:
		sess.Summary.ProgressTrend = models.TrendImproving
	default:
		sess.Summary.ProgressTrend = models.TrendSteady
	}
}

// ApplySafety folds an unsafe verdict into the session. The turn never
// reaches the decision engine in this case.
func (u *Updater) ApplySafety(sess *models.Session, verdict specialist.SafetyVerdict) {
	sess.TurnCount++
	if verdict.ViolationType != "" {
		addUnique(&sess.SafetyFlags, verdict.ViolationType)
	}
	if verdict.ShouldWarn {
		sess.WarningCount++
	}
}

func addUnique(list *[]string, s string) {
	if s == "" {
		return
	}
	for _, have := range *list {
		if have == s {
			return
		}
	}
	*list = append(*list, s)
}
