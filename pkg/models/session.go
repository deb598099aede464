package models

import (
	"time"

	"github.com/google/uuid"
)

// Question is a question posed to the student, tracked until it is answered.
type Question struct {
	// Text is the question asked.
	Text string `json:"text"`
	// ExpectedAnswer is the correct answer used for evaluation.
	ExpectedAnswer string `json:"expected_answer"`
	// Concept is the concept identifier the question tests.
	Concept string `json:"concept"`
	// Rubric describes how to evaluate the answer.
	Rubric string `json:"rubric,omitempty"`
	// Hints are available hints for a struggling student.
	Hints []string `json:"hints,omitempty"`
	// HintsUsed counts hints already given.
	HintsUsed int `json:"hints_used,omitempty"`
}

// Misconception is a detected student misconception.
type Misconception struct {
	// Concept is the related concept identifier.
	Concept string `json:"concept"`
	// Description describes what the student got wrong.
	Description string `json:"description"`
	// DetectedAt is when the misconception was observed.
	DetectedAt time.Time `json:"detected_at"`
	// Resolved marks misconceptions later answered correctly.
	Resolved bool `json:"resolved"`
}

// StudentProfile carries per-student personalization.
type StudentProfile struct {
	// Grade is the student's grade level.
	Grade int `json:"grade" yaml:"grade"`
	// LanguageLevel is the language complexity preference (simple, standard, advanced).
	LanguageLevel string `json:"language_level" yaml:"language_level"`
	// PreferredExamples lists example domains the student responds to.
	PreferredExamples []string `json:"preferred_examples" yaml:"preferred_examples"`
}

// DefaultProfile returns a profile with sensible defaults.
func DefaultProfile() StudentProfile {
	return StudentProfile{
		Grade:             5,
		LanguageLevel:     "simple",
		PreferredExamples: []string{"food", "sports", "games"},
	}
}

// Trend describes the student's overall progress direction.
type Trend string

const (
	TrendImproving  Trend = "improving"
	TrendSteady     Trend = "steady"
	TrendStruggling Trend = "struggling"
)

// Summary is the compressed cross-turn narrative. It preserves facts the
// bounded conversation window no longer holds.
type Summary struct {
	// Timeline holds one compact entry per turn, oldest first.
	Timeline []string `json:"timeline"`
	// ConceptsTaught lists concepts that have been explained.
	ConceptsTaught []string `json:"concepts_taught"`
	// ExamplesUsed lists examples already given, to avoid repetition.
	ExamplesUsed []string `json:"examples_used"`
	// AnalogiesUsed lists analogies already given.
	AnalogiesUsed []string `json:"analogies_used"`
	// StuckPoints lists areas where the student struggled.
	StuckPoints []string `json:"stuck_points"`
	// OpenRequests lists student requests not yet satisfied.
	OpenRequests []string `json:"open_requests"`
	// ProgressTrend is the overall progress direction.
	ProgressTrend Trend `json:"progress_trend"`
}

// Session is the complete state of one tutoring conversation. It is mutated
// only by the turn pipeline; everything else sees read-only snapshots.
type Session struct {
	// ID is the unique session identifier.
	ID string `json:"id"`
	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is the time of the last mutation.
	UpdatedAt time.Time `json:"updated_at"`
	// TurnCount is the number of completed turns.
	TurnCount int `json:"turn_count"`

	// Topic is the topic being taught.
	Topic *Topic `json:"topic,omitempty"`
	// CurrentStep is the 1-indexed position in the study plan.
	CurrentStep int `json:"current_step"`

	// PendingQuestion is the last question posed, nil when none is pending.
	// It is set and cleared strictly together with AwaitingAnswer.
	PendingQuestion *Question `json:"pending_question,omitempty"`
	// AwaitingAnswer is true while a posed question has not been answered.
	AwaitingAnswer bool `json:"awaiting_answer"`

	// Mastery maps concept identifier to a score in [0,1].
	Mastery map[string]float64 `json:"mastery"`
	// Misconceptions lists detected misconceptions, oldest first.
	Misconceptions []Misconception `json:"misconceptions"`

	// Profile is the student's personalization profile.
	Profile StudentProfile `json:"profile"`

	// OffTopicCount counts off-topic messages.
	OffTopicCount int `json:"off_topic_count"`
	// WarningCount counts safety warnings issued.
	WarningCount int `json:"warning_count"`
	// SafetyFlags records safety violation types observed.
	SafetyFlags []string `json:"safety_flags,omitempty"`

	// History is the bounded recent conversation, oldest first.
	History []Message `json:"history"`
	// Summary is the compressed narrative of the whole session.
	Summary Summary `json:"summary"`
}

// NewSession creates a session for a topic, seeding mastery for every plan
// concept at zero.
func NewSession(topic *Topic, profile StudentProfile) *Session {
	now := time.Now().UTC()
	mastery := make(map[string]float64)
	if topic != nil {
		for _, c := range topic.Plan.Concepts() {
			mastery[c] = 0
		}
	}
	return &Session{
		ID:          "sess_" + uuid.New().String()[:12],
		CreatedAt:   now,
		UpdatedAt:   now,
		Topic:       topic,
		CurrentStep: 1,
		Mastery:     mastery,
		Profile:     profile,
		Summary:     Summary{ProgressTrend: TrendSteady},
	}
}

// CurrentStepData returns the current plan step, or nil when off the plan.
func (s *Session) CurrentStepData() *Step {
	if s.Topic == nil {
		return nil
	}
	return s.Topic.Plan.Step(s.CurrentStep)
}

// Complete reports whether the study plan has been advanced past its last step.
func (s *Session) Complete() bool {
	if s.Topic == nil {
		return false
	}
	return s.CurrentStep > s.Topic.Plan.TotalSteps()
}

// Progress returns the percentage of the plan completed.
func (s *Session) Progress() float64 {
	if s.Topic == nil || s.Topic.Plan.TotalSteps() == 0 {
		return 0
	}
	p := float64(s.CurrentStep-1) / float64(s.Topic.Plan.TotalSteps()) * 100
	if p > 100 {
		return 100
	}
	return p
}

// OverallMastery returns the mean of all concept mastery scores.
func (s *Session) OverallMastery() float64 {
	if len(s.Mastery) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s.Mastery {
		sum += v
	}
	return sum / float64(len(s.Mastery))
}

// SetQuestion records a posed question. The pending-question slot and the
// awaiting-answer flag always change together.
func (s *Session) SetQuestion(q Question) {
	s.PendingQuestion = &q
	s.AwaitingAnswer = true
	s.touch()
}

// ClearQuestion clears the pending question and the awaiting-answer flag
// together.
func (s *Session) ClearQuestion() {
	s.PendingQuestion = nil
	s.AwaitingAnswer = false
	s.touch()
}

// SetMastery stores a mastery score, clamped to [0,1].
func (s *Session) SetMastery(concept string, score float64) {
	if s.Mastery == nil {
		s.Mastery = make(map[string]float64)
	}
	s.Mastery[concept] = clamp01(score)
	s.touch()
}

// AddMisconception appends a newly detected misconception.
func (s *Session) AddMisconception(concept, description string) {
	s.Misconceptions = append(s.Misconceptions, Misconception{
		Concept:     concept,
		Description: description,
		DetectedAt:  time.Now().UTC(),
	})
	s.touch()
}

// ResolveMisconceptions marks all unresolved misconceptions for a concept
// as resolved and returns how many were affected.
func (s *Session) ResolveMisconceptions(concept string) int {
	n := 0
	for i := range s.Misconceptions {
		if s.Misconceptions[i].Concept == concept && !s.Misconceptions[i].Resolved {
			s.Misconceptions[i].Resolved = true
			n++
		}
	}
	if n > 0 {
		s.touch()
	}
	return n
}

// AdvanceStep moves the curriculum position forward by exactly one step.
// Returns false when already past the last step.
func (s *Session) AdvanceStep() bool {
	if s.Topic == nil || s.CurrentStep > s.Topic.Plan.TotalSteps() {
		return false
	}
	s.CurrentStep++
	s.touch()
	return true
}

// JumpToStep moves the curriculum position to an arbitrary plan step. This is
// the only operation that may move the position by more than one step, and it
// is only legal with an explicit plan-adjustment approval.
func (s *Session) JumpToStep(target int) bool {
	if s.Topic == nil || target < 1 || target > s.Topic.Plan.TotalSteps() {
		return false
	}
	// Staying put is meaningless and a one-step advance belongs to AdvanceStep.
	if target == s.CurrentStep || target == s.CurrentStep+1 {
		return false
	}
	s.CurrentStep = target
	s.touch()
	return true
}

// Snapshot returns a deep copy safe to share with concurrent readers while
// the original continues to be mutated on later turns.
func (s *Session) Snapshot() *Session {
	cp := *s
	cp.Mastery = make(map[string]float64, len(s.Mastery))
	for k, v := range s.Mastery {
		cp.Mastery[k] = v
	}
	cp.Misconceptions = append([]Misconception(nil), s.Misconceptions...)
	cp.SafetyFlags = append([]string(nil), s.SafetyFlags...)
	cp.History = append([]Message(nil), s.History...)
	cp.Summary.Timeline = append([]string(nil), s.Summary.Timeline...)
	cp.Summary.ConceptsTaught = append([]string(nil), s.Summary.ConceptsTaught...)
	cp.Summary.ExamplesUsed = append([]string(nil), s.Summary.ExamplesUsed...)
	cp.Summary.AnalogiesUsed = append([]string(nil), s.Summary.AnalogiesUsed...)
	cp.Summary.StuckPoints = append([]string(nil), s.Summary.StuckPoints...)
	cp.Summary.OpenRequests = append([]string(nil), s.Summary.OpenRequests...)
	if s.PendingQuestion != nil {
		q := *s.PendingQuestion
		q.Hints = append([]string(nil), s.PendingQuestion.Hints...)
		cp.PendingQuestion = &q
	}
	return &cp
}

func (s *Session) touch() {
	s.UpdatedAt = time.Now().UTC()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// MasteryLevel buckets a mastery score into a display category.
func MasteryLevel(score float64) string {
	switch {
	case score >= 0.9:
		return "mastered"
	case score >= 0.7:
		return "strong"
	case score >= 0.5:
		return "adequate"
	case score >= 0.3:
		return "developing"
	default:
		return "needs_work"
	}
}
