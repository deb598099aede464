package models

import "fmt"

// StepType is the kind of learning activity a study plan step represents.
type StepType string

const (
	// StepExplain introduces or re-teaches a concept.
	StepExplain StepType = "explain"
	// StepCheck asks a single question to verify understanding.
	StepCheck StepType = "check"
	// StepPractice drills a concept with one or more questions.
	StepPractice StepType = "practice"
)

// Valid returns true if the step type is a known value.
func (t StepType) Valid() bool {
	switch t {
	case StepExplain, StepCheck, StepPractice:
		return true
	default:
		return false
	}
}

// Step is a single entry in a study plan.
type Step struct {
	// ID is the 1-indexed position of the step in the plan.
	ID int `json:"id" yaml:"id"`
	// Type is the learning activity for this step.
	Type StepType `json:"type" yaml:"type"`
	// Concept is the concept identifier taught or assessed by this step.
	Concept string `json:"concept" yaml:"concept"`
	// ContentHint guides content generation for explain steps.
	ContentHint string `json:"content_hint,omitempty" yaml:"content_hint,omitempty"`
	// QuestionType refines check steps (conceptual, procedural, application).
	QuestionType string `json:"question_type,omitempty" yaml:"question_type,omitempty"`
	// QuestionCount is the number of questions for practice steps.
	QuestionCount int `json:"question_count,omitempty" yaml:"question_count,omitempty"`
}

// StudyPlan is the ordered sequence of steps for a topic.
type StudyPlan struct {
	Steps []Step `json:"steps" yaml:"steps"`
}

// TotalSteps returns the number of steps in the plan.
func (p StudyPlan) TotalSteps() int {
	return len(p.Steps)
}

// Step returns the plan step with the given 1-indexed ID, or nil.
func (p StudyPlan) Step(id int) *Step {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// Concepts returns the distinct concepts in plan order.
func (p StudyPlan) Concepts() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range p.Steps {
		if !seen[s.Concept] {
			seen[s.Concept] = true
			out = append(out, s.Concept)
		}
	}
	return out
}

// HasConcept reports whether the plan contains a step for the concept.
func (p StudyPlan) HasConcept(concept string) bool {
	for _, s := range p.Steps {
		if s.Concept == concept {
			return true
		}
	}
	return false
}

// Validate checks that steps are present, contiguous from 1, and well-formed.
func (p StudyPlan) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("study plan has no steps")
	}
	for i, s := range p.Steps {
		if s.ID != i+1 {
			return fmt.Errorf("step %d has id %d, want %d", i, s.ID, i+1)
		}
		if !s.Type.Valid() {
			return fmt.Errorf("step %d has unknown type %q", s.ID, s.Type)
		}
		if s.Concept == "" {
			return fmt.Errorf("step %d has no concept", s.ID)
		}
	}
	return nil
}

// Guidelines carries pedagogical guidance for teaching a topic.
type Guidelines struct {
	// LearningObjectives lists what the student should learn.
	LearningObjectives []string `json:"learning_objectives" yaml:"learning_objectives"`
	// PrerequisiteConcepts lists concepts the student should already know.
	PrerequisiteConcepts []string `json:"prerequisite_concepts,omitempty" yaml:"prerequisite_concepts,omitempty"`
	// CommonMisconceptions lists mistakes students typically make.
	CommonMisconceptions []string `json:"common_misconceptions,omitempty" yaml:"common_misconceptions,omitempty"`
	// TeachingApproach describes the recommended strategy.
	TeachingApproach string `json:"teaching_approach,omitempty" yaml:"teaching_approach,omitempty"`
}

// Topic is a teachable unit: metadata, guidelines, and a study plan.
type Topic struct {
	// ID is the unique topic identifier.
	ID string `json:"id" yaml:"id"`
	// Name is the human-readable topic name.
	Name string `json:"name" yaml:"name"`
	// Subject is the subject area (Mathematics, Science, ...).
	Subject string `json:"subject" yaml:"subject"`
	// GradeLevel is the target grade level.
	GradeLevel int `json:"grade_level" yaml:"grade_level"`
	// Guidelines is the teaching guidance for the topic.
	Guidelines Guidelines `json:"guidelines" yaml:"guidelines"`
	// Plan is the ordered study plan.
	Plan StudyPlan `json:"plan" yaml:"plan"`
}

// Validate checks the topic's required fields and its plan.
func (t Topic) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("topic has no id")
	}
	if t.Name == "" {
		return fmt.Errorf("topic %s has no name", t.ID)
	}
	if err := t.Plan.Validate(); err != nil {
		return fmt.Errorf("topic %s: %w", t.ID, err)
	}
	return nil
}
