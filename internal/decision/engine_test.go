package decision

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"tutord/internal/llm"
	"tutord/pkg/models"
)

type stubGenerator struct {
	response string
	err      error
}

func (s *stubGenerator) Generate(_ context.Context, _ llm.Request) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func fractionsTopic() *models.Topic {
	return &models.Topic{
		ID: "fractions-intro", Name: "Introduction to Fractions", Subject: "math", GradeLevel: 4,
		Plan: models.StudyPlan{Steps: []models.Step{
			{ID: 1, Type: models.StepExplain, Concept: "numerator"},
			{ID: 2, Type: models.StepCheck, Concept: "numerator"},
			{ID: 3, Type: models.StepPractice, Concept: "denominator"},
		}},
	}
}

func TestHeuristicIntent(t *testing.T) {
	topic := fractionsTopic()

	tests := []struct {
		name     string
		awaiting bool
		text     string
		want     Intent
	}{
		{"pending question dominates", true, "is it the top one?", IntentAnswering},
		{"confusion marker", false, "I don't understand this at all", IntentConfusion},
		{"confused variant", false, "this is so confusing", IntentConfusion},
		{"question mark", false, "what does the bottom number mean?", IntentAsking},
		{"continue word", false, "ok", IntentContinue},
		{"continue phrase", false, "ready for the next one", IntentContinue},
		{"default is asking", false, "the sky is blue today", IntentAsking},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := models.NewSession(topic, models.DefaultProfile())
			if tt.awaiting {
				sess.SetQuestion(models.Question{Text: "q", ExpectedAnswer: "a", Concept: "numerator"})
			}
			if got := HeuristicIntent(sess, tt.text); got != tt.want {
				t.Errorf("HeuristicIntent(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestFallbackRuleTable(t *testing.T) {
	topic := fractionsTopic()
	e := NewEngine(EngineConfig{Generator: &stubGenerator{err: fmt.Errorf("down")}})

	tests := []struct {
		name     string
		step     int
		awaiting bool
		text     string
		want     []Specialist
	}{
		{"answer routes to evaluator", 2, true, "the top number", []Specialist{SpecialistEvaluator}},
		{"question routes to explainer", 1, false, "why is that?", []Specialist{SpecialistExplainer}},
		{"confusion routes to explainer", 1, false, "i'm lost", []Specialist{SpecialistExplainer}},
		{"continue at explain step", 1, false, "ok", []Specialist{SpecialistExplainer}},
		{"continue at check step", 2, false, "ready", []Specialist{SpecialistAssessor}},
		{"continue at practice step", 3, false, "next", []Specialist{SpecialistAssessor}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := models.NewSession(topic, models.DefaultProfile())
			sess.CurrentStep = tt.step
			if tt.awaiting {
				sess.SetQuestion(models.Question{Text: "q", ExpectedAnswer: "a", Concept: "numerator"})
			}
			d := e.Fallback(sess, models.NewStudentMessage(tt.text))
			if !d.Fallback {
				t.Error("fallback decision must be marked as such")
			}
			if !reflect.DeepEqual(d.Specialists, tt.want) {
				t.Errorf("specialists = %v, want %v", d.Specialists, tt.want)
			}
			if len(d.Specialists) == 0 {
				t.Error("fallback must always select at least one specialist")
			}
			if err := d.Validate(); err != nil {
				t.Errorf("fallback decision failed validation: %v", err)
			}
		})
	}
}

func TestFallbackIsDeterministic(t *testing.T) {
	e := NewEngine(EngineConfig{Generator: &stubGenerator{err: fmt.Errorf("down")}})
	sess := models.NewSession(fractionsTopic(), models.DefaultProfile())
	msg := models.NewStudentMessage("what is a fraction?")

	first := e.Fallback(sess, msg)
	second := e.Fallback(sess, msg)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("same state produced different fallbacks:\n%+v\n%+v", first, second)
	}
}

func TestDecideFallsBackOnCallFailure(t *testing.T) {
	e := NewEngine(EngineConfig{Generator: &stubGenerator{err: fmt.Errorf("timeout")}})
	sess := models.NewSession(fractionsTopic(), models.DefaultProfile())

	d := e.Decide(context.Background(), sess, "", models.NewStudentMessage("why?"))
	if !d.Fallback {
		t.Error("expected fallback decision on call failure")
	}
}

func TestDecideFallsBackOnInvalidPayload(t *testing.T) {
	// Valid JSON, invalid decision: unknown specialist name.
	e := NewEngine(EngineConfig{Generator: &stubGenerator{
		response: `{"intent":"asking","confidence":0.9,"specialists":["oracle"],"strategy":"sequential"}`,
	}})
	sess := models.NewSession(fractionsTopic(), models.DefaultProfile())

	d := e.Decide(context.Background(), sess, "", models.NewStudentMessage("why?"))
	if !d.Fallback {
		t.Error("expected fallback when the payload fails validation")
	}
}

func TestDecideEnrichesExplainerAvoidList(t *testing.T) {
	e := NewEngine(EngineConfig{Generator: &stubGenerator{
		response: `{
			"intent": "expressing-confusion",
			"confidence": 0.85,
			"specialists": ["explainer"],
			"strategy": "sequential",
			"requirements": {
				"explainer": {"trigger_reason": "explicit_confusion", "focus_area": "numerator", "avoid_approaches": ["pizza slices"]}
			}
		}`,
	}})
	sess := models.NewSession(fractionsTopic(), models.DefaultProfile())
	sess.Summary.AnalogiesUsed = []string{"sharing a cake", "pizza slices"}
	sess.Summary.ExamplesUsed = []string{"chocolate bar"}

	d := e.Decide(context.Background(), sess, "", models.NewStudentMessage("i don't get it"))
	if d.Fallback {
		t.Fatal("expected model decision to be accepted")
	}
	req := d.Requirements.Explainer
	if req == nil {
		t.Fatal("expected explainer requirements")
	}
	for _, used := range []string{"sharing a cake", "pizza slices", "chocolate bar"} {
		if !contains(req.AvoidApproaches, used) {
			t.Errorf("avoid list missing %q: %v", used, req.AvoidApproaches)
		}
	}
	// No duplicates from the merge.
	seen := map[string]int{}
	for _, a := range req.AvoidApproaches {
		seen[a]++
		if seen[a] > 1 {
			t.Errorf("avoid list has duplicate %q", a)
		}
	}
}

func TestDecisionValidate(t *testing.T) {
	tests := []struct {
		name    string
		d       Decision
		wantErr bool
	}{
		{
			name: "valid",
			d: Decision{
				Intent: IntentAsking, Confidence: 0.9, Strategy: StrategySequential,
				Specialists:  []Specialist{SpecialistExplainer},
				Requirements: Requirements{Explainer: &ExplainerRequirements{TriggerReason: "clarification_request", FocusArea: "numerator"}},
			},
		},
		{
			name: "selected specialist without requirements",
			d: Decision{
				Intent: IntentAsking, Confidence: 0.9, Strategy: StrategySequential,
				Specialists: []Specialist{SpecialistExplainer},
			},
			wantErr: true,
		},
		{
			name: "no specialists",
			d: Decision{
				Intent: IntentAsking, Confidence: 0.9, Strategy: StrategySequential,
			},
			wantErr: true,
		},
		{
			name: "unsafe intent rejected",
			d: Decision{
				Intent: IntentUnsafe, Confidence: 0.9, Strategy: StrategySequential,
				Specialists: []Specialist{SpecialistSteering},
			},
			wantErr: true,
		},
		{
			name: "duplicate specialist",
			d: Decision{
				Intent: IntentAsking, Confidence: 0.9, Strategy: StrategyParallel,
				Specialists: []Specialist{SpecialistExplainer, SpecialistExplainer},
			},
			wantErr: true,
		},
		{
			name: "requirements for unselected specialist",
			d: Decision{
				Intent: IntentAsking, Confidence: 0.9, Strategy: StrategySequential,
				Specialists:  []Specialist{SpecialistExplainer},
				Requirements: Requirements{Assessor: &AssessorRequirements{Purpose: "quick_check"}},
			},
			wantErr: true,
		},
		{
			name: "confidence out of range",
			d: Decision{
				Intent: IntentAsking, Confidence: 1.5, Strategy: StrategySequential,
				Specialists: []Specialist{SpecialistExplainer},
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.d.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
