package coordinator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"tutord/internal/decision"
	"tutord/internal/specialist"
	"tutord/pkg/models"
)

// fakeRunner is a scriptable specialist.
type fakeRunner struct {
	name  decision.Specialist
	run   func(ctx context.Context, in specialist.Input) (specialist.Result, error)
	calls int
}

func (f *fakeRunner) Name() decision.Specialist { return f.name }

func (f *fakeRunner) Run(ctx context.Context, in specialist.Input) (specialist.Result, error) {
	f.calls++
	return f.run(ctx, in)
}

func explanationResult(name decision.Specialist, text string) specialist.Result {
	return specialist.Result{Name: name, Explanation: &specialist.Explanation{Text: text}}
}

func testInput() specialist.Input {
	topic := &models.Topic{
		ID: "t", Name: "T", Subject: "math", GradeLevel: 4,
		Plan: models.StudyPlan{Steps: []models.Step{{ID: 1, Type: models.StepExplain, Concept: "numerator"}}},
	}
	return specialist.Input{
		Session: models.NewSession(topic, models.DefaultProfile()),
		Message: models.NewStudentMessage("hello"),
	}
}

func TestParallelSurvivorsKeepTheirResults(t *testing.T) {
	ok := &fakeRunner{name: decision.SpecialistExplainer, run: func(_ context.Context, _ specialist.Input) (specialist.Result, error) {
		return explanationResult(decision.SpecialistExplainer, "the top number"), nil
	}}
	failing := &fakeRunner{name: decision.SpecialistEvaluator, run: func(_ context.Context, _ specialist.Input) (specialist.Result, error) {
		return specialist.Result{}, fmt.Errorf("model unavailable")
	}}
	c := New(Config{Registry: specialist.NewRegistry(ok, failing)})

	dec := decision.Decision{
		Intent: decision.IntentAnswering, Confidence: 0.9, Strategy: decision.StrategyParallel,
		Specialists: []decision.Specialist{decision.SpecialistExplainer, decision.SpecialistEvaluator},
	}
	results := c.Execute(context.Background(), dec, testInput())

	if len(results) != 2 {
		t.Fatalf("expected a result per requested specialist, got %d", len(results))
	}
	if res := results[decision.SpecialistExplainer]; res.Absent || res.Explanation == nil {
		t.Errorf("surviving specialist lost its result: %+v", res)
	}
	if res := results[decision.SpecialistEvaluator]; !res.Absent || res.Reason == "" {
		t.Errorf("failed specialist should be absent with a reason: %+v", res)
	}
}

func TestInvocationTimeoutBecomesAbsence(t *testing.T) {
	slow := &fakeRunner{name: decision.SpecialistExplainer, run: func(ctx context.Context, _ specialist.Input) (specialist.Result, error) {
		select {
		case <-ctx.Done():
			return specialist.Result{}, ctx.Err()
		case <-time.After(5 * time.Second):
			return explanationResult(decision.SpecialistExplainer, "too late"), nil
		}
	}}
	c := New(Config{Registry: specialist.NewRegistry(slow), Timeout: 20 * time.Millisecond})

	dec := decision.Decision{
		Intent: decision.IntentAsking, Confidence: 0.9, Strategy: decision.StrategySequential,
		Specialists: []decision.Specialist{decision.SpecialistExplainer},
	}
	results := c.Execute(context.Background(), dec, testInput())

	if res := results[decision.SpecialistExplainer]; !res.Absent {
		t.Errorf("timed-out specialist should be absent: %+v", res)
	}
}

func TestPanicBecomesAbsence(t *testing.T) {
	panicking := &fakeRunner{name: decision.SpecialistAssessor, run: func(_ context.Context, _ specialist.Input) (specialist.Result, error) {
		panic("nil question template")
	}}
	c := New(Config{Registry: specialist.NewRegistry(panicking)})

	dec := decision.Decision{
		Intent: decision.IntentContinue, Confidence: 0.9, Strategy: decision.StrategyParallel,
		Specialists: []decision.Specialist{decision.SpecialistAssessor},
	}
	results := c.Execute(context.Background(), dec, testInput())

	if res := results[decision.SpecialistAssessor]; !res.Absent {
		t.Errorf("panicking specialist should be absent: %+v", res)
	}
}

func TestSequentialPassesPriorResults(t *testing.T) {
	var sawPrior bool
	first := &fakeRunner{name: decision.SpecialistEvaluator, run: func(_ context.Context, _ specialist.Input) (specialist.Result, error) {
		return specialist.Result{
			Name:       decision.SpecialistEvaluator,
			Evaluation: &specialist.Evaluation{Correct: false, Score: 0.3, Feedback: "not quite", MasterySignal: specialist.SignalNeedsRemediation},
		}, nil
	}}
	second := &fakeRunner{name: decision.SpecialistExplainer, run: func(_ context.Context, in specialist.Input) (specialist.Result, error) {
		prior, ok := in.Prior[decision.SpecialistEvaluator]
		sawPrior = ok && prior.Evaluation != nil
		return explanationResult(decision.SpecialistExplainer, "let's revisit"), nil
	}}
	c := New(Config{Registry: specialist.NewRegistry(first, second)})

	dec := decision.Decision{
		Intent: decision.IntentAnswering, Confidence: 0.9, Strategy: decision.StrategySequential,
		Specialists: []decision.Specialist{decision.SpecialistEvaluator, decision.SpecialistExplainer},
	}
	c.Execute(context.Background(), dec, testInput())

	if !sawPrior {
		t.Error("second specialist should see the first's result under sequential execution")
	}
	if first.calls != 1 || second.calls != 1 {
		t.Errorf("each specialist should run once, got %d and %d", first.calls, second.calls)
	}
}

func TestUnregisteredSpecialistIsAbsent(t *testing.T) {
	c := New(Config{Registry: specialist.NewRegistry()})

	dec := decision.Decision{
		Intent: decision.IntentAsking, Confidence: 0.9, Strategy: decision.StrategySequential,
		Specialists: []decision.Specialist{decision.SpecialistExplainer},
	}
	results := c.Execute(context.Background(), dec, testInput())

	if res := results[decision.SpecialistExplainer]; !res.Absent {
		t.Errorf("unregistered specialist should be absent: %+v", res)
	}
}
