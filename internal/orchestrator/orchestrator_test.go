package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"tutord/internal/composer"
	"tutord/internal/coordinator"
	"tutord/internal/decision"
	"tutord/internal/llm"
	"tutord/internal/memory"
	"tutord/internal/progress"
	"tutord/internal/session"
	"tutord/internal/specialist"
	"tutord/pkg/models"
)

// stageGenerator routes canned responses by pipeline stage, recognized from
// the request's system prompt.
type stageGenerator struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     []string
}

func (g *stageGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	stage := stageOf(req.System)
	g.mu.Lock()
	g.calls = append(g.calls, stage)
	g.mu.Unlock()
	if err, ok := g.errs[stage]; ok {
		return "", err
	}
	if resp, ok := g.responses[stage]; ok {
		return resp, nil
	}
	return "", fmt.Errorf("no scripted response for stage %q", stage)
}

func (g *stageGenerator) called(stage string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.calls {
		if c == stage {
			return true
		}
	}
	return false
}

func stageOf(system string) string {
	switch {
	case strings.Contains(system, "moderate"):
		return "safety"
	case strings.Contains(system, "routing brain"):
		return "decision"
	case strings.Contains(system, "grade one student answer"):
		return "evaluator"
	case strings.Contains(system, "patient tutor explaining"):
		return "explainer"
	case strings.Contains(system, "voice of a tutor"):
		return "composer"
	case strings.Contains(system, "tools just failed"):
		return "composer-fallback"
	case strings.Contains(system, "timeline line"):
		return "summary"
	case strings.Contains(system, "greeting a student"):
		return "welcome"
	default:
		return "other"
	}
}

type staticTopics map[string]*models.Topic

func (s staticTopics) Get(id string) (*models.Topic, bool) {
	t, ok := s[id]
	return t, ok
}

func fractionsTopic() *models.Topic {
	return &models.Topic{
		ID: "fractions-intro", Name: "Introduction to Fractions", Subject: "Mathematics", GradeLevel: 4,
		Plan: models.StudyPlan{Steps: []models.Step{
			{ID: 1, Type: models.StepExplain, Concept: "numerator"},
			{ID: 2, Type: models.StepCheck, Concept: "numerator"},
			{ID: 3, Type: models.StepExplain, Concept: "denominator"},
		}},
	}
}

func newTestOrchestrator(t *testing.T, gen llm.Generator) (*Orchestrator, *session.MemoryStore) {
	t.Helper()
	store := session.NewMemoryStore(session.MemoryStoreConfig{})
	t.Cleanup(store.Close)

	registry := specialist.NewRegistry(
		specialist.NewExplainer(gen),
		specialist.NewEvaluator(gen),
		specialist.NewAssessor(gen),
		specialist.NewSteering(gen),
		specialist.NewPlanner(gen),
	)
	orch := New(Config{
		Store:       store,
		Topics:      staticTopics{"fractions-intro": fractionsTopic()},
		Generator:   gen,
		Window:      memory.NewWindow(0),
		Summarizer:  memory.NewSummarizer(memory.SummarizerConfig{Generator: gen}),
		Engine:      decision.NewEngine(decision.EngineConfig{Generator: gen}),
		Coordinator: coordinator.New(coordinator.Config{Registry: registry}),
		Composer:    composer.New(composer.Config{Generator: gen}),
		Updater:     progress.NewUpdater(progress.Config{}),
		Safety:      specialist.NewSafety(gen),
	})
	return orch, store
}

func seedSession(t *testing.T, store *session.MemoryStore, mutate func(*models.Session)) *models.Session {
	t.Helper()
	sess := models.NewSession(fractionsTopic(), models.DefaultProfile())
	if mutate != nil {
		mutate(sess)
	}
	if err := store.Put(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	return sess
}

func TestStartSession(t *testing.T) {
	gen := &stageGenerator{responses: map[string]string{
		"welcome": "Hi there! Ready to learn about fractions? Let's start with the numerator.",
	}}
	orch, store := newTestOrchestrator(t, gen)

	sess, welcome, err := orch.StartSession(context.Background(), "fractions-intro", nil)
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if !strings.Contains(welcome, "fractions") {
		t.Errorf("welcome = %q", welcome)
	}
	if sess.CurrentStep != 1 {
		t.Errorf("new session starts at step %d, want 1", sess.CurrentStep)
	}
	if _, err := store.Get(context.Background(), sess.ID); err != nil {
		t.Errorf("session not saved: %v", err)
	}
	if len(sess.History) != 1 || sess.History[0].Role != models.RoleTutor {
		t.Errorf("welcome should open the dialogue history: %+v", sess.History)
	}
}

func TestStartSessionWelcomeFallback(t *testing.T) {
	gen := &stageGenerator{errs: map[string]error{"welcome": errors.New("model down")}}
	orch, _ := newTestOrchestrator(t, gen)

	_, welcome, err := orch.StartSession(context.Background(), "fractions-intro", nil)
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if !strings.Contains(welcome, "Introduction to Fractions") {
		t.Errorf("static welcome should name the topic, got %q", welcome)
	}
}

func TestStartSessionUnknownTopic(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &stageGenerator{})
	if _, _, err := orch.StartSession(context.Background(), "astrophysics", nil); err == nil {
		t.Error("StartSession() should fail for an unknown topic")
	}
}

func TestProcessTurnGradesAnswer(t *testing.T) {
	gen := &stageGenerator{responses: map[string]string{
		"safety":    `{"is_safe": true}`,
		"decision":  `{"intent":"answering","confidence":0.92,"specialists":["evaluator"],"strategy":"sequential","requirements":{"evaluator":{"focus":"numerator"}}}`,
		"evaluator": `{"is_correct":true,"score":1.0,"feedback":"Exactly right.","mastery_signal":"strong"}`,
		"composer":  `{"reply":"Exactly right! The numerator is the top number.","asks_question":false}`,
		"summary":   `Student correctly identified the numerator.`,
	}}
	orch, store := newTestOrchestrator(t, gen)
	sess := seedSession(t, store, func(s *models.Session) {
		s.CurrentStep = 2
		s.SetQuestion(models.Question{Text: "Which number is the numerator in 3/4?", ExpectedAnswer: "3", Concept: "numerator"})
	})

	res, err := orch.ProcessTurn(context.Background(), sess.ID, "the top one, 3")
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if res.Intent != "answering" {
		t.Errorf("intent = %q, want answering", res.Intent)
	}
	if res.Reply != "Exactly right! The numerator is the top number." {
		t.Errorf("reply = %q", res.Reply)
	}
	if res.FallbackDecision || res.Degraded {
		t.Errorf("clean turn flagged: %+v", res)
	}
	change, ok := res.Delta.Mastery["numerator"]
	if !ok || change.After <= change.Before {
		t.Errorf("mastery should move up: %+v", res.Delta.Mastery)
	}

	stored, err := store.Get(context.Background(), sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.TurnCount != 1 {
		t.Errorf("turn count = %d, want 1", stored.TurnCount)
	}
	if stored.PendingQuestion != nil {
		t.Error("answered question should be cleared")
	}
	if len(stored.Summary.Timeline) == 0 || !strings.Contains(stored.Summary.Timeline[0], "numerator") {
		t.Errorf("timeline entry missing: %v", stored.Summary.Timeline)
	}
	if len(stored.History) != 2 {
		t.Errorf("history should hold the student message and the reply, got %d", len(stored.History))
	}
}

func TestProcessTurnUnsafeShortCircuits(t *testing.T) {
	gen := &stageGenerator{responses: map[string]string{
		"safety": `{"is_safe":false,"violation_type":"personal_info","guidance":"Let's keep our chat about fractions.","should_warn":true}`,
	}}
	orch, store := newTestOrchestrator(t, gen)
	sess := seedSession(t, store, nil)

	res, err := orch.ProcessTurn(context.Background(), sess.ID, "what street do you live on?")
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if res.Intent != string(decision.IntentUnsafe) {
		t.Errorf("intent = %q, want unsafe", res.Intent)
	}
	if res.Reply != "Let's keep our chat about fractions." {
		t.Errorf("reply = %q", res.Reply)
	}
	if gen.called("decision") || gen.called("evaluator") || gen.called("composer") {
		t.Errorf("unsafe message must never reach routing, calls: %v", gen.calls)
	}

	stored, _ := store.Get(context.Background(), sess.ID)
	if stored.WarningCount != 1 {
		t.Errorf("warning count = %d, want 1", stored.WarningCount)
	}
	if len(stored.SafetyFlags) != 1 || stored.SafetyFlags[0] != "personal_info" {
		t.Errorf("safety flags = %v", stored.SafetyFlags)
	}
}

func TestProcessTurnSafetyErrorProceeds(t *testing.T) {
	gen := &stageGenerator{
		responses: map[string]string{
			"decision":  `{"intent":"asking","confidence":0.8,"specialists":["explainer"],"strategy":"sequential","requirements":{"explainer":{"trigger_reason":"student asked","focus_area":"numerator"}}}`,
			"explainer": `{"explanation":"The numerator counts the parts you have.","examples":["3/4 of a pizza"]}`,
			"composer":  `{"reply":"Great question! The numerator counts the parts you have.","asks_question":false}`,
			"summary":   `Explained the numerator.`,
		},
		errs: map[string]error{"safety": errors.New("moderation endpoint down")},
	}
	orch, store := newTestOrchestrator(t, gen)
	sess := seedSession(t, store, nil)

	res, err := orch.ProcessTurn(context.Background(), sess.ID, "what does numerator mean?")
	if err != nil {
		t.Fatalf("a failed safety check must not fail the turn: %v", err)
	}
	if res.Intent != "asking" {
		t.Errorf("intent = %q, want asking", res.Intent)
	}
}

func TestProcessTurnAbortLeavesSessionUntouched(t *testing.T) {
	gen := &stageGenerator{responses: map[string]string{
		"safety":    `{"is_safe": true}`,
		"decision":  `{"intent":"answering","confidence":0.9,"specialists":["evaluator"],"strategy":"sequential","requirements":{"evaluator":{"focus":"correctness_only"}}}`,
		"evaluator": `{"is_correct":true,"score":1.0,"feedback":"ok","mastery_signal":"strong"}`,
		"composer":  `{"reply":"Nice.","asks_question":false}`,
		"summary":   `x`,
	}}
	orch, store := newTestOrchestrator(t, gen)
	sess := seedSession(t, store, func(s *models.Session) {
		s.CurrentStep = 2
		s.SetQuestion(models.Question{Text: "q", ExpectedAnswer: "a", Concept: "long-division"})
	})

	_, err := orch.ProcessTurn(context.Background(), sess.ID, "42")
	if !errors.Is(err, progress.ErrConceptNotInPlan) {
		t.Fatalf("expected ErrConceptNotInPlan, got %v", err)
	}

	stored, getErr := store.Get(context.Background(), sess.ID)
	if getErr != nil {
		t.Fatal(getErr)
	}
	if stored.TurnCount != 0 || len(stored.History) != 0 {
		t.Errorf("aborted turn leaked into the stored session: turns=%d history=%d", stored.TurnCount, len(stored.History))
	}
}

func TestProcessTurnFallbackDecision(t *testing.T) {
	gen := &stageGenerator{
		responses: map[string]string{
			"safety":    `{"is_safe": true}`,
			"evaluator": `{"is_correct":false,"score":0.4,"feedback":"Not quite.","mastery_signal":"adequate"}`,
			"composer":  `{"reply":"Not quite, but you're close. The numerator is on top.","asks_question":false}`,
			"summary":   `Student answered incorrectly.`,
		},
		errs: map[string]error{"decision": errors.New("model overloaded")},
	}
	orch, store := newTestOrchestrator(t, gen)
	sess := seedSession(t, store, func(s *models.Session) {
		s.CurrentStep = 2
		s.SetQuestion(models.Question{Text: "Which number is the numerator in 3/4?", ExpectedAnswer: "3", Concept: "numerator"})
	})

	res, err := orch.ProcessTurn(context.Background(), sess.ID, "the bottom one")
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if !res.FallbackDecision {
		t.Error("rule-table routing should be flagged on the result")
	}
	if res.Intent != "answering" {
		t.Errorf("pending question should dominate heuristic intent, got %q", res.Intent)
	}
	if !gen.called("evaluator") {
		t.Errorf("fallback routing for an answer must still invoke the evaluator, calls: %v", gen.calls)
	}
}

func TestProcessTurnUnknownSession(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &stageGenerator{})
	if _, err := orch.ProcessTurn(context.Background(), "missing", "hi"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("ProcessTurn() = %v, want ErrNotFound", err)
	}
}

func TestConcurrentTurnsDoNotLoseUpdates(t *testing.T) {
	gen := &stageGenerator{responses: map[string]string{
		"safety":    `{"is_safe": true}`,
		"decision":  `{"intent":"asking","confidence":0.8,"specialists":["explainer"],"strategy":"sequential","requirements":{"explainer":{"trigger_reason":"student asked","focus_area":"numerator"}}}`,
		"explainer": `{"explanation":"The numerator counts the parts you have."}`,
		"composer":  `{"reply":"The numerator counts the parts you have.","asks_question":false}`,
		"summary":   `Explained the numerator.`,
	}}
	orch, store := newTestOrchestrator(t, gen)
	sess := seedSession(t, store, nil)

	// A client retry fires the same message twice at once. Both turns must
	// land; neither may overwrite the other's state.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := orch.ProcessTurn(context.Background(), sess.ID, "what does numerator mean?"); err != nil {
				t.Errorf("ProcessTurn() error = %v", err)
			}
		}()
	}
	wg.Wait()

	stored, err := store.Get(context.Background(), sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.TurnCount != 2 {
		t.Errorf("turn count = %d, want 2 (a turn was lost)", stored.TurnCount)
	}
	if len(stored.History) != 4 {
		t.Errorf("history holds %d messages, want 4", len(stored.History))
	}
	if len(stored.Summary.Timeline) != 2 {
		t.Errorf("timeline holds %d entries, want 2", len(stored.Summary.Timeline))
	}
}
