// Package orchestrator runs the turn pipeline: safety pre-check, routing
// decision, specialist execution, composition, and state update, in that
// order, for every student message.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tutord/internal/composer"
	"tutord/internal/coordinator"
	"tutord/internal/decision"
	"tutord/internal/llm"
	"tutord/internal/memory"
	"tutord/internal/progress"
	"tutord/internal/session"
	"tutord/internal/specialist"
	"tutord/internal/transcript"
	"tutord/pkg/models"
)

// TurnResult is what one processed student message produced.
type TurnResult struct {
	SessionID   string         `json:"session_id"`
	TurnNo      int            `json:"turn_no"`
	Reply       string         `json:"reply"`
	Intent      string         `json:"intent"`
	Specialists []string       `json:"specialists,omitempty"`
	Delta       progress.Delta `json:"delta"`
	// FallbackDecision is true when the rule table routed the turn.
	FallbackDecision bool `json:"fallback_decision,omitempty"`
	// Degraded is true when the reply came from the static apology path.
	Degraded bool `json:"degraded,omitempty"`
	// Completed is true when the study plan finished this turn.
	Completed bool `json:"completed,omitempty"`
}

// TopicSource resolves topic ids; the curriculum library implements it.
type TopicSource interface {
	Get(id string) (*models.Topic, bool)
}

// Orchestrator owns one deployment's turn processing.
type Orchestrator struct {
	store       session.Store
	topics      TopicSource
	gen         llm.Generator
	window      *memory.Window
	summarizer  *memory.Summarizer
	engine      *decision.Engine
	coordinator *coordinator.Coordinator
	composer    *composer.Composer
	updater     *progress.Updater
	safety      *specialist.Safety
	transcript  *transcript.Store
	log         *zap.Logger
	turnTimeout time.Duration
	// turnLocks serializes turns per session id, so concurrent messages for
	// the same session never race on snapshot-and-save.
	turnLocks sync.Map
}

// Config configures an Orchestrator. Store, Topics, Generator, Engine,
// Coordinator, Composer, Updater, Summarizer, and Safety are required;
// Transcript is optional.
type Config struct {
	Store       session.Store
	Topics      TopicSource
	Generator   llm.Generator
	Window      *memory.Window
	Summarizer  *memory.Summarizer
	Engine      *decision.Engine
	Coordinator *coordinator.Coordinator
	Composer    *composer.Composer
	Updater     *progress.Updater
	Safety      *specialist.Safety
	Transcript  *transcript.Store
	Logger      *zap.Logger
	// TurnTimeout bounds the whole pipeline per message. Defaults to 90s.
	TurnTimeout time.Duration
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Window == nil {
		cfg.Window = memory.NewWindow(0)
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 90 * time.Second
	}
	return &Orchestrator{
		store:       cfg.Store,
		topics:      cfg.Topics,
		gen:         cfg.Generator,
		window:      cfg.Window,
		summarizer:  cfg.Summarizer,
		engine:      cfg.Engine,
		coordinator: cfg.Coordinator,
		composer:    cfg.Composer,
		updater:     cfg.Updater,
		safety:      cfg.Safety,
		transcript:  cfg.Transcript,
		log:         cfg.Logger,
		turnTimeout: cfg.TurnTimeout,
	}
}

// StartSession creates a session on a topic and returns it with the opening
// tutor message. A nil profile selects the defaults.
func (o *Orchestrator) StartSession(ctx context.Context, topicID string, profile *models.StudentProfile) (*models.Session, string, error) {
	topic, ok := o.topics.Get(topicID)
	if !ok {
		return nil, "", fmt.Errorf("unknown topic %q", topicID)
	}
	p := models.DefaultProfile()
	if profile != nil {
		p = *profile
	}
	sess := models.NewSession(topic, p)

	welcome := o.welcome(ctx, sess)
	o.window.Append(sess, models.NewTutorMessage(welcome))

	if err := o.store.Put(ctx, sess); err != nil {
		return nil, "", fmt.Errorf("save new session: %w", err)
	}
	o.log.Info("session started",
		zap.String("session", sess.ID),
		zap.String("topic", topic.ID))
	return sess, welcome, nil
}

func (o *Orchestrator) welcome(ctx context.Context, sess *models.Session) string {
	callCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	prompt := fmt.Sprintf(`Greet a grade %d student starting a lesson on %q and invite them to
begin with the first step (%s). Two sentences, warm, no JSON.`,
		sess.Profile.Grade, sess.Topic.Name, firstConcept(sess))
	text, err := o.gen.Generate(callCtx, llm.Request{
		System:    "You are a friendly tutor greeting a student.",
		Prompt:    prompt,
		Effort:    llm.EffortFast,
		MaxTokens: 200,
	})
	if err != nil || strings.TrimSpace(text) == "" {
		return fmt.Sprintf("Hi! Today we're looking at %s. Ready to start?", sess.Topic.Name)
	}
	return strings.TrimSpace(text)
}

// ProcessTurn runs the full pipeline for one student message. Turns for the
// same session run strictly one after another. The session is mutated on a
// snapshot and saved only when the whole turn succeeds, so an aborted turn
// leaves the stored session exactly as it was.
func (o *Orchestrator) ProcessTurn(ctx context.Context, sessionID, text string) (TurnResult, error) {
	unlock := o.lockSession(sessionID)
	defer unlock()

	stored, err := o.store.Get(ctx, sessionID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	work := stored.Snapshot()

	msg := models.NewStudentMessage(text)
	o.window.Append(work, msg)

	turnCtx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()

	narrative := memory.Narrative(work.Summary)
	base := specialist.Input{Session: work, Message: msg, Narrative: narrative}

	// Moderation runs before any routing. A verdict error counts as safe.
	verdict, verr := o.safety.Check(turnCtx, base)
	if verr != nil {
		o.log.Warn("safety check unavailable, treating message as safe",
			zap.String("session", work.ID),
			zap.Error(verr))
	}
	if !verdict.Safe {
		return o.finishUnsafeTurn(ctx, work, msg, verdict)
	}

	dec := o.engine.Decide(turnCtx, work, narrative, msg)
	results := o.coordinator.Execute(turnCtx, dec, base)
	comp := o.composer.Compose(turnCtx, dec, results, base)

	delta, err := o.updater.Apply(work, dec, results, comp)
	if err != nil {
		o.log.Error("turn aborted, session state preserved",
			zap.String("session", work.ID),
			zap.String("intent", string(dec.Intent)),
			zap.Error(err))
		return TurnResult{}, fmt.Errorf("turn aborted: %w", err)
	}

	o.window.Append(work, models.NewTutorMessage(comp.Text))
	entry := o.summarizer.Summarize(turnCtx, work, text, comp.Text, string(dec.Intent))
	memory.RecordTimeline(&work.Summary, entry)

	if err := o.store.Put(ctx, work); err != nil {
		return TurnResult{}, fmt.Errorf("save session: %w", err)
	}

	result := TurnResult{
		SessionID:        work.ID,
		TurnNo:           work.TurnCount,
		Reply:            comp.Text,
		Intent:           string(dec.Intent),
		Specialists:      specialistNames(dec),
		Delta:            delta,
		FallbackDecision: dec.Fallback,
		Degraded:         comp.Degraded,
		Completed:        delta.Completed,
	}
	o.record(ctx, result, text)
	return result, nil
}

// finishUnsafeTurn short-circuits the pipeline with the moderation guidance
// as the reply. The decision engine and specialists never see the message.
func (o *Orchestrator) finishUnsafeTurn(ctx context.Context, work *models.Session, msg models.Message, verdict specialist.SafetyVerdict) (TurnResult, error) {
	o.updater.ApplySafety(work, verdict)
	o.window.Append(work, models.NewTutorMessage(verdict.Guidance))
	memory.RecordTimeline(&work.Summary, memory.FallbackEntry(work, "unsafe"))

	if err := o.store.Put(ctx, work); err != nil {
		return TurnResult{}, fmt.Errorf("save session: %w", err)
	}
	o.log.Info("unsafe message handled",
		zap.String("session", work.ID),
		zap.String("violation", verdict.ViolationType),
		zap.Int("warnings", work.WarningCount))

	result := TurnResult{
		SessionID: work.ID,
		TurnNo:    work.TurnCount,
		Reply:     verdict.Guidance,
		Intent:    string(decision.IntentUnsafe),
	}
	o.record(ctx, result, msg.Content)
	return result, nil
}

// record appends the turn to the transcript. Transcript failures are logged,
// never surfaced to the student.
func (o *Orchestrator) record(ctx context.Context, res TurnResult, studentMsg string) {
	if o.transcript == nil {
		return
	}
	delta, err := json.Marshal(res.Delta)
	if err != nil {
		delta = []byte("{}")
	}
	err = o.transcript.Append(ctx, transcript.Turn{
		SessionID:   res.SessionID,
		TurnNo:      res.TurnNo,
		StudentMsg:  studentMsg,
		Reply:       res.Reply,
		Intent:      res.Intent,
		Specialists: res.Specialists,
		StateDelta:  delta,
		Degraded:    res.Degraded,
	})
	if err != nil {
		o.log.Warn("transcript append failed",
			zap.String("session", res.SessionID),
			zap.Error(err))
	}
}

// lockSession takes the per-session turn lock and returns its release.
func (o *Orchestrator) lockSession(id string) func() {
	m, _ := o.turnLocks.LoadOrStore(id, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func specialistNames(dec decision.Decision) []string {
	names := make([]string, len(dec.Specialists))
	for i, s := range dec.Specialists {
		names[i] = string(s)
	}
	return names
}

func firstConcept(sess *models.Session) string {
	if sess.Topic != nil && len(sess.Topic.Plan.Steps) > 0 {
		return sess.Topic.Plan.Steps[0].Concept
	}
	return "the basics"
}
