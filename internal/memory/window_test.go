package memory

import (
	"fmt"
	"strings"
	"testing"

	"tutord/pkg/models"
)

func TestWindowBound(t *testing.T) {
	w := NewWindow(4)
	sess := &models.Session{}

	for i := 0; i < 10; i++ {
		w.Append(sess, models.NewStudentMessage(fmt.Sprintf("message %d", i)))
	}
	if len(sess.History) != 4 {
		t.Fatalf("expected 4 messages retained, got %d", len(sess.History))
	}
	if sess.History[0].Content != "message 6" {
		t.Errorf("expected oldest retained message to be 'message 6', got %q", sess.History[0].Content)
	}
	if sess.History[3].Content != "message 9" {
		t.Errorf("expected newest message to be 'message 9', got %q", sess.History[3].Content)
	}
}

func TestWindowDefaultSize(t *testing.T) {
	w := NewWindow(0)
	if w.Size() != DefaultWindowSize {
		t.Errorf("expected default size %d, got %d", DefaultWindowSize, w.Size())
	}
}

func TestRecordTimelineCap(t *testing.T) {
	var sum models.Summary
	for i := 0; i < maxTimelineEntries+10; i++ {
		RecordTimeline(&sum, fmt.Sprintf("turn %d", i))
	}
	if len(sum.Timeline) != maxTimelineEntries {
		t.Fatalf("expected timeline capped at %d, got %d", maxTimelineEntries, len(sum.Timeline))
	}
	if sum.Timeline[0] != "turn 10" {
		t.Errorf("expected oldest surviving entry 'turn 10', got %q", sum.Timeline[0])
	}
}

func TestRecordTimelineIgnoresEmpty(t *testing.T) {
	var sum models.Summary
	RecordTimeline(&sum, "")
	if len(sum.Timeline) != 0 {
		t.Errorf("empty entry should not be recorded, got %v", sum.Timeline)
	}
}

func TestNarrativeEmpty(t *testing.T) {
	if got := Narrative(models.Summary{}); got != "" {
		t.Errorf("empty summary should render empty, got %q", got)
	}
}

func TestNarrativeRendering(t *testing.T) {
	sum := models.Summary{
		Timeline:       []string{"Student was introduced to fractions", "Student answered a check correctly"},
		ConceptsTaught: []string{"numerator"},
		ExamplesUsed:   []string{"pizza slices", "chocolate bar"},
		AnalogiesUsed:  []string{"sharing a cake"},
		StuckPoints:    []string{"denominator"},
		OpenRequests:   []string{"wants a harder question"},
		ProgressTrend:  models.TrendImproving,
	}
	got := Narrative(sum)

	for _, want := range []string{
		"Student was introduced to fractions",
		"pizza slices; chocolate bar",
		"sharing a cake",
		"denominator",
		"wants a harder question",
		"improving",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("narrative missing %q:\n%s", want, got)
		}
	}
}

func TestFallbackEntry(t *testing.T) {
	topic := &models.Topic{
		ID: "t", Name: "T", Subject: "math", GradeLevel: 4,
		Plan: models.StudyPlan{Steps: []models.Step{{ID: 1, Type: models.StepExplain, Concept: "numerator"}}},
	}
	sess := models.NewSession(topic, models.DefaultProfile())

	tests := []struct {
		intent string
		want   string
	}{
		{"answering", "numerator"},
		{"expressing-confusion", "numerator"},
		{"off-topic", "redirected"},
		{"unsafe", "flagged"},
		{"ready-to-continue", "numerator"},
	}
	for _, tt := range tests {
		got := FallbackEntry(sess, tt.intent)
		if !strings.Contains(got, tt.want) {
			t.Errorf("FallbackEntry(%s) = %q, want it to mention %q", tt.intent, got, tt.want)
		}
	}

	// Same state, same entry.
	if FallbackEntry(sess, "answering") != FallbackEntry(sess, "answering") {
		t.Error("fallback entry must be deterministic")
	}
}
