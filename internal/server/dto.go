package server

import (
	"tutord/pkg/models"
)

// SessionSnapshot is the client-facing view of a session's learning state.
type SessionSnapshot struct {
	SessionID      string                  `json:"session_id"`
	TopicID        string                  `json:"topic_id"`
	TopicName      string                  `json:"topic_name"`
	TurnCount      int                     `json:"turn_count"`
	CurrentStep    int                     `json:"current_step"`
	TotalSteps     int                     `json:"total_steps"`
	Progress       float64                 `json:"progress"`
	Completed      bool                    `json:"completed"`
	AwaitingAnswer bool                    `json:"awaiting_answer"`
	PendingQuestion string                 `json:"pending_question,omitempty"`
	Mastery        map[string]MasteryEntry `json:"mastery"`
	OverallMastery float64                 `json:"overall_mastery"`
	Trend          string                  `json:"trend"`
	Misconceptions []string                `json:"misconceptions,omitempty"`
	WarningCount   int                     `json:"warning_count,omitempty"`
}

// MasteryEntry pairs a score with its named level.
type MasteryEntry struct {
	Score float64 `json:"score"`
	Level string  `json:"level"`
}

// TopicSummary is the list view of a topic.
type TopicSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Subject    string `json:"subject"`
	GradeLevel int    `json:"grade_level"`
	Steps      int    `json:"steps"`
}

func snapshotOf(sess *models.Session) SessionSnapshot {
	snap := SessionSnapshot{
		SessionID:      sess.ID,
		TurnCount:      sess.TurnCount,
		CurrentStep:    sess.CurrentStep,
		Progress:       sess.Progress(),
		Completed:      sess.Complete(),
		AwaitingAnswer: sess.AwaitingAnswer,
		Mastery:        make(map[string]MasteryEntry, len(sess.Mastery)),
		OverallMastery: sess.OverallMastery(),
		Trend:          string(sess.Summary.ProgressTrend),
		WarningCount:   sess.WarningCount,
	}
	if sess.Topic != nil {
		snap.TopicID = sess.Topic.ID
		snap.TopicName = sess.Topic.Name
		snap.TotalSteps = sess.Topic.Plan.TotalSteps()
	}
	if sess.PendingQuestion != nil {
		snap.PendingQuestion = sess.PendingQuestion.Text
	}
	for concept, score := range sess.Mastery {
		snap.Mastery[concept] = MasteryEntry{Score: score, Level: models.MasteryLevel(score)}
	}
	for _, m := range sess.Misconceptions {
		if !m.Resolved {
			snap.Misconceptions = append(snap.Misconceptions, m.Description)
		}
	}
	return snap
}

func topicSummaryOf(t *models.Topic) TopicSummary {
	return TopicSummary{
		ID:         t.ID,
		Name:       t.Name,
		Subject:    t.Subject,
		GradeLevel: t.GradeLevel,
		Steps:      t.Plan.TotalSteps(),
	}
}
