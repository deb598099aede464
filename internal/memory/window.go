// Package memory manages the two-tier dialogue memory: a bounded verbatim
// window of recent messages, and a structured running summary rendered as a
// narrative for prompts.
package memory

import (
	"fmt"
	"strings"

	"tutord/pkg/models"
)

// DefaultWindowSize is the number of verbatim messages kept in a session's
// history when no size is configured.
const DefaultWindowSize = 10

// maxTimelineEntries caps the running summary's per-turn timeline.
const maxTimelineEntries = 30

// Window bounds a session's verbatim history and renders its summary.
type Window struct {
	size int
}

// NewWindow creates a window manager. size <= 0 selects DefaultWindowSize.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Window{size: size}
}

// Size returns the maximum number of messages kept.
func (w *Window) Size() int { return w.size }

// Append adds a message to the session history and trims the oldest entries
// so the window never exceeds its bound.
func (w *Window) Append(sess *models.Session, msg models.Message) {
	sess.History = append(sess.History, msg)
	if over := len(sess.History) - w.size; over > 0 {
		sess.History = sess.History[over:]
	}
}

// RecordTimeline appends one turn entry to the summary timeline, evicting the
// oldest entry once the cap is reached.
func RecordTimeline(sum *models.Summary, entry string) {
	if entry == "" {
		return
	}
	sum.Timeline = append(sum.Timeline, entry)
	if over := len(sum.Timeline) - maxTimelineEntries; over > 0 {
		sum.Timeline = sum.Timeline[over:]
	}
}

// Narrative renders the running summary as prompt text. An empty summary
// renders as the empty string.
func Narrative(sum models.Summary) string {
	var b strings.Builder

	if len(sum.Timeline) > 0 {
		b.WriteString("What has happened so far:\n")
		for _, e := range sum.Timeline {
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}
	writeList(&b, "Concepts taught", sum.ConceptsTaught)
	writeList(&b, "Examples already used", sum.ExamplesUsed)
	writeList(&b, "Analogies already used", sum.AnalogiesUsed)
	writeList(&b, "Stuck points", sum.StuckPoints)
	writeList(&b, "Open student requests", sum.OpenRequests)
	if b.Len() > 0 && sum.ProgressTrend != "" {
		fmt.Fprintf(&b, "Progress trend: %s\n", sum.ProgressTrend)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, strings.Join(items, "; "))
}
