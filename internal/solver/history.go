// internal/solver/history.go
package solver

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/crucible/internal/grammar"
)

// StepSummary is the bounded record of one completed step, kept for prompt
// context.
type StepSummary struct {
	Step     int
	Dialect  grammar.Kind
	Score    float64
	Critique string
	Fault    string
}

// History is a fixed-capacity window over the most recent step summaries.
// Once full, adding a new entry evicts the oldest, so prompt size stays
// bounded no matter how long the session runs.
type History struct {
	capacity int
	entries  []StepSummary
}

// NewHistory returns a history window of the given capacity.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{capacity: capacity}
}

// Add records a summary, evicting the oldest entry when the window is full.
func (h *History) Add(s StepSummary) {
	if len(h.entries) == h.capacity {
		copy(h.entries, h.entries[1:])
		h.entries[len(h.entries)-1] = s
		return
	}
	h.entries = append(h.entries, s)
}

// Len returns the number of retained summaries.
func (h *History) Len() int { return len(h.entries) }

// Entries returns a copy of the retained summaries, oldest first.
func (h *History) Entries() []StepSummary {
	cp := make([]StepSummary, len(h.entries))
	copy(cp, h.entries)
	return cp
}

// Render formats the window for inclusion in a prompt.
func (h *History) Render() string {
	if len(h.entries) == 0 {
		return "No previous attempts."
	}
	var b strings.Builder
	for _, e := range h.entries {
		fmt.Fprintf(&b, "Step %d (%s): score %.2f. %s", e.Step, e.Dialect, e.Score, e.Critique)
		if e.Fault != "" {
			fmt.Fprintf(&b, " Fault: %s", firstLine(e.Fault))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i != -1 {
		return s[:i]
	}
	return s
}
