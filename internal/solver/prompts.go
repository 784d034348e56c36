// internal/solver/prompts.go
package solver

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/crucible/internal/buffer"
	"github.com/xkilldash9x/crucible/internal/grammar"
)

// Task is the input to one solver session.
type Task struct {
	// Plan is the goal statement the artifact must fulfill.
	Plan string
	// Insights is optional background knowledge (prior findings, domain
	// notes) surfaced to the model verbatim.
	Insights string
	// Notes are optional operator instructions for this session.
	Notes string
	// InitialArtifact seeds the buffer; empty starts from scratch.
	InitialArtifact string
}

// systemPrompt teaches the model its role and both command dialects.
func systemPrompt(task Task) string {
	var b strings.Builder
	b.WriteString("You are an expert engineer iteratively producing a working artifact that fulfills a plan.\n")
	b.WriteString("On every turn you must respond with exactly one command in one of the dialects below. ")
	b.WriteString("Respond with the command only, no surrounding commentary.\n\n")
	b.WriteString(grammar.Docstring(grammar.KindFullReplace))
	b.WriteString("\n\n")
	b.WriteString(grammar.Docstring(grammar.KindRangedEdit))
	if task.Notes != "" {
		fmt.Fprintf(&b, "\n\nOperator notes:\n%s", task.Notes)
	}
	return b.String()
}

// userPrompt renders the per-step state: plan, insights, recent attempt
// history, and the current artifact with line numbers so ranged edits can
// target it.
func userPrompt(task Task, artifact buffer.Artifact, hist *History, lastCritique string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan:\n%s\n", task.Plan)
	if task.Insights != "" {
		fmt.Fprintf(&b, "\nBackground insights:\n%s\n", task.Insights)
	}
	fmt.Fprintf(&b, "\nRecent attempts:\n%s\n", hist.Render())
	if lastCritique != "" {
		fmt.Fprintf(&b, "\nLatest feedback:\n%s\n", lastCritique)
	}
	if artifact.Len() == 0 {
		b.WriteString("\nThe current artifact is empty. Produce a first version with the rewrite tool.\n")
	} else {
		fmt.Fprintf(&b, "\nCurrent artifact (line-numbered):\n%s", artifact.NumberedText())
	}
	b.WriteString("\nIssue your next command now.")
	return b.String()
}
