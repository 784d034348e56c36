// internal/buffer/buffer.go

// Package buffer holds the artifact under iterative construction as an
// ordered, line-indexed value. All operations are pure: they return a new
// Artifact and never mutate the receiver, so any historical snapshot remains
// valid for rollback and session cancellation can never observe a partially
// mutated buffer.
package buffer

import (
	"errors"
	"fmt"
	"strings"
)

// ErrOutOfRange reports a ranged edit whose bounds violate the invariant
// 0 <= start <= end <= len(artifact). Invalid ranges are rejected, not
// clamped, so malformed model output surfaces instead of silently mutating
// unintended regions.
var ErrOutOfRange = errors.New("buffer: edit range out of bounds")

// Artifact is an ordered sequence of text lines.
type Artifact struct {
	lines []string
}

// New returns an empty artifact.
func New() Artifact {
	return Artifact{}
}

// FromText splits a text body on newlines into an artifact.
func FromText(body string) Artifact {
	if body == "" {
		return Artifact{}
	}
	return Artifact{lines: strings.Split(body, "\n")}
}

// FromLines builds an artifact from a copy of the given lines.
func FromLines(lines []string) Artifact {
	if len(lines) == 0 {
		return Artifact{}
	}
	cp := make([]string, len(lines))
	copy(cp, lines)
	return Artifact{lines: cp}
}

// Len returns the number of lines.
func (a Artifact) Len() int { return len(a.lines) }

// Lines returns a copy of the artifact's lines.
func (a Artifact) Lines() []string {
	cp := make([]string, len(a.lines))
	copy(cp, a.lines)
	return cp
}

// Text joins the artifact back into a single newline-separated body.
func (a Artifact) Text() string {
	return strings.Join(a.lines, "\n")
}

// NumberedText renders the artifact with zero-based line indices, the form
// shown to the model so it can issue ranged edits.
func (a Artifact) NumberedText() string {
	var b strings.Builder
	for i, line := range a.lines {
		fmt.Fprintf(&b, "%d %s\n", i, line)
	}
	return b.String()
}

// FullReplace overwrites the artifact wholesale with the new body.
func (a Artifact) FullReplace(body string) Artifact {
	return FromText(body)
}

// RangedEdit removes the half-open line range [start, end) and splices
// newLines in at start. It fails with ErrOutOfRange if the bounds invariant
// is violated; the receiver is left untouched either way.
func (a Artifact) RangedEdit(start, end int, newLines []string) (Artifact, error) {
	if start < 0 || start > end || end > len(a.lines) {
		return Artifact{}, fmt.Errorf("%w: [%d, %d) against %d lines", ErrOutOfRange, start, end, len(a.lines))
	}

	out := make([]string, 0, len(a.lines)-(end-start)+len(newLines))
	out = append(out, a.lines[:start]...)
	out = append(out, newLines...)
	out = append(out, a.lines[end:]...)
	return Artifact{lines: out}, nil
}
