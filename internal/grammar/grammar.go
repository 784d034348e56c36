// internal/grammar/grammar.go

// Package grammar defines the textual command dialects a model reply may use
// to mutate the artifact under construction, and how to detect and parse them
// out of free-form text. Classification is complete before any mutation is
// attempted; callers never inspect raw reply text themselves.
package grammar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Fence markers. A dialect opens with its marker token and closes at the last
// bare triple-backtick that follows it.
const (
	ReplaceMarker = "```REPLACE"
	EditMarker    = "```EDIT"
	closeMarker   = "```"
)

// ErrMalformed reports command text that matched a dialect fence but could
// not be parsed. Malformed model output is surfaced, never guessed at.
var ErrMalformed = errors.New("grammar: malformed command")

// Kind tags the command dialect a reply matched.
type Kind string

const (
	KindFullReplace  Kind = "full_replace"
	KindRangedEdit   Kind = "ranged_edit"
	KindUnrecognized Kind = "unrecognized"
)

// Command is the fully classified form of a model reply.
//
// For KindFullReplace, Body carries the complete new artifact text. For
// KindRangedEdit, Start and End delimit the half-open line range [Start, End)
// to replace and Lines carries the replacement body.
type Command struct {
	Kind  Kind
	Body  string
	Start int
	End   int
	Lines []string
}

// Detect determines which dialect, if any, a raw reply matches. Dialects are
// checked in a fixed priority order (REPLACE before EDIT) so an ambiguous
// reply resolves deterministically.
func Detect(reply string) Kind {
	if strings.Contains(reply, ReplaceMarker) {
		return KindFullReplace
	}
	if strings.Contains(reply, EditMarker) {
		return KindRangedEdit
	}
	return KindUnrecognized
}

// Parse extracts the command of the given kind from a raw reply.
func Parse(reply string, kind Kind) (Command, error) {
	switch kind {
	case KindFullReplace:
		return parseFullReplace(reply)
	case KindRangedEdit:
		return parseRangedEdit(reply)
	default:
		return Command{}, fmt.Errorf("%w: no dialect fence found", ErrMalformed)
	}
}

// fencedContent returns the text strictly between the opening marker and the
// last occurrence of the closing marker, trimmed of surrounding whitespace.
func fencedContent(reply, open string) (string, error) {
	start := strings.Index(reply, open)
	if start == -1 {
		return "", fmt.Errorf("%w: missing %s fence", ErrMalformed, open)
	}
	start += len(open)

	end := strings.LastIndex(reply, closeMarker)
	if end <= start {
		return "", fmt.Errorf("%w: missing closing fence after %s", ErrMalformed, open)
	}
	return strings.TrimSpace(reply[start:end]), nil
}

func parseFullReplace(reply string) (Command, error) {
	body, err := fencedContent(reply, ReplaceMarker)
	if err != nil {
		return Command{}, err
	}
	return Command{Kind: KindFullReplace, Body: body}, nil
}

func parseRangedEdit(reply string) (Command, error) {
	content, err := fencedContent(reply, EditMarker)
	if err != nil {
		return Command{}, err
	}

	lines := strings.Split(content, "\n")
	header := strings.Fields(lines[0])
	if len(header) != 2 {
		return Command{}, fmt.Errorf("%w: edit header must be exactly two integers, got %q", ErrMalformed, lines[0])
	}

	start, err := strconv.Atoi(header[0])
	if err != nil {
		return Command{}, fmt.Errorf("%w: invalid start line %q", ErrMalformed, header[0])
	}
	end, err := strconv.Atoi(header[1])
	if err != nil {
		return Command{}, fmt.Errorf("%w: invalid end line %q", ErrMalformed, header[1])
	}

	return Command{
		Kind:  KindRangedEdit,
		Start: start,
		End:   end,
		Lines: lines[1:],
	}, nil
}

// Docstring returns the tool description injected into the system prompt for
// a dialect, teaching the model how to issue it.
func Docstring(kind Kind) string {
	switch kind {
	case KindFullReplace:
		return "============= REWRITE TOOL =============\n" +
			"You have access to an artifact replacing tool.\n" +
			"This tool entirely rewrites the current artifact, erasing all existing content.\n" +
			"Use it via the following command: ```REPLACE\n<new artifact here>\n```"
	case KindRangedEdit:
		return "============= EDIT TOOL =============\n" +
			"You have access to an artifact editing tool.\n" +
			"This tool replaces lines [N, M) of the current artifact with as many new lines as you want.\n" +
			"Use it via the following command: ```EDIT N M\n<new lines to replace the old range>\n```"
	default:
		return ""
	}
}
