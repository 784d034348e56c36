package grammar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  Kind
	}{
		{"replace fence", "```REPLACE\nprint(1)\n```", KindFullReplace},
		{"edit fence", "```EDIT 1 2\nnew line\n```", KindRangedEdit},
		{"replace wins over edit", "```REPLACE\nx\n``` and also ```EDIT 0 1\ny\n```", KindFullReplace},
		{"no fence", "Let me think about this problem first.", KindUnrecognized},
		{"plain code block is not a command", "```python\nprint(1)\n```", KindUnrecognized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.reply))
		})
	}
}

func TestParse_FullReplace(t *testing.T) {
	cmd, err := Parse("Here is the new version:\n```REPLACE\nprint(1)\n```", KindFullReplace)
	require.NoError(t, err)
	assert.Equal(t, KindFullReplace, cmd.Kind)
	assert.Equal(t, "print(1)", cmd.Body)
}

func TestParse_FullReplace_UsesLastClosingFence(t *testing.T) {
	// An artifact body may itself contain code fences; only the last closing
	// marker terminates the command.
	reply := "```REPLACE\ndoc = \"```python\"\nprint(doc)\n```"
	cmd, err := Parse(reply, KindFullReplace)
	require.NoError(t, err)
	assert.Equal(t, "doc = \"```python\"\nprint(doc)", cmd.Body)
}

func TestParse_FullReplace_RoundTrip(t *testing.T) {
	body := "import numpy as np\n\nprint(np.zeros(3))"
	reply := ReplaceMarker + "\n" + body + "\n```"
	cmd, err := Parse(reply, KindFullReplace)
	require.NoError(t, err)
	assert.Equal(t, body, cmd.Body)
}

func TestParse_FullReplace_Malformed(t *testing.T) {
	for _, reply := range []string{
		"```REPLACE print(1)",      // no closing fence
		"``` closed before opened", // marker absent
	} {
		_, err := Parse(reply, KindFullReplace)
		assert.ErrorIs(t, err, ErrMalformed, "reply %q", reply)
	}
}

func TestParse_RangedEdit(t *testing.T) {
	cmd, err := Parse("```EDIT 1 2\nnewline1\n```", KindRangedEdit)
	require.NoError(t, err)
	assert.Equal(t, KindRangedEdit, cmd.Kind)
	assert.Equal(t, 1, cmd.Start)
	assert.Equal(t, 2, cmd.End)
	assert.Equal(t, []string{"newline1"}, cmd.Lines)
}

func TestParse_RangedEdit_EmptyReplacementDeletesRange(t *testing.T) {
	cmd, err := Parse("```EDIT 3 5\n```", KindRangedEdit)
	require.NoError(t, err)
	assert.Equal(t, 3, cmd.Start)
	assert.Equal(t, 5, cmd.End)
	assert.Empty(t, cmd.Lines)
}

func TestParse_RangedEdit_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"non-numeric bound", "```EDIT 1 x\nbody\n```"},
		{"single integer header", "```EDIT 1\nbody\n```"},
		{"three integers header", "```EDIT 1 2 3\nbody\n```"},
		{"empty fence", "```EDIT\n```"},
		{"no closing fence", "```EDIT 1 2\nbody"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.reply, KindRangedEdit)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestParse_Unrecognized(t *testing.T) {
	_, err := Parse("no command here", KindUnrecognized)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDocstring(t *testing.T) {
	assert.Contains(t, Docstring(KindFullReplace), "```REPLACE")
	assert.Contains(t, Docstring(KindRangedEdit), "```EDIT")
	assert.Empty(t, Docstring(KindUnrecognized))
}
