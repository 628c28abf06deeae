package input

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptedReadLine(t *testing.T) {
	src := NewScripted(strings.NewReader("echo one\necho two\n"))
	defer src.Close()

	line, err := src.ReadLine("")
	require.NoError(t, err)
	assert.Equal(t, "echo one", line)

	line, err = src.ReadLine("")
	require.NoError(t, err)
	assert.Equal(t, "echo two", line)

	_, err = src.ReadLine("")
	assert.ErrorIs(t, err, io.EOF)
}

func TestScriptedReadLineEmptyInput(t *testing.T) {
	src := NewScripted(strings.NewReader(""))
	_, err := src.ReadLine("")
	assert.ErrorIs(t, err, io.EOF)
}

// fakeSource replays a fixed list of lines, returning io.EOF once
// exhausted, matching the shape ReadCommand expects from a real
// LineSource.
type fakeSource struct {
	lines    []string
	i        int
	prompts  []string
}

func (f *fakeSource) ReadLine(prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.i >= len(f.lines) {
		return "", io.EOF
	}
	l := f.lines[f.i]
	f.i++
	return l, nil
}

func (f *fakeSource) Close() error { return nil }

func TestReadCommandSingleLine(t *testing.T) {
	src := &fakeSource{lines: []string{"echo hi"}}
	out, err := ReadCommand(src, "$ ", "> ")
	require.NoError(t, err)
	assert.Equal(t, "echo hi", out)
	assert.Equal(t, []string{"$ "}, src.prompts)
}

func TestReadCommandMultiLineUsesContinuationPrompt(t *testing.T) {
	src := &fakeSource{lines: []string{`echo "unterminated`, `still going"`}}
	out, err := ReadCommand(src, "$ ", "> ")
	require.NoError(t, err)
	assert.Equal(t, "echo \"unterminated\nstill going\"", out)
	assert.Equal(t, []string{"$ ", "> "}, src.prompts)
}

func TestReadCommandEOFMidConstructReturnsAccumulatedText(t *testing.T) {
	src := &fakeSource{lines: []string{`echo "never closed`}}
	out, err := ReadCommand(src, "$ ", "> ")
	require.NoError(t, err)
	assert.Equal(t, `echo "never closed`, out)
}

func TestReadCommandImmediateEOFPropagates(t *testing.T) {
	src := &fakeSource{lines: nil}
	_, err := ReadCommand(src, "$ ", "> ")
	assert.ErrorIs(t, err, io.EOF)
}

func TestIsInterrupted(t *testing.T) {
	assert.True(t, IsInterrupted(errInterrupted))
	assert.False(t, IsInterrupted(errors.New("boom")))
	assert.False(t, IsInterrupted(io.EOF))
}
