package expand

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sush-shell/sush/internal/ast"
	"github.com/sush-shell/sush/internal/parser"
)

// fakeStore is a minimal in-memory Store for expansion tests, grounded on
// the same Get/Set/IsSet surface internal/vars.Store exposes.
type fakeStore struct {
	scalars  map[string]string
	arrays   map[string][]string
	unset    map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{scalars: map[string]string{}, arrays: map[string][]string{}}
}

func (f *fakeStore) Get(name string) (string, bool) {
	if v, ok := f.scalars[name]; ok {
		return v, true
	}
	return "", false
}
func (f *fakeStore) IsSet(name string) bool {
	_, ok := f.scalars[name]
	if ok {
		return true
	}
	_, ok = f.arrays[name]
	return ok
}
func (f *fakeStore) Set(name, value string) { f.scalars[name] = value }
func (f *fakeStore) IndexedElements(name string) []string {
	return f.arrays[name]
}
func (f *fakeStore) Positional() []string { return f.arrays["@"] }

type fakeRunner struct {
	output string
	err    error
}

func (r fakeRunner) RunCapture(src string) (string, error) { return r.output, r.err }

func wordsOf(t *testing.T, src string) []*ast.Word {
	t.Helper()
	list, err := parser.Parse(src)
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	pipeline := list.Items[0].AndOr.First
	require.Len(t, pipeline.Commands, 1)
	cmd, ok := pipeline.Commands[0].(*ast.SimpleCommand)
	require.True(t, ok)
	return cmd.Words
}

func newTestContext(store *fakeStore) *Context {
	return &Context{
		Store:  store,
		Runner: fakeRunner{},
		IFS:    " \t\n",
		Dir:    ".",
		Unset: func(name, msg string) error {
			return errors.New(name + ": " + msg)
		},
	}
}

func expandSource(t *testing.T, src string, store *fakeStore) []string {
	t.Helper()
	words := wordsOf(t, src)
	ctx := newTestContext(store)
	var out []string
	for _, w := range words {
		fields, err := Word(w.Segments, ctx, false)
		require.NoError(t, err)
		out = append(out, fields...)
	}
	return out
}

func TestWordLiteral(t *testing.T) {
	out := expandSource(t, "echo hello", newFakeStore())
	assert.Equal(t, []string{"echo", "hello"}, out)
}

func TestWordSingleQuotedIsLiteral(t *testing.T) {
	store := newFakeStore()
	store.Set("FOO", "bar")
	out := expandSource(t, `echo '$FOO'`, store)
	assert.Equal(t, []string{"echo", "$FOO"}, out)
}

func TestWordParameterExpansion(t *testing.T) {
	store := newFakeStore()
	store.Set("FOO", "bar")
	out := expandSource(t, `echo $FOO`, store)
	assert.Equal(t, []string{"echo", "bar"}, out)
}

func TestWordParameterExpansionDefault(t *testing.T) {
	out := expandSource(t, `echo ${UNSET:-fallback}`, newFakeStore())
	assert.Equal(t, []string{"echo", "fallback"}, out)
}

func TestWordParameterExpansionError(t *testing.T) {
	words := wordsOf(t, `echo ${MISSING:?not set}`)
	ctx := newTestContext(newFakeStore())
	_, err := Word(words[1].Segments, ctx, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not set")
}

func TestWordFieldSplitting(t *testing.T) {
	store := newFakeStore()
	store.Set("LIST", "a b c")
	out := expandSource(t, `echo $LIST`, store)
	assert.Equal(t, []string{"echo", "a", "b", "c"}, out)
}

func TestWordQuotedPreventsSplitting(t *testing.T) {
	store := newFakeStore()
	store.Set("LIST", "a b c")
	out := expandSource(t, `echo "$LIST"`, store)
	assert.Equal(t, []string{"echo", "a b c"}, out)
}

func TestWordArithmeticSubstitution(t *testing.T) {
	out := expandSource(t, `echo $((1 + 2))`, newFakeStore())
	assert.Equal(t, []string{"echo", "3"}, out)
}

func TestWordCommandSubstitution(t *testing.T) {
	words := wordsOf(t, "echo $(ignored)")
	ctx := newTestContext(newFakeStore())
	ctx.Runner = fakeRunner{output: "captured\n"}
	fields, err := Word(words[1].Segments, ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"captured"}, fields)
}

func TestWordBraceExpansion(t *testing.T) {
	out := expandSource(t, `echo file.{a,b,c}`, newFakeStore())
	assert.Equal(t, []string{"echo", "file.a", "file.b", "file.c"}, out)
}

func TestWordTildeExpansion(t *testing.T) {
	store := newFakeStore()
	store.Set("HOME", "/home/u")
	out := expandSource(t, "echo ~", store)
	assert.Equal(t, []string{"echo", "/home/u"}, out)
}
