package vars

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSetGet(t *testing.T) {
	s := &Store{scopes: []*scope{newScope()}, functions: make(map[string]interface{})}

	s.Set("FOO", "bar")
	v, ok := s.Get("FOO")
	require.True(t, ok)
	assert.Equal(t, "bar", v)

	_, ok = s.Get("NOPE")
	assert.False(t, ok)
}

func TestStoreLocalShadowing(t *testing.T) {
	s := &Store{scopes: []*scope{newScope()}, functions: make(map[string]interface{})}
	s.Set("X", "outer")

	s.PushFunctionScope()
	s.SetLocal("X", "inner", true)
	v, ok := s.Get("X")
	require.True(t, ok)
	assert.Equal(t, "inner", v)

	s.PopFunctionScope()
	v, ok = s.Get("X")
	require.True(t, ok)
	assert.Equal(t, "outer", v, "popping the function scope should restore the outer binding")
}

func TestStoreSetWritesThroughExistingLocal(t *testing.T) {
	s := &Store{scopes: []*scope{newScope()}, functions: make(map[string]interface{})}
	s.PushFunctionScope()
	s.SetLocal("X", "initial", true)
	s.Set("X", "updated")

	v, ok := s.Get("X")
	require.True(t, ok)
	assert.Equal(t, "updated", v)

	s.PopFunctionScope()
	_, ok = s.Get("X")
	assert.False(t, ok, "a local that was never declared outside the function must not leak")
}

func TestStoreIndexedArray(t *testing.T) {
	s := &Store{scopes: []*scope{newScope()}, functions: make(map[string]interface{})}
	s.SetIndexed("A", 0, "zero")
	s.SetIndexed("A", 2, "two")

	elems := s.IndexedElements("A")
	assert.Equal(t, []string{"zero", "two"}, elems)

	v, ok := s.Get("A")
	require.True(t, ok)
	assert.Equal(t, "zero", v, "$A on an indexed array yields its lowest-index element")
}

func TestStoreAssocArray(t *testing.T) {
	s := &Store{scopes: []*scope{newScope()}, functions: make(map[string]interface{})}
	s.SetAssoc("M", "k1", "v1")
	s.SetAssoc("M", "k2", "v2")

	e := s.GetEntry("M")
	require.NotNil(t, e)
	assert.Equal(t, KindAssocArray, e.Kind)
	assert.Equal(t, "v1", e.Assoc["k1"])
}

func TestStoreUnset(t *testing.T) {
	s := &Store{scopes: []*scope{newScope()}, functions: make(map[string]interface{})}
	s.Set("FOO", "bar")
	s.Unset("FOO")
	_, ok := s.Get("FOO")
	assert.False(t, ok)
}

func TestStoreCloneIsIndependent(t *testing.T) {
	s := &Store{scopes: []*scope{newScope()}, functions: make(map[string]interface{})}
	s.Set("FOO", "bar")

	clone := s.Clone()
	clone.Set("FOO", "changed")

	v, _ := s.Get("FOO")
	assert.Equal(t, "bar", v, "writes in a cloned store must not affect the parent")

	v, _ = clone.Get("FOO")
	assert.Equal(t, "changed", v)
}

func TestStorePositional(t *testing.T) {
	s := &Store{scopes: []*scope{newScope()}, functions: make(map[string]interface{})}
	s.SetPositional([]string{"a", "b", "c"})
	assert.Equal(t, []string{"a", "b", "c"}, s.Positional())
}

func TestStoreFunction(t *testing.T) {
	s := &Store{scopes: []*scope{newScope()}, functions: make(map[string]interface{})}
	_, ok := s.Function("greet")
	assert.False(t, ok)

	s.SetFunction("greet", "body-placeholder")
	body, ok := s.Function("greet")
	require.True(t, ok)
	assert.Equal(t, "body-placeholder", body)
}

func TestStoreExportReflectsInEnviron(t *testing.T) {
	s := &Store{scopes: []*scope{newScope()}, functions: make(map[string]interface{})}
	s.Set("A", "1")
	s.Export("A")

	environ := s.Environ()
	assert.Contains(t, environ, "A=1")
}
