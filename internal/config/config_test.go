package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvDefaults(t *testing.T) {
	for _, key := range []string{"SUSH_DEBUG", "SUSH_NORC", "SUSH_RCFILE", "SUSH_HISTFILE", "SUSH_HISTSIZE"} {
		require.NoError(t, os.Unsetenv(key))
	}

	env, err := LoadEnv()
	require.NoError(t, err)
	assert.False(t, env.Debug)
	assert.False(t, env.NoRC)
	assert.Equal(t, 500, env.HistorySize)
	assert.Equal(t, "", env.RCFile)
}

func TestLoadEnvFromEnvironment(t *testing.T) {
	t.Setenv("SUSH_DEBUG", "true")
	t.Setenv("SUSH_HISTSIZE", "2000")
	t.Setenv("SUSH_RCFILE", "/tmp/custom.yaml")

	env, err := LoadEnv()
	require.NoError(t, err)
	assert.True(t, env.Debug)
	assert.Equal(t, 2000, env.HistorySize)
	assert.Equal(t, "/tmp/custom.yaml", env.RCFile)
}

func TestLoadEnvMalformedFailsFast(t *testing.T) {
	t.Setenv("SUSH_HISTSIZE", "not-a-number")
	_, err := LoadEnv()
	require.Error(t, err)
}

func TestLoadRCMissingFileReturnsZeroValue(t *testing.T) {
	rc, err := LoadRC(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, &RC{}, rc)
}

func TestLoadRCParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sushrc.yaml")
	contents := `
ps1: "> "
ps2: ">> "
aliases:
  ll: "ls -la"
  gs: "git status"
disable_glob: true
extglob: true
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	rc, err := LoadRC(path)
	require.NoError(t, err)
	assert.Equal(t, "> ", rc.PS1)
	assert.Equal(t, ">> ", rc.PS2)
	assert.Equal(t, "ls -la", rc.Aliases["ll"])
	assert.True(t, rc.DisableGlob)
	assert.True(t, rc.ExtGlob)
}

func TestLoadRCInvalidYAMLErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ps1: [unterminated"), 0644))

	_, err := LoadRC(path)
	require.Error(t, err)
}

func TestDefaultRCPathUsesHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	assert.Equal(t, filepath.Join(home, ".sushrc.yaml"), DefaultRCPath())
}

func TestLoadRCEmptyPathFallsBackToDefault(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(home, ".sushrc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ps1: \"$ \"\n"), 0644))

	rc, err := LoadRC("")
	require.NoError(t, err)
	assert.Equal(t, "$ ", rc.PS1)
}
