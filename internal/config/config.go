// Package config binds sush's ambient configuration: environment
// variables consumed via envconfig (SPEC_FULL.md §2/§6) and the optional
// `~/.sushrc.yaml` startup file (SPEC_FULL.md §10). Neither layer
// touches POSIX shell variables themselves — those live in vars.Store;
// this package only governs the shell binary's own behavior knobs.
package config

import (
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Env holds the SUSH_* environment-bound tunables. Field names follow
// envconfig's default SUSH_<FIELD_NAME> mapping.
type Env struct {
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	NoRC        bool   `envconfig:"NORC" default:"false"`
	RCFile      string `envconfig:"RCFILE"`
	HistoryFile string `envconfig:"HISTFILE"`
	HistorySize int    `envconfig:"HISTSIZE" default:"500"`
}

// LoadEnv binds SUSH_* environment variables into an Env, matching the
// teacher's convention of failing fast on a malformed environment rather
// than silently ignoring it.
func LoadEnv() (*Env, error) {
	var e Env
	if err := envconfig.Process("sush", &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// RC is the optional `~/.sushrc.yaml` startup file contents
// (SPEC_FULL.md §10's ambient-config-only supplement: it configures the
// shell binary, it is not a script of shell commands).
type RC struct {
	PS1          string            `yaml:"ps1"`
	PS2          string            `yaml:"ps2"`
	Aliases      map[string]string `yaml:"aliases"`
	HistoryFile  string            `yaml:"history_file"`
	DisableGlob  bool              `yaml:"disable_glob"`
	ExtGlob      bool              `yaml:"extglob"`
}

// DefaultRCPath returns `~/.sushrc.yaml`, the file LoadRC reads absent an
// explicit override from Env.RCFile.
func DefaultRCPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".sushrc.yaml")
}

// LoadRC reads and parses the rc file at path. A missing file is not an
// error: it returns a zero-value RC so startup proceeds with defaults.
func LoadRC(path string) (*RC, error) {
	if path == "" {
		path = DefaultRCPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &RC{}, nil
		}
		return nil, err
	}
	var rc RC
	if err := yaml.Unmarshal(data, &rc); err != nil {
		return nil, err
	}
	return &rc, nil
}
