// Package logging wires up the shell's diagnostic side channel
// (SPEC_FULL.md §2/§7): structured logging via zap that never affects
// exit status. Log entries go to stderr: Warn-and-above by default, and
// Debug-and-above with --debug/SUSH_DEBUG.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger writing to stderr. debug selects development
// encoding with Debug level enabled; the quiet default is Warn-and-above
// so ordinary interactive use produces no log noise at all.
func New(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		cfg.Development = true
		cfg.Encoding = "console"
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}

	return cfg.Build()
}

// Nop returns a logger that discards everything, used by tests and by
// any component constructed without an explicit logger.
func Nop() *zap.Logger { return zap.NewNop() }
