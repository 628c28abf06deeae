// Command sush is an interactive POSIX-style shell: a lexer/parser for
// shell grammar, a word-expansion engine (tilde, parameter, arithmetic
// and command substitution, brace expansion, field splitting, pathname
// globbing), an arithmetic evaluator, and an executor with job control,
// following the architecture of the CodeCrafters shell this project
// started from but generalized to the full grammar.
package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sush-shell/sush/internal/config"
	"github.com/sush-shell/sush/internal/input"
	"github.com/sush-shell/sush/internal/logging"
	"github.com/sush-shell/sush/pkg/shell"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		cFlag    string
		noRC     bool
		debug    bool
	)

	root := &cobra.Command{
		Use:           "sush [FILE | -]",
		Short:         "sush is a small POSIX-style interactive shell",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
	}
	root.Flags().StringVarP(&cFlag, "command", "c", "", "execute STRING and exit")
	root.Flags().BoolVar(&noRC, "norc", false, "skip loading ~/.sushrc.yaml")
	root.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	status := 0
	root.RunE = func(cmd *cobra.Command, args []string) error {
		status = runShell(cFlag, noRC, debug, args)
		return nil
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sush:", err)
		return 1
	}
	return status
}

func runShell(cFlag string, noRCFlag, debugFlag bool, args []string) int {
	env, err := config.LoadEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "sush:", err)
		return 1
	}

	debug := debugFlag || env.Debug
	noRC := noRCFlag || env.NoRC

	logger, err := logging.New(debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sush:", err)
		return 1
	}
	defer logger.Sync()

	s := shell.New(logger)
	seedEnviron(s)

	if !noRC {
		rcPath := env.RCFile
		rc, err := config.LoadRC(rcPath)
		if err != nil {
			logger.Warn("failed to load rc file", zap.Error(err))
		} else {
			applyRC(s, rc)
		}
	}

	historyFile := env.HistoryFile
	if historyFile == "" {
		historyFile = defaultHistoryFile()
	}

	switch {
	case cFlag != "":
		if err := s.RunSource(cFlag); err != nil {
			logger.Debug("command execution ended", zap.Error(err))
		}
		return s.LastStatus

	case len(args) == 1 && args[0] != "-":
		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, "sush:", err)
			return 127
		}
		src := input.NewScripted(bytes.NewReader(data))
		return runFeeder(s, src)

	case len(args) == 1 && args[0] == "-":
		return runFeeder(s, input.NewScripted(os.Stdin))

	case input.IsTTY(os.Stdin.Fd()):
		rl, err := input.NewInteractive(historyFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "sush:", err)
			return 1
		}
		defer rl.Close()
		return s.RunInteractive(rl)

	default:
		return runFeeder(s, input.NewScripted(os.Stdin))
	}
}

func runFeeder(s *shell.Shell, src input.LineSource) int {
	defer src.Close()
	return s.RunInteractive(src)
}

// seedEnviron copies the process environment into the variable store
// (spec.md §4.7/§6): POSIX variables are shell parameters, not shell
// tunables, so they come from os.Environ rather than envconfig.
func seedEnviron(s *shell.Shell) {
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				s.Store.Set(kv[:i], kv[i+1:])
				s.Store.Export(kv[:i])
				break
			}
		}
	}
}

func applyRC(s *shell.Shell, rc *config.RC) {
	if rc.PS1 != "" {
		s.Store.Set("PS1", rc.PS1)
	}
	if rc.PS2 != "" {
		s.Store.Set("PS2", rc.PS2)
	}
	for name, val := range rc.Aliases {
		s.SetAlias(name, val)
	}
	if rc.ExtGlob {
		s.Opts.ExtGlob = true
	}
	if rc.DisableGlob {
		s.Opts.NoGlob = true
	}
}

func defaultHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.sush_history"
}
