package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"calmsession/internal/logging"
)

// errExit ends the shell loop.
var errExit = errors.New("exit")

// shell runs command lines against one app, so the admission gate, the
// entitlement listeners and the database handle live across lines.
type shell struct {
	app        *app
	configPath string
	out        io.Writer
	// verbosity is the shell-wide level; a -v on one line applies to that line only.
	verbosity int
	builtins  map[string]func(args []string) error
}

func newShell(a *app, configPath string, out io.Writer) *shell {
	sh := &shell{app: a, configPath: configPath, out: out, verbosity: logging.Verbosity()}
	sh.builtins = map[string]func([]string) error{
		"exit":  sh.exit,
		"quit":  sh.exit,
		"help":  sh.help,
		"log":   sh.log,
		"shell": sh.nested,
	}
	if a != nil {
		shared = a
	}
	return sh
}

func (sh *shell) close() {
	if sh.app == nil {
		return
	}
	if shared == sh.app {
		shared = nil
	}
	sh.app.Close()
}

func (sh *shell) run(prompt string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(os.TempDir(), "calmsession-shell.history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Fprintln(sh.out, "Interactive shell. 'help' for usage, 'exit' to quit.")
	for {
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}
		err = sh.exec(line)
		if errors.Is(err, errExit) {
			fmt.Fprintln(sh.out, "Bye!")
			return nil
		}
		if err != nil {
			fmt.Fprintf(sh.out, "error: %v\n", err)
		}
	}
}

// exec runs one line: a built-in, or a subcommand on a fresh root bound to
// the shell's config file.
func (sh *shell) exec(line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if len(args) == 0 {
		return nil
	}
	if builtin, ok := sh.builtins[args[0]]; ok {
		return builtin(args[1:])
	}

	root := NewRootCmd()
	root.SetOut(sh.out)
	root.SetErr(sh.out)
	root.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		if cmd.Flags().Changed("verbose") {
			logging.SetVerbosity(verbosity)
			return
		}
		logging.SetVerbosity(sh.verbosity)
	}
	root.SetArgs(append([]string{"--config=" + sh.configPath}, args...))
	err = root.Execute()
	logging.SetVerbosity(sh.verbosity)
	return err
}

func (sh *shell) exit([]string) error { return errExit }

func (sh *shell) nested([]string) error {
	fmt.Fprintln(sh.out, "Already in the shell. Enter another command or 'exit'.")
	return nil
}

// log shows or changes the shell-wide level: "log", "log debug",
// "log --level trace" or "log -vv".
func (sh *shell) log(args []string) error {
	fs := pflag.NewFlagSet("log", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	level := fs.String("level", "", "error|warn|info|debug|trace")
	count := fs.CountP("verbose", "v", "raise verbosity (up to 4)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *level == "" && fs.NArg() > 0 {
		*level = fs.Arg(0)
	}

	switch {
	case *level != "":
		_, n, err := logging.ParseLevel(*level)
		if err != nil {
			return err
		}
		sh.verbosity = n
	case *count > 0:
		sh.verbosity = *count
	default:
		fmt.Fprintf(sh.out, "log level: %s (-v x%d)\n", logging.LevelName(), logging.Verbosity())
		return nil
	}
	logging.SetVerbosity(sh.verbosity)
	fmt.Fprintf(sh.out, "log level set to %s (-v x%d)\n", logging.LevelName(), logging.Verbosity())
	return nil
}

func (sh *shell) help([]string) error {
	fmt.Fprintln(sh.out, `Examples:
  breathe --mood stressed --duration 1m     # breathing exercise
  play --ambient virtual:rain --duration 5m # meditation (gated unless premium)
  play --voice v.m4a --sleep 10m --gated=false
  admit                                     # run the admission gate once
  premium on                                # become premium (admits a waiting ad)
  status                                    # gate and entitlement state
  history -n 5                              # recent sessions
  config get ads.fill_rate                  # read a setting
  config set breathing.countdown 5          # change a setting
  serve --addr 0.0.0.0:8080                 # HTTP API
  log debug                                 # shell-wide log level
  log                                       # current log level
  exit / quit                               # leave the shell`)
	return nil
}
