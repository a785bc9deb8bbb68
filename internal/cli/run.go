package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/fuzzdrive/internal/config"
)

// Run is the main entry point. Returns exit code.
//
// sigCh may be nil. The first signal cancels the command's context; a
// second one is left to the default handler.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	globals := flag.NewFlagSet("fuzzdrive", flag.ContinueOnError)
	globals.SetInterspersed(false)
	globals.SetOutput(&strings.Builder{})

	workDir := globals.StringP("cwd", "C", "", "Run as if started in `dir`")
	configPath := globals.StringP("config", "c", "", "Use specified config `file`")
	verbose := globals.BoolP("verbose", "v", false, "Log debug output to stderr")
	help := globals.BoolP("help", "h", false, "Show help")

	if len(args) > 0 {
		args = args[1:]
	}

	err := globals.Parse(args)
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut, globals, nil)

		return 1
	}

	rest := globals.Args()

	if *help || len(rest) == 0 {
		printUsage(out, globals, nil)

		return 0
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(config.LoadInput{
		WorkDir:    *workDir,
		ConfigPath: *configPath,
		Env:        env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	logger.Debug("config loaded",
		"cwd", cfg.EffectiveCwd,
		"global", cfg.Sources.Global,
		"project", cfg.Sources.Project,
		"env", cfg.Sources.Env,
	)

	commands := allCommands(&cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				logger.Debug("signal received, cancelling")
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	o := NewIO(in, out, errOut)

	for _, cmd := range commands {
		if cmd.Name() == rest[0] {
			return cmd.Run(ctx, o, rest[1:])
		}
	}

	fprintln(errOut, "error:", fmt.Errorf("%w: %s", errUnknownCommand, rest[0]))
	printUsage(errOut, globals, commands)

	return 1
}

var errUnknownCommand = errors.New("unknown command")

func allCommands(cfg *config.Config, logger *slog.Logger) []*Command {
	return []*Command{
		DecodeCmd(),
		EncodeCmd(cfg),
		CorpusCmd(cfg),
		FailuresCmd(cfg, logger),
		ReplCmd(),
		PrintConfigCmd(cfg),
	}
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, globals *flag.FlagSet, commands []*Command) {
	if commands == nil {
		commands = allCommands(&config.Config{}, slog.New(slog.DiscardHandler))
	}

	fprintln(w, `fuzzdrive - inspect and build inputs for byte-driven property tests

Usage: fuzzdrive [options] <command> [args]

Options:`)
	fprintln(w, strings.TrimRight(globals.FlagUsages(), "\n"))
	fprintln(w)
	fprintln(w, "Commands:")

	for _, cmd := range commands {
		fprintln(w, cmd.HelpLine())
	}
}
