package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/fuzzdrive/internal/config"
	"github.com/calvinalkan/fuzzdrive/pkg/corpus"
)

// CorpusCmd returns the corpus command group.
func CorpusCmd(cfg *config.Config) *Command {
	return &Command{
		Usage: "corpus <command>",
		Short: "Inspect stored reproducers",
		Long:  "List and show the inputs stored in the corpus directory (corpus_dir).",
		Subcommands: []*Command{
			corpusLsCmd(cfg),
			corpusShowCmd(),
		},
	}
}

func corpusLsCmd(cfg *config.Config) *Command {
	return &Command{
		Usage: "ls [target]",
		Short: "List targets, or the inputs of one target",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) > 1 {
				return fmt.Errorf("%w: ls takes at most one target", errBadValue)
			}

			dir, err := corpus.Open(cfg.CorpusDirAbs)
			if err != nil {
				return err
			}

			if len(args) == 0 {
				return listTargets(o, dir)
			}

			return listInputs(o, dir, corpus.TargetName(args[0]))
		},
	}
}

func listTargets(o *IO, dir *corpus.Dir) error {
	targets, err := dir.Targets()
	if err != nil {
		return err
	}

	if len(targets) == 0 {
		o.Println("(no targets in " + dir.Root() + ")")

		return nil
	}

	for _, target := range targets {
		files, err := dir.Files(target)
		if err != nil {
			return err
		}

		o.Printf("%-40s %d\n", target, len(files))
	}

	return nil
}

func listInputs(o *IO, dir *corpus.Dir, target string) error {
	files, err := dir.Files(target)
	if err != nil {
		return err
	}

	for _, path := range files {
		data, err := corpus.ReadFile(path)
		if err != nil {
			o.Warn(filepath.Base(path)+": "+err.Error(), "delete or fix the file")

			continue
		}

		o.Printf("%s  %5d bytes  %s\n", filepath.Base(path), len(data), preview(data))
	}

	return nil
}

func corpusShowCmd() *Command {
	flags := flag.NewFlagSet("show", flag.ContinueOnError)
	types := flags.StringP("types", "t", "", "Also decode the input as these value `types`")

	return &Command{
		Flags: flags,
		Usage: "show [--types <list>] <file>",
		Short: "Show one stored input",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("%w: show takes one file", errNoInput)
			}

			data, err := corpus.ReadFile(args[0])
			if err != nil {
				return err
			}

			o.Printf("%d bytes\n", len(data))
			o.Printf("%s", hex.Dump(data))

			if *types == "" {
				return nil
			}

			decoders, err := parseTypes(*types)
			if err != nil {
				return err
			}

			o.Println()
			printDecoded(o, decoders, data)

			return nil
		},
	}
}

// preview renders at most the first 16 bytes as spaced hex.
func preview(data []byte) string {
	const limit = 16

	if len(data) <= limit {
		return fmt.Sprintf("% x", data)
	}

	return fmt.Sprintf("% x ...", data[:limit])
}
