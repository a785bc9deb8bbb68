package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/fuzzdrive/internal/config"
	"github.com/calvinalkan/fuzzdrive/pkg/corpus"
)

var errNoIndex = errors.New("no failure index configured")

// FailuresCmd returns the failures command.
func FailuresCmd(cfg *config.Config, logger *slog.Logger) *Command {
	flags := flag.NewFlagSet("failures", flag.ContinueOnError)
	verbose := flags.BoolP("long", "l", false, "Show message and reproducer for each failure")

	return &Command{
		Flags: flags,
		Usage: "failures [-l] [target]",
		Short: "List failures recorded in the index",
		Long: `List distinct failures recorded in the failure index (index_path), most
recently seen first. A failure is identified by its target, kind and
location; the smallest reproducer seen so far is kept.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if cfg.IndexAbs == "" {
				return fmt.Errorf("%w: set index_path or FUZZDRIVE_INDEX_PATH", errNoIndex)
			}

			var target string

			switch len(args) {
			case 0:
			case 1:
				target = corpus.TargetName(args[0])
			default:
				return fmt.Errorf("%w: failures takes at most one target", errBadValue)
			}

			logger.Debug("opening failure index", "path", cfg.IndexAbs)

			idx, err := corpus.OpenIndex(ctx, cfg.IndexAbs)
			if err != nil {
				return err
			}

			defer func() { _ = idx.Close() }()

			entries, err := idx.List(ctx, target)
			if err != nil {
				return err
			}

			logger.Debug("listed failures", "target", target, "count", len(entries))

			for _, e := range entries {
				o.Printf("%-10s %-30s %-28s x%-4d %s\n",
					e.Kind, e.Target, e.Location, e.Count, e.LastSeen.Format(time.DateTime))

				if *verbose {
					o.Printf("    message: %s\n", e.Message)
					o.Printf("    input:   %s (%d bytes)\n", preview(e.Input), len(e.Input))

					if e.Path != "" {
						o.Printf("    file:    %s\n", e.Path)
					}
				}
			}

			if len(entries) == 0 {
				o.Println("(no failures recorded)")
			}

			return nil
		},
	}
}
