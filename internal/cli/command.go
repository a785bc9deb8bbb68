package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command defines a CLI command with unified help generation.
type Command struct {
	// Flags defines command-specific flags. Nil means the command takes
	// none. The FlagSet name is not used; command identity comes from Usage.
	Flags *flag.FlagSet

	// Usage is the freeform usage string shown after "fuzzdrive" in help.
	// Includes the command name and arguments/flags.
	// Examples: "decode --types <list> [--hex <bytes> | <file>]", "repl"
	Usage string

	// Short is a one-line description for the global help listing.
	Short string

	// Long is the full description shown in command help.
	// If empty, Short is used instead.
	Long string

	// Subcommands are dispatched on the first argument. A command with
	// subcommands has no Exec of its own.
	Subcommands []*Command

	// Exec runs the command after flags are parsed.
	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name returns the command name (first word of Usage).
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")

	return name
}

// HelpLine returns the short help line for the main usage display.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-34s %s", c.Usage, c.Short)
}

// PrintHelp prints the full help output for "fuzzdrive <cmd> --help".
func (c *Command) PrintHelp(o *IO, prefix string) {
	o.Println("Usage: fuzzdrive", prefix+c.Usage)
	o.Println()

	desc := c.Long
	if desc == "" {
		desc = c.Short
	}

	o.Println(desc)

	if len(c.Subcommands) > 0 {
		o.Println()
		o.Println("Commands:")

		for _, sub := range c.Subcommands {
			o.Println(sub.HelpLine())
		}
	}

	if c.Flags != nil && c.Flags.HasFlags() {
		o.Println()
		o.Println("Flags:")

		var buf strings.Builder

		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		o.Printf("%s", buf.String())
	}
}

// Run parses flags and executes the command, or dispatches to a
// subcommand. Returns exit code. Errors are printed here so output
// ordering stays consistent.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	return c.run(ctx, o, args, "")
}

func (c *Command) run(ctx context.Context, o *IO, args []string, prefix string) int {
	if len(c.Subcommands) > 0 {
		return c.dispatch(ctx, o, args, prefix)
	}

	flags := c.Flags
	if flags == nil {
		flags = flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	}

	flags.SetOutput(&strings.Builder{}) // discard pflag output

	err := flags.Parse(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintHelp(o, prefix)

			return 0
		}

		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		c.PrintHelp(o, prefix)

		return 1
	}

	err = c.Exec(ctx, o, flags.Args())
	if err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	return o.Finish()
}

func (c *Command) dispatch(ctx context.Context, o *IO, args []string, prefix string) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		c.PrintHelp(o, prefix)

		return 0
	}

	for _, sub := range c.Subcommands {
		if sub.Name() == args[0] {
			return sub.run(ctx, o, args[1:], prefix+c.Name()+" ")
		}
	}

	o.ErrPrintln("error: unknown command:", prefix+c.Name(), args[0])
	o.ErrPrintln("run 'fuzzdrive " + prefix + c.Name() + " --help' for usage")

	return 1
}
