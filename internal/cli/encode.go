package cli

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/fuzzdrive/internal/config"
	"github.com/calvinalkan/fuzzdrive/pkg/corpus"
)

// EncodeCmd returns the encode command.
func EncodeCmd(cfg *config.Config) *Command {
	flags := flag.NewFlagSet("encode", flag.ContinueOnError)
	types := flags.StringP("types", "t", "", "Comma-separated value `types`, one per value")
	format := flags.StringP("format", "f", "hex", "Output `format`: hex, go or corpus")
	out := flags.StringP("out", "o", "", "Write a corpus file to `path` instead of printing")
	add := flags.String("add", "", "Add the input to the corpus of `target`")

	return &Command{
		Flags: flags,
		Usage: "encode --types <list> [flags] <value>...",
		Short: "Build the input that decodes to given values",
		Long: `Build the bytes that the default generators for the given types decode
to the given values. Use this to hand-write regression inputs.

Types: ` + strings.Join(typeNames(), ", "),
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execEncode(o, cfg, *types, *format, *out, *add, args)
		},
	}
}

func execEncode(o *IO, cfg *config.Config, typeList, format, out, add string, values []string) error {
	types, err := parseTypes(typeList)
	if err != nil {
		return err
	}

	data, err := encodeValues(types, values)
	if err != nil {
		return err
	}

	if out != "" {
		err = atomic.WriteFile(out, bytes.NewReader(corpus.Encode(data)))
		if err != nil {
			return fmt.Errorf("writing %s: %w", out, err)
		}

		o.Println(out)

		return nil
	}

	if add != "" {
		dir, err := corpus.Open(cfg.CorpusDirAbs)
		if err != nil {
			return err
		}

		path, err := dir.Add(add, data)
		if err != nil {
			return err
		}

		o.Println(path)

		return nil
	}

	switch format {
	case "hex":
		o.Println(hex.EncodeToString(data))
	case "go":
		o.Printf("[]byte(%q)\n", data)
	case "corpus":
		o.Printf("%s", corpus.Encode(data))
	default:
		return fmt.Errorf("%w: unknown format %q", errBadValue, format)
	}

	return nil
}
