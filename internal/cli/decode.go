package cli

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/fuzzdrive/pkg/corpus"
)

var errNoInput = errors.New("no input")

// DecodeCmd returns the decode command.
func DecodeCmd() *Command {
	flags := flag.NewFlagSet("decode", flag.ContinueOnError)
	types := flags.StringP("types", "t", "", "Comma-separated value `types` to decode, in order")
	hexIn := flags.String("hex", "", "Decode these hex `bytes` instead of a file")

	return &Command{
		Flags: flags,
		Usage: "decode --types <list> [--hex <bytes> | <file> | -]",
		Short: "Show the values an input decodes to",
		Long: `Replay an input through the default generators for the given types and
print each value. The input is a corpus file, a raw file, stdin ("-"), or
--hex. Reads past the end of the input decode as zero bytes.

Types: ` + strings.Join(typeNames(), ", "),
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execDecode(o, *types, *hexIn, args)
		},
	}
}

func execDecode(o *IO, typeList, hexIn string, args []string) error {
	types, err := parseTypes(typeList)
	if err != nil {
		return err
	}

	data, err := readInput(o, hexIn, args)
	if err != nil {
		return err
	}

	printDecoded(o, types, data)

	return nil
}

func printDecoded(o *IO, types []codec, data []byte) {
	values, d := decodeValues(types, data)

	for i, v := range values {
		o.Printf("%-7s %s\n", types[i].name, v)
	}

	o.Printf("consumed %d of %d bytes\n", min(d.Len(), len(data)), len(data))

	if d.Exhausted() {
		o.Printf("input exhausted: reads past the end were zero-filled\n")
	} else if d.Len() < len(data) {
		o.Printf("trailing %d bytes unused\n", len(data)-d.Len())
	}
}

// readInput returns the bytes named by --hex or the single file argument.
// Files in corpus format are decoded; anything else is taken as raw bytes.
func readInput(o *IO, hexIn string, args []string) ([]byte, error) {
	if hexIn != "" {
		if len(args) > 0 {
			return nil, fmt.Errorf("%w: --hex and a file are mutually exclusive", errBadValue)
		}

		return parseHex(hexIn)
	}

	if len(args) != 1 {
		return nil, fmt.Errorf("%w: pass --hex or exactly one file", errNoInput)
	}

	var (
		content []byte
		err     error
	)

	if args[0] == "-" {
		content, err = io.ReadAll(o.In())
	} else {
		content, err = os.ReadFile(args[0])
	}

	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}

	if bytes.HasPrefix(content, []byte("go test fuzz v1")) {
		return corpus.Decode(content)
	}

	return content, nil
}

// parseHex accepts "01 00 0a", "01000a" and "0x01,0x00".
func parseHex(s string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ",", "", "0x", "", "\n", "", "\t", "").Replace(s)

	raw, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not hex", errBadValue, s)
	}

	return raw, nil
}
