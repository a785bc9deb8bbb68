package cli

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/peterh/liner"

	"github.com/calvinalkan/fuzzdrive/pkg/corpus"
)

// ReplCmd returns the repl command.
func ReplCmd() *Command {
	return &Command{
		Usage: "repl [type...]",
		Short: "Interactively decode and edit inputs",
		Long: `Start an interactive session holding one input and a type list. Edit
values and watch the bytes change, or edit bytes and watch the values
change. Type 'help' inside the session for commands.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			s := &session{out: o.Out()}

			if len(args) > 0 {
				s.exec("types " + strings.Join(args, ","))
			}

			return s.loop()
		},
	}
}

var replCommands = []string{
	"types", "hex", "load", "decode", "encode", "set",
	"dump", "write", "help", "exit", "quit", "q",
}

// session is the state of one repl: the current input and the types it
// is decoded as.
type session struct {
	out   io.Writer
	types []codec
	data  []byte
	line  *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".fuzzdrive_history")
}

func (s *session) loop() error {
	s.line = liner.NewLiner()
	defer func() { _ = s.line.Close() }()

	s.line.SetCtrlCAborts(true)
	s.line.SetCompleter(completeCommand)

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = s.line.ReadHistory(f)
		_ = f.Close()
	}

	defer s.saveHistory()

	s.printf("fuzzdrive repl. Type 'help' for commands.\n")

	for {
		input, err := s.line.Prompt("fuzzdrive> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("reading input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		s.line.AppendHistory(input)

		if s.exec(input) {
			return nil
		}
	}
}

func (s *session) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}

	var buf bytes.Buffer

	_, err := s.line.WriteHistory(&buf)
	if err != nil {
		return
	}

	_ = atomic.WriteFile(path, &buf)
}

func completeCommand(line string) []string {
	var out []string

	lower := strings.ToLower(line)
	for _, c := range replCommands {
		if strings.HasPrefix(c, lower) {
			out = append(out, c)
		}
	}

	return out
}

func (s *session) printf(format string, a ...any) {
	_, _ = fmt.Fprintf(s.out, format, a...)
}

// exec runs one command line and reports whether the session should end.
func (s *session) exec(input string) bool {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return false
	}

	cmd, args := strings.ToLower(fields[0]), fields[1:]

	var err error

	switch cmd {
	case "exit", "quit", "q":
		return true
	case "help", "?":
		s.printHelp()
	case "types":
		s.types, err = parseTypes(strings.Join(args, ","))
		if err == nil {
			s.printValues()
		}
	case "hex":
		s.data, err = parseHex(strings.Join(args, ""))
		if err == nil {
			s.printValues()
		}
	case "load":
		err = s.load(args)
	case "decode":
		s.printValues()
	case "encode":
		err = s.encode(args)
	case "set":
		err = s.set(args)
	case "dump":
		s.printf("%s", hex.Dump(s.data))
	case "write":
		err = s.write(args)
	default:
		s.printf("unknown command: %s (type 'help' for commands)\n", cmd)
	}

	if err != nil {
		s.printf("error: %v\n", err)
	}

	return false
}

func (s *session) printHelp() {
	s.printf(`Commands:
  types <t1,t2,...>     Set the value types (%s)
  hex <bytes>           Replace the input with hex bytes
  load <file>           Replace the input with a corpus or raw file
  decode                Decode the input with the current types
  encode <v1> <v2> ...  Replace the input with bytes decoding to the values
  set <i> <value>       Change value i and re-encode the input
  dump                  Hex dump the input
  write <file>          Save the input as a corpus file
  help                  Show this help
  exit                  Leave the repl
`, strings.Join(typeNames(), " "))
}

func (s *session) printValues() {
	if len(s.types) == 0 {
		s.printf("input: %s (%d bytes); set types to decode\n", preview(s.data), len(s.data))

		return
	}

	values, d := decodeValues(s.types, s.data)

	for i, v := range values {
		s.printf("[%d] %-7s %s\n", i, s.types[i].name, v)
	}

	s.printf("input: %s (%d bytes, %d consumed)\n", preview(s.data), len(s.data), min(d.Len(), len(s.data)))
}

func (s *session) load(args []string) error {
	if len(args) != 1 || args[0] == "-" {
		return fmt.Errorf("%w: load takes one file", errNoInput)
	}

	data, err := readInput(nil, "", args)
	if err != nil {
		return err
	}

	s.data = data
	s.printValues()

	return nil
}

func (s *session) encode(values []string) error {
	data, err := encodeValues(s.types, values)
	if err != nil {
		return err
	}

	s.data = data
	s.printValues()

	return nil
}

func (s *session) set(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: set takes an index and a value", errBadValue)
	}

	i, err := strconv.Atoi(args[0])
	if err != nil || i < 0 || i >= len(s.types) {
		return fmt.Errorf("%w: index %q out of range", errBadValue, args[0])
	}

	values, _ := decodeValues(s.types, s.data)
	for j, c := range s.types {
		// Quoted strings print with quotes; encode wants them bare.
		if c.name == "string" {
			values[j], _ = strconv.Unquote(values[j])
		}
	}

	values[i] = args[1]

	return s.encode(values)
}

func (s *session) write(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: write takes one file", errBadValue)
	}

	err := atomic.WriteFile(args[0], bytes.NewReader(corpus.Encode(s.data)))
	if err != nil {
		return fmt.Errorf("writing %s: %w", args[0], err)
	}

	s.printf("wrote %s\n", args[0])

	return nil
}
