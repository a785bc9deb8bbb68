package corpus

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// header is the first line of every file, shared with Go's native fuzzing
// corpus so files can be moved between testdata/fuzz and a corpus dir.
const header = "go test fuzz v1"

// Encode renders data as a corpus file.
func Encode(data []byte) []byte {
	var b bytes.Buffer

	b.WriteString(header)
	b.WriteByte('\n')
	fmt.Fprintf(&b, "[]byte(%q)\n", data)

	return b.Bytes()
}

// Decode parses a corpus file holding exactly one []byte value.
func Decode(content []byte) ([]byte, error) {
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	if !sc.Scan() || strings.TrimSpace(sc.Text()) != header {
		return nil, fmt.Errorf("%w: missing %q header", ErrMalformed, header)
	}

	var (
		value []byte
		found bool
	)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		if found {
			return nil, fmt.Errorf("%w: more than one value", ErrMalformed)
		}

		inner, ok := strings.CutPrefix(line, "[]byte(")
		if !ok || !strings.HasSuffix(inner, ")") {
			return nil, fmt.Errorf("%w: want []byte(...), got %q", ErrMalformed, line)
		}

		s, err := strconv.Unquote(strings.TrimSuffix(inner, ")"))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}

		value, found = []byte(s), true
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if !found {
		return nil, fmt.Errorf("%w: no value", ErrMalformed)
	}

	return value, nil
}

// ReadFile reads and decodes one corpus file.
func ReadFile(path string) ([]byte, error) {
	content, err := os.ReadFile(path) //nolint:gosec // path is from caller
	if err != nil {
		return nil, fmt.Errorf("reading corpus file: %w", err)
	}

	data, err := Decode(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return data, nil
}
