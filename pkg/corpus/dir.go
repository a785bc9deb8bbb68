// Package corpus stores reproducers on disk and indexes known failures.
//
// A [Dir] keeps one subdirectory per test target. Every input is a file
// named after the first 16 hex digits of its SHA-256, in Go's
// "go test fuzz v1" format, so the same file works as a seed for native Go
// fuzzing. An [Index] is an optional SQLite database that deduplicates
// failures across runs by target, kind and location.
package corpus

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644

	lockName = ".lock"
)

var (
	// ErrMalformed means a corpus file could not be decoded.
	ErrMalformed = errors.New("corpus: malformed file")

	// ErrInvalidTarget means a target name maps to no usable directory.
	ErrInvalidTarget = errors.New("corpus: invalid target")

	// ErrLockTimeout means another process held the corpus lock too long.
	ErrLockTimeout = errors.New("corpus: lock timeout")
)

// Dir is a corpus directory.
type Dir struct {
	root string
}

// Open returns the corpus at root, creating the directory if needed.
func Open(root string) (*Dir, error) {
	if root == "" {
		return nil, errors.New("corpus: root is empty")
	}

	err := os.MkdirAll(root, dirPerm)
	if err != nil {
		return nil, fmt.Errorf("creating corpus dir: %w", err)
	}

	return &Dir{root: root}, nil
}

// Root returns the corpus root directory.
func (c *Dir) Root() string {
	return c.root
}

// TargetName maps a test name to its directory name. Subtest separators
// and characters unsafe in file names become underscores.
func TargetName(name string) string {
	var b strings.Builder

	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	return strings.Trim(b.String(), ".")
}

func (c *Dir) targetDir(target string) (string, error) {
	name := TargetName(target)
	if name == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}

	return filepath.Join(c.root, name), nil
}

// FileName returns the content-addressed file name for data.
func FileName(data []byte) string {
	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])[:16]
}

// Add stores data for target and returns the file path. Adding the same
// bytes twice is a no-op that returns the existing path.
func (c *Dir) Add(target string, data []byte) (string, error) {
	dir, err := c.targetDir(target)
	if err != nil {
		return "", err
	}

	lock, err := acquireLock(filepath.Join(c.root, lockName), LockTimeout)
	if err != nil {
		return "", fmt.Errorf("acquiring corpus lock: %w", err)
	}

	defer lock.release()

	err = os.MkdirAll(dir, dirPerm)
	if err != nil {
		return "", fmt.Errorf("creating target dir: %w", err)
	}

	path := filepath.Join(dir, FileName(data))

	_, err = os.Stat(path)
	if err == nil {
		return path, nil
	}

	err = atomic.WriteFile(path, bytes.NewReader(Encode(data)))
	if err != nil {
		return "", fmt.Errorf("writing corpus file: %w", err)
	}

	return path, nil
}

// Files lists the corpus file paths of target in name order. A target with
// no directory has no files.
func (c *Dir) Files(target string) ([]string, error) {
	dir, err := c.targetDir(target)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("reading target dir: %w", err)
	}

	var paths []string

	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}

		paths = append(paths, filepath.Join(dir, e.Name()))
	}

	return paths, nil
}

// Load decodes every input stored for target, in file name order.
func (c *Dir) Load(target string) ([][]byte, error) {
	paths, err := c.Files(target)
	if err != nil {
		return nil, err
	}

	inputs := make([][]byte, 0, len(paths))

	for _, p := range paths {
		data, err := ReadFile(p)
		if err != nil {
			return nil, err
		}

		inputs = append(inputs, data)
	}

	return inputs, nil
}

// Targets lists the target directories in the corpus.
func (c *Dir) Targets() ([]string, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return nil, fmt.Errorf("reading corpus dir: %w", err)
	}

	var targets []string

	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			targets = append(targets, e.Name())
		}
	}

	return targets, nil
}
