package corpus

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// LockTimeout is how long Add waits for another process holding the lock.
const LockTimeout = 5 * time.Second

const lockRetryInterval = 10 * time.Millisecond

// dirLock is an exclusive flock on a corpus root.
type dirLock struct {
	file *os.File
}

// acquireLock takes an exclusive lock on path, creating it if needed.
// Parallel `go test` processes share a corpus dir, so writes go through it.
func acquireLock(path string, timeout time.Duration) (*dirLock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, filePerm) //nolint:gosec // path is derived from root
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	deadline := time.Now().Add(timeout)

	for {
		err = unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &dirLock{file: file}, nil
		}

		if time.Now().After(deadline) {
			_ = file.Close()

			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, path)
		}

		time.Sleep(lockRetryInterval)
	}
}

func (l *dirLock) release() {
	if l.file != nil {
		_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
		_ = l.file.Close()
	}
}
