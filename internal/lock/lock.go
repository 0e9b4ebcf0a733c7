//go:build darwin || linux

// Package lock guards against two sessions being built at once.
package lock

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/xkilldash9x/ebaybot/internal/failure"
	"golang.org/x/sys/unix"
)

// Lock is an exclusive advisory lock held on a file for the life of a session.
type Lock struct {
	path string
	file *os.File
}

// Acquire takes a non-blocking exclusive flock on path and records the
// caller's PID in it. A lock already held elsewhere yields SessionActive.
func Acquire(path string) (*Lock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("cannot open lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			holder := readHolder(path)
			return nil, failure.Newf(failure.CodeSessionActive, "lock", "%s is held by pid %s", path, holder)
		}
		return nil, fmt.Errorf("cannot lock %s: %w", path, err)
	}

	if err := file.Truncate(0); err == nil {
		_, _ = file.Seek(0, 0)
		fmt.Fprintf(file, "%d\n", os.Getpid())
		_ = file.Sync()
	}

	return &Lock{path: path, file: file}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Release drops the lock. The file stays where it is: unlinking it would let
// a contender that already opened it lock an orphaned inode while a newcomer
// locks a fresh one. The recorded PID is cleared while the lock is still
// held. Safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	file := l.file
	l.file = nil

	truncErr := file.Truncate(0)
	unlockErr := unix.Flock(int(file.Fd()), unix.LOCK_UN)
	closeErr := file.Close()
	return errors.Join(truncErr, unlockErr, closeErr)
}

func readHolder(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	pid := strings.TrimSpace(string(data))
	if _, err := strconv.Atoi(pid); err != nil {
		return "unknown"
	}
	return pid
}
