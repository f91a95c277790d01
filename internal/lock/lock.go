package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Owner identifies the process holding a lock file, as recorded in the file
// itself. Since is zero when the file held no parseable timestamp.
type Owner struct {
	PID   int
	Since time.Time
}

// HeldError is returned when another tgnotion process holds the lock. The
// pipeline is single-instance: two concurrent runs against the same Notion
// database could race on schema repair.
type HeldError struct {
	Owner Owner
	Path  string
}

func (e *HeldError) Error() string {
	if e.Owner.Since.IsZero() {
		return fmt.Sprintf("lock held by PID %d (%s)", e.Owner.PID, e.Path)
	}
	return fmt.Sprintf("lock held by PID %d since %s (%s)",
		e.Owner.PID, e.Owner.Since.Format(time.RFC3339), e.Path)
}

// Lock is an acquired exclusive lock file.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes the exclusive process lock and records this process as its
// owner. Returns HeldError when another process has it flocked.
func Acquire(lockPath string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0700); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		// Surface who has it, from the owner record in the file.
		data, _ := os.ReadFile(lockPath)
		_ = f.Close()
		return nil, &HeldError{Owner: parseOwner(string(data)), Path: lockPath}
	}

	if err := writeOwner(f, Owner{PID: os.Getpid(), Since: time.Now().UTC()}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("record lock owner: %w", err)
	}
	return &Lock{file: f, path: lockPath}, nil
}

// Release drops the lock and removes the file. Safe to call on nil receiver.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove the file before closing so no stale lock file survives.
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

func writeOwner(f *os.File, o Owner) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err := fmt.Fprintf(f, "pid=%d\nsince=%s\n", o.PID, o.Since.Format(time.RFC3339))
	return err
}

func parseOwner(content string) Owner {
	var o Owner
	for _, line := range strings.Split(content, "\n") {
		switch {
		case strings.HasPrefix(line, "pid="):
			o.PID, _ = strconv.Atoi(strings.TrimPrefix(line, "pid="))
		case strings.HasPrefix(line, "since="):
			o.Since, _ = time.Parse(time.RFC3339, strings.TrimPrefix(line, "since="))
		}
	}
	return o
}
