package tokenfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrBusy means another process holds the token lock
var ErrBusy = errors.New("another process is requesting a token")

// staleAfter is how long a lock may be held before it is ignored. A token
// popup left open longer than this is abandoned.
const staleAfter = 10 * time.Minute

// writeGrace covers the gap between another process creating the lock and
// writing its PID into it
const writeGrace = 5 * time.Second

// Lock keeps two processes from asking the user for a token at the same
// time. It is a file next to the token file holding the owner's PID.
type Lock struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// Lock acquires the token lock without waiting
func (s *Store) Lock() (*Lock, error) {
	l := &Lock{path: s.path + ".lock"}
	if err := l.acquire(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Lock) acquire() error {
	err := l.create()
	if !os.IsExist(err) {
		return err
	}

	owner, stale := l.inspect()
	if !stale {
		return fmt.Errorf("%w (pid %d)", ErrBusy, owner)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale token lock: %w", err)
	}
	return l.create()
}

func (l *Lock) create() error {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	l.file = file

	content := fmt.Sprintf("%d\n%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
	if _, err := file.WriteString(content); err != nil {
		_ = l.release()
		return fmt.Errorf("write token lock: %w", err)
	}
	return nil
}

// inspect reads the current lock and reports its owner and whether it can
// be taken over
func (l *Lock) inspect() (int, bool) {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return 0, true
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		info, statErr := os.Stat(l.path)
		if statErr == nil && time.Since(info.ModTime()) < writeGrace {
			return 0, false
		}
		return 0, true
	}
	if !isProcessRunning(pid) {
		return pid, true
	}
	if len(lines) >= 2 {
		if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(lines[1])); err == nil && time.Since(ts) > staleAfter {
			return pid, true
		}
	}
	return pid, false
}

// Release drops the lock. It is safe to call more than once.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.release()
}

func (l *Lock) release() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	if rmErr := os.Remove(l.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}
