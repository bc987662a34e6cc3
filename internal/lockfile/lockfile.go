// Package lockfile guards against two scraper processes sharing one data
// directory. Two schedulers hitting the same upstream doubles the request
// footprint and lets the slower one overwrite the faster one's snapshot.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Lock is a held pid lock file.
type Lock struct {
	path string
}

// Acquire creates the lock file with this process's pid. If the file exists
// and its owner is still alive, Acquire fails; a lock left behind by a dead
// process is reclaimed.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("lockfile: mkdir: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d\n", os.Getpid())
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("lockfile: write pid: %w", errorsFirst(werr, cerr))
			}
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("lockfile: create: %w", err)
		}

		pid, perr := readPID(path)
		if perr == nil && processAlive(pid) {
			return nil, fmt.Errorf("lockfile: held by running process %d (%s)", pid, path)
		}
		// Stale or unreadable: remove and retry once.
		if rerr := os.Remove(path); rerr != nil && !os.IsNotExist(rerr) {
			return nil, fmt.Errorf("lockfile: remove stale lock: %w", rerr)
		}
	}
	return nil, fmt.Errorf("lockfile: lost race for %s", path)
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lockfile: release: %w", err)
	}
	return nil
}

func readPID(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(raw)))
}

// processAlive checks whether pid exists using signal 0. On Unix FindProcess
// always succeeds, so the signal probe is the real test.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to another user.
	return err == syscall.EPERM
}

func errorsFirst(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
